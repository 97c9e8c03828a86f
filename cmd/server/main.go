package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/stockquest/paper-engine/internal/config"
	"github.com/stockquest/paper-engine/internal/metrics"
	"github.com/stockquest/paper-engine/internal/quote"
	"github.com/stockquest/paper-engine/internal/risk"
	"github.com/stockquest/paper-engine/internal/slippage"
	"github.com/stockquest/paper-engine/internal/store"
	"github.com/stockquest/paper-engine/internal/trade"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid redis url", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			ttl := time.Duration(cfg.Redis.TTLSeconds) * time.Second
			st = store.NewCachedStore(st, rdb, ttl)
			slog.Info("Redis cache enabled", "ttl", ttl)
		}
	} else {
		slog.Warn("database url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Slippage band ---
	band, err := slippage.NewBand(
		decimal.NewFromFloat(cfg.Trading.SlippageMinPct),
		decimal.NewFromFloat(cfg.Trading.SlippageMaxPct),
	)
	if err != nil {
		slog.Error("invalid slippage band", "err", err)
		os.Exit(1)
	}

	// --- Risk limits ---
	limiter := risk.NewLimiter(
		decimal.NewFromFloat(cfg.Trading.MaxOrderValue),
		decimal.NewFromFloat(cfg.Trading.MaxPositionQuantity),
	)

	// --- Quote feed ---
	prices := make(map[string]decimal.Decimal, len(cfg.Quotes.Prices))
	for ticker, price := range cfg.Quotes.Prices {
		prices[ticker] = decimal.NewFromFloat(price)
	}
	quotes := quote.NewSource(
		prices,
		decimal.NewFromFloat(cfg.Quotes.VariationPct),
		rand.New(rand.NewSource(time.Now().UnixNano())),
	)

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Trade service ---
	tradeSvc := trade.NewService(st, quotes, band, limiter, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"paper-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time trade snapshots.
		r.Get("/ws", wsHub.HandleWS)

		// Session lifecycle.
		r.Post("/sessions", tradeSvc.CreateSession)
		r.Get("/sessions", tradeSvc.ListSessions)
		r.Get("/sessions/{sessionID}", tradeSvc.GetSession)
		r.Post("/sessions/{sessionID}/start", tradeSvc.StartSession)
		r.Post("/sessions/{sessionID}/end", tradeSvc.EndSession)
		r.Post("/sessions/{sessionID}/cancel", tradeSvc.CancelSession)

		// Order placement and history.
		r.Post("/sessions/{sessionID}/orders", tradeSvc.PlaceOrder)
		r.Get("/sessions/{sessionID}/orders", tradeSvc.ListOrders)

		// Portfolio valuation.
		r.Get("/sessions/{sessionID}/portfolio", tradeSvc.GetPortfolio)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("paper-engine listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down paper-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("paper-engine stopped")
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
