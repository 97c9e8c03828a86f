// Package trade provides the HTTP handlers and business logic for
// challenge sessions: lifecycle, order placement with slippage, and
// portfolio valuation.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockquest/paper-engine/internal/ledger"
	"github.com/stockquest/paper-engine/internal/metrics"
	"github.com/stockquest/paper-engine/internal/quote"
	"github.com/stockquest/paper-engine/internal/risk"
	"github.com/stockquest/paper-engine/internal/slippage"
	"github.com/stockquest/paper-engine/internal/store"
)

// Service handles session and order operations. Uses a mutex for
// serialized order execution (single-instance). For horizontal scaling,
// replace with distributed locking or database-level optimistic
// concurrency.
type Service struct {
	store   store.Store
	quotes  *quote.Source
	band    slippage.Band
	limiter *risk.Limiter
	rng     *rand.Rand
	mu      sync.Mutex
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, quotes *quote.Source, band slippage.Band, limiter *risk.Limiter, hub *WSHub) *Service {
	return &Service{
		store:   st,
		quotes:  quotes,
		band:    band,
		limiter: limiter,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		wsHub:   hub,
	}
}

// --- Request/Response types ---

// CreateSessionRequest is the JSON body for session creation.
type CreateSessionRequest struct {
	ChallengeID    int64           `json:"challenge_id"`
	UserID         int64           `json:"user_id"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// PlaceOrderRequest is the JSON body for POST /sessions/{id}/orders.
type PlaceOrderRequest struct {
	InstrumentKey string           `json:"instrument_key"`
	Side          string           `json:"side"`       // "BUY" or "SELL"
	Quantity      decimal.Decimal  `json:"quantity"`
	OrderType     string           `json:"order_type"` // "MARKET" or "LIMIT"
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	MarketPrice   *decimal.Decimal `json:"market_price,omitempty"` // override; omit to use the quote feed
}

// PlaceOrderResponse is the JSON body returned from order placement.
type PlaceOrderResponse struct {
	Order       ledger.Order     `json:"order"`
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty"`
	Position    PositionSummary  `json:"position"`
	CashBalance decimal.Decimal  `json:"cash_balance"`
}

// PositionSummary is the position snapshot included in order responses.
type PositionSummary struct {
	InstrumentKey string          `json:"instrument_key"`
	Quantity      decimal.Decimal `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	TotalCost     decimal.Decimal `json:"total_cost"`
}

// PositionValue is one position valued at the current quote.
type PositionValue struct {
	InstrumentKey string          `json:"instrument_key"`
	Quantity      decimal.Decimal `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// PortfolioResponse is the JSON body for GET /sessions/{id}/portfolio.
type PortfolioResponse struct {
	SessionID        int64           `json:"session_id"`
	Status           string          `json:"status"`
	CashBalance      decimal.Decimal `json:"cash_balance"`
	InitialBalance   decimal.Decimal `json:"initial_balance"`
	Positions        []PositionValue `json:"positions"`
	PortfolioValue   decimal.Decimal `json:"portfolio_value"`
	TotalPnL         decimal.Decimal `json:"total_pnl"`
	ReturnPercentage decimal.Decimal `json:"return_percentage"`
}

// --- Handlers ---

// CreateSession handles POST /api/v1/sessions
// Rejects creation while the user still has a READY or ACTIVE session on
// the same challenge.
func (s *Service) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := ledger.NewSession(req.ChallengeID, req.UserID, req.InitialBalance)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	existing, err := s.store.ListSessionsByUserAndChallenge(r.Context(), req.UserID, req.ChallengeID)
	if err != nil {
		writeError(w, "failed to check existing sessions", http.StatusInternalServerError)
		return
	}
	for _, prev := range existing {
		if !prev.Status.CanStartNewSession() {
			writeError(w, "an open session already exists for this challenge", http.StatusConflict)
			return
		}
	}

	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		slog.Error("failed to create session", "err", err)
		writeError(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	slog.Info("session created",
		"session_id", sess.ID,
		"challenge_id", sess.ChallengeID,
		"user_id", sess.UserID,
		"initial_balance", sess.InitialBalance.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sess)
}

// GetSession handles GET /api/v1/sessions/{sessionID}
func (s *Service) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess)
}

// ListSessions handles GET /api/v1/sessions?user_id=<id>
func (s *Service) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	sessions, err := s.store.ListSessionsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []ledger.Session{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

// StartSession handles POST /api/v1/sessions/{sessionID}/start
func (s *Service) StartSession(w http.ResponseWriter, r *http.Request) {
	s.transitionSession(w, r, "session_started", func(sess *ledger.Session) error {
		if err := sess.Start(); err != nil {
			return err
		}
		metrics.ActiveSessions.Inc()
		return nil
	})
}

// EndSession handles POST /api/v1/sessions/{sessionID}/end
func (s *Service) EndSession(w http.ResponseWriter, r *http.Request) {
	s.transitionSession(w, r, "session_completed", func(sess *ledger.Session) error {
		if err := sess.End(); err != nil {
			return err
		}
		metrics.ActiveSessions.Dec()
		return nil
	})
}

// CancelSession handles POST /api/v1/sessions/{sessionID}/cancel
func (s *Service) CancelSession(w http.ResponseWriter, r *http.Request) {
	s.transitionSession(w, r, "session_cancelled", func(sess *ledger.Session) error {
		wasActive := sess.Status == ledger.SessionActive
		if err := sess.Cancel(); err != nil {
			return err
		}
		if wasActive {
			metrics.ActiveSessions.Dec()
		}
		return nil
	})
}

// transitionSession applies a lifecycle transition under the service
// mutex and persists the result.
func (s *Service) transitionSession(w http.ResponseWriter, r *http.Request, event string, apply func(*ledger.Session) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	if err := apply(sess); err != nil {
		writeLedgerError(w, err)
		return
	}

	if err := s.store.UpdateSession(r.Context(), sess); err != nil {
		slog.Error("failed to persist session transition", "session_id", sess.ID, "err", err)
		writeError(w, "failed to update session", http.StatusInternalServerError)
		return
	}

	slog.Info(event, "session_id", sess.ID, "status", sess.Status)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      event,
			SessionID: sess.ID,
			Status:    string(sess.Status),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess)
}

// PlaceOrder handles POST /api/v1/sessions/{sessionID}/orders
//
// Placement is all-or-nothing: the order executes against the current
// quote with a random slippage rate, passes admission and risk checks,
// routes into the position, and adjusts the cash balance. Nothing is
// persisted until every step has succeeded.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if sess.Status != ledger.SessionActive {
		writeError(w, "session is not active", http.StatusConflict)
		return
	}

	order, err := ledger.NewOrder(sess.ID, req.InstrumentKey, ledger.Side(req.Side), req.Quantity, ledger.OrderType(req.OrderType), req.LimitPrice)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var marketPrice decimal.Decimal
	if req.MarketPrice != nil {
		marketPrice = *req.MarketPrice
	} else {
		marketPrice = s.quotes.Price(order.InstrumentKey)
	}

	// Pre-execution admission against the quoted notional. The binding
	// check runs again below against the executed notional.
	estimate := order.Quantity.Mul(marketPrice)
	if order.Side == ledger.Buy && !sess.CanPlaceOrder(estimate) {
		metrics.AdmissionRejections.Inc()
		writeError(w, "insufficient balance for order", http.StatusConflict)
		return
	}
	if err := s.limiter.CheckOrder(estimate); err != nil {
		metrics.AdmissionRejections.Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	pos, err := s.store.GetPosition(r.Context(), sess.ID, order.InstrumentKey)
	if errors.Is(err, store.ErrNotFound) {
		if order.Side == ledger.Sell {
			writeError(w, "no position held in "+order.InstrumentKey, http.StatusConflict)
			return
		}
		pos, err = ledger.NewPosition(sess.ID, order.InstrumentKey)
	}
	if err != nil {
		slog.Error("failed to load position", "session_id", sess.ID, "err", err)
		writeError(w, "failed to load position", http.StatusInternalServerError)
		return
	}

	if order.Side == ledger.Buy {
		if err := s.limiter.CheckPosition(pos.Quantity, order.Quantity); err != nil {
			metrics.AdmissionRejections.Inc()
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
	}

	rate := s.band.Rate(s.rng)
	if err := order.Execute(marketPrice, &rate); err != nil {
		writeLedgerError(w, err)
		return
	}
	order.ID = uuid.New().String()

	notional := order.TotalValue()
	var realized *decimal.Decimal

	switch order.Side {
	case ledger.Buy:
		// Slippage moved the fill above the quote; re-check what the
		// order actually costs.
		if !sess.CanPlaceOrder(notional) {
			metrics.AdmissionRejections.Inc()
			writeError(w, "insufficient balance for order", http.StatusConflict)
			return
		}
		if err := pos.Add(order.Quantity, *order.ExecutedPrice); err != nil {
			writeLedgerError(w, err)
			return
		}
		if err := sess.UpdateBalance(sess.CurrentBalance.Sub(notional)); err != nil {
			writeLedgerError(w, err)
			return
		}
	case ledger.Sell:
		pnl, err := pos.Reduce(order.Quantity, *order.ExecutedPrice)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		realized = &pnl
		if err := sess.UpdateBalance(sess.CurrentBalance.Add(notional)); err != nil {
			writeLedgerError(w, err)
			return
		}
	}

	ctx := r.Context()
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		slog.Error("failed to persist session balance", "session_id", sess.ID, "err", err)
		writeError(w, "failed to update session", http.StatusInternalServerError)
		return
	}
	if err := s.store.UpsertPosition(ctx, pos); err != nil {
		slog.Error("failed to persist position", "session_id", sess.ID, "err", err)
		writeError(w, "failed to update position", http.StatusInternalServerError)
		return
	}
	if err := s.store.InsertOrder(ctx, order); err != nil {
		slog.Error("failed to record order", "order_id", order.ID, "err", err)
		writeError(w, "failed to record order", http.StatusInternalServerError)
		return
	}

	metrics.OrdersExecutedTotal.WithLabelValues(string(order.Side)).Inc()
	metrics.TradedNotional.WithLabelValues(string(order.Side)).Add(notional.InexactFloat64())
	metrics.OrderLatency.WithLabelValues(string(order.Side)).Observe(time.Since(start).Seconds())

	slog.Info("order executed",
		"order_id", order.ID,
		"session_id", sess.ID,
		"instrument", order.InstrumentKey,
		"side", order.Side,
		"qty", order.Quantity.String(),
		"executed_price", order.ExecutedPrice.String(),
		"slippage_rate", order.SlippageRate.String(),
		"balance", sess.CurrentBalance.String(),
	)

	if s.wsHub != nil {
		msg := WSMessage{
			Type:          "order_executed",
			SessionID:     sess.ID,
			InstrumentKey: order.InstrumentKey,
			Side:          string(order.Side),
			Quantity:      order.Quantity.String(),
			ExecutedPrice: order.ExecutedPrice.String(),
			AveragePrice:  pos.AveragePrice.String(),
			CashBalance:   sess.CurrentBalance.String(),
		}
		if realized != nil {
			msg.RealizedPnL = realized.String()
		}
		s.wsHub.Broadcast(msg)
	}

	resp := PlaceOrderResponse{
		Order:       *order,
		RealizedPnL: realized,
		Position: PositionSummary{
			InstrumentKey: pos.InstrumentKey,
			Quantity:      pos.Quantity,
			AveragePrice:  pos.AveragePrice,
			TotalCost:     pos.TotalCost,
		},
		CashBalance: sess.CurrentBalance,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListOrders handles GET /api/v1/sessions/{sessionID}/orders
// Returns the session's order history, oldest first.
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	orders, err := s.store.ListOrdersBySession(r.Context(), sess.ID)
	if err != nil {
		writeError(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []ledger.Order{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orders)
}

// GetPortfolio handles GET /api/v1/sessions/{sessionID}/portfolio
// Values every held position at the current quote and reports total
// P&L and return on the initial balance.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	positions, err := s.store.ListPositionsBySession(r.Context(), sess.ID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}

	values := make([]PositionValue, 0, len(positions))
	portfolioValue := decimal.Zero
	for _, p := range positions {
		if !p.Held() {
			continue
		}
		price := s.quotes.Price(p.InstrumentKey)
		value := p.CurrentValue(price)
		portfolioValue = portfolioValue.Add(value)
		values = append(values, PositionValue{
			InstrumentKey: p.InstrumentKey,
			Quantity:      p.Quantity,
			AveragePrice:  p.AveragePrice,
			TotalCost:     p.TotalCost,
			CurrentPrice:  price,
			CurrentValue:  value,
			UnrealizedPnL: p.UnrealizedPnL(price),
		})
	}

	resp := PortfolioResponse{
		SessionID:        sess.ID,
		Status:           string(sess.Status),
		CashBalance:      sess.CurrentBalance,
		InitialBalance:   sess.InitialBalance,
		Positions:        values,
		PortfolioValue:   portfolioValue,
		TotalPnL:         sess.TotalPnL(portfolioValue),
		ReturnPercentage: sess.ReturnPercentage(portfolioValue),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// loadSession parses {sessionID} and fetches the session, writing the
// error response itself on failure.
func (s *Service) loadSession(w http.ResponseWriter, r *http.Request) (*ledger.Session, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, "invalid session id", http.StatusBadRequest)
		return nil, false
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		slog.Error("failed to load session", "session_id", id, "err", err)
		writeError(w, "failed to load session", http.StatusInternalServerError)
		return nil, false
	}
	return sess, true
}

// writeLedgerError maps ledger errors onto HTTP statuses: validation
// failures are 400, illegal state transitions are 409.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrState):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
