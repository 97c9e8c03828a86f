package trade_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockquest/paper-engine/internal/ledger"
	"github.com/stockquest/paper-engine/internal/quote"
	"github.com/stockquest/paper-engine/internal/risk"
	"github.com/stockquest/paper-engine/internal/slippage"
	"github.com/stockquest/paper-engine/internal/store"
	"github.com/stockquest/paper-engine/internal/trade"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func dp(f float64) *decimal.Decimal {
	v := decimal.NewFromFloat(f)
	return &v
}

// newTestEnv creates a test Service with in-memory store, fixed quotes,
// and a zero slippage band so fills are deterministic.
func newTestEnv(t *testing.T, band slippage.Band, limiter *risk.Limiter) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	quotes := quote.NewSource(map[string]decimal.Decimal{"AAPL": d(120)}, decimal.Zero, nil)
	if limiter == nil {
		limiter = risk.NewLimiter(decimal.Zero, decimal.Zero)
	}
	svc := trade.NewService(ms, quotes, band, limiter, nil)

	r := chi.NewRouter()
	r.Post("/api/v1/sessions", svc.CreateSession)
	r.Get("/api/v1/sessions", svc.ListSessions)
	r.Get("/api/v1/sessions/{sessionID}", svc.GetSession)
	r.Post("/api/v1/sessions/{sessionID}/start", svc.StartSession)
	r.Post("/api/v1/sessions/{sessionID}/end", svc.EndSession)
	r.Post("/api/v1/sessions/{sessionID}/cancel", svc.CancelSession)
	r.Post("/api/v1/sessions/{sessionID}/orders", svc.PlaceOrder)
	r.Get("/api/v1/sessions/{sessionID}/orders", svc.ListOrders)
	r.Get("/api/v1/sessions/{sessionID}/portfolio", svc.GetPortfolio)

	return ms, r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// newActiveSession creates and starts a session over HTTP, returning its ID.
func newActiveSession(t *testing.T, r chi.Router, balance float64) int64 {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/api/v1/sessions", trade.CreateSessionRequest{
		ChallengeID:    1,
		UserID:         42,
		InitialBalance: d(balance),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: got %d: %s", rec.Code, rec.Body.String())
	}
	var sess ledger.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	rec = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/start", sess.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start session: got %d: %s", rec.Code, rec.Body.String())
	}
	return sess.ID
}

func TestCreateSession(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/sessions", trade.CreateSessionRequest{
		ChallengeID:    7,
		UserID:         42,
		InitialBalance: d(1000000),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	var sess ledger.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.ID == 0 {
		t.Error("expected assigned session id")
	}
	if sess.Status != ledger.SessionReady {
		t.Errorf("status = %s, want READY", sess.Status)
	}
	if !sess.CurrentBalance.Equal(d(1000000)) {
		t.Errorf("current balance = %s, want 1000000", sess.CurrentBalance)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)

	cases := []struct {
		name string
		req  trade.CreateSessionRequest
	}{
		{"zero balance", trade.CreateSessionRequest{ChallengeID: 1, UserID: 1, InitialBalance: decimal.Zero}},
		{"negative balance", trade.CreateSessionRequest{ChallengeID: 1, UserID: 1, InitialBalance: d(-5)}},
		{"balance over ceiling", trade.CreateSessionRequest{ChallengeID: 1, UserID: 1, InitialBalance: d(100000001)}},
		{"missing challenge", trade.CreateSessionRequest{UserID: 1, InitialBalance: d(1000)}},
		{"missing user", trade.CreateSessionRequest{ChallengeID: 1, InitialBalance: d(1000)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, "/api/v1/sessions", tc.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("got %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateSessionOpenSessionGate(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)

	req := trade.CreateSessionRequest{ChallengeID: 1, UserID: 42, InitialBalance: d(1000)}

	rec := doJSON(t, r, http.MethodPost, "/api/v1/sessions", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create: got %d", rec.Code)
	}
	var sess ledger.Session
	json.Unmarshal(rec.Body.Bytes(), &sess)

	// A READY session blocks a second one on the same challenge.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/sessions", req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second create: got %d, want 409", rec.Code)
	}

	// A different challenge is unaffected.
	other := req
	other.ChallengeID = 2
	rec = doJSON(t, r, http.MethodPost, "/api/v1/sessions", other)
	if rec.Code != http.StatusCreated {
		t.Fatalf("other challenge: got %d, want 201", rec.Code)
	}

	// Cancelling frees the slot.
	rec = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/cancel", sess.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: got %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodPost, "/api/v1/sessions", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create after cancel: got %d, want 201", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)
	id := newActiveSession(t, r, 1000)

	rec := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/sessions/%d", id), nil)
	var sess ledger.Session
	json.Unmarshal(rec.Body.Bytes(), &sess)
	if sess.Status != ledger.SessionActive {
		t.Fatalf("status = %s, want ACTIVE", sess.Status)
	}
	if sess.StartedAt == nil {
		t.Error("expected started_at to be set")
	}

	// Starting twice is an illegal transition.
	rec = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/start", id), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("double start: got %d, want 409", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/end", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end: got %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &sess)
	if sess.Status != ledger.SessionCompleted {
		t.Errorf("status = %s, want COMPLETED", sess.Status)
	}
	if sess.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	rec = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/end", id), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("double end: got %d, want 409", rec.Code)
	}
	rec = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/cancel", id), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel after end: got %d, want 409", rec.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/sessions/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rec.Code)
	}
	rec = doJSON(t, r, http.MethodPost, "/api/v1/sessions/999/start", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("start: got %d, want 404", rec.Code)
	}
}

func TestPlaceOrderBuy(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)
	id := newActiveSession(t, r, 1000000)

	rec := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL",
		Side:          "BUY",
		Quantity:      d(10),
		OrderType:     "MARKET",
		MarketPrice:   dp(100),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	var resp trade.PlaceOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Order.Status != ledger.OrderExecuted {
		t.Errorf("order status = %s, want EXECUTED", resp.Order.Status)
	}
	// Zero slippage band: the fill is the market price unchanged.
	if resp.Order.ExecutedPrice == nil || !resp.Order.ExecutedPrice.Equal(d(100)) {
		t.Errorf("executed price = %v, want 100", resp.Order.ExecutedPrice)
	}
	if !resp.CashBalance.Equal(d(999000)) {
		t.Errorf("cash balance = %s, want 999000", resp.CashBalance)
	}
	if !resp.Position.Quantity.Equal(d(10)) {
		t.Errorf("position qty = %s, want 10", resp.Position.Quantity)
	}
	if !resp.Position.AveragePrice.Equal(d(100)) {
		t.Errorf("average price = %s, want 100", resp.Position.AveragePrice)
	}
	if !resp.Position.TotalCost.Equal(d(1000)) {
		t.Errorf("total cost = %s, want 1000", resp.Position.TotalCost)
	}
	if resp.RealizedPnL != nil {
		t.Errorf("buy must not realize pnl, got %s", resp.RealizedPnL)
	}
}

func TestPlaceOrderSellRealizesPnL(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)
	id := newActiveSession(t, r, 1000000)

	doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "BUY", Quantity: d(10), OrderType: "MARKET", MarketPrice: dp(100),
	})

	rec := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "SELL", Quantity: d(4), OrderType: "MARKET", MarketPrice: dp(150),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	var resp trade.PlaceOrderResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	// Realized = 4 × (150 − 100) = 200.
	if resp.RealizedPnL == nil || !resp.RealizedPnL.Equal(d(200)) {
		t.Errorf("realized pnl = %v, want 200", resp.RealizedPnL)
	}
	// Balance = 999000 + 4 × 150 = 999600.
	if !resp.CashBalance.Equal(d(999600)) {
		t.Errorf("cash balance = %s, want 999600", resp.CashBalance)
	}
	if !resp.Position.Quantity.Equal(d(6)) {
		t.Errorf("remaining qty = %s, want 6", resp.Position.Quantity)
	}
	// Selling never moves the average price.
	if !resp.Position.AveragePrice.Equal(d(100)) {
		t.Errorf("average price = %s, want 100", resp.Position.AveragePrice)
	}
}

func TestPlaceOrderAppliesSlippage(t *testing.T) {
	band, err := slippage.NewBand(d(2), d(2))
	if err != nil {
		t.Fatalf("band: %v", err)
	}
	_, r := newTestEnv(t, band, nil)
	id := newActiveSession(t, r, 1000000)

	rec := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "BUY", Quantity: d(1), OrderType: "MARKET", MarketPrice: dp(100000),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	var resp trade.PlaceOrderResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	// Fixed 2% band: buy fills at 100000 × 1.02 = 102000.00.
	if resp.Order.ExecutedPrice == nil || !resp.Order.ExecutedPrice.Equal(d(102000)) {
		t.Errorf("executed price = %v, want 102000", resp.Order.ExecutedPrice)
	}
	if resp.Order.SlippageRate == nil || !resp.Order.SlippageRate.Equal(d(2)) {
		t.Errorf("slippage rate = %v, want 2", resp.Order.SlippageRate)
	}
}

func TestPlaceOrderAdmission(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)
	id := newActiveSession(t, r, 1000)

	// 20 × 100 = 2000 exceeds the balance.
	rec := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "BUY", Quantity: d(20), OrderType: "MARKET", MarketPrice: dp(100),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("got %d, want 409: %s", rec.Code, rec.Body.String())
	}

	// Spending the entire balance is allowed, boundary inclusive.
	rec = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "BUY", Quantity: d(10), OrderType: "MARKET", MarketPrice: dp(100),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("full-balance buy: got %d: %s", rec.Code, rec.Body.String())
	}
	var resp trade.PlaceOrderResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.CashBalance.Equal(decimal.Zero) {
		t.Errorf("cash balance = %s, want 0", resp.CashBalance)
	}
}

func TestPlaceOrderSessionNotActive(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/sessions", trade.CreateSessionRequest{
		ChallengeID: 1, UserID: 42, InitialBalance: d(1000),
	})
	var sess ledger.Session
	json.Unmarshal(rec.Body.Bytes(), &sess)

	// READY session cannot trade.
	rec = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", sess.ID), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "BUY", Quantity: d(1), OrderType: "MARKET", MarketPrice: dp(100),
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("got %d, want 409", rec.Code)
	}
}

func TestPlaceOrderSellWithoutPosition(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)
	id := newActiveSession(t, r, 1000)

	rec := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "SELL", Quantity: d(1), OrderType: "MARKET", MarketPrice: dp(100),
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("got %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestPlaceOrderOversell(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)
	id := newActiveSession(t, r, 1000000)

	doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "BUY", Quantity: d(5), OrderType: "MARKET", MarketPrice: dp(100),
	})

	rec := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "SELL", Quantity: d(6), OrderType: "MARKET", MarketPrice: dp(100),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)
	id := newActiveSession(t, r, 1000)

	cases := []struct {
		name string
		req  trade.PlaceOrderRequest
	}{
		{"missing instrument", trade.PlaceOrderRequest{Side: "BUY", Quantity: d(1), OrderType: "MARKET", MarketPrice: dp(100)}},
		{"bad side", trade.PlaceOrderRequest{InstrumentKey: "AAPL", Side: "HOLD", Quantity: d(1), OrderType: "MARKET", MarketPrice: dp(100)}},
		{"zero quantity", trade.PlaceOrderRequest{InstrumentKey: "AAPL", Side: "BUY", Quantity: decimal.Zero, OrderType: "MARKET", MarketPrice: dp(100)}},
		{"negative quantity", trade.PlaceOrderRequest{InstrumentKey: "AAPL", Side: "BUY", Quantity: d(-1), OrderType: "MARKET", MarketPrice: dp(100)}},
		{"limit without price", trade.PlaceOrderRequest{InstrumentKey: "AAPL", Side: "BUY", Quantity: d(1), OrderType: "LIMIT", MarketPrice: dp(100)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), tc.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("got %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPlaceOrderRiskLimits(t *testing.T) {
	limiter := risk.NewLimiter(d(500), d(3))
	_, r := newTestEnv(t, slippage.Band{}, limiter)
	id := newActiveSession(t, r, 1000000)

	// Notional 10 × 100 = 1000 exceeds the 500 order value limit.
	rec := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "BUY", Quantity: d(10), OrderType: "MARKET", MarketPrice: dp(100),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("order value limit: got %d, want 409: %s", rec.Code, rec.Body.String())
	}

	doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "BUY", Quantity: d(2), OrderType: "MARKET", MarketPrice: dp(100),
	})

	// Held 2 + 2 more breaches the 3 share cap.
	rec = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "BUY", Quantity: d(2), OrderType: "MARKET", MarketPrice: dp(100),
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("position limit: got %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestListOrders(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)
	id := newActiveSession(t, r, 1000000)

	doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "BUY", Quantity: d(10), OrderType: "MARKET", MarketPrice: dp(100),
	})
	doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "SELL", Quantity: d(3), OrderType: "MARKET", MarketPrice: dp(110),
	})

	rec := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/sessions/%d/orders", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	var orders []ledger.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &orders); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("len = %d, want 2", len(orders))
	}
	// Oldest first.
	if orders[0].Side != ledger.Buy || orders[1].Side != ledger.Sell {
		t.Errorf("order history out of sequence: %s then %s", orders[0].Side, orders[1].Side)
	}
}

func TestGetPortfolio(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)
	id := newActiveSession(t, r, 1000000)

	// Buy 10 at 100; the quote feed prices AAPL at a fixed 120.
	doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "BUY", Quantity: d(10), OrderType: "MARKET", MarketPrice: dp(100),
	})

	rec := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/sessions/%d/portfolio", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	var resp trade.PortfolioResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(resp.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(resp.Positions))
	}
	p := resp.Positions[0]
	if !p.CurrentPrice.Equal(d(120)) {
		t.Errorf("current price = %s, want 120", p.CurrentPrice)
	}
	if !p.CurrentValue.Equal(d(1200)) {
		t.Errorf("current value = %s, want 1200", p.CurrentValue)
	}
	if !p.UnrealizedPnL.Equal(d(200)) {
		t.Errorf("unrealized pnl = %s, want 200", p.UnrealizedPnL)
	}
	if !resp.CashBalance.Equal(d(999000)) {
		t.Errorf("cash balance = %s, want 999000", resp.CashBalance)
	}
	if !resp.PortfolioValue.Equal(d(1200)) {
		t.Errorf("portfolio value = %s, want 1200", resp.PortfolioValue)
	}
	// Total P&L = 999000 + 1200 − 1000000 = 200.
	if !resp.TotalPnL.Equal(d(200)) {
		t.Errorf("total pnl = %s, want 200", resp.TotalPnL)
	}
	// Return = 200 / 1000000 × 100 = 0.02%.
	if !resp.ReturnPercentage.Equal(d(0.02)) {
		t.Errorf("return = %s, want 0.02", resp.ReturnPercentage)
	}
}

func TestGetPortfolioExcludesLiquidated(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)
	id := newActiveSession(t, r, 1000000)

	doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "BUY", Quantity: d(10), OrderType: "MARKET", MarketPrice: dp(100),
	})
	doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/orders", id), trade.PlaceOrderRequest{
		InstrumentKey: "AAPL", Side: "SELL", Quantity: d(10), OrderType: "MARKET", MarketPrice: dp(100),
	})

	rec := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/sessions/%d/portfolio", id), nil)
	var resp trade.PortfolioResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	if len(resp.Positions) != 0 {
		t.Errorf("positions = %d, want 0 after full liquidation", len(resp.Positions))
	}
	if !resp.PortfolioValue.Equal(decimal.Zero) {
		t.Errorf("portfolio value = %s, want 0", resp.PortfolioValue)
	}
}

func TestListSessions(t *testing.T) {
	_, r := newTestEnv(t, slippage.Band{}, nil)

	doJSON(t, r, http.MethodPost, "/api/v1/sessions", trade.CreateSessionRequest{ChallengeID: 1, UserID: 42, InitialBalance: d(1000)})
	doJSON(t, r, http.MethodPost, "/api/v1/sessions", trade.CreateSessionRequest{ChallengeID: 2, UserID: 42, InitialBalance: d(2000)})
	doJSON(t, r, http.MethodPost, "/api/v1/sessions", trade.CreateSessionRequest{ChallengeID: 1, UserID: 7, InitialBalance: d(3000)})

	rec := doJSON(t, r, http.MethodGet, "/api/v1/sessions?user_id=42", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	var sessions []ledger.Session
	json.Unmarshal(rec.Body.Bytes(), &sessions)
	if len(sessions) != 2 {
		t.Errorf("len = %d, want 2", len(sessions))
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/sessions", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id: got %d, want 400", rec.Code)
	}
}
