package trader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rdone4425/trading-ai/internal/domain"
	"github.com/rdone4425/trading-ai/internal/exchange"
)

// fakeExchange serves a minimal binance-compatible futures API: every
// order placement succeeds, positions start empty, leverage/margin calls
// are no-ops. Tests mutate behavior per-field to exercise failure paths.
type fakeExchange struct {
	orderIDs       int64
	failStopLoss   bool
	failTakeProfit bool
	failCancel     bool
	positions      []map[string]interface{}
}

func (f *fakeExchange) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/fapi/v1/exchangeInfo":
			json.NewEncoder(w).Encode(map[string]interface{}{"symbols": []interface{}{}})
		case r.URL.Path == "/fapi/v2/positionRisk":
			json.NewEncoder(w).Encode(f.positions)
		case r.URL.Path == "/fapi/v1/leverage", r.URL.Path == "/fapi/v1/marginType":
			json.NewEncoder(w).Encode(map[string]interface{}{})
		case r.URL.Path == "/fapi/v1/order" && r.Method == http.MethodPost:
			orderType := r.URL.Query().Get("type")
			if orderType == "STOP_MARKET" && f.failStopLoss {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]interface{}{"code": -2021, "msg": "order would immediately trigger"})
				return
			}
			if orderType == "TAKE_PROFIT_MARKET" && f.failTakeProfit {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]interface{}{"code": -2021, "msg": "order would immediately trigger"})
				return
			}
			f.orderIDs++
			json.NewEncoder(w).Encode(map[string]interface{}{
				"orderId": f.orderIDs, "symbol": r.URL.Query().Get("symbol"),
				"side": r.URL.Query().Get("side"), "type": orderType, "status": "FILLED",
				"avgPrice": "50000", "executedQty": r.URL.Query().Get("quantity"),
			})
		case r.URL.Path == "/fapi/v1/order" && r.Method == http.MethodDelete:
			if f.failCancel {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]interface{}{"code": -1001, "msg": "internal error"})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{})
		case r.URL.Path == "/fapi/v1/allOpenOrders" && r.Method == http.MethodDelete:
			json.NewEncoder(w).Encode(map[string]interface{}{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestClient(t *testing.T, fx *fakeExchange) *exchange.Client {
	t.Helper()
	srv := httptest.NewServer(fx.handler())
	t.Cleanup(srv.Close)
	c, err := exchange.New(context.Background(), exchange.Config{BaseURL: srv.URL, APIKey: "k", APISecret: "s"}, nil)
	if err != nil {
		t.Fatalf("exchange.New: %v", err)
	}
	return c
}

func validLongAnalysis() domain.Analysis {
	return domain.Analysis{
		Symbol: "BTCUSDT", Action: domain.ActionLong, Confidence: 0.8,
		Entry: 50000, StopLoss: 49000, TakeProfit: 52000,
		Leverage: 5, PositionSize: 0.01,
	}
}

func TestExecuteTradePlacesProtectiveTriple(t *testing.T) {
	fx := &fakeExchange{}
	client := newTestClient(t, fx)
	tr := New(client, Config{ConfidenceThreshold: 0.5, DefaultLeverage: 5, MaxLeverage: 20, MaxLossPerTrade: 0.05, MaxPositionSize: 0.5}, nil)

	res, err := tr.ExecuteTrade(context.Background(), validLongAnalysis(), 10000)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}
	if res.TradeID == "" {
		t.Error("expected a non-empty TradeID")
	}
	if res.EntryOrderID == 0 || res.StopLossOrderID == 0 || res.TakeProfitOrderID == 0 {
		t.Errorf("expected all three legs to carry an order id, got %+v", res)
	}
}

func TestExecuteTradeObserveModeSkipsOrders(t *testing.T) {
	fx := &fakeExchange{}
	client := newTestClient(t, fx)
	tr := New(client, Config{Observe: true}, nil)

	res, err := tr.ExecuteTrade(context.Background(), validLongAnalysis(), 10000)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if res.Success {
		t.Error("observation mode must never report success")
	}
	if fx.orderIDs != 0 {
		t.Errorf("observation mode placed %d orders, want 0", fx.orderIDs)
	}
}

func TestExecuteTradeBlocksDuplicatePosition(t *testing.T) {
	fx := &fakeExchange{positions: []map[string]interface{}{
		{"symbol": "BTCUSDT", "positionAmt": "0.01", "entryPrice": "50000", "markPrice": "50000", "unRealizedProfit": "0", "leverage": "5", "positionSide": "LONG"},
	}}
	client := newTestClient(t, fx)
	tr := New(client, Config{ConfidenceThreshold: 0.5, MaxLeverage: 20, MaxLossPerTrade: 0.05, MaxPositionSize: 0.5}, nil)

	res, err := tr.ExecuteTrade(context.Background(), validLongAnalysis(), 10000)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if res.Success {
		t.Error("expected blocked trade for a symbol with an existing position")
	}
}

func TestExecuteTradeCompensatesOnStopLossFailure(t *testing.T) {
	fx := &fakeExchange{failStopLoss: true}
	client := newTestClient(t, fx)
	tr := New(client, Config{ConfidenceThreshold: 0.5, MaxLeverage: 20, MaxLossPerTrade: 0.05, MaxPositionSize: 0.5}, nil)

	res, err := tr.ExecuteTrade(context.Background(), validLongAnalysis(), 10000)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if res.Success || !res.CompensatingClose {
		t.Errorf("expected a compensating close result, got %+v", res)
	}
}

func TestExecuteTradeToleratesTakeProfitFailure(t *testing.T) {
	fx := &fakeExchange{failTakeProfit: true}
	client := newTestClient(t, fx)
	tr := New(client, Config{ConfidenceThreshold: 0.5, MaxLeverage: 20, MaxLossPerTrade: 0.05, MaxPositionSize: 0.5}, nil)

	res, err := tr.ExecuteTrade(context.Background(), validLongAnalysis(), 10000)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if !res.Success {
		t.Errorf("take-profit failure should still leave the trade protected by the stop-loss: %+v", res)
	}
	if res.TakeProfitOrderID != 0 {
		t.Errorf("expected zero take-profit order id on failure, got %d", res.TakeProfitOrderID)
	}
}

func TestExecuteTradeRejectsLowConfidence(t *testing.T) {
	fx := &fakeExchange{}
	client := newTestClient(t, fx)
	tr := New(client, Config{ConfidenceThreshold: 0.9}, nil)

	a := validLongAnalysis()
	a.Confidence = 0.3
	res, err := tr.ExecuteTrade(context.Background(), a, 10000)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if res.Success {
		t.Error("expected low-confidence call to be rejected")
	}
}

func TestExecuteTradeRejectsBadPriceOrdering(t *testing.T) {
	fx := &fakeExchange{}
	client := newTestClient(t, fx)
	tr := New(client, Config{ConfidenceThreshold: 0.5}, nil)

	a := validLongAnalysis()
	a.StopLoss = 51000 // above entry for a long: invalid ordering
	res, err := tr.ExecuteTrade(context.Background(), a, 10000)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if res.Success {
		t.Error("expected price-ordering invariant violation to be rejected")
	}
}

func TestClosePositionEvictsCache(t *testing.T) {
	fx := &fakeExchange{positions: []map[string]interface{}{
		{"symbol": "BTCUSDT", "positionAmt": "0.01", "entryPrice": "50000", "markPrice": "50000", "unRealizedProfit": "0", "leverage": "5", "positionSide": "LONG"},
	}}
	client := newTestClient(t, fx)
	tr := New(client, Config{ConfidenceThreshold: 0.5, MaxLeverage: 20, MaxLossPerTrade: 0.05, MaxPositionSize: 0.5}, nil)
	tr.cache["BTCUSDT"] = &ActivePosition{TradeID: "seed", PositionSide: "LONG"}

	if err := tr.ClosePosition(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	tr.mu.Lock()
	_, ok := tr.cache["BTCUSDT"]
	tr.mu.Unlock()
	if ok {
		t.Error("expected symbol evicted from cache after close")
	}
}

func TestReconcileSeedsCacheFromExchange(t *testing.T) {
	fx := &fakeExchange{positions: []map[string]interface{}{
		{"symbol": "ETHUSDT", "positionAmt": "-2.5", "entryPrice": "3000", "markPrice": "3000", "unRealizedProfit": "0", "leverage": "10", "positionSide": "SHORT"},
	}}
	client := newTestClient(t, fx)
	tr := New(client, Config{}, nil)

	if err := tr.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	tr.mu.Lock()
	pos, ok := tr.cache["ETHUSDT"]
	tr.mu.Unlock()
	if !ok {
		t.Fatal("expected ETHUSDT seeded into cache")
	}
	if pos.TradeID == "" {
		t.Error("expected reconciled position to carry a generated TradeID")
	}
	if pos.Quantity != 2.5 {
		t.Errorf("quantity = %f, want 2.5 (absolute value)", pos.Quantity)
	}
}
