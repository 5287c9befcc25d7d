// Package trader enforces the single-direction-per-symbol guard and the
// protective-triple (entry + stop-loss + take-profit) execution contract
// against the exchange adapter.
package trader

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rdone4425/trading-ai/internal/domain"
	"github.com/rdone4425/trading-ai/internal/exchange"
	"github.com/rdone4425/trading-ai/internal/logx"
)

// ActivePosition is the in-memory record of one open position. The cache
// is authoritative for blocking duplicate opens; the exchange is
// authoritative for confirming existing positions. Both must agree to
// open; either is sufficient to block.
//
// TradeID identifies the position across the trader/ledger boundary
// independent of exchange order IDs, which are only assigned once each
// leg of the protective triple is accepted.
type ActivePosition struct {
	TradeID           string
	PositionSide      string
	EntryOrderID      int64
	StopLossOrderID   int64
	TakeProfitOrderID int64
	Quantity          float64
	EntryTime         time.Time

	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	// ExtremePrice tracks the most favorable price seen since entry
	// (highest for LONG, lowest for SHORT); the trailing adjuster anchors
	// on it.
	ExtremePrice float64
}

// Config bounds ExecuteTrade's preconditions.
type Config struct {
	ConfidenceThreshold float64
	DefaultLeverage     int
	MaxLeverage         int
	MaxLossPerTrade     float64 // fraction of balance
	MaxPositionSize     float64 // fraction of balance, notional
	Observe             bool    // observation mode disables all order placement

	// StopStrategy selects the post-entry stop-loss adjuster: "fixed"
	// (default, never moved), "breakeven", or "trailing". Whatever the
	// strategy, a stop only ever tightens.
	StopStrategy string
	// TrailingPercent is the trailing distance from the extreme price, in
	// percent (e.g. 1.5 = 1.5%).
	TrailingPercent float64
	// StopChangeThresholdPct skips stop replacements smaller than this
	// percent of the old stop, to avoid churning orders.
	StopChangeThresholdPct float64
}

// Trader guards and executes trades for a single exchange account.
type Trader struct {
	client *exchange.Client
	cfg    Config
	log    *logx.ColorLogger

	mu    sync.Mutex
	cache map[string]*ActivePosition
}

// New constructs a Trader.
func New(client *exchange.Client, cfg Config, log *logx.ColorLogger) *Trader {
	return &Trader{client: client, cfg: cfg, log: log, cache: map[string]*ActivePosition{}}
}

// Result is the outcome of ExecuteTrade.
type Result struct {
	Success           bool
	Message           string
	TradeID           string
	EntryOrderID      int64
	StopLossOrderID   int64
	TakeProfitOrderID int64
	Price             float64
	Quantity          float64
	CompensatingClose bool
}

func sideForAction(a domain.Action) (orderSide, positionSide string, ok bool) {
	switch a {
	case domain.ActionLong:
		return "BUY", "LONG", true
	case domain.ActionShort:
		return "SELL", "SHORT", true
	}
	return "", "", false
}

func closeSideFor(positionSide string) string {
	if positionSide == "LONG" {
		return "SELL"
	}
	return "BUY"
}

// hasPosition double-checks both the in-memory cache and the exchange.
// Either source being non-empty is sufficient to block a new open.
func (t *Trader) hasPosition(ctx context.Context, symbol string) (bool, error) {
	t.mu.Lock()
	_, cached := t.cache[symbol]
	t.mu.Unlock()
	if cached {
		return true, nil
	}

	positions, err := t.client.GetPosition(ctx, symbol)
	if err != nil {
		return false, err
	}
	return len(positions) > 0, nil
}

// ExecuteTrade validates an analysis result and, if it passes every
// precondition, places the entry+SL+TP protective triple.
func (t *Trader) ExecuteTrade(ctx context.Context, a domain.Analysis, balance float64) (*Result, error) {
	if t.cfg.Observe {
		return &Result{Success: false, Message: "observation mode: no orders placed"}, nil
	}

	if a.Symbol == "" || !strings.HasSuffix(a.Symbol, "USDT") {
		return &Result{Success: false, Message: "invalid symbol"}, nil
	}
	if a.Action == domain.ActionObserve {
		return &Result{Success: false, Message: "action is observe, nothing to execute"}, nil
	}
	if a.Confidence < t.cfg.ConfidenceThreshold {
		return &Result{Success: false, Message: "confidence below threshold"}, nil
	}

	orderSide, positionSide, ok := sideForAction(a.Action)
	if !ok {
		return &Result{Success: false, Message: "unrecognized action"}, nil
	}

	// Double-check pattern: repeat the has-position check once before
	// sending the entry order.
	for i := 0; i < 2; i++ {
		has, err := t.hasPosition(ctx, a.Symbol)
		if err != nil {
			return nil, fmt.Errorf("trader: position check: %w", err)
		}
		if has {
			return &Result{Success: false, Message: fmt.Sprintf("%s already has position", a.Symbol)}, nil
		}
	}

	if !priceOrderingValid(a) {
		return &Result{Success: false, Message: "price-ordering invariant violated"}, nil
	}
	if !isFinitePositive(a.Entry) || !isFinitePositive(a.StopLoss) || !isFinitePositive(a.TakeProfit) {
		return &Result{Success: false, Message: "non-finite price in analysis"}, nil
	}

	leverage := a.Leverage
	if leverage < 1 || leverage > 125 {
		leverage = t.cfg.DefaultLeverage
	}

	margin := a.Entry * a.PositionSize / float64(leverage)
	if margin > balance*0.95 {
		return &Result{Success: false, Message: "required margin exceeds 95% of balance"}, nil
	}

	qty := a.PositionSize
	lossDist := math.Abs(a.Entry - a.StopLoss)
	potentialLoss := lossDist * qty
	notional := a.Entry * qty
	if potentialLoss > t.cfg.MaxLossPerTrade*balance || notional > t.cfg.MaxPositionSize*balance {
		qty *= 0.99
	}

	if t.log != nil {
		t.log.PositionInfo(fmt.Sprintf(
			"交易对: %s  方向: %s\n入场价: %.6f  止损: %.6f  止盈: %.6f\n数量: %.6f  杠杆: %dx  保证金: %.2f  盈亏比: %.2f",
			a.Symbol, positionSide, a.Entry, a.StopLoss, a.TakeProfit,
			qty, leverage, margin, a.RiskReward))
	}

	// Step 1: leverage + isolated margin, best-effort.
	if err := t.client.SetLeverage(ctx, a.Symbol, leverage); err != nil {
		t.logWarn(fmt.Sprintf("setLeverage(%s): %v", a.Symbol, err))
	}
	if err := t.client.SetMarginType(ctx, a.Symbol, exchange.Isolated); err != nil {
		t.logWarn(fmt.Sprintf("setMarginType(%s): %v", a.Symbol, err))
	}

	// Step 2: MARKET entry.
	entryOrder, err := t.client.PlaceFuturesOrder(ctx, exchange.OrderRequest{
		Symbol: a.Symbol, Side: orderSide, PositionSide: positionSide,
		Type: "MARKET", Quantity: qty,
	})
	if err != nil {
		return nil, fmt.Errorf("trader: entry order failed: %w", err)
	}

	entryPrice := entryOrder.AvgPrice
	if entryPrice == 0 {
		entryPrice = a.Entry
	}

	// Step 3: STOP_MARKET close. On failure, compensate with a market
	// close of the position we just opened.
	closeSide := closeSideFor(positionSide)
	slOrder, err := t.client.PlaceFuturesOrder(ctx, exchange.OrderRequest{
		Symbol: a.Symbol, Side: closeSide, PositionSide: positionSide,
		Type: "STOP_MARKET", StopPrice: a.StopLoss, ClosePosition: true,
	})
	if err != nil {
		_, closeErr := t.client.PlaceFuturesOrder(ctx, exchange.OrderRequest{
			Symbol: a.Symbol, Side: closeSide, PositionSide: positionSide,
			Type: "MARKET", ClosePosition: true,
		})
		if closeErr != nil {
			return nil, fmt.Errorf("trader: stop-loss placement failed (%v) and compensating close also failed (%v)", err, closeErr)
		}
		return &Result{
			Success: false, Message: fmt.Sprintf("stop-loss placement failed, position closed: %v", err),
			CompensatingClose: true, Price: entryPrice, Quantity: qty,
		}, nil
	}

	// Step 4: TAKE_PROFIT_MARKET close. Tolerated on failure: the position
	// is still protected by the resting stop-loss.
	var tpOrderID int64
	tpOrder, err := t.client.PlaceFuturesOrder(ctx, exchange.OrderRequest{
		Symbol: a.Symbol, Side: closeSide, PositionSide: positionSide,
		Type: "TAKE_PROFIT_MARKET", StopPrice: a.TakeProfit, ClosePosition: true,
	})
	message := "trade executed"
	if err != nil {
		t.logWarn(fmt.Sprintf("take-profit placement failed for %s, position remains protected by stop-loss: %v", a.Symbol, err))
		message = fmt.Sprintf("trade executed, take-profit placement failed: %v", err)
	} else {
		tpOrderID = tpOrder.OrderID
	}

	// Step 5: update cache after the exchange has accepted the entry.
	tradeID := uuid.NewString()
	t.mu.Lock()
	t.cache[a.Symbol] = &ActivePosition{
		TradeID: tradeID, PositionSide: positionSide, EntryOrderID: entryOrder.OrderID,
		StopLossOrderID: slOrder.OrderID, TakeProfitOrderID: tpOrderID,
		Quantity: qty, EntryTime: time.Now(),
		EntryPrice: entryPrice, StopLoss: a.StopLoss, TakeProfit: a.TakeProfit,
		ExtremePrice: entryPrice,
	}
	t.mu.Unlock()

	return &Result{
		Success: true, Message: message, TradeID: tradeID,
		EntryOrderID: entryOrder.OrderID, StopLossOrderID: slOrder.OrderID, TakeProfitOrderID: tpOrderID,
		Price: entryPrice, Quantity: qty,
	}, nil
}

// ClosePosition issues a market close, cancels tracked SL/TP orders (or
// cancels everything as a safety net if the IDs are missing), and evicts
// the symbol from the active cache.
func (t *Trader) ClosePosition(ctx context.Context, symbol string) error {
	t.mu.Lock()
	pos, ok := t.cache[symbol]
	t.mu.Unlock()

	positions, err := t.client.GetPosition(ctx, symbol)
	if err != nil {
		return fmt.Errorf("trader: get position for close: %w", err)
	}
	for _, p := range positions {
		side := "SELL"
		if p.PositionAmt < 0 {
			side = "BUY"
		}
		if _, err := t.client.PlaceFuturesOrder(ctx, exchange.OrderRequest{
			Symbol: symbol, Side: side, PositionSide: p.PositionSide,
			Type: "MARKET", ClosePosition: true,
		}); err != nil {
			return fmt.Errorf("trader: market close failed: %w", err)
		}
	}

	if ok && (pos.StopLossOrderID != 0 || pos.TakeProfitOrderID != 0) {
		if pos.StopLossOrderID != 0 {
			_ = t.client.CancelOrder(ctx, symbol, pos.StopLossOrderID)
		}
		if pos.TakeProfitOrderID != 0 {
			_ = t.client.CancelOrder(ctx, symbol, pos.TakeProfitOrderID)
		}
	} else {
		_ = t.client.CancelAllOrders(ctx, symbol)
	}

	t.mu.Lock()
	delete(t.cache, symbol)
	t.mu.Unlock()
	return nil
}

// Reconcile seeds the in-memory cache from the exchange's view of open
// positions after a process restart. The single-direction invariant makes
// this safe: whatever the exchange reports is authoritative.
func (t *Trader) Reconcile(ctx context.Context) error {
	positions, err := t.client.GetPosition(ctx, "")
	if err != nil {
		return fmt.Errorf("trader: reconcile: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range positions {
		t.cache[p.Symbol] = &ActivePosition{
			TradeID:      uuid.NewString(),
			PositionSide: p.PositionSide,
			Quantity:     math.Abs(p.PositionAmt),
			EntryTime:    time.Now(),
			EntryPrice:   p.EntryPrice,
			ExtremePrice: p.MarkPrice,
		}
	}
	return nil
}

func (t *Trader) logWarn(msg string) {
	if t.log != nil {
		t.log.Warning(msg)
	}
}

func isFinitePositive(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0
}

func priceOrderingValid(a domain.Analysis) bool {
	switch a.Action {
	case domain.ActionLong:
		return a.StopLoss < a.Entry && a.Entry < a.TakeProfit
	case domain.ActionShort:
		return a.TakeProfit < a.Entry && a.Entry < a.StopLoss
	}
	return false
}
