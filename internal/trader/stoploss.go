package trader

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rdone4425/trading-ai/internal/exchange"
)

// Stop-loss strategies. Fixed leaves the entry-time stop untouched;
// breakeven moves the stop to the entry price once the trade is one full
// risk unit in profit; trailing follows the extreme price at a fixed
// percent distance. Under every strategy a stop only ever tightens.
const (
	StopFixed     = "fixed"
	StopBreakeven = "breakeven"
	StopTrailing  = "trailing"
)

// isUnknownOrder reports whether err is the exchange telling us the order
// is already gone (filled or previously cancelled).
func isUnknownOrder(err error) bool {
	apiErr, ok := err.(*exchange.APIError)
	if !ok {
		return false
	}
	if apiErr.Code == -2011 { // binance-compatible: unknown order sent
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "unknown order") || strings.Contains(msg, "does not exist")
}

// UpdateStopLoss replaces the resting stop-loss order for symbol with one
// at newStop. Loosening is rejected: a long stop may only move up, a short
// stop only down. Changes below the configured threshold are skipped to
// avoid order churn. The old order is cancelled before the new one is
// placed so the position never carries two stops.
func (t *Trader) UpdateStopLoss(ctx context.Context, symbol string, newStop float64, reason string) error {
	t.mu.Lock()
	pos, ok := t.cache[symbol]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("trader: no active position for %s", symbol)
	}

	oldStop := pos.StopLoss
	if oldStop > 0 {
		if pos.PositionSide == "LONG" && newStop < oldStop {
			return fmt.Errorf("trader: long stop may only move up (%.6f -> %.6f)", oldStop, newStop)
		}
		if pos.PositionSide == "SHORT" && newStop > oldStop {
			return fmt.Errorf("trader: short stop may only move down (%.6f -> %.6f)", oldStop, newStop)
		}

		// The default threshold comes from config loading; zero here means
		// the operator disabled churn protection and every tightening is
		// applied.
		threshold := t.cfg.StopChangeThresholdPct
		changePct := math.Abs(newStop-oldStop) / oldStop * 100
		if threshold > 0 && changePct < threshold {
			if t.log != nil {
				t.log.Debug(fmt.Sprintf("stop change for %s below threshold (%.4f%% < %.2f%%), skipped", symbol, changePct, threshold))
			}
			return nil
		}
	}

	if pos.StopLossOrderID != 0 {
		if err := t.client.CancelOrder(ctx, symbol, pos.StopLossOrderID); err != nil && !isUnknownOrder(err) {
			return fmt.Errorf("trader: cancel old stop order: %w", err)
		}
		// The old order is gone either way; forget its id now so a failed
		// replacement below doesn't leave us retrying a cancel of an order
		// that no longer exists.
		t.mu.Lock()
		pos.StopLossOrderID = 0
		t.mu.Unlock()
	}

	placeStop := func(price float64) (*exchange.OrderResult, error) {
		return t.client.PlaceFuturesOrder(ctx, exchange.OrderRequest{
			Symbol: symbol, Side: closeSideFor(pos.PositionSide), PositionSide: pos.PositionSide,
			Type: "STOP_MARKET", StopPrice: price, ClosePosition: true,
		})
	}

	order, err := placeStop(newStop)
	if err != nil {
		// The old stop is already cancelled; the position must not sit
		// unprotected. Restore protection at the old level before
		// surfacing the failure.
		if oldStop > 0 {
			if restored, restoreErr := placeStop(oldStop); restoreErr == nil {
				t.mu.Lock()
				pos.StopLossOrderID = restored.OrderID
				t.mu.Unlock()
				return fmt.Errorf("trader: place replacement stop order (old stop restored): %w", err)
			}
		}
		return fmt.Errorf("trader: place replacement stop order, position currently has no stop: %w", err)
	}

	t.mu.Lock()
	pos.StopLoss = newStop
	pos.StopLossOrderID = order.OrderID
	t.mu.Unlock()

	if t.log != nil {
		t.log.Info(fmt.Sprintf("stop-loss for %s moved %.6f -> %.6f (%s)", symbol, oldStop, newStop, reason))
	}
	return nil
}

// AdjustProtectiveStops walks every cached position, reconciles entries
// whose position already closed server-side, refreshes the extreme price
// from the exchange mark price, and applies the configured stop strategy.
// The reconciliation half runs under every strategy — without it a fired
// stop leaves a stale cache entry that blocks the symbol until restart.
// Best-effort: a failure on one symbol is logged and the sweep continues.
func (t *Trader) AdjustProtectiveStops(ctx context.Context) {
	strategy := t.cfg.StopStrategy
	if strategy == "" {
		strategy = StopFixed
	}

	t.mu.Lock()
	symbols := make([]string, 0, len(t.cache))
	for s := range t.cache {
		symbols = append(symbols, s)
	}
	t.mu.Unlock()
	if len(symbols) == 0 {
		return
	}

	// One unfiltered position read covers every cached symbol; a
	// per-symbol signed request would cost N times the API weight.
	positions, err := t.client.GetPosition(ctx, "")
	if err != nil {
		t.logWarn(fmt.Sprintf("stop adjust: position read: %v", err))
		return
	}
	open := make(map[string]exchange.PositionRisk, len(positions))
	for _, p := range positions {
		open[p.Symbol] = p
	}

	for _, sym := range symbols {
		if err := t.adjustOne(ctx, sym, strategy, open); err != nil {
			t.logWarn(fmt.Sprintf("stop adjust(%s): %v", sym, err))
		}
	}
}

func (t *Trader) adjustOne(ctx context.Context, symbol, strategy string, open map[string]exchange.PositionRisk) error {
	onExchange, stillOpen := open[symbol]
	if !stillOpen {
		// The stop or take-profit fired server-side. Cancel the surviving
		// sibling order before dropping the entry, or it would close a
		// future position on this symbol at a trigger computed for the
		// previous trade. The entry is only evicted once the cancels
		// succeed, so a transient cancel failure is retried next sweep.
		t.mu.Lock()
		pos, ok := t.cache[symbol]
		var slID, tpID int64
		if ok {
			slID, tpID = pos.StopLossOrderID, pos.TakeProfitOrderID
		}
		t.mu.Unlock()
		if !ok {
			return nil
		}

		if slID != 0 || tpID != 0 {
			if slID != 0 {
				if err := t.client.CancelOrder(ctx, symbol, slID); err != nil && !isUnknownOrder(err) {
					return fmt.Errorf("cancel surviving stop order: %w", err)
				}
			}
			if tpID != 0 {
				if err := t.client.CancelOrder(ctx, symbol, tpID); err != nil && !isUnknownOrder(err) {
					return fmt.Errorf("cancel surviving take-profit order: %w", err)
				}
			}
		} else if err := t.client.CancelAllOrders(ctx, symbol); err != nil {
			return fmt.Errorf("cancel open orders: %w", err)
		}

		t.mu.Lock()
		delete(t.cache, symbol)
		t.mu.Unlock()
		return nil
	}
	mark := onExchange.MarkPrice
	if strategy == StopFixed {
		return nil
	}

	t.mu.Lock()
	pos, ok := t.cache[symbol]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	long := pos.PositionSide == "LONG"
	if long && mark > pos.ExtremePrice {
		pos.ExtremePrice = mark
	}
	if !long && (pos.ExtremePrice == 0 || mark < pos.ExtremePrice) {
		pos.ExtremePrice = mark
	}
	entry, stop, extreme := pos.EntryPrice, pos.StopLoss, pos.ExtremePrice
	slOrderID := pos.StopLossOrderID
	t.mu.Unlock()

	if entry <= 0 || stop <= 0 {
		return nil // reconciled position with no known stop to tighten
	}

	// A position that lost its resting stop (replacement and restore both
	// failed on an earlier sweep) gets protection back before any strategy
	// logic — an open position must never sit unprotected just because no
	// fresh tightening target happens to fire.
	if slOrderID == 0 {
		order, err := t.client.PlaceFuturesOrder(ctx, exchange.OrderRequest{
			Symbol: symbol, Side: closeSideFor(pos.PositionSide), PositionSide: pos.PositionSide,
			Type: "STOP_MARKET", StopPrice: stop, ClosePosition: true,
		})
		if err != nil {
			return fmt.Errorf("re-place missing stop order: %w", err)
		}
		t.mu.Lock()
		pos.StopLossOrderID = order.OrderID
		t.mu.Unlock()
	}

	var target float64
	switch strategy {
	case StopBreakeven:
		riskDist := math.Abs(entry - stop)
		if long && mark >= entry+riskDist && stop < entry {
			target = entry
		}
		if !long && mark <= entry-riskDist && stop > entry {
			target = entry
		}
	case StopTrailing:
		pct := t.cfg.TrailingPercent
		if pct <= 0 {
			return nil
		}
		if long {
			candidate := extreme * (1 - pct/100)
			if candidate > stop && candidate < mark {
				target = candidate
			}
		} else {
			candidate := extreme * (1 + pct/100)
			if candidate < stop && candidate > mark {
				target = candidate
			}
		}
	default:
		return nil
	}

	if target == 0 {
		return nil
	}
	return t.UpdateStopLoss(ctx, symbol, target, strategy)
}
