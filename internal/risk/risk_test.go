package risk

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestScenarioSingleBuyTriple(t *testing.T) {
	balance := 10000.0
	atr := 100.0
	entry := 50000.0
	riskPct := 0.01
	rr := 2.0
	maxLev := 10

	sl := StopLoss(entry, atr, 2.0, Long)
	if !almostEqual(sl, 49800, 1e-9) {
		t.Errorf("stopLoss = %f, want 49800", sl)
	}
	tp := TakeProfit(entry, sl, rr, Long)
	if !almostEqual(tp, 50400, 1e-9) {
		t.Errorf("takeProfit = %f, want 50400", tp)
	}
	lev := Leverage(entry, sl, maxLev)
	if lev < 1 || lev > maxLev {
		t.Errorf("leverage = %d out of [1,%d]", lev, maxLev)
	}
	qty := PositionSize(balance, riskPct, entry, sl, lev)
	if !almostEqual(qty, 0.5, 1e-9) {
		t.Errorf("qty = %f, want 0.5", qty)
	}
}

func TestPriceOrderingShortSide(t *testing.T) {
	entry := 50000.0
	atr := 100.0
	sl := StopLoss(entry, atr, 2.0, Short)
	if sl <= entry {
		t.Errorf("short stop-loss %f should be above entry %f", sl, entry)
	}
	tp := TakeProfit(entry, sl, 2.0, Short)
	if tp >= entry {
		t.Errorf("short take-profit %f should be below entry %f", tp, entry)
	}
	if !(tp < entry && entry < sl) {
		t.Errorf("price-ordering invariant violated for short: tp=%f entry=%f sl=%f", tp, entry, sl)
	}
}

func TestLeverageClampedToMax(t *testing.T) {
	lev := Leverage(50000, 49000, 5)
	if lev > 5 || lev < 1 {
		t.Errorf("leverage %d out of bounds [1,5]", lev)
	}
}

func TestPositionSizeCappedByMargin(t *testing.T) {
	qty := PositionSize(100, 0.5, 50000, 49999, 1)
	margin := 50000 * qty / 1
	if margin > 100+1e-6 {
		t.Errorf("required margin %f exceeds balance 100", margin)
	}
}
