// Package risk implements the pure arithmetic that turns an advisor's
// directional call into concrete stop-loss, take-profit, leverage, and
// position-size numbers.
package risk

import "math"

// Side is the direction of a trade.
type Side int

const (
	Long Side = iota
	Short
)

// DefaultATRFraction is the fallback ATR estimate (2% of entry) used when
// the indicator set carries no ATR value.
const DefaultATRFraction = 0.02

// EstimateATR returns the fallback ATR when the real one is unavailable.
func EstimateATR(entry float64) float64 {
	return DefaultATRFraction * entry
}

// StopLoss computes entry ∓ k·atr, clamped to >= 0.
func StopLoss(entry, atr, k float64, side Side) float64 {
	var sl float64
	if side == Long {
		sl = entry - k*atr
	} else {
		sl = entry + k*atr
	}
	if sl < 0 {
		sl = 0
	}
	return sl
}

// TakeProfit computes entry ± rr·|entry-stop|, clamped to >= 0.
func TakeProfit(entry, stop, rr float64, side Side) float64 {
	dist := math.Abs(entry - stop)
	var tp float64
	if side == Long {
		tp = entry + rr*dist
	} else {
		tp = entry - rr*dist
	}
	if tp < 0 {
		tp = 0
	}
	return tp
}

// PositionSize returns riskAmount/stopDistance (coin quantity), capped so
// that required margin (entry*qty/lev) never exceeds balance.
func PositionSize(balance, riskPct, entry, stop float64, lev int) float64 {
	stopDist := math.Abs(entry - stop)
	if stopDist <= 0 || entry <= 0 || lev <= 0 {
		return 0
	}
	riskAmount := balance * riskPct
	qty := riskAmount / stopDist

	maxQtyByMargin := balance * float64(lev) / entry
	if qty > maxQtyByMargin {
		qty = maxQtyByMargin
	}
	return qty
}

// Leverage implements the fractional-Kelly leverage mapping: assumed win
// rate 0.55 and R/R 2, Kelly fraction f=p-(1-p)/b halved for safety and
// clamped to [0.001, 0.05], divided by the stop-distance percent, then
// mapped via 1+ln(x+1)/ln(maxLev+1)*(maxLev-1) into an integer in
// [1, maxLev].
func Leverage(entry, stop float64, maxLev int) int {
	const winRate = 0.55
	const b = 2.0
	kelly := winRate - (1-winRate)/b
	kelly /= 2
	if kelly < 0.001 {
		kelly = 0.001
	}
	if kelly > 0.05 {
		kelly = 0.05
	}

	stopDistPct := 0.0
	if entry != 0 {
		stopDistPct = math.Abs(entry-stop) / math.Abs(entry)
	}
	if stopDistPct <= 0 {
		stopDistPct = DefaultATRFraction
	}

	x := kelly / stopDistPct
	mapped := 1 + math.Log(x+1)/math.Log(float64(maxLev)+1)*(float64(maxLev)-1)
	lev := int(math.Round(mapped))
	if lev < 1 {
		lev = 1
	}
	if lev > maxLev {
		lev = maxLev
	}
	return lev
}

// Metrics bundles every derived risk figure for one proposed trade.
type Metrics struct {
	StopLoss       float64
	TakeProfit     float64
	Leverage       int
	PositionSize   float64
	MarginRequired float64
	PotentialLoss  float64
	PotentialProfit float64
	LossPercent    float64
	ProfitPercent  float64
	RiskReward     float64
}

// RiskMetrics computes the full bundle for one proposed trade.
func RiskMetrics(balance, riskPct, entry, atr float64, rr float64, atrMult float64, maxLev int, side Side) Metrics {
	if atr <= 0 {
		atr = EstimateATR(entry)
	}
	sl := StopLoss(entry, atr, atrMult, side)
	tp := TakeProfit(entry, sl, rr, side)
	lev := Leverage(entry, sl, maxLev)
	qty := PositionSize(balance, riskPct, entry, sl, lev)

	margin := 0.0
	if lev > 0 {
		margin = entry * qty / float64(lev)
	}
	lossDist := math.Abs(entry - sl)
	profitDist := math.Abs(tp - entry)
	potentialLoss := lossDist * qty
	potentialProfit := profitDist * qty

	lossPct := 0.0
	profitPct := 0.0
	if entry != 0 {
		lossPct = lossDist / entry * 100
		profitPct = profitDist / entry * 100
	}

	riskReward := 0.0
	if lossDist > 0 {
		riskReward = profitDist / lossDist
	}

	return Metrics{
		StopLoss:        sl,
		TakeProfit:      tp,
		Leverage:        lev,
		PositionSize:    qty,
		MarginRequired:  margin,
		PotentialLoss:   potentialLoss,
		PotentialProfit: potentialProfit,
		LossPercent:     lossPct,
		ProfitPercent:   profitPct,
		RiskReward:      riskReward,
	}
}
