// Package indicators computes a configurable set of technical indicators
// over an ordered candle sequence. Every function is pure and
// batch-oriented; "undefined" warm-up positions are represented by NaN and
// must survive round-tripping.
package indicators

import (
	"math"

	"github.com/rdone4425/trading-ai/internal/exchange"
)

// Undefined is the warm-up sentinel. Use math.IsNaN to test for it.
var Undefined = math.NaN()

func closes(candles []exchange.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = Undefined
	}
	return s
}

// MA computes the simple moving average of the last n closes; the leading
// n-1 positions are undefined.
func MA(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// firstValid returns the index of the first non-NaN value, or -1.
func firstValid(values []float64) int {
	for i, v := range values {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}

// emaWarmup applies the EMA recurrence seeded at the series' first valid
// value, exposing the result only once n-1 further samples have been
// consumed (matching MA's warm-up convention). Works on inputs that
// themselves carry a leading NaN run (e.g. MACD's difference series).
func emaWarmup(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	start := firstValid(values)
	if start == -1 || n <= 0 {
		return out
	}
	alpha := 2.0 / (float64(n) + 1)
	ema := values[start]
	firstExposed := start + n - 1
	if firstExposed <= start {
		out[start] = ema
	}
	for i := start + 1; i < len(values); i++ {
		v := values[i]
		if math.IsNaN(v) {
			continue
		}
		ema = alpha*v + (1-alpha)*ema
		if i >= firstExposed {
			out[i] = ema
		}
	}
	return out
}

// ewmaAlpha smooths values with a fixed alpha, exposing output starting at
// the first valid input sample (no extra warm-up lag beyond the input's
// own). Used by KDJ's K/D lines.
func ewmaAlpha(values []float64, alpha float64) []float64 {
	out := nanSeries(len(values))
	start := firstValid(values)
	if start == -1 {
		return out
	}
	ema := values[start]
	out[start] = ema
	for i := start + 1; i < len(values); i++ {
		v := values[i]
		if math.IsNaN(v) {
			continue
		}
		ema = alpha*v + (1-alpha)*ema
		out[i] = ema
	}
	return out
}

// EMA computes the exponentially weighted moving average, alpha=2/(n+1),
// seeded from the first valid close (no simple-average seeding). The
// leading n-1 positions are undefined, matching MA's convention.
func EMA(values []float64, n int) []float64 {
	return emaWarmup(values, n)
}

// RSI computes Wilder-smoothed relative strength, output in [0,100].
// The leading n positions are undefined.
func RSI(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 || len(values) <= n {
		return out
	}

	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		diff := values[i] - values[i-1]
		if diff > 0 {
			gains[i] = diff
		} else {
			losses[i] = -diff
		}
	}

	var avgGain, avgLoss float64
	for i := 1; i <= n; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)
	out[n] = rsiFromAverages(avgGain, avgLoss)

	for i := n + 1; i < len(values); i++ {
		avgGain = (avgGain*float64(n-1) + gains[i]) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + losses[i]) / float64(n)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the three parallel MACD output lines.
type MACDResult struct {
	MACD   []float64
	Signal []float64
	Hist   []float64
}

// MACD computes EMA(fast) - EMA(slow), its signal line EMA(signal), and
// their difference.
func MACD(values []float64, fast, slow, signal int) MACDResult {
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)
	macd := nanSeries(len(values))
	for i := range values {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			macd[i] = fastEMA[i] - slowEMA[i]
		}
	}
	sig := emaWarmup(macd, signal)
	hist := nanSeries(len(values))
	for i := range values {
		if !math.IsNaN(macd[i]) && !math.IsNaN(sig[i]) {
			hist[i] = macd[i] - sig[i]
		}
	}
	return MACDResult{MACD: macd, Signal: sig, Hist: hist}
}

// BBandsResult holds the three Bollinger Band lines.
type BBandsResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BBands computes middle=MA(n), upper=middle+sigUp*stdev,
// lower=middle-sigDn*stdev, using the population stdev of the same window.
func BBands(values []float64, n int, sigUp, sigDn float64) BBandsResult {
	middle := MA(values, n)
	upper := nanSeries(len(values))
	lower := nanSeries(len(values))
	for i := range values {
		if math.IsNaN(middle[i]) {
			continue
		}
		window := values[i-n+1 : i+1]
		var sumSq float64
		for _, v := range window {
			d := v - middle[i]
			sumSq += d * d
		}
		stdev := math.Sqrt(sumSq / float64(n))
		upper[i] = middle[i] + sigUp*stdev
		lower[i] = middle[i] - sigDn*stdev
	}
	return BBandsResult{Upper: upper, Middle: middle, Lower: lower}
}

// KDJResult holds the three KDJ lines.
type KDJResult struct {
	K []float64
	D []float64
	J []float64
}

// KDJ computes RSV over a kP window, then K=EWMA_{1/dP}(RSV),
// D=EWMA_{1/jP}(K), J=3K-2D.
func KDJ(candles []exchange.Candle, kP, dP, jP int) KDJResult {
	n := len(candles)
	rsv := nanSeries(n)
	for i := range candles {
		if i < kP-1 {
			continue
		}
		window := candles[i-kP+1 : i+1]
		minLow := window[0].Low
		maxHigh := window[0].High
		for _, c := range window {
			if c.Low < minLow {
				minLow = c.Low
			}
			if c.High > maxHigh {
				maxHigh = c.High
			}
		}
		rng := maxHigh - minLow
		if rng == 0 {
			rsv[i] = 50
		} else {
			rsv[i] = 100 * (candles[i].Close - minLow) / rng
		}
	}

	var dAlpha, jAlpha float64
	if dP > 0 {
		dAlpha = 1.0 / float64(dP)
	}
	if jP > 0 {
		jAlpha = 1.0 / float64(jP)
	}
	k := ewmaAlpha(rsv, dAlpha)
	d := ewmaAlpha(k, jAlpha)
	j := nanSeries(n)
	for i := 0; i < n; i++ {
		if !math.IsNaN(k[i]) && !math.IsNaN(d[i]) {
			j[i] = 3*k[i] - 2*d[i]
		}
	}
	return KDJResult{K: k, D: d, J: j}
}

// ATR computes the moving mean of true range over n, with a warm-up of
// n-1 positions.
func ATR(candles []exchange.Candle, n int) []float64 {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		hl := c.High - c.Low
		hc := math.Abs(c.High - prevClose)
		lc := math.Abs(c.Low - prevClose)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return MA(tr, n)
}

// CrossKind names the kind of the latest fast/slow crossover.
type CrossKind int

const (
	CrossNone CrossKind = iota
	CrossGolden
	CrossDeath
)

type Position int

const (
	PositionUnknown Position = iota
	PositionAbove
	PositionBelow
)

// CrossResult summarizes sign-changes of fast-slow across the series.
type CrossResult struct {
	LatestCross   CrossKind
	CrossIndex    int
	GoldenCrosses []int
	DeathCrosses  []int
	CurrentPosition Position
}

// DetectCross identifies sign changes of fast-slow, ignoring leading
// undefined positions in either input.
func DetectCross(fast, slow []float64) CrossResult {
	res := CrossResult{LatestCross: CrossNone, CrossIndex: -1, CurrentPosition: PositionUnknown}
	n := len(fast)
	if n != len(slow) || n == 0 {
		return res
	}

	prevSign := 0
	for i := 0; i < n; i++ {
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) {
			continue
		}
		diff := fast[i] - slow[i]
		sign := 0
		switch {
		case diff > 0:
			sign = 1
		case diff < 0:
			sign = -1
		}

		if sign > 0 {
			res.CurrentPosition = PositionAbove
		} else if sign < 0 {
			res.CurrentPosition = PositionBelow
		}

		if prevSign != 0 && sign != 0 && sign != prevSign {
			if sign > 0 {
				res.GoldenCrosses = append(res.GoldenCrosses, i)
				res.LatestCross = CrossGolden
			} else {
				res.DeathCrosses = append(res.DeathCrosses, i)
				res.LatestCross = CrossDeath
			}
			res.CrossIndex = i
		}
		if sign != 0 {
			prevSign = sign
		}
	}
	return res
}

// ValidateIndicators returns the count of keys whose latest-valid (last
// non-NaN) value exists.
func ValidateIndicators(m map[string][]float64) int {
	count := 0
	for _, series := range m {
		for i := len(series) - 1; i >= 0; i-- {
			if !math.IsNaN(series[i]) {
				count++
				break
			}
		}
	}
	return count
}

// Closes is exported for callers (advisor, risk) that need the raw close
// array alongside indicator output.
func Closes(candles []exchange.Candle) []float64 {
	return closes(candles)
}
