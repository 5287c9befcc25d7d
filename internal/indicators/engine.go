package indicators

import (
	"fmt"

	"github.com/rdone4425/trading-ai/internal/exchange"
)

// Compute runs every requested indicator spec over candles in a stable,
// documented order (ma, ema, rsi, atr, macd, bbands, kdj) and returns a
// flat map keyed like "ema_20", "macd", "macd_signal", "macd_hist",
// "bb_upper"/"bb_middle"/"bb_lower", "kdj_k"/"kdj_d"/"kdj_j", "rsi_14",
// "atr_14". Composite indicators expose each sub-line as its own key.
func Compute(candles []exchange.Candle, specs []Spec) map[string][]float64 {
	cl := Closes(candles)
	out := make(map[string][]float64)

	order := []string{"ma", "ema", "rsi", "atr", "macd", "bbands", "kdj"}
	bySpec := map[string][]Spec{}
	for _, s := range specs {
		s = withDefaults(s)
		bySpec[s.Name] = append(bySpec[s.Name], s)
	}

	for _, name := range order {
		for _, s := range bySpec[name] {
			switch name {
			case "ma":
				n := s.Params[0]
				out[fmt.Sprintf("ma_%d", n)] = MA(cl, n)
			case "ema":
				n := s.Params[0]
				out[fmt.Sprintf("ema_%d", n)] = EMA(cl, n)
			case "rsi":
				n := s.Params[0]
				out[fmt.Sprintf("rsi_%d", n)] = RSI(cl, n)
				out["rsi"] = out[fmt.Sprintf("rsi_%d", n)]
			case "atr":
				n := s.Params[0]
				out[fmt.Sprintf("atr_%d", n)] = ATR(candles, n)
				out["atr"] = out[fmt.Sprintf("atr_%d", n)]
			case "macd":
				f, sl, g := s.Params[0], s.Params[1], s.Params[2]
				res := MACD(cl, f, sl, g)
				out["macd"] = res.MACD
				out["macd_signal"] = res.Signal
				out["macd_hist"] = res.Hist
			case "bbands":
				n := s.Params[0]
				sigUp := float64(s.Params[1])
				sigDn := float64(s.Params[2])
				res := BBands(cl, n, sigUp, sigDn)
				out["bb_upper"] = res.Upper
				out["bb_middle"] = res.Middle
				out["bb_lower"] = res.Lower
			case "kdj":
				kP, dP, jP := s.Params[0], s.Params[1], s.Params[2]
				res := KDJ(candles, kP, dP, jP)
				out["kdj_k"] = res.K
				out["kdj_d"] = res.D
				out["kdj_j"] = res.J
			}
		}
	}
	return out
}

// DefaultSpecs is the indicator set used when no configuration is supplied.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: "ema", Params: []int{12}},
		{Name: "ema", Params: []int{26}},
		{Name: "rsi", Params: []int{14}},
		{Name: "macd", Params: []int{12, 26, 9}},
		{Name: "bbands", Params: []int{20, 2, 2}},
		{Name: "kdj", Params: []int{9, 3, 3}},
		{Name: "atr", Params: []int{14}},
	}
}
