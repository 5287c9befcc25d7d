package scanner

import (
	"sort"

	"github.com/rdone4425/trading-ai/internal/exchange"
	"github.com/rdone4425/trading-ai/internal/symbol"
)

// selectUniverse picks the symbols to analyze this scan. A non-empty
// customSymbols list always wins: each entry is smart-completed against
// live and unknowns are dropped. Otherwise the configured scan types are
// ranked and unioned, preserving first occurrence, then truncated to topN.
func selectUniverse(customSymbols []string, scanTypes []string, topN int, defaultQuote string, live []exchange.Ticker24h, perpetuals []string) []string {
	if len(customSymbols) > 0 {
		seen := map[string]bool{}
		var out []string
		for _, raw := range customSymbols {
			if s, ok := symbol.SmartComplete(raw, perpetuals, defaultQuote); ok && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
		return out
	}

	seen := map[string]bool{}
	var union []string
	for _, st := range scanTypes {
		for _, sym := range rankByType(st, live, topN) {
			if !seen[sym] {
				seen[sym] = true
				union = append(union, sym)
			}
		}
	}
	if len(union) > topN {
		union = union[:topN]
	}
	return union
}

func rankByType(scanType string, live []exchange.Ticker24h, topN int) []string {
	ranked := make([]exchange.Ticker24h, len(live))
	copy(ranked, live)

	switch scanType {
	case "volume":
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].QuoteVolume > ranked[j].QuoteVolume })
	case "gainers":
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].PriceChangePercent > ranked[j].PriceChangePercent })
	case "losers":
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].PriceChangePercent < ranked[j].PriceChangePercent })
	case "hot":
		sort.Slice(ranked, func(i, j int) bool { return hotScore(ranked[i]) > hotScore(ranked[j]) })
	default:
		return nil
	}

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	out := make([]string, len(ranked))
	for i, t := range ranked {
		out[i] = t.Symbol
	}
	return out
}

func hotScore(t exchange.Ticker24h) float64 {
	change := t.PriceChangePercent
	if change < 0 {
		change = -change
	}
	return 0.7*(t.QuoteVolume/1e9) + 0.3*(change/100)
}
