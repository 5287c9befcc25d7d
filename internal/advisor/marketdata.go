package advisor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rdone4425/trading-ai/internal/contextstore"
	"github.com/rdone4425/trading-ai/internal/exchange"
)

// prepareMarketData renders the latest OHLCV, a change-percent line, a
// formatted volume, and a multi-line indicator block into the placeholder
// set the analysis prompt expects.
func prepareMarketData(symbol string, candles []exchange.Candle, indicatorValues map[string][]float64, tf string) map[string]string {
	if len(candles) == 0 {
		return map[string]string{
			"symbol":     symbol,
			"timeframe":  tf,
			"marketData": "无可用K线数据",
		}
	}

	last := candles[len(candles)-1]
	changePct := 0.0
	if len(candles) >= 2 {
		prev := candles[len(candles)-2]
		if prev.Close != 0 {
			changePct = (last.Close - prev.Close) / prev.Close * 100
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "开盘: %.4f  最高: %.4f  最低: %.4f  收盘: %.4f\n", last.Open, last.High, last.Low, last.Close)
	fmt.Fprintf(&b, "涨跌幅: %+.2f%%\n", changePct)
	fmt.Fprintf(&b, "成交量: %s\n", formatVolume(last.Volume))
	b.WriteString(indicatorBlock(indicatorValues))

	return map[string]string{
		"symbol":     symbol,
		"timeframe":  tf,
		"marketData": b.String(),
	}
}

func indicatorBlock(values map[string][]float64) string {
	if len(values) == 0 {
		return "警告: 无有效技术指标数据"
	}

	keys := make([]string, 0, len(values))
	for k, series := range values {
		if _, ok := lastValidValue(series); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return "警告: 无有效技术指标数据"
	}

	var b strings.Builder
	for _, k := range keys {
		v, ok := lastValidValue(values[k])
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: %.4f\n", k, v)
	}
	if b.Len() == 0 {
		return "警告: 无有效技术指标数据"
	}
	return b.String()
}

func lastValidValue(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if v == v { // NaN check without importing math for one comparison
			return v, true
		}
	}
	return 0, false
}

func formatVolume(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// reviewInsights renders the union of recent context-store knowledge into
// one block: up to 2 learning excerpts, the union of up to 5 lessons and 5
// improvements across the last 5 reviews, up to 3 warnings (drawn from
// review weaknesses), and up to 3 optimized-strategy summaries. Returns ""
// when the store has nothing yet.
func reviewInsights(store *contextstore.Store) string {
	if store == nil {
		return ""
	}

	var b strings.Builder
	hasAny := false

	for _, l := range store.RecentLearnings(2) {
		content := l.Content
		if len(content) > 200 {
			content = content[:200]
		}
		fmt.Fprintf(&b, "历史经验[%s]: %s\n", l.Topic, content)
		hasAny = true
	}

	reviews := store.RecentReviews(5)
	lessons := unionStrings(reviews, func(r contextstore.ReviewEntry) []string { return r.Lessons }, 5)
	improvements := unionStrings(reviews, func(r contextstore.ReviewEntry) []string { return r.Improvements }, 5)
	warnings := unionStrings(reviews, func(r contextstore.ReviewEntry) []string { return r.Weaknesses }, 3)

	if len(lessons) > 0 {
		fmt.Fprintf(&b, "历史教训: %s\n", strings.Join(lessons, "; "))
		hasAny = true
	}
	if len(improvements) > 0 {
		fmt.Fprintf(&b, "改进建议: %s\n", strings.Join(improvements, "; "))
		hasAny = true
	}
	if len(warnings) > 0 {
		fmt.Fprintf(&b, "风险警示: %s\n", strings.Join(warnings, "; "))
		hasAny = true
	}

	for _, s := range store.RecentStrategies(3) {
		fmt.Fprintf(&b, "优化策略[%s]: 规则=%s 入场=%s 出场=%s\n",
			s.Name, strings.Join(s.Rules, ","), strings.Join(s.EntryConditions, ","), strings.Join(s.ExitRules, ","))
		hasAny = true
	}

	if !hasAny {
		return ""
	}
	return "请严格遵循以下历史经验和优化策略:\n" + b.String()
}

func unionStrings(reviews []contextstore.ReviewEntry, pick func(contextstore.ReviewEntry) []string, max int) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range reviews {
		for _, s := range pick(r) {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
			if len(out) >= max {
				return out
			}
		}
	}
	return out
}
