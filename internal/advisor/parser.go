package advisor

import (
	"regexp"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/rdone4425/trading-ai/internal/domain"
)

// parsedDecision is the advisor's pre-risk-override reading of the LLM
// response, regardless of which parse path produced it.
type parsedDecision struct {
	Trend           string
	Action          domain.Action
	Confidence      float64
	Reason          string
	Support         float64
	Resistance      float64
	TradingStandard string
	Warnings        []string
}

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON pulls a JSON object out of body: first a fenced code block,
// else the substring from the first '{' to the last '}'.
func extractJSON(body string) (string, bool) {
	if m := fencedJSONPattern.FindStringSubmatch(body); len(m) > 1 {
		return m[1], true
	}
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < 0 || end < start {
		return "", false
	}
	return body[start : end+1], true
}

type rawJSONDecision struct {
	Trend           string   `json:"trend"`
	Action          string   `json:"action"`
	Confidence      float64  `json:"confidence"`
	Reason          string   `json:"reason"`
	Support         float64  `json:"support"`
	Resistance      float64  `json:"resistance"`
	TradingStandard string   `json:"tradingStandard"`
	Warnings        []string `json:"warnings"`
}

// parseDecision tries the JSON path first; on failure it falls back to a
// keyword scan of the raw body using bilingual (Chinese/English) action
// keywords.
func parseDecision(body string) parsedDecision {
	if jsonBody, ok := extractJSON(body); ok {
		var raw rawJSONDecision
		if err := sonic.Unmarshal([]byte(jsonBody), &raw); err == nil && raw.Action != "" {
			return parsedDecision{
				Trend:           raw.Trend,
				Action:          mapAction(raw.Action),
				Confidence:      raw.Confidence,
				Reason:          raw.Reason,
				Support:         raw.Support,
				Resistance:      raw.Resistance,
				TradingStandard: raw.TradingStandard,
				Warnings:        raw.Warnings,
			}
		}
	}
	return heuristicParse(body)
}

func mapAction(s string) domain.Action {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(lower, "做多") || strings.Contains(lower, "buy") || strings.Contains(lower, "long"):
		return domain.ActionLong
	case strings.Contains(lower, "做空") || strings.Contains(lower, "sell") || strings.Contains(lower, "short"):
		return domain.ActionShort
	default:
		return domain.ActionObserve
	}
}

var (
	longPatterns = []string{`做多`, `买入`, `开多`, `\blong\b`, `\bbuy\b`}
	shortPatterns = []string{`做空`, `卖出`, `开空`, `\bshort\b`, `\bsell\b`}
	strongWording = []string{`强烈`, `明确`, `确信`, `strong`, `confident`, `high confidence`}
	cautiousWording = []string{`谨慎`, `不确定`, `观望为主`, `cautious`, `uncertain`, `slight`}
)

func matchesAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if matched, _ := regexp.MatchString(p, lower); matched {
			return true
		}
	}
	return false
}

// heuristicParse is the fallback path for a non-JSON LLM response: a
// keyword scan for direction and confidence wording, synthesizing prices
// from the caller-provided current close since the body carries none the
// risk override could trust directly.
func heuristicParse(body string) parsedDecision {
	lower := strings.ToLower(body)

	action := domain.ActionObserve
	switch {
	case matchesAny(lower, longPatterns):
		action = domain.ActionLong
	case matchesAny(lower, shortPatterns):
		action = domain.ActionShort
	}

	confidence := 0.5
	switch {
	case matchesAny(lower, strongWording):
		confidence = 0.8
	case matchesAny(lower, cautiousWording):
		confidence = 0.3
	}

	reason := strings.TrimSpace(body)
	if len(reason) > 400 {
		reason = reason[:400]
	}

	return parsedDecision{
		Action:     action,
		Confidence: confidence,
		Reason:     reason,
		Warnings:   []string{"AI response not JSON"},
	}
}

// synthesizePrices derives rough stop-loss/take-profit anchors from the
// current close when the parsed response carried none worth trusting; the
// risk override recomputes both from ATR immediately afterward, so these
// only matter as a side-by-side log reference.
func synthesizePrices(close float64, action domain.Action) (stopLoss, takeProfit float64) {
	switch action {
	case domain.ActionLong:
		return close * 0.97, close * 1.05
	case domain.ActionShort:
		return close * 1.03, close * 0.95
	default:
		return close, close
	}
}
