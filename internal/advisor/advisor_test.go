package advisor

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rdone4425/trading-ai/internal/contextstore"
	"github.com/rdone4425/trading-ai/internal/domain"
	"github.com/rdone4425/trading-ai/internal/exchange"
	"github.com/rdone4425/trading-ai/internal/llm"
)

func testCandles(n int, close float64) []exchange.Candle {
	out := make([]exchange.Candle, n)
	base := time.Now().Add(-time.Duration(n) * time.Hour)
	for i := range out {
		out[i] = exchange.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     close, High: close * 1.01, Low: close * 0.99, Close: close,
			Volume: 1000, IsClosed: true,
		}
	}
	return out
}

func atrSeries(n int, atr float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = atr
	}
	return out
}

func testAdvisor(t *testing.T, responder func([]llm.Message) string) *Advisor {
	t.Helper()
	store := contextstore.New(t.TempDir())
	provider := &llm.Mock{Responder: responder}
	return New(provider, store, defaultPrompts(), Config{
		RiskPercent:     1.0,
		RiskRewardRatio: 2.0,
		ATRMultiplier:   2.0,
		MaxLeverage:     10,
		AccountBalance:  10000,
	}, nil)
}

func TestAnalyzeAppliesRiskOverrideOnLongCall(t *testing.T) {
	adv := testAdvisor(t, func([]llm.Message) string {
		return `{"trend":"上涨","action":"做多","confidence":0.8,"reason":"趋势向好"}`
	})

	candles := testCandles(30, 50000)
	indicators := map[string][]float64{"atr": atrSeries(30, 100)}

	analysis, err := adv.Analyze(context.Background(), "BTCUSDT", candles, indicators, "1h", 10000)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if analysis.Action != domain.ActionLong {
		t.Fatalf("action = %s, want 做多", analysis.Action)
	}
	if analysis.StopLoss != 49800 {
		t.Errorf("stopLoss = %f, want 49800 (entry - 2*ATR)", analysis.StopLoss)
	}
	if analysis.TakeProfit != 50400 {
		t.Errorf("takeProfit = %f, want 50400 (entry + 2*risk)", analysis.TakeProfit)
	}
	if math.Abs(analysis.PositionSize-0.5) > 1e-9 {
		t.Errorf("positionSize = %f, want 0.5 (1%% of 10000 over a 200 stop distance)", analysis.PositionSize)
	}
	if analysis.Leverage < 1 || analysis.Leverage > 10 {
		t.Errorf("leverage = %d out of [1,10]", analysis.Leverage)
	}
	if !(analysis.StopLoss < analysis.Entry && analysis.Entry < analysis.TakeProfit) {
		t.Errorf("price ordering violated: sl=%f entry=%f tp=%f", analysis.StopLoss, analysis.Entry, analysis.TakeProfit)
	}
}

func TestAnalyzeShortSidePriceOrdering(t *testing.T) {
	adv := testAdvisor(t, func([]llm.Message) string {
		return `{"action":"做空","confidence":0.7,"reason":"下跌趋势"}`
	})

	candles := testCandles(30, 3000)
	analysis, err := adv.Analyze(context.Background(), "ETHUSDT", candles, map[string][]float64{}, "1h", 10000)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Action != domain.ActionShort {
		t.Fatalf("action = %s, want 做空", analysis.Action)
	}
	if !(analysis.TakeProfit < analysis.Entry && analysis.Entry < analysis.StopLoss) {
		t.Errorf("short price ordering violated: tp=%f entry=%f sl=%f", analysis.TakeProfit, analysis.Entry, analysis.StopLoss)
	}
}

func TestAnalyzeObserveSkipsRiskOverride(t *testing.T) {
	adv := testAdvisor(t, func([]llm.Message) string {
		return `{"action":"观望","confidence":0.4,"reason":"信号不明"}`
	})

	analysis, err := adv.Analyze(context.Background(), "BTCUSDT", testCandles(30, 50000), nil, "1h", 10000)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Action != domain.ActionObserve {
		t.Fatalf("action = %s, want 观望", analysis.Action)
	}
	if analysis.PositionSize != 0 || analysis.Leverage != 0 {
		t.Errorf("observe call must not carry sized fields: %+v", analysis)
	}
}

func TestAnalyzeNonJSONFallsBackWithWarning(t *testing.T) {
	adv := testAdvisor(t, func([]llm.Message) string {
		return "强烈建议做多，趋势明确向上"
	})

	analysis, err := adv.Analyze(context.Background(), "BTCUSDT", testCandles(30, 50000), nil, "1h", 10000)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Action != domain.ActionLong {
		t.Errorf("heuristic action = %s, want 做多", analysis.Action)
	}
	if analysis.Confidence != 0.8 {
		t.Errorf("strong wording confidence = %f, want 0.8", analysis.Confidence)
	}
	found := false
	for _, w := range analysis.Warnings {
		if strings.Contains(w, "not JSON") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing non-JSON warning in %v", analysis.Warnings)
	}
}

type fakeSentiment struct{ report string }

func (f fakeSentiment) Report(context.Context, string) string { return f.report }

func TestAnalyzeInjectsSentimentIntoPrompt(t *testing.T) {
	var seenUser string
	adv := testAdvisor(t, func(messages []llm.Message) string {
		for _, m := range messages {
			if m.Role == llm.RoleUser {
				seenUser = m.Content
			}
		}
		return `{"action":"观望","confidence":0.5,"reason":"ok"}`
	})
	adv.SetSentiment(fakeSentiment{report: "市场情绪[BTC]: 净值=+0.4000"})

	if _, err := adv.Analyze(context.Background(), "BTCUSDT", testCandles(5, 50000), nil, "1h", 10000); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !strings.Contains(seenUser, "市场情绪[BTC]") {
		t.Errorf("sentiment report missing from user prompt:\n%s", seenUser)
	}
}

func TestAnalyzeWithoutSentimentLeavesNoPlaceholder(t *testing.T) {
	var seenUser string
	adv := testAdvisor(t, func(messages []llm.Message) string {
		for _, m := range messages {
			if m.Role == llm.RoleUser {
				seenUser = m.Content
			}
		}
		return `{"action":"观望","confidence":0.5,"reason":"ok"}`
	})

	if _, err := adv.Analyze(context.Background(), "BTCUSDT", testCandles(5, 50000), nil, "1h", 10000); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if strings.Contains(seenUser, "{{sentiment}}") {
		t.Error("sentiment placeholder leaked into the rendered prompt")
	}
}

func TestProvideLearningUnwrapsContentJSON(t *testing.T) {
	adv := testAdvisor(t, func([]llm.Message) string {
		return `{"content":"突破入场要等回踩确认"}`
	})

	if err := adv.ProvideLearning(context.Background(), "入场时机", "context"); err != nil {
		t.Fatalf("ProvideLearning: %v", err)
	}
	learnings := adv.store.RecentLearnings(1)
	if len(learnings) != 1 {
		t.Fatalf("got %d learnings, want 1", len(learnings))
	}
	if learnings[0].Content != "突破入场要等回踩确认" {
		t.Errorf("content = %q, want unwrapped inner string", learnings[0].Content)
	}
}

func TestReviewTradePersistsReviewAndStrategy(t *testing.T) {
	adv := testAdvisor(t, func([]llm.Message) string {
		return `{"score":0.7,"strengths":["顺势"],"weaknesses":["止损过宽"],"lessons":["入场需等确认"],"improvements":["收紧止盈规则"],"summary":"总体合格"}`
	})

	trade := domain.ClosedTrade{
		Symbol: "BTCUSDT", EntryPrice: 50000, ExitPrice: 50500, Quantity: 0.1,
		Side: "BUY", Duration: 2 * time.Hour, PnL: 50, PnLPercent: 1,
	}
	review, err := adv.ReviewTrade(context.Background(), trade)
	if err != nil {
		t.Fatalf("ReviewTrade: %v", err)
	}
	if review.Score != 0.7 {
		t.Errorf("score = %f, want 0.7", review.Score)
	}

	if got := adv.store.RecentReviews(1); len(got) != 1 {
		t.Fatalf("review not persisted, got %d", len(got))
	}
	strategies := adv.store.RecentStrategies(1)
	if len(strategies) != 1 {
		t.Fatalf("strategy optimization did not persist, got %d", len(strategies))
	}
	// "止损过宽" buckets under rules; "入场需等确认" under entry; "收紧止盈规则" under exit.
	st := strategies[0]
	if len(st.Rules) == 0 || len(st.EntryConditions) == 0 || len(st.ExitRules) == 0 {
		t.Errorf("keyword bucketing incomplete: %+v", st)
	}
	if !strings.HasPrefix(st.Name, "优化策略_") {
		t.Errorf("strategy name = %q", st.Name)
	}
}

func TestExtractJSONFencedBlockWins(t *testing.T) {
	body := "前言 {\"noise\":1}\n```json\n{\"action\":\"做多\"}\n```\n尾注"
	got, ok := extractJSON(body)
	if !ok || got != `{"action":"做多"}` {
		t.Errorf("extractJSON = %q, %v", got, ok)
	}
}

func TestExtractJSONBraceSpan(t *testing.T) {
	got, ok := extractJSON(`响应: {"action":"观望","confidence":0.5} 完`)
	if !ok || !strings.HasPrefix(got, `{"action"`) || !strings.HasSuffix(got, `}`) {
		t.Errorf("extractJSON = %q, %v", got, ok)
	}
}

func TestRenderPreservesUnknownPlaceholders(t *testing.T) {
	out := render("a={{known}} b={{unknown}}", map[string]string{"known": "1"})
	if out != "a=1 b={{unknown}}" {
		t.Errorf("render = %q", out)
	}
}

func TestBucketizeKeywords(t *testing.T) {
	rules, entry, exit := bucketize([]string{
		"止损设置过宽",
		"entry timing was late",
		"止盈过早离场",
		"与三类关键词都无关的一条",
	})
	if len(rules) != 1 || len(entry) != 1 || len(exit) != 1 {
		t.Errorf("bucketize = rules=%v entry=%v exit=%v", rules, entry, exit)
	}
}

func TestTopicsFromBatchPicksStandardAndDominantAction(t *testing.T) {
	results := []domain.Analysis{
		{Action: domain.ActionLong, TradingStandard: "趋势跟随"},
		{Action: domain.ActionLong, TradingStandard: "趋势跟随"},
		{Action: domain.ActionShort},
		{Action: domain.ActionObserve},
	}
	topics := TopicsFromBatch(results)
	if len(topics) != 2 {
		t.Fatalf("topics = %v, want 2 entries", topics)
	}
	if topics[0] != "趋势跟随" {
		t.Errorf("topics[0] = %q, want the dominant trading standard", topics[0])
	}
	if topics[1] != string(domain.ActionLong) {
		t.Errorf("topics[1] = %q, want the dominant non-observe action", topics[1])
	}
}

func TestTopicsFromBatchEmptyResults(t *testing.T) {
	if topics := TopicsFromBatch(nil); len(topics) != 0 {
		t.Errorf("topics = %v, want none for an empty batch", topics)
	}
}
