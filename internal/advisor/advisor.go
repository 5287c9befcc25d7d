// Package advisor turns one symbol's candles and indicators into a
// directional call, backed by an LLM capability and a rolling context
// store of lessons learned. It is stateless per call: every mutation goes
// through the context store, never through advisor-held fields.
package advisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/rdone4425/trading-ai/internal/contextstore"
	"github.com/rdone4425/trading-ai/internal/domain"
	"github.com/rdone4425/trading-ai/internal/exchange"
	"github.com/rdone4425/trading-ai/internal/llm"
	"github.com/rdone4425/trading-ai/internal/logx"
	"github.com/rdone4425/trading-ai/internal/risk"
)

// Config bounds the risk override step run after every parsed decision.
type Config struct {
	RiskPercent     float64 // percent of balance risked per trade, e.g. 1.0 = 1%
	RiskRewardRatio float64
	ATRMultiplier   float64
	MaxLeverage     int
	AccountBalance  float64 // fallback when the caller passes balance <= 0
}

// SentimentSource supplies the optional market-sentiment prompt block for
// one base asset. A nil source means the block is omitted.
type SentimentSource interface {
	Report(ctx context.Context, base string) string
}

// Advisor produces one domain.Analysis per call.
type Advisor struct {
	provider  llm.Provider
	store     *contextstore.Store
	prompts   map[Kind]Prompt
	cfg       Config
	log       *logx.ColorLogger
	sentiment SentimentSource
}

// New constructs an Advisor.
func New(provider llm.Provider, store *contextstore.Store, prompts map[Kind]Prompt, cfg Config, log *logx.ColorLogger) *Advisor {
	return &Advisor{provider: provider, store: store, prompts: prompts, cfg: cfg, log: log}
}

// SetSentiment attaches the optional sentiment source.
func (a *Advisor) SetSentiment(s SentimentSource) {
	a.sentiment = s
}

// Analyze runs the full analysis flow as a compiled graph: market data
// preparation and sentiment fetch fan out in parallel, the LLM call waits
// for both, and the decision node parses the response (JSON-first,
// heuristic fallback) and applies the risk override.
func (a *Advisor) Analyze(ctx context.Context, sym string, candles []exchange.Candle, indicatorValues map[string][]float64, tf string, balance float64) (domain.Analysis, error) {
	if balance <= 0 {
		balance = a.cfg.AccountBalance
	}

	state := &analysisState{
		symbol:     sym,
		timeframe:  tf,
		candles:    candles,
		indicators: indicatorValues,
		balance:    balance,
	}
	runnable, err := a.buildAnalysisGraph(ctx, state)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("advisor: build graph: %w", err)
	}
	if _, err := runnable.Invoke(ctx, map[string]any{"symbol": sym}); err != nil {
		return domain.Analysis{}, err
	}
	return state.analysis, nil
}

// applyRiskOverride recomputes stopLoss/takeProfit/leverage/positionSize
// from ATR and the configured risk percent, always running after parsing
// for any non-observe call.
func (a *Advisor) applyRiskOverride(analysis *domain.Analysis, indicatorValues map[string][]float64, balance float64) {
	side := risk.Long
	if analysis.Action == domain.ActionShort {
		side = risk.Short
	}

	atr := 0.0
	if series, ok := indicatorValues["atr"]; ok {
		if v, found := lastValidValue(series); found {
			atr = v
		}
	}
	if atr <= 0 {
		atr = risk.EstimateATR(analysis.Entry)
	}

	// RiskPercent is configured in percent (1.0 = 1%); the risk package
	// works in fractions of balance.
	metrics := risk.RiskMetrics(balance, a.cfg.RiskPercent/100, analysis.Entry, atr, a.cfg.RiskRewardRatio, a.cfg.ATRMultiplier, a.cfg.MaxLeverage, side)

	analysis.StopLoss = metrics.StopLoss
	analysis.TakeProfit = metrics.TakeProfit
	analysis.Leverage = metrics.Leverage
	analysis.PositionSize = metrics.PositionSize
	analysis.MarginRequired = metrics.MarginRequired
	analysis.PotentialLoss = metrics.PotentialLoss
	analysis.PotentialProfit = metrics.PotentialProfit
	analysis.RiskReward = metrics.RiskReward
}

// ProvideLearning assembles the learning prompt for topic, calls the LLM,
// and appends the result to the context store as free-form content.
func (a *Advisor) ProvideLearning(ctx context.Context, topic, contextText string) error {
	prompt := a.prompts[KindLearning]
	vars := map[string]string{"topic": topic, "context": contextText}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: render(prompt.System, vars)},
		{Role: llm.RoleUser, Content: render(prompt.User, vars)},
	}

	body, err := a.provider.Chat(ctx, messages, prompt.Temperature, prompt.MaxTokens)
	if err != nil {
		return fmt.Errorf("advisor: learning chat: %w", err)
	}

	content := body
	if jsonBody, ok := extractJSON(body); ok {
		var wrapped struct {
			Content string `json:"content"`
		}
		if err := sonic.Unmarshal([]byte(jsonBody), &wrapped); err == nil && wrapped.Content != "" {
			content = wrapped.Content
		}
	}

	return a.store.AddLearning(contextstore.LearningEntry{Topic: topic, Content: strings.TrimSpace(content)})
}

// ReviewTrade assembles the review prompt for trade, calls the LLM, parses
// the structured review, persists it to the context store, and — on
// acceptance — runs strategy optimization over its lessons.
func (a *Advisor) ReviewTrade(ctx context.Context, trade domain.ClosedTrade) (domain.Review, error) {
	prompt := a.prompts[KindReview]
	summary := fmt.Sprintf(
		"交易对: %s\n方向: %s\n开仓价: %.6f\n平仓价: %.6f\n数量: %.6f\n持仓时长: %s\n盈亏: %.4f (%.2f%%)",
		trade.Symbol, trade.Side, trade.EntryPrice, trade.ExitPrice, trade.Quantity, trade.Duration.String(), trade.PnL, trade.PnLPercent,
	)
	vars := map[string]string{"tradeSummary": summary}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: render(prompt.System, vars)},
		{Role: llm.RoleUser, Content: render(prompt.User, vars)},
	}

	body, err := a.provider.Chat(ctx, messages, prompt.Temperature, prompt.MaxTokens)
	if err != nil {
		return domain.Review{}, fmt.Errorf("advisor: review chat: %w", err)
	}

	review := parseReview(body, trade.Symbol)

	if err := a.store.AddReview(contextstore.ReviewEntry{
		Symbol: review.Symbol, Score: review.Score, Strengths: review.Strengths,
		Weaknesses: review.Weaknesses, Lessons: review.Lessons, Improvements: review.Improvements, Summary: review.Summary,
	}); err != nil {
		return review, fmt.Errorf("advisor: persist review: %w", err)
	}

	if err := a.optimizeStrategy(review); err != nil && a.log != nil {
		a.log.Warning(fmt.Sprintf("advisor: strategy optimization failed: %v", err))
	}

	return review, nil
}

type rawReview struct {
	Score        float64  `json:"score"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Lessons      []string `json:"lessons"`
	Improvements []string `json:"improvements"`
	Summary      string   `json:"summary"`
}

func parseReview(body, symbol string) domain.Review {
	if jsonBody, ok := extractJSON(body); ok {
		var raw rawReview
		if err := sonic.Unmarshal([]byte(jsonBody), &raw); err == nil {
			return domain.Review{
				Symbol: symbol, Score: raw.Score, Strengths: raw.Strengths,
				Weaknesses: raw.Weaknesses, Lessons: raw.Lessons, Improvements: raw.Improvements, Summary: raw.Summary,
			}
		}
	}
	return domain.Review{Symbol: symbol, Score: 0.5, Summary: strings.TrimSpace(body)}
}

// riskKeywords / entryKeywords / exitKeywords bucket free-form review text
// into the three strategy fields the context store tracks.
var (
	riskKeywords  = []string{"止损", "stop", "风险"}
	entryKeywords = []string{"入场", "entry", "买入", "卖出"}
	exitKeywords  = []string{"出场", "exit", "止盈"}
)

func bucketize(items []string) (rules, entry, exit []string) {
	for _, item := range items {
		lower := strings.ToLower(item)
		switch {
		case containsAny(lower, riskKeywords):
			rules = append(rules, item)
		case containsAny(lower, entryKeywords):
			entry = append(entry, item)
		case containsAny(lower, exitKeywords):
			exit = append(exit, item)
		}
	}
	return
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// optimizeStrategy buckets one accepted review's improvements, lessons,
// and weaknesses by keyword into rule/entry/exit groups and appends a new
// strategy snapshot to the context store.
func (a *Advisor) optimizeStrategy(review domain.Review) error {
	var all []string
	all = append(all, review.Improvements...)
	all = append(all, review.Lessons...)
	all = append(all, review.Weaknesses...)
	if len(all) == 0 {
		return nil
	}

	rules, entry, exit := bucketize(all)
	name := fmt.Sprintf("优化策略_%s", time.Now().Format("0102_1504"))

	return a.store.AddStrategy(contextstore.Strategy{
		Name:               name,
		Rules:              rules,
		EntryConditions:    entry,
		ExitRules:          exit,
		BasedOnReviews:     1,
		OptimizationPoints: all,
	})
}

// TopicsFromBatch extracts up to two learning topics from one scan batch:
// the most common trading standard seen and the dominant non-观望 action.
func TopicsFromBatch(results []domain.Analysis) []string {
	standards := map[string]int{}
	actions := map[domain.Action]int{}
	for _, r := range results {
		if r.TradingStandard != "" {
			standards[r.TradingStandard]++
		}
		if r.Action != domain.ActionObserve {
			actions[r.Action]++
		}
	}

	var topics []string
	if top := topKey(standards); top != "" {
		topics = append(topics, top)
	}
	if len(actions) > 0 {
		type pair struct {
			action domain.Action
			count  int
		}
		var pairs []pair
		for a, c := range actions {
			pairs = append(pairs, pair{a, c})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].count > pairs[j].count })
		topics = append(topics, string(pairs[0].action))
	}
	if len(topics) > 2 {
		topics = topics[:2]
	}
	return topics
}

func topKey(counts map[string]int) string {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN {
			best, bestN = k, n
		}
	}
	return best
}
