package advisor

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/rdone4425/trading-ai/internal/domain"
	"github.com/rdone4425/trading-ai/internal/exchange"
	"github.com/rdone4425/trading-ai/internal/llm"
	"github.com/rdone4425/trading-ai/internal/symbol"
)

// analysisState is the per-call scratch shared by the graph's lambda
// nodes. Nodes write into it and hand empty maps along the edges; the
// final node extracts the finished analysis.
type analysisState struct {
	symbol     string
	timeframe  string
	candles    []exchange.Candle
	indicators map[string][]float64
	balance    float64

	vars     map[string]string
	response string
	analysis domain.Analysis
}

// buildAnalysisGraph wires the per-symbol analysis pipeline as a compose
// graph: market data and sentiment fan out from START, the LLM call waits
// for both, and the decision node parses and applies the risk override.
func (a *Advisor) buildAnalysisGraph(ctx context.Context, state *analysisState) (compose.Runnable[map[string]any, map[string]any], error) {
	graph := compose.NewGraph[map[string]any, map[string]any]()

	marketData := compose.InvokableLambda(func(ctx context.Context, input map[string]any) (map[string]any, error) {
		state.vars = prepareMarketData(state.symbol, state.candles, state.indicators, state.timeframe)
		state.vars["reviewInsights"] = reviewInsights(a.store)
		return map[string]any{}, nil
	})

	sentimentNode := compose.InvokableLambda(func(ctx context.Context, input map[string]any) (map[string]any, error) {
		report := ""
		if a.sentiment != nil {
			base := state.symbol
			if desc, ok := symbol.Parse(state.symbol); ok {
				base = desc.Base
			}
			report = a.sentiment.Report(ctx, base)
		}
		return map[string]any{"sentiment": report}, nil
	})

	llmNode := compose.InvokableLambda(func(ctx context.Context, input map[string]any) (map[string]any, error) {
		if report, ok := input["sentiment"].(string); ok {
			state.vars["sentiment"] = report
		} else {
			state.vars["sentiment"] = ""
		}

		prompt := a.prompts[KindAnalysis]
		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: render(prompt.System, state.vars)},
			{Role: llm.RoleUser, Content: render(prompt.User, state.vars)},
		}
		body, err := a.provider.Chat(ctx, messages, prompt.Temperature, prompt.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("advisor: chat: %w", err)
		}
		if a.log != nil {
			a.log.LLMResponse(state.symbol, body, 20)
		}
		state.response = body
		return map[string]any{}, nil
	})

	decisionNode := compose.InvokableLambda(func(ctx context.Context, input map[string]any) (map[string]any, error) {
		parsed := parseDecision(state.response)

		close := 0.0
		if len(state.candles) > 0 {
			close = state.candles[len(state.candles)-1].Close
		}
		stopLoss, takeProfit := synthesizePrices(close, parsed.Action)

		state.analysis = domain.Analysis{
			Symbol:          state.symbol,
			Trend:           parsed.Trend,
			Action:          parsed.Action,
			Confidence:      parsed.Confidence,
			Entry:           close,
			StopLoss:        stopLoss,
			TakeProfit:      takeProfit,
			Support:         parsed.Support,
			Resistance:      parsed.Resistance,
			Reason:          parsed.Reason,
			Warnings:        parsed.Warnings,
			TradingStandard: parsed.TradingStandard,
			Provider:        "llm",
			AnalyzedAt:      time.Now(),
		}
		if parsed.Action != domain.ActionObserve {
			a.applyRiskOverride(&state.analysis, state.indicators, state.balance)
			if a.log != nil {
				r := state.analysis
				a.log.Decision(fmt.Sprintf(
					"交易对: %s\n方向: %s (置信度 %.2f)\n入场价: %.6f\n止损: %.6f  止盈: %.6f  盈亏比: %.2f\n杠杆: %dx  仓位: %.6f  保证金: %.2f\n理由: %s",
					r.Symbol, r.Action, r.Confidence, r.Entry,
					r.StopLoss, r.TakeProfit, r.RiskReward,
					r.Leverage, r.PositionSize, r.MarginRequired, r.Reason))
			}
		}
		return map[string]any{}, nil
	})

	if err := graph.AddLambdaNode("market_data", marketData); err != nil {
		return nil, fmt.Errorf("advisor: add market_data node: %w", err)
	}
	if err := graph.AddLambdaNode("sentiment", sentimentNode); err != nil {
		return nil, fmt.Errorf("advisor: add sentiment node: %w", err)
	}
	if err := graph.AddLambdaNode("llm", llmNode); err != nil {
		return nil, fmt.Errorf("advisor: add llm node: %w", err)
	}
	if err := graph.AddLambdaNode("decision", decisionNode); err != nil {
		return nil, fmt.Errorf("advisor: add decision node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "market_data"); err != nil {
		return nil, fmt.Errorf("advisor: edge START->market_data: %w", err)
	}
	if err := graph.AddEdge(compose.START, "sentiment"); err != nil {
		return nil, fmt.Errorf("advisor: edge START->sentiment: %w", err)
	}
	if err := graph.AddEdge("market_data", "llm"); err != nil {
		return nil, fmt.Errorf("advisor: edge market_data->llm: %w", err)
	}
	if err := graph.AddEdge("sentiment", "llm"); err != nil {
		return nil, fmt.Errorf("advisor: edge sentiment->llm: %w", err)
	}
	if err := graph.AddEdge("llm", "decision"); err != nil {
		return nil, fmt.Errorf("advisor: edge llm->decision: %w", err)
	}
	if err := graph.AddEdge("decision", compose.END); err != nil {
		return nil, fmt.Errorf("advisor: edge decision->END: %w", err)
	}

	return graph.Compile(ctx, compose.WithNodeTriggerMode(compose.AllPredecessor))
}
