// Package domain holds the types shared across the advisor, risk, trader,
// and scanner packages so none of them need to import each other just for
// a struct definition.
package domain

import "time"

// Action is the advisor's directional call.
type Action string

const (
	ActionLong    Action = "做多"
	ActionShort   Action = "做空"
	ActionObserve Action = "观望"
)

// Analysis is one advisor result for one symbol, after the risk override
// has run (when Action != ActionObserve).
type Analysis struct {
	Symbol          string
	Trend           string
	Action          Action
	Confidence      float64
	Entry           float64
	StopLoss        float64
	TakeProfit      float64
	Support         float64
	Resistance      float64
	RiskReward      float64
	Reason          string
	Warnings        []string
	TradingStandard string
	Leverage        int
	PositionSize    float64
	MarginRequired  float64
	PotentialProfit float64
	PotentialLoss   float64
	Provider        string
	AnalyzedAt      time.Time
}

// ClosedTrade is one reconstructed round-trip trade used by the review
// post-hook.
type ClosedTrade struct {
	Symbol      string
	EntryPrice  float64
	ExitPrice   float64
	Quantity    float64
	Side        string
	OpenedAt    time.Time
	ClosedAt    time.Time
	Duration    time.Duration
	PnL         float64
	PnLPercent  float64
}

// Review is the advisor's structured judgement of a ClosedTrade.
type Review struct {
	Symbol       string
	Score        float64
	Strengths    []string
	Weaknesses   []string
	Lessons      []string
	Improvements []string
	Summary      string
}
