package exchange

import "time"

// Candle is one OHLCV aggregate over a timeframe. Ordered ascending by
// OpenTime by every producer in this package.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	IsClosed bool
}

// Ticker24h is a 24-hour rolling snapshot for one symbol.
type Ticker24h struct {
	Symbol             string
	LastPrice          float64
	PriceChangePercent float64
	BaseVolume         float64
	QuoteVolume        float64
	High               float64
	Low                float64
	Open               float64
	Trades             int64
}

// Trade is one normalized fill pulled from the account trade history.
type Trade struct {
	Symbol    string
	OrderID   int64
	Side      string // BUY or SELL
	Price     float64
	Qty       float64
	QuoteQty  float64
	RealizedPnL float64
	Time      time.Time
}

// PositionRisk is one row from the position-risk endpoint.
type PositionRisk struct {
	Symbol           string
	PositionAmt      float64
	EntryPrice       float64
	MarkPrice        float64
	UnrealizedProfit float64
	Leverage         int
	PositionSide     string
}

// OrderResult is the normalized response to a placed order.
type OrderResult struct {
	OrderID      int64
	Symbol       string
	Side         string
	Type         string
	Status       string
	Price        float64
	StopPrice    float64
	AvgPrice     float64
	ExecutedQty  float64
}
