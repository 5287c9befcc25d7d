package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ListPerpetualSymbols returns every TRADING, PERPETUAL, USDT-margined
// contract.
func (c *Client) ListPerpetualSymbols(ctx context.Context) ([]string, error) {
	body, _, err := c.do(ctx, "GET", "/fapi/v1/exchangeInfo", nil, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Symbols []struct {
			Symbol       string `json:"symbol"`
			Status       string `json:"status"`
			ContractType string `json:"contractType"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("exchange: decode exchangeInfo: %w", err)
	}

	var out []string
	for _, s := range resp.Symbols {
		if s.Status == "TRADING" && s.ContractType == "PERPETUAL" && strings.HasSuffix(s.Symbol, "USDT") {
			out = append(out, s.Symbol)
		}
	}
	return out, nil
}

// GetAllTickers24h returns the 24h ticker snapshot intersected with the
// live perpetual set.
func (c *Client) GetAllTickers24h(ctx context.Context, perpetuals map[string]bool) ([]Ticker24h, error) {
	body, _, err := c.do(ctx, "GET", "/fapi/v1/ticker/24hr", nil, false)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
		Volume             string `json:"volume"`
		QuoteVolume        string `json:"quoteVolume"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
		OpenPrice          string `json:"openPrice"`
		Count              int64  `json:"count"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("exchange: decode ticker/24hr: %w", err)
	}

	out := make([]Ticker24h, 0, len(raw))
	for _, r := range raw {
		if perpetuals != nil && !perpetuals[r.Symbol] {
			continue
		}
		out = append(out, Ticker24h{
			Symbol:             r.Symbol,
			LastPrice:          parseFloat(r.LastPrice),
			PriceChangePercent: parseFloat(r.PriceChangePercent),
			BaseVolume:         parseFloat(r.Volume),
			QuoteVolume:        parseFloat(r.QuoteVolume),
			High:               parseFloat(r.HighPrice),
			Low:                parseFloat(r.LowPrice),
			Open:               parseFloat(r.OpenPrice),
			Trades:             r.Count,
		})
	}
	return out, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// GetKlines fetches candles at tf for symbol, walking backwards by endTime
// in pages of up to 1000 until limit candles are collected (or the
// exchange runs out of history). Results are ascending by open time with
// no duplicate boundaries. If includeOpen is false the still-open tail
// candle is stripped.
func (c *Client) GetKlines(ctx context.Context, symbol, tf string, limit int, includeOpen bool) ([]Candle, error) {
	period, err := parseTimeframeSeconds(tf)
	if err != nil {
		return nil, err
	}

	const pageSize = 1000
	var pages [][]Candle
	remaining := limit
	endTime := int64(0) // 0 means "most recent"

	for remaining > 0 {
		want := remaining
		if want > pageSize {
			want = pageSize
		}

		params := map[string]string{
			"symbol":   symbol,
			"interval": tf,
			"limit":    strconv.Itoa(want),
		}
		if endTime > 0 {
			params["endTime"] = strconv.FormatInt(endTime, 10)
		}

		body, _, err := c.do(ctx, "GET", "/fapi/v1/klines", params, false)
		if err != nil {
			return nil, err
		}

		var raw [][]interface{}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("exchange: decode klines: %w", err)
		}
		if len(raw) == 0 {
			break
		}

		page := make([]Candle, len(raw))
		for i, row := range raw {
			page[i] = candleFromRow(row, period)
		}
		pages = append(pages, page)

		remaining -= len(page)
		endTime = page[0].OpenTime.UnixMilli() - 1

		if len(raw) < want {
			break // exhausted exchange history
		}
		if remaining > 0 {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// pages were fetched newest-first; reverse and concatenate ascending.
	var all []Candle
	for i := len(pages) - 1; i >= 0; i-- {
		all = append(all, pages[i]...)
	}

	if !includeOpen && len(all) > 0 && !all[len(all)-1].IsClosed {
		all = all[:len(all)-1]
	}
	return all, nil
}

// candleFromRow decodes one kline row. IsClosed holds the real per-candle
// state: the candle's close time has passed as of now. Only the tail
// candle of a fetch can still be open, but every row carries the honest
// value so an includeOpen caller can tell the two apart.
func candleFromRow(row []interface{}, periodSeconds int64) Candle {
	get := func(i int) float64 {
		s, _ := row[i].(string)
		return parseFloat(s)
	}
	openMs, _ := row[0].(float64)
	openTime := time.UnixMilli(int64(openMs))
	closeTime := openTime.Add(time.Duration(periodSeconds) * time.Second)
	return Candle{
		OpenTime: openTime,
		Open:     get(1),
		High:     get(2),
		Low:      get(3),
		Close:    get(4),
		Volume:   get(5),
		IsClosed: closeTime.Before(time.Now()),
	}
}

// GetBalance returns the USDT available balance.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	body, _, err := c.do(ctx, "GET", "/fapi/v2/account", nil, true)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Assets []struct {
			Asset              string `json:"asset"`
			AvailableBalance   string `json:"availableBalance"`
		} `json:"assets"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("exchange: decode account: %w", err)
	}
	for _, a := range resp.Assets {
		if a.Asset == "USDT" {
			return parseFloat(a.AvailableBalance), nil
		}
	}
	return 0, nil
}

// GetClosedTrades returns normalized trades newest-first. When no range is
// given it defaults to the last 24h. Any failure is treated as "no
// history" and returns an empty, non-error slice.
func (c *Client) GetClosedTrades(ctx context.Context, symbol string, limit int, start, end time.Time) []Trade {
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end.Add(-24 * time.Hour)
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	params := map[string]string{
		"symbol":    symbol,
		"startTime": strconv.FormatInt(start.UnixMilli(), 10),
		"endTime":   strconv.FormatInt(end.UnixMilli(), 10),
		"limit":     strconv.Itoa(limit),
	}
	body, _, err := c.do(ctx, "GET", "/fapi/v2/account/trades", params, true)
	if err != nil {
		return nil
	}
	var raw []struct {
		Symbol      string `json:"symbol"`
		OrderID     int64  `json:"orderId"`
		Side        string `json:"side"`
		Price       string `json:"price"`
		Qty         string `json:"qty"`
		QuoteQty    string `json:"quoteQty"`
		RealizedPnl string `json:"realizedPnl"`
		Time        int64  `json:"time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}

	out := make([]Trade, len(raw))
	for i, r := range raw {
		out[i] = Trade{
			Symbol:      r.Symbol,
			OrderID:     r.OrderID,
			Side:        r.Side,
			Price:       parseFloat(r.Price),
			Qty:         parseFloat(r.Qty),
			QuoteQty:    parseFloat(r.QuoteQty),
			RealizedPnL: parseFloat(r.RealizedPnl),
			Time:        time.UnixMilli(r.Time),
		}
	}
	// newest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// SetLeverage sets leverage for symbol. No-op business errors (already set)
// are returned as nil.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := map[string]string{"symbol": symbol, "leverage": strconv.Itoa(leverage)}
	_, _, err := c.do(ctx, "POST", "/fapi/v1/leverage", params, true)
	if err != nil && IsNoop(err) {
		return nil
	}
	return err
}

// MarginType is ISOLATED or CROSSED.
type MarginType string

const (
	Isolated MarginType = "ISOLATED"
	Crossed  MarginType = "CROSSED"
)

// SetMarginType sets the margin mode for symbol. No-op business errors are
// returned as nil.
func (c *Client) SetMarginType(ctx context.Context, symbol string, mt MarginType) error {
	params := map[string]string{"symbol": symbol, "marginType": string(mt)}
	_, _, err := c.do(ctx, "POST", "/fapi/v1/marginType", params, true)
	if err != nil && IsNoop(err) {
		return nil
	}
	return err
}

// OrderRequest describes one order to place.
type OrderRequest struct {
	Symbol        string
	Side          string // BUY or SELL
	PositionSide  string // LONG or SHORT
	Type          string // MARKET, LIMIT, STOP_MARKET, TAKE_PROFIT_MARKET
	Quantity      float64
	ClosePosition bool
	Price         float64
	StopPrice     float64
}

// PlaceFuturesOrder submits one order. Quantities and prices are
// stringified before signing, matching the canonical-query contract.
func (c *Client) PlaceFuturesOrder(ctx context.Context, o OrderRequest) (*OrderResult, error) {
	params := map[string]string{
		"symbol": o.Symbol,
		"side":   o.Side,
		"type":   o.Type,
	}
	if o.PositionSide != "" {
		params["positionSide"] = o.PositionSide
	}
	if o.ClosePosition {
		params["closePosition"] = "true"
	} else if o.Quantity > 0 {
		params["quantity"] = formatNumber(o.Quantity)
	}
	if o.Price > 0 {
		params["price"] = formatNumber(o.Price)
		params["timeInForce"] = "GTC"
	}
	if o.StopPrice > 0 {
		params["stopPrice"] = formatNumber(o.StopPrice)
	}

	body, _, err := c.do(ctx, "POST", "/fapi/v1/order", params, true)
	if err != nil {
		return nil, err
	}
	var resp struct {
		OrderID     int64  `json:"orderId"`
		Symbol      string `json:"symbol"`
		Side        string `json:"side"`
		Type        string `json:"type"`
		Status      string `json:"status"`
		Price       string `json:"price"`
		StopPrice   string `json:"stopPrice"`
		AvgPrice    string `json:"avgPrice"`
		ExecutedQty string `json:"executedQty"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("exchange: decode order response: %w", err)
	}
	return &OrderResult{
		OrderID:     resp.OrderID,
		Symbol:      resp.Symbol,
		Side:        resp.Side,
		Type:        resp.Type,
		Status:      resp.Status,
		Price:       parseFloat(resp.Price),
		StopPrice:   parseFloat(resp.StopPrice),
		AvgPrice:    parseFloat(resp.AvgPrice),
		ExecutedQty: parseFloat(resp.ExecutedQty),
	}, nil
}

const positionEpsilon = 1e-8

// GetPosition returns rows with |positionAmt| > epsilon. symbol may be
// empty to request every position.
func (c *Client) GetPosition(ctx context.Context, symbol string) ([]PositionRisk, error) {
	params := map[string]string{}
	if symbol != "" {
		params["symbol"] = symbol
	}
	body, _, err := c.do(ctx, "GET", "/fapi/v2/positionRisk", params, true)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		MarkPrice        string `json:"markPrice"`
		UnRealizedProfit string `json:"unRealizedProfit"`
		Leverage         string `json:"leverage"`
		PositionSide     string `json:"positionSide"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("exchange: decode positionRisk: %w", err)
	}

	var out []PositionRisk
	for _, r := range raw {
		amt := parseFloat(r.PositionAmt)
		if amt > positionEpsilon || amt < -positionEpsilon {
			lev, _ := strconv.Atoi(r.Leverage)
			out = append(out, PositionRisk{
				Symbol:           r.Symbol,
				PositionAmt:      amt,
				EntryPrice:       parseFloat(r.EntryPrice),
				MarkPrice:        parseFloat(r.MarkPrice),
				UnrealizedProfit: parseFloat(r.UnRealizedProfit),
				Leverage:         lev,
				PositionSide:     r.PositionSide,
			})
		}
	}
	return out, nil
}

// CancelOrder cancels one order by id.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := map[string]string{"symbol": symbol, "orderId": strconv.FormatInt(orderID, 10)}
	_, _, err := c.do(ctx, "DELETE", "/fapi/v1/order", params, true)
	return err
}

// CancelAllOrders cancels every open order for symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	params := map[string]string{"symbol": symbol}
	_, _, err := c.do(ctx, "DELETE", "/fapi/v1/allOpenOrders", params, true)
	return err
}

// parseTimeframeSeconds duplicates internal/timeutil's tiny multiplier
// table so this package does not import timeutil; both must agree on units.
func parseTimeframeSeconds(tf string) (int64, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("exchange: invalid timeframe %q", tf)
	}
	unit := tf[len(tf)-1]
	var mult int64
	switch unit {
	case 'm':
		mult = 60
	case 'h':
		mult = 3600
	case 'd':
		mult = 86400
	case 'w':
		mult = 604800
	case 'M':
		mult = 2592000
	default:
		return 0, fmt.Errorf("exchange: unknown timeframe unit %q", tf)
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("exchange: invalid timeframe magnitude %q", tf)
	}
	return int64(n) * mult, nil
}
