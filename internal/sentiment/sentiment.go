// Package sentiment fetches a net market-sentiment reading for one base
// asset from a CryptoOracle-compatible endpoint. It is an optional fifth
// advisor input: a fetch failure degrades to an explanatory report line,
// never to an analysis failure.
package sentiment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	endpointPositive = "CO-A-02-01"
	endpointNegative = "CO-A-02-02"

	// The upstream feed lags real time by roughly 40 minutes; query a
	// window that ends before the lag so the first period has data.
	feedDelay   = 40 * time.Minute
	queryWindow = 4 * time.Hour
)

// Data is one resolved sentiment reading.
type Data struct {
	Success          bool
	PositiveRatio    float64
	NegativeRatio    float64
	NetSentiment     float64
	SentimentLevel   string
	DataTime         string
	DataDelayMinutes int
	Symbol           string
	Error            string
}

// Client calls the sentiment endpoint.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a Client against apiURL with apiKey. proxy may be
// empty; when set it is honored the same way the exchange client honors
// it, since a proxy-only deployment blocks direct egress for both.
func NewClient(apiURL, apiKey, proxy string) *Client {
	transport := &http.Transport{}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &Client{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second, Transport: transport},
	}
}

type request struct {
	APIKey    string   `json:"apiKey"`
	Endpoints []string `json:"endpoints"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	TimeType  string   `json:"timeType"`
	Token     []string `json:"token"`
}

type response struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    []struct {
		TimePeriods []struct {
			StartTime string `json:"startTime"`
			EndTime   string `json:"endTime"`
			Data      []struct {
				Endpoint string `json:"endpoint"`
				Value    string `json:"value"`
			} `json:"data"`
		} `json:"timePeriods"`
	} `json:"data"`
}

func failed(symbol, format string, args ...interface{}) *Data {
	return &Data{Success: false, Symbol: symbol, Error: fmt.Sprintf(format, args...)}
}

// Fetch returns the most recent complete positive/negative reading for the
// base asset (e.g. "BTC"). Every failure mode comes back as an unsuccessful
// Data, never an error — the advisor treats missing sentiment as
// degradation, not as a reason to skip the symbol.
func (c *Client) Fetch(ctx context.Context, base string) *Data {
	endTime := time.Now().Add(-feedDelay)
	startTime := endTime.Add(-queryWindow)

	body, err := sonic.Marshal(request{
		APIKey:    c.apiKey,
		Endpoints: []string{endpointPositive, endpointNegative},
		StartTime: startTime.Format("2006-01-02 15:04:05"),
		EndTime:   endTime.Format("2006-01-02 15:04:05"),
		TimeType:  "15m",
		Token:     []string{base},
	})
	if err != nil {
		return failed(base, "marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return failed(base, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failed(base, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failed(base, "http %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(base, "read response: %v", err)
	}

	var apiResp response
	if err := sonic.Unmarshal(raw, &apiResp); err != nil {
		return failed(base, "parse response: %v", err)
	}
	if apiResp.Code != 200 || len(apiResp.Data) == 0 {
		return failed(base, "api error: code=%d msg=%s", apiResp.Code, apiResp.Message)
	}

	for _, period := range apiResp.Data[0].TimePeriods {
		values := map[string]float64{}
		for _, item := range period.Data {
			if strings.TrimSpace(item.Value) == "" {
				continue
			}
			v, err := strconv.ParseFloat(item.Value, 64)
			if err != nil {
				continue
			}
			values[item.Endpoint] = v
		}

		positive, hasPositive := values[endpointPositive]
		negative, hasNegative := values[endpointNegative]
		if !hasPositive || !hasNegative {
			continue
		}

		net := positive - negative
		// The API echoes the wall-clock form the query window was built
		// from, so parse it back in local time. An unparseable time means
		// the delay is simply unknown, not a billion minutes.
		delayMinutes := 0
		if dataTime, err := time.ParseInLocation("2006-01-02 15:04:05", period.StartTime, time.Local); err == nil {
			delayMinutes = int(time.Since(dataTime).Minutes())
		}
		return &Data{
			Success:          true,
			PositiveRatio:    positive,
			NegativeRatio:    negative,
			NetSentiment:     net,
			SentimentLevel:   Interpret(net),
			DataTime:         period.StartTime,
			DataDelayMinutes: delayMinutes,
			Symbol:           base,
		}
	}

	return failed(base, "所有时间段数据都为空（可能数据延迟超过预期）")
}

// Report fetches and formats in one step; it satisfies the advisor's
// sentiment-source contract.
func (c *Client) Report(ctx context.Context, base string) string {
	return FormatReport(c.Fetch(ctx, base))
}

// Interpret maps a net sentiment value onto a human-readable level.
func Interpret(net float64) string {
	switch {
	case net >= 0.7:
		return "极度乐观"
	case net >= 0.5:
		return "强烈乐观"
	case net >= 0.3:
		return "偏向乐观"
	case net >= 0.1:
		return "轻度乐观"
	case net >= -0.1:
		return "中性"
	case net >= -0.3:
		return "轻度悲观"
	case net >= -0.5:
		return "偏向悲观"
	case net >= -0.7:
		return "强烈悲观"
	default:
		return "极度悲观"
	}
}

// FormatReport renders data as the prompt block the advisor injects into
// the analysis user message.
func FormatReport(d *Data) string {
	if d == nil {
		return ""
	}
	if !d.Success {
		return fmt.Sprintf("市场情绪数据获取失败: %s（建议谨慎交易）", d.Error)
	}

	var trend string
	switch {
	case d.NetSentiment >= 0.3:
		trend = "市场情绪偏向乐观，多头占据优势。"
	case d.NetSentiment >= -0.3:
		trend = "市场情绪相对中性，多空分歧较大。"
	default:
		trend = "市场情绪偏向悲观，空头占据优势。"
	}

	return fmt.Sprintf(
		"市场情绪[%s]: 正面=%.2f%% 负面=%.2f%% 净值=%+.4f 等级=%s（数据时间 %s，延迟 %d 分钟）\n%s",
		d.Symbol, d.PositiveRatio*100, d.NegativeRatio*100, d.NetSentiment,
		d.SentimentLevel, d.DataTime, d.DataDelayMinutes, trend,
	)
}
