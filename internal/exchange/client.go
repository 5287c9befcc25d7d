// Package exchange is a signed REST client for one binance-compatible
// perpetual-futures API. Every signed request builds its canonical query
// string exactly once and reuses that exact byte sequence for both HMAC
// signing and the outgoing request — two independent encoders for the
// same query is the recurring bug class this client is built to avoid.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rdone4425/trading-ai/internal/logx"
)

const (
	normalTimeout = 10 * time.Second
	syncTimeout   = 5 * time.Second
	recvWindow    = 5000
)

// Client is a long-lived HTTP client against one base URL. Its only
// mutable state is serverTimeOffsetMs, written once at construction and
// read thereafter — safe for concurrent use without a lock.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	log        *logx.ColorLogger

	serverTimeOffsetMs atomic.Int64
}

// Config configures client construction.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Proxy     string
}

// New constructs a Client and synchronizes the server time offset via
// GET /fapi/v1/time. A sync failure is non-fatal and yields an offset of 0.
func New(ctx context.Context, cfg Config, log *logx.ColorLogger) (*Client, error) {
	transport := &http.Transport{}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("exchange: invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Transport: transport},
		log:        log,
	}

	if err := c.syncServerTime(ctx); err != nil && log != nil {
		log.Warning(fmt.Sprintf("exchange: server time sync failed, using offset 0: %v", err))
	}
	return c, nil
}

func (c *Client) syncServerTime(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	localBefore := time.Now().UnixMilli()
	body, _, err := c.do(ctx, http.MethodGet, "/fapi/v1/time", nil, false)
	if err != nil {
		return err
	}
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("exchange: decode time response: %w", err)
	}
	offset := resp.ServerTime - localBefore
	c.serverTimeOffsetMs.Store(offset)
	if c.log != nil {
		c.log.Info(fmt.Sprintf("exchange: server time offset = %dms", offset))
	}
	return nil
}

// canonicalQuery renders params sorted lexicographically by key and joined
// with '&' as k=v pairs. Values are used exactly as given: callers render
// booleans and numbers (formatNumber) before they reach this point. This
// exact string is what gets signed and what gets sent.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, "&")
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// do issues one HTTP request. When signed is true, params gains timestamp
// and recvWindow, the canonical query is built once, signed, and the
// signature is appended to that exact string before use.
func (c *Client) do(ctx context.Context, method, path string, params map[string]string, signed bool) ([]byte, int, error) {
	if params == nil {
		params = map[string]string{}
	}

	var query string
	if signed {
		ts := time.Now().UnixMilli() + c.serverTimeOffsetMs.Load()
		params["timestamp"] = strconv.FormatInt(ts, 10)
		params["recvWindow"] = strconv.Itoa(recvWindow)

		query = canonicalQuery(params)
		signature := c.sign(query)
		query = query + "&signature=" + signature
	} else {
		query = canonicalQuery(params)
	}

	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	reqCtx, cancel := context.WithTimeout(ctx, normalTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, fullURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("exchange: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &TransientError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &TransientError{Op: path, Err: err}
	}

	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, &TransientError{Op: path, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.Unmarshal(body, &apiErr)

		if isSignatureError(apiErr.Code, apiErr.Msg) {
			return nil, resp.StatusCode, &AuthError{Op: path, Hint: apiErr.Msg}
		}
		return nil, resp.StatusCode, &APIError{Op: path, Code: apiErr.Code, Message: apiErr.Msg}
	}

	return body, resp.StatusCode, nil
}

func isSignatureError(code int, msg string) bool {
	// Binance-compatible: -1022 signature invalid, -2014/-2015 api-key issues.
	switch code {
	case -1022, -2014, -2015:
		return true
	}
	return strings.Contains(strings.ToLower(msg), "signature")
}
