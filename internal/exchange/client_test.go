package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCanonicalQueryDeterministic(t *testing.T) {
	params := map[string]string{"symbol": "BTCUSDT", "side": "BUY", "quantity": "0.5"}
	q1 := canonicalQuery(map[string]string{"symbol": "BTCUSDT", "side": "BUY", "quantity": "0.5"})
	q2 := canonicalQuery(params)
	if q1 != q2 {
		t.Fatalf("canonicalQuery not deterministic: %q vs %q", q1, q2)
	}
	want := "quantity=0.5&side=BUY&symbol=BTCUSDT"
	if q1 != want {
		t.Errorf("canonicalQuery = %q, want %q", q1, want)
	}
}

func TestSignatureDeterministicAndSensitive(t *testing.T) {
	c := &Client{apiSecret: "secret"}
	q := canonicalQuery(map[string]string{"symbol": "BTCUSDT", "timestamp": "1000"})
	sig1 := c.sign(q)
	sig2 := c.sign(q)
	if sig1 != sig2 {
		t.Fatalf("signature not deterministic")
	}

	mutated := canonicalQuery(map[string]string{"symbol": "ETHUSDT", "timestamp": "1000"})
	if c.sign(mutated) == sig1 {
		t.Errorf("mutated params produced identical signature")
	}
}

// recordingServer fakes a binance-compatible klines endpoint paging
// backwards by endTime, serving up to 1000 rows per call.
func recordingServer(t *testing.T, totalCandles int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 1000
		fmt.Sscanf(q.Get("limit"), "%d", &limit)
		endTimeMs := int64(0)
		if et := q.Get("endTime"); et != "" {
			fmt.Sscanf(et, "%d", &endTimeMs)
		} else {
			endTimeMs = int64(totalCandles) * 3600_000
		}

		// endTime is inclusive: serve every candle whose openTime <= endTime.
		endIdx := int(endTimeMs/3600_000) + 1
		if endIdx > totalCandles {
			endIdx = totalCandles
		}
		startIdx := endIdx - limit
		if startIdx < 0 {
			startIdx = 0
		}

		var rows [][]interface{}
		for i := startIdx; i < endIdx; i++ {
			openMs := float64(i) * 3600_000
			rows = append(rows, []interface{}{
				openMs, "100", "101", "99", "100.5", "10",
			})
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
}

func TestGetKlinesPagination(t *testing.T) {
	srv := recordingServer(t, 1500)
	defer srv.Close()

	c := &Client{baseURL: srv.URL, httpClient: srv.Client()}
	candles, err := c.GetKlines(context.Background(), "BTCUSDT", "1h", 1500, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 1500 {
		t.Fatalf("got %d candles, want 1500", len(candles))
	}
	seen := map[int64]bool{}
	for i, c := range candles {
		ms := c.OpenTime.UnixMilli()
		if seen[ms] {
			t.Fatalf("duplicate open time at index %d", i)
		}
		seen[ms] = true
		if i > 0 && !c.OpenTime.After(candles[i-1].OpenTime) {
			t.Fatalf("not strictly ascending at index %d", i)
		}
	}
}

func TestGetKlinesLargePagination(t *testing.T) {
	srv := recordingServer(t, 3000)
	defer srv.Close()

	c := &Client{baseURL: srv.URL, httpClient: srv.Client()}
	candles, err := c.GetKlines(context.Background(), "BTCUSDT", "1h", 2500, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2500 {
		t.Fatalf("got %d candles, want 2500", len(candles))
	}
}

func TestGetKlinesMarksOpenTailCandle(t *testing.T) {
	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := [][]interface{}{
			{float64(now.Add(-2 * time.Hour).Truncate(time.Hour).UnixMilli()), "100", "101", "99", "100.5", "10"},
			{float64(now.Truncate(time.Hour).UnixMilli()), "100", "101", "99", "100.5", "10"},
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	c := &Client{baseURL: srv.URL, httpClient: srv.Client()}

	candles, err := c.GetKlines(context.Background(), "BTCUSDT", "1h", 2, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2 with includeOpen=true", len(candles))
	}
	if !candles[0].IsClosed {
		t.Error("fully elapsed candle must be marked closed")
	}
	if candles[1].IsClosed {
		t.Error("current-hour candle must be marked still open")
	}

	closed, err := c.GetKlines(context.Background(), "BTCUSDT", "1h", 2, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(closed) != 1 {
		t.Fatalf("got %d candles, want 1 with the open tail stripped", len(closed))
	}
}

func TestSignatureErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": -1022, "msg": "Signature for this request is not valid."})
	}))
	defer srv.Close()

	c := &Client{baseURL: srv.URL, httpClient: srv.Client(), apiSecret: "x"}
	_, _, err := c.do(context.Background(), "GET", "/fapi/v2/account", nil, true)
	if err == nil {
		t.Fatal("expected error")
	}
	var authErr *AuthError
	if !asAuthError(err, &authErr) {
		t.Errorf("expected *AuthError, got %T: %v", err, err)
	}
}

func asAuthError(err error, target **AuthError) bool {
	if ae, ok := err.(*AuthError); ok {
		*target = ae
		return true
	}
	return false
}
