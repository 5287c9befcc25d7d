package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInterpretLevels(t *testing.T) {
	cases := []struct {
		net  float64
		want string
	}{
		{0.8, "极度乐观"},
		{0.4, "偏向乐观"},
		{0.0, "中性"},
		{-0.4, "偏向悲观"},
		{-0.9, "极度悲观"},
	}
	for _, c := range cases {
		if got := Interpret(c.net); got != c.want {
			t.Errorf("Interpret(%f) = %q, want %q", c.net, got, c.want)
		}
	}
}

func sentimentHandler(positive, negative string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 200,
			"data": []map[string]interface{}{{
				"timePeriods": []map[string]interface{}{{
					"startTime": time.Now().Add(-time.Hour).Format("2006-01-02 15:04:05"),
					"data": []map[string]string{
						{"endpoint": "CO-A-02-01", "value": positive},
						{"endpoint": "CO-A-02-02", "value": negative},
					},
				}},
			}},
		})
	}
}

func TestFetchResolvesNetSentiment(t *testing.T) {
	srv := httptest.NewServer(sentimentHandler("0.62", "0.21"))
	defer srv.Close()

	d := NewClient(srv.URL, "key", "").Fetch(context.Background(), "BTC")
	if !d.Success {
		t.Fatalf("expected success, got error %q", d.Error)
	}
	if d.NetSentiment < 0.40 || d.NetSentiment > 0.42 {
		t.Errorf("net sentiment = %f, want 0.41", d.NetSentiment)
	}
	if d.SentimentLevel != "偏向乐观" {
		t.Errorf("level = %q, want 偏向乐观", d.SentimentLevel)
	}
}

func TestFetchEmptyPeriodsDegradesWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 200,
			"data": []map[string]interface{}{{"timePeriods": []map[string]interface{}{}}},
		})
	}))
	defer srv.Close()

	d := NewClient(srv.URL, "key", "").Fetch(context.Background(), "BTC")
	if d.Success {
		t.Fatal("expected failure for empty periods")
	}
	if d.Error == "" {
		t.Error("expected an explanatory error string")
	}
}

func TestFetchServerErrorDegradesWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewClient(srv.URL, "key", "").Fetch(context.Background(), "ETH")
	if d.Success {
		t.Fatal("expected failure for http 500")
	}
	if d.Symbol != "ETH" {
		t.Errorf("failure result should carry the symbol, got %q", d.Symbol)
	}
}

func TestFormatReportFailureMentionsCaution(t *testing.T) {
	got := FormatReport(&Data{Success: false, Symbol: "BTC", Error: "timeout"})
	if !strings.Contains(got, "获取失败") || !strings.Contains(got, "timeout") {
		t.Errorf("failure report = %q", got)
	}
}

func TestFormatReportIncludesLevelAndNet(t *testing.T) {
	got := FormatReport(&Data{
		Success: true, Symbol: "BTC", PositiveRatio: 0.6, NegativeRatio: 0.2,
		NetSentiment: 0.4, SentimentLevel: "偏向乐观", DataTime: "2026-08-01 10:00:00",
	})
	if !strings.Contains(got, "偏向乐观") || !strings.Contains(got, "+0.4000") {
		t.Errorf("report = %q", got)
	}
}
