package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	db, err := NewStorage(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewStorageMigratesSchema(t *testing.T) {
	db := newTestStorage(t)

	// A fresh database must accept an empty scan immediately.
	if _, err := db.SaveScan(ScanRecord{ScanTime: time.Now(), Exchange: "binance", Timeframe: "1h"}, nil); err != nil {
		t.Fatalf("SaveScan on fresh schema: %v", err)
	}
}

func TestSaveScanRoundTrips(t *testing.T) {
	db := newTestStorage(t)

	scanTime := time.Now().Truncate(time.Second)
	id, err := db.SaveScan(ScanRecord{
		ScanTime: scanTime, Exchange: "binance", Timeframe: "1h",
		TotalSymbols: 3, AnalyzedCount: 2, Summary: "做多=1 做空=0 观望=1",
	}, []AnalysisRecord{
		{Symbol: "BTCUSDT", Action: "做多", Confidence: 0.8, Entry: 50000, StopLoss: 49800, TakeProfit: 50400, Leverage: 5, AnalyzedAt: scanTime},
		{Symbol: "ETHUSDT", Action: "观望", Confidence: 0.4, AnalyzedAt: scanTime},
	})
	if err != nil {
		t.Fatalf("SaveScan: %v", err)
	}
	if id <= 0 {
		t.Fatalf("scan id = %d, want positive", id)
	}

	scans, err := db.RecentScans(10)
	if err != nil {
		t.Fatalf("RecentScans: %v", err)
	}
	if len(scans) != 1 {
		t.Fatalf("got %d scans, want 1", len(scans))
	}
	if scans[0].AnalyzedCount != 2 || scans[0].Summary == "" {
		t.Errorf("scan row mismatch: %+v", scans[0])
	}

	analyses, err := db.AnalysesForScan(id)
	if err != nil {
		t.Fatalf("AnalysesForScan: %v", err)
	}
	if len(analyses) != 2 {
		t.Fatalf("got %d analyses, want 2", len(analyses))
	}
	if analyses[0].Symbol != "BTCUSDT" {
		t.Errorf("analyses ordered by symbol, got first = %s", analyses[0].Symbol)
	}
	if analyses[0].Entry != 50000 || analyses[0].StopLoss != 49800 {
		t.Errorf("price fields lost in round-trip: %+v", analyses[0])
	}
}

func TestRecentScansNewestFirst(t *testing.T) {
	db := newTestStorage(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		if _, err := db.SaveScan(ScanRecord{ScanTime: base.Add(time.Duration(i) * time.Minute), Exchange: "binance", Timeframe: "1h"}, nil); err != nil {
			t.Fatalf("SaveScan #%d: %v", i, err)
		}
	}

	scans, err := db.RecentScans(2)
	if err != nil {
		t.Fatalf("RecentScans: %v", err)
	}
	if len(scans) != 2 {
		t.Fatalf("got %d scans, want 2 (limit)", len(scans))
	}
	if !scans[0].ScanTime.After(scans[1].ScanTime) {
		t.Errorf("scans not newest-first: %v then %v", scans[0].ScanTime, scans[1].ScanTime)
	}
}

func TestSaveReviewAndRecentReviews(t *testing.T) {
	db := newTestStorage(t)

	for i, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		err := db.SaveReview(ReviewRecord{
			Symbol: sym, Score: 0.5 + float64(i)*0.2, Summary: "复盘",
			ReviewedAt: time.Now().Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("SaveReview(%s): %v", sym, err)
		}
	}

	reviews, err := db.RecentReviews(10)
	if err != nil {
		t.Fatalf("RecentReviews: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("got %d reviews, want 2", len(reviews))
	}
	if reviews[0].Symbol != "ETHUSDT" {
		t.Errorf("reviews not newest-first, got %s", reviews[0].Symbol)
	}
}

func TestActionStatsCountsWithinWindow(t *testing.T) {
	db := newTestStorage(t)

	now := time.Now()
	_, err := db.SaveScan(ScanRecord{ScanTime: now, Exchange: "binance", Timeframe: "1h"}, []AnalysisRecord{
		{Symbol: "BTCUSDT", Action: "做多", AnalyzedAt: now},
		{Symbol: "ETHUSDT", Action: "做多", AnalyzedAt: now},
		{Symbol: "SOLUSDT", Action: "观望", AnalyzedAt: now},
		{Symbol: "XRPUSDT", Action: "做空", AnalyzedAt: now.Add(-48 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("SaveScan: %v", err)
	}

	stats, err := db.ActionStats(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("ActionStats: %v", err)
	}
	if stats["做多"] != 2 || stats["观望"] != 1 {
		t.Errorf("stats = %v, want 做多=2 观望=1", stats)
	}
	if stats["做空"] != 0 {
		t.Errorf("stale analysis leaked into the window: %v", stats)
	}
}
