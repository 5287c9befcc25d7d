package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rdone4425/trading-ai/internal/domain"
)

const (
	retentionDays  = 2
	cleanupInterval = 24 * time.Hour
	dateLayout     = "2006-01-02"
)

// BatchResult is one scan's persisted shape.
type BatchResult struct {
	ScanTime      time.Time        `json:"scanTime"`
	Exchange      string           `json:"exchange"`
	Timeframe     string           `json:"timeframe"`
	KlineType     string           `json:"klineType"`
	TotalSymbols  int              `json:"totalSymbols"`
	AnalyzedCount int              `json:"analyzedCount"`
	Summary       string           `json:"summary"`
	Results       []domain.Analysis `json:"results"`
}

// persistBatch writes batch as one JSON file under dir/<date>/ and runs the
// retention sweep if the last-cleanup marker is stale.
func persistBatch(dir string, batch BatchResult) error {
	dateDir := filepath.Join(dir, batch.ScanTime.Format(dateLayout))
	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return fmt.Errorf("scanner: mkdir %s: %w", dateDir, err)
	}

	name := fmt.Sprintf("analysis_%s.json", batch.ScanTime.Format("150405"))
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("scanner: marshal batch: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dateDir, name), data, 0644); err != nil {
		return fmt.Errorf("scanner: write batch: %w", err)
	}

	runRetentionSweep(dir, batch.ScanTime)
	return nil
}

// runRetentionSweep deletes date directories older than retentionDays when
// the .last_cleanup marker is older than cleanupInterval, then rewrites
// the marker. Failures are non-fatal: persistence never blocks the scan
// loop on housekeeping.
func runRetentionSweep(dir string, now time.Time) {
	markerPath := filepath.Join(dir, ".last_cleanup")

	if raw, err := os.ReadFile(markerPath); err == nil {
		if last, err := time.Parse(dateLayout, string(raw)); err == nil {
			if now.Sub(last) < cleanupInterval {
				return
			}
		}
	}

	entries, err := os.ReadDir(dir)
	if err == nil {
		cutoff := now.AddDate(0, 0, -retentionDays)
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			d, err := time.Parse(dateLayout, e.Name())
			if err != nil {
				continue
			}
			if d.Before(cutoff) {
				_ = os.RemoveAll(filepath.Join(dir, e.Name()))
			}
		}
	}

	_ = os.WriteFile(markerPath, []byte(now.Format(dateLayout)), 0644)
}
