// Package storage indexes scan batches and trade reviews into SQLite so
// the read-only dashboard can query them without re-reading every JSON
// file under data/. The scanner and advisor are the only writers; this
// package never mutates the context-store or per-scan JSON files, it only
// mirrors a queryable summary of them.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ScanRecord is one persisted scan batch summary.
type ScanRecord struct {
	ID            int64
	ScanTime      time.Time
	Exchange      string
	Timeframe     string
	TotalSymbols  int
	AnalyzedCount int
	Summary       string
}

// AnalysisRecord is one symbol's result within a scan batch.
type AnalysisRecord struct {
	ID         int64
	ScanID     int64
	Symbol     string
	Action     string
	Confidence float64
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Leverage   int
	Reason     string
	AnalyzedAt time.Time
}

// ReviewRecord is one persisted trade review.
type ReviewRecord struct {
	ID         int64
	Symbol     string
	Score      float64
	Summary    string
	ReviewedAt time.Time
}

// Storage wraps the SQLite index.
type Storage struct {
	db *sql.DB
}

// NewStorage opens (and migrates) the SQLite database at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("storage: init schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_time DATETIME NOT NULL,
		exchange TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		total_symbols INTEGER NOT NULL,
		analyzed_count INTEGER NOT NULL,
		summary TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_scans_scan_time ON scans(scan_time DESC);

	CREATE TABLE IF NOT EXISTS analyses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id INTEGER NOT NULL REFERENCES scans(id),
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		confidence REAL NOT NULL,
		entry REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		leverage INTEGER NOT NULL,
		reason TEXT,
		analyzed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_scan_id ON analyses(scan_id);
	CREATE INDEX IF NOT EXISTS idx_analyses_symbol ON analyses(symbol, analyzed_at DESC);

	CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		score REAL NOT NULL,
		summary TEXT,
		reviewed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reviews_reviewed_at ON reviews(reviewed_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveScan inserts a scan batch and its per-symbol analyses, returning the
// new scan's row ID.
func (s *Storage) SaveScan(scan ScanRecord, analyses []AnalysisRecord) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("storage: begin: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO scans (scan_time, exchange, timeframe, total_symbols, analyzed_count, summary) VALUES (?, ?, ?, ?, ?, ?)`,
		scan.ScanTime, scan.Exchange, scan.Timeframe, scan.TotalSymbols, scan.AnalyzedCount, scan.Summary,
	)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("storage: insert scan: %w", err)
	}
	scanID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("storage: scan id: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO analyses (scan_id, symbol, action, confidence, entry, stop_loss, take_profit, leverage, reason, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("storage: prepare analyses: %w", err)
	}
	defer stmt.Close()

	for _, a := range analyses {
		if _, err := stmt.Exec(scanID, a.Symbol, a.Action, a.Confidence, a.Entry, a.StopLoss, a.TakeProfit, a.Leverage, a.Reason, a.AnalyzedAt); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("storage: insert analysis(%s): %w", a.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: commit: %w", err)
	}
	return scanID, nil
}

// SaveReview inserts one trade review.
func (s *Storage) SaveReview(r ReviewRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO reviews (symbol, score, summary, reviewed_at) VALUES (?, ?, ?, ?)`,
		r.Symbol, r.Score, r.Summary, r.ReviewedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert review: %w", err)
	}
	return nil
}

// RecentScans returns the latest limit scans, newest first.
func (s *Storage) RecentScans(limit int) ([]ScanRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, scan_time, exchange, timeframe, total_symbols, analyzed_count, summary FROM scans ORDER BY scan_time DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query scans: %w", err)
	}
	defer rows.Close()

	var out []ScanRecord
	for rows.Next() {
		var r ScanRecord
		if err := rows.Scan(&r.ID, &r.ScanTime, &r.Exchange, &r.Timeframe, &r.TotalSymbols, &r.AnalyzedCount, &r.Summary); err != nil {
			return nil, fmt.Errorf("storage: scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AnalysesForScan returns every analysis row belonging to scanID.
func (s *Storage) AnalysesForScan(scanID int64) ([]AnalysisRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, scan_id, symbol, action, confidence, entry, stop_loss, take_profit, leverage, reason, analyzed_at
		 FROM analyses WHERE scan_id = ? ORDER BY symbol`,
		scanID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query analyses: %w", err)
	}
	defer rows.Close()

	var out []AnalysisRecord
	for rows.Next() {
		var a AnalysisRecord
		if err := rows.Scan(&a.ID, &a.ScanID, &a.Symbol, &a.Action, &a.Confidence, &a.Entry, &a.StopLoss, &a.TakeProfit, &a.Leverage, &a.Reason, &a.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("storage: analysis row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentReviews returns the latest limit trade reviews, newest first.
func (s *Storage) RecentReviews(limit int) ([]ReviewRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, symbol, score, summary, reviewed_at FROM reviews ORDER BY reviewed_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query reviews: %w", err)
	}
	defer rows.Close()

	var out []ReviewRecord
	for rows.Next() {
		var r ReviewRecord
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Score, &r.Summary, &r.ReviewedAt); err != nil {
			return nil, fmt.Errorf("storage: review row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActionStats counts analyses by action, keeping only rows whose own
// analyzed_at is at or after since (the parent scan's time is not
// consulted).
func (s *Storage) ActionStats(since time.Time) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT action, COUNT(*) FROM analyses WHERE analyzed_at >= ? GROUP BY action`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: action stats: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("storage: stats row: %w", err)
		}
		out[action] = count
	}
	return out, rows.Err()
}
