package logx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const logDayLayout = "20060102"

// RotatingWriter appends to logs/trading_<YYYYMMDD>.log, reopening the
// file whenever the calendar day changes. No external rotation library
// appears anywhere in this stack, so rotation is a plain io.Writer here.
type RotatingWriter struct {
	dir    string
	maxAge time.Duration

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewRotatingWriter creates dir if needed and opens today's log file.
// maxAge bounds retention: each day rollover re-runs the trim pass so a
// long-running process doesn't accumulate stale files until its next
// restart. maxAge <= 0 disables the rollover trim.
func NewRotatingWriter(dir string, maxAge time.Duration) (*RotatingWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("logx: mkdir %s: %w", dir, err)
	}
	w := &RotatingWriter{dir: dir, maxAge: maxAge}
	if err := w.reopen(time.Now().Format(logDayLayout)); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) pathFor(day string) string {
	return filepath.Join(w.dir, "trading_"+day+".log")
}

func (w *RotatingWriter) reopen(day string) error {
	if w.file != nil {
		w.file.Close()
	}
	f, err := os.OpenFile(w.pathFor(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("logx: open log file: %w", err)
	}
	w.day = day
	w.file = f
	return nil
}

// Write appends p to the current day's file, rolling over first when the
// day has changed since the last write.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	today := time.Now().Format(logDayLayout)
	if today != w.day {
		if err := w.reopen(today); err != nil {
			return 0, err
		}
		if w.maxAge > 0 {
			_ = TrimOldEntries(w.dir, w.maxAge)
		}
	}
	return w.file.Write(p)
}

// Close releases the current file handle.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// TrimOldEntries deletes log files whose entire day lies beyond maxAge
// and rewrites the surviving files keeping only entries newer than the
// cutoff. maxAge <= 0 means unlimited retention and is a no-op. Lines
// without a parseable timestamp are kept — dropping data on a format
// hiccup is worse than keeping a few stale lines.
func TrimOldEntries(dir string, maxAge time.Duration) error {
	if maxAge <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("logx: read log dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "trading_") || !strings.HasSuffix(name, ".log") {
			continue
		}
		dayStr := strings.TrimSuffix(strings.TrimPrefix(name, "trading_"), ".log")
		day, err := time.ParseInLocation(logDayLayout, dayStr, time.Local)
		if err != nil {
			continue
		}

		path := filepath.Join(dir, name)
		if day.Add(24 * time.Hour).Before(cutoff) {
			os.Remove(path)
			continue
		}
		if err := trimFile(path, cutoff); err != nil {
			return err
		}
	}
	return nil
}

func trimFile(path string, cutoff time.Time) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("logx: read %s: %w", path, err)
	}

	var kept []string
	changed := false
	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" {
			continue
		}
		ts, ok := entryTime(line)
		if ok && ts.Before(cutoff) {
			changed = true
			continue
		}
		kept = append(kept, line)
	}
	if !changed {
		return nil
	}

	out := strings.Join(kept, "\n")
	if out != "" {
		out += "\n"
	}
	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return fmt.Errorf("logx: rewrite %s: %w", path, err)
	}
	return nil
}

// entryTime extracts the zerolog "time" field from one JSON log line.
func entryTime(line string) (time.Time, bool) {
	const marker = `"time":"`
	idx := strings.Index(line, marker)
	if idx < 0 {
		return time.Time{}, false
	}
	rest := line[idx+len(marker):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, rest[:end])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
