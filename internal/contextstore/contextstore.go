// Package contextstore persists the advisor's rolling "lessons learned"
// context as bounded, atomically-written JSON files under a project-local
// data directory. Only the scanner mutates this store, and the process
// owns it exclusively — writes for one mutator complete before the next
// begins via an in-process mutex.
package contextstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

const (
	maxReviewKnowledge  = 20
	maxOptimizedStrategies = 10
	maxLearningResults  = 20
)

// ReviewEntry is one accepted trade review.
type ReviewEntry struct {
	Symbol       string    `json:"symbol"`
	Score        float64   `json:"score"`
	Strengths    []string  `json:"strengths"`
	Weaknesses   []string  `json:"weaknesses"`
	Lessons      []string  `json:"lessons"`
	Improvements []string  `json:"improvements"`
	Summary      string    `json:"summary"`
	ReviewedAt   time.Time `json:"reviewedAt"`
}

// Strategy is one optimized-strategy snapshot derived from reviews.
type Strategy struct {
	Name               string    `json:"name"`
	Rules              []string  `json:"rules"`
	EntryConditions    []string  `json:"entryConditions"`
	ExitRules          []string  `json:"exitRules"`
	BasedOnReviews     int       `json:"basedOnReviews"`
	OptimizationPoints []string  `json:"optimizationPoints"`
	CreatedAt          time.Time `json:"createdAt"`
}

// LearningEntry is one free-form learning snippet.
type LearningEntry struct {
	Topic     string    `json:"topic"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReviewedSymbol records that a symbol's closed trade was already
// reviewed, to dedup the review post-hook within a day.
type ReviewedSymbol struct {
	ReviewedAt time.Time `json:"reviewedAt"`
	TradeInfo  string    `json:"tradeInfo"`
}

type payload[T any] struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	Count     int       `json:"count"`
	Items     []T       `json:"items"`
}

// Store holds the four persisted context files. First use lazily loads
// from disk; every mutator saves its file synchronously before returning,
// so the store itself never saves in the background.
type Store struct {
	dir string
	mu  sync.Mutex

	loaded    bool
	reviews   []ReviewEntry
	strategies []Strategy
	learnings []LearningEntry
	reviewed  map[string]ReviewedSymbol
}

// New constructs a Store rooted at dir (typically "data/context").
func New(dir string) *Store {
	return &Store{dir: dir, reviewed: map[string]ReviewedSymbol{}}
}

func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.reviews = loadBounded[ReviewEntry](s.path("review_knowledge.json"))
	s.strategies = loadBounded[Strategy](s.path("optimized_strategies.json"))
	s.learnings = loadBounded[LearningEntry](s.path("learning_results.json"))

	s.reviewed = map[string]ReviewedSymbol{}
	if raw, err := os.ReadFile(s.path("reviewed_symbols.json")); err == nil {
		_ = sonic.Unmarshal(raw, &s.reviewed)
	}
	s.loaded = true
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func loadBounded[T any](path string) []T {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var p payload[T]
	if err := sonic.Unmarshal(raw, &p); err != nil {
		return nil
	}
	return p.Items
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("contextstore: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("contextstore: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("contextstore: rename: %w", err)
	}
	return nil
}

func saveBounded[T any](path string, items []T) error {
	p := payload[T]{Version: 1, UpdatedAt: time.Now(), Count: len(items), Items: items}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("contextstore: marshal: %w", err)
	}
	return writeAtomic(path, data)
}

func evictOldest[T any](items []T, max int) []T {
	if len(items) <= max {
		return items
	}
	return items[len(items)-max:]
}

// AddReview appends a review, evicting the oldest beyond the cap, and
// persists the file synchronously (the caller decides whether to run this
// in a goroutine for "asynchronous save" semantics).
func (s *Store) AddReview(e ReviewEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	e.ReviewedAt = time.Now()
	s.reviews = evictOldest(append(s.reviews, e), maxReviewKnowledge)
	return saveBounded(s.path("review_knowledge.json"), s.reviews)
}

// AddStrategy appends an optimized strategy, evicting the oldest beyond
// the cap.
func (s *Store) AddStrategy(st Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	st.CreatedAt = time.Now()
	s.strategies = evictOldest(append(s.strategies, st), maxOptimizedStrategies)
	return saveBounded(s.path("optimized_strategies.json"), s.strategies)
}

// AddLearning appends a learning snippet, evicting the oldest beyond the
// cap.
func (s *Store) AddLearning(l LearningEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	l.CreatedAt = time.Now()
	s.learnings = evictOldest(append(s.learnings, l), maxLearningResults)
	return saveBounded(s.path("learning_results.json"), s.learnings)
}

// MarkReviewed records symbol as reviewed today.
func (s *Store) MarkReviewed(symbol, tradeInfo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	s.reviewed[symbol] = ReviewedSymbol{ReviewedAt: time.Now(), TradeInfo: tradeInfo}
	data, err := json.MarshalIndent(s.reviewed, "", "  ")
	if err != nil {
		return fmt.Errorf("contextstore: marshal reviewed: %w", err)
	}
	return writeAtomic(s.path("reviewed_symbols.json"), data)
}

// IsReviewedToday reports whether symbol was already marked reviewed on
// the current calendar day.
func (s *Store) IsReviewedToday(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	r, ok := s.reviewed[symbol]
	if !ok {
		return false
	}
	now := time.Now()
	ry, rm, rd := r.ReviewedAt.Date()
	ny, nm, nd := now.Date()
	return ry == ny && rm == nm && rd == nd
}

// RecentReviews returns up to n of the most recent reviews.
func (s *Store) RecentReviews(n int) []ReviewEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return lastN(s.reviews, n)
}

// RecentStrategies returns up to n of the most recent strategies.
func (s *Store) RecentStrategies(n int) []Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return lastN(s.strategies, n)
}

// RecentLearnings returns up to n of the most recent learning entries.
func (s *Store) RecentLearnings(n int) []LearningEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return lastN(s.learnings, n)
}

func lastN[T any](items []T, n int) []T {
	if n >= len(items) {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}
	out := make([]T, n)
	copy(out, items[len(items)-n:])
	return out
}
