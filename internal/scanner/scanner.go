// Package scanner drives the recurring scan-advise-trade loop: pick a
// symbol universe, analyze each concurrently under a bounded semaphore,
// optionally execute trades, persist the batch, and run the
// learning/review post-hook.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/rdone4425/trading-ai/internal/advisor"
	"github.com/rdone4425/trading-ai/internal/contextstore"
	"github.com/rdone4425/trading-ai/internal/domain"
	"github.com/rdone4425/trading-ai/internal/exchange"
	"github.com/rdone4425/trading-ai/internal/indicators"
	"github.com/rdone4425/trading-ai/internal/logx"
	"github.com/rdone4425/trading-ai/internal/storage"
	"github.com/rdone4425/trading-ai/internal/timeutil"
	"github.com/rdone4425/trading-ai/internal/trader"
)

// Config bounds one Scanner's behavior. Every field mirrors one row of the
// configuration surface.
type Config struct {
	ExchangeName string

	Timeframe string
	Lookback  int
	KlineType string // "closed" or "open"

	CustomSymbols []string
	ScanTypes     []string
	ScanTopN      int
	DefaultQuote  string

	MaxConcurrentAnalysis int
	AIConfidenceThreshold float64
	AccountBalance        float64

	AutoScan     bool
	WaitForClose bool

	SaveAnalysisResults bool
	AnalysisResultsDir  string

	EnableAutoLearning bool
	EnableAutoReview   bool
	AutoLearningTopics []string

	IndicatorSpecs []indicators.Spec
}

// Scanner wires the exchange adapter, advisor, optional trader, and
// context store together for one process's scan loop.
type Scanner struct {
	client   *exchange.Client
	adv      *advisor.Advisor
	trd      *trader.Trader // nil disables trade execution entirely
	store    *contextstore.Store
	ledger   *storage.Storage // nil disables the sqlite mirror entirely
	cfg      Config
	log      *logx.ColorLogger

	stopping bool
	mu       sync.Mutex
}

// New constructs a Scanner. trd may be nil to run in analysis-only mode.
// ledger may be nil to skip the sqlite dashboard mirror.
func New(client *exchange.Client, adv *advisor.Advisor, trd *trader.Trader, store *contextstore.Store, ledger *storage.Storage, cfg Config, log *logx.ColorLogger) *Scanner {
	return &Scanner{client: client, adv: adv, trd: trd, store: store, ledger: ledger, cfg: cfg, log: log}
}

// Stop requests the running auto-scan loop to end after its current phase.
func (s *Scanner) Stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
}

func (s *Scanner) shouldStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// RunOnce performs one full scan: universe selection, per-symbol analysis
// (and optional execution), persistence, and the learning/review
// post-hook.
func (s *Scanner) RunOnce(ctx context.Context) (BatchResult, error) {
	if s.log != nil {
		s.log.Subheader(fmt.Sprintf("市场扫描 %s · %s", s.cfg.ExchangeName, s.cfg.Timeframe), '-', 60)
	}

	perpetuals, err := s.client.ListPerpetualSymbols(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("scanner: list symbols: %w", err)
	}
	perpSet := make(map[string]bool, len(perpetuals))
	for _, p := range perpetuals {
		perpSet[p] = true
	}

	tickers, err := s.client.GetAllTickers24h(ctx, perpSet)
	if err != nil {
		return BatchResult{}, fmt.Errorf("scanner: tickers: %w", err)
	}

	universe := selectUniverse(s.cfg.CustomSymbols, s.cfg.ScanTypes, s.cfg.ScanTopN, s.cfg.DefaultQuote, tickers, perpetuals)
	if s.log != nil {
		s.log.Step(1, fmt.Sprintf("已选取 %d 个交易对", len(universe)))
	}

	balance := s.cfg.AccountBalance
	if s.trd != nil {
		if b, err := s.client.GetBalance(ctx); err == nil && b > 0 {
			balance = b
		}
	}

	if s.log != nil {
		s.log.Step(2, fmt.Sprintf("并发分析（上限 %d）", s.cfg.MaxConcurrentAnalysis))
	}
	results := s.analyzeUniverse(ctx, universe, balance)

	batch := BatchResult{
		ScanTime:      time.Now(),
		Exchange:      s.cfg.ExchangeName,
		Timeframe:     s.cfg.Timeframe,
		KlineType:     s.cfg.KlineType,
		TotalSymbols:  len(universe),
		AnalyzedCount: len(results),
		Summary:       summarize(results),
		Results:       results,
	}

	if s.log != nil {
		s.log.Info(fmt.Sprintf("scan complete: %d/%d symbols analyzed — %s", len(results), len(universe), batch.Summary))
	}

	if s.cfg.SaveAnalysisResults {
		if err := persistBatch(s.cfg.AnalysisResultsDir, batch); err != nil && s.log != nil {
			s.log.Warning(fmt.Sprintf("scanner: persist batch: %v", err))
		}
	}

	s.mirrorBatch(batch)

	if s.log != nil {
		s.log.Step(3, "学习与复盘")
	}
	s.runPostHook(ctx, results)

	return batch, nil
}

// analyzeUniverse runs the per-symbol pipeline concurrently, bounded by
// MAX_CONCURRENT_ANALYSIS. A task failure is swallowed into a skipped
// result; the batch continues.
func (s *Scanner) analyzeUniverse(ctx context.Context, universe []string, balance float64) []domain.Analysis {
	limit := s.cfg.MaxConcurrentAnalysis
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var results []domain.Analysis

	for _, sym := range universe {
		if s.shouldStop() {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			analysis, err := s.analyzeSymbol(ctx, symbol, balance)
			if err != nil {
				if s.log != nil {
					s.log.Warning(fmt.Sprintf("scanner: %s: %v", symbol, err))
				}
				return
			}

			mu.Lock()
			results = append(results, analysis)
			mu.Unlock()
		}(sym)
	}
	wg.Wait()
	return results
}

func (s *Scanner) analyzeSymbol(ctx context.Context, symbol string, balance float64) (domain.Analysis, error) {
	candles, err := s.client.GetKlines(ctx, symbol, s.cfg.Timeframe, s.cfg.Lookback, s.cfg.KlineType == "open")
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("klines: %w", err)
	}

	values := indicators.Compute(candles, s.cfg.IndicatorSpecs)

	analysis, err := s.adv.Analyze(ctx, symbol, candles, values, s.cfg.Timeframe, balance)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("advisor: %w", err)
	}

	if s.trd != nil && analysis.Action != domain.ActionObserve && analysis.Confidence >= s.cfg.AIConfidenceThreshold {
		result, err := s.trd.ExecuteTrade(ctx, analysis, balance)
		if err != nil {
			if s.log != nil {
				s.log.Warning(fmt.Sprintf("scanner: %s: trade execution error: %v", symbol, err))
			}
		} else if s.log != nil {
			s.log.Info(fmt.Sprintf("scanner: %s: %s", symbol, result.Message))
		}
	}

	return analysis, nil
}

// mirrorBatch indexes the batch into the sqlite ledger so the read-only
// dashboard can query it without re-reading every JSON file under data/.
// This is a best-effort mirror: the JSON file written by persistBatch (when
// enabled) remains the source of truth, never the other way around.
func (s *Scanner) mirrorBatch(batch BatchResult) {
	if s.ledger == nil {
		return
	}
	analyses := make([]storage.AnalysisRecord, 0, len(batch.Results))
	for _, r := range batch.Results {
		analyses = append(analyses, storage.AnalysisRecord{
			Symbol:     r.Symbol,
			Action:     string(r.Action),
			Confidence: r.Confidence,
			Entry:      r.Entry,
			StopLoss:   r.StopLoss,
			TakeProfit: r.TakeProfit,
			Leverage:   r.Leverage,
			Reason:     r.Reason,
			AnalyzedAt: r.AnalyzedAt,
		})
	}
	if _, err := s.ledger.SaveScan(storage.ScanRecord{
		ScanTime:      batch.ScanTime,
		Exchange:      batch.Exchange,
		Timeframe:     batch.Timeframe,
		TotalSymbols:  batch.TotalSymbols,
		AnalyzedCount: batch.AnalyzedCount,
		Summary:       batch.Summary,
	}, analyses); err != nil && s.log != nil {
		s.log.Warning(fmt.Sprintf("scanner: mirror batch to ledger: %v", err))
	}
}

func summarize(results []domain.Analysis) string {
	counts := map[domain.Action]int{}
	for _, r := range results {
		counts[r.Action]++
	}
	return fmt.Sprintf("做多=%d 做空=%d 观望=%d", counts[domain.ActionLong], counts[domain.ActionShort], counts[domain.ActionObserve])
}

// runPostHook runs the learning and review flows after a batch, each
// individually best-effort: failures are logged, never fatal to the scan.
func (s *Scanner) runPostHook(ctx context.Context, results []domain.Analysis) {
	if s.trd != nil {
		s.trd.AdjustProtectiveStops(ctx)
	}

	if s.cfg.EnableAutoLearning && s.adv != nil {
		topics := s.cfg.AutoLearningTopics
		if len(topics) == 0 {
			topics = advisor.TopicsFromBatch(results)
		}
		for _, topic := range topics {
			if topic == "" {
				continue
			}
			if err := s.adv.ProvideLearning(ctx, topic, summarize(results)); err != nil && s.log != nil {
				s.log.Warning(fmt.Sprintf("scanner: learning(%s): %v", topic, err))
			}
		}
	}

	if s.cfg.EnableAutoReview && s.adv != nil {
		s.runReview(ctx)
	}
}

func (s *Scanner) runReview(ctx context.Context) {
	now := time.Now()
	trades := s.client.GetClosedTrades(ctx, "", 1000, now.Add(-24*time.Hour), now)
	if len(trades) == 0 {
		return
	}

	for _, closed := range buildClosedTrades(trades) {
		if s.store.IsReviewedToday(closed.Symbol) {
			continue
		}
		review, err := s.adv.ReviewTrade(ctx, closed)
		if err != nil {
			if s.log != nil {
				s.log.Warning(fmt.Sprintf("scanner: review(%s): %v", closed.Symbol, err))
			}
			continue
		}
		info := fmt.Sprintf("%s %.4f->%.4f pnl=%.4f", closed.Side, closed.EntryPrice, closed.ExitPrice, closed.PnL)
		if err := s.store.MarkReviewed(closed.Symbol, info); err != nil && s.log != nil {
			s.log.Warning(fmt.Sprintf("scanner: mark reviewed(%s): %v", closed.Symbol, err))
		}
		if s.ledger != nil {
			if err := s.ledger.SaveReview(storage.ReviewRecord{
				Symbol:     closed.Symbol,
				Score:      review.Score,
				Summary:    review.Summary,
				ReviewedAt: time.Now(),
			}); err != nil && s.log != nil {
				s.log.Warning(fmt.Sprintf("scanner: mirror review(%s) to ledger: %v", closed.Symbol, err))
			}
		}
	}
}

// RunAuto loops RunOnce under the kline alignment policy: sleep until the
// next kline close (in ≤10s slices, honoring Stop) when wait-for-close
// applies, else a fixed 60s between scans; on batch error, back off 30s
// before retrying.
func (s *Scanner) RunAuto(ctx context.Context) error {
	retry := &backoff.Backoff{Min: 30 * time.Second, Max: 30 * time.Second, Factor: 1}

	for !s.shouldStop() {
		if err := s.sleepUntilNextScan(ctx); err != nil {
			return nil // context canceled
		}
		if s.shouldStop() {
			return nil
		}

		if _, err := s.RunOnce(ctx); err != nil {
			d := retry.Duration()
			if s.log != nil {
				s.log.Error(fmt.Sprintf("scanner: batch failed, retrying in %s: %v", d, err))
			}
			if err := sleepInterruptible(ctx, s, d); err != nil {
				return nil
			}
			continue
		}
		retry.Reset()
	}
	return nil
}

func (s *Scanner) sleepUntilNextScan(ctx context.Context) error {
	if s.cfg.WaitForClose && s.cfg.KlineType == "closed" {
		d, err := timeutil.TimeUntilNextKline(s.cfg.Timeframe, time.Now())
		if err != nil {
			d = 60 * time.Second
		}
		return sleepInterruptible(ctx, s, d)
	}
	return sleepInterruptible(ctx, s, 60*time.Second)
}

// sleepInterruptible sleeps d in slices of at most 10s so Stop() and
// context cancellation are both noticed promptly.
func sleepInterruptible(ctx context.Context, s *Scanner, d time.Duration) error {
	const slice = 10 * time.Second
	for d > 0 {
		if s.shouldStop() {
			return nil
		}
		step := d
		if step > slice {
			step = slice
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
		d -= step
	}
	return nil
}
