package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rdone4425/trading-ai/internal/advisor"
	"github.com/rdone4425/trading-ai/internal/config"
	"github.com/rdone4425/trading-ai/internal/contextstore"
	"github.com/rdone4425/trading-ai/internal/exchange"
	"github.com/rdone4425/trading-ai/internal/llm"
	"github.com/rdone4425/trading-ai/internal/logx"
	"github.com/rdone4425/trading-ai/internal/scanner"
	"github.com/rdone4425/trading-ai/internal/sentiment"
	"github.com/rdone4425/trading-ai/internal/storage"
	"github.com/rdone4425/trading-ai/internal/trader"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logx.InitWithFile(cfg.DebugMode, cfg.LogDir, time.Duration(cfg.LogRetentionHours)*time.Hour)
	log := logx.Global

	log.Header("加密货币永续合约交易顾问", '=', 80)
	log.Info(fmt.Sprintf("交易所: %s (%s)", cfg.ExchangeName, cfg.Environment))
	log.Info(fmt.Sprintf("时间周期: %s  回看: %d  K线类型: %s", cfg.Timeframe, cfg.Lookback, cfg.KlineType))
	log.Info(fmt.Sprintf("扫描类型: %v  TopN: %d", cfg.ScanTypes, cfg.ScanTopN))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := exchange.New(ctx, exchange.Config{
		BaseURL:   cfg.BaseURL(),
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Proxy:     cfg.Proxy(),
	}, log)
	if err != nil {
		log.Error(fmt.Sprintf("exchange client init failed: %v", err))
		os.Exit(1)
	}

	store := contextstore.New(filepath.Join(cfg.AnalysisResultsDir, "context"))

	var ledger *storage.Storage
	if dbDir := filepath.Dir(cfg.DatabasePath); dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			log.Warning(fmt.Sprintf("ledger dir: %v", err))
		}
	}
	ledger, err = storage.NewStorage(cfg.DatabasePath)
	if err != nil {
		log.Warning(fmt.Sprintf("sqlite ledger unavailable, dashboard mirror disabled: %v", err))
		ledger = nil
	} else {
		defer ledger.Close()
	}

	var provider llm.Provider
	if cfg.UseAIAnalysis {
		provider = llm.New(llm.Config{
			Provider: cfg.AIProvider,
			APIKey:   cfg.AIAPIKey,
			BaseURL:  cfg.AIBackendURL,
			Model:    cfg.AIModel,
		})
	} else {
		provider = llm.NewMock()
	}

	prompts := advisor.LoadPrompts(cfg.PromptsDir)
	adv := advisor.New(provider, store, prompts, advisor.Config{
		RiskPercent:     cfg.RiskPercent,
		RiskRewardRatio: cfg.RiskRewardRatio,
		ATRMultiplier:   cfg.ATRMultiplier,
		MaxLeverage:     cfg.MaxLeverage,
		AccountBalance:  cfg.AccountBalance,
	}, log)

	if cfg.EnableSentiment {
		adv.SetSentiment(sentiment.NewClient(cfg.SentimentAPIURL, cfg.SentimentAPIKey, cfg.Proxy()))
		log.Info("市场情绪数据源已启用")
	}

	var trd *trader.Trader
	if !cfg.Observe() {
		trd = trader.New(client, trader.Config{
			ConfidenceThreshold:    cfg.AIConfidenceThreshold,
			DefaultLeverage:        cfg.MaxLeverage,
			MaxLeverage:            cfg.MaxLeverage,
			MaxLossPerTrade:        cfg.MaxLossPerTrade,
			MaxPositionSize:        cfg.MaxPositionSize,
			Observe:                false,
			StopStrategy:           cfg.StopLossStrategy,
			TrailingPercent:        cfg.TrailingPercent,
			StopChangeThresholdPct: cfg.StopLossChangeThreshold,
		}, log)
		if err := trd.Reconcile(ctx); err != nil {
			log.Warning(fmt.Sprintf("position reconcile failed: %v", err))
		}
	} else {
		log.Info("运行模式: 观察模式（不下单）")
	}

	sc := scanner.New(client, adv, trd, store, ledger, scanner.Config{
		ExchangeName:           cfg.ExchangeName,
		Timeframe:              cfg.Timeframe,
		Lookback:               cfg.Lookback,
		KlineType:              cfg.KlineType,
		CustomSymbols:          cfg.CustomSymbols,
		ScanTypes:              cfg.ScanTypes,
		ScanTopN:               cfg.ScanTopN,
		DefaultQuote:           cfg.DefaultQuote,
		MaxConcurrentAnalysis:  cfg.MaxConcurrentAnalysis,
		AIConfidenceThreshold:  cfg.AIConfidenceThreshold,
		AccountBalance:         cfg.AccountBalance,
		AutoScan:               cfg.AutoScan,
		WaitForClose:           cfg.WaitForClose,
		SaveAnalysisResults:    cfg.SaveAnalysisResults,
		AnalysisResultsDir:     cfg.AnalysisResultsDir,
		EnableAutoLearning:     cfg.EnableAutoLearning,
		EnableAutoReview:       cfg.EnableAutoReview,
		AutoLearningTopics:     cfg.AutoLearningTopics,
		IndicatorSpecs:         cfg.IndicatorSpecs,
	}, log)

	go func() {
		<-ctx.Done()
		log.Warning("收到停止信号，正在关闭...")
		sc.Stop()
	}()

	if cfg.AutoScan {
		log.Info("自动扫描模式已启动，按 Ctrl+C 停止")
		if err := sc.RunAuto(ctx); err != nil {
			log.Error(fmt.Sprintf("scan loop error: %v", err))
			os.Exit(1)
		}
		return
	}

	if _, err := sc.RunOnce(ctx); err != nil {
		log.Error(fmt.Sprintf("scan failed: %v", err))
		os.Exit(1)
	}
}
