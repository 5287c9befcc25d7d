// Command web runs the read-only HTTP dashboard over the sqlite ledger and
// rolling context store that the scan-advise-trade process (cmd/main.go)
// writes. It never talks to the exchange and never places an order.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rdone4425/trading-ai/internal/config"
	"github.com/rdone4425/trading-ai/internal/contextstore"
	"github.com/rdone4425/trading-ai/internal/logx"
	"github.com/rdone4425/trading-ai/internal/storage"
	"github.com/rdone4425/trading-ai/internal/web"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logx.Init(cfg.DebugMode)
	log := logx.Global
	log.Header("交易顾问 - 只读监控面板", '=', 80)
	log.Info(fmt.Sprintf("数据库: %s  端口: %d", cfg.DatabasePath, cfg.WebPort))

	ledger, err := storage.NewStorage(cfg.DatabasePath)
	if err != nil {
		log.Warning(fmt.Sprintf("sqlite ledger unavailable, serving empty data: %v", err))
		ledger = nil
	} else {
		defer ledger.Close()
	}

	store := contextstore.New(filepath.Join(cfg.AnalysisResultsDir, "context"))

	srv := web.NewServer(cfg.WebPort, log, ledger, store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Warning("收到停止信号，正在关闭面板...")
		srv.Stop(context.Background())
	}()

	if err := srv.Start(); err != nil {
		log.Error(fmt.Sprintf("dashboard error: %v", err))
		os.Exit(1)
	}
}
