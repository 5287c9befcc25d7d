// Command query is a small CLI over the sqlite ledger for ad-hoc
// inspection of persisted scans, per-symbol analyses, and trade reviews —
// the same database the dashboard (cmd/web) reads.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rdone4425/trading-ai/internal/config"
	"github.com/rdone4425/trading-ai/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := storage.NewStorage(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	command := os.Args[1]

	switch command {
	case "scans":
		limit := 10
		if len(os.Args) >= 3 {
			limit, _ = strconv.Atoi(os.Args[2])
		}
		handleScans(db, limit)
	case "analyses":
		if len(os.Args) < 3 {
			fmt.Println("Usage: query analyses <SCAN_ID>")
			os.Exit(1)
		}
		scanID, err := strconv.ParseInt(os.Args[2], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid scan id: %v\n", err)
			os.Exit(1)
		}
		handleAnalyses(db, scanID)
	case "reviews":
		limit := 10
		if len(os.Args) >= 3 {
			limit, _ = strconv.Atoi(os.Args[2])
		}
		handleReviews(db, limit)
	case "stats":
		hours := 24
		if len(os.Args) >= 3 {
			hours, _ = strconv.Atoi(os.Args[2])
		}
		handleStats(db, hours)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: query <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  scans [N]          - Show latest N scans (default: 10)")
	fmt.Println("  analyses <ID>      - Show per-symbol analyses for scan ID")
	fmt.Println("  reviews [N]        - Show latest N trade reviews (default: 10)")
	fmt.Println("  stats [hours]      - Show action distribution over the last N hours (default: 24)")
}

func handleScans(db *storage.Storage, limit int) {
	scans, err := db.RecentScans(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get scans: %v\n", err)
		os.Exit(1)
	}
	if len(scans) == 0 {
		fmt.Println("No scans found.")
		return
	}

	fmt.Printf("=== Latest %d Scans ===\n\n", len(scans))
	for _, s := range scans {
		fmt.Printf("[%d] %s  %s/%s  %d/%d symbols\n",
			s.ID, s.ScanTime.Format("2006-01-02 15:04:05"), s.Exchange, s.Timeframe, s.AnalyzedCount, s.TotalSymbols)
		if s.Summary != "" {
			fmt.Printf("    %s\n", s.Summary)
		}
	}
}

func handleAnalyses(db *storage.Storage, scanID int64) {
	analyses, err := db.AnalysesForScan(scanID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get analyses: %v\n", err)
		os.Exit(1)
	}
	if len(analyses) == 0 {
		fmt.Printf("No analyses found for scan %d.\n", scanID)
		return
	}

	fmt.Printf("=== Analyses for Scan %d ===\n\n", scanID)
	for _, a := range analyses {
		fmt.Printf("%-12s %-6s conf=%.2f entry=%.4f sl=%.4f tp=%.4f lev=%dx\n",
			a.Symbol, a.Action, a.Confidence, a.Entry, a.StopLoss, a.TakeProfit, a.Leverage)
		if a.Reason != "" {
			fmt.Printf("    %s\n", a.Reason)
		}
	}
}

func handleReviews(db *storage.Storage, limit int) {
	reviews, err := db.RecentReviews(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get reviews: %v\n", err)
		os.Exit(1)
	}
	if len(reviews) == 0 {
		fmt.Println("No reviews found.")
		return
	}

	fmt.Printf("=== Latest %d Trade Reviews ===\n\n", len(reviews))
	for _, r := range reviews {
		fmt.Printf("[%d] %s  %s  score=%.2f\n", r.ID, r.ReviewedAt.Format("2006-01-02 15:04:05"), r.Symbol, r.Score)
		if r.Summary != "" {
			fmt.Printf("    %s\n", r.Summary)
		}
	}
}

func handleStats(db *storage.Storage, hours int) {
	stats, err := db.ActionStats(time.Now().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== Action Distribution (last %dh) ===\n\n", hours)
	if len(stats) == 0 {
		fmt.Println("No analyses in window.")
		return
	}
	for action, count := range stats {
		fmt.Printf("%-6s %d\n", action, count)
	}
}
