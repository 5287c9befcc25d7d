// Package web is the read-only HTTP dashboard over the sqlite ledger
// (internal/storage) and the rolling context store (internal/contextstore).
// The scanner (ledger and context store) and the advisor (context store)
// write what this package reads; this package never calls the exchange or
// places an order, it only reads what they persisted.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"github.com/rdone4425/trading-ai/internal/contextstore"
	"github.com/rdone4425/trading-ai/internal/logx"
	"github.com/rdone4425/trading-ai/internal/storage"
)

// Server is the dashboard's HTTP surface.
type Server struct {
	port    int
	log     *logx.ColorLogger
	ledger  *storage.Storage
	context *contextstore.Store
	hertz   *server.Hertz
	hub     *Hub
	stopHub context.CancelFunc

	lastScanID int64
}

// NewServer constructs a dashboard server bound to port, reading from ledger
// and contextStore. Either may be nil; the corresponding endpoints then
// report an empty result rather than failing the whole process. A
// websocket live-push hub listens one port above the HTTP API for clients
// that want scan summaries pushed rather than polled.
func NewServer(port int, log *logx.ColorLogger, ledger *storage.Storage, contextStore *contextstore.Store) *Server {
	h := server.Default(server.WithHostPorts(fmt.Sprintf(":%d", port)))

	s := &Server{
		port:    port,
		log:     log,
		ledger:  ledger,
		context: contextStore,
		hertz:   h,
		hub:     NewHub(log),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.hertz.GET("/health", s.handleHealth)
	s.hertz.GET("/api/scans", s.handleRecentScans)
	s.hertz.GET("/api/scans/:id/analyses", s.handleScanAnalyses)
	s.hertz.GET("/api/reviews", s.handleRecentReviews)
	s.hertz.GET("/api/stats/actions", s.handleActionStats)
	s.hertz.GET("/api/context/strategies", s.handleStrategies)
}

// Start blocks serving the dashboard until the process exits or Stop is
// called from another goroutine. It also launches the websocket live-push
// hub and a best-effort poller that broadcasts any scan the ledger gains
// while the dashboard is running.
func (s *Server) Start() error {
	hubCtx, cancelHub := context.WithCancel(context.Background())
	s.stopHub = cancelHub
	go s.hub.Serve(hubCtx, fmt.Sprintf(":%d", s.port+1))
	go s.pollAndBroadcast(hubCtx)

	if s.log != nil {
		s.log.Success(fmt.Sprintf("dashboard listening on :%d", s.port))
	}
	s.hertz.Spin()
	return nil
}

// Stop gracefully shuts the HTTP server and websocket hub down.
func (s *Server) Stop(ctx context.Context) error {
	if s.stopHub != nil {
		s.stopHub()
	}
	return s.hertz.Shutdown(ctx)
}

// pollAndBroadcast checks the ledger for a new scan every few seconds and
// pushes it to connected websocket clients. It is a poll-then-push bridge,
// not a ledger subscription: storage has no notify mechanism, and adding
// one purely for this optional enrichment isn't worth the coupling.
func (s *Server) pollAndBroadcast(ctx context.Context) {
	if s.ledger == nil {
		return
	}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scans, err := s.ledger.RecentScans(1)
			if err != nil || len(scans) == 0 {
				continue
			}
			latest := scans[0]
			if latest.ID == s.lastScanID {
				continue
			}
			s.lastScanID = latest.ID
			s.hub.Broadcast(ScanBroadcast{
				ScanTime:      latest.ScanTime,
				Exchange:      latest.Exchange,
				Timeframe:     latest.Timeframe,
				TotalSymbols:  latest.TotalSymbols,
				AnalyzedCount: latest.AnalyzedCount,
				Summary:       latest.Summary,
			})
		}
	}
}

func (s *Server) handleHealth(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, utils.H{"status": "healthy", "time": time.Now()})
}

func (s *Server) handleRecentScans(ctx context.Context, c *app.RequestContext) {
	if s.ledger == nil {
		c.JSON(http.StatusOK, utils.H{"scans": []storage.ScanRecord{}, "count": 0})
		return
	}
	limit := 20
	fmt.Sscanf(c.DefaultQuery("limit", "20"), "%d", &limit)

	scans, err := s.ledger.RecentScans(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, utils.H{"scans": scans, "count": len(scans)})
}

func (s *Server) handleScanAnalyses(ctx context.Context, c *app.RequestContext) {
	if s.ledger == nil {
		c.JSON(http.StatusOK, utils.H{"analyses": []storage.AnalysisRecord{}, "count": 0})
		return
	}
	var scanID int64
	if _, err := fmt.Sscanf(c.Param("id"), "%d", &scanID); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "invalid scan id"})
		return
	}
	analyses, err := s.ledger.AnalysesForScan(scanID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, utils.H{"analyses": analyses, "count": len(analyses)})
}

func (s *Server) handleRecentReviews(ctx context.Context, c *app.RequestContext) {
	if s.ledger == nil {
		c.JSON(http.StatusOK, utils.H{"reviews": []storage.ReviewRecord{}, "count": 0})
		return
	}
	limit := 20
	fmt.Sscanf(c.DefaultQuery("limit", "20"), "%d", &limit)

	reviews, err := s.ledger.RecentReviews(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, utils.H{"reviews": reviews, "count": len(reviews)})
}

func (s *Server) handleActionStats(ctx context.Context, c *app.RequestContext) {
	if s.ledger == nil {
		c.JSON(http.StatusOK, utils.H{"actions": map[string]int{}})
		return
	}
	hours := 24
	fmt.Sscanf(c.DefaultQuery("hours", "24"), "%d", &hours)

	stats, err := s.ledger.ActionStats(time.Now().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, utils.H{"actions": stats})
}

func (s *Server) handleStrategies(ctx context.Context, c *app.RequestContext) {
	if s.context == nil {
		c.JSON(http.StatusOK, utils.H{"strategies": []contextstore.Strategy{}})
		return
	}
	c.JSON(http.StatusOK, utils.H{"strategies": s.context.RecentStrategies(10)})
}
