package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rdone4425/trading-ai/internal/logx"
)

// ScanBroadcast is the message pushed to every connected dashboard client
// each time the scanner finishes a batch. It carries only the summary the
// sqlite ledger already persisted — clients poll /api/scans for detail.
type ScanBroadcast struct {
	Type          string    `json:"type"`
	ScanTime      time.Time `json:"scanTime"`
	Exchange      string    `json:"exchange"`
	Timeframe     string    `json:"timeframe"`
	TotalSymbols  int       `json:"totalSymbols"`
	AnalyzedCount int       `json:"analyzedCount"`
	Summary       string    `json:"summary"`
}

// Hub fans scan summaries out to connected dashboard clients over a plain
// websocket. It is optional enrichment over the poll-based JSON API: a
// dashboard that never dials /ws still works off /api/scans.
type Hub struct {
	log      *logx.ColorLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub constructs an empty Hub.
func NewHub(log *logx.ColorLogger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and holds it open until the client
// disconnects; the hub never reads application data from clients, only
// the control frames needed to detect a dead connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.register(conn)
	defer func() {
		h.unregister(conn)
		conn.Close()
	}()

	const (
		writeWait = 10 * time.Second
		pongWait  = 60 * time.Second
	)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	go func() {
		ticker := time.NewTicker(pongWait * 9 / 10)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

// Broadcast pushes msg to every connected client, dropping any connection
// that fails to accept the write.
func (h *Hub) Broadcast(msg ScanBroadcast) {
	msg.Type = "scan"
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Serve runs the hub's own HTTP listener until ctx is cancelled. It is a
// plain net/http server because gorilla/websocket upgrades a standard
// http.ResponseWriter, not the hertz-native one the rest of the dashboard
// runs on; keeping it on a separate port avoids adapting the two.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if h.log != nil {
		h.log.Info("websocket live-push listening on " + addr)
	}
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
