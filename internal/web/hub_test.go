package web

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHubBroadcastDeliversToConnectedClient(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for client registration")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(ScanBroadcast{Exchange: "binance", Timeframe: "1h", Summary: "做多=1 做空=0 观望=0"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(data), `"type":"scan"`) {
		t.Errorf("broadcast payload = %s, want type=scan", data)
	}
	if !strings.Contains(string(data), `"exchange":"binance"`) {
		t.Errorf("broadcast payload = %s, want exchange=binance", data)
	}
}

func TestHubUnregisterOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for client registration")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(time.Second)
	for {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for client deregistration")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastWithNoClientsIsNoop(t *testing.T) {
	hub := NewHub(nil)
	hub.Broadcast(ScanBroadcast{Exchange: "binance"}) // must not panic or block
}
