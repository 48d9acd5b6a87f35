package broadcast

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"QQFarmBot/models"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	return conn
}

// waitClients blocks until the hub has registered n clients; registration
// happens on the server goroutine slightly after the dial returns.
func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.RLock()
		got := len(h.clients)
		h.mu.RUnlock()
		if got == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients", n)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env.Event, env.Data
}

func TestHubBroadcastsAccountList(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()
	waitClients(t, h, 1)

	h.AccountListChanged([]models.AccountSummary{
		{UIN: "1001", Nickname: "farmer", Status: models.StatusRunning},
	})

	event, data := readEnvelope(t, conn)
	if event != "accounts:list" {
		t.Fatalf("event = %q, want accounts:list", event)
	}
	var accounts []models.AccountSummary
	if err := json.Unmarshal(data, &accounts); err != nil {
		t.Fatalf("decode accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].UIN != "1001" || accounts[0].Status != models.StatusRunning {
		t.Fatalf("unexpected payload: %+v", accounts)
	}
}

func TestHubBroadcastsBotLog(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()
	waitClients(t, h, 1)

	h.BotLog("1001", models.LogEntry{Level: models.LogError, Message: "connection lost"})

	event, data := readEnvelope(t, conn)
	if event != "bot:log" {
		t.Fatalf("event = %q, want bot:log", event)
	}
	var payload struct {
		UIN string          `json:"uin"`
		Log models.LogEntry `json:"log"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode log payload: %v", err)
	}
	if payload.UIN != "1001" || payload.Log.Message != "connection lost" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHubFanOutToMultipleClients(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	a := dialHub(t, srv)
	defer a.Close()
	b := dialHub(t, srv)
	defer b.Close()
	waitClients(t, h, 2)

	h.AccountListChanged(nil)

	for _, conn := range []*websocket.Conn{a, b} {
		event, _ := readEnvelope(t, conn)
		if event != "accounts:list" {
			t.Fatalf("event = %q, want accounts:list", event)
		}
	}
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialHub(t, srv)
	waitClients(t, h, 1)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.RLock()
		n := len(h.clients)
		h.mu.RUnlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("disconnected client still registered")
}
