package game

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"QQFarmBot/manager"
	"QQFarmBot/models"

	"github.com/gorilla/websocket"
)

func TestBeginLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/qr/create" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body["uin"] != "1001" || body["platform"] != "qq" {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if body["device"] == "" {
			http.Error(w, "missing device id", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "tok-1",
			"url":        "https://login.example/qr/tok-1",
			"expires_in": 60,
		})
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "")
	ticket, err := p.BeginLogin(context.Background(), "1001", "qq")
	if err != nil {
		t.Fatalf("BeginLogin failed: %v", err)
	}
	if ticket.Token != "tok-1" {
		t.Errorf("Token = %q, want tok-1", ticket.Token)
	}
	if len(ticket.QRCodePNG) == 0 {
		t.Error("QRCodePNG is empty")
	}
	until := time.Until(ticket.ExpiresAt)
	if until < 50*time.Second || until > 70*time.Second {
		t.Errorf("ExpiresAt %v from now, want about 60s", until)
	}
}

func TestPollLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/qr/poll" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status":     "confirmed",
			"credential": "cred-xyz",
			"platform":   "qq",
		})
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "")
	poll, err := p.PollLogin(context.Background(), "1001", "tok-1")
	if err != nil {
		t.Fatalf("PollLogin failed: %v", err)
	}
	if poll.Status != models.QRConfirmed {
		t.Fatalf("Status = %s, want confirmed", poll.Status)
	}
	if poll.Credentials == nil || poll.Credentials.Token != "cred-xyz" {
		t.Fatalf("Credentials = %+v, want token cred-xyz", poll.Credentials)
	}
}

// gameServer is a minimal in-process game endpoint speaking the seq/cmd
// protocol, used to exercise the websocket connection end to end.
func gameServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var req request
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			resp := response{Seq: req.Seq, OK: true}
			switch req.Cmd {
			case "auth":
				var auth map[string]string
				json.Unmarshal(req.Data, &auth)
				if auth["token"] != "good-cred" {
					resp.OK = false
					resp.Error = "bad credential"
				}
			case "player.state":
				resp.Data, _ = json.Marshal(models.PlayerState{Name: "farmer", Level: 12, Gold: 900, Exp: 4500, GID: 3})
			case "land.status":
				resp.Data, _ = json.Marshal(models.LandStatus{Lands: []models.Land{{Index: 0, PlantName: "carrot", Stealable: true}}})
			default:
				resp.OK = false
				resp.Error = "unknown command"
			}
			payload, _ := json.Marshal(resp)
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectAndQuery(t *testing.T) {
	srv := gameServer(t)
	defer srv.Close()

	p := NewProvider("", wsURL(srv))
	conn, err := p.Connect(context.Background(), manager.Credentials{UIN: "1001", Token: "good-cred", Platform: "qq"})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	state, err := conn.QueryPlayerState(context.Background())
	if err != nil {
		t.Fatalf("QueryPlayerState failed: %v", err)
	}
	if state.Name != "farmer" || state.Level != 12 || state.Gold != 900 {
		t.Fatalf("unexpected player state: %+v", state)
	}

	lands, err := conn.QueryLandStatus(context.Background())
	if err != nil {
		t.Fatalf("QueryLandStatus failed: %v", err)
	}
	if lands.UIN != "1001" {
		t.Errorf("UIN = %q, want the session's uin stamped on", lands.UIN)
	}
	if lands.FetchedAt == 0 {
		t.Error("FetchedAt not stamped")
	}
	if len(lands.Lands) != 1 || lands.Lands[0].PlantName != "carrot" {
		t.Fatalf("unexpected lands: %+v", lands.Lands)
	}
}

func TestConnectRejectsBadCredential(t *testing.T) {
	srv := gameServer(t)
	defer srv.Close()

	p := NewProvider("", wsURL(srv))
	_, err := p.Connect(context.Background(), manager.Credentials{UIN: "1001", Token: "wrong", Platform: "qq"})
	if err == nil {
		t.Fatal("Connect succeeded with a bad credential")
	}
	if !strings.Contains(err.Error(), "bad credential") {
		t.Fatalf("err = %v, want the server's auth error", err)
	}
}

func TestCloseSignalsDone(t *testing.T) {
	srv := gameServer(t)
	defer srv.Close()

	p := NewProvider("", wsURL(srv))
	conn, err := p.Connect(context.Background(), manager.Credentials{UIN: "1001", Token: "good-cred", Platform: "qq"})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after Close")
	}
	// Closing again is a no-op.
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
