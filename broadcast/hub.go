package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"QQFarmBot/logger"
	"QQFarmBot/models"

	"github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
)

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub fans manager events out to connected websocket clients. It implements
// manager.Broadcaster; emission is fire-and-forget and a slow client is
// dropped rather than blocking the manager.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	upgrader websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// Serve starts the hub's HTTP listener. Blocks until the server exits.
func (h *Hub) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 20 * time.Second,
	}
	logger.Log.Infof("Broadcast hub listening on %s", addr)
	return server.ListenAndServe()
}

func (h *Hub) AccountListChanged(accounts []models.AccountSummary) {
	h.broadcast("accounts:list", accounts)
}

func (h *Hub) BotLog(uin string, entry models.LogEntry) {
	h.broadcast("bot:log", map[string]interface{}{
		"uin": uin,
		"log": entry,
	})
}

func (h *Hub) broadcast(event string, data interface{}) {
	payload, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		logger.Log.WithError(err).Error("failed to marshal broadcast event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow client; closing the channel is handled by writePump.
			go h.drop(c)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}
