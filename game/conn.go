package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"QQFarmBot/manager"
	"QQFarmBot/models"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout    = 5 * time.Second
	requestTimeout  = 10 * time.Second
	pingInterval    = 10 * time.Second
	pongWait        = 30 * time.Second
	maxMessageBytes = 1 << 20
)

type request struct {
	Seq  uint32          `json:"seq"`
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

type response struct {
	Seq   uint32          `json:"seq"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is one live websocket connection to the game server. It implements
// manager.GameConn: request/response correlation by seq, with Done closed
// when the read loop ends.
type Conn struct {
	ws  *websocket.Conn
	uin string

	seq     uint32
	wmu     sync.Mutex // serializes websocket writes
	mu      sync.Mutex
	pending map[uint32]chan response

	done     chan struct{}
	err      error
	closed   atomic.Bool
	pingStop chan struct{}
}

// Connect dials the game server and authenticates with the QR credential.
func (p *Provider) Connect(ctx context.Context, creds manager.Credentials) (manager.GameConn, error) {
	url := fmt.Sprintf("%s/game?uin=%s&platform=%s&device=%s", p.serverURL, creds.UIN, creds.Platform, p.deviceID)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial game server: %w", err)
	}
	ws.SetReadLimit(maxMessageBytes)

	c := &Conn{
		ws:       ws,
		uin:      creds.UIN,
		pending:  make(map[uint32]chan response),
		done:     make(chan struct{}),
		pingStop: make(chan struct{}),
	}

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readLoop()
	go c.pingLoop()

	authData, _ := json.Marshal(map[string]string{"token": creds.Token})
	if _, err := c.roundTrip(ctx, "auth", authData); err != nil {
		c.Close()
		return nil, fmt.Errorf("game auth: %w", err)
	}
	return c, nil
}

func (c *Conn) nextSeq() uint32 {
	return atomic.AddUint32(&c.seq, 1)
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.err = err
			}
			c.failPending()
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.Seq]
		if ok {
			delete(c.pending, resp.Seq)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Conn) pingLoop() {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.wmu.Lock()
			_ = c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
			c.wmu.Unlock()
		case <-c.pingStop:
			return
		case <-c.done:
			return
		}
	}
}

func (c *Conn) failPending() {
	c.mu.Lock()
	for seq, ch := range c.pending {
		delete(c.pending, seq)
		close(ch)
	}
	c.mu.Unlock()
}

// roundTrip sends one command and waits for the matching response.
func (c *Conn) roundTrip(ctx context.Context, cmd string, data json.RawMessage) (json.RawMessage, error) {
	seq := c.nextSeq()
	ch := make(chan response, 1)

	c.mu.Lock()
	c.pending[seq] = ch
	c.mu.Unlock()

	payload, err := json.Marshal(request{Seq: seq, Cmd: cmd, Data: data})
	if err != nil {
		return nil, err
	}

	c.wmu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	werr := c.ws.WriteMessage(websocket.TextMessage, payload)
	c.wmu.Unlock()
	if werr != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, werr
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("connection closed")
		}
		if !resp.OK {
			return nil, fmt.Errorf("game error: %s", resp.Error)
		}
		return resp.Data, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-time.After(requestTimeout):
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for %s response", cmd)
	}
}

func (c *Conn) QueryPlayerState(ctx context.Context) (*models.PlayerState, error) {
	data, err := c.roundTrip(ctx, "player.state", nil)
	if err != nil {
		return nil, err
	}
	var state models.PlayerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("player state payload: %w", err)
	}
	return &state, nil
}

func (c *Conn) QueryLandStatus(ctx context.Context) (*models.LandStatus, error) {
	data, err := c.roundTrip(ctx, "land.status", nil)
	if err != nil {
		return nil, err
	}
	var lands models.LandStatus
	if err := json.Unmarshal(data, &lands); err != nil {
		return nil, fmt.Errorf("land status payload: %w", err)
	}
	lands.UIN = c.uin
	lands.FetchedAt = time.Now().Unix()
	return &lands, nil
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Err() error {
	return c.err
}

func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.pingStop)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(500*time.Millisecond))
	return c.ws.Close()
}
