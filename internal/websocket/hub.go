// Package websocket streams leaderboard updates to connected dashboards.
package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tariel-x/affiliates/internal/leaderboard"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 70 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) trySend(payload []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub fans leaderboard frames out to every subscriber. The latest live
// frame is replayed to new subscribers.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, clients: make(map[*client]struct{})}
}

// LeaderboardPublished broadcasts b to every subscriber.
func (h *Hub) LeaderboardPublished(_ context.Context, b leaderboard.Boards, final bool) {
	payload, err := EncodeBoards(b, final)
	if err != nil {
		h.logger.Error("encode leaderboard frame", "month", b.Month, "error", err)
		return
	}
	h.Broadcast(payload, !final)
}

func (h *Hub) Broadcast(payload []byte, remember bool) {
	h.mu.Lock()
	if remember {
		h.last = payload
	}
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if !c.trySend(payload) {
			_ = c.conn.Close()
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve pumps frames to conn until it disconnects. It blocks.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	last := h.last
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("ws subscriber connected", "remote", conn.RemoteAddr().String(), "subscribers", total)

	if last != nil {
		c.trySend(last)
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.closeSend()
}

// readPump only drains control frames; subscribers never send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
		h.logger.Debug("ws subscriber disconnected", "remote", c.conn.RemoteAddr().String())
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
