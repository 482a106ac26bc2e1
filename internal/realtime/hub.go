// Package realtime pushes change events to connected websocket clients.
// Each client subscribes to exactly one workspace group. Delivery is lossy
// by design: a slow client's buffer overflows and the event is dropped,
// the client re-fetches full state on reconnect.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaultsim/vaultd/libs/events"
)

const (
	clientBuffer = 32
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

type client struct {
	conn        *websocket.Conn
	workspaceID string
	send        chan []byte
}

type Hub struct {
	mu       sync.RWMutex
	groups   map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		groups: map[string]map[*client]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Notify implements the notifier contract: marshal once, hand to every
// subscriber of the workspace group without blocking.
func (h *Hub) Notify(_ context.Context, workspaceID string, env events.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	h.broadcast(workspaceID, payload)
	return nil
}

func (h *Hub) broadcast(workspaceID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.groups[workspaceID] {
		select {
		case c.send <- payload:
		default:
			// Slow consumer, drop the event.
			h.logger.Debug("realtime event dropped", "workspace_id", workspaceID)
		}
	}
}

// Subscribers reports the current connection count for a workspace group.
func (h *Hub) Subscribers(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[workspaceID])
}

// Serve upgrades the request and pumps events until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, workspaceID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, workspaceID: workspaceID, send: make(chan []byte, clientBuffer)}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[c.workspaceID]
	if !ok {
		group = map[*client]struct{}{}
		h.groups[c.workspaceID] = group
	}
	group[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if group, ok := h.groups[c.workspaceID]; ok {
		if _, present := group[c]; present {
			delete(group, c)
			close(c.send)
			if len(group) == 0 {
				delete(h.groups, c.workspaceID)
			}
		}
	}
}

// readPump discards inbound frames; the channel is server-push only. It
// exists to notice the close handshake.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeTimeout))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close drops every connection, used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for workspaceID, group := range h.groups {
		for c := range group {
			close(c.send)
			_ = c.conn.Close()
		}
		delete(h.groups, workspaceID)
	}
}
