// Package notify fans out a payload-less "events changed" signal to
// websocket subscribers.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	TypeConnected     = "connected"
	TypeEventsUpdated = "events-updated"

	writeTimeout = 5 * time.Second
)

type Message struct {
	Type string `json:"type"`
}

// Hub implements syncer.Notifier. Signals raised while a broadcast is in
// flight are coalesced into one.
type Hub struct {
	logger *zap.Logger

	// OriginPatterns are the allowed websocket origins. Empty means same
	// origin only.
	OriginPatterns []string

	clients   map[*websocket.Conn]struct{}
	clientsMu sync.RWMutex

	pending chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
		pending: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// NotifyChanged never blocks.
func (h *Hub) NotifyChanged() {
	select {
	case h.pending <- struct{}{}:
	default:
	}
}

// Run broadcasts pending signals until ctx is done or Close is called.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-h.done:
			return
		case <-h.pending:
			h.broadcast(ctx, Message{Type: TypeEventsUpdated})
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.done)
	})

	h.clientsMu.Lock()
	clients := h.clients
	h.clients = make(map[*websocket.Conn]struct{})
	h.clientsMu.Unlock()

	for conn := range clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	select {
	case <-h.done:
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	default:
	}

	// Clients never send anything; CloseRead handles control frames and
	// reports the disconnect.
	ctx := conn.CloseRead(r.Context())

	if err := h.write(ctx, conn, Message{Type: TypeConnected}); err != nil {
		h.logger.Debug("unable to greet client", zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Debug("client connected", zap.Int("clients", count))

	select {
	case <-ctx.Done():
	case <-h.done:
	}
	h.remove(conn, websocket.StatusNormalClosure)
}

func (h *Hub) broadcast(ctx context.Context, msg Message) {
	h.clientsMu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.clientsMu.RUnlock()

	for _, conn := range clients {
		if err := h.write(ctx, conn, msg); err != nil {
			h.logger.Debug("dropping client", zap.Error(err))
			h.remove(conn, websocket.StatusGoingAway)
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (h *Hub) remove(conn *websocket.Conn, code websocket.StatusCode) {
	h.clientsMu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	count := len(h.clients)
	h.clientsMu.Unlock()

	if ok {
		_ = conn.Close(code, "")
		h.logger.Debug("client disconnected", zap.Int("clients", count))
	}
}
