// Package realtime pushes events to connected browsers over websockets.
// Users may hold several connections at once (one per tab).
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stake-plus/escrow-market/src/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Event names shared with the web client.
const (
	EventNotification  = "notification"
	EventMessageNew    = "message:new"
	EventBidNew        = "bid:new"
	EventJobHired      = "job:hired"
	EventWorkSubmitted = "work:submitted"
	EventWorkApproved  = "work:approved"
	EventJoined        = "joined"
)

var ErrHubClosed = errors.New("realtime hub closed")

// Frame is the JSON envelope for every message in both directions.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type Hub struct {
	mu       sync.RWMutex
	conns    map[uint64]map[*conn]struct{}
	closed   bool
	wg       sync.WaitGroup
	upgrader websocket.Upgrader
}

// NewHub accepts browser origins from allowedOrigins; "*" allows any.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{conns: make(map[uint64]map[*conn]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Serve upgrades the request and attaches the connection to userID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uint64) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &conn{hub: h, ws: ws, userID: userID, send: make(chan []byte, sendBuffer), done: make(chan struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ws.Close()
		return ErrHubClosed
	}
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*conn]struct{})
		h.conns[userID] = set
	}
	set[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
	logging.Debug(r.Context(), "websocket connected", "user_id", userID)
	return nil
}

// Emit sends event to every connection of userID. It reports whether the
// user had at least one live connection.
func (h *Hub) Emit(userID uint64, event string, payload any) bool {
	msg, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		logging.Error(context.Background(), "marshal realtime frame", "event", event, "error", err)
		return false
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := false
	for _, c := range targets {
		if c.enqueue(msg) {
			delivered = true
		}
	}
	return delivered
}

func (h *Hub) Online(userID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// Run blocks until ctx is done, then closes every connection and waits for
// their goroutines to exit.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	for _, set := range h.conns {
		for c := range set {
			c.close()
		}
	}
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.userID)
		}
	}
}
