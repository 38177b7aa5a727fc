package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	defaultSubscriberBuffer = 16
	writeTimeout            = 5 * time.Second
)

// Hub streams outcomes to websocket subscribers as JSON messages. It is the
// push channel to an external presentation layer (menu-bar app, tray icon).
//
// A subscriber that cannot keep up loses outcomes instead of slowing the
// orchestrator.
type Hub struct {
	originPatterns []string
	buffer         int

	mu     sync.Mutex
	subs   map[chan Outcome]struct{}
	closed bool
}

var (
	_ Notifier     = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithOriginPatterns allows browser clients from the given origin host
// patterns. Non-browser clients send no Origin header and are always allowed.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.originPatterns = patterns }
}

// WithSubscriberBuffer sets how many outcomes are queued per subscriber.
func WithSubscriberBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub creates an empty [Hub].
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		buffer: defaultSubscriberBuffer,
		subs:   make(map[chan Outcome]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Notify queues o for every subscriber.
func (h *Hub) Notify(_ context.Context, o Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- o:
		default:
			slog.Warn("websocket subscriber lagging, outcome dropped", "cycle_id", o.CycleID)
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request to a websocket and streams outcomes until the
// client disconnects or the hub is closed. Client messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.Debug("websocket accept failed", "err", err)
		return
	}

	ch, ok := h.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.unsubscribe(ch)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case o, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, o)
			cancel()
			if err != nil {
				slog.Debug("websocket write failed", "err", err)
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}

func (h *Hub) subscribe() (chan Outcome, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan Outcome, h.buffer)
	h.subs[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unsubscribe(ch chan Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}
