package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/chorequest/chorequest/internal/domain"
)

// ─── Live Event Feed ────────────────────────────────────────────────────────
// The UI subscribes once and receives every committed change callback:
// task approved/declined, badge earned, redemption bonus activated or
// expired. Delivered via Server-Sent Events for HTTP/2 compatibility.

// EventHub fans committed-change events out to connected clients. It
// implements domain.EventSink.
type EventHub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewEventHub creates an empty broadcast hub.
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[chan []byte]struct{})}
}

// Publish implements domain.EventSink. Slow clients drop messages rather
// than block the mutation path.
func (h *EventHub) Publish(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// Client too slow — drop message
		}
	}
}

// Subscribe registers a new client. Returns the channel and an
// unsubscribe func.
func (h *EventHub) Subscribe() (chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
		close(ch)
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleEventsSSE serves the live event feed.
// GET /api/events/live
func (h *EventHub) HandleEventsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch, unsub := h.Subscribe()
	defer unsub()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
