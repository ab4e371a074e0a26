package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/avolkov/fxsync/internal/domain"
)

const (
	writeWait        = 10 * time.Second
	clientBufferSize = 64
)

// Event is one message pushed to websocket subscribers.
type Event struct {
	Type      string  `json:"type"`
	Message   string  `json:"message,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	Rate      float64 `json:"rate,omitempty"`
	Date      string  `json:"date,omitempty"`
	Processed int     `json:"processed,omitempty"`
	Total     int     `json:"total,omitempty"`
	Time      string  `json:"time"`
}

// EventHub fans synchronization events out to websocket clients. It
// satisfies ratesync.Emitter; the engine calls it inline, so sends never
// block: a client that cannot keep up is dropped.
type EventHub struct {
	log zerolog.Logger
	now func() time.Time

	mu      sync.Mutex
	clients map[chan Event]struct{}
}

// NewEventHub creates an event hub.
func NewEventHub(log zerolog.Logger) *EventHub {
	return &EventHub{
		log:     log.With().Str("component", "event_hub").Logger(),
		now:     time.Now,
		clients: make(map[chan Event]struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS policy is enforced by middleware
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	h.log.Debug().Msg("Websocket client connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Websocket write failed, dropping client")
				return
			}
		}
	}
}

func (h *EventHub) subscribe() chan Event {
	ch := make(chan Event, clientBufferSize)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *EventHub) broadcast(event Event) {
	event.Time = h.now().UTC().Format(time.RFC3339)

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients {
		select {
		case ch <- event:
		default:
			// Slow consumer; closing its channel ends its serve loop.
			delete(h.clients, ch)
			close(ch)
			h.log.Warn().Msg("Dropped slow websocket client")
		}
	}
}

// OnProgress implements ratesync.Emitter.
func (h *EventHub) OnProgress(message string) {
	h.broadcast(Event{Type: "progress", Message: message})
}

// OnCurrencyStarted implements ratesync.Emitter.
func (h *EventHub) OnCurrencyStarted(code string) {
	h.broadcast(Event{Type: "currency_started", Currency: code})
}

// OnRateWritten implements ratesync.Emitter.
func (h *EventHub) OnRateWritten(code string, rate float64, date time.Time) {
	h.broadcast(Event{Type: "rate_written", Currency: code, Rate: rate, Date: domain.FormatDay(date)})
}

// OnCompleted implements ratesync.Emitter.
func (h *EventHub) OnCompleted(processed, total int) {
	h.broadcast(Event{Type: "completed", Processed: processed, Total: total})
}

// OnFailed implements ratesync.Emitter.
func (h *EventHub) OnFailed(message string) {
	h.broadcast(Event{Type: "failed", Message: message})
}

// OnCancelled implements ratesync.Emitter.
func (h *EventHub) OnCancelled() {
	h.broadcast(Event{Type: "cancelled"})
}
