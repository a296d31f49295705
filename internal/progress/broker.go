// Package progress fans dispatch progress events out to live subscribers:
// browsers over Server-Sent Events and, optionally, a NATS subject.
package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukerupert/courier/internal/worker"
)

// subscriberBuffer is how many events a slow client may lag before events are dropped for it.
const subscriberBuffer = 256

// Broker keeps the subscribers of each run and delivers events to them.
// Publishing never blocks on a slow subscriber.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[chan worker.Event]struct{}
	logger *slog.Logger

	heartbeat time.Duration
}

// NewBroker creates an empty broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:      make(map[string]map[chan worker.Event]struct{}),
		logger:    logger,
		heartbeat: 15 * time.Second,
	}
}

// Subscribe registers a listener for runID. The returned cancel func must be
// called when the listener goes away.
func (b *Broker) Subscribe(runID string) (<-chan worker.Event, func()) {
	ch := make(chan worker.Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[chan worker.Event]struct{})
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[runID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, runID)
				}
			}
		})
	}
}

// Publish delivers event to every subscriber of event.RunID.
func (b *Broker) Publish(event worker.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[event.RunID] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("progress subscriber lagging, event dropped",
				"run_id", event.RunID,
				"status", event.Status,
			)
		}
	}
}

// Subscribers returns the number of listeners for runID.
func (b *Broker) Subscribers(runID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[runID])
}

// Stream writes the events of runID to w as Server-Sent Events until the
// client disconnects.
func (b *Broker) Stream(w http.ResponseWriter, r *http.Request, runID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := b.Subscribe(runID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				b.logger.Error("failed to encode progress event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
