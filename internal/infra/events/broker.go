package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
)

const (
	// EventJob carries a model.JobEvent.
	EventJob = "job"

	// MaxConnections caps concurrent SSE clients.
	MaxConnections = 256

	keepAliveInterval = 25 * time.Second
	clientBuffer      = 16
)

var _ adapter.Notifier = (*Broker)(nil)

type client struct {
	events chan []byte
	done   chan struct{}
}

// Broker fans job events out to every connected SSE client. A client that
// falls behind loses events rather than blocking the publisher.
type Broker struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewBroker() *Broker {
	return &Broker{clients: make(map[*client]struct{})}
}

func (b *Broker) Publish(_ context.Context, ev model.JobEvent) error {
	b.Broadcast(ev)
	return nil
}

// Broadcast delivers ev to all connected clients.
func (b *Broker) Broadcast(ev model.JobEvent) {
	frame, err := encode(EventJob, ev)
	if err != nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		select {
		case c.events <- frame:
		default:
		}
	}
}

func (b *Broker) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.ConnectionCount() >= MaxConnections {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	// The server write timeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	c := &client{events: make(chan []byte, clientBuffer), done: make(chan struct{})}
	b.add(c)
	defer b.remove(c)

	hello, _ := encode("connected", map[string]string{"status": "ok"})
	if _, err := w.Write(hello); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case frame := <-c.events:
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Shutdown disconnects every client.
func (b *Broker) Shutdown(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		close(c.done)
		delete(b.clients, c)
	}
	return nil
}

func (b *Broker) add(c *client) {
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
}

func (b *Broker) remove(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
}

// encode formats one SSE frame:
//
//	event: <type>
//	data: <json>
//	<blank line>
func encode(eventType string, data any) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, b)), nil
}
