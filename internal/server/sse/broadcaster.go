// Package sse streams cross-tab notifications to browsing contexts that
// cannot hold a WebSocket.
package sse

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/internal/notify"
	"github.com/agentstation/leadsync/pkg/constants"
)

// heartbeat keeps idle streams open through proxies.
const heartbeat = 25 * time.Second

// Broadcaster serves one event stream per connection. Each stream is its
// own broker subscription, so a stream only sees events published after
// it connected.
type Broadcaster struct {
	broker *notify.Broker
	topic  string
	logger *zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	events chan notify.Event
	done   chan struct{}
	once   sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// NewBroadcaster creates a broadcaster for the default topic of broker.
func NewBroadcaster(broker *notify.Broker, topic string, logger *zerolog.Logger) *Broadcaster {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if topic == "" {
		topic = constants.DefaultTopic
	}
	return &Broadcaster{
		broker:  broker,
		topic:   topic,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Run blocks until ctx is done, then ends every open stream.
func (b *Broadcaster) Run(ctx context.Context) {
	<-ctx.Done()
	b.mu.Lock()
	b.closed = true
	for c := range b.clients {
		c.stop()
	}
	b.mu.Unlock()
	b.logger.Info().Msg("SSE broadcaster shut down")
}

// ClientCount returns the number of connected SSE clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP streams events until the client goes away. The optional
// "client" query parameter names the browsing context so its own events
// are skipped, and "kind" filters by event kind.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	topic := q.Get("topic")
	if topic == "" {
		topic = b.topic
	}
	kinds := map[notify.Kind]bool{}
	for _, k := range strings.Split(q.Get("kind"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[notify.Kind(strings.ToUpper(k))] = true
		}
	}

	c := &client{
		events: make(chan notify.Event, constants.SubscriberBufferSize),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	b.clients[c] = struct{}{}
	total := len(b.clients)
	b.mu.Unlock()

	sub := b.broker.Subscribe(topic, func(e notify.Event) {
		if len(kinds) > 0 && !kinds[e.Kind] {
			return
		}
		select {
		case c.events <- e:
		default:
			b.logger.Warn().Msg("SSE client buffer full, event skipped")
		}
	}, notify.WithOrigin(q.Get("client")))

	defer func() {
		_ = sub.Close()
		c.stop()
		b.mu.Lock()
		delete(b.clients, c)
		remaining := len(b.clients)
		b.mu.Unlock()
		b.logger.Info().Int("total_clients", remaining).Msg("SSE client disconnected")
	}()
	b.logger.Info().Int("total_clients", total).Str("topic", topic).Msg("SSE client connected")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {\"topic\":%q}\n\n", topic)
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case e := <-c.events:
			if err := b.writeEvent(w, e); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-c.done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// writeEvent writes e in the SSE wire format. The event name is the kind
// and the id is the submission id.
func (b *Broadcaster) writeEvent(w http.ResponseWriter, e notify.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal SSE event data")
		return nil
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", e.Kind); err != nil {
		return err
	}
	if e.SubmissionID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", e.SubmissionID); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
