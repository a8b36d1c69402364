// Package notify is the cross-tab notification channel.
//
// Events are delivered best-effort and at most once to every subscriber
// that is live on the topic when the event is published. Nothing is
// persisted, acknowledged, retried or replayed: a context that was not
// subscribed at publish time never sees the event.
package notify

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Kind is the kind of record change an event announces.
type Kind string

// Event kinds.
const (
	KindNewRecord     Kind = "NEW_RECORD"
	KindRecordUpdated Kind = "RECORD_UPDATED"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindNewRecord || k == KindRecordUpdated
}

// Event is a transient record-change notification.
type Event struct {
	Kind         Kind            `json:"kind"`
	Record       json.RawMessage `json:"record"`
	Topic        string          `json:"topic,omitempty"`
	Origin       string          `json:"origin,omitempty"`
	SubmissionID string          `json:"submissionId,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Handler receives events for a topic. Handlers run on a goroutine owned by
// their subscription, one event at a time.
type Handler func(Event)

// Subscription is a live registration on a topic.
type Subscription interface {
	// Close stops delivery. It is safe to call more than once.
	Close() error
}

// Notifier is a topic-scoped publish/subscribe channel.
type Notifier interface {
	Subscribe(topic string, handler Handler, opts ...SubscribeOption) Subscription
	Publish(ctx context.Context, topic string, event Event) error
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	origin string
}

// WithOrigin names the browsing context that owns the subscription.
// Events published by the same origin are not delivered back to it.
func WithOrigin(id string) SubscribeOption {
	return func(c *subscribeConfig) {
		c.origin = id
	}
}

func applySubscribeOptions(opts []SubscribeOption) subscribeConfig {
	var cfg subscribeConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// NewEvent builds an event for a delivered submission.
func NewEvent(kind Kind, record []byte, submissionID string) Event {
	return Event{
		Kind:         kind,
		Record:       json.RawMessage(record),
		SubmissionID: submissionID,
		Timestamp:    time.Now().UTC(),
	}
}

// Frame is the wire envelope exchanged between a browsing context and the
// server hub over WebSocket.
type Frame struct {
	Op     string `json:"op"`
	Topic  string `json:"topic,omitempty"`
	Client string `json:"client,omitempty"`
	Event  *Event `json:"event,omitempty"`
}

// Frame operations.
const (
	OpWelcome     = "welcome"
	OpSubscribe   = "subscribe"
	OpSubscribed  = "subscribed"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"
	OpEvent       = "event"
)
