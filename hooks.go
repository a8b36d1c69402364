package leadsync

import (
	"sync"

	"github.com/agentstation/leadsync/internal/notify"
)

// RecordHook is called for each record event published on the client topic.
type RecordHook func(event notify.Event)

// Hooks registers callbacks for record events. Callbacks run on the
// broker's subscriber goroutine and follow its at-most-once delivery.
type Hooks interface {
	// OnNewRecord registers a callback for NEW_RECORD events.
	OnNewRecord(fn RecordHook)

	// OnRecordUpdated registers a callback for RECORD_UPDATED events.
	OnRecordUpdated(fn RecordHook)
}

// hooks manages event callbacks backed by one broker subscription.
type hooks struct {
	broker *notify.Broker
	topic  string

	mu        sync.RWMutex
	once      sync.Once
	onNew     []RecordHook
	onUpdated []RecordHook
}

func newHooks(broker *notify.Broker, topic string) *hooks {
	return &hooks{broker: broker, topic: topic}
}

// OnNewRecord implements Hooks.
func (c *client) OnNewRecord(fn RecordHook) {
	c.hooks.register(&c.hooks.onNew, fn)
}

// OnRecordUpdated implements Hooks.
func (c *client) OnRecordUpdated(fn RecordHook) {
	c.hooks.register(&c.hooks.onUpdated, fn)
}

func (h *hooks) register(list *[]RecordHook, fn RecordHook) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	*list = append(*list, fn)
	h.mu.Unlock()

	h.once.Do(func() {
		h.broker.Subscribe(h.topic, h.dispatch)
	})
}

func (h *hooks) dispatch(e notify.Event) {
	h.mu.RLock()
	var fns []RecordHook
	switch e.Kind {
	case notify.KindNewRecord:
		fns = h.onNew
	case notify.KindRecordUpdated:
		fns = h.onUpdated
	}
	fns = append([]RecordHook(nil), fns...)
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}
