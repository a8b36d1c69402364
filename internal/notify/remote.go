package notify

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/pkg/errors"
)

const (
	remoteReadLimit = 1 << 20
	remoteWriteWait = 10 * time.Second
	defaultAckWait  = 2 * time.Second
)

// RemoteChannel is the Notifier used by a browsing context. It attaches to
// the server hub over WebSocket; events it publishes reach every other
// attached context but never come back to itself.
type RemoteChannel struct {
	id      string
	logger  *zerolog.Logger
	ackWait time.Duration

	conn  *websocket.Conn
	local *Broker

	// subMu orders hub subscribe and unsubscribe frames with the refs
	// change that caused them.
	subMu   sync.Mutex
	mu      sync.Mutex
	refs    map[string]int
	pending map[string][]chan struct{}

	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// RemoteOption configures a RemoteChannel.
type RemoteOption func(*RemoteChannel)

// WithClientID sets the context id used as event origin.
func WithClientID(id string) RemoteOption {
	return func(rc *RemoteChannel) {
		if id != "" {
			rc.id = id
		}
	}
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(l *zerolog.Logger) RemoteOption {
	return func(rc *RemoteChannel) {
		if l != nil {
			rc.logger = l
		}
	}
}

// WithAckTimeout bounds how long Subscribe waits for the hub to confirm.
func WithAckTimeout(d time.Duration) RemoteOption {
	return func(rc *RemoteChannel) {
		if d > 0 {
			rc.ackWait = d
		}
	}
}

// Dial connects to the hub at endpoint (ws:// or wss://).
func Dial(ctx context.Context, endpoint string, opts ...RemoteOption) (*RemoteChannel, error) {
	nop := zerolog.Nop()
	rc := &RemoteChannel{
		id:      uuid.NewString(),
		logger:  &nop,
		ackWait: defaultAckWait,
		refs:    make(map[string]int),
		pending: make(map[string][]chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(rc)
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.NewValidationError("endpoint", endpoint, err.Error())
	}
	q := u.Query()
	q.Set("client", rc.id)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, errors.NewNetworkError("GET", endpoint, err)
	}
	conn.SetReadLimit(remoteReadLimit)

	rc.conn = conn
	rc.local = NewBroker(rc.logger)
	rc.ctx, rc.cancel = context.WithCancel(context.Background())
	go rc.readLoop()

	rc.logger.Debug().Str("client_id", rc.id).Str("endpoint", endpoint).Msg("Attached to update hub")
	return rc, nil
}

// ID returns the origin id of this context.
func (rc *RemoteChannel) ID() string {
	return rc.id
}

// Done is closed when the connection to the hub is lost or closed.
func (rc *RemoteChannel) Done() <-chan struct{} {
	return rc.done
}

// Subscribe registers handler for topic. The first subscription on a topic
// asks the hub to forward it and waits briefly for confirmation.
func (rc *RemoteChannel) Subscribe(topic string, handler Handler, opts ...SubscribeOption) Subscription {
	sub := rc.local.Subscribe(topic, handler, opts...)
	rs := &remoteSubscription{rc: rc, topic: topic, inner: sub, counted: true}

	rc.subMu.Lock()
	rc.mu.Lock()
	rc.refs[topic]++
	first := rc.refs[topic] == 1
	var ack chan struct{}
	if first {
		ack = make(chan struct{})
		rc.pending[topic] = append(rc.pending[topic], ack)
	}
	rc.mu.Unlock()

	if !first {
		rc.subMu.Unlock()
		return rs
	}
	if err := rc.write(rc.ctx, Frame{Op: OpSubscribe, Topic: topic}); err != nil {
		rc.unref(topic, ack)
		rs.counted = false
		rc.subMu.Unlock()
		rc.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to subscribe on hub")
		return rs
	}
	rc.subMu.Unlock()

	timer := time.NewTimer(rc.ackWait)
	select {
	case <-ack:
	case <-timer.C:
		rc.logger.Warn().Str("topic", topic).Msg("Hub did not confirm subscription")
	case <-rc.done:
	}
	timer.Stop()
	return rs
}

// unref undoes a subscription whose subscribe frame never reached the hub,
// so the next Subscribe on topic sends it again.
func (rc *RemoteChannel) unref(topic string, ack chan struct{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.refs[topic]--
	if rc.refs[topic] <= 0 {
		delete(rc.refs, topic)
	}
	acks := rc.pending[topic]
	for i, a := range acks {
		if a == ack {
			acks = append(acks[:i], acks[i+1:]...)
			break
		}
	}
	if len(acks) == 0 {
		delete(rc.pending, topic)
	} else {
		rc.pending[topic] = acks
	}
}

// Publish sends event to the hub for every other context on topic.
func (rc *RemoteChannel) Publish(ctx context.Context, topic string, event Event) error {
	if topic == "" {
		return errors.NewValidationError("topic", topic, "must not be empty")
	}
	if !event.Kind.Valid() {
		return errors.NewValidationError("kind", event.Kind, "must be NEW_RECORD or RECORD_UPDATED")
	}
	event.Topic = topic
	event.Origin = rc.id
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return rc.write(ctx, Frame{Op: OpPublish, Topic: topic, Event: &event})
}

// Close detaches from the hub and stops all local subscriptions.
func (rc *RemoteChannel) Close() error {
	rc.cancel()
	err := rc.conn.Close(websocket.StatusNormalClosure, "")
	<-rc.done
	if err != nil && websocket.CloseStatus(err) == -1 {
		rc.logger.Debug().Err(err).Msg("Close handshake incomplete")
	}
	return nil
}

func (rc *RemoteChannel) write(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, remoteWriteWait)
	defer cancel()

	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	if err := rc.conn.Write(wctx, websocket.MessageText, data); err != nil {
		return errors.NewNetworkError("", "hub", err)
	}
	return nil
}

func (rc *RemoteChannel) readLoop() {
	defer func() {
		_ = rc.local.Close()
		close(rc.done)
	}()

	for {
		_, data, err := rc.conn.Read(rc.ctx)
		if err != nil {
			if rc.ctx.Err() == nil {
				rc.logger.Warn().Err(err).Msg("Update hub connection lost")
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			rc.logger.Warn().Err(err).Msg("Discarding malformed hub frame")
			continue
		}

		switch f.Op {
		case OpEvent:
			if f.Event == nil {
				continue
			}
			topic := f.Event.Topic
			if topic == "" {
				topic = f.Topic
			}
			if err := rc.local.Publish(rc.ctx, topic, *f.Event); err != nil {
				rc.logger.Debug().Err(err).Msg("Dropped hub event")
			}
		case OpSubscribed:
			rc.mu.Lock()
			for _, ack := range rc.pending[f.Topic] {
				close(ack)
			}
			delete(rc.pending, f.Topic)
			rc.mu.Unlock()
		case OpWelcome:
			rc.logger.Debug().Str("client_id", f.Client).Msg("Hub welcomed context")
		}
	}
}

type remoteSubscription struct {
	rc    *RemoteChannel
	topic string
	inner Subscription
	once  sync.Once
	// counted is false when the hub never accepted the subscribe frame.
	counted bool
}

func (s *remoteSubscription) Close() error {
	s.once.Do(func() {
		_ = s.inner.Close()
		if !s.counted {
			return
		}

		s.rc.subMu.Lock()
		defer s.rc.subMu.Unlock()

		s.rc.mu.Lock()
		s.rc.refs[s.topic]--
		last := s.rc.refs[s.topic] <= 0
		if last {
			delete(s.rc.refs, s.topic)
		}
		s.rc.mu.Unlock()

		if last && s.rc.ctx.Err() == nil {
			_ = s.rc.write(s.rc.ctx, Frame{Op: OpUnsubscribe, Topic: s.topic})
		}
	})
	return nil
}
