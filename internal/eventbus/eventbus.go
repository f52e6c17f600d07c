// Package eventbus implements the Event Bus (C4): the lifecycle topic
// (structured EventEnvelope messages) and the notification topic
// (free-text strings), each a thin multi-subscriber fan-out with a
// drop-on-lag policy per slow subscriber.
package eventbus

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jizhuozhi/hermes/broker/internal/model"
)

// defaultBuffer is the per-subscriber channel depth when the caller does
// not configure one.
const defaultBuffer = 64

// dropLogInterval rate-limits the dropped-event warning to once per
// subscriber per window, so a permanently stuck subscriber doesn't flood
// the log.
const dropLogInterval = 10 * time.Second

// LifecycleTopic fans out EventEnvelope values (AppStatus,
// UpstreamClusterChanged) to subscribers. There is no replay: a subscriber
// only sees events published after it subscribes.
type LifecycleTopic struct {
	mu          sync.Mutex
	subscribers map[int]*lifecycleSub
	nextID      int
	buffer      int
	logger      *zap.SugaredLogger
}

type lifecycleSub struct {
	ch         chan model.EventEnvelope
	lastDropAt time.Time
}

func newLifecycleTopic(buffer int, logger *zap.SugaredLogger) *LifecycleTopic {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &LifecycleTopic{
		subscribers: make(map[int]*lifecycleSub),
		buffer:      buffer,
		logger:      logger,
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed by unsubscribe, never by
// Publish.
func (t *LifecycleTopic) Subscribe() (<-chan model.EventEnvelope, func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	sub := &lifecycleSub{ch: make(chan model.EventEnvelope, t.buffer)}
	t.subscribers[id] = sub
	t.mu.Unlock()

	return sub.ch, func() {
		t.mu.Lock()
		if s, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(s.ch)
		}
		t.mu.Unlock()
	}
}

// Publish delivers env to every current subscriber, non-blocking. A
// subscriber whose buffer is full drops the event; the drop is logged at
// Warn, rate-limited per subscriber. The send loop runs under t.mu, the
// same lock unsubscribe takes before closing a subscriber's channel, so a
// concurrent unsubscribe can never close a channel out from under an
// in-flight send and lastDropAt is never written by two publishers at
// once. Every send is non-blocking (select/default), so holding the lock
// across the loop cannot deadlock.
func (t *LifecycleTopic) Publish(env model.EventEnvelope) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for _, s := range t.subscribers {
		select {
		case s.ch <- env:
		default:
			if t.logger != nil && now.Sub(s.lastDropAt) >= dropLogInterval {
				t.logger.Warnf("eventbus: dropping lifecycle event %s for slow subscriber", env.Type)
				s.lastDropAt = now
			}
		}
	}
}

// NotificationTopic fans out free-text human-readable notifications, used
// by the web admin UI and operator tooling. Same no-replay, drop-on-lag
// semantics as LifecycleTopic.
type NotificationTopic struct {
	mu          sync.Mutex
	subscribers map[int]*notificationSub
	nextID      int
	buffer      int
	logger      *zap.SugaredLogger
}

type notificationSub struct {
	ch         chan string
	lastDropAt time.Time
}

func newNotificationTopic(buffer int, logger *zap.SugaredLogger) *NotificationTopic {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &NotificationTopic{
		subscribers: make(map[int]*notificationSub),
		buffer:      buffer,
		logger:      logger,
	}
}

func (t *NotificationTopic) Subscribe() (<-chan string, func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	sub := &notificationSub{ch: make(chan string, t.buffer)}
	t.subscribers[id] = sub
	t.mu.Unlock()

	return sub.ch, func() {
		t.mu.Lock()
		if s, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(s.ch)
		}
		t.mu.Unlock()
	}
}

// Publish runs under t.mu for the same reason LifecycleTopic.Publish does:
// it serializes the send loop against unsubscribe's channel close and
// against concurrent publishers racing on lastDropAt.
func (t *NotificationTopic) Publish(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for _, s := range t.subscribers {
		select {
		case s.ch <- msg:
		default:
			if t.logger != nil && now.Sub(s.lastDropAt) >= dropLogInterval {
				t.logger.Warnf("eventbus: dropping notification for slow subscriber")
				s.lastDropAt = now
			}
		}
	}
}

// Bus bundles the two topics the registry core publishes on.
type Bus struct {
	lifecycle    *LifecycleTopic
	notification *NotificationTopic
}

// New constructs a Bus with the given per-subscriber buffer depth (<=0
// uses the default of 64).
func New(buffer int, logger *zap.SugaredLogger) *Bus {
	return &Bus{
		lifecycle:    newLifecycleTopic(buffer, logger),
		notification: newNotificationTopic(buffer, logger),
	}
}

func (b *Bus) Lifecycle() *LifecycleTopic       { return b.lifecycle }
func (b *Bus) Notifications() *NotificationTopic { return b.notification }
