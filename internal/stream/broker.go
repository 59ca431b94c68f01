package stream

import (
	"sync"

	alerts "vitalwatch-cloud/internal/alerts/domain"
	telemetry "vitalwatch-cloud/internal/telemetry/domain"
)

// EventKind tags the payload carried by a stream event.
type EventKind string

const (
	EventKindReading EventKind = "reading"
	EventKindAlert   EventKind = "alert"
)

// Event is the tagged union delivered to device subscribers.
type Event struct {
	Kind     EventKind          `json:"kind"`
	DeviceID string             `json:"device_id"`
	Reading  *telemetry.Reading `json:"reading,omitempty"`
	Alert    *alerts.Alert      `json:"alert,omitempty"`
}

// ReadingEvent wraps a reading for publication.
func ReadingEvent(reading telemetry.Reading) Event {
	return Event{Kind: EventKindReading, DeviceID: reading.DeviceID, Reading: &reading}
}

// AlertEvent wraps an alert for publication.
func AlertEvent(alert alerts.Alert) Event {
	return Event{Kind: EventKindAlert, DeviceID: alert.DeviceID, Alert: &alert}
}

// Subscription is a live handle onto one device's event stream. It
// exists only while the observer holds it; there is no replay of events
// published before Subscribe.
type Subscription struct {
	deviceID string
	ch       chan Event
	closed   bool
}

// Events returns the receive channel. It is closed when the subscriber
// is unsubscribed or the broker shuts down.
func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

// DeviceID returns the device the subscription is keyed by.
func (s *Subscription) DeviceID() string {
	if s == nil {
		return ""
	}
	return s.deviceID
}

const defaultQueueDepth = 16

// Broker fans out readings and alerts to live observers, keyed by
// device identifier. Publish never blocks: each subscriber has a
// bounded queue and the oldest queued event is dropped on overflow, so
// a slow observer cannot stall the scheduler or its siblings.
type Broker struct {
	mu         sync.Mutex
	queueDepth int
	subs       map[string]map[*Subscription]struct{}
	dropHook   func(deviceID string)
	closed     bool
}

// BrokerOption customizes the broker.
type BrokerOption func(*Broker)

// WithQueueDepth overrides the per-subscriber queue depth.
func WithQueueDepth(depth int) BrokerOption {
	return func(b *Broker) {
		if depth > 0 {
			b.queueDepth = depth
		}
	}
}

// WithDropHook installs a callback invoked when an event is dropped for
// a slow subscriber.
func WithDropHook(hook func(deviceID string)) BrokerOption {
	return func(b *Broker) {
		b.dropHook = hook
	}
}

// NewBroker constructs a broker.
func NewBroker(opts ...BrokerOption) *Broker {
	broker := &Broker{
		queueDepth: defaultQueueDepth,
		subs:       make(map[string]map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(broker)
	}
	return broker
}

// Subscribe registers a new observer for the device. After Close the
// returned subscription is already terminated.
func (b *Broker) Subscribe(deviceID string) *Subscription {
	sub := &Subscription{deviceID: deviceID, ch: make(chan Event, b.queueDepth)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	set := b.subs[deviceID]
	if set == nil {
		set = make(map[*Subscription]struct{})
		b.subs[deviceID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe releases the subscription and closes its channel. It is
// idempotent; calling it multiple times or never is safe.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if b == nil || sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// Publish delivers the event to every current subscriber of its device.
// Delivery is best-effort per subscriber and never blocks the caller;
// publishing with zero subscribers is a no-op.
func (b *Broker) Publish(event Event) {
	if b == nil || event.DeviceID == "" {
		return
	}
	// Sends happen under the lock so they cannot race a channel close in
	// Unsubscribe or Close. They are non-blocking, so the lock is never
	// held across a slow consumer.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs[event.DeviceID] {
		select {
		case sub.ch <- event:
		default:
			// Queue full: drop the oldest so the newest is kept.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
			if b.dropHook != nil {
				b.dropHook(event.DeviceID)
			}
		}
	}
}

// SubscriberCount returns the number of live subscriptions for a device.
func (b *Broker) SubscriberCount(deviceID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[deviceID])
}

// Close terminates every subscription so observers see a clean stream
// end instead of a silent hang. Further publishes are discarded and
// further subscribes return terminated handles.
func (b *Broker) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
			}
		}
	}
	b.subs = make(map[string]map[*Subscription]struct{})
}

func (b *Broker) removeLocked(sub *Subscription) {
	set := b.subs[sub.deviceID]
	if set != nil {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, sub.deviceID)
			}
		}
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}
