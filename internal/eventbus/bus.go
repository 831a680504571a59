// Package eventbus fans agent events out to local subscribers. The
// connection handler, pairing manager and upload registry publish;
// IPC subscribe streams and the dashboard drain.
package eventbus

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types published on the bus. All but LogEntry also land in the
// settings store as `_event_<name>` slots for the polling UI surface.
const (
	HubConnected    = "hub_connected"
	HubDisconnected = "hub_disconnected"
	PairingCode     = "pairing_code"
	PairingSuccess  = "pairing_success"
	OperationEvent  = "operation_event"
	UploadProgress  = "upload_progress"
	CreateShortcut  = "create_shortcut"
	RemoveShortcut  = "remove_shortcut"
	LogEntry        = "log_entry"
)

// subBuffer is each subscriber's channel depth. A publish to a full
// subscriber drops the event for that subscriber instead of blocking.
const subBuffer = 64

// Event is a single message on the bus.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// subscriber pairs a delivery channel with its type filter. A nil
// filter receives everything.
type subscriber struct {
	types map[string]struct{}
}

func (s *subscriber) wants(eventType string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Bus is an in-process fan-out for agent events. Publishing never
// blocks; a subscriber that stops draining loses events, not the
// publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[chan Event]*subscriber
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[chan Event]*subscriber)}
}

// Subscribe registers a new subscriber for the given event types, or
// for everything when none are named. The returned channel is closed
// by Unsubscribe or Close.
func (b *Bus) Subscribe(types ...string) chan Event {
	ch := make(chan Event, subBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}

	sub := &subscriber{}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.subs[ch] = sub
	return ch
}

// Unsubscribe removes ch and closes it. Unknown or already removed
// channels are ignored.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish delivers e to every matching subscriber. Events without a
// timestamp are stamped on the way in.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, sub := range b.subs {
		if !sub.wants(e.Type) {
			continue
		}
		select {
		case ch <- e:
		default:
			// subscriber is full, drop
		}
	}
}

// PublishType marshals data and publishes it as an event of the given type.
func (b *Bus) PublishType(eventType string, data any) {
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	b.Publish(Event{Type: eventType, Data: raw})
}

// Close shuts the bus down: every subscriber channel is closed and
// later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}
