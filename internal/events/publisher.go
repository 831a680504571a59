// Package events persists named agent events into the settings store
// for the polling UI drain, and mirrors each one onto the in-memory bus
// for live subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/internal/metrics"
	"github.com/capydeploy/agent/internal/store"
)

// KeyPrefix reserves the settings-store namespace for event slots.
const KeyPrefix = "_event_"

// Record is the stored shape of one event slot. Timestamp is unix
// seconds; the drain contract is read-then-null.
type Record struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Publisher writes event slots and fans events out on the bus.
type Publisher struct {
	store *store.Store
	bus   *eventbus.Bus
}

// NewPublisher returns a publisher writing to st and broadcasting on bus.
func NewPublisher(st *store.Store, bus *eventbus.Bus) *Publisher {
	return &Publisher{store: st, bus: bus}
}

// Publish stores the event under its `_event_<name>` slot, overwriting
// any undrained predecessor, and broadcasts it on the bus.
func (p *Publisher) Publish(name string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", name, err)
	}
	now := time.Now()
	rec := Record{Timestamp: now.Unix(), Data: raw}
	if err := p.store.Set(KeyPrefix+name, rec); err != nil {
		return fmt.Errorf("store event %s: %w", name, err)
	}
	p.bus.Publish(eventbus.Event{Type: name, Timestamp: now, Data: raw})
	metrics.EventsPublished.WithLabelValues(name).Inc()
	return nil
}

// Get returns the pending record for name and clears the slot, or nil
// when nothing is pending.
func (p *Publisher) Get(name string) (*Record, error) {
	var rec Record
	ok, err := p.store.GetJSON(KeyPrefix+name, &rec)
	if err != nil || !ok {
		return nil, err
	}
	if err := p.store.Set(KeyPrefix+name, nil); err != nil {
		return nil, fmt.Errorf("drain event %s: %w", name, err)
	}
	return &rec, nil
}
