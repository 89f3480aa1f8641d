package events

import (
	"log"
	"sync"
)

// EventType labels what happened.
type EventType string

const (
	EventTxExecuted      EventType = "tx_executed"
	EventTroopsCommitted EventType = "troops_committed"
	EventCommitSkipped   EventType = "commit_skipped"
	EventBattleResolved  EventType = "battle_resolved"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type EventType      `json:"type"`
	TxID string         `json:"tx_id,omitempty"`
	Data map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

type subscription struct {
	id uint64
	h  Handler
}

// Emitter is a simple pub/sub broker.
type Emitter struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
	all      []subscription
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]subscription)}
}

// Subscribe registers h to be called whenever typ is emitted.
// The returned func removes the subscription.
func (e *Emitter) Subscribe(typ EventType, h Handler) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.handlers[typ] = append(e.handlers[typ], subscription{id: id, h: h})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.handlers[typ] = without(e.handlers[typ], id)
	}
}

// SubscribeAll registers h for every event type.
func (e *Emitter) SubscribeAll(h Handler) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.all = append(e.all, subscription{id: id, h: h})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.all = without(e.all, id)
	}
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot abort the transaction that produced the event.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	subs := make([]subscription, 0, len(e.handlers[ev.Type])+len(e.all))
	subs = append(subs, e.handlers[ev.Type]...)
	subs = append(subs, e.all...)
	e.mu.RUnlock()
	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[events] handler panicked for %s: %v", ev.Type, r)
				}
			}()
			s.h(ev)
		}()
	}
}

func without(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
