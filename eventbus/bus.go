// Package eventbus provides the in-process publish/subscribe channel
// the coordinator emits lifecycle events on. Event types form a
// closed, typed set so a typo cannot silently create a dead event name.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of events the kit emits.
type EventType string

const (
	EventJobCompleted     EventType = "job.completed"
	EventJobCancelled     EventType = "job.cancelled"
	EventConflictDetected EventType = "conflict.detected"
	EventBatchCommitted   EventType = "batch.committed"
)

// Valid reports whether t is a member of the closed event set.
func (t EventType) Valid() bool {
	switch t {
	case EventJobCompleted, EventJobCancelled, EventConflictDetected, EventBatchCommitted:
		return true
	}
	return false
}

// Event is one published occurrence.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	EmittedAt time.Time `json:"emittedAt"`
}

// JobCompletedPayload accompanies EventJobCompleted.
type JobCompletedPayload struct {
	SyncID           string    `json:"syncId"`
	ProcessedRecords int       `json:"processedRecords"`
	CompletedAt      time.Time `json:"completedAt"`
}

// JobCancelledPayload accompanies EventJobCancelled.
type JobCancelledPayload struct {
	SyncID      string    `json:"syncId"`
	CancelledAt time.Time `json:"cancelledAt"`
	Reason      string    `json:"reason"`
}

// ConflictDetectedPayload accompanies EventConflictDetected.
type ConflictDetectedPayload struct {
	SyncID        string `json:"syncId"`
	ConflictCount int    `json:"conflictCount"`
	AutoResolved  int    `json:"autoResolved"`
}

// BatchCommittedPayload accompanies EventBatchCommitted.
type BatchCommittedPayload struct {
	SyncID     string `json:"syncId"`
	Batch      int    `json:"batch"`
	StorageKey string `json:"storageKey"`
	Records    int    `json:"records"`
}

// Handler receives published events.
type Handler func(ctx context.Context, ev Event)

// SubscriptionID identifies one handler registration.
type SubscriptionID string

// Bus is the in-process event channel. Handlers run asynchronously and
// are panic-isolated so a misbehaving subscriber cannot take down the
// coordinator.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType]map[SubscriptionID]Handler
	closed   bool
	wg       sync.WaitGroup
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[EventType]map[SubscriptionID]Handler),
	}
}

// On registers a handler for one event type and returns its
// subscription id.
func (b *Bus) On(t EventType, h Handler) SubscriptionID {
	id := SubscriptionID(uuid.NewString())

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return id
	}
	if b.handlers[t] == nil {
		b.handlers[t] = make(map[SubscriptionID]Handler)
	}
	b.handlers[t][id] = h
	return id
}

// Off removes a subscription. Unknown ids are ignored.
func (b *Bus) Off(t EventType, id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.handlers[t]; ok {
		delete(subs, id)
	}
}

// Emit publishes an event to every subscriber of its type. Dispatch is
// asynchronous; Emit never blocks on a slow handler.
func (b *Bus) Emit(ctx context.Context, t EventType, payload any) {
	ev := Event{Type: t, Payload: payload, EmittedAt: time.Now().UTC()}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]Handler, 0, len(b.handlers[t]))
	for _, h := range b.handlers[t] {
		subs = append(subs, h)
	}
	b.mu.RUnlock()

	for _, h := range subs {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			defer func() {
				// Subscriber panics must not propagate.
				_ = recover()
			}()
			h(ctx, ev)
		}(h)
	}
}

// Close stops accepting subscriptions and waits for in-flight handler
// dispatches to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.handlers = make(map[EventType]map[SubscriptionID]Handler)
	b.mu.Unlock()

	b.wg.Wait()
}
