// Package progress publishes upload lifecycle events to registered
// observers.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventUploadSucceeded EventType = "upload_succeeded"
	EventUploadFailed    EventType = "upload_failed"
	EventBatchCompleted  EventType = "batch_completed"
	EventJobCompleted    EventType = "job_completed"
	EventJobFailed       EventType = "job_failed"
)

// Event represents an event that occurred during upload processing
type Event struct {
	ID        string
	Timestamp time.Time
	Type      EventType
	Message   string
	Data      map[string]interface{}
}

// Observer receives events as they are published.
type Observer interface {
	Notify(e Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(e Event)

// Notify calls f(e).
func (f ObserverFunc) Notify(e Event) { f(e) }

// Bus fans events out to every subscribed observer, synchronously and
// in subscription order.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers an observer. Nil observers are ignored.
func (b *Bus) Subscribe(o Observer) {
	if o == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Publish delivers an event to all observers. The event ID and
// timestamp are filled in here.
func (b *Bus) Publish(t EventType, message string, data map[string]interface{}) {
	e := Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Type:      t,
		Message:   message,
		Data:      data,
	}

	b.mu.RLock()
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	for _, o := range observers {
		o.Notify(e)
	}
}
