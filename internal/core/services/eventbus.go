package services

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
)

type EventType string

const (
	EventTypeTransition EventType = "transition"
	EventTypeCompose    EventType = "compose"
	EventTypeNewMessage EventType = "new_message"
)

// BroadcastChannel is the well-known EventBus key for events every client should see.
const BroadcastChannel = "__broadcast__"

type Event struct {
	JobID     string // channel key: asset job id, conversation id or BroadcastChannel
	Type      EventType
	Data      string // JSON payload or raw text
	Timestamp int64
}

type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event
	global []chan Event
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel that receives events published under key.
func (b *EventBus) Subscribe(key string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.subs[key] = append(b.subs[key], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subscribers := b.subs[key]
			for i, sub := range subscribers {
				if sub == ch {
					close(ch)
					b.subs[key] = append(subscribers[:i], subscribers[i+1:]...)
					break
				}
			}
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
		})
	}

	return ch, unsub
}

// SubscribeGlobal receives every event regardless of key.
func (b *EventBus) SubscribeGlobal() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.global = append(b.global, ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range b.global {
				if sub == ch {
					close(ch)
					b.global = append(b.global[:i], b.global[i+1:]...)
					break
				}
			}
		})
	}
	return ch, unsub
}

// Publish fans an event out without blocking. Full subscriber buffers drop the event.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.JobID] {
		b.deliver(ch, e)
	}
	for _, ch := range b.global {
		b.deliver(ch, e)
	}
}

func (b *EventBus) deliver(ch chan Event, e Event) {
	select {
	case ch <- e:
	default:
		b.logger.Warn("event bus channel full, dropping event", "key", e.JobID, "type", string(e.Type))
	}
}

// PublishTransition emits a structured transition event on the job's channel
// and, when set, on the owning conversation's channel.
func (b *EventBus) PublishTransition(convID domain.ConversationID, t domain.AssetTransition) {
	payload, err := json.Marshal(t)
	if err != nil {
		b.logger.Error("failed to marshal transition", "job_id", string(t.JobID), "error", err)
		return
	}
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	e := Event{JobID: string(t.JobID), Type: EventTypeTransition, Data: string(payload), Timestamp: ts.UnixMilli()}
	b.Publish(e)
	if convID != "" {
		e.JobID = string(convID)
		b.Publish(e)
	}
}
