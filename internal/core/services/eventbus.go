package services

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventTypeRunStart   EventType = "run_start"
	EventTypeStep       EventType = "run_step"
	EventTypeAction     EventType = "run_action"
	EventTypeResult     EventType = "run_result"
	EventTypeReflection EventType = "run_reflection"
	EventTypeRunEnd     EventType = "run_end"
)

type Event struct {
	Topic     string // run id, or "trace:<id>" for trace events
	Type      EventType
	Data      string // JSON payload or raw text
	Timestamp int64
}

type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event // Key: Topic
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel that receives events for a topic
func (b *EventBus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100) // Buffer to prevent blocking publisher
	b.subs[topic] = append(b.subs[topic], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subscribers := b.subs[topic]
			for i, sub := range subscribers {
				if sub == ch {
					close(ch)
					b.subs[topic] = append(subscribers[:i], subscribers[i+1:]...)
					break
				}
			}
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}

	return ch, unsub
}

// Publish sends an event to all subscribers of the topic
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers, ok := b.subs[e.Topic]
	if !ok {
		return
	}

	for _, ch := range subscribers {
		select {
		case ch <- e:
		default:
			// If channel is full, drop event to prevent blocking the run loop
			b.logger.Warn("event bus channel full, dropping event", "topic", e.Topic)
		}
	}
}

// publishRunEvent marshals data and publishes it on the run's topic.
// A nil bus is allowed.
func (b *EventBus) publishRunEvent(topic string, typ EventType, data map[string]interface{}) {
	if b == nil {
		return
	}
	payload, _ := json.Marshal(data)
	b.Publish(Event{
		Topic:     topic,
		Type:      typ,
		Data:      string(payload),
		Timestamp: time.Now().UnixMilli(),
	})
}
