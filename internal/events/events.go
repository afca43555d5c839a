// Package events provides an in-process async trigger bus.
//
// Background work that used to be fired and forgotten (post-admit bank
// validation, post-import matching) goes through here instead, so handler
// failures are logged in one place and tests can wait for delivery.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Topic identifies an event stream.
type Topic string

const (
	TopicEntryAdmitted  Topic = "entry.admitted"
	TopicReconImported  Topic = "recon.imported"
	TopicBatchProcessed Topic = "batch.processed"
)

// Event is a published message.
type Event struct {
	Topic      Topic
	EntityID   string
	OccurredAt time.Time
}

// Handler consumes one event. Errors are logged, never propagated to the
// publisher.
type Handler func(ctx context.Context, ev Event) error

// Bus fans events out to per-topic subscribers, each drained by its own
// worker goroutine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]*subscription
	logger *slog.Logger
	wg     sync.WaitGroup
	closed bool
}

type subscription struct {
	name    string
	ch      chan Event
	handler Handler
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[Topic][]*subscription),
		logger: logger,
	}
}

// Subscribe registers a named handler for a topic and starts its worker.
// Must be called before Publish traffic begins.
func (b *Bus) Subscribe(topic Topic, name string, handler Handler) {
	sub := &subscription{
		name:    name,
		ch:      make(chan Event, 64),
		handler: handler,
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.drain(sub)
}

func (b *Bus) drain(sub *subscription) {
	defer b.wg.Done()
	for ev := range sub.ch {
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic in event handler",
				"handler", sub.name, "topic", ev.Topic, "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := sub.handler(ctx, ev); err != nil {
		b.logger.Warn("event handler failed",
			"handler", sub.name, "topic", ev.Topic, "entity", ev.EntityID, "error", err)
	}
}

// Publish sends an event to every subscriber of its topic. When a
// subscriber's buffer is full the event is dropped for that subscriber and
// logged; publishers never block on slow consumers.
func (b *Bus) Publish(topic Topic, entityID string) {
	ev := Event{Topic: topic, EntityID: entityID, OccurredAt: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("event dropped, subscriber buffer full",
				"handler", sub.name, "topic", topic, "entity", entityID)
		}
	}
}

// Close stops accepting events and waits for in-flight handlers to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
}
