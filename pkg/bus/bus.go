// Package bus provides the process-local event bus connecting signal
// sources to pipeline execution, persistence and WebSocket fan-out.
package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/signaldock/signaldock/pkg/models"
)

// Handler consumes one event. Handlers run on the subscriber's own
// goroutine, so a slow handler delays only its own queue.
type Handler func(models.SignalEvent)

const defaultQueueSize = 256

type subscriber struct {
	name    string
	ch      chan models.SignalEvent
	dropped atomic.Uint64
	done    chan struct{}
}

// Bus fans events out to named subscribers. Publish never blocks: each
// subscriber has a bounded queue and the newest event is dropped when a
// queue is full, with the drop counted and logged.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber
	queueSize int
	closed    bool
	wg        sync.WaitGroup
}

// New creates a bus. queueSize <= 0 selects the default of 256.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bus{
		subs:      make(map[string]*subscriber),
		queueSize: queueSize,
	}
}

// Subscribe registers a named consumer. The name must be unique.
func (b *Bus) Subscribe(name string, fn Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	if _, exists := b.subs[name]; exists {
		return fmt.Errorf("subscriber %q already registered", name)
	}
	sub := &subscriber{
		name: name,
		ch:   make(chan models.SignalEvent, b.queueSize),
		done: make(chan struct{}),
	}
	b.subs[name] = sub
	b.wg.Add(1)
	go b.deliver(sub, fn)
	return nil
}

// Unsubscribe removes a consumer. Queued events for it are discarded.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	sub, ok := b.subs[name]
	if ok {
		delete(b.subs, name)
	}
	b.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

// Publish hands an event to every subscriber queue without blocking.
func (b *Bus) Publish(ev models.SignalEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			n := sub.dropped.Add(1)
			if n == 1 || n%100 == 0 {
				slog.Warn("Event bus queue full, dropping event",
					"subscriber", sub.name,
					"dropped_total", n,
					"event_id", ev.ID,
					"source_type", ev.SourceType)
			}
		}
	}
}

// Dropped reports how many events a subscriber has lost to backpressure.
func (b *Bus) Dropped(name string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub, ok := b.subs[name]; ok {
		return sub.dropped.Load()
	}
	return 0
}

// Close stops delivery and waits for all subscriber goroutines to exit.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	b.wg.Wait()
}

func (b *Bus) deliver(sub *subscriber, fn Handler) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case ev := <-sub.ch:
			b.invoke(sub.name, fn, ev)
		}
	}
}

func (b *Bus) invoke(name string, fn Handler, ev models.SignalEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panicked",
				"subscriber", name,
				"event_id", ev.ID,
				"panic", r)
		}
	}()
	fn(ev)
}
