// Package signals implements the host-observation sources that feed the
// event bus: cpu/ram, battery, network, window focus, filesystem and
// clipboard.
package signals

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/signaldock/signaldock/pkg/models"
)

// Metadata describes a source type for the catalog endpoints.
type Metadata struct {
	Type               string `json:"type"`
	DisplayName        string `json:"display_name"`
	Description        string `json:"description"`
	RequiresPermission bool   `json:"requires_permission"`
	Permission         string `json:"permission,omitempty"`
}

// Status is the live state snapshot of one source instance.
type Status struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Running     bool           `json:"running"`
	Subscribers int            `json:"subscribers"`
	LastValue   map[string]any `json:"last_value,omitempty"`
}

// Source produces SignalEvents describing changes in one host subsystem.
type Source interface {
	Name() string
	Type() string
	Metadata() Metadata
	// Start launches the producer goroutine. Idempotent.
	Start(ctx context.Context) error
	// Stop halts the producer and waits for it to exit. No subscriber
	// callback fires after Stop returns. Idempotent.
	Stop()
	Subscribe(fn func(models.SignalEvent)) int
	Unsubscribe(id int)
	Status() Status
}

// Snapshotter is implemented by sources that can sample on demand,
// outside their polling cadence.
type Snapshotter interface {
	CurrentValues(ctx context.Context) (map[string]any, error)
}

// pollFunc samples the subsystem once. A nil event means no salient
// change was detected on this tick.
type pollFunc func(ctx context.Context) (*models.SignalEvent, error)

// base carries the shared lifecycle machinery: the single producer
// goroutine, the subscriber list and the monotonic timestamp clamp.
type base struct {
	name     string
	typ      string
	meta     Metadata
	interval time.Duration
	poll     pollFunc
	log      *slog.Logger

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	subs      map[int]func(models.SignalEvent)
	nextSubID int
	lastTS    time.Time
	lastValue map[string]any
}

func newBase(name string, meta Metadata, interval time.Duration) *base {
	return &base{
		name:     name,
		typ:      meta.Type,
		meta:     meta,
		interval: interval,
		log:      slog.With("source", name, "source_type", meta.Type),
		subs:     make(map[int]func(models.SignalEvent)),
	}
}

func (b *base) Name() string       { return b.name }
func (b *base) Type() string       { return b.typ }
func (b *base) Metadata() Metadata { return b.meta }

func (b *base) Subscribe(fn func(models.SignalEvent)) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSubID
	b.nextSubID++
	b.subs[id] = fn
	return id
}

func (b *base) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (b *base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Name:        b.name,
		Type:        b.typ,
		Running:     b.running,
		Subscribers: len(b.subs),
		LastValue:   models.CopyMap(b.lastValue),
	}
}

func (b *base) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		b.log.Warn("Signal source already running")
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.running = true
	b.cancel = cancel
	b.wg.Add(1)
	go b.run(runCtx)
	return nil
}

func (b *base) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	cancel()
	b.wg.Wait()
}

func (b *base) run(ctx context.Context) {
	defer b.wg.Done()
	b.log.Info("Signal source started", "interval", b.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			b.log.Info("Signal source stopped")
			return
		case <-timer.C:
		}

		ev, err := b.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				b.log.Info("Signal source stopped")
				return
			}
			b.log.Error("Poll failed", "error", err)
		} else if ev != nil {
			b.emit(ctx, *ev)
		}
		timer.Reset(b.interval)
	}
}

// emit stamps source identity, clamps the timestamp so it never moves
// backwards for this instance, and notifies subscribers.
func (b *base) emit(ctx context.Context, ev models.SignalEvent) {
	if ctx.Err() != nil {
		return
	}
	ev.SourceType = b.typ
	ev.SourceName = b.name

	b.mu.Lock()
	if ev.Timestamp.Before(b.lastTS) {
		ev.Timestamp = b.lastTS
	}
	b.lastTS = ev.Timestamp
	b.lastValue = ev.Data
	fns := make([]func(models.SignalEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// setLastValue updates the status snapshot on polls that emit nothing.
func (b *base) setLastValue(v map[string]any) {
	b.mu.Lock()
	b.lastValue = v
	b.mu.Unlock()
}
