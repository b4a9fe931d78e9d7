package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldock/signaldock/pkg/models"
)

func makeEvent(source string) models.SignalEvent {
	ev := models.NewSignalEvent(models.EventValueChanged, map[string]any{"v": 1}, nil)
	ev.SourceType = source
	ev.SourceName = source
	return ev
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := New(16)
	defer b.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	require.NoError(t, b.Subscribe("collector", func(ev models.SignalEvent) {
		mu.Lock()
		got = append(got, ev.ID)
		n := len(got)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	}))

	var want []string
	for i := 0; i < 3; i++ {
		ev := makeEvent("cpu")
		want = append(want, ev.ID)
		b.Publish(ev)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got, "per-subscriber delivery preserves publish order")
}

func TestDuplicateSubscriberRejected(t *testing.T) {
	b := New(1)
	defer b.Close()

	require.NoError(t, b.Subscribe("x", func(models.SignalEvent) {}))
	err := b.Subscribe("x", func(models.SignalEvent) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestSlowSubscriberDropsNewest(t *testing.T) {
	b := New(1)
	defer b.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	require.NoError(t, b.Subscribe("slow", func(models.SignalEvent) {
		once.Do(func() { close(started) })
		<-block
	}))

	// First event occupies the handler, second fills the queue,
	// everything after that is dropped.
	b.Publish(makeEvent("cpu"))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}
	for i := 0; i < 5; i++ {
		b.Publish(makeEvent("cpu"))
	}

	assert.Equal(t, uint64(4), b.Dropped("slow"))
	close(block)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(8)
	defer b.Close()

	delivered := make(chan struct{}, 8)
	require.NoError(t, b.Subscribe("gone", func(models.SignalEvent) {
		delivered <- struct{}{}
	}))
	b.Unsubscribe("gone")
	b.Publish(makeEvent("battery"))

	select {
	case <-delivered:
		t.Fatal("received event after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Zero(t, b.Dropped("gone"))
}

func TestCloseIsIdempotentAndStopsPublish(t *testing.T) {
	b := New(4)
	var count int
	var mu sync.Mutex
	require.NoError(t, b.Subscribe("c", func(models.SignalEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	b.Close()
	b.Close()
	b.Publish(makeEvent("cpu"))

	require.Error(t, b.Subscribe("late", func(models.SignalEvent) {}))
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}
