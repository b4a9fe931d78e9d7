package pipeline

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerReplacesPendingTimer(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	key := Key{PipelineID: 1, NodeID: "act"}

	var first, second atomic.Int32
	s.Schedule(key, 50*time.Millisecond, func() { first.Add(1) })
	s.Schedule(key, 10*time.Millisecond, func() { second.Add(1) })
	require.Equal(t, 1, s.Pending())

	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load(), "replaced timer must not fire")
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerCancelPipeline(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var fired atomic.Int32
	s.Schedule(Key{PipelineID: 1, NodeID: "a"}, 10*time.Millisecond, func() { fired.Add(1) })
	s.Schedule(Key{PipelineID: 1, NodeID: "b"}, 10*time.Millisecond, func() { fired.Add(1) })
	s.Schedule(Key{PipelineID: 2, NodeID: "a"}, 10*time.Millisecond, func() { fired.Add(1) })

	s.CancelPipeline(1)
	assert.Equal(t, 1, s.Pending())
	assert.False(t, s.Has(Key{PipelineID: 1, NodeID: "a"}))
	assert.True(t, s.Has(Key{PipelineID: 2, NodeID: "a"}))

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

// A timer that fires while Schedule re-arms the same key must not tear
// down the fresh timer or run its stale invocation. The test parks the
// fired callback on the scheduler lock and swaps in a newer-generation
// entry before releasing it.
func TestSchedulerStaleFireKeepsRearmedTimer(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	key := Key{PipelineID: 1, NodeID: "act"}

	var stale atomic.Int32
	s.Schedule(key, 10*time.Millisecond, func() { stale.Add(1) })

	// Hold the lock across the fire so the callback parks on s.mu, then
	// install a newer generation entry for the same key before releasing
	// it, as a re-arm would.
	s.mu.Lock()
	time.Sleep(30 * time.Millisecond)
	s.gen++
	fresh := pendingTimer{timer: time.NewTimer(time.Hour), gen: s.gen}
	s.timers[key] = fresh
	s.mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), stale.Load(), "stale callback must not run")
	assert.Equal(t, 1, s.Pending(), "re-armed entry survives the stale fire")
	fresh.timer.Stop()
}
