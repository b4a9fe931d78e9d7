package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPolicy(t *testing.T, policyType string, params map[string]any, sched *Scheduler) Policy {
	t.Helper()
	p, err := NewPolicy(ComponentConfig{Type: policyType, Params: params}, sched)
	require.NoError(t, err)
	return p
}

// fakeClock steps time manually for cooldown and rate limit tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func withFakeClock(t *testing.T) *fakeClock {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)}
	restore := timeNow
	timeNow = clock.Now
	t.Cleanup(func() { timeNow = restore })
	return clock
}

var testKey = Key{PipelineID: 1, NodeID: "act-1"}

func TestNonePolicyAlwaysAdmits(t *testing.T) {
	p := mustPolicy(t, "none", nil, nil)
	assert.True(t, p.Admit(Invocation{Key: testKey}))
	p.Record(Invocation{Key: testKey})
	assert.True(t, p.Admit(Invocation{Key: testKey}))
}

func TestCooldownPolicy(t *testing.T) {
	clock := withFakeClock(t)
	p := mustPolicy(t, "cooldown", map[string]any{"cooldown_seconds": 10}, nil)
	inv := Invocation{Key: testKey}

	require.True(t, p.Admit(inv))
	p.Record(inv)

	assert.False(t, p.Admit(inv))
	clock.Advance(9 * time.Second)
	assert.False(t, p.Admit(inv))
	clock.Advance(1 * time.Second)
	assert.True(t, p.Admit(inv))

	// State is per key; another node is unaffected.
	other := Invocation{Key: Key{PipelineID: 1, NodeID: "act-2"}}
	assert.True(t, p.Admit(other))
}

func TestRateLimitPolicy(t *testing.T) {
	clock := withFakeClock(t)
	p := mustPolicy(t, "rate_limit", map[string]any{
		"max_executions": 3, "window_seconds": 60,
	}, nil)
	inv := Invocation{Key: testKey}

	admitted := 0
	for i := 0; i < 10; i++ {
		if p.Admit(inv) {
			p.Record(inv)
			admitted++
		}
		clock.Advance(time.Second)
	}
	assert.Equal(t, 3, admitted)

	// Window slides: after the oldest recording ages out, one more fits.
	clock.Advance(51 * time.Second)
	assert.True(t, p.Admit(inv))
}

func TestConditionalPolicy(t *testing.T) {
	p := mustPolicy(t, "conditional", map[string]any{
		"condition": map[string]any{
			"type": "boolean",
			"params": map[string]any{
				"field": "cpu_percent", "operator": ">", "value": 80,
			},
		},
	}, nil)

	high := Invocation{Key: testKey, Payload: map[string]any{"data": map[string]any{"cpu_percent": 95.0}}}
	low := Invocation{Key: testKey, Payload: map[string]any{"data": map[string]any{"cpu_percent": 20.0}}}
	broken := Invocation{Key: testKey, Payload: map[string]any{"data": map[string]any{}}}

	assert.True(t, p.Admit(high))
	assert.False(t, p.Admit(low))
	// Evaluation errors admit rather than silently dropping actions.
	assert.True(t, p.Admit(broken))
}

func TestCompositePolicy(t *testing.T) {
	clock := withFakeClock(t)
	p := mustPolicy(t, "composite", map[string]any{
		"operator": "and",
		"policies": []any{
			map[string]any{"type": "cooldown", "params": map[string]any{"cooldown_seconds": 10}},
			map[string]any{"type": "rate_limit", "params": map[string]any{"max_executions": 2, "window_seconds": 3600}},
		},
	}, nil)
	inv := Invocation{Key: testKey}

	require.True(t, p.Admit(inv))
	p.Record(inv)
	assert.False(t, p.Admit(inv))

	clock.Advance(10 * time.Second)
	require.True(t, p.Admit(inv))
	p.Record(inv)

	// Rate limit exhausted even after the cooldown expires.
	clock.Advance(10 * time.Second)
	assert.False(t, p.Admit(inv))
}

func TestCompositePolicyUnknownOperator(t *testing.T) {
	_, err := NewPolicy(ComponentConfig{Type: "composite", Params: map[string]any{"operator": "nand"}}, nil)
	assert.Error(t, err)
}

func TestDebouncePolicyFiresOnlyLastInvocation(t *testing.T) {
	sched := NewScheduler()
	defer sched.Stop()
	p := mustPolicy(t, "debounce", map[string]any{"delay_seconds": 0.05}, sched)

	var mu sync.Mutex
	var fired []map[string]any
	run := func(payload map[string]any) {
		mu.Lock()
		fired = append(fired, payload)
		mu.Unlock()
	}

	for i := 0; i < 10; i++ {
		inv := Invocation{Key: testKey, Payload: map[string]any{"seq": i}, Run: run}
		assert.False(t, p.Admit(inv))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 9, fired[0]["seq"])
}

func TestDebounceCancelledOnPipelineUnload(t *testing.T) {
	sched := NewScheduler()
	defer sched.Stop()
	p := mustPolicy(t, "debounce", map[string]any{"delay_seconds": 0.05}, sched)

	fired := make(chan struct{}, 1)
	p.Admit(Invocation{Key: testKey, Payload: nil, Run: func(map[string]any) {
		fired <- struct{}{}
	}})
	require.Equal(t, 1, sched.Pending())

	sched.CancelPipeline(testKey.PipelineID)
	assert.Equal(t, 0, sched.Pending())

	select {
	case <-fired:
		t.Fatal("cancelled debounce still fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestNewPolicyUnknownType(t *testing.T) {
	_, err := NewPolicy(ComponentConfig{Type: "backoff"}, nil)
	assert.Error(t, err)
}
