package pipeline

import (
	"sync"
	"time"
)

// Key scopes policy state to one action node in one pipeline.
type Key struct {
	PipelineID int64
	NodeID     string
}

// pendingTimer is one armed timer plus the generation it was armed
// under. A fired callback only runs if its generation still owns the
// map entry, so a re-arm that raced the fire is never clobbered.
type pendingTimer struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler owns the delayed invocations used by debounce policies.
// Scheduling a key again replaces its pending timer.
type Scheduler struct {
	mu     sync.Mutex
	gen    uint64
	timers map[Key]pendingTimer
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[Key]pendingTimer)}
}

// Schedule arms (or re-arms) a delayed call for key. fn runs on its own
// goroutine after d with no scheduler lock held.
func (s *Scheduler) Schedule(key Key, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.timers[key]; ok {
		p.timer.Stop()
	}
	s.gen++
	gen := s.gen
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		cur, ok := s.timers[key]
		if !ok || cur.gen != gen {
			// Cancelled or replaced between firing and acquiring the
			// lock; the invocation belongs to the newer timer now.
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = pendingTimer{timer: timer, gen: gen}
}

// Cancel drops the pending call for key, if any.
func (s *Scheduler) Cancel(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.timers[key]; ok {
		p.timer.Stop()
		delete(s.timers, key)
	}
}

// CancelPipeline drops every pending call belonging to one pipeline.
// Called on unload.
func (s *Scheduler) CancelPipeline(pipelineID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.timers {
		if key.PipelineID == pipelineID {
			p.timer.Stop()
			delete(s.timers, key)
		}
	}
}

// Stop cancels everything pending.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, key)
	}
}

// Has reports whether a timer is armed for key.
func (s *Scheduler) Has(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Pending reports how many timers are armed.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
