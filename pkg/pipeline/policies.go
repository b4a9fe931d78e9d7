package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Invocation is what a policy decides about: the payload at decision
// time plus the function that runs the action. Debounce holds on to the
// latest Invocation and fires it from the scheduler.
type Invocation struct {
	Key     Key
	Payload map[string]any
	Run     func(payload map[string]any)
}

// Policy gates action execution. Admit decides synchronously and must
// not block; Record updates state after an admitted invocation ran.
type Policy interface {
	Admit(inv Invocation) bool
	Record(inv Invocation)
}

// NewPolicy materializes a policy variant. The registry is closed:
// unknown types fail construction. sched is required by debounce.
func NewPolicy(cfg ComponentConfig, sched *Scheduler) (Policy, error) {
	switch cfg.Type {
	case "none", "":
		return nonePolicy{}, nil
	case "cooldown":
		return newCooldownPolicy(cfg.Params), nil
	case "rate_limit":
		return newRateLimitPolicy(cfg.Params), nil
	case "conditional":
		return newConditionalPolicy(cfg.Params)
	case "composite":
		return newCompositePolicy(cfg.Params, sched)
	case "debounce":
		return newDebouncePolicy(cfg.Params, sched), nil
	default:
		return nil, fmt.Errorf("unknown policy type: %s", cfg.Type)
	}
}

// deferring marks policies that may take ownership of an invocation: a
// false Admit from them can mean "runs later", not "dropped".
type deferring interface {
	Defers() bool
}

func isDeferring(p Policy) bool {
	d, ok := p.(deferring)
	return ok && d.Defers()
}

type nonePolicy struct{}

func (nonePolicy) Admit(Invocation) bool { return true }
func (nonePolicy) Record(Invocation)     {}

type cooldownPolicy struct {
	cooldown time.Duration

	mu   sync.Mutex
	last map[Key]time.Time
}

func newCooldownPolicy(params map[string]any) *cooldownPolicy {
	return &cooldownPolicy{
		cooldown: secondsParam(params, "cooldown_seconds", 10),
		last:     make(map[Key]time.Time),
	}
}

func (p *cooldownPolicy) Admit(inv Invocation) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.last[inv.Key]
	return !ok || timeNow().Sub(last) >= p.cooldown
}

func (p *cooldownPolicy) Record(inv Invocation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[inv.Key] = timeNow()
}

type rateLimitPolicy struct {
	max    int
	window time.Duration

	mu    sync.Mutex
	times map[Key][]time.Time
}

func newRateLimitPolicy(params map[string]any) *rateLimitPolicy {
	return &rateLimitPolicy{
		max:    int(paramFloat(params, "max_executions", 5)),
		window: secondsParam(params, "window_seconds", 60),
		times:  make(map[Key][]time.Time),
	}
}

// Admit applies a strict sliding window: the count of recorded
// executions inside (now - window, now] must stay below max.
func (p *rateLimitPolicy) Admit(inv Invocation) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := timeNow().Add(-p.window)
	kept := p.times[inv.Key][:0]
	for _, t := range p.times[inv.Key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	p.times[inv.Key] = kept
	return len(kept) < p.max
}

func (p *rateLimitPolicy) Record(inv Invocation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.times[inv.Key] = append(p.times[inv.Key], timeNow())
}

type conditionalPolicy struct {
	filter Filter
}

func newConditionalPolicy(params map[string]any) (*conditionalPolicy, error) {
	raw, ok := params["condition"]
	if !ok {
		return &conditionalPolicy{}, nil
	}
	cfg, err := ParseComponentConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("conditional policy: %w", err)
	}
	f, err := NewFilter(cfg)
	if err != nil {
		return nil, fmt.Errorf("conditional policy: %w", err)
	}
	return &conditionalPolicy{filter: f}, nil
}

// Admit evaluates the embedded filter; evaluation errors admit
// (fail-open), unlike filter nodes which prune.
func (p *conditionalPolicy) Admit(inv Invocation) bool {
	if p.filter == nil {
		return true
	}
	ok, err := p.filter.Evaluate(inv.Payload)
	if err != nil {
		slog.Warn("Conditional policy evaluation failed, admitting",
			"pipeline_id", inv.Key.PipelineID, "node_id", inv.Key.NodeID, "error", err)
		return true
	}
	return ok
}

func (p *conditionalPolicy) Record(Invocation) {}

type compositePolicy struct {
	operator string
	children []Policy
}

func newCompositePolicy(params map[string]any, sched *Scheduler) (*compositePolicy, error) {
	p := &compositePolicy{operator: paramString(params, "operator", "and")}
	if p.operator != "and" && p.operator != "or" {
		return nil, fmt.Errorf("unknown composite policy operator: %s", p.operator)
	}
	raw, _ := params["policies"].([]any)
	for _, childRaw := range raw {
		cfg, err := ParseComponentConfig(childRaw)
		if err != nil {
			return nil, err
		}
		child, err := NewPolicy(cfg, sched)
		if err != nil {
			return nil, err
		}
		p.children = append(p.children, child)
	}
	return p, nil
}

func (p *compositePolicy) Admit(inv Invocation) bool {
	if len(p.children) == 0 {
		return true
	}
	if p.operator == "and" {
		for _, c := range p.children {
			if !c.Admit(inv) {
				return false
			}
		}
		return true
	}
	for _, c := range p.children {
		if c.Admit(inv) {
			return true
		}
	}
	return false
}

// Defers reports whether any child may defer the invocation.
func (p *compositePolicy) Defers() bool {
	for _, c := range p.children {
		if isDeferring(c) {
			return true
		}
	}
	return false
}

// Record fans out to all children unconditionally.
func (p *compositePolicy) Record(inv Invocation) {
	for _, c := range p.children {
		c.Record(inv)
	}
}

type debouncePolicy struct {
	delay time.Duration
	sched *Scheduler
}

func newDebouncePolicy(params map[string]any, sched *Scheduler) *debouncePolicy {
	return &debouncePolicy{
		delay: secondsParam(params, "delay_seconds", 1),
		sched: sched,
	}
}

// Admit never admits synchronously. Each call re-arms the delayed
// invocation with the latest payload; only the final event of a quiet
// burst runs.
func (p *debouncePolicy) Admit(inv Invocation) bool {
	payload := inv.Payload
	run := inv.Run
	p.sched.Schedule(inv.Key, p.delay, func() {
		run(payload)
	})
	return false
}

func (p *debouncePolicy) Record(Invocation) {}

func (*debouncePolicy) Defers() bool { return true }

// secondsParam reads a float seconds parameter into a duration.
func secondsParam(params map[string]any, key string, def float64) time.Duration {
	return time.Duration(paramFloat(params, key, def) * float64(time.Second))
}
