package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/signaldock/signaldock/pkg/actions"
	"github.com/signaldock/signaldock/pkg/models"
)

// ResultHook observes every action result the executor produces, in
// execution order. Used to broadcast results and persist action logs.
type ResultHook func(pipelineID int64, nodeID string, ev models.SignalEvent, result models.ActionResult)

// Executor holds the loaded pipelines and routes each incoming event
// through every graph subscribed to its source type.
type Executor struct {
	registry *actions.Registry
	perms    actions.PermissionChecker
	sched    *Scheduler
	onResult ResultHook

	mu        sync.RWMutex
	pipelines map[int64]*graph
	// subs indexes loaded pipeline ids by the source types their source
	// nodes subscribe to. Updated atomically with pipelines.
	subs map[string]map[int64]struct{}
}

// New builds an empty executor. onResult may be nil.
func New(registry *actions.Registry, perms actions.PermissionChecker, sched *Scheduler, onResult ResultHook) *Executor {
	return &Executor{
		registry:  registry,
		perms:     perms,
		sched:     sched,
		onResult:  onResult,
		pipelines: make(map[int64]*graph),
		subs:      make(map[string]map[int64]struct{}),
	}
}

// Load compiles and activates a pipeline, replacing any loaded version
// of the same id. Reloading an id with an unchanged graph keeps the
// running graph and its policy state. Compilation errors reject the
// whole pipeline and leave the previously loaded version (if any) in
// place.
func (e *Executor) Load(rec models.PipelineRecord) error {
	g, err := compile(rec, e.registry, e.sched)
	if err != nil {
		return fmt.Errorf("load pipeline %d: %w", rec.ID, err)
	}

	e.mu.Lock()
	if cur, ok := e.pipelines[rec.ID]; ok {
		if cur.fingerprint != "" && cur.fingerprint == g.fingerprint {
			cur.name = g.name
			e.mu.Unlock()
			slog.Info("Pipeline unchanged, keeping loaded graph", "pipeline_id", rec.ID)
			return nil
		}
		e.unindex(rec.ID)
		e.sched.CancelPipeline(rec.ID)
	}
	e.pipelines[rec.ID] = g
	for sourceType := range g.sources {
		if e.subs[sourceType] == nil {
			e.subs[sourceType] = make(map[int64]struct{})
		}
		e.subs[sourceType][rec.ID] = struct{}{}
	}
	e.mu.Unlock()

	slog.Info("Pipeline loaded", "pipeline_id", rec.ID, "name", rec.Name)
	return nil
}

// Unload deactivates a pipeline and cancels its pending debounce
// timers. Unloading an unknown id is a no-op.
func (e *Executor) Unload(pipelineID int64) {
	e.mu.Lock()
	_, ok := e.pipelines[pipelineID]
	delete(e.pipelines, pipelineID)
	e.unindex(pipelineID)
	e.mu.Unlock()

	if ok {
		e.sched.CancelPipeline(pipelineID)
		slog.Info("Pipeline unloaded", "pipeline_id", pipelineID)
	}
}

// unindex removes a pipeline from the subscription index. Caller holds
// the write lock.
func (e *Executor) unindex(pipelineID int64) {
	for sourceType, ids := range e.subs {
		delete(ids, pipelineID)
		if len(ids) == 0 {
			delete(e.subs, sourceType)
		}
	}
}

// Loaded reports whether a pipeline id is currently active.
func (e *Executor) Loaded(pipelineID int64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.pipelines[pipelineID]
	return ok
}

// LoadedIDs returns the active pipeline ids in ascending order.
func (e *Executor) LoadedIDs() []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]int64, 0, len(e.pipelines))
	for id := range e.pipelines {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type traversalEntry struct {
	g     *graph
	start *node
}

// HandleEvent routes one event. The subscription index narrows the scan
// to pipelines with a matching source node; each of those nodes gets
// its own independent traversal over a fresh copy of the event payload.
func (e *Executor) HandleEvent(ctx context.Context, ev models.SignalEvent) {
	e.mu.RLock()
	var entries []traversalEntry
	for id := range e.subs[ev.SourceType] {
		g := e.pipelines[id]
		for _, start := range g.sources[ev.SourceType] {
			entries = append(entries, traversalEntry{g: g, start: start})
		}
	}
	e.mu.RUnlock()

	for _, entry := range entries {
		e.traverse(ctx, entry.g, entry.start, ev)
	}
}

type queueItem struct {
	n       *node
	payload map[string]any
}

// traverse walks the graph breadth-first from one source node. Each
// node runs at most once per traversal, and every child branch gets its
// own deep copy of the payload so sibling transformers cannot see each
// other's writes.
func (e *Executor) traverse(ctx context.Context, g *graph, start *node, ev models.SignalEvent) {
	visited := map[string]bool{}
	queue := []queueItem{{n: start, payload: ev.Payload()}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if visited[item.n.id] {
			continue
		}
		visited[item.n.id] = true

		payload, pass := e.runNode(ctx, g, item.n, ev, item.payload)
		if !pass {
			continue
		}
		for _, child := range item.n.children {
			queue = append(queue, queueItem{n: child, payload: models.CopyMap(payload)})
		}
	}
}

// runNode executes one node against the payload. It returns the payload
// to hand to children and whether the branch continues.
func (e *Executor) runNode(ctx context.Context, g *graph, n *node, ev models.SignalEvent, payload map[string]any) (map[string]any, bool) {
	switch n.typ {
	case models.NodeSource:
		return payload, true

	case models.NodeFilter:
		ok, err := n.filter.Evaluate(payload)
		if err != nil {
			slog.Warn("Filter evaluation failed, pruning branch",
				"pipeline_id", g.id, "node_id", n.id, "error", err)
			return payload, false
		}
		return payload, ok

	case models.NodeTransformer:
		out, err := n.transformer.Transform(payload)
		if err != nil {
			slog.Warn("Transformer failed, passing payload through",
				"pipeline_id", g.id, "node_id", n.id, "error", err)
			return payload, true
		}
		return out, true

	case models.NodeAction:
		e.runAction(ctx, g, n, ev, payload)
		return payload, true
	}
	return payload, false
}

// runAction gates the action through its policy and executes it. The
// Run closure is what debounce re-arms; Record happens on the same path
// so rate limit and cooldown count delayed executions too.
func (e *Executor) runAction(ctx context.Context, g *graph, n *node, ev models.SignalEvent, payload map[string]any) {
	key := Key{PipelineID: g.id, NodeID: n.id}

	run := func(p map[string]any) {
		actx := actions.Context{
			Event:      p,
			PipelineID: g.id,
			NodeID:     n.id,
			Params:     n.params,
		}
		result := actions.SafeExecute(ctx, n.action, e.perms, actx)
		n.policy.Record(Invocation{Key: key, Payload: p})

		if result.Status != models.ActionSuccess {
			slog.Warn("Action finished without success",
				"pipeline_id", g.id, "node_id", n.id,
				"action_type", n.actionType,
				"status", result.Status, "message", result.Message)
		}
		if e.onResult != nil {
			e.onResult(g.id, n.id, ev, result)
		}
	}

	hadPending := e.sched.Has(key)
	inv := Invocation{Key: key, Payload: payload, Run: run}
	if n.policy.Admit(inv) {
		run(payload)
		return
	}

	if isDeferring(n.policy) && e.sched.Has(key) {
		// The policy took ownership of the invocation; report pending
		// once per quiet period, not on every re-arm.
		if !hadPending && e.onResult != nil {
			e.onResult(g.id, n.id, ev, models.PendingResult("deferred by debounce policy"))
		}
		return
	}
	if e.onResult != nil {
		e.onResult(g.id, n.id, ev, models.SkippedResult("skipped by execution policy"))
	}
}
