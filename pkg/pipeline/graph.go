package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/signaldock/signaldock/pkg/actions"
	"github.com/signaldock/signaldock/pkg/models"
)

// node is a compiled pipeline node. Exactly one of the component fields
// is set, matching the node type.
type node struct {
	id  string
	typ models.NodeType

	sourceType  string
	filter      Filter
	transformer Transformer
	action      actions.Action
	actionType  string
	params      map[string]any
	policy      Policy

	children []*node
}

// graph is one compiled pipeline: its nodes wired by edges, with source
// nodes grouped by the source type they subscribe to. fingerprint
// identifies the node/edge structure so reloading an unchanged pipeline
// can keep the running graph and its policy state.
type graph struct {
	id          int64
	name        string
	fingerprint string
	sources     map[string][]*node
}

// fingerprintRecord hashes the structural parts of a record. Map keys
// marshal in sorted order, so equal graphs produce equal fingerprints.
func fingerprintRecord(rec models.PipelineRecord) string {
	raw, err := json.Marshal(struct {
		Nodes []models.NodeRecord `json:"nodes"`
		Edges []models.EdgeRecord `json:"edges"`
	}{rec.Nodes, rec.Edges})
	if err != nil {
		return ""
	}
	return string(raw)
}

// compile validates and materializes a pipeline record. Any invalid
// node or edge rejects the whole pipeline; nothing is half-loaded.
func compile(rec models.PipelineRecord, reg *actions.Registry, sched *Scheduler) (*graph, error) {
	nodes := make(map[string]*node, len(rec.Nodes))
	g := &graph{
		id:          rec.ID,
		name:        rec.Name,
		fingerprint: fingerprintRecord(rec),
		sources:     make(map[string][]*node),
	}

	for _, nr := range rec.Nodes {
		if nr.ID == "" {
			return nil, fmt.Errorf("pipeline %d: node with empty id", rec.ID)
		}
		if _, dup := nodes[nr.ID]; dup {
			return nil, fmt.Errorf("pipeline %d: duplicate node id %q", rec.ID, nr.ID)
		}
		n, err := compileNode(rec.ID, nr, reg, sched)
		if err != nil {
			return nil, err
		}
		nodes[nr.ID] = n
		if n.typ == models.NodeSource {
			g.sources[n.sourceType] = append(g.sources[n.sourceType], n)
		}
	}

	for _, er := range rec.Edges {
		src, ok := nodes[er.Source]
		if !ok {
			return nil, fmt.Errorf("pipeline %d: edge %q references unknown source node %q", rec.ID, er.ID, er.Source)
		}
		dst, ok := nodes[er.Target]
		if !ok {
			return nil, fmt.Errorf("pipeline %d: edge %q references unknown target node %q", rec.ID, er.ID, er.Target)
		}
		src.children = append(src.children, dst)
	}

	return g, nil
}

func compileNode(pipelineID int64, nr models.NodeRecord, reg *actions.Registry, sched *Scheduler) (*node, error) {
	n := &node{id: nr.ID, typ: nr.Type}

	switch nr.Type {
	case models.NodeSource:
		n.sourceType = paramString(nr.Data, "source_type", "")
		if n.sourceType == "" {
			return nil, fmt.Errorf("pipeline %d node %q: source node without source_type", pipelineID, nr.ID)
		}
	case models.NodeFilter:
		cfg, err := ParseComponentConfig(nr.Data["filter"])
		if err != nil {
			return nil, fmt.Errorf("pipeline %d node %q: %w", pipelineID, nr.ID, err)
		}
		n.filter, err = NewFilter(cfg)
		if err != nil {
			return nil, fmt.Errorf("pipeline %d node %q: %w", pipelineID, nr.ID, err)
		}
	case models.NodeTransformer:
		cfg, err := ParseComponentConfig(nr.Data["transformer"])
		if err != nil {
			return nil, fmt.Errorf("pipeline %d node %q: %w", pipelineID, nr.ID, err)
		}
		n.transformer, err = NewTransformer(cfg)
		if err != nil {
			return nil, fmt.Errorf("pipeline %d node %q: %w", pipelineID, nr.ID, err)
		}
	case models.NodeAction:
		n.actionType = paramString(nr.Data, "action_type", "")
		action, err := reg.New(n.actionType)
		if err != nil {
			return nil, fmt.Errorf("pipeline %d node %q: %w", pipelineID, nr.ID, err)
		}
		n.action = action
		n.params, _ = nr.Data["params"].(map[string]any)
		if n.params == nil {
			n.params = map[string]any{}
		}
		policyCfg := ComponentConfig{}
		if raw, ok := nr.Data["policy"]; ok && raw != nil {
			policyCfg, err = ParseComponentConfig(raw)
			if err != nil {
				return nil, fmt.Errorf("pipeline %d node %q: %w", pipelineID, nr.ID, err)
			}
		}
		n.policy, err = NewPolicy(policyCfg, sched)
		if err != nil {
			return nil, fmt.Errorf("pipeline %d node %q: %w", pipelineID, nr.ID, err)
		}
	default:
		return nil, fmt.Errorf("pipeline %d node %q: unknown node type %q", pipelineID, nr.ID, nr.Type)
	}

	return n, nil
}
