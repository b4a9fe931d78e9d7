package models

import "time"

// NodeType discriminates pipeline graph nodes.
type NodeType string

const (
	NodeSource      NodeType = "source"
	NodeFilter      NodeType = "filter"
	NodeTransformer NodeType = "transformer"
	NodeAction      NodeType = "action"
)

// NodeRecord is a pipeline node as stored and exchanged with the frontend.
// Data holds the type-specific configuration: source nodes carry
// "source_type", filter nodes a "filter" object, transformer nodes a
// "transformer" object, action nodes "action_type", "params" and an
// optional "policy" object.
type NodeRecord struct {
	ID   string         `json:"id"`
	Type NodeType       `json:"type"`
	Data map[string]any `json:"data"`
}

// EdgeRecord is a directed connection between two nodes.
type EdgeRecord struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// PipelineRecord is the persisted form of a pipeline graph.
type PipelineRecord struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Nodes       []NodeRecord `json:"nodes"`
	Edges       []EdgeRecord `json:"edges"`
	IsActive    bool         `json:"is_active"`
	IsTemplate  bool         `json:"is_template"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// EventLogRecord is a persisted signal event.
type EventLogRecord struct {
	ID         int64          `json:"id"`
	EventID    string         `json:"event_id"`
	SourceType string         `json:"source_type"`
	SourceName string         `json:"source_name"`
	EventType  string         `json:"event_type"`
	Data       map[string]any `json:"data"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ActionLogRecord is a persisted action result with pipeline attribution.
type ActionLogRecord struct {
	ID              int64          `json:"id"`
	ResultID        string         `json:"result_id"`
	PipelineID      int64          `json:"pipeline_id"`
	NodeID          string         `json:"node_id"`
	Status          string         `json:"status"`
	Message         string         `json:"message"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMs float64        `json:"execution_time_ms"`
	Data            map[string]any `json:"data,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}
