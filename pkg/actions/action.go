// Package actions implements the outbound side of pipelines: the things
// the engine does to the host when an event makes it through a graph.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/signaldock/signaldock/pkg/models"
)

// Context carries everything an action invocation needs: the traversal
// payload at the action node, attribution, and the node's parameters.
type Context struct {
	Event      map[string]any
	PipelineID int64
	NodeID     string
	Params     map[string]any
}

// Data returns the event's data object out of the traversal payload.
func (c Context) Data() map[string]any {
	if d, ok := c.Event["data"].(map[string]any); ok {
		return d
	}
	return map[string]any{}
}

// Metadata describes an action type for the catalog endpoint.
type Metadata struct {
	Type               string `json:"type"`
	DisplayName        string `json:"display_name"`
	Description        string `json:"description"`
	RequiresPermission bool   `json:"requires_permission"`
	Permission         string `json:"permission,omitempty"`
}

// Action is one executable capability.
type Action interface {
	Metadata() Metadata
	ValidateParams(params map[string]any) error
	Execute(ctx context.Context, actx Context) models.ActionResult
}

// PermissionChecker answers whether a permission tag is granted right now.
type PermissionChecker interface {
	Granted(name string) bool
}

// SafeExecute wraps action execution with the permission check, parameter
// validation, timing measurement and panic capture. Every failure mode
// comes back as an ActionResult; SafeExecute never propagates.
func SafeExecute(ctx context.Context, a Action, perms PermissionChecker, actx Context) (result models.ActionResult) {
	start := time.Now()
	meta := a.Metadata()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Action panicked",
				"action_type", meta.Type,
				"pipeline_id", actx.PipelineID,
				"node_id", actx.NodeID,
				"panic", r)
			result = models.FailureResult("action panicked", fmt.Errorf("%v", r))
		}
		result.ExecutionTimeMs = float64(time.Since(start).Microseconds()) / 1000
	}()

	if meta.RequiresPermission && (perms == nil || !perms.Granted(meta.Permission)) {
		return models.PermissionDeniedResult(meta.Permission)
	}
	if err := a.ValidateParams(actx.Params); err != nil {
		return models.FailureResult("invalid parameters", err)
	}
	return a.Execute(ctx, actx)
}

// param helpers shared by the concrete actions.

func paramString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return def
}

func paramBool(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func paramFloat(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
