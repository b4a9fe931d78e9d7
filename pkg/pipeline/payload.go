// Package pipeline implements the event-routing engine: graphs of
// filter, transformer and action nodes traversed breadth-first for each
// incoming signal event, with per-node execution policies.
package pipeline

import (
	"fmt"
	"strconv"
	"time"

	"github.com/signaldock/signaldock/pkg/template"
)

// timeNow is swapped out by policy and filter tests.
var timeNow = time.Now

// resolveField resolves a dotted path against the payload root first,
// then falls back into the nested "data" object, matching how filter
// fields are written in pipeline definitions.
func resolveField(payload map[string]any, path string) (any, bool) {
	if v, ok := template.Lookup(payload, path); ok {
		return v, true
	}
	if data, ok := payload["data"].(map[string]any); ok {
		return template.Lookup(data, path)
	}
	return nil, false
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}

// paramString reads a string parameter with a default.
func paramString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return def
}

// paramFloat reads a numeric parameter with a default.
func paramFloat(params map[string]any, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		if f, err := toFloat(v); err == nil {
			return f
		}
	}
	return def
}

// paramBool reads a boolean parameter with a default.
func paramBool(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}
