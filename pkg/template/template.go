// Package template implements the {placeholder} substitution shared by
// actions and the format_string transformer.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// Lookup resolves a dotted path through nested maps and slices. Numeric
// segments index into slices.
func Lookup(mapping map[string]any, path string) (any, bool) {
	var current any = mapping
	for _, seg := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Stringify renders a resolved value for substitution.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Substitute replaces {placeholder} occurrences in tmpl using mapping.
// Precedence per placeholder: a literal key in the mapping wins, then a
// dotted-path resolution, then the auto-injected _timestamp/_date/_time
// values. Unresolvable placeholders substitute fallback.
func Substitute(tmpl string, mapping map[string]any, fallback string) string {
	now := time.Now()
	auto := map[string]string{
		"_timestamp": now.Format(time.RFC3339),
		"_date":      now.Format("2006-01-02"),
		"_time":      now.Format("15:04:05"),
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := mapping[key]; ok {
			return Stringify(v)
		}
		if v, ok := Lookup(mapping, key); ok {
			return Stringify(v)
		}
		if v, ok := auto[key]; ok {
			return v
		}
		return fallback
	})
}
