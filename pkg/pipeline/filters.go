package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/signaldock/signaldock/pkg/template"
)

// Filter evaluates a payload to a boolean. Errors are treated as false
// by the executor (a failing filter prunes its branch).
type Filter interface {
	Evaluate(payload map[string]any) (bool, error)
}

// ComponentConfig is the {type, params} blob node definitions carry for
// filters, transformers and policies.
type ComponentConfig struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

// ParseComponentConfig reads a {type, params} object out of node data.
func ParseComponentConfig(raw any) (ComponentConfig, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return ComponentConfig{}, fmt.Errorf("component config is not an object: %T", raw)
	}
	cfg := ComponentConfig{Params: map[string]any{}}
	if t, ok := m["type"].(string); ok {
		cfg.Type = t
	}
	if p, ok := m["params"].(map[string]any); ok {
		cfg.Params = p
	}
	return cfg, nil
}

// NewFilter materializes a filter variant. The registry is closed:
// unknown types fail construction.
func NewFilter(cfg ComponentConfig) (Filter, error) {
	switch cfg.Type {
	case "boolean", "":
		return newBooleanFilter(cfg.Params)
	case "time_window":
		return newTimeWindowFilter(cfg.Params)
	case "composite":
		return newCompositeFilter(cfg.Params)
	default:
		return nil, fmt.Errorf("unknown filter type: %s", cfg.Type)
	}
}

type booleanFilter struct {
	field    string
	operator string
	value    any
	re       *regexp.Regexp
}

var booleanOperators = map[string]struct{}{
	"==": {}, "equals": {}, "!=": {}, "not_equals": {},
	">": {}, "greater_than": {}, "<": {}, "less_than": {},
	">=": {}, "greater_equal": {}, "<=": {}, "less_equal": {},
	"contains": {}, "not_contains": {}, "starts_with": {}, "ends_with": {},
	"matches": {}, "is_true": {}, "is_false": {}, "is_null": {}, "is_not_null": {},
}

func newBooleanFilter(params map[string]any) (*booleanFilter, error) {
	f := &booleanFilter{
		field:    paramString(params, "field", ""),
		operator: paramString(params, "operator", "equals"),
		value:    params["value"],
	}
	if _, ok := booleanOperators[f.operator]; !ok {
		return nil, fmt.Errorf("unknown filter operator: %s", f.operator)
	}
	if f.operator == "matches" {
		pattern, _ := f.value.(string)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid matches pattern: %w", err)
		}
		f.re = re
	}
	return f, nil
}

func (f *booleanFilter) Evaluate(payload map[string]any) (bool, error) {
	fieldValue, found := resolveField(payload, f.field)

	switch f.operator {
	case "is_null":
		return !found || fieldValue == nil, nil
	case "is_not_null":
		return found && fieldValue != nil, nil
	case "is_true":
		return truthy(fieldValue), nil
	case "is_false":
		return !truthy(fieldValue), nil
	}

	if f.value == nil {
		return false, fmt.Errorf("filter comparand is nil for operator %s", f.operator)
	}
	if !found || fieldValue == nil {
		return false, fmt.Errorf("field %q not present in payload", f.field)
	}

	switch f.operator {
	case "==", "equals":
		return looseEqual(fieldValue, f.value), nil
	case "!=", "not_equals":
		return !looseEqual(fieldValue, f.value), nil
	case ">", "greater_than", "<", "less_than", ">=", "greater_equal", "<=", "less_equal":
		a, err := toFloat(fieldValue)
		if err != nil {
			return false, err
		}
		b, err := toFloat(f.value)
		if err != nil {
			return false, err
		}
		switch f.operator {
		case ">", "greater_than":
			return a > b, nil
		case "<", "less_than":
			return a < b, nil
		case ">=", "greater_equal":
			return a >= b, nil
		default:
			return a <= b, nil
		}
	case "contains":
		return strings.Contains(template.Stringify(fieldValue), template.Stringify(f.value)), nil
	case "not_contains":
		return !strings.Contains(template.Stringify(fieldValue), template.Stringify(f.value)), nil
	case "starts_with":
		return strings.HasPrefix(template.Stringify(fieldValue), template.Stringify(f.value)), nil
	case "ends_with":
		return strings.HasSuffix(template.Stringify(fieldValue), template.Stringify(f.value)), nil
	case "matches":
		loc := f.re.FindStringIndex(template.Stringify(fieldValue))
		return loc != nil && loc[0] == 0, nil
	}
	return false, fmt.Errorf("unknown filter operator: %s", f.operator)
}

// looseEqual compares numerics numerically and everything else by
// stringified form, so 80 and 80.0 from JSON compare equal.
func looseEqual(a, b any) bool {
	fa, errA := toFloat(a)
	fb, errB := toFloat(b)
	if errA == nil && errB == nil {
		return fa == fb
	}
	return template.Stringify(a) == template.Stringify(b)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if f, err := toFloat(v); err == nil {
			return f != 0
		}
		return true
	}
}

type timeWindowFilter struct {
	start *clockTime
	end   *clockTime
	days  map[int]struct{}
}

type clockTime struct {
	hour, minute int
}

func parseClock(s string) (*clockTime, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	var ct clockTime
	if _, err := fmt.Sscanf(s, "%d:%d", &ct.hour, &ct.minute); err != nil {
		return nil, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if ct.hour < 0 || ct.hour > 23 || ct.minute < 0 || ct.minute > 59 {
		return nil, fmt.Errorf("time %q out of range", s)
	}
	return &ct, nil
}

func (c clockTime) minutes() int { return c.hour*60 + c.minute }

func newTimeWindowFilter(params map[string]any) (*timeWindowFilter, error) {
	f := &timeWindowFilter{}
	if s := paramString(params, "start_time", ""); s != "" {
		ct, err := parseClock(s)
		if err != nil {
			return nil, err
		}
		f.start = ct
	}
	if s := paramString(params, "end_time", ""); s != "" {
		ct, err := parseClock(s)
		if err != nil {
			return nil, err
		}
		f.end = ct
	}
	if raw, ok := params["days_of_week"].([]any); ok {
		f.days = make(map[int]struct{}, len(raw))
		for _, d := range raw {
			n, err := toFloat(d)
			if err != nil {
				return nil, fmt.Errorf("invalid day of week %v", d)
			}
			f.days[int(n)] = struct{}{}
		}
	}
	return f, nil
}

func (f *timeWindowFilter) Evaluate(map[string]any) (bool, error) {
	now := timeNow()

	if f.days != nil {
		// Days are numbered with Monday = 0, matching pipeline definitions.
		day := (int(now.Weekday()) + 6) % 7
		if _, ok := f.days[day]; !ok {
			return false, nil
		}
	}

	if f.start != nil && f.end != nil {
		cur := now.Hour()*60 + now.Minute()
		start, end := f.start.minutes(), f.end.minutes()
		if start <= end {
			if cur < start || cur > end {
				return false, nil
			}
		} else {
			// Overnight window, e.g. 22:00 to 06:00.
			if cur < start && cur > end {
				return false, nil
			}
		}
	}
	return true, nil
}

type compositeFilter struct {
	operator string
	children []Filter
}

func newCompositeFilter(params map[string]any) (*compositeFilter, error) {
	f := &compositeFilter{operator: paramString(params, "operator", "and")}
	switch f.operator {
	case "and", "or", "not":
	default:
		return nil, fmt.Errorf("unknown composite filter operator: %s", f.operator)
	}
	raw, _ := params["filters"].([]any)
	for _, childRaw := range raw {
		cfg, err := ParseComponentConfig(childRaw)
		if err != nil {
			return nil, err
		}
		child, err := NewFilter(cfg)
		if err != nil {
			return nil, err
		}
		f.children = append(f.children, child)
	}
	return f, nil
}

func (f *compositeFilter) Evaluate(payload map[string]any) (bool, error) {
	if len(f.children) == 0 {
		return true, nil
	}
	switch f.operator {
	case "and":
		for _, c := range f.children {
			ok, err := c.Evaluate(payload)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case "or":
		for _, c := range f.children {
			ok, err := c.Evaluate(payload)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default: // not, first child only
		ok, err := f.children[0].Evaluate(payload)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}
