package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/signaldock/signaldock/pkg/models"
	"github.com/signaldock/signaldock/pkg/template"
)

// Transformer produces a new payload from the current one. On error the
// executor keeps the input payload unchanged (fail-open).
type Transformer interface {
	Transform(payload map[string]any) (map[string]any, error)
}

// NewTransformer materializes a transformer variant. The registry is
// closed: unknown types fail construction.
func NewTransformer(cfg ComponentConfig) (Transformer, error) {
	switch cfg.Type {
	case "passthrough", "":
		return passthroughTransformer{}, nil
	case "extract_field":
		return newExtractFieldTransformer(cfg.Params), nil
	case "format_string":
		return newFormatStringTransformer(cfg.Params), nil
	case "math":
		return newMathTransformer(cfg.Params)
	case "json_path":
		return newJSONPathTransformer(cfg.Params), nil
	default:
		return nil, fmt.Errorf("unknown transformer type: %s", cfg.Type)
	}
}

type passthroughTransformer struct{}

func (passthroughTransformer) Transform(payload map[string]any) (map[string]any, error) {
	return payload, nil
}

type extractFieldTransformer struct {
	fields    []string
	outputKey string
	flatten   bool
}

func newExtractFieldTransformer(params map[string]any) *extractFieldTransformer {
	t := &extractFieldTransformer{
		outputKey: paramString(params, "output_key", "extracted"),
		flatten:   paramBool(params, "flatten", false),
	}
	if raw, ok := params["fields"].([]any); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				t.fields = append(t.fields, s)
			}
		}
	}
	return t
}

func (t *extractFieldTransformer) Transform(payload map[string]any) (map[string]any, error) {
	out := models.CopyMap(payload)
	extracted := make(map[string]any, len(t.fields))
	for _, path := range t.fields {
		v, _ := template.Lookup(payload, path)
		key := path
		if t.flatten {
			segs := strings.Split(path, ".")
			key = segs[len(segs)-1]
		}
		extracted[key] = v
	}
	out[t.outputKey] = extracted
	return out, nil
}

type formatStringTransformer struct {
	template  string
	outputKey string
}

func newFormatStringTransformer(params map[string]any) *formatStringTransformer {
	return &formatStringTransformer{
		template:  paramString(params, "template", ""),
		outputKey: paramString(params, "output_key", "formatted"),
	}
}

func (t *formatStringTransformer) Transform(payload map[string]any) (map[string]any, error) {
	out := models.CopyMap(payload)
	out[t.outputKey] = template.Substitute(t.template, payload, "")
	return out, nil
}

type mathTransformer struct {
	field     string
	operation string
	operand   float64
	outputKey string
}

var mathOperations = map[string]func(a, b float64) float64{
	"add":      func(a, b float64) float64 { return a + b },
	"subtract": func(a, b float64) float64 { return a - b },
	"multiply": func(a, b float64) float64 { return a * b },
	"mul":      func(a, b float64) float64 { return a * b },
	"divide": func(a, b float64) float64 {
		if b == 0 {
			return 0
		}
		return a / b
	},
	"modulo": func(a, b float64) float64 {
		if b == 0 {
			return 0
		}
		return math.Mod(a, b)
	},
	"power": math.Pow,
	"min":   math.Min,
	"max":   math.Max,
	"abs":   func(a, _ float64) float64 { return math.Abs(a) },
	"round": func(a, b float64) float64 {
		if b <= 0 {
			return math.Round(a)
		}
		shift := math.Pow(10, b)
		return math.Round(a*shift) / shift
	},
}

func newMathTransformer(params map[string]any) (*mathTransformer, error) {
	t := &mathTransformer{
		field:     paramString(params, "field", ""),
		operation: paramString(params, "operation", "add"),
		operand:   paramFloat(params, "operand", 0),
		outputKey: paramString(params, "output_key", "result"),
	}
	if _, ok := mathOperations[t.operation]; !ok {
		return nil, fmt.Errorf("unknown math operation: %s", t.operation)
	}
	return t, nil
}

func (t *mathTransformer) Transform(payload map[string]any) (map[string]any, error) {
	v, ok := template.Lookup(payload, t.field)
	if !ok || v == nil {
		return payload, fmt.Errorf("math field %q not present", t.field)
	}
	a, err := toFloat(v)
	if err != nil {
		return payload, err
	}
	out := models.CopyMap(payload)
	out[t.outputKey] = mathOperations[t.operation](a, t.operand)
	return out, nil
}

type jsonPathTransformer struct {
	path      string
	outputKey string
}

func newJSONPathTransformer(params map[string]any) *jsonPathTransformer {
	return &jsonPathTransformer{
		path:      paramString(params, "path", "$"),
		outputKey: paramString(params, "output_key", "json_result"),
	}
}

func (t *jsonPathTransformer) Transform(payload map[string]any) (map[string]any, error) {
	// Restricted JSON-path: $.a.b[0].c style access only.
	path := strings.TrimPrefix(t.path, "$")
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	path = strings.Trim(path, ".")

	out := models.CopyMap(payload)
	if path == "" {
		out[t.outputKey] = models.CopyMap(payload)
		return out, nil
	}
	v, _ := template.Lookup(payload, path)
	out[t.outputKey] = v
	return out, nil
}
