package strategy

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Params is a flat key/value parameter mapping as it arrives from config
// files, JSON bodies or the command line. Unknown keys are ignored by the
// strategies that read it.
type Params map[string]any

// ParseParams builds Params from "key=value" pairs.
func ParseParams(pairs []string) (Params, error) {
	p := make(Params, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q: expected key=value", pair)
		}
		p[k] = strings.TrimSpace(v)
	}
	return p, nil
}

// Int returns the integer value of key, or def when the key is absent.
func (p Params) Int(kind Kind, key string, def int) (int, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return def, nil
	}
	f, err := toFloat(raw)
	if err != nil {
		return 0, &ParamError{Strategy: kind, Param: key, Value: raw, Reason: "is not a number"}
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, &ParamError{Strategy: kind, Param: key, Value: raw, Reason: "must be an integer"}
	}
	return int(f), nil
}

// Float returns the float value of key, or def when the key is absent.
func (p Params) Float(kind Kind, key string, def float64) (float64, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return def, nil
	}
	f, err := toFloat(raw)
	if err != nil {
		return 0, &ParamError{Strategy: kind, Param: key, Value: raw, Reason: "is not a number"}
	}
	return f, nil
}

// String renders params as sorted "k=v" pairs.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, ", ")
}

func toFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint64:
		f = float64(x)
	case float32:
		f = float64(x)
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}
