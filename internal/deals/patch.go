package deals

import (
	"fmt"
	"strconv"
	"strings"

	"dario.cat/mergo"
)

// ApplyPatch applies a field patch to d. title, stage and value update the typed
// fields; every other key is merged into Properties, overriding existing keys.
// It returns the updated deal and the keys that were applied.
func ApplyPatch(d Deal, patch map[string]any) (Deal, []string, error) {
	applied := make([]string, 0, len(patch))
	rest := map[string]any{}

	for k, v := range patch {
		switch k {
		case "title":
			s, ok := v.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return d, nil, fmt.Errorf("%w: title must be a non-empty string", ErrInvalidArgument)
			}
			d.Title = strings.TrimSpace(s)
		case "stage":
			s, _ := v.(string)
			st := Stage(strings.ToLower(strings.TrimSpace(s)))
			if !st.Valid() {
				return d, nil, fmt.Errorf("%w: unknown stage %v", ErrInvalidArgument, v)
			}
			d.Stage = st
		case "value":
			f, err := toFloat(v)
			if err != nil {
				return d, nil, fmt.Errorf("%w: value: %v", ErrInvalidArgument, err)
			}
			d.Value = f
		case "id", "tenant_id", "lead_id", "created_at", "updated_at":
			return d, nil, fmt.Errorf("%w: %s is read-only", ErrInvalidArgument, k)
		default:
			rest[k] = v
		}
		applied = append(applied, k)
	}

	if len(rest) > 0 {
		props := make(map[string]any, len(d.Properties)+len(rest))
		for k, v := range d.Properties {
			props[k] = v
		}
		if err := mergo.Merge(&props, rest, mergo.WithOverride); err != nil {
			return d, nil, fmt.Errorf("merge properties: %w", err)
		}
		d.Properties = props
	}
	return d, applied, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case interface{ Float64() (float64, error) }:
		return n.Float64()
	}
	return 0, fmt.Errorf("not a number: %T", v)
}
