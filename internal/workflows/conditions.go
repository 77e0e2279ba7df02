package workflows

import (
	"fmt"
	"strconv"
)

// Flatten turns a trigger context into dotted keys: deal_id, lead.<field>, data.<path>.
func Flatten(tc TriggerContext) map[string]any {
	out := map[string]any{}
	if tc.DealID != "" {
		out["deal_id"] = tc.DealID
	}
	if l := tc.Lead; l != nil {
		put := func(k string, v any) {
			if s, ok := v.(string); ok && s == "" {
				return
			}
			out["lead."+k] = v
		}
		put("id", l.ID)
		put("email", l.Email)
		put("first_name", l.FirstName)
		put("last_name", l.LastName)
		put("company", l.Company)
		put("job_title", l.JobTitle)
		put("phone", l.Phone)
		put("region", l.Region)
		put("score", l.Score)
		put("is_outreach_ready", l.IsOutreachReady)
	}
	flattenInto(out, "data", tc.Data)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := prefix + "." + k
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

// Match reports whether every condition holds. Unknown ops never match.
func Match(conds []Condition, flat map[string]any) bool {
	for _, c := range conds {
		v, ok := flat[c.Field]
		switch c.Op {
		case "exists":
			if !ok || v == nil || v == "" {
				return false
			}
		case "eq":
			if !ok || !equal(v, c.Value) {
				return false
			}
		case "neq":
			if ok && equal(v, c.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// equal compares loosely so that 60 from JSON matches an int score of 60.
func equal(a, b any) bool {
	return canonical(a) == canonical(b)
}

func canonical(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
