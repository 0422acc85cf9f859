package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

var (
	payloadNumbers = []string{"risk_score", "total_amount"}
	payloadLists   = []string{"line_items", "detected_issues", "clean_items", "missing_information"}
	itemNumbers    = []string{"quantity", "unit_price", "total_price"}
	issueNumbers   = []string{"confidence", "estimated_savings"}
)

// SanitizePayload repairs common model mistakes so the document validates:
// numeric strings become numbers, nulls and unreadable numbers are dropped,
// scalar lists are wrapped, negative amounts lose their sign and amounts
// above MaxAmount are dropped. It reports
// the paths it dropped or rewrote.
func SanitizePayload(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var touched []string
	for k, v := range m {
		if v == nil {
			delete(m, k)
			touched = append(touched, k)
		}
	}
	if v, ok := m["summary"]; ok {
		if _, isStr := v.(string); !isStr {
			m["summary"] = fmt.Sprint(v)
			touched = append(touched, "summary")
		}
	}
	touched = append(touched, coerceNumbers(m, "", payloadNumbers)...)

	for _, k := range payloadLists {
		v, ok := m[k]
		if !ok {
			continue
		}
		if _, isList := v.([]any); !isList {
			m[k] = []any{v}
			touched = append(touched, k)
		}
	}
	for _, k := range []string{"clean_items", "missing_information"} {
		if list, ok := m[k].([]any); ok {
			m[k] = stringify(list)
		}
	}

	m["line_items"], touched = sanitizeObjects(m["line_items"], "line_items", itemNumbers, touched)
	m["detected_issues"], touched = sanitizeObjects(m["detected_issues"], "detected_issues", issueNumbers, touched)
	if m["line_items"] == nil {
		delete(m, "line_items")
	}
	if m["detected_issues"] == nil {
		delete(m, "detected_issues")
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, touched, nil
}

func sanitizeObjects(v any, path string, numeric []string, touched []string) (any, []string) {
	list, ok := v.([]any)
	if !ok {
		return nil, touched
	}
	out := make([]any, 0, len(list))
	for i, e := range list {
		obj, ok := e.(map[string]any)
		if !ok {
			touched = append(touched, fmt.Sprintf("%s[%d]", path, i))
			continue
		}
		prefix := fmt.Sprintf("%s[%d].", path, i)
		for k, fv := range obj {
			if fv == nil {
				delete(obj, k)
				touched = append(touched, prefix+k)
			}
		}
		touched = append(touched, coerceNumbers(obj, prefix, numeric)...)
		for k, fv := range obj {
			switch x := fv.(type) {
			case float64:
				if !contains(numeric, k) {
					obj[k] = fmt.Sprint(x)
				}
			case []any:
				if k == "affected_items" {
					obj[k] = stringify(x)
				}
			}
		}
		if s, ok := obj["affected_items"].(string); ok {
			obj["affected_items"] = []any{s}
		}
		out = append(out, obj)
	}
	return out, touched
}

func coerceNumbers(m map[string]any, prefix string, keys []string) []string {
	var touched []string
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		var f float64
		switch t := v.(type) {
		case float64:
			f = t
		case string:
			parsed, ok := ParseAmount(t)
			if !ok {
				delete(m, k)
				touched = append(touched, prefix+k)
				continue
			}
			f = parsed
			touched = append(touched, prefix+k)
		default:
			delete(m, k)
			touched = append(touched, prefix+k)
			continue
		}
		switch k {
		case "confidence":
			if f < 0 || f > 1 {
				f = math.Max(0, math.Min(1, f))
				touched = append(touched, prefix+k)
			}
		case "risk_score":
			f = math.Max(0, math.Min(100, f))
		case "quantity":
			f = math.Abs(f)
		default:
			f = math.Abs(f)
			if f > MaxAmount {
				delete(m, k)
				touched = append(touched, prefix+k)
				continue
			}
		}
		m[k] = f
	}
	return touched
}

func stringify(list []any) []any {
	out := make([]any, 0, len(list))
	for _, e := range list {
		switch x := e.(type) {
		case nil:
		case string:
			if s := strings.TrimSpace(x); s != "" {
				out = append(out, s)
			}
		default:
			out = append(out, fmt.Sprint(x))
		}
	}
	return out
}

func contains(keys []string, k string) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}
