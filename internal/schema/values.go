package schema

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"freightline/internal/fieldpath"
)

// Values is a step's answered value tree: field id to text leaf, nested
// object, or ordered list of objects for repeatable groups.
type Values = map[string]any

// ParseValues decodes a serialized value document. Malformed input returns
// an empty tree. Non-text leaves (numbers, booleans) written by older
// clients are normalized to their canonical text form.
func ParseValues(text string) Values {
	if strings.TrimSpace(text) == "" {
		return Values{}
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Values{}
	}
	v, _ := normalize(raw).(map[string]any)
	if v == nil {
		return Values{}
	}
	return v
}

// EncodeValues renders v back to its stored JSON form.
func EncodeValues(v Values) string {
	if v == nil {
		v = Values{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = normalize(child)
		}
		return out
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return nil
	default:
		return v
	}
}

// ApplyUpdates writes each update into v, keyed by encoded field path.
// Intermediate containers are created on demand.
func ApplyUpdates(v Values, updates map[string]string) Values {
	if v == nil {
		v = Values{}
	}
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v = fieldpath.Set(v, fieldpath.Decode(k), updates[k])
	}
	return v
}

// ApplyRemovals deletes each encoded path from v. Repeatable-group entries
// are spliced out; unknown paths are ignored.
func ApplyRemovals(v Values, paths []string) Values {
	for _, p := range paths {
		v = fieldpath.Remove(v, fieldpath.Decode(p))
	}
	return v
}

// HasRawValue reports whether any leaf of the raw tree holds non-empty text.
// It is schema-independent and drives the "touched" fallback in status
// derivation.
func HasRawValue(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if HasRawValue(child) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if HasRawValue(child) {
				return true
			}
		}
	case string:
		return strings.TrimSpace(t) != ""
	}
	return false
}
