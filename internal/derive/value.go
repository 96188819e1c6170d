// internal/derive/value.go
package derive

import (
	"strconv"
	"strings"
)

/*
 * Value helpers shared by derivation and rule matching.
 *
 * Payload values arrive in the shapes produced by encoding/json and yaml.v3
 * decoding into any: map[string]any, []any, string, bool, float64, int.
 * Helpers here normalize numerics to float64 at comparison time instead of
 * mutating the payload.
 *
 * Comparison contract: incomparable types compare as not-equal / unordered
 * (false), never as an error. "Unknown" handling lives at a higher layer;
 * these helpers only ever see resolved values.
 */

// LookupPath resolves a dot-separated path against a payload map. A leading
// "dashboard." segment is stripped and the remainder resolved against the
// flat root, the legacy flattening convention. Returns nil for any miss.
func LookupPath(root map[string]any, path string) any {
	path = strings.TrimPrefix(path, "dashboard.")
	if path == "" {
		return nil
	}
	var current any = map[string]any(root)
	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return current
}

// Truthy reports the boolean interpretation of a resolved value: nil is
// false, numbers are non-zero, strings and collections are non-empty.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		if n, ok := asFloat64(v); ok {
			return n != 0
		}
		return true
	}
}

// Stringify renders a resolved value as a map-table key. Booleans become
// lower-case "true"/"false"; integral floats drop the fraction so JSON and
// YAML numerics produce the same key.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// nonEmpty reports whether a resolved value is non-null and non-empty.
func nonEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// asFloat64 extracts a numeric value from any JSON/YAML numeric shape.
func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// asInt64 extracts an integer value from any JSON/YAML numeric shape.
// Non-integral floats are rejected.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// looseEqual compares two resolved values: numerics compare across int and
// float shapes, everything else requires matching Go types.
func looseEqual(a, b any) bool {
	an, aok := asFloat64(a)
	bn, bok := asFloat64(b)
	if aok && bok {
		return an == bn
	}
	if aok != bok {
		return false
	}
	return a == b
}

// looseEqualChecked reports equality plus whether the operand types were
// comparable at all. Incomparable pairs fail both eq and ne.
func looseEqualChecked(a, b any) (equal, comparable bool) {
	an, aok := asFloat64(a)
	bn, bok := asFloat64(b)
	if aok && bok {
		return an == bn, true
	}
	if aok != bok {
		return false, false
	}
	switch a.(type) {
	case nil:
		return b == nil, b == nil
	case string:
		bs, ok := b.(string)
		as := a.(string)
		return ok && as == bs, ok
	case bool:
		bb, ok := b.(bool)
		ab := a.(bool)
		return ok && ab == bb, ok
	default:
		return false, false
	}
}

// compareValues applies one of the closed comparison ops. Incomparable
// operand types resolve to false.
func compareValues(op string, left, right any) bool {
	switch op {
	case "eq", "ne":
		equal, comparable := looseEqualChecked(left, right)
		if !comparable {
			return false
		}
		if op == "eq" {
			return equal
		}
		return !equal
	}

	// Ordered comparison: numerics first, then string-to-string.
	if ln, ok := asFloat64(left); ok {
		rn, ok := asFloat64(right)
		if !ok {
			return false
		}
		return orderedOp(op, compareFloats(ln, rn))
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return orderedOp(op, strings.Compare(ls, rs))
	}
	return false
}

// compareFloats returns the sign of a-b.
func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// orderedOp maps a comparison sign to the ordered operator outcome.
func orderedOp(op string, sign int) bool {
	switch op {
	case "lt":
		return sign < 0
	case "lte":
		return sign <= 0
	case "gt":
		return sign > 0
	case "gte":
		return sign >= 0
	default:
		return false
	}
}
