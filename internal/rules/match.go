// internal/rules/match.go
package rules

import (
	"strings"

	"github.com/audumla/signalrules/internal/types"
)

/*
 * Condition matching logic.
 *
 * Implements the match-time operator set over derived signal values.
 * Values reaching Compare are already derived and typed by internal/derive.
 *
 * Operators:
 *   - eq/ne: Equality with numeric tolerance across int/float shapes
 *   - in/nin: Membership against a list value
 *   - lt/lte/gt/gte: Ordered comparison (numeric, or string-to-string)
 *   - contains: Substring for strings, element membership for lists
 *   - exists: True by construction once a signal resolved
 *
 * Unknown guard: the Unknown sentinel fails every operator, including ne
 * and nin. This is the second independent guard beyond the engine's
 * availability pre-filter, covering rules that mix partially-resolved
 * signals.
 *
 * Why function-based: a switch over ten operators is cleaner than ten
 * interface implementations with minimal behavior variation.
 */

// Compare applies a match-time operator to a derived signal value and the
// condition's comparison value. Unknown never satisfies any operator.
func Compare(op string, value, target any) bool {
	if types.IsUnknown(value) {
		return false
	}

	switch op {
	case "eq":
		return looseEqual(value, target)
	case "ne":
		return !looseEqual(value, target)
	case "in":
		return memberOf(value, target)
	case "nin":
		return !memberOf(value, target)
	case "lt", "lte", "gt", "gte":
		return orderedCompare(op, value, target)
	case "contains":
		return containsValue(value, target)
	case "exists":
		return value != nil
	default:
		return false
	}
}

// looseEqual compares with numeric tolerance: int and float shapes of the
// same number are equal; everything else requires matching Go types.
func looseEqual(a, b any) bool {
	an, aok := numeric(a)
	bn, bok := numeric(b)
	if aok && bok {
		return an == bn
	}
	if aok != bok {
		return false
	}
	return a == b
}

// memberOf reports whether value equals any element of a list target.
// A non-list target never matches.
func memberOf(value, target any) bool {
	list, ok := target.([]any)
	if !ok {
		return false
	}
	for _, elem := range list {
		if looseEqual(value, elem) {
			return true
		}
	}
	return false
}

// orderedCompare handles lt/lte/gt/gte. Numeric pairs compare numerically,
// string pairs lexically, mixed types never match.
func orderedCompare(op string, value, target any) bool {
	if vn, ok := numeric(value); ok {
		tn, ok := numeric(target)
		if !ok {
			return false
		}
		return orderedResult(op, sign(vn, tn))
	}
	vs, vok := value.(string)
	ts, tok := target.(string)
	if vok && tok {
		return orderedResult(op, strings.Compare(vs, ts))
	}
	return false
}

// containsValue: substring match for string signals, element membership for
// array signals.
func containsValue(value, target any) bool {
	switch v := value.(type) {
	case string:
		t, ok := target.(string)
		return ok && strings.Contains(v, t)
	case []any:
		for _, elem := range v {
			if looseEqual(elem, target) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// numeric extracts a float64 from any JSON/YAML numeric shape.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// sign returns the comparison sign of a-b.
func sign(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// orderedResult maps a comparison sign to the operator outcome.
func orderedResult(op string, s int) bool {
	switch op {
	case "lt":
		return s < 0
	case "lte":
		return s <= 0
	case "gt":
		return s > 0
	case "gte":
		return s >= 0
	default:
		return false
	}
}

// matchCondition evaluates one condition against the derived signal map.
// A signal carrying Unknown is false under every operator.
func matchCondition(cond types.Condition, signals map[string]any) bool {
	return Compare(cond.Op, signals[cond.Signal], cond.Value)
}

// matchWhen evaluates a rule's when block: All is AND (empty vacuously
// true), Any is OR (empty vacuously true, does not veto).
func matchWhen(when types.When, signals map[string]any) bool {
	for _, cond := range when.All {
		if !matchCondition(cond, signals) {
			return false
		}
	}
	if len(when.Any) == 0 {
		return true
	}
	for _, cond := range when.Any {
		if matchCondition(cond, signals) {
			return true
		}
	}
	return false
}
