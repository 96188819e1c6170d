// internal/rules/validate.go
package rules

import (
	"fmt"

	"github.com/audumla/signalrules/internal/catalog"
	"github.com/audumla/signalrules/internal/types"
)

/*
 * Static rule validation.
 *
 * ValidateRule checks one rule document against the catalog before it may
 * run: required title, when-block shape, signal and operator existence, and
 * per-signal-type value checks for value-requiring operators. Validation
 * stops at the first violation and reports it as a typed
 * RuleValidationError (kind + rule title + condition path).
 *
 * Value checks by signal type:
 *   - bool: eq/ne require a boolean value
 *   - enum: eq/ne require one declared value; in/nin require a list of
 *     declared values
 *   - other types: value-requiring operators need a present value
 */

// valueRequiringOps are operators whose conditions must carry a value.
var valueRequiringOps = map[string]bool{
	"eq": true, "ne": true, "in": true, "nin": true,
	"lt": true, "lte": true, "gt": true, "gte": true,
	"contains": true,
}

// ValidateRule statically checks a rule document against the catalog.
// Returns nil or the first violation as a *types.RuleValidationError.
func ValidateRule(cat *catalog.Catalog, doc map[string]any, index int) error {
	title, _ := doc["title"].(string)
	if title == "" {
		return &types.RuleValidationError{
			Kind: types.KindMissingTitle,
			Msg:  fmt.Sprintf("rule at index %d has no title", index),
		}
	}

	if rawWhen, present := doc["when"]; present {
		when, ok := asStringMap(rawWhen)
		if !ok {
			return &types.RuleValidationError{
				Kind:      types.KindBadWhen,
				RuleTitle: title,
				Path:      "when",
				Msg:       fmt.Sprintf("must be a mapping, got %T", rawWhen),
			}
		}
		for _, group := range []string{"all", "any"} {
			rawGroup, present := when[group]
			if !present {
				continue
			}
			conds, ok := rawGroup.([]any)
			if !ok {
				return &types.RuleValidationError{
					Kind:      types.KindBadWhen,
					RuleTitle: title,
					Path:      "when." + group,
					Msg:       fmt.Sprintf("must be a list, got %T", rawGroup),
				}
			}
			for i, rawCond := range conds {
				path := fmt.Sprintf("when.%s[%d]", group, i)
				if err := validateCondition(cat, title, path, rawCond); err != nil {
					return err
				}
			}
		}
	}

	for _, branch := range []string{"then", "else"} {
		rawActions, present := doc[branch]
		if !present {
			continue
		}
		if err := validateActions(title, branch, rawActions); err != nil {
			return err
		}
	}

	return nil
}

// validateCondition checks one condition's signal, operator, and value.
func validateCondition(cat *catalog.Catalog, title, path string, raw any) error {
	cond, ok := asStringMap(raw)
	if !ok {
		return &types.RuleValidationError{
			Kind:      types.KindBadWhen,
			RuleTitle: title,
			Path:      path,
			Msg:       fmt.Sprintf("condition must be a mapping, got %T", raw),
		}
	}

	signal, _ := cond["signal"].(string)
	if !cat.SignalExists(signal) {
		return &types.RuleValidationError{
			Kind:      types.KindUnknownSignal,
			RuleTitle: title,
			Path:      path,
			Msg:       fmt.Sprintf("signal %q not in catalog", signal),
		}
	}

	op, _ := cond["op"].(string)
	if !cat.OperatorExists(op) {
		return &types.RuleValidationError{
			Kind:      types.KindUnknownOperator,
			RuleTitle: title,
			Path:      path,
			Msg:       fmt.Sprintf("operator %q not in catalog", op),
		}
	}

	if !valueRequiringOps[op] {
		return nil
	}

	value, present := cond["value"]
	if !present || value == nil {
		return &types.RuleValidationError{
			Kind:      types.KindMissingValue,
			RuleTitle: title,
			Path:      path,
			Msg:       fmt.Sprintf("operator %q requires a value", op),
		}
	}

	sigType, _ := cat.SignalType(signal)
	switch sigType {
	case types.SignalBool:
		if op == "eq" || op == "ne" {
			if _, ok := value.(bool); !ok {
				return &types.RuleValidationError{
					Kind:      types.KindBadValue,
					RuleTitle: title,
					Path:      path,
					Msg:       fmt.Sprintf("bool signal %q requires a boolean value, got %T", signal, value),
				}
			}
		}
	case types.SignalEnum:
		allowed := cat.SignalValues(signal)
		switch op {
		case "eq", "ne":
			s, ok := value.(string)
			if !ok || !stringIn(s, allowed) {
				return &types.RuleValidationError{
					Kind:      types.KindBadValue,
					RuleTitle: title,
					Path:      path,
					Msg:       fmt.Sprintf("enum signal %q requires one of %v, got %v", signal, allowed, value),
				}
			}
		case "in", "nin":
			list, ok := value.([]any)
			if !ok || len(list) == 0 {
				return &types.RuleValidationError{
					Kind:      types.KindBadValue,
					RuleTitle: title,
					Path:      path,
					Msg:       fmt.Sprintf("operator %q on enum signal %q requires a non-empty list", op, signal),
				}
			}
			for _, elem := range list {
				s, ok := elem.(string)
				if !ok || !stringIn(s, allowed) {
					return &types.RuleValidationError{
						Kind:      types.KindBadValue,
						RuleTitle: title,
						Path:      path,
						Msg:       fmt.Sprintf("enum signal %q list entries must be among %v, got %v", signal, allowed, elem),
					}
				}
			}
		}
	}

	// in/nin on any signal type require a list value.
	if op == "in" || op == "nin" {
		if _, ok := value.([]any); !ok {
			return &types.RuleValidationError{
				Kind:      types.KindBadValue,
				RuleTitle: title,
				Path:      path,
				Msg:       fmt.Sprintf("operator %q requires a list value, got %T", op, value),
			}
		}
	}

	return nil
}

// validateActions checks a then/else branch is a list of non-empty mappings.
// Action contents are otherwise opaque.
func validateActions(title, branch string, raw any) error {
	list, ok := raw.([]any)
	if !ok {
		return &types.RuleValidationError{
			Kind:      types.KindBadActions,
			RuleTitle: title,
			Path:      branch,
			Msg:       fmt.Sprintf("must be a list, got %T", raw),
		}
	}
	for i, rawAction := range list {
		action, ok := asStringMap(rawAction)
		if !ok || len(action) == 0 {
			return &types.RuleValidationError{
				Kind:      types.KindBadActions,
				RuleTitle: title,
				Path:      fmt.Sprintf("%s[%d]", branch, i),
				Msg:       "action must be a non-empty mapping",
			}
		}
	}
	return nil
}

// stringIn reports membership of s in list.
func stringIn(s string, list []string) bool {
	for _, elem := range list {
		if s == elem {
			return true
		}
	}
	return false
}

// asStringMap normalizes document mappings to map[string]any, accepting the
// map[any]any shape older yaml decoders produce.
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}
