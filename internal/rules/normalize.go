// internal/rules/normalize.go
package rules

import (
	"fmt"
	"sort"

	"github.com/audumla/signalrules/internal/types"
)

/*
 * Rule document normalization.
 *
 * Converts validated rule documents into types.Rule: deterministic id via
 * slug allocator (collision suffix when absent), enabled defaulting to
 * true, empty when/then/else defaults, and the pre-computed required-signal
 * set used for availability gating.
 *
 * Document shapes accepted by ParseRuleDoc: a bare list of rule mappings,
 * or a mapping with a "rules" list.
 */

// ParseRuleDoc extracts the rule list from a document: either a bare list
// or {"rules": [...]}.
func ParseRuleDoc(doc any) ([]map[string]any, error) {
	var rawList []any
	switch d := doc.(type) {
	case []any:
		rawList = d
	case nil:
		return nil, nil
	default:
		m, ok := asStringMap(doc)
		if !ok {
			return nil, fmt.Errorf("rule document must be a list or a mapping with a \"rules\" key, got %T", doc)
		}
		rawRules, present := m["rules"]
		if !present {
			return nil, fmt.Errorf("rule document mapping has no \"rules\" key")
		}
		rawList, ok = rawRules.([]any)
		if !ok {
			return nil, fmt.Errorf("\"rules\" must be a list, got %T", rawRules)
		}
	}

	out := make([]map[string]any, 0, len(rawList))
	for i, raw := range rawList {
		m, ok := asStringMap(raw)
		if !ok {
			return nil, fmt.Errorf("rule at index %d must be a mapping, got %T", i, raw)
		}
		out = append(out, m)
	}
	return out, nil
}

// normalizeRule builds a types.Rule from a validated document. The
// allocator supplies the deterministic id when the document carries none.
// Returns an error only for an explicit id collision.
func normalizeRule(doc map[string]any, alloc *types.IDAllocator) (types.Rule, error) {
	title, _ := doc["title"].(string)

	rule := types.Rule{Title: title, Enabled: true}

	if explicit, ok := doc["id"].(string); ok && explicit != "" {
		if !alloc.Claim(explicit) {
			return types.Rule{}, &types.RuleValidationError{
				Kind:      types.KindDuplicateID,
				RuleTitle: title,
				Msg:       fmt.Sprintf("id %q already in use", explicit),
			}
		}
		rule.ID = explicit
	} else {
		rule.ID = alloc.FromTitle(title)
	}

	if enabled, ok := doc["enabled"].(bool); ok {
		rule.Enabled = enabled
	}

	if rawWhen, ok := asStringMap(doc["when"]); ok {
		rule.When.All = normalizeConditions(rawWhen["all"])
		rule.When.Any = normalizeConditions(rawWhen["any"])
	}
	rule.Then = normalizeActions(doc["then"])
	rule.Else = normalizeActions(doc["else"])
	rule.Required = requiredSignals(rule.When)

	return rule, nil
}

// normalizeConditions converts a validated condition list.
func normalizeConditions(raw any) []types.Condition {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]types.Condition, 0, len(list))
	for _, rawCond := range list {
		m, ok := asStringMap(rawCond)
		if !ok {
			continue
		}
		cond := types.Condition{}
		cond.Signal, _ = m["signal"].(string)
		cond.Op, _ = m["op"].(string)
		cond.Value = m["value"]
		out = append(out, cond)
	}
	return out
}

// normalizeActions converts a validated action list.
func normalizeActions(raw any) []types.Action {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]types.Action, 0, len(list))
	for _, rawAction := range list {
		if m, ok := asStringMap(rawAction); ok {
			out = append(out, types.Action(m))
		}
	}
	return out
}

// requiredSignals collects the sorted, deduplicated signal names referenced
// by a when block.
func requiredSignals(when types.When) []string {
	seen := make(map[string]struct{})
	for _, cond := range when.All {
		seen[cond.Signal] = struct{}{}
	}
	for _, cond := range when.Any {
		seen[cond.Signal] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
