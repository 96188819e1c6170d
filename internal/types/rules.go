// internal/types/rules.go
package types

/*
 * Domain types for rule evaluation.
 *
 * Provides Rule, When, Condition, Action, and MatchResult structures used by
 * internal/rules for validation, normalization, and edge-triggered matching.
 * These types are wire-format agnostic - document-to-types conversion happens
 * during engine construction.
 *
 * Key types:
 *   - Rule: Normalized rule with deterministic id and defaulted fields
 *   - When: all/any condition groups (all = AND, any = OR)
 *   - Condition: Single signal comparison with operator token
 *   - Action: Opaque mapping forwarded verbatim to the action handler
 *   - MatchResult: Transition outcome delivered to the action handler
 */

// Condition represents a single signal comparison in a rule's when block.
type Condition struct {
	Signal string // catalog signal name (validated to exist)
	Op     string // operator token (validated to exist)
	Value  any    // comparison value (nil for exists)
}

// When groups a rule's conditions. All conditions in All must hold, and at
// least one in Any must hold when Any is non-empty. Both empty groups are
// vacuously true.
type When struct {
	All []Condition
	Any []Condition
}

// Action is an opaque action mapping. The engine attaches no semantics;
// contents are forwarded verbatim to the registered handler.
type Action map[string]any

// Rule is a normalized, validated rule owned by the engine.
type Rule struct {
	ID      string // deterministic slug, unique per engine instance
	Title   string
	Enabled bool
	When    When
	Then    []Action
	Else    []Action

	// Required is the sorted set of signal names referenced by When.
	// Pre-computed at construction for availability gating.
	Required []string
}

// MatchResult is delivered to the action handler on a match-state transition.
type MatchResult struct {
	RuleID    string
	RuleTitle string
	Matched   bool
	Actions   []Action // then-actions when Matched, else-actions otherwise
}

// DroppedRule records a rule excluded during engine construction, surfaced
// for visibility rather than failing the whole batch.
type DroppedRule struct {
	Index  int    // position in the source document
	Title  string // title if present, "" otherwise
	Reason string
}
