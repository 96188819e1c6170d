// Package types provides domain models shared across signalrules components.
//
// Zero-dependency design: types.go, rules.go, and errors.go use only the
// standard library so the evaluation core stays import-light. ID utilities in
// ids.go import uuid but are isolated for selective inclusion.
package types

import "time"

// SignalType enumerates the closed set of catalog signal types.
type SignalType string

const (
	SignalBool   SignalType = "bool"
	SignalEnum   SignalType = "enum"
	SignalString SignalType = "string"
	SignalNumber SignalType = "number"
	SignalArray  SignalType = "array"
	SignalObject SignalType = "object"
	SignalEvent  SignalType = "event"
)

// Valid reports whether t is a member of the closed signal type set.
func (t SignalType) Valid() bool {
	switch t {
	case SignalBool, SignalEnum, SignalString, SignalNumber, SignalArray, SignalObject, SignalEvent:
		return true
	}
	return false
}

// unknownValue is the private type behind the Unknown sentinel. Unexported so
// the only instance in the process is the package-level Unknown variable;
// comparisons against it are exact.
type unknownValue struct{}

// Unknown is the sentinel carried by a derived signal that cannot currently
// be determined: missing source field, enum value outside the declared list,
// or an evaluation failure. Unknown never satisfies any rule condition,
// including negated operators.
var Unknown = unknownValue{}

// String implements fmt.Stringer for log output.
func (unknownValue) String() string { return "unknown" }

// MarshalJSON renders the sentinel as the string "unknown" in serialized
// signal maps.
func (unknownValue) MarshalJSON() ([]byte, error) { return []byte(`"unknown"`), nil }

// IsUnknown reports whether v is the Unknown sentinel.
func IsUnknown(v any) bool {
	_, ok := v.(unknownValue)
	return ok
}

// Payload is a decoded notification entry. Values follow the shapes produced
// by encoding/json and yaml.v3 decoding into any: map[string]any, []any,
// string, bool, float64/int.
type Payload map[string]any

// Identity is the caller-supplied key under which match-state history is
// tracked independently, typically one key per player or profile.
type Identity string

// EvalContext carries rolling per-session state supplied by the notification
// source alongside each entry.
type EvalContext struct {
	// RecentEvents maps event names to the wall-clock time they last
	// occurred. Feeds the "recent" derive operation.
	RecentEvents map[string]time.Time

	// Now pins evaluation time for deterministic tests. Zero means use
	// time.Now at evaluation.
	Now time.Time
}

// Clock returns the evaluation time: the pinned Now if set, otherwise the
// current wall clock.
func (c EvalContext) Clock() time.Time {
	if !c.Now.IsZero() {
		return c.Now
	}
	return time.Now()
}
