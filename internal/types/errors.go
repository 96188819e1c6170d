package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for signalrules operations.
var (
	// ErrUnknownDeriveOp indicates a derive node names an operation outside
	// the closed op set. A configuration defect surfaced at catalog load.
	ErrUnknownDeriveOp = errors.New("unknown derive op")

	// ErrBadDeriveShape indicates a derive node is missing a required key or
	// carries one of the wrong kind.
	ErrBadDeriveShape = errors.New("malformed derive spec")

	// ErrUnknownBitfield indicates a flag node references a bitfield alias
	// the catalog does not declare.
	ErrUnknownBitfield = errors.New("unknown bitfield alias")

	// ErrNotMapping indicates a document section that must be a mapping is
	// some other shape.
	ErrNotMapping = errors.New("expected a mapping")
)

// Rule validation error kinds. Each names the first violation class found.
const (
	KindMissingTitle    = "missing-title"
	KindBadWhen         = "bad-when"
	KindUnknownSignal   = "unknown-signal"
	KindUnknownOperator = "unknown-operator"
	KindMissingValue    = "missing-value"
	KindBadValue        = "bad-value"
	KindBadActions      = "bad-actions"
	KindDuplicateID     = "duplicate-id"
)

// CatalogError is a structural schema violation found while loading the
// catalog document. Fatal: no partial catalog is ever returned.
type CatalogError struct {
	Section string // document section or flattened signal name
	Msg     string
	Err     error // underlying sentinel, if any
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("catalog: %s", e.Msg)
	}
	return fmt.Sprintf("catalog: %s: %s", e.Section, e.Msg)
}

// Unwrap exposes the underlying sentinel for errors.Is checks.
func (e *CatalogError) Unwrap() error { return e.Err }

// NewCatalogError builds a CatalogError for a document section.
func NewCatalogError(section, format string, args ...any) *CatalogError {
	return &CatalogError{Section: section, Msg: fmt.Sprintf(format, args...)}
}

// RuleValidationError describes the first violation found in a single rule.
// Non-fatal to the batch: the rule is dropped and logged, siblings still load.
type RuleValidationError struct {
	Kind      string // one of the Kind* constants
	RuleTitle string // rule title if present, "" otherwise
	Path      string // condition path, e.g. "when.all[1]"
	Msg       string
}

// Error implements the error interface.
func (e *RuleValidationError) Error() string {
	title := e.RuleTitle
	if title == "" {
		title = "(untitled)"
	}
	if e.Path == "" {
		return fmt.Sprintf("rule %q: %s: %s", title, e.Kind, e.Msg)
	}
	return fmt.Sprintf("rule %q: %s at %s: %s", title, e.Kind, e.Path, e.Msg)
}
