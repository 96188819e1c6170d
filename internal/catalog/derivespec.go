// internal/catalog/derivespec.go
package catalog

import (
	"fmt"
	"sort"

	"github.com/audumla/signalrules/internal/types"
)

/*
 * Derive-spec tagged union and parser.
 *
 * Document derive trees are untyped mappings with an "op" key. Parsing
 * converts them once, at catalog load, into a closed tagged union: one
 * struct per op name, children either nested specs or Literal wrappers.
 * Unknown op names and malformed node shapes are rejected here, at load
 * time, never at evaluation time.
 *
 * Operand convention: a child value that is a mapping containing "op" is
 * parsed as a nested spec; anything else becomes a Literal. This keeps the
 * evaluator uniform - every operand is a Spec.
 *
 * The comparison ops accept a legacy shorthand {op, path, value} in place
 * of explicit left/right operands, preserved from the original document
 * convention.
 */

// Spec is one node of a parsed derive tree. The op method is unexported so
// the union is closed to this package.
type Spec interface {
	op() string
}

// Literal wraps a non-spec operand value.
type Literal struct{ Value any }

// Flag extracts the nth bit (0-indexed) of an integer field addressed by a
// catalog bitfield alias. Resolves to null when the field is absent.
type Flag struct {
	Field string // bitfield alias, resolved via Catalog.BitfieldPath
	Bit   int
}

// Path looks up a dot-separated path in the payload. A leading "dashboard."
// segment is stripped and resolved against the payload's flat root, the
// legacy flattening convention.
type Path struct{ Path string }

// Map evaluates From, stringifies the result, and looks it up in Table.
// Default applies only when From resolves but is unmapped.
type Map struct {
	From       Spec
	Table      map[string]any
	Default    any
	HasDefault bool
}

// MatchCase is one {when, value} arm of a FirstMatch node.
type MatchCase struct {
	When  Spec
	Value any
}

// FirstMatch returns the value of the first case whose condition holds,
// else the node default.
type FirstMatch struct {
	Cases      []MatchCase
	Default    any
	HasDefault bool
}

// Event is true iff the payload's event name equals Name.
type Event struct{ Name string }

// Recent is true iff Event occurred within WithinSeconds of evaluation time
// according to the rolling context's recent-events map.
type Recent struct {
	Event         string
	WithinSeconds float64
}

// And is the boolean conjunction of its conditions.
type And struct{ Conditions []Spec }

// Or is the boolean disjunction of its conditions.
type Or struct{ Conditions []Spec }

// Not negates its condition.
type Not struct{ Condition Spec }

// Compare applies a binary comparison (eq, ne, lt, lte, gt, gte) to two
// operands. Incomparable types resolve to false, never an error.
type Compare struct {
	Op    string
	Left  Spec
	Right Spec
}

// Count resolves to the length of a list or mapping at Path, else the node
// default.
type Count struct {
	Path       string
	Default    any
	HasDefault bool
}

// Exists is true iff Path resolves to a non-null, non-empty value.
type Exists struct{ Path string }

// Sum totals its numeric operands, coercing failures to 0. The default
// applies only when the computed total is exactly 0.
type Sum struct {
	Of         []Spec
	Default    any
	HasDefault bool
}

// Any is true iff a list element at Path equals Value, or (for object
// elements) has property Property equal to Value. Resolves to the default
// when Path is not a list.
type Any struct {
	Path       string
	Value      any
	Property   string
	Default    any
	HasDefault bool
}

// MatchProp is true iff a named payload property equals Value, optionally
// gated on the payload's event name equalling Event.
type MatchProp struct {
	Property string
	Value    any
	Event    string // "" means no event gate
}

func (Literal) op() string    { return "literal" }
func (Flag) op() string       { return "flag" }
func (Path) op() string       { return "path" }
func (Map) op() string        { return "map" }
func (FirstMatch) op() string { return "first_match" }
func (Event) op() string      { return "event" }
func (Recent) op() string     { return "recent" }
func (And) op() string        { return "and" }
func (Or) op() string         { return "or" }
func (Not) op() string        { return "not" }
func (c Compare) op() string  { return c.Op }
func (Count) op() string      { return "count" }
func (Exists) op() string     { return "exists" }
func (Sum) op() string        { return "sum" }
func (Any) op() string        { return "any" }
func (MatchProp) op() string  { return "match" }

// ParseSpec converts one untyped derive node into the tagged union.
// Returns ErrUnknownDeriveOp (wrapped) for op names outside the closed set
// and ErrBadDeriveShape (wrapped) for malformed nodes.
func ParseSpec(v any) (Spec, error) {
	node, ok := asStringMap(v)
	if !ok {
		return nil, shapeErr("derive node must be a mapping, got %T", v)
	}
	opName, ok := node["op"].(string)
	if !ok {
		return nil, shapeErr("derive node missing string \"op\" key")
	}

	switch opName {
	case "flag":
		field, ok := node["field"].(string)
		if !ok || field == "" {
			return nil, shapeErr("flag: missing \"field\" alias")
		}
		bit, ok := asInt(node["bit"])
		if !ok || bit < 0 {
			return nil, shapeErr("flag: \"bit\" must be a non-negative integer")
		}
		return Flag{Field: field, Bit: bit}, nil

	case "path":
		p, ok := node["path"].(string)
		if !ok || p == "" {
			return nil, shapeErr("path: missing \"path\"")
		}
		return Path{Path: p}, nil

	case "map":
		if _, hasFrom := node["from"]; !hasFrom {
			return nil, shapeErr("map: missing \"from\"")
		}
		from, err := ParseSpec(node["from"])
		if err != nil {
			return nil, fmt.Errorf("map.from: %w", err)
		}
		rawTable, ok := asStringMap(node["table"])
		if !ok {
			return nil, shapeErr("map: \"table\" must be a mapping")
		}
		def, hasDef := node["default"]
		return Map{From: from, Table: rawTable, Default: def, HasDefault: hasDef}, nil

	case "first_match":
		rawCases, ok := node["cases"].([]any)
		if !ok || len(rawCases) == 0 {
			return nil, shapeErr("first_match: \"cases\" must be a non-empty list")
		}
		cases := make([]MatchCase, 0, len(rawCases))
		for i, rc := range rawCases {
			cm, ok := asStringMap(rc)
			if !ok {
				return nil, shapeErr("first_match.cases[%d]: must be a mapping", i)
			}
			when, err := ParseSpec(cm["when"])
			if err != nil {
				return nil, fmt.Errorf("first_match.cases[%d].when: %w", i, err)
			}
			value, hasValue := cm["value"]
			if !hasValue {
				return nil, shapeErr("first_match.cases[%d]: missing \"value\"", i)
			}
			cases = append(cases, MatchCase{When: when, Value: value})
		}
		def, hasDef := node["default"]
		return FirstMatch{Cases: cases, Default: def, HasDefault: hasDef}, nil

	case "event":
		name, ok := node["name"].(string)
		if !ok || name == "" {
			return nil, shapeErr("event: missing \"name\"")
		}
		return Event{Name: name}, nil

	case "recent":
		name, ok := node["event"].(string)
		if !ok || name == "" {
			return nil, shapeErr("recent: missing \"event\"")
		}
		within, ok := asFloat(node["within_seconds"])
		if !ok || within < 0 {
			return nil, shapeErr("recent: \"within_seconds\" must be a non-negative number")
		}
		return Recent{Event: name, WithinSeconds: within}, nil

	case "and", "or":
		raw, ok := node["conditions"].([]any)
		if !ok || len(raw) == 0 {
			return nil, shapeErr("%s: \"conditions\" must be a non-empty list", opName)
		}
		kids := make([]Spec, 0, len(raw))
		for i, rc := range raw {
			kid, err := ParseSpec(rc)
			if err != nil {
				return nil, fmt.Errorf("%s.conditions[%d]: %w", opName, i, err)
			}
			kids = append(kids, kid)
		}
		if opName == "and" {
			return And{Conditions: kids}, nil
		}
		return Or{Conditions: kids}, nil

	case "not":
		kid, err := ParseSpec(node["condition"])
		if err != nil {
			return nil, fmt.Errorf("not.condition: %w", err)
		}
		return Not{Condition: kid}, nil

	case "eq", "ne", "lt", "lte", "gt", "gte":
		// Legacy shorthand: {op, path, value} compares a payload path
		// against a literal.
		if p, ok := node["path"].(string); ok {
			value, hasValue := node["value"]
			if !hasValue {
				return nil, shapeErr("%s: shorthand requires \"value\"", opName)
			}
			return Compare{Op: opName, Left: Path{Path: p}, Right: Literal{Value: value}}, nil
		}
		if _, hasLeft := node["left"]; !hasLeft {
			return nil, shapeErr("%s: missing \"left\" operand", opName)
		}
		if _, hasRight := node["right"]; !hasRight {
			return nil, shapeErr("%s: missing \"right\" operand", opName)
		}
		left, err := parseOperand(node["left"])
		if err != nil {
			return nil, fmt.Errorf("%s.left: %w", opName, err)
		}
		right, err := parseOperand(node["right"])
		if err != nil {
			return nil, fmt.Errorf("%s.right: %w", opName, err)
		}
		return Compare{Op: opName, Left: left, Right: right}, nil

	case "count":
		p, ok := node["path"].(string)
		if !ok || p == "" {
			return nil, shapeErr("count: missing \"path\"")
		}
		def, hasDef := node["default"]
		return Count{Path: p, Default: def, HasDefault: hasDef}, nil

	case "exists":
		p, ok := node["path"].(string)
		if !ok || p == "" {
			return nil, shapeErr("exists: missing \"path\"")
		}
		return Exists{Path: p}, nil

	case "sum":
		raw, ok := node["of"].([]any)
		if !ok || len(raw) == 0 {
			return nil, shapeErr("sum: \"of\" must be a non-empty list")
		}
		kids := make([]Spec, 0, len(raw))
		for i, rc := range raw {
			kid, err := parseOperand(rc)
			if err != nil {
				return nil, fmt.Errorf("sum.of[%d]: %w", i, err)
			}
			kids = append(kids, kid)
		}
		def, hasDef := node["default"]
		return Sum{Of: kids, Default: def, HasDefault: hasDef}, nil

	case "any":
		p, ok := node["path"].(string)
		if !ok || p == "" {
			return nil, shapeErr("any: missing \"path\"")
		}
		value, hasValue := node["value"]
		if !hasValue {
			return nil, shapeErr("any: missing \"value\"")
		}
		prop, _ := node["property"].(string)
		def, hasDef := node["default"]
		return Any{Path: p, Value: value, Property: prop, Default: def, HasDefault: hasDef}, nil

	case "match":
		prop, ok := node["property"].(string)
		if !ok || prop == "" {
			return nil, shapeErr("match: missing \"property\"")
		}
		value, hasValue := node["value"]
		if !hasValue {
			return nil, shapeErr("match: missing \"value\"")
		}
		eventGate, _ := node["event"].(string)
		return MatchProp{Property: prop, Value: value, Event: eventGate}, nil

	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownDeriveOp, opName)
	}
}

// parseOperand parses a child value: mappings with an "op" key become nested
// specs, everything else a Literal.
func parseOperand(v any) (Spec, error) {
	if m, ok := asStringMap(v); ok {
		if _, hasOp := m["op"]; hasOp {
			return ParseSpec(m)
		}
	}
	return Literal{Value: v}, nil
}

// Walk visits spec and every nested spec in document order.
func Walk(spec Spec, visit func(Spec)) {
	if spec == nil {
		return
	}
	visit(spec)
	switch s := spec.(type) {
	case Map:
		Walk(s.From, visit)
	case FirstMatch:
		for _, c := range s.Cases {
			Walk(c.When, visit)
		}
	case And:
		for _, c := range s.Conditions {
			Walk(c, visit)
		}
	case Or:
		for _, c := range s.Conditions {
			Walk(c, visit)
		}
	case Not:
		Walk(s.Condition, visit)
	case Compare:
		Walk(s.Left, visit)
		Walk(s.Right, visit)
	case Sum:
		for _, c := range s.Of {
			Walk(c, visit)
		}
	}
}

// shapeErr wraps ErrBadDeriveShape with a formatted detail message.
func shapeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrBadDeriveShape, fmt.Sprintf(format, args...))
}

// asStringMap normalizes document mappings to map[string]any. yaml.v3 and
// encoding/json both decode mappings this way when the target is any; the
// map[any]any case covers documents decoded by older yaml packages.
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case types.Payload:
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

// asInt accepts the integer shapes produced by json (float64) and yaml (int).
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// asFloat accepts any numeric document value.
func asFloat(v any) (float64, bool) {
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

// sortedKeys returns the keys of m in lexical order for deterministic
// iteration in error reporting and lookups.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
