// Package catalog parses and validates the signals catalog document and
// exposes read-only lookups used by derivation and the rule engine.
//
// The catalog is immutable after load. All validation is eager: required
// sections, tier and operator minimums, per-signal shape, enum value lists,
// derive-spec parsing, and bitfield alias references are all checked by
// FromSource. Lookups never fail structurally afterward.
package catalog

import (
	"fmt"
	"sort"

	"github.com/audumla/signalrules/internal/types"
)

// requiredOperators is the minimum operator set every catalog must declare.
var requiredOperators = []string{"eq", "ne", "in", "nin", "lt", "lte", "gt", "gte", "contains", "exists"}

// validTiers is the closed set of UI tiers a signal may be assigned to.
var validTiers = map[string]bool{"core": true, "detail": true, "advanced": true}

// Operator describes one declared operator token.
type Operator struct {
	Token  string
	Symbol string // display symbol from the document, may be ""
}

// UIMeta carries a signal's presentation metadata.
type UIMeta struct {
	Tier     string
	Category string
	Label    string
}

// SignalDefinition is one flattened catalog signal.
type SignalDefinition struct {
	Name   string // dot-joined flattened key
	Type   types.SignalType
	Title  string
	UI     UIMeta
	Values []string // ordered allowed values, enum and event signals only
	Derive Spec
}

// Catalog is the validated, immutable signal schema.
type Catalog struct {
	tiers     map[string]any
	operators map[string]Operator
	bitfields map[string]string
	signals   map[string]*SignalDefinition
	names     []string // sorted flattened signal names
	tree      map[string]any
}

// FromSource validates an already-decoded catalog document and builds the
// catalog. Any structural violation returns a *types.CatalogError; no
// partial catalog is ever returned.
func FromSource(doc map[string]any) (*Catalog, error) {
	if doc == nil {
		return nil, types.NewCatalogError("", "document is empty")
	}

	tiers, err := requireSection(doc, "ui_tiers")
	if err != nil {
		return nil, err
	}
	for _, tier := range []string{"core", "detail"} {
		if _, ok := tiers[tier]; !ok {
			return nil, types.NewCatalogError("ui_tiers", "missing required tier %q", tier)
		}
	}

	rawOps, err := requireSection(doc, "operators")
	if err != nil {
		return nil, err
	}
	operators := make(map[string]Operator, len(rawOps))
	for token, meta := range rawOps {
		op := Operator{Token: token}
		if m, ok := asStringMap(meta); ok {
			op.Symbol, _ = m["symbol"].(string)
		}
		operators[token] = op
	}
	for _, token := range requiredOperators {
		if _, ok := operators[token]; !ok {
			return nil, types.NewCatalogError("operators", "missing required operator %q", token)
		}
	}

	rawBitfields, err := requireSection(doc, "bitfields")
	if err != nil {
		return nil, err
	}
	bitfields := make(map[string]string, len(rawBitfields))
	for alias, path := range rawBitfields {
		ps, ok := path.(string)
		if !ok || ps == "" {
			return nil, types.NewCatalogError("bitfields", "alias %q must map to a dotted path string", alias)
		}
		bitfields[alias] = ps
	}

	rawSignals, err := requireSection(doc, "signals")
	if err != nil {
		return nil, err
	}

	cat := &Catalog{
		tiers:     tiers,
		operators: operators,
		bitfields: bitfields,
		signals:   make(map[string]*SignalDefinition),
		tree:      rawSignals,
	}
	if err := cat.flatten("", rawSignals); err != nil {
		return nil, err
	}
	if len(cat.signals) == 0 {
		return nil, types.NewCatalogError("signals", "at least one signal must be defined")
	}

	cat.names = make([]string, 0, len(cat.signals))
	for name := range cat.signals {
		cat.names = append(cat.names, name)
	}
	sort.Strings(cat.names)

	return cat, nil
}

// flatten walks the nested signal tree. Mappings carrying a "type" key are
// leaves; mappings without one are grouping containers whose children join
// the flattened name with a dot.
func (c *Catalog) flatten(prefix string, node map[string]any) error {
	for _, key := range sortedKeys(node) {
		child := node[key]
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}

		m, ok := asStringMap(child)
		if !ok {
			return types.NewCatalogError(name, "signal entry must be a mapping, got %T", child)
		}
		if _, isLeaf := m["type"]; !isLeaf {
			if err := c.flatten(name, m); err != nil {
				return err
			}
			continue
		}

		def, err := c.parseSignal(name, m)
		if err != nil {
			return err
		}
		c.signals[name] = def
	}
	return nil
}

// parseSignal validates one leaf signal entry.
func (c *Catalog) parseSignal(name string, m map[string]any) (*SignalDefinition, error) {
	typeStr, _ := m["type"].(string)
	sigType := types.SignalType(typeStr)
	if !sigType.Valid() {
		return nil, types.NewCatalogError(name, "invalid signal type %q", typeStr)
	}

	title, _ := m["title"].(string)
	if title == "" {
		return nil, types.NewCatalogError(name, "missing title")
	}

	rawUI, ok := asStringMap(m["ui"])
	if !ok {
		return nil, types.NewCatalogError(name, "missing ui metadata")
	}
	tier, _ := rawUI["tier"].(string)
	if !validTiers[tier] {
		return nil, types.NewCatalogError(name, "ui.tier %q not in {core, detail, advanced}", tier)
	}
	ui := UIMeta{Tier: tier}
	ui.Category, _ = rawUI["category"].(string)
	ui.Label, _ = rawUI["label"].(string)

	rawDerive, hasDerive := m["derive"]
	if !hasDerive {
		return nil, types.NewCatalogError(name, "missing derive spec")
	}
	derive, err := ParseSpec(rawDerive)
	if err != nil {
		return nil, &types.CatalogError{Section: name, Msg: fmt.Sprintf("derive: %v", err), Err: err}
	}

	// Flag nodes must reference declared bitfield aliases. Checked here so
	// a dangling alias is a load-time defect, not a runtime unknown.
	var aliasErr error
	Walk(derive, func(s Spec) {
		if f, ok := s.(Flag); ok && aliasErr == nil {
			if _, declared := c.bitfields[f.Field]; !declared {
				aliasErr = &types.CatalogError{
					Section: name,
					Msg:     fmt.Sprintf("derive: flag references undeclared bitfield alias %q", f.Field),
					Err:     types.ErrUnknownBitfield,
				}
			}
		}
	})
	if aliasErr != nil {
		return nil, aliasErr
	}

	def := &SignalDefinition{Name: name, Type: sigType, Title: title, UI: ui, Derive: derive}

	if sigType == types.SignalEnum || sigType == types.SignalEvent {
		rawValues, _ := m["values"].([]any)
		if sigType == types.SignalEnum && len(rawValues) == 0 {
			return nil, types.NewCatalogError(name, "enum signal must declare a non-empty values list")
		}
		for i, rv := range rawValues {
			s, ok := rv.(string)
			if !ok {
				return nil, types.NewCatalogError(name, "values[%d] must be a string, got %T", i, rv)
			}
			def.Values = append(def.Values, s)
		}
	}

	return def, nil
}

// SignalExists reports whether the flattened signal name is declared.
func (c *Catalog) SignalExists(name string) bool {
	_, ok := c.signals[name]
	return ok
}

// OperatorExists reports whether the operator token is declared.
func (c *Catalog) OperatorExists(token string) bool {
	_, ok := c.operators[token]
	return ok
}

// Signal returns the definition for a flattened signal name.
func (c *Catalog) Signal(name string) (*SignalDefinition, bool) {
	def, ok := c.signals[name]
	return def, ok
}

// SignalType returns a signal's declared type.
func (c *Catalog) SignalType(name string) (types.SignalType, bool) {
	def, ok := c.signals[name]
	if !ok {
		return "", false
	}
	return def.Type, true
}

// SignalValues returns an enum signal's ordered allowed values, nil for
// non-enum or undeclared signals.
func (c *Catalog) SignalValues(name string) []string {
	def, ok := c.signals[name]
	if !ok || def.Type != types.SignalEnum {
		return nil
	}
	return def.Values
}

// SignalsByTier returns the sorted names of signals assigned to tier.
func (c *Catalog) SignalsByTier(tier string) []string {
	var out []string
	for _, name := range c.names {
		if c.signals[name].UI.Tier == tier {
			out = append(out, name)
		}
	}
	return out
}

// Tiers returns the declared UI tier names in lexical order.
func (c *Catalog) Tiers() []string {
	out := make([]string, 0, len(c.tiers))
	for tier := range c.tiers {
		out = append(out, tier)
	}
	sort.Strings(out)
	return out
}

// Names returns all flattened signal names in lexical order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// BitfieldPath resolves a bitfield alias to its dotted payload path.
func (c *Catalog) BitfieldPath(alias string) (string, bool) {
	p, ok := c.bitfields[alias]
	return p, ok
}

// OperatorSymbol returns the display symbol declared for an operator token.
func (c *Catalog) OperatorSymbol(token string) string {
	return c.operators[token].Symbol
}

// Tree returns the hierarchical signal view as loaded, for UI consumption.
// Callers must treat the returned structure as read-only.
func (c *Catalog) Tree() map[string]any {
	return c.tree
}

// AllKnownEvents scans every derive tree (event nodes, recent nodes, match
// gates) and event-signal metadata for referenced event names, returned
// sorted and deduplicated.
func (c *Catalog) AllKnownEvents() []string {
	seen := make(map[string]struct{})
	for _, name := range c.names {
		def := c.signals[name]
		Walk(def.Derive, func(s Spec) {
			switch n := s.(type) {
			case Event:
				seen[n.Name] = struct{}{}
			case Recent:
				seen[n.Event] = struct{}{}
			case MatchProp:
				if n.Event != "" {
					seen[n.Event] = struct{}{}
				}
			}
		})
		if def.Type == types.SignalEvent {
			for _, v := range def.Values {
				seen[v] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// requireSection extracts a required top-level mapping section.
func requireSection(doc map[string]any, key string) (map[string]any, error) {
	raw, ok := doc[key]
	if !ok {
		return nil, types.NewCatalogError(key, "required section missing")
	}
	m, ok := asStringMap(raw)
	if !ok {
		return nil, &types.CatalogError{
			Section: key,
			Msg:     fmt.Sprintf("section must be a mapping, got %T", raw),
			Err:     types.ErrNotMapping,
		}
	}
	return m, nil
}
