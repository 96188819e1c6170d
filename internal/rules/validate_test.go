package rules

import (
	"errors"
	"testing"

	"github.com/audumla/signalrules/internal/catalog"
	"github.com/audumla/signalrules/internal/types"
)

// testCatalog builds the catalog shared by the rules package tests:
// an enum, a bool, and a number signal plus the standard operator set.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	operators := map[string]any{}
	for _, token := range []string{"eq", "ne", "in", "nin", "lt", "lte", "gt", "gte", "contains", "exists"} {
		operators[token] = map[string]any{}
	}
	cat, err := catalog.FromSource(map[string]any{
		"ui_tiers":  map[string]any{"core": map[string]any{}, "detail": map[string]any{}},
		"operators": operators,
		"bitfields": map[string]any{"ship_flags": "dashboard.Flags"},
		"signals": map[string]any{
			"hardpoints": map[string]any{
				"type":   "enum",
				"title":  "Hardpoints",
				"ui":     map[string]any{"tier": "core"},
				"values": []any{"deployed", "retracted"},
				"derive": map[string]any{
					"op":    "map",
					"from":  map[string]any{"op": "flag", "field": "ship_flags", "bit": 6},
					"table": map[string]any{"true": "deployed", "false": "retracted"},
				},
			},
			"attacked": map[string]any{
				"type":   "bool",
				"title":  "Under attack",
				"ui":     map[string]any{"tier": "detail"},
				"derive": map[string]any{"op": "event", "name": "UnderAttack"},
			},
			"ship": map[string]any{
				"docked": map[string]any{
					"type":   "bool",
					"title":  "Docked",
					"ui":     map[string]any{"tier": "core"},
					"derive": map[string]any{"op": "flag", "field": "ship_flags", "bit": 0},
				},
				"fuel": map[string]any{
					"level": map[string]any{
						"type":   "number",
						"title":  "Fuel level",
						"ui":     map[string]any{"tier": "detail"},
						"derive": map[string]any{"op": "path", "path": "dashboard.Fuel.FuelMain"},
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("FromSource() error = %v", err)
	}
	return cat
}

// validRuleDoc is a baseline document the mutation tests tweak.
func validRuleDoc() map[string]any {
	return map[string]any{
		"title": "Hardpoints out",
		"when": map[string]any{
			"all": []any{
				map[string]any{"signal": "hardpoints", "op": "eq", "value": "deployed"},
			},
		},
		"then": []any{
			map[string]any{"led": "combat", "state": "on"},
		},
		"else": []any{
			map[string]any{"led": "combat", "state": "off"},
		},
	}
}

func TestValidateRule_Valid(t *testing.T) {
	cat := testCatalog(t)
	if err := ValidateRule(cat, validRuleDoc(), 0); err != nil {
		t.Fatalf("ValidateRule() error = %v", err)
	}
}

func TestValidateRule_Violations(t *testing.T) {
	cat := testCatalog(t)

	tests := []struct {
		name   string
		mutate func(doc map[string]any)
		kind   string
	}{
		{
			name:   "missing title",
			mutate: func(doc map[string]any) { delete(doc, "title") },
			kind:   types.KindMissingTitle,
		},
		{
			name:   "when not a mapping",
			mutate: func(doc map[string]any) { doc["when"] = []any{"all"} },
			kind:   types.KindBadWhen,
		},
		{
			name: "all not a list",
			mutate: func(doc map[string]any) {
				doc["when"] = map[string]any{"all": "hardpoints"}
			},
			kind: types.KindBadWhen,
		},
		{
			name: "condition not a mapping",
			mutate: func(doc map[string]any) {
				doc["when"] = map[string]any{"all": []any{"hardpoints eq deployed"}}
			},
			kind: types.KindBadWhen,
		},
		{
			name: "unknown signal",
			mutate: func(doc map[string]any) {
				doc["when"] = map[string]any{"all": []any{
					map[string]any{"signal": "shields", "op": "eq", "value": true},
				}}
			},
			kind: types.KindUnknownSignal,
		},
		{
			name: "unknown operator",
			mutate: func(doc map[string]any) {
				doc["when"] = map[string]any{"all": []any{
					map[string]any{"signal": "hardpoints", "op": "matches", "value": "deployed"},
				}}
			},
			kind: types.KindUnknownOperator,
		},
		{
			name: "missing value for value-requiring operator",
			mutate: func(doc map[string]any) {
				doc["when"] = map[string]any{"all": []any{
					map[string]any{"signal": "hardpoints", "op": "eq"},
				}}
			},
			kind: types.KindMissingValue,
		},
		{
			name: "bool signal with non-boolean value",
			mutate: func(doc map[string]any) {
				doc["when"] = map[string]any{"all": []any{
					map[string]any{"signal": "ship.docked", "op": "eq", "value": "yes"},
				}}
			},
			kind: types.KindBadValue,
		},
		{
			name: "enum eq with undeclared value",
			mutate: func(doc map[string]any) {
				doc["when"] = map[string]any{"all": []any{
					map[string]any{"signal": "hardpoints", "op": "eq", "value": "stowed"},
				}}
			},
			kind: types.KindBadValue,
		},
		{
			name: "enum in with bare string instead of list",
			mutate: func(doc map[string]any) {
				doc["when"] = map[string]any{"all": []any{
					map[string]any{"signal": "hardpoints", "op": "in", "value": "deployed"},
				}}
			},
			kind: types.KindBadValue,
		},
		{
			name: "enum in with undeclared list entry",
			mutate: func(doc map[string]any) {
				doc["when"] = map[string]any{"all": []any{
					map[string]any{"signal": "hardpoints", "op": "in", "value": []any{"deployed", "stowed"}},
				}}
			},
			kind: types.KindBadValue,
		},
		{
			name: "number in with non-list value",
			mutate: func(doc map[string]any) {
				doc["when"] = map[string]any{"all": []any{
					map[string]any{"signal": "ship.fuel.level", "op": "in", "value": 4},
				}}
			},
			kind: types.KindBadValue,
		},
		{
			name:   "then not a list",
			mutate: func(doc map[string]any) { doc["then"] = "beep" },
			kind:   types.KindBadActions,
		},
		{
			name: "empty action mapping",
			mutate: func(doc map[string]any) {
				doc["else"] = []any{map[string]any{}}
			},
			kind: types.KindBadActions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validRuleDoc()
			tt.mutate(doc)

			err := ValidateRule(cat, doc, 0)
			if err == nil {
				t.Fatal("ValidateRule() = nil, expected error")
			}
			var verr *types.RuleValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateRule() error type = %T", err)
			}
			if verr.Kind != tt.kind {
				t.Errorf("kind = %q, expected %q (msg: %s)", verr.Kind, tt.kind, verr.Msg)
			}
		})
	}
}

func TestValidateRule_AcceptedShapes(t *testing.T) {
	cat := testCatalog(t)

	tests := []struct {
		name string
		doc  map[string]any
	}{
		{
			name: "title only, no when or actions",
			doc:  map[string]any{"title": "Noop"},
		},
		{
			name: "enum in with declared single-element list",
			doc: map[string]any{
				"title": "Combat ready",
				"when": map[string]any{"any": []any{
					map[string]any{"signal": "hardpoints", "op": "in", "value": []any{"deployed"}},
				}},
			},
		},
		{
			name: "exists without a value",
			doc: map[string]any{
				"title": "Fuel known",
				"when": map[string]any{"all": []any{
					map[string]any{"signal": "ship.fuel.level", "op": "exists"},
				}},
			},
		},
		{
			name: "number ordered comparison",
			doc: map[string]any{
				"title": "Low fuel",
				"when": map[string]any{"all": []any{
					map[string]any{"signal": "ship.fuel.level", "op": "lt", "value": 8},
				}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateRule(cat, tt.doc, 0); err != nil {
				t.Errorf("ValidateRule() error = %v", err)
			}
		})
	}
}

func TestNormalizeRule(t *testing.T) {
	alloc := types.NewIDAllocator()

	rule, err := normalizeRule(validRuleDoc(), alloc)
	if err != nil {
		t.Fatalf("normalizeRule() error = %v", err)
	}
	if rule.ID != "hardpoints-out" {
		t.Errorf("ID = %q", rule.ID)
	}
	if !rule.Enabled {
		t.Error("Enabled = false, expected default true")
	}
	if len(rule.When.All) != 1 || rule.When.All[0].Signal != "hardpoints" {
		t.Errorf("When.All = %+v", rule.When.All)
	}
	if len(rule.Then) != 1 || len(rule.Else) != 1 {
		t.Errorf("Then/Else lengths = %d/%d", len(rule.Then), len(rule.Else))
	}
	if len(rule.Required) != 1 || rule.Required[0] != "hardpoints" {
		t.Errorf("Required = %v", rule.Required)
	}

	// Same title again: the allocator suffixes.
	again, err := normalizeRule(validRuleDoc(), alloc)
	if err != nil {
		t.Fatalf("normalizeRule() error = %v", err)
	}
	if again.ID != "hardpoints-out-2" {
		t.Errorf("second ID = %q", again.ID)
	}
}

func TestNormalizeRule_ExplicitID(t *testing.T) {
	alloc := types.NewIDAllocator()

	doc := validRuleDoc()
	doc["id"] = "combat-lights"
	doc["enabled"] = false

	rule, err := normalizeRule(doc, alloc)
	if err != nil {
		t.Fatalf("normalizeRule() error = %v", err)
	}
	if rule.ID != "combat-lights" {
		t.Errorf("ID = %q", rule.ID)
	}
	if rule.Enabled {
		t.Error("Enabled = true, expected false")
	}

	// Reusing the explicit id is a duplicate.
	dup := validRuleDoc()
	dup["id"] = "combat-lights"
	if _, err := normalizeRule(dup, alloc); err == nil {
		t.Fatal("normalizeRule() = nil, expected duplicate id error")
	} else {
		var verr *types.RuleValidationError
		if !errors.As(err, &verr) || verr.Kind != types.KindDuplicateID {
			t.Errorf("error = %v, expected kind %q", err, types.KindDuplicateID)
		}
	}
}

func TestParseRuleDoc(t *testing.T) {
	bare := []any{map[string]any{"title": "A"}}
	docs, err := ParseRuleDoc(bare)
	if err != nil || len(docs) != 1 {
		t.Fatalf("bare list: docs = %v, err = %v", docs, err)
	}

	wrapped := map[string]any{"rules": []any{map[string]any{"title": "A"}}}
	docs, err = ParseRuleDoc(wrapped)
	if err != nil || len(docs) != 1 {
		t.Fatalf("wrapped: docs = %v, err = %v", docs, err)
	}

	docs, err = ParseRuleDoc(nil)
	if err != nil || docs != nil {
		t.Fatalf("nil doc: docs = %v, err = %v", docs, err)
	}

	if _, err := ParseRuleDoc("rules"); err == nil {
		t.Error("string doc: expected error")
	}
	if _, err := ParseRuleDoc(map[string]any{"other": 1}); err == nil {
		t.Error("mapping without rules key: expected error")
	}
	if _, err := ParseRuleDoc([]any{"not a mapping"}); err == nil {
		t.Error("non-mapping rule entry: expected error")
	}
}
