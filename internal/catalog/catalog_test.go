package catalog

import (
	"errors"
	"reflect"
	"testing"

	"github.com/audumla/signalrules/internal/types"
)

// testDoc builds a minimal valid catalog document. Tests mutate the copy.
func testDoc() map[string]any {
	operators := map[string]any{}
	for _, token := range []string{"eq", "ne", "in", "nin", "lt", "lte", "gt", "gte", "contains", "exists"} {
		operators[token] = map[string]any{"symbol": token}
	}
	return map[string]any{
		"ui_tiers": map[string]any{
			"core":   map[string]any{"label": "Core"},
			"detail": map[string]any{"label": "Detail"},
		},
		"operators": operators,
		"bitfields": map[string]any{
			"ship_flags": "dashboard.Flags",
		},
		"signals": map[string]any{
			"hardpoints": map[string]any{
				"type":  "enum",
				"title": "Hardpoints",
				"ui":    map[string]any{"tier": "core", "category": "ship"},
				"values": []any{"deployed", "retracted"},
				"derive": map[string]any{
					"op":   "map",
					"from": map[string]any{"op": "flag", "field": "ship_flags", "bit": 6},
					"table": map[string]any{
						"true":  "deployed",
						"false": "retracted",
					},
				},
			},
			"ship": map[string]any{
				"docked": map[string]any{
					"type":   "bool",
					"title":  "Docked",
					"ui":     map[string]any{"tier": "detail"},
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
			"session_started": map[string]any{
				"type":   "bool",
				"title":  "Session started",
				"ui":     map[string]any{"tier": "advanced"},
				"derive": map[string]any{"op": "recent", "event": "LoadGame", "within_seconds": 60},
			},
		},
	}
}

func TestFromSource_Valid(t *testing.T) {
	cat, err := FromSource(testDoc())
	if err != nil {
		t.Fatalf("FromSource() error = %v, want nil", err)
	}

	expected := []string{"hardpoints", "session_started", "ship.docked", "ship.fuel.level"}
	if got := cat.Names(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Names() = %v, expected %v", got, expected)
	}

	if !cat.SignalExists("ship.fuel.level") {
		t.Error("flattened nested signal not found")
	}
	if cat.SignalExists("ship.fuel") {
		t.Error("grouping container must not be a signal")
	}
	if !cat.OperatorExists("nin") {
		t.Error("OperatorExists(nin) = false")
	}
	if cat.OperatorExists("matches") {
		t.Error("OperatorExists(matches) = true for undeclared operator")
	}

	if sigType, _ := cat.SignalType("hardpoints"); sigType != types.SignalEnum {
		t.Errorf("SignalType(hardpoints) = %v", sigType)
	}
	if values := cat.SignalValues("hardpoints"); !reflect.DeepEqual(values, []string{"deployed", "retracted"}) {
		t.Errorf("SignalValues(hardpoints) = %v", values)
	}
	if values := cat.SignalValues("ship.docked"); values != nil {
		t.Errorf("SignalValues on non-enum = %v, expected nil", values)
	}

	if got := cat.SignalsByTier("core"); !reflect.DeepEqual(got, []string{"hardpoints"}) {
		t.Errorf("SignalsByTier(core) = %v", got)
	}
	if got := cat.SignalsByTier("detail"); !reflect.DeepEqual(got, []string{"ship.docked", "ship.fuel.level"}) {
		t.Errorf("SignalsByTier(detail) = %v", got)
	}

	if path, ok := cat.BitfieldPath("ship_flags"); !ok || path != "dashboard.Flags" {
		t.Errorf("BitfieldPath(ship_flags) = %q, %v", path, ok)
	}

	if got := cat.Tiers(); !reflect.DeepEqual(got, []string{"core", "detail"}) {
		t.Errorf("Tiers() = %v", got)
	}
	if got := cat.OperatorSymbol("eq"); got != "eq" {
		t.Errorf("OperatorSymbol(eq) = %q", got)
	}
	if tree := cat.Tree(); tree == nil || tree["hardpoints"] == nil {
		t.Error("Tree() must retain the hierarchical document view")
	}
}

func TestFromSource_AllKnownEvents(t *testing.T) {
	doc := testDoc()
	signals := doc["signals"].(map[string]any)
	signals["last_jump"] = map[string]any{
		"type":   "bool",
		"title":  "Jumped",
		"ui":     map[string]any{"tier": "detail"},
		"derive": map[string]any{"op": "event", "name": "FSDJump"},
	}
	signals["combat_flag"] = map[string]any{
		"type":   "bool",
		"title":  "Under attack",
		"ui":     map[string]any{"tier": "detail"},
		"derive": map[string]any{"op": "match", "property": "Attacker", "value": true, "event": "UnderAttack"},
	}

	cat, err := FromSource(doc)
	if err != nil {
		t.Fatalf("FromSource() error = %v", err)
	}

	expected := []string{"FSDJump", "LoadGame", "UnderAttack"}
	if got := cat.AllKnownEvents(); !reflect.DeepEqual(got, expected) {
		t.Errorf("AllKnownEvents() = %v, expected %v", got, expected)
	}
}

func TestFromSource_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc map[string]any)
	}{
		{
			name:   "missing ui_tiers",
			mutate: func(doc map[string]any) { delete(doc, "ui_tiers") },
		},
		{
			name: "missing detail tier",
			mutate: func(doc map[string]any) {
				doc["ui_tiers"] = map[string]any{"core": map[string]any{}}
			},
		},
		{
			name: "missing required operator",
			mutate: func(doc map[string]any) {
				delete(doc["operators"].(map[string]any), "contains")
			},
		},
		{
			name:   "missing bitfields section",
			mutate: func(doc map[string]any) { delete(doc, "bitfields") },
		},
		{
			name:   "signals not a mapping",
			mutate: func(doc map[string]any) { doc["signals"] = []any{} },
		},
		{
			name:   "no signals",
			mutate: func(doc map[string]any) { doc["signals"] = map[string]any{} },
		},
		{
			name: "signal missing title",
			mutate: func(doc map[string]any) {
				delete(doc["signals"].(map[string]any)["hardpoints"].(map[string]any), "title")
			},
		},
		{
			name: "signal missing derive",
			mutate: func(doc map[string]any) {
				delete(doc["signals"].(map[string]any)["hardpoints"].(map[string]any), "derive")
			},
		},
		{
			name: "invalid signal type",
			mutate: func(doc map[string]any) {
				doc["signals"].(map[string]any)["hardpoints"].(map[string]any)["type"] = "flags"
			},
		},
		{
			name: "invalid ui tier",
			mutate: func(doc map[string]any) {
				doc["signals"].(map[string]any)["hardpoints"].(map[string]any)["ui"] = map[string]any{"tier": "hidden"}
			},
		},
		{
			name: "enum without values",
			mutate: func(doc map[string]any) {
				delete(doc["signals"].(map[string]any)["hardpoints"].(map[string]any), "values")
			},
		},
		{
			name: "derive with unknown op",
			mutate: func(doc map[string]any) {
				doc["signals"].(map[string]any)["hardpoints"].(map[string]any)["derive"] = map[string]any{"op": "regex", "path": "x"}
			},
		},
		{
			name: "flag references undeclared alias",
			mutate: func(doc map[string]any) {
				doc["signals"].(map[string]any)["session_started"].(map[string]any)["derive"] = map[string]any{
					"op": "flag", "field": "srv_flags", "bit": 1,
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDoc()
			tt.mutate(doc)
			_, err := FromSource(doc)
			if err == nil {
				t.Fatal("FromSource() error = nil, want CatalogError")
			}
			var catErr *types.CatalogError
			if !errors.As(err, &catErr) {
				t.Errorf("error type = %T, want *types.CatalogError", err)
			}
		})
	}
}

func TestParseSpec_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		node    any
		wantErr error
	}{
		{
			name:    "unknown op",
			node:    map[string]any{"op": "lookup", "path": "x"},
			wantErr: types.ErrUnknownDeriveOp,
		},
		{
			name:    "not a mapping",
			node:    "flag",
			wantErr: types.ErrBadDeriveShape,
		},
		{
			name:    "flag missing bit",
			node:    map[string]any{"op": "flag", "field": "ship_flags"},
			wantErr: types.ErrBadDeriveShape,
		},
		{
			name:    "map missing table",
			node:    map[string]any{"op": "map", "from": map[string]any{"op": "path", "path": "x"}},
			wantErr: types.ErrBadDeriveShape,
		},
		{
			name:    "first_match empty cases",
			node:    map[string]any{"op": "first_match", "cases": []any{}},
			wantErr: types.ErrBadDeriveShape,
		},
		{
			name: "nested unknown op surfaces",
			node: map[string]any{
				"op":         "and",
				"conditions": []any{map[string]any{"op": "bogus"}},
			},
			wantErr: types.ErrUnknownDeriveOp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSpec(tt.node)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseSpec() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSpec_LegacyCompareShorthand(t *testing.T) {
	spec, err := ParseSpec(map[string]any{"op": "lt", "path": "Fuel.FuelMain", "value": 4})
	if err != nil {
		t.Fatalf("ParseSpec() error = %v", err)
	}
	cmp, ok := spec.(Compare)
	if !ok {
		t.Fatalf("spec type = %T, want Compare", spec)
	}
	if _, ok := cmp.Left.(Path); !ok {
		t.Errorf("Left type = %T, want Path", cmp.Left)
	}
	lit, ok := cmp.Right.(Literal)
	if !ok {
		t.Fatalf("Right type = %T, want Literal", cmp.Right)
	}
	if lit.Value != 4 {
		t.Errorf("Right literal = %v, want 4", lit.Value)
	}
}
