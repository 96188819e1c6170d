package rules

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/audumla/signalrules/internal/types"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		value    any
		target   any
		expected bool
	}{
		{name: "eq strings", op: "eq", value: "deployed", target: "deployed", expected: true},
		{name: "eq mismatch", op: "eq", value: "deployed", target: "retracted", expected: false},
		{name: "eq int float tolerance", op: "eq", value: 3, target: float64(3), expected: true},
		{name: "eq cross type", op: "eq", value: "3", target: float64(3), expected: false},
		{name: "ne strings", op: "ne", value: "deployed", target: "retracted", expected: true},
		{name: "in member", op: "in", value: "b", target: []any{"a", "b"}, expected: true},
		{name: "in non-member", op: "in", value: "c", target: []any{"a", "b"}, expected: false},
		{name: "in non-list target", op: "in", value: "a", target: "a", expected: false},
		{name: "nin non-member", op: "nin", value: "c", target: []any{"a", "b"}, expected: true},
		{name: "lt numeric", op: "lt", value: float64(2), target: 4, expected: true},
		{name: "lte equal", op: "lte", value: float64(4), target: 4, expected: true},
		{name: "gt string lexical", op: "gt", value: "harmless", target: "elite", expected: true},
		{name: "gte mixed types", op: "gte", value: float64(2), target: "two", expected: false},
		{name: "contains substring", op: "contains", value: "Jameson Memorial", target: "Memorial", expected: true},
		{name: "contains list element", op: "contains", value: []any{"food", "metals"}, target: "food", expected: true},
		{name: "contains miss", op: "contains", value: "Jameson", target: "Memorial", expected: false},
		{name: "exists resolved", op: "exists", value: "anything", target: nil, expected: true},
		{name: "exists false value", op: "exists", value: false, target: nil, expected: true},
		{name: "unknown operator token", op: "matches", value: "a", target: "a", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.op, tt.value, tt.target); got != tt.expected {
				t.Errorf("Compare(%q, %v, %v) = %v, expected %v", tt.op, tt.value, tt.target, got, tt.expected)
			}
		})
	}
}

func TestCompare_UnknownNeverSatisfies(t *testing.T) {
	// Including the negated operators: Unknown is "cannot determine", not
	// "not equal".
	ops := []string{"eq", "ne", "in", "nin", "lt", "lte", "gt", "gte", "contains", "exists"}
	for _, op := range ops {
		if Compare(op, types.Unknown, "anything") {
			t.Errorf("Compare(%q, Unknown, ...) = true", op)
		}
		if Compare(op, types.Unknown, []any{"anything"}) {
			t.Errorf("Compare(%q, Unknown, list) = true", op)
		}
	}
}

func TestCompareProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("unknown fails every operator against any target", prop.ForAll(
		func(op string, target string) bool {
			return !Compare(op, types.Unknown, target)
		},
		gen.OneConstOf("eq", "ne", "in", "nin", "lt", "lte", "gt", "gte", "contains", "exists"),
		gen.AnyString(),
	))

	properties.Property("eq and ne are complementary for resolved strings", prop.ForAll(
		func(value string, target string) bool {
			return Compare("eq", value, target) != Compare("ne", value, target)
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("in and nin are complementary for resolved values", prop.ForAll(
		func(value string, list []string) bool {
			target := make([]any, len(list))
			for i, s := range list {
				target[i] = s
			}
			return Compare("in", value, target) != Compare("nin", value, target)
		},
		gen.AnyString(),
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}

func TestMatchWhen(t *testing.T) {
	signals := map[string]any{
		"hardpoints":     "deployed",
		"ship.docked":    false,
		"ship.fuel.pct":  float64(12),
		"session.active": types.Unknown,
	}

	tests := []struct {
		name     string
		when     types.When
		expected bool
	}{
		{
			name:     "empty when matches vacuously",
			when:     types.When{},
			expected: true,
		},
		{
			name: "all conjunctive",
			when: types.When{All: []types.Condition{
				{Signal: "hardpoints", Op: "eq", Value: "deployed"},
				{Signal: "ship.docked", Op: "eq", Value: false},
			}},
			expected: true,
		},
		{
			name: "all fails on one miss",
			when: types.When{All: []types.Condition{
				{Signal: "hardpoints", Op: "eq", Value: "deployed"},
				{Signal: "ship.fuel.pct", Op: "gt", Value: 50},
			}},
			expected: false,
		},
		{
			name: "any needs one hit",
			when: types.When{Any: []types.Condition{
				{Signal: "ship.fuel.pct", Op: "gt", Value: 50},
				{Signal: "hardpoints", Op: "eq", Value: "deployed"},
			}},
			expected: true,
		},
		{
			name: "non-empty any with no hit fails",
			when: types.When{Any: []types.Condition{
				{Signal: "ship.fuel.pct", Op: "gt", Value: 50},
			}},
			expected: false,
		},
		{
			name: "all and any combine",
			when: types.When{
				All: []types.Condition{{Signal: "hardpoints", Op: "eq", Value: "deployed"}},
				Any: []types.Condition{{Signal: "ship.fuel.pct", Op: "lt", Value: 25}},
			},
			expected: true,
		},
		{
			name: "unknown signal in all vetoes",
			when: types.When{All: []types.Condition{
				{Signal: "session.active", Op: "ne", Value: "something"},
			}},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchWhen(tt.when, signals); got != tt.expected {
				t.Errorf("matchWhen() = %v, expected %v", got, tt.expected)
			}
		})
	}
}
