package model

import (
	"testing"

	"github.com/artpar/stratum/core/schema"
)

func measureModel(t *testing.T) *Model {
	t.Helper()
	reg := NewRegistry()
	m, err := Compile(schema.Definition{
		Plural:   "measures",
		Singular: "measure",
		Fields: []schema.FieldDef{
			{Name: "name", Spec: schema.String()},
			{Name: "length", Spec: schema.Float()},
			{Name: "count", Spec: schema.Int()},
			{Name: "tags", Spec: schema.List(schema.String())},
		},
	}, reg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return m
}

func TestPredicateComparisons(t *testing.T) {
	m := measureModel(t)
	inst := m.MustInstance(map[string]any{"name": "beam", "length": 30.0, "count": 4})

	cases := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"eq hit", m.F("name").Eq("beam"), true},
		{"eq miss", m.F("name").Eq("bean"), false},
		{"ne", m.F("name").Ne("bean"), true},
		{"ge boundary", m.F("length").Ge(30), true},
		{"gt boundary", m.F("length").Gt(30), false},
		{"lt", m.F("count").Lt(10), true},
		{"le", m.F("count").Le(4), true},
		{"numeric coercion int vs float", m.F("count").Eq(4.0), true},
		{"contains scalar", m.F("name").Contains("ea"), true},
		{"contains miss", m.F("name").Contains("xyz"), false},
	}
	for _, tc := range cases {
		if got := tc.pred.Eval(inst); got != tc.want {
			t.Errorf("%s: Eval = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPredicateAbsentValueNeverMatches(t *testing.T) {
	m := measureModel(t)
	inst := m.MustInstance(map[string]any{"name": "beam"})

	if m.F("length").Eq(nil).Eval(inst) {
		t.Error("nil value matched an equality")
	}
	if m.F("length").Ge(0).Eval(inst) {
		t.Error("nil value matched an ordering comparison")
	}
}

func TestPredicateCombinators(t *testing.T) {
	m := measureModel(t)
	inst := m.MustInstance(map[string]any{"name": "beam", "length": 30.0})

	both := And(m.F("name").Eq("beam"), m.F("length").Ge(20))
	if !both.Eval(inst) {
		t.Error("And of two true predicates failed")
	}
	either := Or(m.F("name").Eq("nope"), m.F("length").Ge(20))
	if !either.Eval(inst) {
		t.Error("Or with one true predicate failed")
	}
	neither := Or(m.F("name").Eq("nope"), m.F("length").Lt(20))
	if neither.Eval(inst) {
		t.Error("Or of two false predicates matched")
	}
}

func TestPredicateContainsCollection(t *testing.T) {
	m := measureModel(t)
	inst := m.MustInstance(map[string]any{"tags": []string{"oak", "long"}})

	if !m.F("tags").Contains("oa").Eval(inst) {
		t.Error("collection contains missed a matching element")
	}
	if m.F("tags").Contains("pine").Eval(inst) {
		t.Error("collection contains matched a missing element")
	}
}
