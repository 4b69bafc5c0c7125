package model

import (
	"bytes"
	"strings"
	"time"
)

// Op is a comparison operator over a field value.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	// OpContains is substring containment for strings and bytes; over a
	// scalar collection it matches when any element contains the operand.
	OpContains
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpContains:
		return "contains"
	}
	return "?"
}

type predicateKind int

const (
	predCompare predicateKind = iota
	predAnd
	predOr
)

// Predicate is a structured condition over one model's instances. Keeping
// it data rather than an opaque function lets memory backends evaluate it
// directly and SQL backends translate it.
type Predicate struct {
	kind  predicateKind
	Field string
	Op    Op
	Value any
	Parts []Predicate
}

// And combines predicates with logical AND.
func And(parts ...Predicate) Predicate { return Predicate{kind: predAnd, Parts: parts} }

// Or combines predicates with logical OR.
func Or(parts ...Predicate) Predicate { return Predicate{kind: predOr, Parts: parts} }

// IsCompare reports whether the predicate is a single field comparison.
func (p Predicate) IsCompare() bool { return p.kind == predCompare }

// IsAnd and IsOr expose the combinator kind to backend translators.
func (p Predicate) IsAnd() bool { return p.kind == predAnd }
func (p Predicate) IsOr() bool  { return p.kind == predOr }

// FieldRef is a predicate-producing accessor for one field of a model.
type FieldRef struct {
	model *Model
	name  string
}

// F returns the predicate accessor for a field.
func (m *Model) F(name string) FieldRef { return FieldRef{model: m, name: name} }

func (f FieldRef) cmp(op Op, v any) Predicate {
	return Predicate{kind: predCompare, Field: f.name, Op: op, Value: v}
}

func (f FieldRef) Eq(v any) Predicate { return f.cmp(OpEq, v) }
func (f FieldRef) Ne(v any) Predicate { return f.cmp(OpNe, v) }
func (f FieldRef) Lt(v any) Predicate { return f.cmp(OpLt, v) }
func (f FieldRef) Le(v any) Predicate { return f.cmp(OpLe, v) }
func (f FieldRef) Gt(v any) Predicate { return f.cmp(OpGt, v) }
func (f FieldRef) Ge(v any) Predicate { return f.cmp(OpGe, v) }

// Contains matches substring containment.
func (f FieldRef) Contains(sub string) Predicate { return f.cmp(OpContains, sub) }

// Eval evaluates the predicate against one instance. Absent (nil) values
// never match a comparison.
func (p Predicate) Eval(inst *Instance) bool {
	switch p.kind {
	case predAnd:
		for _, part := range p.Parts {
			if !part.Eval(inst) {
				return false
			}
		}
		return true
	case predOr:
		for _, part := range p.Parts {
			if part.Eval(inst) {
				return true
			}
		}
		return false
	}

	v := inst.Get(p.Field)
	if v == nil {
		return false
	}

	if p.Op == OpContains {
		return containsValue(v, p.Value)
	}

	// Exact-match comparisons short-circuit on the raw stored values.
	if p.Op == OpEq || p.Op == OpNe {
		eq := looseEqual(v, p.Value)
		if p.Op == OpEq {
			return eq
		}
		return !eq
	}

	c, ok := compareValues(v, p.Value)
	if !ok {
		return false
	}
	switch p.Op {
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

func containsValue(v, operand any) bool {
	sub, ok := operand.(string)
	if !ok {
		return false
	}
	switch val := v.(type) {
	case string:
		return strings.Contains(val, sub)
	case []byte:
		return bytes.Contains(val, []byte(sub))
	case []string:
		for _, item := range val {
			if strings.Contains(item, sub) {
				return true
			}
		}
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok && strings.Contains(s, sub) {
				return true
			}
		}
	}
	return false
}

func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return false
}

// compareValues orders two scalar values, coercing across the numeric kinds
// a definition file or a database driver may produce.
func compareValues(a, b any) (int, bool) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Compare(av, bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case av:
				return 1, true
			}
			return -1, true
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
