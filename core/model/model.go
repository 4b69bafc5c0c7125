// Package model compiles raw schema definitions into finalized, queryable
// model descriptors: identity assignment, relation binding, and the implicit
// back-references that make the relation graph navigable from both sides.
package model

import (
	"strings"

	"github.com/artpar/stratum/core/schema"
)

// Field is one compiled field of a model.
type Field struct {
	Name     string
	Resolved schema.ResolvedField

	// Target is the bound relation target. Nil for scalar fields and for
	// junction-backed scalar collections.
	Target *Model
}

// IsRelation reports whether the field relates to another model. Scalar
// collections resolve to a one-to-many relation kind but have no model
// target; they are junction-backed, not relations between models.
func (f Field) IsRelation() bool {
	return f.Resolved.Relation != schema.RelationNone && f.Target != nil
}

// IsJunction reports whether the field is a scalar collection backed by a
// junction table.
func (f Field) IsJunction() bool {
	return f.Resolved.Relation == schema.RelationOneToMany && f.Target == nil
}

// Hidden reports whether the field is excluded from records by default.
func (f Field) Hidden() bool { return strings.HasPrefix(f.Name, "_") }

// Inverse is the implicit, non-declared side of a relation, registered on
// the target model by the compiler.
type Inverse struct {
	// Name of the back-reference as seen on this model: the owner's plural
	// name for a collection inverse, the owner's singular name otherwise.
	Name string

	// Owner is the model that declared the relation.
	Owner *Model

	// Field is the declaring field name on Owner.
	Field string

	// Collection is true for the inverse of a many-to-one relation.
	Collection bool
}

// Model is a compiled entity type: ordered field list, identity, relation
// map, and the back-references other models registered on it.
type Model struct {
	def        schema.Definition
	uniqueName string

	fields     []Field
	fieldIndex map[string]int

	// pkField is the field holding the identity. pkDeclared records whether
	// the user declared it; otherwise it was synthesized.
	pkField    string
	pkDeclared bool

	inverses     map[string]Inverse
	inverseOrder []string

	// related exposes relation-target models through this model, keyed by
	// their singular name.
	related map[string]*Model

	// superModels are models this one was mounted under as a subgroup.
	superModels []*Model
}

// PKName is the canonical identity field name. A declared identity with a
// different name keeps its own name as an alias target.
const PKName = "pk"

func (m *Model) UniqueName() string   { return m.uniqueName }
func (m *Model) PluralName() string   { return m.def.Plural }
func (m *Model) SingularName() string { return m.def.Singular }
func (m *Model) Doc() string          { return m.def.Doc }

// Fields returns the compiled fields in declaration order, identity first
// when it was synthesized.
func (m *Model) Fields() []Field { return m.fields }

// Field looks a field up by name. The canonical alias "pk" always resolves
// to the identity field.
func (m *Model) Field(name string) (Field, bool) {
	if name == PKName {
		name = m.pkField
	}
	i, ok := m.fieldIndex[name]
	if !ok {
		return Field{}, false
	}
	return m.fields[i], true
}

// PKField returns the identity field.
func (m *Model) PKField() Field {
	f, _ := m.Field(m.pkField)
	return f
}

// PKFieldName returns the declared name of the identity field ("pk" when
// synthesized).
func (m *Model) PKFieldName() string { return m.pkField }

// PKDeclared reports whether the identity was declared by the definition
// rather than synthesized.
func (m *Model) PKDeclared() bool { return m.pkDeclared }

// Inverse looks up a back-reference registered on this model.
func (m *Model) Inverse(name string) (Inverse, bool) {
	inv, ok := m.inverses[name]
	return inv, ok
}

// Inverses returns the registered back-references in registration order.
func (m *Model) Inverses() []Inverse {
	out := make([]Inverse, 0, len(m.inverseOrder))
	for _, name := range m.inverseOrder {
		out = append(out, m.inverses[name])
	}
	return out
}

// Related returns a relation-target model addressed through this one by its
// singular name.
func (m *Model) Related(singular string) (*Model, bool) {
	t, ok := m.related[singular]
	return t, ok
}

// RelationTo returns the name of a declared field whose resolved target is
// other, or "" if this model declares no such field. Used by group
// navigation before falling back to back-reference names.
func (m *Model) RelationTo(other *Model) string {
	for _, f := range m.fields {
		if f.Target == other {
			return f.Name
		}
	}
	return ""
}

// SuperModels returns the models this one is mounted under.
func (m *Model) SuperModels() []*Model { return m.superModels }

// AddSuperModel records other as a super-model of m. Called by the group
// layer when a subgroup class is declared.
func (m *Model) AddSuperModel(other *Model) {
	for _, s := range m.superModels {
		if s == other {
			return
		}
	}
	m.superModels = append(m.superModels, other)
}

func (m *Model) isSuperModel(other *Model) bool {
	for _, s := range m.superModels {
		if s == other {
			return true
		}
	}
	return false
}

// registerInverse is called by the compiler of an owning model.
func (m *Model) registerInverse(inv Inverse) {
	if _, exists := m.inverses[inv.Name]; !exists {
		m.inverseOrder = append(m.inverseOrder, inv.Name)
	}
	m.inverses[inv.Name] = inv
}
