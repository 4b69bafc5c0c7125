package model

import (
	"github.com/artpar/stratum/core/schema"
)

// Registry holds the compiled models of one storage context. It is always
// passed explicitly so isolated model sets can coexist in one process.
type Registry struct {
	byUnique map[string]*Model
	byPlural map[string]*Model
	order    []*Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUnique: make(map[string]*Model),
		byPlural: make(map[string]*Model),
	}
}

// Get returns a model by unique name.
func (r *Registry) Get(uniqueName string) (*Model, bool) {
	m, ok := r.byUnique[uniqueName]
	return m, ok
}

// ByPlural returns a model by plural name.
func (r *Registry) ByPlural(plural string) (*Model, bool) {
	m, ok := r.byPlural[plural]
	return m, ok
}

// All returns the registered models in compilation order.
func (r *Registry) All() []*Model { return r.order }

func (r *Registry) add(m *Model) error {
	if _, dup := r.byUnique[m.uniqueName]; dup {
		return &schema.SchemaError{Model: m.def.Plural, Reason: "a model with unique name " + m.uniqueName + " is already registered"}
	}
	r.byUnique[m.uniqueName] = m
	r.byPlural[m.def.Plural] = m
	r.order = append(r.order, m)
	return nil
}

// Compile resolves every field of def, assigns the identity field, binds
// relation targets, registers the implicit back-references on the targets,
// and adds the finalized model to reg.
//
// Named references must already be present in reg; use CompileSet for
// forward references between definitions. Self-references are bound in a
// second pass once the model exists.
func Compile(def schema.Definition, reg *Registry) (*Model, error) {
	m, pending, err := compileFields(def, reg)
	if err != nil {
		return nil, err
	}
	for _, i := range pending {
		if err := m.bindRelation(i, reg); err != nil {
			return nil, err
		}
	}
	if err := reg.add(m); err != nil {
		return nil, err
	}
	return m, nil
}

// CompileSet compiles a set of definitions that may reference each other by
// name in any order, including forward and self references.
func CompileSet(defs []schema.Definition, reg *Registry) ([]*Model, error) {
	models := make([]*Model, 0, len(defs))
	type pendingBind struct {
		m     *Model
		field int
	}
	var pending []pendingBind

	for _, def := range defs {
		m, fields, err := compileFields(def, reg)
		if err != nil {
			return nil, err
		}
		if err := reg.add(m); err != nil {
			return nil, err
		}
		for _, i := range fields {
			pending = append(pending, pendingBind{m: m, field: i})
		}
		models = append(models, m)
	}

	for _, p := range pending {
		if err := p.m.bindRelation(p.field, reg); err != nil {
			return nil, err
		}
	}
	return models, nil
}

// compileFields runs the resolver over every declared field and synthesizes
// the identity when none is declared. It returns the indexes of relation
// fields whose targets still need binding.
func compileFields(def schema.Definition, reg *Registry) (*Model, []int, error) {
	if err := def.Validate(); err != nil {
		return nil, nil, err
	}

	m := &Model{
		def:        def,
		uniqueName: def.UniqueName(),
		fieldIndex: make(map[string]int),
		inverses:   make(map[string]Inverse),
		related:    make(map[string]*Model),
	}

	var relationFields []int
	for _, fd := range def.Fields {
		resolved, err := schema.Resolve(fd.Name, fd.Spec)
		if err != nil {
			return nil, nil, err
		}

		f := Field{Name: fd.Name, Resolved: resolved}
		switch {
		case resolved.Relation == schema.RelationNone:
			if !resolved.Type.IsScalar() {
				return nil, nil, &schema.SchemaError{
					Model: def.Plural, Field: fd.Name,
					Reason: "type " + resolved.Type.String() + " has no scalar mapping and no relation",
				}
			}
		case resolved.Type.IsModel():
			relationFields = append(relationFields, len(m.fields))
		case resolved.Relation == schema.RelationOneToMany && resolved.Type.IsScalar():
			// Junction-backed scalar collection; no target to bind.
		default:
			return nil, nil, &schema.SchemaError{
				Model: def.Plural, Field: fd.Name,
				Reason: "unsupported relation over type " + resolved.Type.String(),
			}
		}

		if resolved.Options.PrimaryKey {
			if m.pkField != "" {
				return nil, nil, &schema.SchemaError{Model: def.Plural, Field: fd.Name, Reason: "more than one identity field"}
			}
			if !resolved.Type.IsScalar() {
				return nil, nil, &schema.SchemaError{Model: def.Plural, Field: fd.Name, Reason: "identity type cannot be mapped to a native column"}
			}
			m.pkField = fd.Name
			m.pkDeclared = true
		}

		m.fieldIndex[f.Name] = len(m.fields)
		m.fields = append(m.fields, f)
	}

	if m.pkField == "" {
		// Synthesize an auto-incrementing integer identity.
		auto := true
		pk := Field{
			Name: PKName,
			Resolved: schema.ResolvedField{
				Name: PKName,
				Type: schema.Int(),
				Options: schema.ColumnOptions{
					PrimaryKey:    true,
					AutoIncrement: &auto,
				},
			},
		}
		m.fieldIndex[PKName] = len(m.fields)
		m.fields = append(m.fields, pk)
		m.pkField = PKName
	}

	return m, relationFields, nil
}

// bindRelation resolves the target model of one relation field and registers
// the implicit back-reference on it: a many-to-one field gives the target a
// collection inverse named after the owner's plural name; a one-to-many
// field gives it a singular inverse named after the owner's singular name.
func (m *Model) bindRelation(i int, reg *Registry) error {
	f := &m.fields[i]
	t := f.Resolved.Type

	var target *Model
	switch t.Kind {
	case schema.KindSelf:
		target = m
	case schema.KindNamed:
		if t.Name == m.def.Plural {
			target = m
		} else {
			found, ok := reg.ByPlural(t.Name)
			if !ok {
				return &schema.SchemaError{Model: m.def.Plural, Field: f.Name, Reason: "unknown model reference " + t.Name}
			}
			target = found
		}
	case schema.KindModel:
		bound, ok := t.Model.(*Model)
		if !ok {
			return &schema.SchemaError{Model: m.def.Plural, Field: f.Name, Reason: "model reference of foreign origin"}
		}
		target = bound
	default:
		return &schema.SchemaError{Model: m.def.Plural, Field: f.Name, Reason: "relation over non-model type " + t.String()}
	}

	f.Target = target
	m.related[target.def.Singular] = target

	switch f.Resolved.Relation {
	case schema.RelationManyToOne:
		target.registerInverse(Inverse{
			Name:       m.def.Plural,
			Owner:      m,
			Field:      f.Name,
			Collection: true,
		})
	case schema.RelationOneToMany:
		target.registerInverse(Inverse{
			Name:       m.def.Singular,
			Owner:      m,
			Field:      f.Name,
			Collection: false,
		})
	}
	return nil
}
