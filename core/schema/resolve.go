package schema

// Relation is the resolved relation kind of a field.
type Relation int

const (
	RelationNone Relation = iota

	// RelationOneToMany: this model owns a collection of the target.
	RelationOneToMany

	// RelationManyToOne: this model references one instance of the target.
	RelationManyToOne
)

func (r Relation) String() string {
	switch r {
	case RelationOneToMany:
		return "one-to-many"
	case RelationManyToOne:
		return "many-to-one"
	}
	return "none"
}

// ColumnOptions is the merged constraint set of a resolved field.
type ColumnOptions struct {
	PrimaryKey  bool
	Unique      bool
	NonNullable bool

	// AutoIncrement is tri-state: nil means no modifier decided, and the
	// PrimaryKey finalize hook may set it for integer identities.
	AutoIncrement *bool
}

// IndexSpec describes one index requested on the field's column. A positive
// PrefixLength applies to string and bytes columns.
type IndexSpec struct {
	PrefixLength int
}

// ResolvedField is the canonical output of resolving one field's modifier
// chain: the unwrapped type, the relation kind, and the merged constraints.
type ResolvedField struct {
	Name     string
	Type     Type
	Relation Relation
	Options  ColumnOptions
	Indexes  []IndexSpec

	relationExplicit bool
}

// RelationExplicit reports whether the relation kind was asserted by a
// modifier rather than inferred from the type shape.
func (f ResolvedField) RelationExplicit() bool { return f.relationExplicit }

// Resolve walks a field's modifier chain outer-to-inner, accumulating
// constraints and unwrapping the working type at each step, then infers the
// relation kind from the remaining raw type: a list implies one-to-many with
// the element as the unwrapped type, a model reference implies many-to-one,
// anything else is a plain scalar column. Finalize hooks run after the
// relation kind is known, in chain order.
//
// Two modifiers asserting distinct relation kinds, or a primary key combined
// with a one-to-many shape, fail with ConflictError.
func Resolve(name string, spec FieldSpec) (ResolvedField, error) {
	out := ResolvedField{Name: name}

	var chain []*Modifier
	working := spec
	for {
		mod, ok := working.(*Modifier)
		if !ok {
			break
		}
		chain = append(chain, mod)
		if err := out.merge(mod); err != nil {
			return ResolvedField{}, err
		}
		working = mod.inner
	}

	raw, ok := working.(Type)
	if !ok {
		return ResolvedField{}, &SchemaError{Field: name, Reason: "modifier chain does not terminate in a type"}
	}
	out.Type = raw

	switch {
	case raw.Kind == KindList:
		if err := out.setRelation(RelationOneToMany, false); err != nil {
			return ResolvedField{}, err
		}
		out.Type = *raw.Elem
	case raw.IsModel():
		if err := out.setRelation(RelationManyToOne, false); err != nil {
			return ResolvedField{}, err
		}
	}

	if out.Options.PrimaryKey && out.Relation == RelationOneToMany {
		return ResolvedField{}, &ConflictError{Field: name, Reason: "a one-to-many collection cannot serve as the identity"}
	}

	for _, mod := range chain {
		mod.finalize(&out)
	}

	return out, nil
}

func (f *ResolvedField) merge(mod *Modifier) error {
	switch mod.kind {
	case modPrimaryKey:
		f.Options.PrimaryKey = true
	case modUnique:
		f.Options.Unique = true
	case modNonNullable:
		f.Options.NonNullable = true
	case modIndexed:
		// Appended by the finalize hook, once the unwrapped type is known.
	case modRelation:
		if err := f.setRelation(mod.relation, true); err != nil {
			return err
		}
	}
	if f.Options.PrimaryKey && f.Relation == RelationOneToMany {
		return &ConflictError{Field: f.Name, Reason: "a one-to-many collection cannot serve as the identity"}
	}
	return nil
}

func (f *ResolvedField) setRelation(rel Relation, explicit bool) error {
	if f.Relation != RelationNone && f.Relation != rel {
		return &ConflictError{
			Field:  f.Name,
			Reason: "more than one relation kind requested (" + f.Relation.String() + " and " + rel.String() + ")",
		}
	}
	f.Relation = rel
	if explicit {
		f.relationExplicit = true
	}
	return nil
}

// finalize runs after the relation kind and unwrapped type are known, so
// later hooks observe earlier ones' effects.
func (m *Modifier) finalize(f *ResolvedField) {
	switch m.kind {
	case modPrimaryKey:
		if f.Type.Kind == KindInt && f.Options.AutoIncrement == nil {
			t := true
			f.Options.AutoIncrement = &t
		}
	case modIndexed:
		spec := IndexSpec{}
		switch f.Type.Kind {
		case KindString, KindBytes:
			spec.PrefixLength = m.indexLength
		}
		f.Indexes = append(f.Indexes, spec)
	}
}
