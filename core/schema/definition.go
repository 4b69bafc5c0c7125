package schema

import "strings"

// DefaultNamespace is used when a definition does not name one. The unique
// name of a model is "<namespace>_<plural>" and doubles as its storage
// identifier, so it must be stable for the lifetime of the process.
const DefaultNamespace = "stratum"

// Definition is a raw model definition: an ordered sequence of named, typed
// fields plus the naming triple the compiler derives storage identifiers
// from.
type Definition struct {
	// Plural is the plural noun for the entity ("houses").
	Plural string

	// Singular is the singular noun ("house").
	Singular string

	// Namespace scopes the unique name. Defaults to DefaultNamespace.
	Namespace string

	// Doc is free-form documentation carried onto the compiled model.
	Doc string

	// Fields are the declared fields, in declaration order.
	Fields []FieldDef
}

// FieldDef is one declared field. Fields whose name starts with "_" are
// hidden from record serialization unless explicitly requested.
type FieldDef struct {
	Name string
	Spec FieldSpec
}

// UniqueName derives the globally unique storage identifier.
func (d Definition) UniqueName() string {
	ns := d.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return ns + "_" + d.Plural
}

// Validate checks the parts of a definition that do not need a registry.
func (d Definition) Validate() error {
	if d.Plural == "" {
		return &SchemaError{Model: d.Singular, Reason: "missing plural name"}
	}
	if d.Singular == "" {
		return &SchemaError{Model: d.Plural, Reason: "missing singular name"}
	}
	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" {
			return &SchemaError{Model: d.Plural, Reason: "field with empty name"}
		}
		if strings.EqualFold(f.Name, "pk") && !hasPrimaryKey(f.Spec) {
			// "pk" is the canonical identity alias; a declared field may own
			// it only by carrying the PrimaryKey modifier.
			return &SchemaError{Model: d.Plural, Field: f.Name, Reason: "the name pk is reserved for the identity"}
		}
		if seen[f.Name] {
			return &SchemaError{Model: d.Plural, Field: f.Name, Reason: "duplicate field name"}
		}
		seen[f.Name] = true
		if f.Spec == nil {
			return &SchemaError{Model: d.Plural, Field: f.Name, Reason: "missing type"}
		}
	}
	return nil
}

func hasPrimaryKey(spec FieldSpec) bool {
	for {
		mod, ok := spec.(*Modifier)
		if !ok {
			return false
		}
		if mod.kind == modPrimaryKey {
			return true
		}
		spec = mod.inner
	}
}
