package schema

// DefaultIndexLength is the prefix length used for indexes on string and
// bytes columns when the caller does not pick one.
const DefaultIndexLength = 64

// FieldSpec is the declared type of a field: either a bare Type or a
// Modifier wrapping another FieldSpec. Modifiers compose left-to-right
// (outermost first).
type FieldSpec interface {
	fieldSpec()
}

type modifierKind int

const (
	modPrimaryKey modifierKind = iota
	modUnique
	modNonNullable
	modIndexed
	modRelation
)

// Modifier wraps a field's declared type with a storage constraint or a
// relation override.
type Modifier struct {
	kind        modifierKind
	inner       FieldSpec
	indexLength int
	relation    Relation
}

func (m *Modifier) fieldSpec() {}

// Inner returns the wrapped spec.
func (m *Modifier) Inner() FieldSpec { return m.inner }

// PrimaryKey marks the field as the model's identity. Integer primary keys
// auto-increment unless an inner modifier already decided otherwise.
func PrimaryKey(inner FieldSpec) *Modifier {
	return &Modifier{kind: modPrimaryKey, inner: inner}
}

// Unique marks the field's column as unique.
func Unique(inner FieldSpec) *Modifier {
	return &Modifier{kind: modUnique, inner: inner}
}

// NonNullable marks the field's column as non nullable.
func NonNullable(inner FieldSpec) *Modifier {
	return &Modifier{kind: modNonNullable, inner: inner}
}

// Indexed builds a storage index for the field. String and bytes columns get
// a prefix index of DefaultIndexLength.
func Indexed(inner FieldSpec) *Modifier {
	return &Modifier{kind: modIndexed, inner: inner, indexLength: DefaultIndexLength}
}

// IndexedLen is Indexed with an explicit prefix length.
func IndexedLen(inner FieldSpec, length int) *Modifier {
	return &Modifier{kind: modIndexed, inner: inner, indexLength: length}
}

// WithRelation overrides the inferred relation kind of the field. Composing
// two relation overrides with distinct kinds is a compile-time conflict.
func WithRelation(rel Relation, inner FieldSpec) *Modifier {
	return &Modifier{kind: modRelation, inner: inner, relation: rel}
}
