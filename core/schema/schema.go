// Package schema defines the declarative surface for model definitions:
// field types, composable field modifiers, and the resolver that turns a
// modifier chain into a canonical resolved field.
package schema

import (
	"fmt"
	"strings"
)

// TypeKind identifies the shape of a field type.
type TypeKind int

const (
	KindInvalid TypeKind = iota

	// Scalar kinds, mappable to native storage columns.
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindTime

	// KindList is a collection of an element type.
	KindList

	// KindModel references a compiled model directly.
	KindModel

	// KindNamed references a model by its plural name. The reference is
	// bound when the model set is compiled, which also covers forward
	// references in definition files.
	KindNamed

	// KindSelf references the model currently being compiled. The binding
	// is deferred to a second pass once the model exists.
	KindSelf
)

// ModelRef is the minimal interface the schema layer needs from a compiled
// model. It is implemented by core/model.Model; keeping it an interface here
// avoids an import cycle between declaration and compilation.
type ModelRef interface {
	UniqueName() string
	PluralName() string
	SingularName() string
}

// Type describes the declared type of a field.
type Type struct {
	Kind TypeKind

	// Elem is the element type for KindList.
	Elem *Type

	// Model is the referenced model for KindModel.
	Model ModelRef

	// Name is the referenced plural name for KindNamed.
	Name string
}

func Bool() Type   { return Type{Kind: KindBool} }
func Int() Type    { return Type{Kind: KindInt} }
func Float() Type  { return Type{Kind: KindFloat} }
func String() Type { return Type{Kind: KindString} }
func Bytes() Type  { return Type{Kind: KindBytes} }
func Time() Type   { return Type{Kind: KindTime} }

// List declares a collection of elem. A list of a scalar becomes a
// junction-table-backed field; a list of a model becomes a one-to-many
// relation.
func List(elem Type) Type { return Type{Kind: KindList, Elem: &elem} }

// ModelType declares a reference to an already-compiled model, implying a
// many-to-one relation.
func ModelType(m ModelRef) Type { return Type{Kind: KindModel, Model: m} }

// Named declares a reference to a model by plural name, bound at compile
// time.
func Named(plural string) Type { return Type{Kind: KindNamed, Name: plural} }

// Self declares a reference to the model currently being compiled.
func Self() Type { return Type{Kind: KindSelf} }

func (t Type) fieldSpec() {}

// IsScalar reports whether the type maps to a single storage column.
func (t Type) IsScalar() bool {
	switch t.Kind {
	case KindBool, KindInt, KindFloat, KindString, KindBytes, KindTime:
		return true
	}
	return false
}

// IsModel reports whether the type references another model (directly, by
// name, or self).
func (t Type) IsModel() bool {
	switch t.Kind {
	case KindModel, KindNamed, KindSelf:
		return true
	}
	return false
}

// SQLType returns the SQLite column type for a scalar kind. Backends with
// other dialects map kinds themselves.
func (t Type) SQLType() string {
	switch t.Kind {
	case KindBool, KindInt:
		return "INTEGER"
	case KindFloat:
		return "REAL"
	case KindBytes:
		return "BLOB"
	case KindTime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

func (t Type) String() string {
	switch t.Kind {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindTime:
		return "time"
	case KindList:
		return "list<" + t.Elem.String() + ">"
	case KindModel:
		return "model<" + t.Model.PluralName() + ">"
	case KindNamed:
		return "model<" + t.Name + ">"
	case KindSelf:
		return "model<self>"
	}
	return "invalid"
}

// ParseScalarKind maps a type name from a definition file to a scalar kind.
func ParseScalarKind(name string) (TypeKind, error) {
	switch strings.ToLower(name) {
	case "bool":
		return KindBool, nil
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "string":
		return KindString, nil
	case "bytes":
		return KindBytes, nil
	case "time", "timestamp":
		return KindTime, nil
	}
	return KindInvalid, fmt.Errorf("unknown type %q", name)
}
