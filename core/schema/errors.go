package schema

import "fmt"

// ConflictError reports an incompatible modifier composition on a field.
// It is fatal to model compilation and never recovered.
type ConflictError struct {
	Field  string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("field %q: conflicting modifiers: %s", e.Field, e.Reason)
}

// SchemaError reports a model definition the compiler cannot map to a
// physical schema (unmappable scalar type, missing identity type, unbound
// model reference). Fatal to model compilation.
type SchemaError struct {
	Model  string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("model %q: %s", e.Model, e.Reason)
	}
	return fmt.Sprintf("model %q field %q: %s", e.Model, e.Field, e.Reason)
}
