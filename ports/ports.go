// Package ports defines the contracts between the engine and storage
// backends. Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/stratum/core/model"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ErrNestedUnitOfWork is returned when a unit of work is entered while
// another is active. Nested units are not supported.
var ErrNestedUnitOfWork = errors.New("nested unit of work")

// BackendError wraps an opaque failure from the storage layer. It is
// propagated unchanged and never swallowed; a unit of work rolls back
// before re-raising one.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string { return fmt.Sprintf("backend %s: %v", e.Op, e.Err) }
func (e *BackendError) Unwrap() error { return e.Err }

// View is an immutable handle to a filtered set of one model's instances.
// Every transformation returns a new View; concurrent readers sharing a base
// View never observe mutation.
type View interface {
	// Model returns the model this view ranges over.
	Model() *model.Model

	// All retrieves the instances in the view, in the view's order.
	All(ctx context.Context) ([]*model.Instance, error)

	// PKs retrieves the identities in the view, in the view's order.
	PKs(ctx context.Context) ([]any, error)

	// Where narrows the view to instances matching every predicate.
	Where(ctx context.Context, preds ...model.Predicate) (View, error)

	// Limit truncates enumeration to the first n members in the view's
	// current ordering.
	Limit(n int) View

	// Union combines this view with others into a view over the identity
	// union, first-seen order, no duplicates.
	Union(ctx context.Context, others ...View) (View, error)

	// Count returns the number of elements. For some backends this may
	// diverge from len(All()); such divergence is documented per backend.
	Count(ctx context.Context) (int, error)

	// First and Last return (nil, nil) when the view is empty.
	First(ctx context.Context) (*model.Instance, error)
	Last(ctx context.Context) (*model.Instance, error)

	// FieldValues returns the named field's value for every instance in the
	// view; collection fields are flattened into one deduplicated list.
	FieldValues(ctx context.Context, field string) ([]any, error)
}

// FieldMatches is the per-field outcome of a repository search.
type FieldMatches struct {
	// Matches maps a matching identity to the matched value of the field.
	// Collection fields map to the slice of every matching element.
	Matches map[any]any

	// View is the source view narrowed to the matches. Junction-backed
	// fields legitimately have no narrowed view; it is nil then.
	View View
}

// SearchResult is the outcome of one repository-level search.
type SearchResult struct {
	// MatchingPKs holds every matched identity in first-seen order across
	// the searched fields, duplicates removed.
	MatchingPKs []any

	// Fields holds one entry per searched field name.
	Fields map[string]FieldMatches
}

// Repository abstracts persisting and retrieving one model's instances.
type Repository interface {
	// Model returns the compiled model this repository serves.
	Model() *model.Model

	// View returns all instances of the model.
	View(ctx context.Context) (View, error)

	// ViewOf returns a view restricted to the given identity set,
	// preserving its order.
	ViewOf(ctx context.Context, pks []any) (View, error)

	// Add persists one instance, maintaining referential integrity for its
	// relations. It assigns the identity of a new instance.
	Add(ctx context.Context, inst *model.Instance) error

	// AddAll persists an instance and, recursively, every owned
	// sub-instance reachable through its relation fields.
	AddAll(ctx context.Context, inst *model.Instance) error

	// Remove deletes one instance. Identities of surviving instances are
	// never reassigned.
	Remove(ctx context.Context, inst *model.Instance) error

	// Search performs a substring search for pattern over the named scalar
	// fields, restricted to view.
	Search(ctx context.Context, v View, pattern string, fields []string) (SearchResult, error)

	// SubmodelView translates a descending relation traversal into a view
	// over the target model.
	SubmodelView(ctx context.Context, v View, fieldName string, target *model.Model) (View, error)

	// SupermodelView is the symmetric ascending traversal.
	SupermodelView(ctx context.Context, v View, fieldName string, target *model.Model) (View, error)

	// Related resolves one instance's relation field to the related
	// instances (a single-element slice for a many-to-one field).
	Related(ctx context.Context, inst *model.Instance, fieldName string) ([]*model.Instance, error)

	// UnitOfWork runs fn inside a transactional scope: buffered writes are
	// committed when fn returns nil and rolled back on error or panic, with
	// the transactional resource released on every exit path. Entering a
	// unit of work while one is active fails with ErrNestedUnitOfWork.
	// Writes outside a unit of work are backend-defined commit-per-call.
	UnitOfWork(ctx context.Context, fn func(ctx context.Context) error) error
}

// Backend turns compiled models into physical storage and repositories.
type Backend interface {
	// Register builds the physical schema for a model (tables, columns,
	// constraints, junction tables).
	Register(ctx context.Context, m *model.Model) error

	// Repository returns the repository for a registered model.
	Repository(m *model.Model) (Repository, error)

	// Close releases the backend's resources.
	Close() error
}
