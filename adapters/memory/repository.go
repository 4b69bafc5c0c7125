package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/core/schema"
	"github.com/artpar/stratum/ports"
)

// Repository is the in-memory implementation of ports.Repository for one
// model.
type Repository struct {
	backend *Backend
	model   *model.Model
}

func (r *Repository) Model() *model.Model { return r.model }

// View returns all instances in insertion order.
func (r *Repository) View(ctx context.Context) (ports.View, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()

	a, err := r.backend.arena(r.model)
	if err != nil {
		return nil, err
	}
	return &view{repo: r, pks: append([]any(nil), a.order...)}, nil
}

// ViewOf returns a view over the given identities, preserving their order
// and skipping identities that do not exist.
func (r *Repository) ViewOf(ctx context.Context, pks []any) (ports.View, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()

	a, err := r.backend.arena(r.model)
	if err != nil {
		return nil, err
	}
	kept := make([]any, 0, len(pks))
	seen := make(map[any]bool, len(pks))
	for _, pk := range pks {
		if seen[pk] {
			continue
		}
		seen[pk] = true
		if _, ok := a.items[pk]; ok {
			kept = append(kept, pk)
		}
	}
	return &view{repo: r, pks: kept}, nil
}

// Add persists one instance and reconciles the back-references of its
// relation targets. A new instance gets the next identity; identities are
// never reused, so gaps from removals persist.
func (r *Repository) Add(ctx context.Context, inst *model.Instance) error {
	if inst.Model() != r.model {
		return &ports.BackendError{Op: "add", Err: fmt.Errorf("instance of %q is not valid for repository %q", inst.Model().UniqueName(), r.model.UniqueName())}
	}

	r.backend.mu.Lock()
	a, err := r.backend.arena(r.model)
	if err != nil {
		r.backend.mu.Unlock()
		return err
	}

	pk := inst.PK()
	if pk == nil {
		if r.model.PKDeclared() {
			r.backend.mu.Unlock()
			return &ports.BackendError{Op: "add", Err: fmt.Errorf("model %q requires an explicit identity value", r.model.UniqueName())}
		}
		pk = a.nextPK
		a.nextPK++
		inst.SetPK(pk)
	} else if n, ok := pk.(int64); ok && n >= a.nextPK {
		a.nextPK = n + 1
	}

	if _, exists := a.items[pk]; !exists {
		a.order = append(a.order, pk)
	}
	a.items[pk] = inst
	r.backend.mu.Unlock()

	r.reconcile(inst)
	return nil
}

// reconcile maintains the bidirectional links after an add: the instance is
// appended to the collection back-reference of each many-to-one target, and
// each one-to-many child gets its singular back-reference set. This is an
// explicit pass, not interception of field assignment.
func (r *Repository) reconcile(inst *model.Instance) {
	for _, f := range r.model.Fields() {
		if !f.IsRelation() {
			continue
		}
		switch f.Resolved.Relation {
		case schema.RelationManyToOne:
			if target, ok := inst.Get(f.Name).(*model.Instance); ok && target != nil {
				target.AppendInverse(r.model.PluralName(), inst)
			}
		case schema.RelationOneToMany:
			for _, child := range asInstances(inst.Get(f.Name)) {
				child.Set(r.model.SingularName(), inst)
			}
		}
	}
}

// AddAll persists an instance graph: many-to-one targets first, then every
// owned one-to-many child recursively, then the instance itself. Owned
// children therefore carry earlier identities than their owner.
func (r *Repository) AddAll(ctx context.Context, inst *model.Instance) error {
	return r.addAll(ctx, inst, make(map[*model.Instance]bool))
}

func (r *Repository) addAll(ctx context.Context, inst *model.Instance, visited map[*model.Instance]bool) error {
	if visited[inst] {
		return nil
	}
	visited[inst] = true

	for _, f := range r.model.Fields() {
		if f.Resolved.Relation != schema.RelationManyToOne || f.Target == nil {
			continue
		}
		target, ok := inst.Get(f.Name).(*model.Instance)
		if !ok || target == nil || target.PK() != nil {
			continue
		}
		repo, err := r.targetRepo(f.Target)
		if err != nil {
			return err
		}
		if err := repo.addAll(ctx, target, visited); err != nil {
			return err
		}
	}

	for _, f := range r.model.Fields() {
		if f.Resolved.Relation != schema.RelationOneToMany || f.Target == nil {
			continue
		}
		repo, err := r.targetRepo(f.Target)
		if err != nil {
			return err
		}
		for _, child := range asInstances(inst.Get(f.Name)) {
			if err := repo.addAll(ctx, child, visited); err != nil {
				return err
			}
		}
	}

	return r.Add(ctx, inst)
}

func (r *Repository) targetRepo(m *model.Model) (*Repository, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	repo, ok := r.backend.repos[m.UniqueName()]
	if !ok {
		return nil, &ports.BackendError{Op: "repository", Err: fmt.Errorf("model %q not registered", m.UniqueName())}
	}
	return repo, nil
}

// Remove deletes an instance and clears every link to it, mirroring what
// reconcile established on add. The identity gap is preserved so surviving
// identities are never reassigned.
func (r *Repository) Remove(ctx context.Context, inst *model.Instance) error {
	if inst.Model() != r.model {
		return &ports.BackendError{Op: "remove", Err: fmt.Errorf("instance of %q is not valid for repository %q", inst.Model().UniqueName(), r.model.UniqueName())}
	}
	pk := inst.PK()
	if pk == nil {
		return &ports.BackendError{Op: "remove", Err: fmt.Errorf("instance was never added")}
	}

	r.backend.mu.Lock()
	a, err := r.backend.arena(r.model)
	if err != nil {
		r.backend.mu.Unlock()
		return err
	}
	if _, ok := a.items[pk]; !ok {
		r.backend.mu.Unlock()
		return ports.ErrNotFound
	}
	delete(a.items, pk)
	for i, existing := range a.order {
		if existing == pk {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	r.backend.mu.Unlock()

	r.unreconcile(inst)
	return nil
}

// unreconcile is reconcile's counterpart for removal: the instance leaves
// the collection back-reference of each many-to-one target, its one-to-many
// children lose their singular back-reference, and instances that referenced
// it through a declared field have that reference cleared.
func (r *Repository) unreconcile(inst *model.Instance) {
	for _, f := range r.model.Fields() {
		if !f.IsRelation() {
			continue
		}
		switch f.Resolved.Relation {
		case schema.RelationManyToOne:
			if target, ok := inst.Get(f.Name).(*model.Instance); ok && target != nil {
				target.RemoveInverse(r.model.PluralName(), inst)
			}
		case schema.RelationOneToMany:
			for _, child := range asInstances(inst.Get(f.Name)) {
				if child.Get(r.model.SingularName()) == inst {
					child.Set(r.model.SingularName(), nil)
				}
			}
		}
	}

	for _, inv := range r.model.Inverses() {
		if inv.Collection {
			for _, owner := range asInstances(inst.Get(inv.Name)) {
				if owner.Get(inv.Field) == inst {
					owner.Set(inv.Field, nil)
				}
			}
		} else if owner, ok := inst.Get(inv.Name).(*model.Instance); ok && owner != nil {
			owner.RemoveInverse(inv.Field, inst)
		}
	}
}

// Search scans the view for pattern contained in the named fields. Scalar
// string fields produce a narrowed view; junction-backed collection fields
// report matches without one.
func (r *Repository) Search(ctx context.Context, v ports.View, pattern string, fields []string) (ports.SearchResult, error) {
	result := ports.SearchResult{Fields: make(map[string]ports.FieldMatches, len(fields))}

	insts, err := v.All(ctx)
	if err != nil {
		return ports.SearchResult{}, err
	}

	seen := make(map[any]bool)
	for _, name := range fields {
		f, ok := r.model.Field(name)
		if !ok {
			return ports.SearchResult{}, &ports.BackendError{Op: "search", Err: fmt.Errorf("model %q has no field %q", r.model.UniqueName(), name)}
		}

		matches := make(map[any]any)
		var matchedPKs []any
		for _, inst := range insts {
			value, matched := matchField(inst.Get(name), pattern)
			if !matched {
				continue
			}
			pk := inst.PK()
			if _, dup := matches[pk]; !dup {
				matchedPKs = append(matchedPKs, pk)
			}
			matches[pk] = value
		}

		fm := ports.FieldMatches{Matches: matches}
		if !f.IsJunction() {
			narrowed, err := r.ViewOf(ctx, matchedPKs)
			if err != nil {
				return ports.SearchResult{}, err
			}
			fm.View = narrowed
		}
		result.Fields[name] = fm

		for _, pk := range matchedPKs {
			if !seen[pk] {
				seen[pk] = true
				result.MatchingPKs = append(result.MatchingPKs, pk)
			}
		}
	}
	return result, nil
}

// matchField reports whether value contains pattern. Scalar fields yield
// the value itself; collection fields yield every matching element.
func matchField(value any, pattern string) (any, bool) {
	switch val := value.(type) {
	case string:
		if strings.Contains(val, pattern) {
			return val, true
		}
	case []byte:
		if strings.Contains(string(val), pattern) {
			return val, true
		}
	case []string:
		var hits []any
		for _, item := range val {
			if strings.Contains(item, pattern) {
				hits = append(hits, item)
			}
		}
		if len(hits) > 0 {
			return hits, true
		}
	case []any:
		var hits []any
		for _, item := range val {
			if s, ok := item.(string); ok && strings.Contains(s, pattern) {
				hits = append(hits, s)
			}
		}
		if len(hits) > 0 {
			return hits, true
		}
	}
	return nil, false
}

// SubmodelView projects the view through a descending relation field.
func (r *Repository) SubmodelView(ctx context.Context, v ports.View, fieldName string, target *model.Model) (ports.View, error) {
	return r.traverse(ctx, v, fieldName, target)
}

// SupermodelView projects the view through an ascending relation field.
func (r *Repository) SupermodelView(ctx context.Context, v ports.View, fieldName string, target *model.Model) (ports.View, error) {
	return r.traverse(ctx, v, fieldName, target)
}

// traverse collects the identities reachable from the view through one
// relation field (declared or back-reference), first-seen order.
func (r *Repository) traverse(ctx context.Context, v ports.View, fieldName string, target *model.Model) (ports.View, error) {
	if _, isField := r.model.Field(fieldName); !isField {
		if _, isInverse := r.model.Inverse(fieldName); !isInverse {
			return nil, &ports.BackendError{Op: "traverse", Err: fmt.Errorf("model %q has no relation field %q", r.model.UniqueName(), fieldName)}
		}
	}

	insts, err := v.All(ctx)
	if err != nil {
		return nil, err
	}

	var pks []any
	seen := make(map[any]bool)
	for _, inst := range insts {
		for _, related := range asInstances(inst.Get(fieldName)) {
			pk := related.PK()
			if pk == nil || seen[pk] {
				continue
			}
			seen[pk] = true
			pks = append(pks, pk)
		}
	}

	repo, err := r.targetRepo(target)
	if err != nil {
		return nil, err
	}
	return repo.ViewOf(ctx, pks)
}

// Related resolves one instance's relation field.
func (r *Repository) Related(ctx context.Context, inst *model.Instance, fieldName string) ([]*model.Instance, error) {
	if _, isField := r.model.Field(fieldName); !isField {
		if _, isInverse := r.model.Inverse(fieldName); !isInverse {
			return nil, &ports.BackendError{Op: "related", Err: fmt.Errorf("model %q has no relation field %q", r.model.UniqueName(), fieldName)}
		}
	}
	return asInstances(inst.Get(fieldName)), nil
}

// UnitOfWork serializes writers and restores arena membership and derived
// back-references when fn fails or panics. In-place mutation of declared
// instance fields is outside its reach.
func (r *Repository) UnitOfWork(ctx context.Context, fn func(ctx context.Context) error) error {
	b := r.backend

	b.mu.Lock()
	if b.uowActive {
		b.mu.Unlock()
		return ports.ErrNestedUnitOfWork
	}
	b.uowActive = true
	snap := b.snapshot()
	b.mu.Unlock()

	txID := uuid.NewString()
	b.log.Debug().Str("uow", txID).Msg("memory: unit of work begin")

	var err error
	defer func() {
		b.mu.Lock()
		if p := recover(); p != nil {
			b.restore(snap)
			b.uowActive = false
			b.mu.Unlock()
			b.log.Debug().Str("uow", txID).Msg("memory: unit of work rollback (panic)")
			panic(p)
		}
		if err != nil {
			b.restore(snap)
			b.log.Debug().Str("uow", txID).Msg("memory: unit of work rollback")
		} else {
			b.log.Debug().Str("uow", txID).Msg("memory: unit of work commit")
		}
		b.uowActive = false
		b.mu.Unlock()
	}()

	err = fn(ctx)
	return err
}

// asInstances normalizes a relation field value to a slice.
func asInstances(v any) []*model.Instance {
	switch val := v.(type) {
	case *model.Instance:
		if val == nil {
			return nil
		}
		return []*model.Instance{val}
	case []*model.Instance:
		return val
	}
	return nil
}
