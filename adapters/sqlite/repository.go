package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/core/schema"
	"github.com/artpar/stratum/ports"
)

// Repository is the SQLite implementation of ports.Repository for one model.
type Repository struct {
	backend *Backend
	model   *model.Model
	info    *tableInfo
}

func (r *Repository) Model() *model.Model { return r.model }

// View returns all instances in insertion order.
func (r *Repository) View(ctx context.Context) (ports.View, error) {
	rows, err := r.backend.q().QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", r.info.pkColumn, r.info.name))
	if err != nil {
		return nil, &ports.BackendError{Op: "view", Err: err}
	}
	defer rows.Close()

	var pks []any
	for rows.Next() {
		var pk any
		if err := rows.Scan(&pk); err != nil {
			return nil, &ports.BackendError{Op: "view", Err: err}
		}
		pks = append(pks, normalizePK(pk))
	}
	if err := rows.Err(); err != nil {
		return nil, &ports.BackendError{Op: "view", Err: err}
	}
	return &view{repo: r, pks: pks}, nil
}

// ViewOf returns a view over the given identities, preserving their order
// and dropping identities without a row.
func (r *Repository) ViewOf(ctx context.Context, pks []any) (ports.View, error) {
	if len(pks) == 0 {
		return &view{repo: r}, nil
	}
	existing, err := r.existingPKs(ctx, pks)
	if err != nil {
		return nil, err
	}
	var kept []any
	seen := make(map[any]bool, len(pks))
	for _, pk := range pks {
		if !seen[pk] && existing[pk] {
			seen[pk] = true
			kept = append(kept, pk)
		}
	}
	return &view{repo: r, pks: kept}, nil
}

func (r *Repository) existingPKs(ctx context.Context, pks []any) (map[any]bool, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		r.info.pkColumn, r.info.name, r.info.pkColumn, placeholders(len(pks)))
	rows, err := r.backend.q().QueryContext(ctx, query, pks...)
	if err != nil {
		return nil, &ports.BackendError{Op: "view", Err: err}
	}
	defer rows.Close()

	out := make(map[any]bool, len(pks))
	for rows.Next() {
		var pk any
		if err := rows.Scan(&pk); err != nil {
			return nil, &ports.BackendError{Op: "view", Err: err}
		}
		out[normalizePK(pk)] = true
	}
	return out, rows.Err()
}

// Add inserts one instance: scalar columns and many-to-one foreign keys on
// the row, collection elements into the junction tables, and the owner
// foreign key onto already-persisted one-to-many children.
func (r *Repository) Add(ctx context.Context, inst *model.Instance) error {
	if inst.Model() != r.model {
		return &ports.BackendError{Op: "add", Err: fmt.Errorf("instance of %q is not valid for repository %q", inst.Model().UniqueName(), r.model.UniqueName())}
	}

	var cols []string
	var args []any
	for _, f := range r.model.Fields() {
		switch {
		case f.Resolved.Options.PrimaryKey:
			if r.model.PKDeclared() {
				pk := inst.PK()
				if pk == nil {
					return &ports.BackendError{Op: "add", Err: fmt.Errorf("model %q requires an explicit identity value", r.model.UniqueName())}
				}
				cols = append(cols, r.info.pkColumn)
				args = append(args, pk)
			}
			// A synthesized identity is assigned by the database.

		case f.Resolved.Relation == schema.RelationNone:
			if v := inst.Get(f.Name); v != nil {
				cols = append(cols, f.Name)
				args = append(args, toColumn(v))
			}

		case f.Resolved.Relation == schema.RelationManyToOne:
			target, _ := inst.Get(f.Name).(*model.Instance)
			if target != nil {
				if target.PK() == nil {
					return &ports.BackendError{Op: "add", Err: fmt.Errorf("field %q references an unpersisted %s", f.Name, f.Target.SingularName())}
				}
				cols = append(cols, fkColumn(f.Name))
				args = append(args, target.PK())
			}
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.info.name, strings.Join(cols, ", "), placeholders(len(cols)))
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", r.info.name)
	}
	res, err := r.backend.q().ExecContext(ctx, query, args...)
	if err != nil {
		return &ports.BackendError{Op: "add", Err: err}
	}
	if !r.model.PKDeclared() {
		id, err := res.LastInsertId()
		if err != nil {
			return &ports.BackendError{Op: "add", Err: err}
		}
		inst.SetPK(id)
	}

	for field, jt := range r.info.junctions {
		for _, elem := range collectionElements(inst.Get(field)) {
			if _, err := r.backend.q().ExecContext(ctx,
				fmt.Sprintf("INSERT INTO %s (_owner_pk, value) VALUES (?, ?)", jt),
				inst.PK(), toColumn(elem)); err != nil {
				return &ports.BackendError{Op: "add", Err: err}
			}
		}
	}

	for _, f := range r.model.Fields() {
		if f.Resolved.Relation != schema.RelationOneToMany || f.Target == nil {
			continue
		}
		col := ownerFKColumn(r.model)
		for _, child := range asInstances(inst.Get(f.Name)) {
			if child.PK() == nil {
				continue
			}
			childInfo, err := r.backend.table(f.Target)
			if err != nil {
				return err
			}
			if _, err := r.backend.q().ExecContext(ctx,
				fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", childInfo.name, col, childInfo.pkColumn),
				inst.PK(), child.PK()); err != nil {
				return &ports.BackendError{Op: "add", Err: err}
			}
		}
	}
	return nil
}

// AddAll persists an instance graph: many-to-one targets first, then every
// owned one-to-many child recursively, then the instance itself.
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

// Remove deletes one row, its junction rows, and nulls out every foreign key
// referencing it. The AUTOINCREMENT sequence keeps the identity burned.
func (r *Repository) Remove(ctx context.Context, inst *model.Instance) error {
	pk := inst.PK()
	if pk == nil {
		return &ports.BackendError{Op: "remove", Err: fmt.Errorf("instance was never added")}
	}

	res, err := r.backend.q().ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", r.info.name, r.info.pkColumn), pk)
	if err != nil {
		return &ports.BackendError{Op: "remove", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ports.ErrNotFound
	}

	for _, jt := range r.info.junctions {
		if _, err := r.backend.q().ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE _owner_pk = ?", jt), pk); err != nil {
			return &ports.BackendError{Op: "remove", Err: err}
		}
	}

	// Referencing many-to-one foreign keys on other tables.
	for _, inv := range r.model.Inverses() {
		if !inv.Collection {
			continue
		}
		ownerInfo, err := r.backend.table(inv.Owner)
		if err != nil {
			continue // owner never registered with this backend
		}
		if _, err := r.backend.q().ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = ?", ownerInfo.name, fkColumn(inv.Field), fkColumn(inv.Field)),
			pk); err != nil {
			return &ports.BackendError{Op: "remove", Err: err}
		}
	}

	// Owner foreign keys this instance stamped on its children.
	for _, f := range r.model.Fields() {
		if f.Resolved.Relation != schema.RelationOneToMany || f.Target == nil {
			continue
		}
		childInfo, err := r.backend.table(f.Target)
		if err != nil {
			continue
		}
		col := ownerFKColumn(r.model)
		if _, err := r.backend.q().ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = ?", childInfo.name, col, col), pk); err != nil {
			return &ports.BackendError{Op: "remove", Err: err}
		}
	}
	return nil
}

// Search runs a LIKE query per field over the view. Scalar fields produce a
// narrowed view; junction-backed fields report their matching elements
// without one.
func (r *Repository) Search(ctx context.Context, v ports.View, pattern string, fields []string) (ports.SearchResult, error) {
	viewPKs, err := v.PKs(ctx)
	if err != nil {
		return ports.SearchResult{}, err
	}
	result := ports.SearchResult{Fields: make(map[string]ports.FieldMatches, len(fields))}
	if len(viewPKs) == 0 {
		for _, name := range fields {
			result.Fields[name] = ports.FieldMatches{Matches: map[any]any{}}
		}
		return result, nil
	}

	like := "%" + escapeLike(pattern) + "%"
	order := make(map[any]int, len(viewPKs))
	for i, pk := range viewPKs {
		order[pk] = i
	}

	seen := make(map[any]bool)
	for _, name := range fields {
		f, ok := r.model.Field(name)
		if !ok {
			return ports.SearchResult{}, &ports.BackendError{Op: "search", Err: fmt.Errorf("model %q has no field %q", r.model.UniqueName(), name)}
		}

		var fm ports.FieldMatches
		var matchedPKs []any
		if f.IsJunction() {
			fm, matchedPKs, err = r.searchJunction(ctx, r.info.junctions[name], like, viewPKs)
		} else {
			fm, matchedPKs, err = r.searchScalar(ctx, name, like, viewPKs)
		}
		if err != nil {
			return ports.SearchResult{}, err
		}

		sortByViewOrder(matchedPKs, order)
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

func (r *Repository) searchScalar(ctx context.Context, field, like string, viewPKs []any) (ports.FieldMatches, []any, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s IN (%s) AND %s LIKE ? ESCAPE '\'`,
		r.info.pkColumn, field, r.info.name, r.info.pkColumn, placeholders(len(viewPKs)), field)
	rows, err := r.backend.q().QueryContext(ctx, query, append(append([]any(nil), viewPKs...), like)...)
	if err != nil {
		return ports.FieldMatches{}, nil, &ports.BackendError{Op: "search", Err: err}
	}
	defer rows.Close()

	fm := ports.FieldMatches{Matches: make(map[any]any)}
	var pks []any
	for rows.Next() {
		var pk, value any
		if err := rows.Scan(&pk, &value); err != nil {
			return ports.FieldMatches{}, nil, &ports.BackendError{Op: "search", Err: err}
		}
		pk = normalizePK(pk)
		fm.Matches[pk] = fromColumn(value)
		pks = append(pks, pk)
	}
	return fm, pks, rows.Err()
}

func (r *Repository) searchJunction(ctx context.Context, table, like string, viewPKs []any) (ports.FieldMatches, []any, error) {
	query := fmt.Sprintf(`SELECT _owner_pk, value FROM %s WHERE _owner_pk IN (%s) AND value LIKE ? ESCAPE '\' ORDER BY pk`,
		table, placeholders(len(viewPKs)))
	rows, err := r.backend.q().QueryContext(ctx, query, append(append([]any(nil), viewPKs...), like)...)
	if err != nil {
		return ports.FieldMatches{}, nil, &ports.BackendError{Op: "search", Err: err}
	}
	defer rows.Close()

	fm := ports.FieldMatches{Matches: make(map[any]any)}
	var pks []any
	for rows.Next() {
		var owner, value any
		if err := rows.Scan(&owner, &value); err != nil {
			return ports.FieldMatches{}, nil, &ports.BackendError{Op: "search", Err: err}
		}
		owner = normalizePK(owner)
		hits, _ := fm.Matches[owner].([]any)
		if hits == nil {
			pks = append(pks, owner)
		}
		fm.Matches[owner] = append(hits, fromColumn(value))
	}
	return fm, pks, rows.Err()
}

// SubmodelView projects the view through a descending relation field.
func (r *Repository) SubmodelView(ctx context.Context, v ports.View, fieldName string, target *model.Model) (ports.View, error) {
	return r.traverse(ctx, v, fieldName, target)
}

// SupermodelView projects the view through an ascending relation field.
func (r *Repository) SupermodelView(ctx context.Context, v ports.View, fieldName string, target *model.Model) (ports.View, error) {
	return r.traverse(ctx, v, fieldName, target)
}

// traverse resolves fieldName to one of the two physical shapes a relation
// can take (foreign key on this table, or foreign key on the other table)
// and collects the reachable identities in first-seen view order.
func (r *Repository) traverse(ctx context.Context, v ports.View, fieldName string, target *model.Model) (ports.View, error) {
	viewPKs, err := v.PKs(ctx)
	if err != nil {
		return nil, err
	}
	targetRepo, err := r.targetRepo(target)
	if err != nil {
		return nil, err
	}
	if len(viewPKs) == 0 {
		return &view{repo: targetRepo}, nil
	}

	var query string
	if f, ok := r.model.Field(fieldName); ok && f.IsRelation() {
		switch f.Resolved.Relation {
		case schema.RelationManyToOne:
			// Foreign key on this table points at the target.
			query = fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s) AND %s IS NOT NULL",
				r.info.pkColumn, fkColumn(fieldName), r.info.name, r.info.pkColumn,
				placeholders(len(viewPKs)), fkColumn(fieldName))
		case schema.RelationOneToMany:
			// Foreign key on the target table points back at this one.
			col := ownerFKColumn(r.model)
			query = fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s) ORDER BY rowid",
				col, targetRepo.info.pkColumn, targetRepo.info.name, col, placeholders(len(viewPKs)))
		}
	} else if inv, ok := r.model.Inverse(fieldName); ok {
		if inv.Collection {
			// The owner's many-to-one foreign key points at this table.
			query = fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s) ORDER BY rowid",
				fkColumn(inv.Field), targetRepo.info.pkColumn, targetRepo.info.name,
				fkColumn(inv.Field), placeholders(len(viewPKs)))
		} else {
			// The owner's one-to-many stamped its foreign key on this table.
			col := ownerFKColumn(inv.Owner)
			query = fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s) AND %s IS NOT NULL",
				r.info.pkColumn, col, r.info.name, r.info.pkColumn,
				placeholders(len(viewPKs)), col)
		}
	}
	if query == "" {
		return nil, &ports.BackendError{Op: "traverse", Err: fmt.Errorf("model %q has no relation field %q", r.model.UniqueName(), fieldName)}
	}

	rows, err := r.backend.q().QueryContext(ctx, query, viewPKs...)
	if err != nil {
		return nil, &ports.BackendError{Op: "traverse", Err: err}
	}
	defer rows.Close()

	// Collect (source, reached) pairs, then order by the view's ordering.
	reached := make(map[any][]any)
	for rows.Next() {
		var src, dst any
		if err := rows.Scan(&src, &dst); err != nil {
			return nil, &ports.BackendError{Op: "traverse", Err: err}
		}
		src = normalizePK(src)
		reached[src] = append(reached[src], normalizePK(dst))
	}
	if err := rows.Err(); err != nil {
		return nil, &ports.BackendError{Op: "traverse", Err: err}
	}

	var pks []any
	seen := make(map[any]bool)
	for _, src := range viewPKs {
		for _, dst := range reached[src] {
			if !seen[dst] {
				seen[dst] = true
				pks = append(pks, dst)
			}
		}
	}
	return &view{repo: targetRepo, pks: pks}, nil
}

// Related loads the instances behind one relation field of a persisted
// instance.
func (r *Repository) Related(ctx context.Context, inst *model.Instance, fieldName string) ([]*model.Instance, error) {
	if inst.PK() == nil {
		return nil, &ports.BackendError{Op: "related", Err: fmt.Errorf("instance was never added")}
	}
	var target *model.Model
	if f, ok := r.model.Field(fieldName); ok && f.IsRelation() {
		target = f.Target
	} else if inv, ok := r.model.Inverse(fieldName); ok {
		target = inv.Owner
	} else {
		return nil, &ports.BackendError{Op: "related", Err: fmt.Errorf("model %q has no relation field %q", r.model.UniqueName(), fieldName)}
	}

	single, err := r.ViewOf(ctx, []any{inst.PK()})
	if err != nil {
		return nil, err
	}
	related, err := r.traverse(ctx, single, fieldName, target)
	if err != nil {
		return nil, err
	}
	return related.All(ctx)
}

// UnitOfWork wraps fn in one SQL transaction. Nested entry is rejected; the
// transaction is rolled back on error or panic and released on every path.
func (r *Repository) UnitOfWork(ctx context.Context, fn func(ctx context.Context) error) error {
	b := r.backend

	b.mu.Lock()
	if b.tx != nil {
		b.mu.Unlock()
		return ports.ErrNestedUnitOfWork
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		b.mu.Unlock()
		return &ports.BackendError{Op: "unit of work", Err: err}
	}
	b.tx = tx
	b.mu.Unlock()

	txID := uuid.NewString()
	b.log.Debug().Str("uow", txID).Msg("sqlite: unit of work begin")

	release := func() {
		b.mu.Lock()
		b.tx = nil
		b.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			release()
			b.log.Debug().Str("uow", txID).Msg("sqlite: unit of work rollback (panic)")
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		tx.Rollback()
		release()
		b.log.Debug().Str("uow", txID).Msg("sqlite: unit of work rollback")
		return err
	}
	if err := tx.Commit(); err != nil {
		release()
		return &ports.BackendError{Op: "unit of work", Err: err}
	}
	release()
	b.log.Debug().Str("uow", txID).Msg("sqlite: unit of work commit")
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func sortByViewOrder(pks []any, order map[any]int) {
	// Insertion sort; matched sets are small and mostly ordered already.
	for i := 1; i < len(pks); i++ {
		for j := i; j > 0 && order[pks[j-1]] > order[pks[j]]; j-- {
			pks[j-1], pks[j] = pks[j], pks[j-1]
		}
	}
}

// normalizePK gives every integer identity the same dynamic type so map
// lookups across query results agree.
func normalizePK(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case []byte:
		return string(n)
	}
	return v
}

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

func collectionElements(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out
	case []float64:
		out := make([]any, len(val))
		for i, f := range val {
			out[i] = f
		}
		return out
	}
	return nil
}

// toColumn converts an instance value to its column representation.
func toColumn(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

// fromColumn undoes driver-side widening for values handed back to callers.
func fromColumn(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
