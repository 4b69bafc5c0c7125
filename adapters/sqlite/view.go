package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/core/schema"
	"github.com/artpar/stratum/ports"
)

// view is a materialized identity list over one table. The list is fixed at
// construction; rows deleted afterwards are skipped at read time.
type view struct {
	repo *Repository
	pks  []any
}

func (v *view) Model() *model.Model { return v.repo.model }

func (v *view) PKs(ctx context.Context) ([]any, error) {
	if len(v.pks) == 0 {
		return nil, nil
	}
	existing, err := v.repo.existingPKs(ctx, v.pks)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(v.pks))
	for _, pk := range v.pks {
		if existing[pk] {
			out = append(out, pk)
		}
	}
	return out, nil
}

// All hydrates the rows in view order: scalar columns from the table, then
// collection fields from their junction tables.
func (v *view) All(ctx context.Context) ([]*model.Instance, error) {
	pks, err := v.PKs(ctx)
	if err != nil || len(pks) == 0 {
		return nil, err
	}

	var cols []string
	var fields []model.Field
	for _, f := range v.repo.model.Fields() {
		if f.Resolved.Relation == schema.RelationNone && !f.Resolved.Options.PrimaryKey {
			cols = append(cols, f.Name)
			fields = append(fields, f)
		}
	}

	selected := v.repo.info.pkColumn
	if len(cols) > 0 {
		selected += ", " + strings.Join(cols, ", ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		selected, v.repo.info.name, v.repo.info.pkColumn, placeholders(len(pks)))
	rows, err := v.repo.backend.q().QueryContext(ctx, query, pks...)
	if err != nil {
		return nil, &ports.BackendError{Op: "all", Err: err}
	}
	defer rows.Close()

	byPK := make(map[any]*model.Instance, len(pks))
	for rows.Next() {
		scan := make([]any, len(cols)+1)
		for i := range scan {
			var cell any
			scan[i] = &cell
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, &ports.BackendError{Op: "all", Err: err}
		}

		inst := v.repo.model.MustInstance(nil)
		inst.SetPK(normalizePK(*scan[0].(*any)))
		for i, f := range fields {
			cell := *scan[i+1].(*any)
			if cell == nil {
				continue
			}
			inst.Set(f.Name, columnToField(cell, f))
		}
		byPK[inst.PK()] = inst
	}
	if err := rows.Err(); err != nil {
		return nil, &ports.BackendError{Op: "all", Err: err}
	}

	if err := v.loadJunctions(ctx, pks, byPK); err != nil {
		return nil, err
	}

	out := make([]*model.Instance, 0, len(pks))
	for _, pk := range pks {
		if inst, ok := byPK[pk]; ok {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (v *view) loadJunctions(ctx context.Context, pks []any, byPK map[any]*model.Instance) error {
	for field, jt := range v.repo.info.junctions {
		query := fmt.Sprintf("SELECT _owner_pk, value FROM %s WHERE _owner_pk IN (%s) ORDER BY pk",
			jt, placeholders(len(pks)))
		rows, err := v.repo.backend.q().QueryContext(ctx, query, pks...)
		if err != nil {
			return &ports.BackendError{Op: "all", Err: err}
		}
		for rows.Next() {
			var owner, value any
			if err := rows.Scan(&owner, &value); err != nil {
				rows.Close()
				return &ports.BackendError{Op: "all", Err: err}
			}
			if inst, ok := byPK[normalizePK(owner)]; ok {
				cur, _ := inst.Get(field).([]any)
				inst.Set(field, append(cur, fromColumn(value)))
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return &ports.BackendError{Op: "all", Err: err}
		}
		rows.Close()
	}
	return nil
}

// Where narrows the view with a SQL condition compiled from the predicates.
func (v *view) Where(ctx context.Context, preds ...model.Predicate) (ports.View, error) {
	pks, err := v.PKs(ctx)
	if err != nil {
		return nil, err
	}
	if len(pks) == 0 || len(preds) == 0 {
		return &view{repo: v.repo, pks: pks}, nil
	}

	var conds []string
	var args []any
	for _, p := range preds {
		cond, condArgs, err := v.condition(p)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) AND (%s)",
		v.repo.info.pkColumn, v.repo.info.name, v.repo.info.pkColumn,
		placeholders(len(pks)), strings.Join(conds, " AND "))
	rows, err := v.repo.backend.q().QueryContext(ctx, query, append(append([]any(nil), pks...), args...)...)
	if err != nil {
		return nil, &ports.BackendError{Op: "where", Err: err}
	}
	defer rows.Close()

	matched := make(map[any]bool)
	for rows.Next() {
		var pk any
		if err := rows.Scan(&pk); err != nil {
			return nil, &ports.BackendError{Op: "where", Err: err}
		}
		matched[normalizePK(pk)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, &ports.BackendError{Op: "where", Err: err}
	}

	var kept []any
	for _, pk := range pks {
		if matched[pk] {
			kept = append(kept, pk)
		}
	}
	return &view{repo: v.repo, pks: kept}, nil
}

// condition compiles one predicate into a SQL fragment.
func (v *view) condition(p model.Predicate) (string, []any, error) {
	if p.IsAnd() || p.IsOr() {
		joiner := " AND "
		if p.IsOr() {
			joiner = " OR "
		}
		var parts []string
		var args []any
		for _, sub := range p.Parts {
			cond, condArgs, err := v.condition(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, cond)
			args = append(args, condArgs...)
		}
		return "(" + strings.Join(parts, joiner) + ")", args, nil
	}

	f, ok := v.repo.model.Field(p.Field)
	if !ok {
		return "", nil, &ports.BackendError{Op: "where", Err: fmt.Errorf("model %q has no field %q", v.repo.model.UniqueName(), p.Field)}
	}
	col := f.Name
	if f.Resolved.Options.PrimaryKey {
		col = v.repo.info.pkColumn
	} else if f.Resolved.Relation != schema.RelationNone {
		return "", nil, &ports.BackendError{Op: "where", Err: fmt.Errorf("field %q is a relation and cannot be filtered directly", p.Field)}
	}

	switch p.Op {
	case model.OpEq:
		return col + " = ?", []any{toColumn(p.Value)}, nil
	case model.OpNe:
		return col + " != ?", []any{toColumn(p.Value)}, nil
	case model.OpLt:
		return col + " < ?", []any{toColumn(p.Value)}, nil
	case model.OpLe:
		return col + " <= ?", []any{toColumn(p.Value)}, nil
	case model.OpGt:
		return col + " > ?", []any{toColumn(p.Value)}, nil
	case model.OpGe:
		return col + " >= ?", []any{toColumn(p.Value)}, nil
	case model.OpContains:
		sub, ok := p.Value.(string)
		if !ok {
			return "", nil, &ports.BackendError{Op: "where", Err: fmt.Errorf("contains needs a string operand, got %T", p.Value)}
		}
		return col + ` LIKE ? ESCAPE '\'`, []any{"%" + escapeLike(sub) + "%"}, nil
	}
	return "", nil, &ports.BackendError{Op: "where", Err: fmt.Errorf("unsupported operator")}
}

func (v *view) Limit(n int) ports.View {
	if n < 0 || n >= len(v.pks) {
		return &view{repo: v.repo, pks: v.pks}
	}
	return &view{repo: v.repo, pks: v.pks[:n]}
}

// Union merges views over the same model, first-seen order, duplicates
// dropped.
func (v *view) Union(ctx context.Context, others ...ports.View) (ports.View, error) {
	var pks []any
	seen := make(map[any]bool)
	add := func(list []any) {
		for _, pk := range list {
			if !seen[pk] {
				seen[pk] = true
				pks = append(pks, pk)
			}
		}
	}
	own, err := v.PKs(ctx)
	if err != nil {
		return nil, err
	}
	add(own)
	for _, other := range others {
		if other.Model() != v.repo.model {
			return nil, &ports.BackendError{Op: "union", Err: fmt.Errorf("cannot union view of %q with view of %q", v.repo.model.UniqueName(), other.Model().UniqueName())}
		}
		theirs, err := other.PKs(ctx)
		if err != nil {
			return nil, err
		}
		add(theirs)
	}
	return &view{repo: v.repo, pks: pks}, nil
}

func (v *view) Count(ctx context.Context) (int, error) {
	pks, err := v.PKs(ctx)
	if err != nil {
		return 0, err
	}
	return len(pks), nil
}

func (v *view) First(ctx context.Context) (*model.Instance, error) {
	insts, err := v.Limit(1).All(ctx)
	if err != nil || len(insts) == 0 {
		return nil, err
	}
	return insts[0], nil
}

func (v *view) Last(ctx context.Context) (*model.Instance, error) {
	insts, err := v.All(ctx)
	if err != nil || len(insts) == 0 {
		return nil, err
	}
	return insts[len(insts)-1], nil
}

// FieldValues returns one value per row for scalar fields; collection
// fields are flattened into a single deduplicated list.
func (v *view) FieldValues(ctx context.Context, field string) ([]any, error) {
	f, ok := v.repo.model.Field(field)
	if !ok {
		return nil, &ports.BackendError{Op: "field values", Err: fmt.Errorf("model %q has no field %q", v.repo.model.UniqueName(), field)}
	}
	pks, err := v.PKs(ctx)
	if err != nil || len(pks) == 0 {
		return nil, err
	}

	if f.IsJunction() {
		query := fmt.Sprintf("SELECT DISTINCT value FROM %s WHERE _owner_pk IN (%s)",
			v.repo.info.junctions[field], placeholders(len(pks)))
		return v.scanColumn(ctx, query, pks)
	}

	col := field
	if f.Resolved.Options.PrimaryKey {
		col = v.repo.info.pkColumn
	} else if f.Resolved.Relation != schema.RelationNone {
		return nil, &ports.BackendError{Op: "field values", Err: fmt.Errorf("field %q is a relation", field)}
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		col, v.repo.info.name, v.repo.info.pkColumn, placeholders(len(pks)))
	return v.scanColumn(ctx, query, pks)
}

func (v *view) scanColumn(ctx context.Context, query string, args []any) ([]any, error) {
	rows, err := v.repo.backend.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ports.BackendError{Op: "field values", Err: err}
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var cell any
		if err := rows.Scan(&cell); err != nil {
			return nil, &ports.BackendError{Op: "field values", Err: err}
		}
		out = append(out, fromColumn(cell))
	}
	if err := rows.Err(); err != nil {
		return nil, &ports.BackendError{Op: "field values", Err: err}
	}
	return out, nil
}

// columnToField undoes column encoding for one field's declared type.
func columnToField(cell any, f model.Field) any {
	if f.Resolved.Type.Kind == schema.KindBool {
		if n, ok := cell.(int64); ok {
			return n != 0
		}
	}
	return fromColumn(cell)
}
