package memory

import (
	"context"
	"fmt"

	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/ports"
)

// view is a materialized identity list over one arena. The list is fixed at
// construction; instances removed afterwards are skipped at read time.
type view struct {
	repo *Repository
	pks  []any
}

func (v *view) Model() *model.Model { return v.repo.model }

func (v *view) PKs(ctx context.Context) ([]any, error) {
	insts, err := v.All(ctx)
	if err != nil {
		return nil, err
	}
	pks := make([]any, 0, len(insts))
	for _, inst := range insts {
		pks = append(pks, inst.PK())
	}
	return pks, nil
}

func (v *view) All(ctx context.Context) ([]*model.Instance, error) {
	v.repo.backend.mu.Lock()
	defer v.repo.backend.mu.Unlock()

	a, err := v.repo.backend.arena(v.repo.model)
	if err != nil {
		return nil, err
	}
	insts := make([]*model.Instance, 0, len(v.pks))
	for _, pk := range v.pks {
		if inst, ok := a.items[pk]; ok {
			insts = append(insts, inst)
		}
	}
	return insts, nil
}

func (v *view) Where(ctx context.Context, preds ...model.Predicate) (ports.View, error) {
	insts, err := v.All(ctx)
	if err != nil {
		return nil, err
	}
	var pks []any
	for _, inst := range insts {
		keep := true
		for _, p := range preds {
			if !p.Eval(inst) {
				keep = false
				break
			}
		}
		if keep {
			pks = append(pks, inst.PK())
		}
	}
	return &view{repo: v.repo, pks: pks}, nil
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
	insts, err := v.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(insts), nil
}

func (v *view) First(ctx context.Context) (*model.Instance, error) {
	insts, err := v.All(ctx)
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

// FieldValues returns one value per instance for scalar fields. Collection
// fields are flattened into a single deduplicated list.
func (v *view) FieldValues(ctx context.Context, field string) ([]any, error) {
	if _, ok := v.repo.model.Field(field); !ok {
		if _, isInverse := v.repo.model.Inverse(field); !isInverse {
			return nil, &ports.BackendError{Op: "field values", Err: fmt.Errorf("model %q has no field %q", v.repo.model.UniqueName(), field)}
		}
	}
	insts, err := v.All(ctx)
	if err != nil {
		return nil, err
	}
	values := make([]any, 0, len(insts))
	seen := make(map[any]bool)
	flatten := func(item any) {
		if !seen[item] {
			seen[item] = true
			values = append(values, item)
		}
	}
	for _, inst := range insts {
		switch val := inst.Get(field).(type) {
		case []*model.Instance:
			for _, item := range val {
				flatten(item)
			}
		case []string:
			for _, item := range val {
				flatten(item)
			}
		case []any:
			for _, item := range val {
				flatten(item)
			}
		default:
			values = append(values, val)
		}
	}
	return values, nil
}
