package group

import (
	"context"

	"github.com/artpar/stratum/ports"
)

// Result is the outcome of a recursive search at one level of the tree.
type Result struct {
	// Group is scoped to exactly the matching identities at this level.
	Group *Group

	// PKs holds the accumulated matching identities, subgroups before own
	// fields, first-seen order, no duplicates.
	PKs []any

	// Fields holds the per-field outcome of searching this level's own
	// allow-listed fields.
	Fields map[string]FieldResult

	// Sub holds one result per declared subgroup, keyed by subgroup name.
	Sub map[string]*Result
}

// FieldResult is one allow-listed field's outcome at one level.
type FieldResult struct {
	// Matches maps a matching identity to the matched value; collection
	// fields map to the slice of every matching element.
	Matches map[any]any

	// Group scopes this level's class to the identities that matched on
	// this field. Junction-backed collection fields carry none.
	Group *Group
}

// Search looks for pattern in every subgroup recursively and then in this
// group's own allow-listed fields. Subgroup matches are re-projected up
// through their super-group link, so the returned group always scopes
// instances of this group's model, a subset of the searched view.
func (g *Group) Search(ctx context.Context, pattern string) (*Result, error) {
	res := &Result{
		Fields: make(map[string]FieldResult),
		Sub:    make(map[string]*Result, len(g.class.subOrder)),
	}
	seen := make(map[any]bool)
	fold := func(pks []any) {
		for _, pk := range pks {
			if !seen[pk] {
				seen[pk] = true
				res.PKs = append(res.PKs, pk)
			}
		}
	}

	// Subgroup pass: collect the super-group-relative views of every
	// subresult that matched anything, union them, and fold the identities.
	var projected []ports.View
	for _, name := range g.class.subOrder {
		sub, err := g.Sub(ctx, name)
		if err != nil {
			return nil, err
		}
		subRes, err := sub.Search(ctx, pattern)
		if err != nil {
			return nil, err
		}
		res.Sub[name] = subRes
		if len(subRes.PKs) == 0 {
			continue
		}
		up, err := subRes.Group.Super(ctx)
		if err != nil {
			return nil, err
		}
		projected = append(projected, up.view)
	}
	if len(projected) > 0 {
		combined, err := projected[0].Union(ctx, projected[1:]...)
		if err != nil {
			return nil, err
		}
		pks, err := combined.PKs(ctx)
		if err != nil {
			return nil, err
		}
		fold(pks)
	}

	// Own-field pass over the allow-list.
	if len(g.class.searchFields) > 0 {
		own, err := g.repo.Search(ctx, g.view, pattern, g.class.searchFields)
		if err != nil {
			return nil, err
		}
		fold(own.MatchingPKs)
		for name, fm := range own.Fields {
			fr := FieldResult{Matches: fm.Matches}
			if fm.View != nil {
				fr.Group = g.withView(fm.View)
			}
			res.Fields[name] = fr
		}
	}

	scoped, err := g.repo.ViewOf(ctx, res.PKs)
	if err != nil {
		return nil, err
	}
	res.Group = g.withView(scoped)
	return res, nil
}
