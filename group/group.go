package group

import (
	"context"
	"fmt"

	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/ports"
)

// Group is a Class bound to a backend and a view. Groups are immutable
// handles; navigation and search return new ones.
type Group struct {
	class   *Class
	backend ports.Backend
	repo    ports.Repository
	view    ports.View
}

// Root binds a class tree's root to the unrestricted view of its model.
func Root(ctx context.Context, class *Class, backend ports.Backend) (*Group, error) {
	repo, err := backend.Repository(class.model)
	if err != nil {
		return nil, err
	}
	v, err := repo.View(ctx)
	if err != nil {
		return nil, err
	}
	return &Group{class: class, backend: backend, repo: repo, view: v}, nil
}

func (g *Group) Class() *Class { return g.class }

func (g *Group) Model() *model.Model { return g.class.model }

// View exposes the group's current scope.
func (g *Group) View() ports.View { return g.view }

func (g *Group) Count(ctx context.Context) (int, error) { return g.view.Count(ctx) }

// All returns every instance in the group's current scope.
func (g *Group) All(ctx context.Context) ([]*model.Instance, error) { return g.view.All(ctx) }

// PKs returns the identities in the group's current scope.
func (g *Group) PKs(ctx context.Context) ([]any, error) { return g.view.PKs(ctx) }

func (g *Group) First(ctx context.Context) (*model.Instance, error) { return g.view.First(ctx) }

func (g *Group) Last(ctx context.Context) (*model.Instance, error) { return g.view.Last(ctx) }

// FieldValues returns the named field's values across the group, with
// collection fields flattened into one deduplicated list.
func (g *Group) FieldValues(ctx context.Context, name string) ([]any, error) {
	return g.view.FieldValues(ctx, name)
}

// Union combines this group's scope with other groups over the same model.
func (g *Group) Union(ctx context.Context, others ...*Group) (*Group, error) {
	views := make([]ports.View, len(others))
	for i, o := range others {
		views[i] = o.view
	}
	combined, err := g.view.Union(ctx, views...)
	if err != nil {
		return nil, err
	}
	return g.withView(combined), nil
}

// Where narrows the group in place of its view.
func (g *Group) Where(ctx context.Context, preds ...model.Predicate) (*Group, error) {
	narrowed, err := g.view.Where(ctx, preds...)
	if err != nil {
		return nil, err
	}
	return g.withView(narrowed), nil
}

func (g *Group) Limit(n int) *Group {
	return g.withView(g.view.Limit(n))
}

func (g *Group) withView(v ports.View) *Group {
	return &Group{class: g.class, backend: g.backend, repo: g.repo, view: v}
}

func (g *Group) bind(ctx context.Context, class *Class, v ports.View) (*Group, error) {
	repo, err := g.backend.Repository(class.model)
	if err != nil {
		return nil, err
	}
	return &Group{class: class, backend: g.backend, repo: repo, view: v}, nil
}

// Sub descends to the named subgroup, scoped to the instances reachable from
// the current view.
func (g *Group) Sub(ctx context.Context, name string) (*Group, error) {
	child, ok := g.class.sub[name]
	if !ok {
		return nil, fmt.Errorf("group: %q has no subgroup %q", g.class.model.UniqueName(), name)
	}
	fieldName, err := g.class.relationFieldTo(child.model, true)
	if err != nil {
		return nil, err
	}
	v, err := g.repo.SubmodelView(ctx, g.view, fieldName, child.model)
	if err != nil {
		return nil, err
	}
	return g.bind(ctx, child, v)
}

// Super ascends to the parent group, scoped to the instances the current
// view is reachable from.
func (g *Group) Super(ctx context.Context) (*Group, error) {
	parent := g.class.super
	if parent == nil {
		return nil, fmt.Errorf("group: %q has no super group", g.class.model.UniqueName())
	}
	fieldName, err := g.class.relationFieldTo(parent.model, false)
	if err != nil {
		return nil, err
	}
	v, err := g.repo.SupermodelView(ctx, g.view, fieldName, parent.model)
	if err != nil {
		return nil, err
	}
	return g.bind(ctx, parent, v)
}
