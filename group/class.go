// Package group builds navigable hierarchies over compiled models. A Class
// tree declares which models group under which, and which fields each level
// exposes to substring search; a Group is one Class bound to a live view.
package group

import (
	"fmt"

	"github.com/artpar/stratum/core/model"
)

// RelationError reports a navigation between two classes whose models share
// no relation field in either direction.
type RelationError struct {
	From string
	To   string
}

func (e *RelationError) Error() string {
	return fmt.Sprintf("group: no relation field connects %q to %q", e.From, e.To)
}

// Class is one node of the group tree: a model, its named subgroups, and the
// search allow-list. Classes are built once at startup and shared.
type Class struct {
	model        *model.Model
	super        *Class
	sub          map[string]*Class
	subOrder     []string
	searchFields []string
}

// NewClass starts a tree at the given model.
func NewClass(m *model.Model) *Class {
	return &Class{model: m, sub: make(map[string]*Class)}
}

// Subclass declares a subgroup under c, keyed by the model's plural name,
// and returns it for further nesting.
func (c *Class) Subclass(m *model.Model) *Class {
	child := NewClass(m)
	child.super = c
	m.AddSuperModel(c.model)
	name := m.PluralName()
	if _, dup := c.sub[name]; !dup {
		c.subOrder = append(c.subOrder, name)
	}
	c.sub[name] = child
	return child
}

// SearchFields sets the allow-list of fields searched at this level. Names
// absent from the model fail at declaration time.
func (c *Class) SearchFields(names ...string) error {
	for _, name := range names {
		if _, ok := c.model.Field(name); !ok {
			return fmt.Errorf("group: model %q has no field %q to search", c.model.UniqueName(), name)
		}
	}
	c.searchFields = append([]string(nil), names...)
	return nil
}

// MustSearchFields is SearchFields for static declarations.
func (c *Class) MustSearchFields(names ...string) *Class {
	if err := c.SearchFields(names...); err != nil {
		panic(err)
	}
	return c
}

func (c *Class) Model() *model.Model { return c.model }

func (c *Class) Super() *Class { return c.super }

// Sub returns the named subgroup class.
func (c *Class) Sub(name string) (*Class, bool) {
	child, ok := c.sub[name]
	return child, ok
}

// SubNames returns the subgroup names in declaration order.
func (c *Class) SubNames() []string { return c.subOrder }

// relationFieldTo resolves the field name used to traverse from c's model to
// other's model. A field declared on c's model wins; otherwise the implicit
// back-reference registered by the other side is used, named by the other
// model's plural name when descending and its singular name when ascending.
func (c *Class) relationFieldTo(other *model.Model, descending bool) (string, error) {
	if name := c.model.RelationTo(other); name != "" {
		return name, nil
	}
	fallback := other.SingularName()
	if descending {
		fallback = other.PluralName()
	}
	if _, ok := c.model.Inverse(fallback); ok {
		return fallback, nil
	}
	return "", &RelationError{From: c.model.UniqueName(), To: other.UniqueName()}
}
