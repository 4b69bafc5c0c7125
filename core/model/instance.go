package model

import (
	"fmt"

	"github.com/artpar/stratum/core/schema"
)

// Instance is one record of a compiled model. Field values live in a map so
// backends can hydrate instances without per-model code generation.
//
// Back-reference fields are populated lazily: the first read of an absent
// collection inverse materializes and caches an empty collection, a singular
// inverse reads as nil. Neither ever fails.
type Instance struct {
	model  *Model
	pk     any
	values map[string]any
}

// NewInstance creates an unpersisted instance. Initial values are checked
// against the model's field list.
func (m *Model) NewInstance(values map[string]any) (*Instance, error) {
	inst := &Instance{model: m, values: make(map[string]any, len(values))}
	for name, v := range values {
		if err := inst.Set(name, v); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// MustInstance is NewInstance for statically-known field sets; it panics on
// an unknown field name.
func (m *Model) MustInstance(values map[string]any) *Instance {
	inst, err := m.NewInstance(values)
	if err != nil {
		panic(err)
	}
	return inst
}

// Model returns the instance's compiled model.
func (i *Instance) Model() *Model { return i.model }

// PK returns the identity value, or nil while unpersisted. Once assigned it
// is stable for the lifetime of the record.
func (i *Instance) PK() any {
	if i.pk != nil {
		return i.pk
	}
	if i.model.pkDeclared {
		return i.values[i.model.pkField]
	}
	return nil
}

// SetPK is used by backends when they assign or load an identity.
func (i *Instance) SetPK(pk any) {
	i.pk = pk
	if i.model.pkDeclared {
		i.values[i.model.pkField] = pk
	}
}

// Get returns a field or back-reference value. Unknown names return nil.
func (i *Instance) Get(name string) any {
	if name == PKName {
		return i.PK()
	}
	if v, ok := i.values[name]; ok {
		return v
	}
	if inv, ok := i.model.inverses[name]; ok {
		if inv.Collection {
			empty := []*Instance{}
			i.values[name] = empty
			return empty
		}
		return nil
	}
	return nil
}

// Set assigns a field or back-reference value.
func (i *Instance) Set(name string, v any) error {
	if _, ok := i.model.fieldIndex[name]; !ok {
		if _, inv := i.model.inverses[name]; !inv {
			return fmt.Errorf("model %q has no field %q", i.model.PluralName(), name)
		}
	}
	if i.values == nil {
		i.values = make(map[string]any)
	}
	i.values[name] = v
	return nil
}

// AppendInverse adds inst to a collection back-reference, keeping pointer
// identity unique. Used by backends reconciling relations after an add.
func (i *Instance) AppendInverse(name string, inst *Instance) {
	cur, _ := i.Get(name).([]*Instance)
	for _, existing := range cur {
		if existing == inst {
			return
		}
	}
	i.values[name] = append(cur, inst)
}

// RemoveInverse drops inst from a collection-valued field or back-reference,
// by pointer identity. Absent entries are a no-op.
func (i *Instance) RemoveInverse(name string, inst *Instance) {
	cur, _ := i.Get(name).([]*Instance)
	for idx, existing := range cur {
		if existing == inst {
			kept := append([]*Instance(nil), cur[:idx]...)
			i.values[name] = append(kept, cur[idx+1:]...)
			return
		}
	}
}

// AsRecord returns a plain field-name to value mapping. The identity and
// fields whose name begins with "_" are excluded unless showHidden; fields
// whose resolved target is one of the model's super-models are excluded
// unless showSuper.
func (i *Instance) AsRecord(showHidden, showSuper bool) map[string]any {
	out := make(map[string]any, len(i.model.fields))
	for _, f := range i.model.fields {
		if !showHidden && (f.Hidden() || f.Resolved.Options.PrimaryKey) {
			continue
		}
		if !showSuper && f.Target != nil && i.model.isSuperModel(f.Target) {
			continue
		}
		out[f.Name] = i.recordValue(f)
	}
	return out
}

func (i *Instance) recordValue(f Field) any {
	v := i.Get(f.Name)
	switch val := v.(type) {
	case *Instance:
		return val.AsRecord(false, false)
	case []*Instance:
		records := make([]map[string]any, 0, len(val))
		for _, item := range val {
			records = append(records, item.AsRecord(false, false))
		}
		return records
	}
	if v == nil && f.Resolved.Relation == schema.RelationOneToMany {
		return []any{}
	}
	return v
}
