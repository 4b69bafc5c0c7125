// Package memory provides an in-memory implementation of the storage ports.
// Each Backend owns an explicit per-model arena, so isolated repositories
// can coexist in one process; nothing is process-global.
//
// Semantics documented per the backend contract: Count always equals
// len(All()) here; writes outside a unit of work apply immediately; a unit
// of work rolls back arena membership, identity assignment and the
// back-references derived from membership, but not in-place mutation of
// declared fields on shared instances.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/ports"
)

// Backend holds one arena per registered model.
type Backend struct {
	mu        sync.Mutex
	log       zerolog.Logger
	arenas    map[string]*arena
	repos     map[string]*Repository
	uowActive bool
}

// arena is one model's table: identity-ordered membership plus the record
// map. Identities are never reused, so removal leaves a gap.
type arena struct {
	order  []any
	items  map[any]*model.Instance
	nextPK int64
}

// New creates an empty backend.
func New(log zerolog.Logger) *Backend {
	return &Backend{
		log:    log,
		arenas: make(map[string]*arena),
		repos:  make(map[string]*Repository),
	}
}

// Register allocates the arena for a model.
func (b *Backend) Register(ctx context.Context, m *model.Model) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := m.UniqueName()
	if _, dup := b.arenas[name]; dup {
		return &ports.BackendError{Op: "register", Err: fmt.Errorf("model %q already registered", name)}
	}
	b.arenas[name] = &arena{items: make(map[any]*model.Instance), nextPK: 1}
	b.repos[name] = &Repository{backend: b, model: m}
	b.log.Debug().Str("model", name).Msg("memory: registered model arena")
	return nil
}

// Repository returns the repository for a registered model.
func (b *Backend) Repository(m *model.Model) (ports.Repository, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	repo, ok := b.repos[m.UniqueName()]
	if !ok {
		return nil, &ports.BackendError{Op: "repository", Err: fmt.Errorf("model %q not registered", m.UniqueName())}
	}
	return repo, nil
}

// Close releases the arenas.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arenas = make(map[string]*arena)
	b.repos = make(map[string]*Repository)
	return nil
}

func (b *Backend) arena(m *model.Model) (*arena, error) {
	a, ok := b.arenas[m.UniqueName()]
	if !ok {
		return nil, &ports.BackendError{Op: "arena", Err: fmt.Errorf("model %q not registered", m.UniqueName())}
	}
	return a, nil
}

// snapshot copies every arena's membership. Instances themselves are shared,
// not copied.
func (b *Backend) snapshot() map[string]*arena {
	out := make(map[string]*arena, len(b.arenas))
	for name, a := range b.arenas {
		cp := &arena{
			order:  append([]any(nil), a.order...),
			items:  make(map[any]*model.Instance, len(a.items)),
			nextPK: a.nextPK,
		}
		for pk, inst := range a.items {
			cp.items[pk] = inst
		}
		out[name] = cp
	}
	return out
}

func (b *Backend) restore(snap map[string]*arena) {
	for name, a := range snap {
		b.arenas[name] = a
	}
	// Models registered inside the unit of work keep their (empty) arenas.

	b.rebuildInverses()
}

// rebuildInverses re-derives every back-reference from the restored arena
// contents. Adds inside a rolled back unit of work already reconciled their
// relations onto surviving instances; recomputing from membership discards
// those entries.
func (b *Backend) rebuildInverses() {
	for name, a := range b.arenas {
		repo, ok := b.repos[name]
		if !ok {
			continue
		}
		for _, inst := range a.items {
			for _, inv := range repo.model.Inverses() {
				if inv.Collection {
					inst.Set(inv.Name, []*model.Instance{})
				} else {
					inst.Set(inv.Name, nil)
				}
			}
		}
	}
	for name, a := range b.arenas {
		repo, ok := b.repos[name]
		if !ok {
			continue
		}
		for _, pk := range a.order {
			if inst, ok := a.items[pk]; ok {
				repo.reconcile(inst)
			}
		}
	}
}
