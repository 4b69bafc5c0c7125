// Package stratum maps declarative model definitions onto a storage
// backend and exposes the compiled models through repositories and
// hierarchical groups.
package stratum

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/artpar/stratum/adapters/memory"
	"github.com/artpar/stratum/adapters/metrics"
	"github.com/artpar/stratum/adapters/sqlite"
	"github.com/artpar/stratum/config"
	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/core/schema"
	"github.com/artpar/stratum/ports"
)

// System bundles a backend with the registry of models mapped onto it.
type System struct {
	cfg      *config.Config
	log      zerolog.Logger
	backend  ports.Backend
	registry *model.Registry
	metrics  *metrics.Collector
}

// Open builds the backend named by the configuration. With metrics
// enabled the backend is wrapped in a Prometheus-instrumented
// decorator before use.
func Open(cfg *config.Config, log zerolog.Logger) (*System, error) {
	var backend ports.Backend
	switch cfg.Storage.Driver {
	case "memory":
		backend = memory.New(log)
	case "sqlite":
		b, err := sqlite.Open(cfg.Storage.Path, log)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		backend = b
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	sys := &System{
		cfg:      cfg,
		log:      log,
		backend:  backend,
		registry: model.NewRegistry(),
	}
	if cfg.Metrics.Enabled {
		sys.metrics = metrics.New()
		sys.backend = metrics.Wrap(backend, sys.metrics)
	}

	log.Info().
		Str("driver", cfg.Storage.Driver).
		Bool("metrics", cfg.Metrics.Enabled).
		Msg("storage backend opened")
	return sys, nil
}

// Backend returns the active backend, instrumented when metrics are on.
func (s *System) Backend() ports.Backend { return s.backend }

// Registry returns the compiled model registry.
func (s *System) Registry() *model.Registry { return s.registry }

// Metrics returns the collector, or nil when metrics are disabled.
func (s *System) Metrics() *metrics.Collector { return s.metrics }

// Define compiles a set of definitions together and registers every
// resulting model with the backend. Definitions that reference each
// other must be passed in the same call.
func (s *System) Define(ctx context.Context, defs ...schema.Definition) ([]*model.Model, error) {
	models, err := model.CompileSet(defs, s.registry)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		if err := s.backend.Register(ctx, m); err != nil {
			return nil, fmt.Errorf("register %s: %w", m.UniqueName(), err)
		}
		s.log.Debug().Str("model", m.UniqueName()).Msg("model registered")
	}
	return models, nil
}

// LoadSchemaDir parses every model definition under the configured
// schema directory and registers the result.
func (s *System) LoadSchemaDir(ctx context.Context, dir string) ([]*model.Model, error) {
	defs, err := schema.ParseDir(dir)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, nil
	}
	return s.Define(ctx, defs...)
}

// Repository returns the repository for a registered model by its
// unique name.
func (s *System) Repository(uniqueName string) (ports.Repository, error) {
	m, ok := s.registry.Get(uniqueName)
	if !ok {
		return nil, fmt.Errorf("model %q not registered", uniqueName)
	}
	return s.backend.Repository(m)
}

// Close releases the backend.
func (s *System) Close() error {
	return s.backend.Close()
}
