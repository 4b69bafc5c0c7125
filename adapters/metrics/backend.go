package metrics

import (
	"context"
	"time"

	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/ports"
)

// Backend decorates another backend, instrumenting every repository it
// hands out.
type Backend struct {
	inner     ports.Backend
	collector *Collector
}

// Wrap instruments a backend.
func Wrap(inner ports.Backend, collector *Collector) *Backend {
	return &Backend{inner: inner, collector: collector}
}

func (b *Backend) Register(ctx context.Context, m *model.Model) error {
	if err := b.inner.Register(ctx, m); err != nil {
		return err
	}
	b.collector.ModelsRegistered.Inc()
	return nil
}

func (b *Backend) Repository(m *model.Model) (ports.Repository, error) {
	repo, err := b.inner.Repository(m)
	if err != nil {
		return nil, err
	}
	return &repository{inner: repo, collector: b.collector}, nil
}

func (b *Backend) Close() error { return b.inner.Close() }

// repository times and counts every operation of the wrapped repository.
type repository struct {
	inner     ports.Repository
	collector *Collector
}

func (r *repository) observe(op string, start time.Time, err error) {
	name := r.inner.Model().UniqueName()
	r.collector.OpsTotal.WithLabelValues(name, op).Inc()
	r.collector.OpDuration.WithLabelValues(name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		r.collector.OpErrors.WithLabelValues(name, op).Inc()
	}
}

func (r *repository) Model() *model.Model { return r.inner.Model() }

func (r *repository) View(ctx context.Context) (ports.View, error) {
	start := time.Now()
	v, err := r.inner.View(ctx)
	r.observe("view", start, err)
	return v, err
}

func (r *repository) ViewOf(ctx context.Context, pks []any) (ports.View, error) {
	start := time.Now()
	v, err := r.inner.ViewOf(ctx, pks)
	r.observe("view_of", start, err)
	return v, err
}

func (r *repository) Add(ctx context.Context, inst *model.Instance) error {
	start := time.Now()
	err := r.inner.Add(ctx, inst)
	r.observe("add", start, err)
	return err
}

func (r *repository) AddAll(ctx context.Context, inst *model.Instance) error {
	start := time.Now()
	err := r.inner.AddAll(ctx, inst)
	r.observe("add_all", start, err)
	return err
}

func (r *repository) Remove(ctx context.Context, inst *model.Instance) error {
	start := time.Now()
	err := r.inner.Remove(ctx, inst)
	r.observe("remove", start, err)
	return err
}

func (r *repository) Search(ctx context.Context, v ports.View, pattern string, fields []string) (ports.SearchResult, error) {
	start := time.Now()
	res, err := r.inner.Search(ctx, v, pattern, fields)
	r.observe("search", start, err)
	if err == nil {
		r.collector.SearchMatches.WithLabelValues(r.inner.Model().UniqueName()).
			Observe(float64(len(res.MatchingPKs)))
	}
	return res, err
}

func (r *repository) SubmodelView(ctx context.Context, v ports.View, fieldName string, target *model.Model) (ports.View, error) {
	start := time.Now()
	out, err := r.inner.SubmodelView(ctx, v, fieldName, target)
	r.observe("submodel_view", start, err)
	return out, err
}

func (r *repository) SupermodelView(ctx context.Context, v ports.View, fieldName string, target *model.Model) (ports.View, error) {
	start := time.Now()
	out, err := r.inner.SupermodelView(ctx, v, fieldName, target)
	r.observe("supermodel_view", start, err)
	return out, err
}

func (r *repository) Related(ctx context.Context, inst *model.Instance, fieldName string) ([]*model.Instance, error) {
	start := time.Now()
	out, err := r.inner.Related(ctx, inst, fieldName)
	r.observe("related", start, err)
	return out, err
}

func (r *repository) UnitOfWork(ctx context.Context, fn func(ctx context.Context) error) error {
	r.collector.UnitsOfWork.Inc()
	r.collector.UoWsInFlight.Inc()
	defer r.collector.UoWsInFlight.Dec()

	err := r.inner.UnitOfWork(ctx, fn)
	if err != nil {
		r.collector.Rollbacks.Inc()
	}
	return err
}
