package metrics_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/artpar/stratum/adapters/memory"
	"github.com/artpar/stratum/adapters/metrics"
	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/core/schema"
)

func TestNewWithRegistry(t *testing.T) {
	// Use a new registry to avoid conflicts with other tests
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m == nil {
		t.Fatal("NewWithRegistry returned nil")
	}
	if m.OpsTotal == nil {
		t.Error("OpsTotal is nil")
	}
	if m.OpDuration == nil {
		t.Error("OpDuration is nil")
	}
	if m.OpErrors == nil {
		t.Error("OpErrors is nil")
	}
	if m.SearchMatches == nil {
		t.Error("SearchMatches is nil")
	}
	if m.UnitsOfWork == nil {
		t.Error("UnitsOfWork is nil")
	}
	if m.ModelsRegistered == nil {
		t.Error("ModelsRegistered is nil")
	}
}

func TestWrapCountsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewWithRegistry(reg)

	modelReg := model.NewRegistry()
	authors, err := model.Compile(schema.Definition{
		Plural:   "authors",
		Singular: "author",
		Fields: []schema.FieldDef{
			{Name: "name", Spec: schema.String()},
		},
	}, modelReg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	b := metrics.Wrap(memory.New(zerolog.Nop()), collector)
	ctx := context.Background()
	if err := b.Register(ctx, authors); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	repo, err := b.Repository(authors)
	if err != nil {
		t.Fatalf("Repository failed: %v", err)
	}
	if err := repo.Add(ctx, authors.MustInstance(map[string]any{"name": "Eco"})); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	v, err := repo.View(ctx)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if _, err := repo.Search(ctx, v, "E", []string{"name"}); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}

	want := map[string]bool{
		"stratum_repository_ops_total":           false,
		"stratum_repository_op_duration_seconds": false,
		"stratum_search_matches":                 false,
		"stratum_models_registered":              false,
	}
	for _, fam := range families {
		if _, tracked := want[fam.GetName()]; tracked {
			want[fam.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s not gathered", name)
		}
	}
}
