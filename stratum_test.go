package stratum

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/artpar/stratum/config"
	"github.com/artpar/stratum/core/schema"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Driver: "memory"},
		Logging: config.LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Driver = "cassandra"
	if _, err := Open(cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestDefineAndRepository(t *testing.T) {
	sys, err := Open(memoryConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sys.Close()

	ctx := context.Background()
	models, err := sys.Define(ctx, schema.Definition{
		Plural:   "cities",
		Singular: "city",
		Fields: []schema.FieldDef{
			{Name: "name", Spec: schema.String()},
		},
	})
	if err != nil {
		t.Fatalf("Define: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("Define returned %d models, want 1", len(models))
	}

	repo, err := sys.Repository(models[0].UniqueName())
	if err != nil {
		t.Fatalf("Repository: %v", err)
	}

	inst := models[0].MustInstance(map[string]any{"name": "Lisbon"})
	if err := repo.Add(ctx, inst); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if inst.PK() != int64(1) {
		t.Errorf("first identity = %v, want 1", inst.PK())
	}
}

func TestRepositoryUnknownModel(t *testing.T) {
	sys, err := Open(memoryConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sys.Close()

	if _, err := sys.Repository("stratum_ghosts"); err == nil {
		t.Fatal("expected error for unregistered model")
	}
}

func TestLoadSchemaDir(t *testing.T) {
	dir := t.TempDir()
	def := `
model: planet
plural: planets
fields:
  - name: title
    type: string
  - name: moons
    list: string
`
	if err := os.WriteFile(filepath.Join(dir, "planets.yaml"), []byte(def), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}

	sys, err := Open(memoryConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sys.Close()

	models, err := sys.LoadSchemaDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadSchemaDir: %v", err)
	}
	if len(models) != 1 || models[0].PluralName() != "planets" {
		t.Fatalf("unexpected models: %v", models)
	}
}

func TestOpenWithMetricsWrapsBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Metrics.Enabled = true

	sys, err := Open(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sys.Close()

	if sys.Metrics() == nil {
		t.Fatal("collector should be present when metrics are enabled")
	}

	ctx := context.Background()
	if _, err := sys.Define(ctx, schema.Definition{
		Plural:   "sensors",
		Singular: "sensor",
		Fields:   []schema.FieldDef{{Name: "label", Spec: schema.String()}},
	}); err != nil {
		t.Fatalf("Define through instrumented backend: %v", err)
	}
}
