package group

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/artpar/stratum/adapters/sqlite"
	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/ports"
)

// houseWorldSQL registers the house/kitchen/shelf domain on a fresh SQLite
// backend. Navigation and search must behave the same over SQL as over the
// in-memory arenas.
func houseWorldSQL(t *testing.T) (ports.Backend, *model.Registry, *Class) {
	t.Helper()

	_, reg, root := houseWorld(t)

	b, err := sqlite.Open(filepath.Join(t.TempDir(), "world.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	ctx := context.Background()
	for _, m := range reg.All() {
		if err := b.Register(ctx, m); err != nil {
			t.Fatalf("Register %s failed: %v", m.UniqueName(), err)
		}
	}
	return b, reg, root
}

func TestNavigationDownAndUpOverSQL(t *testing.T) {
	b, reg, root := houseWorldSQL(t)
	ctx := context.Background()

	fillHouse(t, b, reg, "12 Main St",
		shelf(t, reg, 20.5, "pots"),
		shelf(t, reg, 30, "flour", "sugar"),
		shelf(t, reg, 50, "jam"),
	)

	houses, err := Root(ctx, root, b)
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}

	kitchens, err := houses.Sub(ctx, "kitchens")
	if err != nil {
		t.Fatalf("Sub(kitchens) failed: %v", err)
	}
	shelves, err := kitchens.Sub(ctx, "shelves")
	if err != nil {
		t.Fatalf("Sub(shelves) failed: %v", err)
	}
	long, err := shelves.Where(ctx, shelves.Model().F("length").Ge(30))
	if err != nil {
		t.Fatalf("Where failed: %v", err)
	}
	if n, _ := long.Count(ctx); n != 2 {
		t.Errorf("long shelves count = %d, want 2", n)
	}

	backToKitchens, err := long.Super(ctx)
	if err != nil {
		t.Fatalf("Super to kitchens failed: %v", err)
	}
	backToHouses, err := backToKitchens.Super(ctx)
	if err != nil {
		t.Fatalf("Super to houses failed: %v", err)
	}
	if n, _ := backToHouses.Count(ctx); n != 1 {
		t.Errorf("houses reachable from long shelves = %d, want 1", n)
	}
}

func TestRecursiveSearchOverSQL(t *testing.T) {
	b, reg, root := houseWorldSQL(t)
	ctx := context.Background()

	berryHouse := fillHouse(t, b, reg, "1 Berry Lane",
		shelf(t, reg, 40, "blueberry", "blackberry", "raspberry"),
	)
	fillHouse(t, b, reg, "2 Plain Rd",
		shelf(t, reg, 25, "bread"),
	)

	houses, err := Root(ctx, root, b)
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}

	res, err := houses.Search(ctx, "berry")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if n, _ := res.Group.Count(ctx); n != 1 {
		t.Errorf("top-level count = %d, want 1", n)
	}

	// SQL hydrates fresh instances, so compare by identity.
	matched, err := res.Group.PKs(ctx)
	if err != nil {
		t.Fatalf("PKs failed: %v", err)
	}
	if len(matched) != 1 || matched[0] != berryHouse.PK() {
		t.Errorf("matched pks = %v, want [%v]", matched, berryHouse.PK())
	}

	shelfRes := res.Sub["kitchens"].Sub["shelves"]
	if shelfRes == nil {
		t.Fatal("missing kitchens.shelves subresult")
	}
	fm, ok := shelfRes.Fields["content"]
	if !ok {
		t.Fatal("missing content field result")
	}
	if fm.Group != nil {
		t.Error("junction-backed content field must not carry a narrowed group")
	}
	hits, ok := fm.Matches[shelfRes.PKs[0]].([]any)
	if !ok || len(hits) != 3 {
		t.Fatalf("content matches = %v, want three", fm.Matches[shelfRes.PKs[0]])
	}
}
