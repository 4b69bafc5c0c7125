package group

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/artpar/stratum/adapters/memory"
	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/core/schema"
	"github.com/artpar/stratum/ports"
)

// houseWorld compiles the house/kitchen/shelf domain, registers it with an
// in-memory backend, and returns the class tree rooted at houses.
func houseWorld(t *testing.T) (ports.Backend, *model.Registry, *Class) {
	t.Helper()

	defs := []schema.Definition{
		{
			Plural:   "houses",
			Singular: "house",
			Fields: []schema.FieldDef{
				{Name: "address", Spec: schema.String()},
			},
		},
		{
			Plural:   "kitchens",
			Singular: "kitchen",
			Fields: []schema.FieldDef{
				{Name: "house", Spec: schema.Named("houses")},
				{Name: "shelves", Spec: schema.List(schema.Named("shelves"))},
			},
		},
		{
			Plural:   "shelves",
			Singular: "shelf",
			Fields: []schema.FieldDef{
				{Name: "content", Spec: schema.List(schema.String())},
				{Name: "length", Spec: schema.Float()},
			},
		},
	}

	reg := model.NewRegistry()
	if _, err := model.CompileSet(defs, reg); err != nil {
		t.Fatalf("CompileSet failed: %v", err)
	}

	b := memory.New(zerolog.Nop())
	ctx := context.Background()
	for _, m := range reg.All() {
		if err := b.Register(ctx, m); err != nil {
			t.Fatalf("Register %s failed: %v", m.UniqueName(), err)
		}
	}

	houses, _ := reg.ByPlural("houses")
	kitchens, _ := reg.ByPlural("kitchens")
	shelves, _ := reg.ByPlural("shelves")

	root := NewClass(houses)
	kitchenClass := root.Subclass(kitchens)
	shelfClass := kitchenClass.Subclass(shelves)
	shelfClass.MustSearchFields("content")

	return b, reg, root
}

// fillHouse persists one house owning one kitchen with the given shelves.
func fillHouse(t *testing.T, b ports.Backend, reg *model.Registry, address string, shelves ...*model.Instance) *model.Instance {
	t.Helper()
	ctx := context.Background()

	housesM, _ := reg.ByPlural("houses")
	kitchensM, _ := reg.ByPlural("kitchens")

	house := housesM.MustInstance(map[string]any{"address": address})
	kitchen := kitchensM.MustInstance(map[string]any{"house": house, "shelves": shelves})

	repo, err := b.Repository(kitchensM)
	if err != nil {
		t.Fatalf("Repository failed: %v", err)
	}
	if err := repo.AddAll(ctx, kitchen); err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	return house
}

func shelf(t *testing.T, reg *model.Registry, length float64, content ...string) *model.Instance {
	t.Helper()
	shelvesM, _ := reg.ByPlural("shelves")
	return shelvesM.MustInstance(map[string]any{"content": content, "length": length})
}

func TestNavigationDownAndUp(t *testing.T) {
	b, reg, root := houseWorld(t)
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

	// Down twice across a back-reference and a declared field.
	kitchens, err := houses.Sub(ctx, "kitchens")
	if err != nil {
		t.Fatalf("Sub(kitchens) failed: %v", err)
	}
	shelves, err := kitchens.Sub(ctx, "shelves")
	if err != nil {
		t.Fatalf("Sub(shelves) failed: %v", err)
	}
	if n, _ := shelves.Count(ctx); n != 3 {
		t.Errorf("shelves count = %d, want 3", n)
	}

	// Narrow, then climb back up to houses.
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

func TestSuperOnRootFails(t *testing.T) {
	b, _, root := houseWorld(t)
	ctx := context.Background()

	houses, err := Root(ctx, root, b)
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}
	if _, err := houses.Super(ctx); err == nil {
		t.Error("Super on root succeeded, want error")
	}
	if _, err := houses.Sub(ctx, "garages"); err == nil {
		t.Error("Sub with undeclared name succeeded, want error")
	}
}

func TestSearchFieldsValidatesNames(t *testing.T) {
	_, reg, _ := houseWorld(t)
	shelvesM, _ := reg.ByPlural("shelves")

	c := NewClass(shelvesM)
	if err := c.SearchFields("content", "width"); err == nil {
		t.Error("SearchFields with unknown name succeeded, want error")
	}
	if err := c.SearchFields("content", "length"); err != nil {
		t.Errorf("SearchFields with known names failed: %v", err)
	}
}

func TestRecursiveSearchFindsOwningHouse(t *testing.T) {
	b, reg, root := houseWorld(t)
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

	// The top-level group holds exactly the owning house.
	if n, _ := res.Group.Count(ctx); n != 1 {
		t.Errorf("top-level count = %d, want 1", n)
	}
	matched, err := res.Group.View().All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(matched) != 1 || matched[0] != berryHouse {
		t.Errorf("matched house = %v, want the berry house", matched)
	}

	// The nested shelf result carries all three content matches.
	shelfRes := res.Sub["kitchens"].Sub["shelves"]
	if shelfRes == nil {
		t.Fatal("missing kitchens.shelves subresult")
	}
	if len(shelfRes.PKs) != 1 {
		t.Fatalf("shelf match pks = %v, want one shelf", shelfRes.PKs)
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
	want := map[any]bool{"blueberry": true, "blackberry": true, "raspberry": true}
	for _, hit := range hits {
		if !want[hit] {
			t.Errorf("unexpected content match %v", hit)
		}
	}
}

func TestSearchScalarFieldNarrowsGroup(t *testing.T) {
	b, reg, root := houseWorld(t)
	ctx := context.Background()
	root.MustSearchFields("address")

	match := fillHouse(t, b, reg, "1 Berry Lane", shelf(t, reg, 10, "pots"))
	fillHouse(t, b, reg, "2 Plain Rd", shelf(t, reg, 12, "pans"))

	houses, err := Root(ctx, root, b)
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}
	res, err := houses.Search(ctx, "Berry")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	fm, ok := res.Fields["address"]
	if !ok {
		t.Fatal("missing address field result")
	}
	if fm.Group == nil {
		t.Fatal("scalar address field must carry a narrowed group")
	}
	pks, err := fm.Group.PKs(ctx)
	if err != nil {
		t.Fatalf("PKs failed: %v", err)
	}
	if len(pks) != 1 || pks[0] != match.PK() {
		t.Errorf("address group pks = %v, want [%v]", pks, match.PK())
	}
	if got := fm.Matches[match.PK()]; got != "1 Berry Lane" {
		t.Errorf("address match = %v, want the matching address", got)
	}
}

func TestSearchWithoutMatchesYieldsEmptyGroup(t *testing.T) {
	b, reg, root := houseWorld(t)
	ctx := context.Background()

	fillHouse(t, b, reg, "2 Plain Rd", shelf(t, reg, 25, "bread"))

	houses, err := Root(ctx, root, b)
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}
	res, err := houses.Search(ctx, "zzz")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if n, _ := res.Group.Count(ctx); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
	if len(res.PKs) != 0 {
		t.Errorf("pks = %v, want none", res.PKs)
	}
}

func TestSearchIsIdempotent(t *testing.T) {
	b, reg, root := houseWorld(t)
	ctx := context.Background()

	fillHouse(t, b, reg, "1 Berry Lane", shelf(t, reg, 40, "blueberry"))
	fillHouse(t, b, reg, "3 Cherry Ct", shelf(t, reg, 10, "cranberry", "jam"))

	houses, err := Root(ctx, root, b)
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}

	first, err := houses.Search(ctx, "berry")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	second, err := houses.Search(ctx, "berry")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(first.PKs) != len(second.PKs) {
		t.Fatalf("pks differ between runs: %v vs %v", first.PKs, second.PKs)
	}
	for i := range first.PKs {
		if first.PKs[i] != second.PKs[i] {
			t.Errorf("pks[%d] differ: %v vs %v", i, first.PKs[i], second.PKs[i])
		}
	}
}
