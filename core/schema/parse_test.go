package schema

import (
	"os"
	"path/filepath"
	"testing"
)

const houseYAML = `
model: house
plural: houses
namespace: demo
doc: A building people live in.
fields:
  - name: address
    type: string
    indexed: true
    index_length: 32
  - name: rooms
    type: int
  - name: owner
    ref: owners
  - name: tags
    list: string
`

func TestParse(t *testing.T) {
	def, err := Parse([]byte(houseYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if def.Plural != "houses" || def.Singular != "house" {
		t.Errorf("names = %q/%q, want houses/house", def.Plural, def.Singular)
	}
	if def.UniqueName() != "demo_houses" {
		t.Errorf("unique name = %q, want demo_houses", def.UniqueName())
	}
	if len(def.Fields) != 4 {
		t.Fatalf("fields = %d, want 4", len(def.Fields))
	}

	address, err := Resolve("address", def.Fields[0].Spec)
	if err != nil {
		t.Fatalf("Resolve address failed: %v", err)
	}
	if len(address.Indexes) != 1 || address.Indexes[0].PrefixLength != 32 {
		t.Errorf("address indexes = %+v, want prefix 32", address.Indexes)
	}

	owner, err := Resolve("owner", def.Fields[2].Spec)
	if err != nil {
		t.Fatalf("Resolve owner failed: %v", err)
	}
	if owner.Relation != RelationManyToOne || owner.Type.Name != "owners" {
		t.Errorf("owner = %+v, want many-to-one ref to owners", owner)
	}

	tags, err := Resolve("tags", def.Fields[3].Spec)
	if err != nil {
		t.Fatalf("Resolve tags failed: %v", err)
	}
	if tags.Relation != RelationOneToMany || tags.Type.Kind != KindString {
		t.Errorf("tags = %+v, want one-to-many of string", tags)
	}
}

func TestParseRejectsAmbiguousFieldType(t *testing.T) {
	_, err := Parse([]byte(`
model: thing
plural: things
fields:
  - name: bad
    type: string
    ref: others
`))
	if err == nil {
		t.Error("field with both type and ref accepted, want error")
	}

	_, err = Parse([]byte(`
model: thing
plural: things
fields:
  - name: bad
`))
	if err == nil {
		t.Error("field with no type accepted, want error")
	}
}

func TestParseRejectsUnknownScalar(t *testing.T) {
	_, err := Parse([]byte(`
model: thing
plural: things
fields:
  - name: bad
    type: decimal
`))
	if err == nil {
		t.Error("unknown scalar type accepted, want error")
	}
}

func TestParseDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "houses.yaml"), []byte(houseYAML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "owners.yml"), []byte(`
model: owner
plural: owners
fields:
  - name: name
    type: string
`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	defs, err := ParseDir(dir)
	if err != nil {
		t.Fatalf("ParseDir failed: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("defs = %d, want 2", len(defs))
	}
}
