package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileDef mirrors the YAML layout of a model definition file.
type fileDef struct {
	Model     string         `yaml:"model"`
	Plural    string         `yaml:"plural"`
	Namespace string         `yaml:"namespace,omitempty"`
	Doc       string         `yaml:"doc,omitempty"`
	Fields    []fileFieldDef `yaml:"fields"`
}

type fileFieldDef struct {
	Name string `yaml:"name"`

	// Type is a scalar type name ("string", "int", ...). Exactly one of
	// Type, Ref and List must be set.
	Type string `yaml:"type,omitempty"`

	// Ref references another model by plural name (many-to-one).
	Ref string `yaml:"ref,omitempty"`

	// List declares a collection: either a scalar type name or a model's
	// plural name (one-to-many).
	List string `yaml:"list,omitempty"`

	PrimaryKey  bool `yaml:"primary_key,omitempty"`
	Unique      bool `yaml:"unique,omitempty"`
	NonNullable bool `yaml:"non_nullable,omitempty"`
	Indexed     bool `yaml:"indexed,omitempty"`
	IndexLength int  `yaml:"index_length,omitempty"`
}

// ParseFile parses one model definition from a YAML file.
func ParseFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a model definition from YAML bytes. Model references are left
// as named types and bound when the definition set is compiled.
func Parse(data []byte) (Definition, error) {
	var fd fileDef
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return Definition{}, fmt.Errorf("parse yaml: %w", err)
	}

	def := Definition{
		Plural:    fd.Plural,
		Singular:  fd.Model,
		Namespace: fd.Namespace,
		Doc:       fd.Doc,
	}
	for _, ff := range fd.Fields {
		spec, err := ff.spec()
		if err != nil {
			return Definition{}, fmt.Errorf("model %q field %q: %w", fd.Plural, ff.Name, err)
		}
		def.Fields = append(def.Fields, FieldDef{Name: ff.Name, Spec: spec})
	}

	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// ParseDir parses all model definitions under dir, including subdirectories.
func ParseDir(dir string) ([]Definition, error) {
	var defs []Definition

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			sub, err := ParseDir(path)
			if err != nil {
				return nil, err
			}
			defs = append(defs, sub...)
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		def, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, nil
}

func (ff fileFieldDef) spec() (FieldSpec, error) {
	var base Type
	switch {
	case ff.Type != "" && ff.Ref == "" && ff.List == "":
		kind, err := ParseScalarKind(ff.Type)
		if err != nil {
			return nil, err
		}
		base = Type{Kind: kind}
	case ff.Ref != "" && ff.Type == "" && ff.List == "":
		base = Named(ff.Ref)
	case ff.List != "" && ff.Type == "" && ff.Ref == "":
		if kind, err := ParseScalarKind(ff.List); err == nil {
			base = List(Type{Kind: kind})
		} else {
			base = List(Named(ff.List))
		}
	default:
		return nil, fmt.Errorf("exactly one of type, ref and list must be set")
	}

	// Innermost constraint first, so the chain reads the same as the
	// programmatic PrimaryKey(Indexed(Unique(...))) nesting.
	var spec FieldSpec = base
	if ff.NonNullable {
		spec = NonNullable(spec)
	}
	if ff.Unique {
		spec = Unique(spec)
	}
	if ff.Indexed {
		length := ff.IndexLength
		if length <= 0 {
			length = DefaultIndexLength
		}
		spec = IndexedLen(spec, length)
	}
	if ff.PrimaryKey {
		spec = PrimaryKey(spec)
	}
	return spec, nil
}
