package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/stratum/config"
	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/core/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the compiled models and their storage layout",
	Long: `Compile the model definitions in the schema directory and print
each model with its fields, relations and back-references.

Examples:
  stratum schema
  stratum schema --dir ./models`,
	RunE: runSchema,
}

var schemaDir string

func init() {
	rootCmd.AddCommand(schemaCmd)

	schemaCmd.Flags().StringVar(&schemaDir, "dir", "", "schema directory (defaults to the configured one)")
}

func runSchema(cmd *cobra.Command, args []string) error {
	dir := schemaDir
	if dir == "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		dir = cfg.Schema.Dir
	}

	defs, err := schema.ParseDir(dir)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		fmt.Printf("No model definitions found in %s\n", dir)
		return nil
	}

	reg := model.NewRegistry()
	models, err := model.CompileSet(defs, reg)
	if err != nil {
		return err
	}

	for _, m := range models {
		printModel(m)
	}
	return nil
}

func printModel(m *model.Model) {
	fmt.Printf("%s (%s/%s)\n", m.UniqueName(), m.SingularName(), m.PluralName())
	if m.Doc() != "" {
		fmt.Printf("  %s\n", m.Doc())
	}

	for _, f := range m.Fields() {
		fmt.Printf("  %-20s %s", f.Name, f.Resolved.Type.String())
		if f.Name == m.PKFieldName() {
			fmt.Printf("  identity")
			if !m.PKDeclared() {
				fmt.Printf(" (synthesized)")
			}
		}
		if f.IsRelation() {
			fmt.Printf("  %s -> %s", f.Resolved.Relation, f.Target.UniqueName())
		}
		if f.IsJunction() {
			fmt.Printf("  junction table %s_%s", m.UniqueName(), f.Name)
		}
		if f.Resolved.Options.Unique {
			fmt.Printf("  unique")
		}
		if f.Resolved.Options.NonNullable {
			fmt.Printf("  not null")
		}
		for _, idx := range f.Resolved.Indexes {
			if idx.PrefixLength > 0 {
				fmt.Printf("  indexed(%d)", idx.PrefixLength)
			} else {
				fmt.Printf("  indexed")
			}
		}
		fmt.Println()
	}

	for _, inv := range m.Inverses() {
		shape := "one"
		if inv.Collection {
			shape = "many"
		}
		fmt.Printf("  %-20s <- %s.%s (%s)\n", inv.Name, inv.Owner.UniqueName(), inv.Field, shape)
	}
	fmt.Println()
}
