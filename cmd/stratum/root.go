package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stratum",
	Short: "Object-to-storage mapping with hierarchical groups and recursive search",
	Long: `Stratum maps declarative model definitions onto a storage backend.

Models are defined in YAML, compiled into a registry, and mapped to
tables, relation columns and junction tables. Data is navigated
through hierarchical groups with recursive search.

Quick start:
  stratum validate  # Validate configuration and model definitions
  stratum schema    # Show the compiled models and their layout
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "stratum.yaml", "config file path")
}
