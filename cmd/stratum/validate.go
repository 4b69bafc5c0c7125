package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/stratum/adapters/sqlite"
	"github.com/artpar/stratum/config"
	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/core/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and model definitions",
	Long: `Validate the stratum configuration file and schema directory.

Checks:
  - YAML syntax is valid
  - Storage driver is known
  - Model definitions compile (optional)
  - Database is writable (optional)

Examples:
  stratum validate
  stratum validate --check-schema --check-database
  stratum validate --watch`,
	RunE: runValidate,
}

var (
	validateCheckSchema   bool
	validateCheckDatabase bool
	validateWatch         bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckSchema, "check-schema", false, "compile the model definitions in the schema directory")
	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if the database is writable")
	validateCmd.Flags().BoolVar(&validateWatch, "watch", false, "keep running and revalidate when the config file changes")
}

func runValidate(cmd *cobra.Command, args []string) error {
	if err := validateOnce(); err != nil {
		if !validateWatch {
			return err
		}
		fmt.Fprintf(os.Stderr, "validation failed: %v\n", err)
	}

	if !validateWatch {
		return nil
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	holder, err := config.NewHolder(cfgFile, log)
	if err != nil {
		return err
	}
	defer holder.Stop()

	holder.OnChange(func(*config.Config) {
		if err := validateOnce(); err != nil {
			fmt.Fprintf(os.Stderr, "validation failed: %v\n", err)
		}
	})
	if err := holder.WatchFile(); err != nil {
		return err
	}
	holder.WatchSignals()

	fmt.Printf("\nWatching %s for changes, Ctrl-C to stop.\n", cfgFile)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	return nil
}

func validateOnce() error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	// Check file exists
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	// Load and validate config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config syntax valid\n", checkMark)

	// Show config summary
	fmt.Printf("  %s Storage: %s", checkMark, cfg.Storage.Driver)
	if cfg.Storage.Driver == "sqlite" {
		fmt.Printf(" (%s)", cfg.Storage.Path)
	}
	fmt.Println()
	fmt.Printf("  %s Schema dir: %s\n", checkMark, cfg.Schema.Dir)

	// Optional: compile the model definitions
	if validateCheckSchema {
		n, err := checkSchemaCompiles(cfg.Schema.Dir)
		if err != nil {
			fmt.Printf("  %s Model definitions compile\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
			return err
		}
		fmt.Printf("  %s Model definitions compile (%d models)\n", checkMark, n)
	}

	// Optional: check database
	if validateCheckDatabase {
		if err := checkDatabaseWritable(cfg.Storage.Path); err != nil {
			fmt.Printf("  %s Database writable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
			return err
		}
		fmt.Printf("  %s Database writable\n", checkMark)
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func checkSchemaCompiles(dir string) (int, error) {
	defs, err := schema.ParseDir(dir)
	if err != nil {
		return 0, err
	}
	models, err := model.CompileSet(defs, model.NewRegistry())
	if err != nil {
		return 0, err
	}
	return len(models), nil
}

func checkDatabaseWritable(path string) error {
	b, err := sqlite.Open(path, zerolog.Nop())
	if err != nil {
		return err
	}
	return b.Close()
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
