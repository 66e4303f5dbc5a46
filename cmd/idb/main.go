package main

import (
	"fmt"
	"os"
	"strings"

	"idb-go/internal/app"
	"idb-go/internal/config"
	"idb-go/internal/idb"
	"idb-go/internal/model"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an IDBApp. The caller must defer app.Close().
func newApp() (*app.IDBApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewIDBApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:   "idb",
	Short: "Instrument calibration catalog",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Attachments: %s\n", cfg.Attachments.Type)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the catalog database",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and migrate it to the latest schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		if err := app.InitDatabase(cfg.Database); err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}

		fmt.Println("Database initialized.")
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the database schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		if err := app.DatabaseStatus(cfg.Database); err != nil {
			return fmt.Errorf("database check failed: %w", err)
		}

		fmt.Println("Database schema is up to date.")
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export OUTPUT_DIR",
	Short: "Export the catalog as a schema file plus attachments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		releaseTag, _ := cmd.Flags().GetString("release")
		useYAML, _ := cmd.Flags().GetBool("yaml")
		noAttachments, _ := cmd.Flags().GetBool("no-attachments")
		onlyTree, _ := cmd.Flags().GetBool("only-tree")
		force, _ := cmd.Flags().GetBool("force")
		skipEmptyEntities, _ := cmd.Flags().GetBool("skip-empty-entities")
		skipEmptyQuantities, _ := cmd.Flags().GetBool("skip-empty-quantities")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		format := idb.FormatJSON
		if useYAML {
			format = idb.FormatYAML
		}

		schemaPath, err := a.Service().Export(idb.ExportConfig{
			NoAttachments:       noAttachments,
			OnlyTree:            onlyTree,
			Overwrite:           force,
			SkipEmptyEntities:   skipEmptyEntities,
			SkipEmptyQuantities: skipEmptyQuantities,
			Format:              format,
			OutputDir:           args[0],
		}, releaseTag)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Schema written to %s\n", schemaPath)
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import SCHEMA_FILE...",
	Short: "Import one or more schema files into the catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noOverwrite, _ := cmd.Flags().GetBool("no-overwrite")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.Service().Import(args, idb.ImportOptions{
			DryRun:      dryRun,
			NoOverwrite: noOverwrite,
		})
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		if dryRun {
			fmt.Println("Dry run complete, nothing was changed.")
		} else {
			fmt.Printf("Imported %d schema file(s)\n", len(args))
		}
		return nil
	},
}

// release command
var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Manage releases",
}

var releaseUpdateDumpsCmd = &cobra.Command{
	Use:   "update-dumps",
	Short: "Build cached JSON dumps for releases that lack one",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().UpdateReleaseDumps(force); err != nil {
			return fmt.Errorf("updating release dumps: %w", err)
		}

		fmt.Println("Release dumps are up to date.")
		return nil
	},
}

// tree command
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the entity tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		count := 0
		err = a.Service().WalkEntityTree(func(entity *model.Entity, depth int) error {
			fmt.Printf("%s%s\n", strings.Repeat("  ", depth), entity.Name)
			count++
			return nil
		})
		if err != nil {
			return err
		}

		if count == 0 {
			fmt.Println("No entities.")
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbStatusCmd)

	// release subcommands
	releaseCmd.AddCommand(releaseUpdateDumpsCmd)
	releaseUpdateDumpsCmd.Flags().Bool("force", false, "Rebuild dumps even for releases that already have one")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String("release", "", "Export only the given release")
	exportCmd.Flags().Bool("yaml", false, "Write the schema as YAML instead of JSON")
	exportCmd.Flags().Bool("no-attachments", false, "Do not copy attachment files")
	exportCmd.Flags().Bool("only-tree", false, "Export only the entity tree")
	exportCmd.Flags().BoolP("force", "f", false, "Allow writing into a non-empty directory")
	exportCmd.Flags().Bool("skip-empty-entities", false, "Prune entities with no data files in their subtree")
	exportCmd.Flags().Bool("skip-empty-quantities", false, "Omit quantities with no data files")
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().Bool("dry-run", false, "Parse and report without changing anything")
	importCmd.Flags().Bool("no-overwrite", false, "Skip records that already exist")
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(treeCmd)
}
