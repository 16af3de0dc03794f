package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/hakim/inspector/internal/auth"
	"github.com/hakim/inspector/internal/config"
	"github.com/hakim/inspector/internal/storage"
)

var (
	initForce bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize inspector with default configuration",
	Long: `Creates a default configuration file (inspector.yaml), an empty token file,
the report directory and the scan history database.

Add tokens to the token file as a JSON array:
  [{"token": "...", "label": "ops"}]`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := afero.NewOsFs()
		out := cmd.OutOrStdout()
		configPath := filepath.Join(initDir, "inspector.yaml")

		if err := fs.MkdirAll(initDir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", initDir, err)
		}

		// Create default config
		if err := config.WriteDefault(fs, configPath, initForce); err != nil {
			return fmt.Errorf("%w. Use --force to overwrite", err)
		}
		fmt.Fprintf(out, "Created %s with default configuration\n", configPath)

		// Load the config we just created to get paths
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		tokenPath := resolvePath(initDir, cfg.TokenFile)
		created, err := auth.WriteEmpty(fs, tokenPath)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(out, "Created empty token file: %s\n", tokenPath)
		} else {
			fmt.Fprintf(out, "Kept existing token file: %s\n", tokenPath)
		}

		outputDir := resolvePath(initDir, cfg.OutputDir)
		if err := fs.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
		fmt.Fprintf(out, "Created report directory: %s\n", outputDir)

		dbPath := resolvePath(initDir, cfg.DBPath)
		store, err := storage.NewStore(dbPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()
		fmt.Fprintf(out, "Initialized database: %s\n", dbPath)

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Inspector initialized successfully!")
		fmt.Fprintf(out, "Add tokens to %s, then run 'inspector validate-token --auth-token <token>'.\n", tokenPath)

		return nil
	},
}

// resolvePath anchors a relative config path at dir
func resolvePath(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config file")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "output directory")
	rootCmd.AddCommand(initCmd)
}
