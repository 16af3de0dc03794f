package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hakim/inspector/internal/config"
	"github.com/hakim/inspector/internal/logging"
)

var (
	cfgFile   string
	verbose   bool
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "inspector",
	Short: "Authorized reconnaissance scanner",
	Long: `Inspector runs token-gated reconnaissance against a single target:
DNS record enumeration (A, AAAA, MX, NS, TXT), HTTP HEAD reachability over
http:// and https://, and TCP banner collection across a port list.

Every scan is bounded by a concurrency limit, a per-probe rate floor and a
per-probe timeout. Results are written as JSON reports and tracked in a local
scan history database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		skipConfig := map[string]bool{
			"init":    true,
			"help":    true,
			"version": true,
		}

		if skipConfig[cmd.Name()] {
			logger = logging.Discard()
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger, logCloser, err = logging.New(level, cfg.Log.File)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}

		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: search for inspector.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output and debug logging")

	// Version flag
	rootCmd.Version = "0.1.0-dev"
}

// Execute runs the root command. The audit log is closed afterwards whether
// or not the command succeeded.
func Execute() (err error) {
	defer func() {
		if cerr := closeLog(); err == nil {
			err = cerr
		}
	}()
	return rootCmd.Execute()
}

func closeLog() error {
	if logCloser == nil {
		return nil
	}
	c := logCloser
	logCloser = nil
	return c.Close()
}
