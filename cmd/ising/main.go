package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/ising/internal/config"
	"github.com/nvandessel/ising/internal/logging"
	"github.com/nvandessel/ising/internal/pathutil"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ising",
		Short: "2D Ising model Metropolis Monte Carlo",
		Long: `ising anneals a two-dimensional Ising lattice with periodic boundaries
through a descending temperature schedule using single-spin-flip Metropolis
dynamics, and records energies, magnetizations and spin configurations.

Results are written as plain files under the output root and, optionally,
into a SQLite run catalog that the summarize and runs commands read.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", "", "Output root directory (overrides config)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./ising.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newSummarizeCmd(),
		newRunsCmd(),
		newCheckpointCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// loadConfig resolves the configuration for a command: defaults, config
// file, environment, then global flags.
func loadConfig(cmd *cobra.Command) (*config.IsingConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("root") {
		cfg.Output.Root, _ = cmd.Flags().GetString("root")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	return cfg, nil
}

// outputRoot returns the usable output root for cfg. Roots that are empty
// or start with '_' or a shell redirect character resolve to the working
// directory.
func outputRoot(cfg *config.IsingConfig) string {
	if root := pathutil.AcceptableRoot(cfg.Output.Root); root != "" {
		return root
	}
	return "."
}

func newLogger(cfg *config.IsingConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, os.Stderr)
}
