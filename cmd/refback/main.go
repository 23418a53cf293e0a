package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/refback/internal/config"
	"github.com/nvandessel/refback/internal/logging"
	"github.com/nvandessel/refback/internal/sequence"
	"github.com/nvandessel/refback/internal/session"
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
		Use:   "refback",
		Short: "Reference-back trial sequence generator",
		Long: `refback generates balanced trial sequences for the reference-back
working-memory task.

Each block pairs a uniform random stimulus stream with a reference-flag
stream whose adjacent-repeat rate matches a target proportion, and labels
every trial with the remembered stimulus and whether it matches.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.refback/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newGenerateCmd(),
		newSessionCmd(),
		newSimulateCmd(),
		newConfigCmd(),
		newBackupCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadConfig resolves configuration for a command: --config file or the
// default locations, then the --log-level flag.
func loadConfig(cmd *cobra.Command) (*config.RefbackConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.RefbackConfig
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// newLogger builds the operational logger on the command's stderr.
func newLogger(cmd *cobra.Command, cfg *config.RefbackConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// openSearchLog opens the JSONL search trace in ~/.refback. Returns nil at
// info level or when the directory is unavailable.
func openSearchLog(cfg *config.RefbackConfig) *logging.SearchLog {
	dir, err := config.Dir()
	if err != nil {
		return nil
	}
	return logging.NewSearchLog(dir, cfg.Logging.Level)
}

// addSequenceFlags registers the search overrides shared by several commands.
func addSequenceFlags(cmd *cobra.Command) {
	cmd.Flags().Int("trials", 0, "Trials per block (default from config)")
	cmd.Flags().Float64("target", 0, "Target proportion of equal adjacent reference flags (default from config)")
	cmd.Flags().Int("max-iter", 0, "Search budget in candidate draws (default from config)")
}

// applySequenceFlags copies explicitly set search flags into cfg.
func applySequenceFlags(cmd *cobra.Command, cfg *sequence.SearchConfig) {
	if cmd.Flags().Changed("trials") {
		cfg.Trials, _ = cmd.Flags().GetInt("trials")
	}
	if cmd.Flags().Changed("target") {
		cfg.TargetProportion, _ = cmd.Flags().GetFloat64("target")
	}
	if cmd.Flags().Changed("max-iter") {
		cfg.MaxIterations, _ = cmd.Flags().GetInt("max-iter")
	}
}

// resolveSeed returns --seed when given, else the configured seed, else a
// fresh one.
func resolveSeed(cmd *cobra.Command, cfg *config.RefbackConfig) uint64 {
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetUint64("seed")
		return seed
	}
	if cfg.Session.Seed != 0 {
		return cfg.Session.Seed
	}
	return session.NewSeed()
}

// openOutput returns the --out file, or the command's stdout when unset.
func openOutput(cmd *cobra.Command) (io.Writer, func() error, error) {
	out, _ := cmd.Flags().GetString("out")
	if out == "" || out == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(out)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}
