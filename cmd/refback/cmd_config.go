package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nvandessel/refback/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage refback configuration",
		Long: `View and modify refback configuration settings.

Configuration is stored in ~/.refback/config.yaml.

Examples:
  refback config list                            # Show all settings
  refback config get sequence.trials             # Get a specific setting
  refback config set sequence.trials 80          # Set a setting
  refback config set store.db_path ~/lab/refback.db`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

// configKeys lists the dot-notation keys in display order.
var configKeys = []string{
	"sequence.trials",
	"sequence.target_proportion",
	"sequence.max_iterations",
	"session.blocks",
	"session.continuous_numbering",
	"session.alphabet",
	"session.seed",
	"logging.level",
	"store.db_path",
	"backup.retention.max_count",
	"backup.retention.max_age",
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), cfg)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration (~/.refback/config.yaml):")
			fmt.Fprintln(out)
			for _, key := range configKeys {
				value, _ := getConfigValue(cfg, key)
				if s, ok := value.(string); ok && s == "" {
					value = "(default)"
				}
				fmt.Fprintf(out, "  %-30s %v\n", key+":", value)
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), map[string]any{"key": key, "value": value})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			// Edit the file alone so environment overrides are not persisted.
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				var err error
				if path, err = config.Path(); err != nil {
					return err
				}
			}
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				var err error
				if cfg, err = config.LoadFromFile(path); err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := config.SaveToFile(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), map[string]any{"status": "updated", "key": key, "value": value})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.RefbackConfig, key string) (any, bool) {
	switch key {
	case "sequence.trials":
		return cfg.Sequence.Trials, true
	case "sequence.target_proportion":
		return cfg.Sequence.TargetProportion, true
	case "sequence.max_iterations":
		return cfg.Sequence.MaxIterations, true
	case "session.blocks":
		return cfg.Session.Blocks, true
	case "session.continuous_numbering":
		return cfg.Session.ContinuousNumbering, true
	case "session.alphabet":
		return cfg.Session.Alphabet, true
	case "session.seed":
		return cfg.Session.Seed, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "store.db_path":
		return cfg.Store.DBPath, true
	case "backup.retention.max_count":
		return cfg.Backup.Retention.MaxCount, true
	case "backup.retention.max_age":
		return cfg.Backup.Retention.MaxAge, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.RefbackConfig, key, value string) error {
	switch key {
	case "sequence.trials":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid trials: %s (must be an integer)", value)
		}
		cfg.Sequence.Trials = n
	case "sequence.target_proportion":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid target proportion: %s (must be a number between 0 and 1)", value)
		}
		cfg.Sequence.TargetProportion = f
	case "sequence.max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max iterations: %s (must be an integer)", value)
		}
		cfg.Sequence.MaxIterations = n
	case "session.blocks":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid blocks: %s (must be an integer)", value)
		}
		cfg.Session.Blocks = n
	case "session.continuous_numbering":
		cfg.Session.ContinuousNumbering = value == "true" || value == "1"
	case "session.alphabet":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid alphabet: %s (must be an integer)", value)
		}
		cfg.Session.Alphabet = n
	case "session.seed":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed: %s (must be a non-negative integer)", value)
		}
		cfg.Session.Seed = n
	case "logging.level":
		cfg.Logging.Level = value
	case "store.db_path":
		cfg.Store.DBPath = value
	case "backup.retention.max_count":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max count: %s (must be an integer)", value)
		}
		cfg.Backup.Retention.MaxCount = n
	case "backup.retention.max_age":
		cfg.Backup.Retention.MaxAge = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
