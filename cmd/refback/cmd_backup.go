package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/refback/internal/backup"
	"github.com/nvandessel/refback/internal/pathutil"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the session database to a compressed file",
		Long: `Write every stored session to a checksummed, gzip-compressed backup file.

Default location: ~/.refback/backups/refback-backup-YYYYMMDD-HHMMSS.json.gz
Old backups are pruned according to backup.retention (default: last 10).
Explicit paths must lie in ~/.refback/backups or the current directory.

Examples:
  refback backup                                 # Backup to default location
  refback backup --output ./before-pilot.json.gz # Backup to a specific file
  refback backup list                            # List backups
  refback backup verify <file>                   # Check a backup's checksum
  refback backup restore <file> --mode replace   # Restore sessions`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if outputPath == "" {
				dir, err := backup.DefaultBackupDir()
				if err != nil {
					return fmt.Errorf("failed to get backup directory: %w", err)
				}
				outputPath = backup.GenerateBackupPath(dir, time.Now())
			} else if err := checkBackupPath(outputPath); err != nil {
				return fmt.Errorf("backup path rejected: %w", err)
			}

			s, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			header, err := backup.Backup(cmd.Context(), s, outputPath)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			policy, err := backup.NewPolicy(cfg.Backup.Retention.MaxCount, cfg.Backup.Retention.MaxAge)
			if err != nil {
				return err
			}
			deleted, err := backup.ApplyRetention(filepath.Dir(outputPath), policy)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to apply retention: %v\n", err)
			}
			newLogger(cmd, cfg).Debug("backup written", "path", outputPath, "pruned", len(deleted))

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), map[string]any{
					"path":     outputPath,
					"sessions": header.SessionCount,
					"trials":   header.TrialCount,
					"checksum": header.Checksum,
					"pruned":   len(deleted),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %d sessions, %d trials\n", header.SessionCount, header.TrialCount)
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", outputPath)
			return nil
		},
	}

	cmd.PersistentFlags().String("db", "", "Session database (default from config)")
	cmd.Flags().String("output", "", "Output file path (default: auto-generated in ~/.refback/backups/)")

	cmd.AddCommand(
		newBackupListCmd(),
		newBackupVerifyCmd(),
		newBackupRestoreCmd(),
	)

	return cmd
}

// checkBackupPath rejects backup files outside ~/.refback/backups and the
// working directory.
func checkBackupPath(path string) error {
	wd, err := os.Getwd()
	if err != nil {
		wd = ""
	}
	allowed, err := pathutil.AllowedBackupDirs(wd)
	if err != nil {
		return err
	}
	return pathutil.ValidatePath(path, allowed)
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups in ~/.refback/backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			dir, err := backup.DefaultBackupDir()
			if err != nil {
				return err
			}
			backups, err := backup.ListBackups(dir)
			if err != nil {
				return err
			}

			if jsonOut {
				if backups == nil {
					backups = []backup.BackupInfo{}
				}
				return encodeJSON(cmd.OutOrStdout(), map[string]any{"backups": backups, "count": len(backups)})
			}

			if len(backups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups found.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tSESSIONS\tSIZE\tCREATED")
			for _, b := range backups {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", filepath.Base(b.Path), b.Sessions, b.Size,
					b.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify the checksum of a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			header, err := backup.Verify(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", pathutil.RedactPath(args[0]), err)
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), map[string]any{"status": "ok", "header": header})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d sessions, %d trials, created %s\n",
				header.SessionCount, header.TrialCount, header.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore sessions from a backup file",
		Long: `Restore sessions from a backup file.

Modes:
  merge   - Skip sessions that are already stored (default)
  replace - Overwrite stored sessions with the backed-up copy`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeName, _ := cmd.Flags().GetString("mode")

			mode, err := backup.ParseRestoreMode(modeName)
			if err != nil {
				return err
			}
			if err := checkBackupPath(args[0]); err != nil {
				return fmt.Errorf("restore path rejected: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := backup.Restore(cmd.Context(), s, args[0], mode)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d sessions (%d skipped)\n", result.SessionsRestored, result.SessionsSkipped)
			return nil
		},
	}

	cmd.Flags().String("mode", "merge", "Restore mode: merge or replace")

	return cmd
}
