package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/refback/internal/config"
	"github.com/nvandessel/refback/internal/logging"
	"github.com/nvandessel/refback/internal/session"
	"github.com/nvandessel/refback/internal/store"
	"github.com/nvandessel/refback/internal/trials"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Generate and manage multi-block sessions",
		Long: `Generate a full session and keep it in the session database.

A session is a training block with feedback followed by test blocks
without feedback. Sessions are stored in ~/.refback/refback.db unless
--db or store.db_path says otherwise.

Examples:
  refback session create --subject s01           # 5 blocks of 60 trials
  refback session create --subject s02 --blocks 3 --seed 42
  refback session list
  refback session show <id> --block 2
  refback session export <id> --format csv --out s01.csv
  refback session delete <id>`,
	}

	cmd.PersistentFlags().String("db", "", "Session database (default from config)")

	cmd.AddCommand(
		newSessionCreateCmd(),
		newSessionListCmd(),
		newSessionShowCmd(),
		newSessionExportCmd(),
		newSessionDeleteCmd(),
	)

	return cmd
}

// openStore opens the session database named by --db or the config.
func openStore(cmd *cobra.Command, cfg *config.RefbackConfig) (*store.SQLiteSessionStore, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		var err error
		if dbPath, err = cfg.DBPath(); err != nil {
			return nil, err
		}
	}
	s, err := store.NewSQLiteSessionStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return s, nil
}

func newSessionCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate a session and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			subject, _ := cmd.Flags().GetString("subject")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applySequenceFlags(cmd, &cfg.Sequence)
			if cmd.Flags().Changed("blocks") {
				cfg.Session.Blocks, _ = cmd.Flags().GetInt("blocks")
			}
			if cmd.Flags().Changed("continuous") {
				cfg.Session.ContinuousNumbering, _ = cmd.Flags().GetBool("continuous")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cmd, cfg)
			searchLog := openSearchLog(cfg)
			defer searchLog.Close()

			plan := session.DefaultPlan(cfg.Session.Blocks)
			plan.ContinuousNumbering = cfg.Session.ContinuousNumbering

			sess, err := session.Build(cmd.Context(), plan, cfg.Sequence, session.Options{
				Subject:  subject,
				Seed:     resolveSeed(cmd, cfg),
				Alphabet: cfg.Session.Alphabet,
			})
			if err != nil {
				return fmt.Errorf("failed to build session: %w", err)
			}
			for i, bp := range sess.Plan.Blocks {
				logging.LogSearch(logger, bp.Block, sess.Searches[i])
				searchLog.LogSearch(sess.ID, bp.Block, sess.Searches[i])
			}

			s, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.SaveSession(cmd.Context(), sess); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}
			logger.Debug("session stored", "id", sess.ID, "db", s.Path())

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), map[string]any{
					"id":       sess.ID,
					"subject":  sess.Subject,
					"seed":     sess.Seed,
					"blocks":   len(sess.Blocks),
					"trials":   sess.Trials(),
					"searches": sess.Searches,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created session %s\n", sess.ID)
			fmt.Fprintf(out, "  subject: %s\n", valueOrDefault(sess.Subject, "(none)"))
			fmt.Fprintf(out, "  seed:    %d\n", sess.Seed)
			fmt.Fprintf(out, "  trials:  %d in %d blocks\n", sess.Trials(), len(sess.Blocks))
			for i, bp := range sess.Plan.Blocks {
				res := sess.Searches[i]
				status := "converged"
				if !res.Converged {
					status = fmt.Sprintf("best effort, distance %.4f", res.Distance)
				}
				fmt.Fprintf(out, "  block %d: feedback=%v rate=%.4f (%s, %d iterations)\n",
					bp.Block, bp.Feedback, res.Rate, status, res.Iterations)
			}
			return nil
		},
	}

	addSequenceFlags(cmd)
	cmd.Flags().String("subject", "", "Subject identifier stored with the session")
	cmd.Flags().Int("blocks", 0, "Number of blocks (default from config)")
	cmd.Flags().Bool("continuous", false, "Number trials across blocks instead of restarting at 1")
	cmd.Flags().Uint64("seed", 0, "Random seed (default from config, else random)")

	return cmd
}

func newSessionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			subject, _ := cmd.Flags().GetString("subject")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			sessions, err := s.ListSessions(cmd.Context(), subject)
			if err != nil {
				return err
			}

			if jsonOut {
				if sessions == nil {
					sessions = []store.SessionSummary{}
				}
				return encodeJSON(cmd.OutOrStdout(), map[string]any{
					"sessions": sessions,
					"count":    len(sessions),
				})
			}

			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions stored yet.")
				fmt.Fprintln(cmd.OutOrStdout(), "\nUse 'refback session create --subject <id>' to generate one.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSUBJECT\tBLOCKS\tTRIALS\tSEED\tCREATED")
			for _, sum := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
					sum.ID, valueOrDefault(sum.Subject, "-"), sum.Blocks, sum.Trials, sum.Seed,
					sum.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().String("subject", "", "Only list sessions for this subject")

	return cmd
}

func newSessionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the trial tables of a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			onlyBlock, _ := cmd.Flags().GetInt("block")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			sess, err := s.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOut && onlyBlock == 0 {
				return encodeJSON(cmd.OutOrStdout(), sess)
			}

			out := cmd.OutOrStdout()
			for i, bp := range sess.Plan.Blocks {
				if onlyBlock != 0 && bp.Block != onlyBlock {
					continue
				}
				if jsonOut {
					return trials.WriteJSON(out, sess.Blocks[i])
				}
				fmt.Fprintf(out, "Block %d (feedback=%v, rate=%.4f)\n", bp.Block, bp.Feedback, sess.Searches[i].Rate)
				if err := writeTextTable(out, sess.Blocks[i]); err != nil {
					return err
				}
				fmt.Fprintln(out)
			}
			if onlyBlock != 0 && !hasBlock(sess.Plan, onlyBlock) {
				return fmt.Errorf("session %s has no block %d", sess.ID, onlyBlock)
			}
			return nil
		},
	}

	cmd.Flags().Int("block", 0, "Only show this block")

	return cmd
}

func newSessionExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a stored session as one trial table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			sess, err := s.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w, closeOut, err := openOutput(cmd)
			if err != nil {
				return err
			}
			if err := writeTable(w, concatBlocks(sess), format); err != nil {
				closeOut()
				return err
			}
			return closeOut()
		},
	}

	cmd.Flags().String("format", "csv", "Output format: table, csv, json or arrow")
	cmd.Flags().String("out", "", "Write output to a file instead of stdout")

	return cmd
}

func newSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), map[string]string{"status": "deleted", "id": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
			return nil
		},
	}
}

// concatBlocks joins a session's blocks in plan order.
func concatBlocks(sess *session.Session) *trials.Table {
	var rows []trials.Row
	for _, b := range sess.Blocks {
		rows = append(rows, b.Rows()...)
	}
	return trials.NewTable(rows)
}

func hasBlock(plan session.Plan, block int) bool {
	for _, bp := range plan.Blocks {
		if bp.Block == block {
			return true
		}
	}
	return false
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
