package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/refback/internal/logging"
	"github.com/nvandessel/refback/internal/session"
	"github.com/nvandessel/refback/internal/trials"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a single block of trials",
		Long: `Generate one reference-back block and print its trial table.

The reference stream is searched until its adjacent-repeat rate equals the
closest rate achievable for the block length, or the search budget runs out.

Examples:
  refback generate                               # 60 trials, target 0.75
  refback generate --trials 40 --seed 7          # reproducible block
  refback generate --block 2 --start 61 --format csv --out block2.csv
  refback generate --format arrow --out block.arrow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			block, _ := cmd.Flags().GetInt("block")
			start, _ := cmd.Flags().GetInt("start")
			feedback, _ := cmd.Flags().GetBool("feedback")
			format, _ := cmd.Flags().GetString("format")
			if jsonOut && !cmd.Flags().Changed("format") {
				format = "json"
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applySequenceFlags(cmd, &cfg.Sequence)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cmd, cfg)
			searchLog := openSearchLog(cfg)
			defer searchLog.Close()

			seed := resolveSeed(cmd, cfg)
			opts := trials.BlockOptions{Block: block, StartTrial: start, Feedback: feedback}
			table, search, err := trials.NewBlock(opts, cfg.Sequence, cfg.Session.Alphabet, session.BlockRand(seed, block))
			if err != nil {
				return fmt.Errorf("failed to generate block: %w", err)
			}
			logger.Debug("block generated", "seed", seed, "block", block, "trials", table.Len())
			logging.LogSearch(logger, block, search)
			searchLog.LogSearch("", block, search)

			w, closeOut, err := openOutput(cmd)
			if err != nil {
				return err
			}
			if err := writeTable(w, table, format); err != nil {
				closeOut()
				return err
			}
			return closeOut()
		},
	}

	addSequenceFlags(cmd)
	cmd.Flags().Int("block", 1, "Block number written to every row")
	cmd.Flags().Int("start", 1, "Number of the first trial")
	cmd.Flags().Bool("feedback", false, "Mark the block as showing feedback")
	cmd.Flags().Uint64("seed", 0, "Random seed (default from config, else random)")
	cmd.Flags().String("format", "table", "Output format: table, csv, json or arrow")
	cmd.Flags().String("out", "", "Write output to a file instead of stdout")

	return cmd
}

// writeTable renders a trial table in the requested format.
func writeTable(w io.Writer, table *trials.Table, format string) error {
	switch format {
	case "table", "":
		return writeTextTable(w, table)
	case "csv":
		return trials.WriteCSV(w, table)
	case "json":
		return trials.WriteJSON(w, table)
	case "arrow":
		return trials.WriteArrow(w, table)
	default:
		return fmt.Errorf("unknown format %q (valid: table, csv, json, arrow)", format)
	}
}

func writeTextTable(w io.Writer, table *trials.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIAL\tBLOCK\tSTIM\tREF\tIN_MEM\tSAME\tTRIGGER\tEXPECTED\tFEEDBACK")
	for _, r := range table.Rows() {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%v\t%s\t%v\t%d\t%s\t%v\n",
			r.Trial, r.Block, stimName(r.Stim), r.Reference, stimName(r.InMem), r.IsSame, r.Trigger, r.Expected, r.Feedback)
	}
	return tw.Flush()
}

func stimName(stim int) string {
	if stim >= 0 && stim < len(trials.StimulusNames) {
		return trials.StimulusNames[stim]
	}
	return fmt.Sprint(stim)
}

// encodeJSON writes v as indented JSON.
func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
