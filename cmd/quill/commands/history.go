package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dyluth/quill/internal/history"
	"github.com/dyluth/quill/internal/printer"
	"github.com/dyluth/quill/internal/timespec"
	"github.com/dyluth/quill/pkg/question"
	"github.com/spf13/cobra"
)

var (
	historySince  string
	historyUntil  string
	historyOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history [QUESTION_ID]",
	Short: "Show recorded migration attempts",
	Long: `Show the migration history ledger.

With QUESTION_ID, lists every recorded migration attempt of that question in
chronological order. Without it, prints how many attempts ended in each status.

Examples:
  quill history q-123 --since 24h
  quill history q-123 -o jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historySince, "since", "", "Show attempts after time (duration or RFC3339)")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "Show attempts before time (duration or RFC3339)")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "default", "Output format: default or jsonl")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if historyOutput != "default" && historyOutput != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", historyOutput),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	since, until, err := timespec.ParseRange(historySince, historyUntil, time.Now())
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use duration format like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z'"},
		)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	recorder, err := history.Open(cfg.History.DSN)
	if err != nil {
		return printer.ErrorWithContext("cannot open migration history", err.Error(), map[string]string{"DSN": cfg.History.DSN}, nil)
	}
	defer recorder.Close()

	if len(args) == 0 {
		counts, err := recorder.CountByStatus(ctx)
		if err != nil {
			return err
		}
		for _, status := range []question.MigrationStatus{
			question.MigrationStatusApplied,
			question.MigrationStatusSkipped,
			question.MigrationStatusFailed,
		} {
			printer.Printf("%-8s %d\n", status, counts[status])
		}
		return nil
	}

	records, err := recorder.ForQuestion(ctx, args[0], since, until)
	if err != nil {
		return err
	}

	if historyOutput == "jsonl" {
		return formatRecordsJSONL(cmd.OutOrStdout(), records)
	}

	if len(records) == 0 {
		printer.Printf("No migration attempts recorded for question '%s'\n", args[0])
		return nil
	}
	printer.Printf("%-20s %-16s %-8s %-9s %s\n", "RECORDED", "AGE", "STATUS", "VERSIONS", "ERROR")
	for _, r := range records {
		printer.Printf("%-20s %-16s %-8s %-9s %s\n",
			r.Time().UTC().Format("2006-01-02 15:04:05"),
			humanize.Time(r.Time()),
			r.Status,
			fmt.Sprintf("v%d→v%d", r.FromVersion, r.ToVersion),
			r.Error,
		)
	}
	return nil
}

func formatRecordsJSONL(w io.Writer, records []history.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}
