package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/quill/internal/printer"
	"github.com/dyluth/quill/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchTimeout      time.Duration
	watchVersion      int
	watchMetricsAddr  string
)

var watchCmd = &cobra.Command{
	Use:   "watch [QUESTION_ID]",
	Short: "Stream migration events, or wait for a question to be migrated",
	Long: `Stream migration events published by "quill store migrate" until interrupted.

With QUESTION_ID, waits instead until that question reaches the target state
schema version (or --schema-version), polling the store.

Output Formats:
  default - Human-readable, one line per event
  json    - Line-delimited JSON`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format: default or json")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", time.Minute, "How long to wait for QUESTION_ID")
	watchCmd.Flags().IntVar(&watchVersion, "schema-version", 0, "Schema version to wait for (default: target version)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve /healthz and /metrics on this address while streaming")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := watch.ParseOutputFormat(watchOutputFormat)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, json"})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 0 {
		if watchMetricsAddr != "" {
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()
			stop, err := startHealthServer(client, logger, watchMetricsAddr)
			if err != nil {
				return err
			}
			defer stop()
		}
		printer.Info("Watching migration events in namespace '%s' (Ctrl+C to stop)...\n", cfg.Namespace)
		return watch.StreamMigrationEvents(ctx, client, format, cmd.OutOrStdout())
	}

	id, err := resolveQuestionID(ctx, client, args[0])
	if err != nil {
		return err
	}
	version := *cfg.Migration.TargetVersion
	if watchVersion > 0 {
		version = watchVersion
	}

	q, err := watch.PollForSchemaVersion(ctx, client, id, version, watchTimeout)
	if err != nil {
		return printer.ErrorWithContext(
			"question not migrated",
			err.Error(),
			map[string]string{"Question": id, "Version": fmt.Sprintf("v%d", version)},
			[]string{fmt.Sprintf("Migrate it now:\n  quill store migrate %s", id)},
		)
	}
	printer.Success("Question %s is at v%d\n", q.ID, q.SchemaVersion)
	return nil
}
