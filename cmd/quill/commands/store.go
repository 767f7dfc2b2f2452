package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/quill/internal/config"
	"github.com/dyluth/quill/internal/health"
	"github.com/dyluth/quill/internal/history"
	"github.com/dyluth/quill/internal/inventory"
	"github.com/dyluth/quill/internal/printer"
	"github.com/dyluth/quill/internal/registry"
	"github.com/dyluth/quill/internal/resolver"
	"github.com/dyluth/quill/internal/statemigration"
	"github.com/dyluth/quill/internal/timespec"
	"github.com/dyluth/quill/internal/upgrade"
	"github.com/dyluth/quill/pkg/question"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	storeOutputFormat string
	storeSince        string
	storeUntil        string
	storeIDGlob       string
	storeLanguage     string
	storeSchema       int
	storeInteraction  string
	storeMigrateAll   bool
	storeMigrateTo    int
	storeMetricsAddr  string
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage questions in the question store",
	Long: `Manage the questions held in the Redis question store configured in quill.yml.

Question ids may be abbreviated to any unique prefix of at least 6 characters.`,
}

var storePutCmd = &cobra.Command{
	Use:   "put FILE",
	Short: "Save a question document to the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runStorePut,
}

var storeGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Print a stored question with its skill links",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreGet,
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a stored question",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreDelete,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored questions with filtering",
	Long: `List stored questions as a table or JSONL stream.

Output Formats:
  default - Human-readable table
  jsonl   - Line-delimited JSON, one question document per line

Time Filters (on last update):
  --since  - Show questions updated after this time
  --until  - Show questions updated before this time

Examples:
  # Questions still below v40
  quill store list --schema-version 38

  # Recently migrated questions as JSONL for jq
  quill store list --since 1h -o jsonl | jq .id`,
	Args: cobra.NoArgs,
	RunE: runStoreList,
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate [ID | --all]",
	Short: "Migrate stored questions to the target state schema version",
	Long: `Migrate stored questions to the target state schema version.

Each question is locked while it migrates, so concurrent runs never migrate
the same question twice. Every attempt is recorded in the history ledger and
published to "quill watch".

A question whose migration fails is left unchanged in the store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStoreMigrate,
}

func init() {
	storeListCmd.Flags().StringVarP(&storeOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	storeListCmd.Flags().StringVar(&storeSince, "since", "", "Show questions updated after time (duration or RFC3339)")
	storeListCmd.Flags().StringVar(&storeUntil, "until", "", "Show questions updated before time (duration or RFC3339)")
	storeListCmd.Flags().StringVar(&storeIDGlob, "id", "", "Filter by question id (glob pattern)")
	storeListCmd.Flags().StringVar(&storeLanguage, "language", "", "Filter by language code (exact match)")
	storeListCmd.Flags().IntVar(&storeSchema, "schema-version", 0, "Filter by state schema version (exact match)")
	storeListCmd.Flags().StringVar(&storeInteraction, "interaction", "", "Filter by interaction id (exact match)")

	storeMigrateCmd.Flags().BoolVar(&storeMigrateAll, "all", false, "Migrate every question below the target version")
	storeMigrateCmd.Flags().IntVar(&storeMigrateTo, "to", 0, "Target state schema version (default from quill.yml)")
	storeMigrateCmd.Flags().StringVar(&storeMetricsAddr, "metrics-addr", "", "Serve /healthz and /metrics on this address while migrating")

	storeCmd.AddCommand(storePutCmd, storeGetCmd, storeDeleteCmd, storeListCmd, storeMigrateCmd)
	rootCmd.AddCommand(storeCmd)
}

func runStorePut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	q, err := readQuestionFile(args[0])
	if err != nil {
		return err
	}
	if q.ID == "" {
		return printer.Error("invalid question file", "Expected ID to be a non-empty string", nil)
	}

	reg, err := registry.Default()
	if err != nil {
		return err
	}
	// Stored questions below a snapshot version cannot be fully validated
	// until they are migrated.
	if err := q.Validate(reg); err != nil && question.IsValidation(err) {
		return printer.ErrorWithContext("question is invalid", err.Error(), map[string]string{"File": args[0]}, nil)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	now := time.Now().UnixMilli()
	if existing, err := client.GetQuestion(ctx, q.ID); err == nil {
		q.CreatedOnMs = existing.CreatedOnMs
	} else if !question.IsNotFound(err) {
		return fmt.Errorf("failed to read existing question: %w", err)
	}
	if q.CreatedOnMs == 0 {
		q.CreatedOnMs = now
	}
	q.LastUpdatedMs = now

	if err := client.SaveQuestion(ctx, q); err != nil {
		return fmt.Errorf("failed to save question: %w", err)
	}
	printer.Success("Saved question %s (schema v%d)\n", q.ID, q.SchemaVersion)
	return nil
}

func runStoreGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := resolveQuestionID(ctx, client, args[0])
	if err != nil {
		return err
	}

	if err := inventory.GetQuestion(ctx, client, id, cmd.OutOrStdout()); err != nil {
		if inventory.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("question with ID '%s' not found", id),
				"The question was resolved but could not be fetched.",
				[]string{"This might indicate a concurrent delete. Try again."},
			)
		}
		return fmt.Errorf("failed to get question: %w", err)
	}
	return nil
}

func runStoreDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := resolveQuestionID(ctx, client, args[0])
	if err != nil {
		return err
	}
	if err := client.DeleteQuestion(ctx, id); err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	printer.Success("Deleted question %s\n", id)
	return nil
}

func runStoreList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var format inventory.OutputFormat
	switch storeOutputFormat {
	case "default":
		format = inventory.OutputFormatDefault
	case "jsonl":
		format = inventory.OutputFormatJSONL
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", storeOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	since, until, err := timespec.ParseRange(storeSince, storeUntil, time.Now())
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use duration format like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z'"},
		)
	}

	criteria := &inventory.Criteria{
		IDGlob:        storeIDGlob,
		LanguageCode:  storeLanguage,
		SchemaVersion: storeSchema,
		InteractionID: storeInteraction,
	}
	if !since.IsZero() {
		criteria.SinceTimestampMs = since.UnixMilli()
	}
	if !until.IsZero() {
		criteria.UntilTimestampMs = until.UnixMilli()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := inventory.ListQuestions(ctx, client, format, criteria, cmd.OutOrStdout(), cmd.ErrOrStderr()); err != nil {
		return fmt.Errorf("failed to list questions: %w", err)
	}
	return nil
}

func runStoreMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if storeMigrateAll == (len(args) == 1) {
		return printer.Error(
			"nothing to migrate",
			"Specify either a question ID or --all.",
			[]string{"Migrate one question:\n  quill store migrate <ID>", "Migrate every question:\n  quill store migrate --all"},
		)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	target := *cfg.Migration.TargetVersion
	if cmd.Flags().Changed("to") {
		target = storeMigrateTo
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if storeMetricsAddr != "" {
		stop, err := startHealthServer(client, logger, storeMetricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	service, recorder, err := newUpgradeService(client, cfg, target, logger)
	if err != nil {
		return err
	}
	defer recorder.Close()

	if storeMigrateAll {
		summary, err := service.MigrateAll(ctx)
		if summary != nil {
			printer.Info("Migrated questions to v%d: %d applied, %d skipped, %d failed\n",
				service.Target(), summary.Applied, summary.Skipped, summary.Failed)
		}
		if err != nil {
			failures := multierr.Errors(err)
			return printer.ErrorWithContext(
				fmt.Sprintf("%d question(s) failed to migrate", len(failures)),
				joinErrors(failures),
				map[string]string{"Target": fmt.Sprintf("v%d", service.Target())},
				[]string{"Failed questions are unchanged; inspect them with:\n  quill history <ID>"},
			)
		}
		return nil
	}

	id, err := resolveQuestionID(ctx, client, args[0])
	if err != nil {
		return err
	}
	result, err := service.MigrateQuestion(ctx, id)
	if err != nil {
		return printer.ErrorWithContext(
			"migration failed",
			err.Error(),
			map[string]string{"Question": id},
			[]string{"The stored question is unchanged"},
		)
	}
	printResult(result)
	return nil
}

func newUpgradeService(client *question.Client, cfg *config.QuillConfig, target int, logger *zap.Logger) (*upgrade.Service, *history.Recorder, error) {
	migrator, err := statemigration.New(statemigration.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}

	recorder, err := history.Open(cfg.History.DSN)
	if err != nil {
		return nil, nil, printer.ErrorWithContext(
			"cannot open migration history",
			err.Error(),
			map[string]string{"DSN": cfg.History.DSN},
			[]string{fmt.Sprintf("Check history.dsn in %s", configPath)},
		)
	}

	service, err := upgrade.NewService(client, migrator, target,
		upgrade.WithLogger(logger),
		upgrade.WithRecorder(recorder),
		upgrade.WithConcurrency(cfg.Migration.Concurrency),
		upgrade.WithLockTTL(cfg.Migration.LockTTL),
	)
	if err != nil {
		recorder.Close()
		return nil, nil, printer.Error("invalid migration target", err.Error(), nil)
	}
	return service, recorder, nil
}

// startHealthServer serves /healthz and /metrics on addr until the returned
// func is called.
func startHealthServer(client *question.Client, logger *zap.Logger, addr string) (func(), error) {
	srv := health.NewServer(client, logger)
	if err := srv.Start(addr); err != nil {
		return nil, printer.Error("cannot start metrics server", err.Error(), []string{"Choose a free address with --metrics-addr"})
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

func printResult(r *upgrade.Result) {
	switch r.Status {
	case question.MigrationStatusApplied:
		printer.Success("Migrated %s from v%d to v%d (%d steps)\n", r.QuestionID, r.FromVersion, r.ToVersion, r.StepsApplied)
	case question.MigrationStatusSkipped:
		printer.Info("Skipped %s: %s\n", r.QuestionID, r.Reason)
	}
}

func joinErrors(errs []error) string {
	var msg string
	for _, err := range errs {
		msg += fmt.Sprintf("  - %v\n", err)
	}
	return msg
}

// resolveQuestionID expands a short id, reporting failures with printer.
func resolveQuestionID(ctx context.Context, client *question.Client, shortID string) (string, error) {
	id, err := resolver.ResolveQuestionID(ctx, client, shortID)
	if err == nil {
		return id, nil
	}

	var ambiguous *resolver.AmbiguousError
	switch {
	case resolver.IsNotFoundError(err):
		return "", printer.Error(
			fmt.Sprintf("question with ID '%s' not found", shortID),
			"The specified question does not exist in the store.",
			[]string{"List all questions:\n  quill store list"},
		)
	case errors.As(err, &ambiguous):
		return "", printer.Error("ambiguous short ID", resolver.FormatAmbiguousError(ambiguous), nil)
	default:
		return "", printer.Error("invalid question ID", err.Error(), nil)
	}
}
