package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dyluth/quill/internal/blob"
	"github.com/dyluth/quill/internal/printer"
	"github.com/dyluth/quill/internal/statemigration"
	"github.com/dyluth/quill/pkg/question"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
)

var (
	migrateTo   int
	migrateOut  string
	migrateDiff bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate FILE",
	Short: "Migrate a question document to a newer state schema version",
	Long: `Migrate a question document on disk, one state schema version at a time.

The migrated document is written to stdout, or to --out. With --diff, a
before/after diff is printed instead of the document (unless --out is given).

The target version defaults to migration.target_version from quill.yml, or
the latest supported version.

Examples:
  # Preview the changes
  quill migrate questions/example-question.json --diff

  # Migrate to v36 only
  quill migrate q.json --to 36 --out q-v36.json`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().IntVar(&migrateTo, "to", 0, "Target state schema version (default from quill.yml)")
	migrateCmd.Flags().StringVarP(&migrateOut, "out", "o", "", "Write the migrated document to this file")
	migrateCmd.Flags().BoolVar(&migrateDiff, "diff", false, "Print a diff of the document before and after migration")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	target := *cfg.Migration.TargetVersion
	if cmd.Flags().Changed("to") {
		target = migrateTo
	}
	earliest, latest := statemigration.EarliestVersion(), statemigration.LatestVersion()
	if target < earliest || target > latest {
		return printer.Error(
			"invalid target version",
			fmt.Sprintf("--to must be between %d and %d, got %d", earliest, latest, target),
			nil,
		)
	}

	q, err := readQuestionFile(path)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	migrator, err := statemigration.New(statemigration.WithLogger(logger))
	if err != nil {
		return err
	}

	before := q.ToDict()
	vs := &statemigration.VersionedState{SchemaVersion: q.SchemaVersion, State: q.StateData}
	fromVersion := vs.SchemaVersion
	steps, err := migrator.MigrateToVersion(vs, target)
	if err != nil {
		return printer.ErrorWithContext(
			"migration failed",
			err.Error(),
			map[string]string{
				"File":       path,
				"Question":   q.ID,
				"Stopped at": fmt.Sprintf("v%d", vs.SchemaVersion),
			},
			[]string{"Fix the reported field and run the migration again"},
		)
	}
	q.StateData = vs.State
	q.SchemaVersion = vs.SchemaVersion

	if fromVersion >= target {
		printer.Warning("%s is already at v%d (target v%d), nothing to migrate\n", path, fromVersion, target)
	}

	if migrateDiff {
		if diff := cmp.Diff(before, q.ToDict()); diff != "" {
			printer.Printf("--- v%d\n+++ v%d\n%s", fromVersion, q.SchemaVersion, diff)
		}
	}

	data, err := json.MarshalIndent(q.ToDict(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal migrated question: %w", err)
	}
	data = append(data, '\n')

	switch {
	case migrateOut != "":
		if err := os.WriteFile(migrateOut, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", migrateOut, err)
		}
		printer.Success("Migrated %s from v%d to v%d (%d steps) → %s\n", q.ID, fromVersion, q.SchemaVersion, steps, migrateOut)
	case !migrateDiff:
		printer.Printf("%s", data)
	}
	return nil
}

// readQuestionFile loads a question document written by "quill store get",
// "quill migrate" or by hand.
func readQuestionFile(path string) (*question.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, printer.Error(
			"cannot read question file",
			err.Error(),
			nil,
		)
	}

	var doc map[string]any
	if err := blob.Unmarshal(data, &doc); err != nil {
		return nil, printer.ErrorWithContext(
			"invalid question file",
			fmt.Sprintf("The file is not a JSON object: %v", err),
			map[string]string{"File": path},
			nil,
		)
	}

	q, err := question.FromDict(doc)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid question file",
			err.Error(),
			map[string]string{"File": path},
			[]string{"Create an example document:\n  quill init"},
		)
	}
	return q, nil
}
