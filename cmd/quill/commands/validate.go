package commands

import (
	"fmt"
	"strings"

	"github.com/dyluth/quill/internal/custargs"
	"github.com/dyluth/quill/internal/printer"
	"github.com/dyluth/quill/internal/registry"
	"github.com/dyluth/quill/internal/statemigration"
	"github.com/dyluth/quill/pkg/question"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var validatePartial bool

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a question document",
	Long: `Validate a question document and audit its content ids.

Checks the question's metadata, its answer groups, hints and solution, and
that every content id is unique and present in both the voiceover and the
translation mappings.

Use --partial for documents that have not been saved yet (no id or version
checks).`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validatePartial, "partial", false, "Skip id and version checks")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]

	q, err := readQuestionFile(path)
	if err != nil {
		return err
	}

	reg, err := registry.Default()
	if err != nil {
		return err
	}

	// Solution support and the audited customization args are only known
	// from the oldest registry snapshot on.
	if versions := reg.Versions(); len(versions) > 0 && q.SchemaVersion < versions[0] {
		return printer.ErrorWithContext(
			"validation could not run",
			fmt.Sprintf("Schema v%d is older than the oldest interaction registry snapshot (v%d).", q.SchemaVersion, versions[0]),
			map[string]string{"File": path, "Schema version": fmt.Sprintf("v%d", q.SchemaVersion)},
			[]string{fmt.Sprintf("Migrate the document first:\n  quill migrate %s --out %s", path, path)},
		)
	}

	if validatePartial {
		err = q.PartialValidate(reg)
	} else {
		err = q.Validate(reg)
	}
	if err != nil {
		if question.IsValidation(err) {
			return printer.ErrorWithContext(
				"question is invalid",
				err.Error(),
				map[string]string{"File": path, "Question": q.ID},
				nil,
			)
		}
		return printer.ErrorWithContext(
			"validation could not run",
			err.Error(),
			map[string]string{"File": path, "Schema version": fmt.Sprintf("v%d", q.SchemaVersion)},
			[]string{fmt.Sprintf("Migrate the document first:\n  quill migrate %s --out %s", path, path)},
		)
	}

	report, err := statemigration.AuditContentIDs(q.StateData, auditSpecs(reg, q))
	if err != nil {
		return printer.ErrorWithContext("content id audit failed", err.Error(), map[string]string{"File": path}, nil)
	}
	if problems := multierr.Errors(report.Err()); len(problems) > 0 {
		lines := make([]string, len(problems))
		for i, p := range problems {
			lines[i] = "  - " + p.Error()
		}
		return printer.ErrorWithContext(
			"content ids are inconsistent",
			fmt.Sprintf("Found %d problem(s):\n%s", len(problems), strings.Join(lines, "\n")),
			map[string]string{"File": path, "Question": q.ID},
			nil,
		)
	}

	printer.Success("%s is valid (schema v%d, %d content ids)\n", path, q.SchemaVersion, len(report.ContentIDs))
	return nil
}

// auditSpecs returns the specs of q's interaction from the newest snapshot
// at or below its schema version, or nil when there is none.
func auditSpecs(reg *registry.Registry, q *question.Question) []custargs.Spec {
	interaction, _ := q.StateData["interaction"].(map[string]any)
	id, _ := interaction["id"].(string)
	if id == "" {
		return nil
	}

	snapshot := -1
	for _, v := range reg.Versions() {
		if v <= q.SchemaVersion {
			snapshot = v
		}
	}
	if snapshot < 0 {
		return nil
	}

	specs, err := reg.SpecsForSchemaVersion(id, snapshot)
	if err != nil {
		return nil
	}
	return specs
}
