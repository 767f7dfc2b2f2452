// Package inventory lists and prints questions held in the question store.
package inventory

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/dyluth/quill/pkg/question"
)

// OutputFormat specifies how to format the question list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated content
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete questions as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// Store is the subset of the question store used for listing.
type Store interface {
	Namespace() string
	ListQuestionIDs(ctx context.Context) ([]string, error)
	GetQuestion(ctx context.Context, questionID string) (*question.Question, error)
	GetSkillLinks(ctx context.Context, questionID string) ([]question.SkillLink, error)
}

// ListQuestions writes every stored question matching filters to w.
// Questions are sorted by last update time, then id, for stable output.
// Questions that cannot be read are skipped with a warning to warn.
func ListQuestions(ctx context.Context, store Store, format OutputFormat, filters *Criteria, w, warn io.Writer) error {
	ids, err := store.ListQuestionIDs(ctx)
	if err != nil {
		return err
	}

	var questions []*question.Question
	for _, id := range ids {
		q, err := store.GetQuestion(ctx, id)
		if err != nil {
			if question.IsNotFound(err) {
				// Deleted since the scan
				continue
			}
			fmt.Fprintf(warn, "⚠️  Skipping malformed question: id=%s (error: %v)\n", id, err)
			continue
		}

		if filters != nil && !filters.Matches(q) {
			continue
		}
		questions = append(questions, q)
	}

	sort.SliceStable(questions, func(i, j int) bool {
		if questions[i].LastUpdatedMs != questions[j].LastUpdatedMs {
			return questions[i].LastUpdatedMs < questions[j].LastUpdatedMs
		}
		return questions[i].ID < questions[j].ID
	})

	switch format {
	case OutputFormatDefault:
		FormatTable(w, questions, store.Namespace())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, questions); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
