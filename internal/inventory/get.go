package inventory

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/quill/pkg/question"
)

// Detail is the full view of one stored question printed by "store get".
type Detail struct {
	Question      map[string]any            `json:"question"`
	CreatedOnMs   int64                     `json:"created_on_ms,omitempty"`
	LastUpdatedMs int64                     `json:"last_updated_ms,omitempty"`
	SkillLinks    *question.MergedSkillLink `json:"skill_links"`
}

// GetQuestion retrieves a single question with its skill links and writes it
// as pretty-printed JSON to w.
func GetQuestion(ctx context.Context, store Store, questionID string, w io.Writer) error {
	q, err := store.GetQuestion(ctx, questionID)
	if err != nil {
		if question.IsNotFound(err) {
			return &QuestionNotFoundError{QuestionID: questionID}
		}
		return fmt.Errorf("failed to fetch question: %w", err)
	}

	links, err := store.GetSkillLinks(ctx, questionID)
	if err != nil {
		return fmt.Errorf("failed to fetch skill links: %w", err)
	}
	merged, err := question.MergeSkillLinks(questionID, links)
	if err != nil {
		return err
	}

	detail := &Detail{
		Question:      q.ToDict(),
		CreatedOnMs:   q.CreatedOnMs,
		LastUpdatedMs: q.LastUpdatedMs,
		SkillLinks:    merged,
	}
	if err := FormatSingleJSON(w, detail); err != nil {
		return fmt.Errorf("failed to format question: %w", err)
	}
	return nil
}

// QuestionNotFoundError represents a specific "question not found" error.
type QuestionNotFoundError struct {
	QuestionID string
}

func (e *QuestionNotFoundError) Error() string {
	return fmt.Sprintf("question with ID '%s' not found", e.QuestionID)
}

// IsNotFound returns true if the error is a QuestionNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*QuestionNotFoundError)
	return ok
}
