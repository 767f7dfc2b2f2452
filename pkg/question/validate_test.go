package question

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPolicy struct {
	canHaveSolution bool
	err             error
}

func (p stubPolicy) CanHaveSolution(string, int) (bool, error) {
	return p.canHaveSolution, p.err
}

// validQuestion returns a TextInput question that passes Validate.
func validQuestion() *Question {
	q := CreateDefaultQuestion("q1", []string{"skill-1"}, 40)
	interaction := q.StateData["interaction"].(map[string]any)
	interaction["id"] = "TextInput"
	interaction["answer_groups"] = []any{
		map[string]any{
			"outcome": map[string]any{
				"dest":                nil,
				"feedback":            map[string]any{"content_id": "feedback_1", "html": "<p>Yes</p>"},
				"labelled_as_correct": true,
			},
			"rule_specs": []any{},
		},
	}
	interaction["hints"] = []any{
		map[string]any{"hint_content": map[string]any{"content_id": "hint_1", "html": "<p>Hint</p>"}},
	}
	interaction["solution"] = map[string]any{
		"answer_is_exclusive": false,
		"correct_answer":      "4",
		"explanation":         map[string]any{"content_id": "solution", "html": "<p>4</p>"},
	}
	return q
}

func TestValidate(t *testing.T) {
	policy := stubPolicy{canHaveSolution: true}

	t.Run("valid question", func(t *testing.T) {
		assert.NoError(t, validQuestion().Validate(policy))
	})

	tests := []struct {
		name    string
		mutate  func(q *Question)
		message string
	}{
		{"empty id", func(q *Question) { q.ID = "" }, "Expected ID to be a non-empty string"},
		{"negative version", func(q *Question) { q.Version = -1 }, "Expected version to be a non-negative integer"},
		{"empty language", func(q *Question) { q.LanguageCode = "" }, "Expected language_code to be a non-empty string"},
		{"unsupported language", func(q *Question) { q.LanguageCode = "xx" }, "Invalid language code: xx"},
		{"no skills", func(q *Question) { q.LinkedSkillIDs = nil }, "linked_skill_ids is either null or an empty list"},
		{"duplicate skills", func(q *Question) { q.LinkedSkillIDs = []string{"a", "a"} }, "linked_skill_ids has duplicate skill ids"},
		{"bad schema version", func(q *Question) { q.SchemaVersion = 0 }, "Expected schema version to be a positive integer"},
		{"null state", func(q *Question) { q.StateData = nil }, "Expected question state data to be a mapping"},
		{
			"no correct answer",
			func(q *Question) {
				group := q.StateData["interaction"].(map[string]any)["answer_groups"].([]any)[0].(map[string]any)
				group["outcome"].(map[string]any)["labelled_as_correct"] = false
			},
			"Expected at least one answer group to have a correct answer.",
		},
		{
			"destination set",
			func(q *Question) {
				interaction := q.StateData["interaction"].(map[string]any)
				interaction["default_outcome"].(map[string]any)["dest"] = "Next"
			},
			"Expected all answer groups to have destination as None.",
		},
		{
			"no hints",
			func(q *Question) { q.StateData["interaction"].(map[string]any)["hints"] = []any{} },
			"Expected the question to have at least one hint",
		},
		{
			"missing solution",
			func(q *Question) { q.StateData["interaction"].(map[string]any)["solution"] = nil },
			"Expected the question to have a solution",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuestion()
			tt.mutate(q)
			err := q.Validate(policy)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestPartialValidate(t *testing.T) {
	t.Run("ignores id and version", func(t *testing.T) {
		q := validQuestion()
		q.ID = ""
		q.Version = -1
		assert.NoError(t, q.PartialValidate(stubPolicy{canHaveSolution: true}))
	})

	t.Run("solution optional when interaction cannot have one", func(t *testing.T) {
		q := validQuestion()
		q.StateData["interaction"].(map[string]any)["solution"] = nil
		assert.NoError(t, q.PartialValidate(stubPolicy{canHaveSolution: false}))
	})

	t.Run("policy errors are not validation errors", func(t *testing.T) {
		q := validQuestion()
		q.StateData["interaction"].(map[string]any)["solution"] = nil
		lookupErr := errors.New("unknown interaction")
		err := q.PartialValidate(stubPolicy{err: lookupErr})
		require.Error(t, err)
		assert.ErrorIs(t, err, lookupErr)
		assert.False(t, IsValidation(err))
	})

	t.Run("default question is incomplete", func(t *testing.T) {
		q := CreateDefaultQuestion("q1", []string{"skill-1"}, 40)
		err := q.PartialValidate(stubPolicy{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "correct answer")
	})
}
