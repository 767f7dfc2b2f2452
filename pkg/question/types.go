package question

import (
	"fmt"
	"sort"

	"github.com/dyluth/quill/internal/blob"
)

// DefaultLanguageCode is the language of newly created questions.
const DefaultLanguageCode = "en"

// Question is a single assessment item: one state blob plus the metadata
// that versions and links it.
type Question struct {
	ID             string         `json:"id"`                                 // Unique question id
	StateData      map[string]any `json:"question_state_data"`                // State blob at SchemaVersion
	SchemaVersion  int            `json:"question_state_data_schema_version"` // State schema version of StateData
	LanguageCode   string         `json:"language_code"`                      // ISO 639-1 code
	Version        int            `json:"version"`                            // Edit version, starts at 0
	LinkedSkillIDs []string       `json:"linked_skill_ids"`                   // Skills this question assesses
	CreatedOnMs    int64          `json:"created_on_ms,omitempty"`            // Unix ms
	LastUpdatedMs  int64          `json:"last_updated_ms,omitempty"`          // Unix ms
}

// CreateDefaultQuestion returns a question with an empty default state at
// schemaVersion, version 0 and the default language.
func CreateDefaultQuestion(id string, skillIDs []string, schemaVersion int) *Question {
	return &Question{
		ID:             id,
		StateData:      DefaultQuestionState(),
		SchemaVersion:  schemaVersion,
		LanguageCode:   DefaultLanguageCode,
		Version:        0,
		LinkedSkillIDs: append([]string(nil), skillIDs...),
	}
}

// DefaultQuestionState returns the state blob of a new question: empty
// content, no interaction and a default outcome with no destination.
func DefaultQuestionState() map[string]any {
	return map[string]any{
		"content": map[string]any{
			"content_id": "content",
			"html":       "",
		},
		"param_changes": []any{},
		"interaction": map[string]any{
			"id":                             nil,
			"customization_args":             map[string]any{},
			"answer_groups":                  []any{},
			"confirmed_unclassified_answers": []any{},
			"default_outcome": map[string]any{
				"dest": nil,
				"feedback": map[string]any{
					"content_id": "default_outcome",
					"html":       "",
				},
				"labelled_as_correct":           false,
				"param_changes":                 []any{},
				"refresher_exploration_id":      nil,
				"missing_prerequisite_skill_id": nil,
			},
			"hints":    []any{},
			"solution": nil,
		},
		"recorded_voiceovers": map[string]any{
			"voiceovers_mapping": map[string]any{
				"content":         map[string]any{},
				"default_outcome": map[string]any{},
			},
		},
		"written_translations": map[string]any{
			"translations_mapping": map[string]any{
				"content":         map[string]any{},
				"default_outcome": map[string]any{},
			},
		},
		"solicit_answer_details": false,
		"classifier_model_id":    nil,
		"next_content_id_index":  0,
	}
}

// ToDict returns the JSON-compatible representation of q.
func (q *Question) ToDict() map[string]any {
	skills := make([]any, len(q.LinkedSkillIDs))
	for i, s := range q.LinkedSkillIDs {
		skills[i] = s
	}
	return map[string]any{
		"id":                                 q.ID,
		"question_state_data":                blob.DeepCopyMap(q.StateData),
		"question_state_data_schema_version": q.SchemaVersion,
		"language_code":                      q.LanguageCode,
		"version":                            q.Version,
		"linked_skill_ids":                   skills,
	}
}

// FromDict builds a Question from its dict representation.
func FromDict(d map[string]any) (*Question, error) {
	id, err := blob.String(d, "id", "")
	if err != nil {
		return nil, err
	}
	state, err := blob.Map(d, "question_state_data", "")
	if err != nil {
		return nil, err
	}
	schemaVersion, err := blob.Int(d["question_state_data_schema_version"], "question_state_data_schema_version")
	if err != nil {
		return nil, err
	}
	languageCode, err := blob.String(d, "language_code", "")
	if err != nil {
		return nil, err
	}
	version, err := blob.Int(d["version"], "version")
	if err != nil {
		return nil, err
	}
	rawSkills, err := blob.List(d, "linked_skill_ids", "")
	if err != nil {
		return nil, err
	}
	skills := make([]string, len(rawSkills))
	for i, raw := range rawSkills {
		if skills[i], err = blob.AsString(raw, blob.Index("linked_skill_ids", i)); err != nil {
			return nil, err
		}
	}

	return &Question{
		ID:             id,
		StateData:      blob.DeepCopyMap(state),
		SchemaVersion:  schemaVersion,
		LanguageCode:   languageCode,
		Version:        version,
		LinkedSkillIDs: skills,
	}, nil
}

// UpdateLanguageCode sets the question language.
func (q *Question) UpdateLanguageCode(code string) {
	q.LanguageCode = code
}

// UpdateLinkedSkillIDs replaces the linked skills, dropping duplicates.
func (q *Question) UpdateLinkedSkillIDs(skillIDs []string) {
	seen := make(map[string]bool, len(skillIDs))
	out := make([]string, 0, len(skillIDs))
	for _, id := range skillIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	q.LinkedSkillIDs = out
}

// UpdateQuestionStateData replaces the state blob.
func (q *Question) UpdateQuestionStateData(state map[string]any) {
	q.StateData = state
}

// Summary is the listing view of a question.
type Summary struct {
	ID              string `json:"id"`
	QuestionContent string `json:"question_content"`
	CreatedOnMs     int64  `json:"created_on_msec"`
	LastUpdatedMs   int64  `json:"last_updated_msec"`
}

// NewSummary builds the summary of q from its content html.
func NewSummary(q *Question) (*Summary, error) {
	content, err := blob.Map(q.StateData, "content", "question_state_data")
	if err != nil {
		return nil, err
	}
	html, err := blob.String(content, "html", "question_state_data.content")
	if err != nil {
		return nil, err
	}
	return &Summary{
		ID:              q.ID,
		QuestionContent: html,
		CreatedOnMs:     q.CreatedOnMs,
		LastUpdatedMs:   q.LastUpdatedMs,
	}, nil
}

// Validate checks the summary has an id and both timestamps.
func (s *Summary) Validate() error {
	if s.ID == "" {
		return validationErrorf("Expected id to be a non-empty string")
	}
	if s.CreatedOnMs <= 0 {
		return validationErrorf("Expected created on to be a timestamp, received %d", s.CreatedOnMs)
	}
	if s.LastUpdatedMs <= 0 {
		return validationErrorf("Expected last updated to be a timestamp, received %d", s.LastUpdatedMs)
	}
	return nil
}

// SkillLink links a question to one skill it assesses.
// In Redis, links are stored as JSON values in the question's skills hash,
// keyed by skill id.
type SkillLink struct {
	QuestionID       string  `json:"question_id"`
	SkillID          string  `json:"skill_id"`
	SkillDescription string  `json:"skill_description"`
	SkillDifficulty  float64 `json:"skill_difficulty"` // in [0, 1]
}

// Validate checks ids are present and the difficulty is in [0, 1].
func (l *SkillLink) Validate() error {
	if l.QuestionID == "" {
		return validationErrorf("skill link question_id cannot be empty")
	}
	if l.SkillID == "" {
		return validationErrorf("skill link skill_id cannot be empty")
	}
	if l.SkillDifficulty < 0 || l.SkillDifficulty > 1 {
		return validationErrorf("skill difficulty must be between 0 and 1, got %v", l.SkillDifficulty)
	}
	return nil
}

// MergedSkillLink is every skill link of one question, as parallel slices.
type MergedSkillLink struct {
	QuestionID        string    `json:"question_id"`
	SkillIDs          []string  `json:"skill_ids"`
	SkillDescriptions []string  `json:"skill_descriptions"`
	SkillDifficulties []float64 `json:"skill_difficulties"`
}

// MergeSkillLinks merges the links of questionID, ordered by skill id.
// Links for other questions are rejected.
func MergeSkillLinks(questionID string, links []SkillLink) (*MergedSkillLink, error) {
	sorted := append([]SkillLink(nil), links...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SkillID < sorted[j].SkillID })

	merged := &MergedSkillLink{
		QuestionID:        questionID,
		SkillIDs:          make([]string, 0, len(sorted)),
		SkillDescriptions: make([]string, 0, len(sorted)),
		SkillDifficulties: make([]float64, 0, len(sorted)),
	}
	for _, l := range sorted {
		if l.QuestionID != questionID {
			return nil, fmt.Errorf("skill link for question %s cannot be merged into %s", l.QuestionID, questionID)
		}
		merged.SkillIDs = append(merged.SkillIDs, l.SkillID)
		merged.SkillDescriptions = append(merged.SkillDescriptions, l.SkillDescription)
		merged.SkillDifficulties = append(merged.SkillDifficulties, l.SkillDifficulty)
	}
	return merged, nil
}

// MigrationStatus is the outcome of one stored-question migration attempt.
type MigrationStatus string

const (
	// MigrationStatusApplied means at least one step was applied and saved.
	MigrationStatusApplied MigrationStatus = "applied"

	// MigrationStatusFailed means a step failed; the stored question is unchanged.
	MigrationStatusFailed MigrationStatus = "failed"

	// MigrationStatusSkipped means the question was already current or locked.
	MigrationStatusSkipped MigrationStatus = "skipped"
)

// Validate checks if the MigrationStatus is a valid enum value.
func (s MigrationStatus) Validate() error {
	switch s {
	case MigrationStatusApplied, MigrationStatusFailed, MigrationStatusSkipped:
		return nil
	default:
		return fmt.Errorf("unknown migration status: %q", s)
	}
}

// MigrationEvent is published after every stored-question migration attempt.
type MigrationEvent struct {
	QuestionID  string          `json:"question_id"`
	FromVersion int             `json:"from_version"`
	ToVersion   int             `json:"to_version"`
	Status      MigrationStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	TimestampMs int64           `json:"timestamp_ms"`
}

// Validate checks the event has a question id and a known status.
func (e *MigrationEvent) Validate() error {
	if e.QuestionID == "" {
		return fmt.Errorf("migration event question_id cannot be empty")
	}
	if err := e.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}
	return nil
}
