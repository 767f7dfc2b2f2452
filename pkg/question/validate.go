package question

import (
	"errors"
	"fmt"

	"github.com/dyluth/quill/internal/blob"
)

// ValidationError reports a question, summary, link or change that fails
// domain validation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, a ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, a...)}
}

// IsValidation returns true if err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// SolutionPolicy reports whether an interaction supports a solution at a
// given state schema version. internal/registry.Registry implements it.
type SolutionPolicy interface {
	CanHaveSolution(interactionID string, schemaVersion int) (bool, error)
}

// supportedLanguageCodes are the ISO 639-1 codes content may be written in.
var supportedLanguageCodes = map[string]bool{
	"ar": true, "bg": true, "bn": true, "ca": true, "cs": true, "da": true,
	"de": true, "el": true, "en": true, "es": true, "fa": true, "fi": true,
	"fr": true, "he": true, "hi": true, "hr": true, "hu": true, "id": true,
	"it": true, "ja": true, "ko": true, "lt": true, "lv": true, "mr": true,
	"nl": true, "no": true, "pl": true, "pt": true, "ro": true, "ru": true,
	"sk": true, "sl": true, "sq": true, "sr": true, "sv": true, "sw": true,
	"ta": true, "th": true, "tl": true, "tr": true, "uk": true, "vi": true,
	"zh": true,
}

// IsSupportedLanguageCode reports whether code is a supported content language.
func IsSupportedLanguageCode(code string) bool {
	return supportedLanguageCodes[code]
}

// PartialValidate validates everything except the id and version, so it
// can be used on questions that have not been saved yet.
func (q *Question) PartialValidate(policy SolutionPolicy) error {
	if q.LanguageCode == "" {
		return validationErrorf("Expected language_code to be a non-empty string")
	}

	if len(q.LinkedSkillIDs) == 0 {
		return validationErrorf("linked_skill_ids is either null or an empty list")
	}
	seen := make(map[string]bool, len(q.LinkedSkillIDs))
	for _, id := range q.LinkedSkillIDs {
		if seen[id] {
			return validationErrorf("linked_skill_ids has duplicate skill ids")
		}
		seen[id] = true
	}

	if q.SchemaVersion < 1 {
		return validationErrorf("Expected schema version to be a positive integer, received %d", q.SchemaVersion)
	}

	if q.StateData == nil {
		return validationErrorf("Expected question state data to be a mapping, received null")
	}

	if !IsSupportedLanguageCode(q.LanguageCode) {
		return validationErrorf("Invalid language code: %s", q.LanguageCode)
	}

	return validateStateData(q.StateData, q.SchemaVersion, policy)
}

// Validate validates q before it is saved.
func (q *Question) Validate(policy SolutionPolicy) error {
	if q.ID == "" {
		return validationErrorf("Expected ID to be a non-empty string")
	}
	if q.Version < 0 {
		return validationErrorf("Expected version to be a non-negative integer, received %d", q.Version)
	}
	return q.PartialValidate(policy)
}

func validateStateData(state map[string]any, schemaVersion int, policy SolutionPolicy) error {
	interaction, err := blob.Map(state, "interaction", "question_state_data")
	if err != nil {
		return validationErrorf("%v", err)
	}

	atLeastOneCorrect := false
	destSpecified := false
	checkOutcome := func(raw any, path string) error {
		outcome, err := blob.AsMap(raw, path)
		if err != nil {
			return err
		}
		if correct, _ := outcome["labelled_as_correct"].(bool); correct {
			atLeastOneCorrect = true
		}
		if outcome["dest"] != nil {
			destSpecified = true
		}
		return nil
	}

	groups, err := blob.List(interaction, "answer_groups", "question_state_data.interaction")
	if err != nil {
		return validationErrorf("%v", err)
	}
	for i, raw := range groups {
		path := blob.Index("question_state_data.interaction.answer_groups", i)
		group, err := blob.AsMap(raw, path)
		if err != nil {
			return validationErrorf("%v", err)
		}
		if err := checkOutcome(group["outcome"], blob.Join(path, "outcome")); err != nil {
			return validationErrorf("%v", err)
		}
	}
	if raw := interaction["default_outcome"]; raw != nil {
		if err := checkOutcome(raw, "question_state_data.interaction.default_outcome"); err != nil {
			return validationErrorf("%v", err)
		}
	}

	if !atLeastOneCorrect {
		return validationErrorf("Expected at least one answer group to have a correct answer.")
	}
	if destSpecified {
		return validationErrorf("Expected all answer groups to have destination as None.")
	}

	hints, _ := interaction["hints"].([]any)
	if len(hints) == 0 {
		return validationErrorf("Expected the question to have at least one hint")
	}

	interactionID, hasID, err := blob.NullableString(interaction, "id", "question_state_data.interaction")
	if err != nil {
		return validationErrorf("%v", err)
	}
	if hasID && interaction["solution"] == nil && policy != nil {
		canHaveSolution, err := policy.CanHaveSolution(interactionID, schemaVersion)
		if err != nil {
			return fmt.Errorf("failed to look up interaction %s: %w", interactionID, err)
		}
		if canHaveSolution {
			return validationErrorf("Expected the question to have a solution")
		}
	}

	return nil
}
