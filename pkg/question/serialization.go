package question

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dyluth/quill/internal/blob"
)

// Serialization helpers for converting between Questions and Redis hashes.
//
// Scalar fields are stored as individual hash fields so the store can be
// inspected with redis-cli. The state blob and the skill id list are
// JSON-encoded into single fields.

// QuestionToHash converts a Question to a Redis hash.
func QuestionToHash(q *Question) (map[string]interface{}, error) {
	stateJSON, err := json.Marshal(q.StateData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal question_state_data: %w", err)
	}

	skills := q.LinkedSkillIDs
	if skills == nil {
		skills = []string{}
	}
	skillsJSON, err := json.Marshal(skills)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal linked_skill_ids: %w", err)
	}

	return map[string]interface{}{
		"id":                                 q.ID,
		"question_state_data":                string(stateJSON),
		"question_state_data_schema_version": q.SchemaVersion,
		"language_code":                      q.LanguageCode,
		"version":                            q.Version,
		"linked_skill_ids":                   string(skillsJSON),
		"created_on_ms":                      q.CreatedOnMs,
		"last_updated_ms":                    q.LastUpdatedMs,
	}, nil
}

// HashToQuestion converts a Redis hash back to a Question. The state blob is
// decoded with json.Number so untouched numbers round-trip exactly.
func HashToQuestion(hash map[string]string) (*Question, error) {
	schemaVersion, err := strconv.Atoi(hash["question_state_data_schema_version"])
	if err != nil {
		return nil, fmt.Errorf("invalid question_state_data_schema_version field: %w", err)
	}

	version, err := strconv.Atoi(hash["version"])
	if err != nil {
		return nil, fmt.Errorf("invalid version field: %w", err)
	}

	var state map[string]any
	if err := blob.Unmarshal([]byte(hash["question_state_data"]), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal question_state_data: %w", err)
	}

	var skills []string
	if skillsJSON := hash["linked_skill_ids"]; skillsJSON != "" {
		if err := json.Unmarshal([]byte(skillsJSON), &skills); err != nil {
			return nil, fmt.Errorf("failed to unmarshal linked_skill_ids: %w", err)
		}
	}
	if skills == nil {
		skills = []string{}
	}

	createdOnMs, _ := strconv.ParseInt(hash["created_on_ms"], 10, 64)
	lastUpdatedMs, _ := strconv.ParseInt(hash["last_updated_ms"], 10, 64)

	return &Question{
		ID:             hash["id"],
		StateData:      state,
		SchemaVersion:  schemaVersion,
		LanguageCode:   hash["language_code"],
		Version:        version,
		LinkedSkillIDs: skills,
		CreatedOnMs:    createdOnMs,
		LastUpdatedMs:  lastUpdatedMs,
	}, nil
}
