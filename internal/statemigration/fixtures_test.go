package statemigration

import (
	"strings"
	"testing"

	"github.com/dyluth/quill/internal/blob"
	"github.com/stretchr/testify/require"
)

// v27TextInputState is a TextInput question state as stored at schema v27.
const v27TextInputState = `{
  "content": {"content_id": "content", "html": "<p>What is 2 + 2?</p>"},
  "content_ids_to_audio_translations": {
    "content": {"en": {"filename": "q.mp3", "file_size_bytes": 1024, "needs_update": false}},
    "default_outcome": {},
    "feedback_1": {},
    "hint_1": {},
    "solution": {}
  },
  "written_translations": {
    "translations_mapping": {
      "content": {"hi": {"html": "<p>do aur do?</p>", "needs_update": false}},
      "default_outcome": {},
      "feedback_1": {},
      "hint_1": {},
      "solution": {}
    }
  },
  "interaction": {
    "id": "TextInput",
    "customization_args": {
      "placeholder": {"value": "Type your answer"},
      "rows": {"value": 1}
    },
    "answer_groups": [
      {
        "outcome": {
          "dest": null,
          "feedback": {"content_id": "feedback_1", "html": "<p>Correct!</p>"},
          "labelled_as_correct": true,
          "param_changes": [],
          "refresher_exploration_id": null,
          "missing_prerequisite_skill_id": null
        },
        "rule_specs": [
          {"rule_type": "CaseSensitiveEquals", "inputs": {"x": "4"}},
          {"rule_type": "Contains", "inputs": {"x": "four"}}
        ],
        "training_data": [],
        "tagged_misconception_id": null
      }
    ],
    "confirmed_unclassified_answers": [],
    "default_outcome": {
      "dest": null,
      "feedback": {"content_id": "default_outcome", "html": "<p>Try again.</p>"},
      "labelled_as_correct": false,
      "param_changes": [],
      "refresher_exploration_id": null,
      "missing_prerequisite_skill_id": null
    },
    "hints": [
      {"hint_content": {"content_id": "hint_1", "html": "<p>Count on your fingers.</p>"}}
    ],
    "solution": {
      "answer_is_exclusive": false,
      "correct_answer": "4",
      "explanation": {"content_id": "solution", "html": "<p>2 + 2 = 4</p>"}
    }
  },
  "param_changes": [],
  "classifier_model_id": null
}`

// v34MathState is a MathExpressionInput state at v34 with one answer group
// per element of groups. Group i has feedback content id feedback_<i+1>.
func v34MathState(t *testing.T, groups ...[]string) map[string]any {
	t.Helper()
	return decodeState(t, v34MathStateJSON(groups...))
}

func v34MathStateJSON(groups ...[]string) string {
	var groupJSON []string
	mappingKeys := []string{`"content": {}`, `"default_outcome": {}`, `"solution": {}`}
	for i, inputs := range groups {
		var rules []string
		for _, x := range inputs {
			rules = append(rules, `{"rule_type": "IsMathematicallyEquivalentTo", "inputs": {"x": "`+x+`"}}`)
		}
		feedbackID := "feedback_" + string(rune('1'+i))
		groupJSON = append(groupJSON, `{
          "outcome": {"dest": null, "feedback": {"content_id": "`+feedbackID+`", "html": ""}, "labelled_as_correct": true},
          "rule_specs": [`+strings.Join(rules, ", ")+`],
          "training_data": [],
          "tagged_skill_misconception_id": null
        }`)
		mappingKeys = append(mappingKeys, `"`+feedbackID+`": {}`)
	}

	mapping := "{" + strings.Join(mappingKeys, ", ") + "}"
	return `{
      "content": {"content_id": "content", "html": "<p>Solve</p>"},
      "recorded_voiceovers": {"voiceovers_mapping": `+mapping+`},
      "written_translations": {"translations_mapping": `+mapping+`},
      "solicit_answer_details": false,
      "interaction": {
        "id": "MathExpressionInput",
        "customization_args": {},
        "answer_groups": [`+strings.Join(groupJSON, ", ")+`],
        "confirmed_unclassified_answers": [],
        "default_outcome": {"dest": null, "feedback": {"content_id": "default_outcome", "html": ""}, "labelled_as_correct": false},
        "hints": [],
        "solution": {
          "answer_is_exclusive": false,
          "correct_answer": {"ascii": "y = 2 x", "latex": "y=2x"},
          "explanation": {"content_id": "solution", "html": "<p>Because</p>"}
        }
      }
    }`
}

func decodeState(t *testing.T, js string) map[string]any {
	t.Helper()
	state, err := blob.Decode(strings.NewReader(js))
	require.NoError(t, err)
	return state
}

// stateAt decodes the v27 fixture and migrates it to version.
func stateAt(t *testing.T, m *Migrator, version int) map[string]any {
	t.Helper()
	vs := &VersionedState{SchemaVersion: 27, State: decodeState(t, v27TextInputState)}
	_, err := m.MigrateToVersion(vs, version)
	require.NoError(t, err)
	require.Equal(t, version, vs.SchemaVersion)
	return vs.State
}

func newTestMigrator(t *testing.T, opts ...Option) *Migrator {
	t.Helper()
	m, err := New(opts...)
	require.NoError(t, err)
	return m
}

func answerGroup(t *testing.T, state map[string]any, i int) map[string]any {
	t.Helper()
	interaction := state["interaction"].(map[string]any)
	groups := interaction["answer_groups"].([]any)
	require.Greater(t, len(groups), i)
	return groups[i].(map[string]any)
}

func mappingKeysOf(t *testing.T, state map[string]any) (voiceovers, translations []string) {
	t.Helper()
	v, tr, err := contentMappings(state)
	require.NoError(t, err)
	return mapKeys(v), mapKeys(tr)
}
