package question

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Change commands.
const (
	CmdCreateNew                         = "create_new"
	CmdUpdateQuestionProperty            = "update_question_property"
	CmdCreateNewFullySpecifiedQuestion   = "create_new_fully_specified_question"
	CmdMigrateStateSchemaToLatestVersion = "migrate_state_schema_to_latest_version"
)

// Question properties that update_question_property may change.
const (
	PropertyQuestionStateData = "question_state_data"
	PropertyLanguageCode      = "language_code"
	PropertyLinkedSkillIDs    = "linked_skill_ids"
)

type commandSpec struct {
	required      []string
	optional      []string
	allowedValues map[string][]string
}

var questionCommands = map[string]commandSpec{
	CmdCreateNew: {},
	CmdUpdateQuestionProperty: {
		required: []string{"property_name", "new_value", "old_value"},
		allowedValues: map[string][]string{
			"property_name": {PropertyQuestionStateData, PropertyLanguageCode, PropertyLinkedSkillIDs},
		},
	},
	CmdCreateNewFullySpecifiedQuestion: {
		required: []string{"question_dict", "skill_id"},
		optional: []string{"topic_name"},
	},
	CmdMigrateStateSchemaToLatestVersion: {
		required: []string{"from_version", "to_version"},
	},
}

var suggestionCommands = map[string]commandSpec{
	CmdCreateNewFullySpecifiedQuestion: {
		required: []string{"question_dict", "skill_id", "skill_difficulty"},
	},
}

// Change is one entry of a question's change list: a command name plus its
// attributes.
type Change struct {
	Cmd   string         `json:"cmd"`
	Attrs map[string]any `json:"-"`
}

// NewChange validates d against the question commands and builds a Change.
func NewChange(d map[string]any) (*Change, error) {
	return newChange(d, questionCommands)
}

// NewSuggestionChange validates d against the commands a question
// suggestion may carry.
func NewSuggestionChange(d map[string]any) (*Change, error) {
	return newChange(d, suggestionCommands)
}

func newChange(d map[string]any, commands map[string]commandSpec) (*Change, error) {
	rawCmd, ok := d["cmd"]
	if !ok {
		return nil, validationErrorf("Missing cmd key in change dict")
	}
	cmd, ok := rawCmd.(string)
	if !ok {
		return nil, validationErrorf("Expected cmd to be a string, received %T", rawCmd)
	}
	spec, ok := commands[cmd]
	if !ok {
		return nil, validationErrorf("Command %s is not allowed", cmd)
	}

	var missing []string
	for _, name := range spec.required {
		if _, ok := d[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, validationErrorf("The following required attributes are missing: %v", missing)
	}

	attrs := make(map[string]any, len(d)-1)
	var extra []string
	for name, value := range d {
		if name == "cmd" {
			continue
		}
		if !slices.Contains(spec.required, name) && !slices.Contains(spec.optional, name) {
			extra = append(extra, name)
			continue
		}
		attrs[name] = value
	}
	if len(extra) > 0 {
		slices.Sort(extra)
		return nil, validationErrorf("The following extra attributes are present: %v", extra)
	}

	for name, allowed := range spec.allowedValues {
		value, _ := attrs[name].(string)
		if !slices.Contains(allowed, value) {
			return nil, validationErrorf("Value for %s in cmd %s: %v is not allowed", name, cmd, attrs[name])
		}
	}

	return &Change{Cmd: cmd, Attrs: attrs}, nil
}

// ToDict returns the change as a flat mapping including "cmd".
func (c *Change) ToDict() map[string]any {
	d := make(map[string]any, len(c.Attrs)+1)
	for k, v := range c.Attrs {
		d[k] = v
	}
	d["cmd"] = c.Cmd
	return d
}

// MarshalJSON encodes the change in its flat dict form.
func (c *Change) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.ToDict())
}

// String implements fmt.Stringer.
func (c *Change) String() string {
	return fmt.Sprintf("%s %v", c.Cmd, c.Attrs)
}
