package statemigration

import (
	"fmt"

	"github.com/dyluth/quill/internal/blob"
)

// Interaction ids the steps special-case.
const (
	interactionTextInput           = "TextInput"
	interactionSetInput            = "SetInput"
	interactionMultipleChoiceInput = "MultipleChoiceInput"
	interactionPencilCodeEditor    = "PencilCodeEditor"
	interactionMathExpressionInput = "MathExpressionInput"
	interactionAlgebraicExpression = "AlgebraicExpressionInput"
	interactionNumericExpression   = "NumericExpressionInput"
	interactionMathEquation        = "MathEquationInput"
)

// Step migrates a state from FromVersion to FromVersion+1.
type Step struct {
	FromVersion int
	Name        string
	apply       func(m *Migrator, state map[string]any) error
}

// ToVersion is the version a state is at after the step.
func (s Step) ToVersion() int {
	return s.FromVersion + 1
}

// steps is ordered by FromVersion with no gaps.
var steps = []Step{
	{27, "move audio translations to recorded voiceovers", (*Migrator).convertV27ToV28},
	{28, "add solicit answer details", (*Migrator).convertV28ToV29},
	{29, "replace tagged misconception id", (*Migrator).convertV29ToV30},
	{30, "add voiceover durations", (*Migrator).convertV30ToV31},
	{31, "add set input button text", (*Migrator).convertV31ToV32},
	{32, "add multiple choice shuffling", (*Migrator).convertV32ToV33},
	{33, "add math content to math components", (*Migrator).convertV33ToV34},
	{34, "split math expression input", (*Migrator).convertV34ToV35},
	{35, "make customization args translatable", (*Migrator).convertV35ToV36},
	{36, "merge case sensitive equals into equals", (*Migrator).convertV36ToV37},
	{37, "add custom on-screen keyboard letters", (*Migrator).convertV37ToV38},
	{38, "group rule inputs by rule type", (*Migrator).convertV38ToV39},
	{39, "add content ids to translatable rules", (*Migrator).convertV39ToV40},
}

var stepsByFromVersion = func() map[int]Step {
	index := make(map[int]Step, len(steps))
	for i, s := range steps {
		if i > 0 && s.FromVersion != steps[i-1].FromVersion+1 {
			panic(fmt.Sprintf("statemigration: step table gap between v%d and v%d", steps[i-1].FromVersion, s.FromVersion))
		}
		index[s.FromVersion] = s
	}
	return index
}()

func lookupStep(fromVersion int) (Step, bool) {
	s, ok := stepsByFromVersion[fromVersion]
	return s, ok
}

// Steps returns the registered steps in order.
func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// EarliestVersion is the oldest state schema version that can be migrated.
func EarliestVersion() int {
	return steps[0].FromVersion
}

// LatestVersion is the version reached after the last registered step.
func LatestVersion() int {
	return steps[len(steps)-1].ToVersion()
}

// interactionOf returns the interaction mapping and its id. A null id is
// reported with hasID == false.
func interactionOf(state map[string]any) (interaction map[string]any, id string, hasID bool, err error) {
	interaction, err = blob.Map(state, "interaction", "")
	if err != nil {
		return nil, "", false, err
	}
	id, hasID, err = blob.NullableString(interaction, "id", "interaction")
	if err != nil {
		return nil, "", false, err
	}
	return interaction, id, hasID, nil
}

// forEachAnswerGroup calls fn with every answer group and its path.
func forEachAnswerGroup(interaction map[string]any, fn func(group map[string]any, path string) error) error {
	groups, err := blob.List(interaction, "answer_groups", "interaction")
	if err != nil {
		return err
	}
	for i, raw := range groups {
		path := blob.Index("interaction.answer_groups", i)
		group, err := blob.AsMap(raw, path)
		if err != nil {
			return err
		}
		if err := fn(group, path); err != nil {
			return err
		}
	}
	return nil
}

// forEachRuleSpec calls fn with every rule spec of a pre-v39 answer group.
func forEachRuleSpec(group map[string]any, groupPath string, fn func(spec map[string]any, path string) error) error {
	specs, err := blob.List(group, "rule_specs", groupPath)
	if err != nil {
		return err
	}
	for i, raw := range specs {
		path := blob.Index(blob.Join(groupPath, "rule_specs"), i)
		spec, err := blob.AsMap(raw, path)
		if err != nil {
			return err
		}
		if err := fn(spec, path); err != nil {
			return err
		}
	}
	return nil
}

// feedbackContentID returns outcome.feedback.content_id of an answer group.
func feedbackContentID(group map[string]any, groupPath string) (string, error) {
	outcome, err := blob.Map(group, "outcome", groupPath)
	if err != nil {
		return "", err
	}
	feedback, err := blob.Map(outcome, "feedback", blob.Join(groupPath, "outcome"))
	if err != nil {
		return "", err
	}
	return blob.String(feedback, "content_id", blob.Join(groupPath, "outcome.feedback"))
}

// customizationArgs returns interaction.customization_args.
func customizationArgs(interaction map[string]any) (map[string]any, error) {
	return blob.Map(interaction, "customization_args", "interaction")
}
