package statemigration

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dyluth/quill/internal/blob"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var textInputRuleTypes = []string{"Equals", "StartsWith", "Contains", "FuzzyEquals"}

// Rule content ids allocated at v39 -> v40 are unique, present in both
// mappings, and the counter stays ahead of every suffix.
func TestRuleContentIDsProperty(t *testing.T) {
	m := newTestMigrator(t)
	base := stateAt(t, m, 39)
	specs, err := m.specsAt("TextInput", 40)
	require.NoError(t, err)

	rapid.Check(t, func(rt *rapid.T) {
		state := blob.DeepCopyMap(base)
		interaction := state["interaction"].(map[string]any)
		interaction["id"] = rapid.SampledFrom([]string{"TextInput", "SetInput"}).Draw(rt, "interaction")
		if interaction["id"] == "SetInput" {
			args := interaction["customization_args"].(map[string]any)
			args["buttonText"] = args["placeholder"]
			delete(args, "placeholder")
			delete(args, "rows")
		}

		voiceovers, translations, err := contentMappings(state)
		require.NoError(rt, err)
		delete(voiceovers, "feedback_1")
		delete(translations, "feedback_1")

		offset := rapid.IntRange(0, 40).Draw(rt, "offset")
		numGroups := rapid.IntRange(0, 4).Draw(rt, "groups")
		highest := 2
		var groups []any
		for i := 0; i < numGroups; i++ {
			feedbackID := fmt.Sprintf("feedback_%d", offset+i)
			voiceovers[feedbackID] = map[string]any{}
			translations[feedbackID] = map[string]any{}
			if offset+i > highest {
				highest = offset + i
			}

			byType := map[string]any{}
			ruleTypes := rapid.SliceOfNDistinct(rapid.SampledFrom(textInputRuleTypes), 1, len(textInputRuleTypes), rapid.ID[string]).Draw(rt, "rules")
			for _, ruleType := range ruleTypes {
				byType[ruleType] = []any{map[string]any{"x": strings.ToLower(ruleType)}}
			}
			groups = append(groups, map[string]any{
				"outcome":                 map[string]any{"feedback": map[string]any{"content_id": feedbackID, "html": ""}},
				"rule_types_to_inputs":    byType,
				"rule_input_translations": map[string]any{},
			})
		}
		if groups == nil {
			groups = []any{}
		}
		interaction["answer_groups"] = groups
		state["next_content_id_index"] = highest + 1

		next, err := m.AdvanceOneVersion(state, 39)
		require.NoError(rt, err)

		caSpecs := specs
		if interaction["id"] == "SetInput" {
			caSpecs, err = m.specsAt("SetInput", 40)
			require.NoError(rt, err)
		}
		report, err := AuditContentIDs(next, caSpecs)
		require.NoError(rt, err)
		require.NoError(rt, report.Err())
	})
}

// Removing MathExpressionInput answer groups never leaves dangling mapping
// entries, and surviving groups keep theirs.
func TestMathSplitContentIDsProperty(t *testing.T) {
	m := newTestMigrator(t)
	pool := []string{"x+1", "2+3", "y=2x", "a^2", "3*4", "x=y", "sqrt(2)"}

	rapid.Check(t, func(rt *rapid.T) {
		numGroups := rapid.IntRange(1, 4).Draw(rt, "groups")
		groups := make([][]string, numGroups)
		hasEquation, hasAlgebraic := false, false
		for i := range groups {
			groups[i] = rapid.SliceOfN(rapid.SampledFrom(pool), 1, 3).Draw(rt, "inputs")
			for _, x := range groups[i] {
				hasEquation = hasEquation || strings.Contains(x, "=")
				hasAlgebraic = hasAlgebraic || (!strings.Contains(x, "=") && strings.ContainsAny(x, "axy"))
			}
		}

		state, err := blob.Decode(strings.NewReader(v34MathStateJSON(groups...)))
		require.NoError(rt, err)
		next, err := m.AdvanceOneVersion(state, 34)
		require.NoError(rt, err)

		interaction := next["interaction"].(map[string]any)
		switch {
		case hasEquation:
			require.Equal(rt, "MathEquationInput", interaction["id"])
		case hasAlgebraic:
			require.Equal(rt, "AlgebraicExpressionInput", interaction["id"])
		default:
			require.Equal(rt, "NumericExpressionInput", interaction["id"])
		}

		kept := map[string]bool{}
		for _, raw := range interaction["answer_groups"].([]any) {
			group := raw.(map[string]any)
			id, err := feedbackContentID(group, "group")
			require.NoError(rt, err)
			kept[id] = true
			require.NotEmpty(rt, group["rule_specs"])
		}

		voiceovers, translations, err := contentMappings(next)
		require.NoError(rt, err)
		for i := range groups {
			id := fmt.Sprintf("feedback_%d", i+1)
			_, inVoiceovers := voiceovers[id]
			_, inTranslations := translations[id]
			require.Equal(rt, kept[id], inVoiceovers, id)
			require.Equal(rt, kept[id], inTranslations, id)
		}
	})
}

func TestContentIDCounterProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		start := rapid.IntRange(0, 1000).Draw(rt, "start")
		prefixes := rapid.SliceOf(rapid.SampledFrom([]string{"ca_choices_", "rule_inputs_Equals_", "feedback_"})).Draw(rt, "prefixes")

		c := newContentIDCounter(start)
		seen := map[string]bool{}
		for _, p := range prefixes {
			id := c.generate(p)
			require.False(rt, seen[id], id)
			seen[id] = true
			n, ok := contentIDSuffix(id)
			require.True(rt, ok)
			require.Less(rt, n, c.next)
		}
		require.Equal(rt, start+len(prefixes), c.next)
		require.Len(rt, c.newIDs, len(prefixes))
	})
}
