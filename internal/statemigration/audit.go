package statemigration

import (
	"fmt"
	"sort"

	"github.com/dyluth/quill/internal/blob"
	"github.com/dyluth/quill/internal/custargs"
	"go.uber.org/multierr"
)

// AuditReport lists the content-id bookkeeping problems found in a state.
type AuditReport struct {
	ContentIDs              []string
	Duplicates              []string
	MissingFromVoiceovers   []string
	MissingFromTranslations []string
	Orphaned                []string
	// NextContentIDIndex is -1 when the state has no counter (pre-v36).
	NextContentIDIndex int
	MaxSuffix          int
}

// Err combines every problem in the report into one error, or nil.
func (r *AuditReport) Err() error {
	var err error
	for _, id := range r.Duplicates {
		err = multierr.Append(err, fmt.Errorf("content id %q is used more than once", id))
	}
	for _, id := range r.MissingFromVoiceovers {
		err = multierr.Append(err, fmt.Errorf("content id %q is missing from %s", id, voiceoversPath))
	}
	for _, id := range r.MissingFromTranslations {
		err = multierr.Append(err, fmt.Errorf("content id %q is missing from %s", id, translationsPath))
	}
	for _, id := range r.Orphaned {
		err = multierr.Append(err, fmt.Errorf("mapping entry %q is not referenced by any content", id))
	}
	if r.NextContentIDIndex >= 0 && r.NextContentIDIndex <= r.MaxSuffix {
		err = multierr.Append(err, fmt.Errorf("next_content_id_index %d does not exceed existing content id index %d",
			r.NextContentIDIndex, r.MaxSuffix))
	}
	return err
}

// AuditContentIDs collects every content id referenced by state (content,
// feedback, hints, solution explanation, rule inputs and translatable
// customization args described by specs) and checks it against the
// voiceover and translation mappings. Structural problems are returned as
// an error; bookkeeping problems are reported in the AuditReport.
func AuditContentIDs(state map[string]any, specs []custargs.Spec) (*AuditReport, error) {
	voiceovers, translations, err := contentMappings(state)
	if err != nil {
		return nil, err
	}

	ids, err := referencedContentIDs(state, specs)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{
		ContentIDs:         ids,
		NextContentIDIndex: -1,
		MaxSuffix:          maxContentIDIndex(ids, mapKeys(voiceovers), mapKeys(translations)),
	}

	seen := make(map[string]int, len(ids))
	for _, id := range ids {
		seen[id]++
		if seen[id] == 2 {
			report.Duplicates = append(report.Duplicates, id)
		}
	}
	for _, id := range ids {
		if seen[id] < 0 {
			continue
		}
		if _, ok := voiceovers[id]; !ok {
			report.MissingFromVoiceovers = append(report.MissingFromVoiceovers, id)
		}
		if _, ok := translations[id]; !ok {
			report.MissingFromTranslations = append(report.MissingFromTranslations, id)
		}
		seen[id] = -1
	}

	orphaned := make(map[string]bool)
	for _, mapping := range []map[string]any{voiceovers, translations} {
		for id := range mapping {
			if _, ok := seen[id]; !ok {
				orphaned[id] = true
			}
		}
	}
	for id := range orphaned {
		report.Orphaned = append(report.Orphaned, id)
	}
	sort.Strings(report.Orphaned)

	if raw, ok := state["next_content_id_index"]; ok {
		next, err := blob.Int(raw, "next_content_id_index")
		if err != nil {
			return nil, err
		}
		report.NextContentIDIndex = next
	}

	return report, nil
}

// referencedContentIDs returns the content ids state refers to, in document
// order, duplicates included.
func referencedContentIDs(state map[string]any, specs []custargs.Spec) ([]string, error) {
	var ids []string
	add := func(m map[string]any, path string) error {
		id, err := blob.String(m, "content_id", path)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	}

	content, err := blob.Map(state, "content", "")
	if err != nil {
		return nil, err
	}
	if err := add(content, "content"); err != nil {
		return nil, err
	}

	interaction, err := blob.Map(state, "interaction", "")
	if err != nil {
		return nil, err
	}

	if raw := interaction["default_outcome"]; raw != nil {
		outcome, err := blob.AsMap(raw, "interaction.default_outcome")
		if err != nil {
			return nil, err
		}
		feedback, err := blob.Map(outcome, "feedback", "interaction.default_outcome")
		if err != nil {
			return nil, err
		}
		if err := add(feedback, "interaction.default_outcome.feedback"); err != nil {
			return nil, err
		}
	}

	err = forEachAnswerGroup(interaction, func(group map[string]any, path string) error {
		id, err := feedbackContentID(group, path)
		if err != nil {
			return err
		}
		ids = append(ids, id)

		byType, ok := group["rule_types_to_inputs"].(map[string]any)
		if !ok {
			return nil
		}
		ruleTypes := mapKeys(byType)
		sort.Strings(ruleTypes)
		for _, ruleType := range ruleTypes {
			rules, ok := byType[ruleType].(map[string]any)
			if !ok {
				continue
			}
			if id, ok := rules["content_id"].(string); ok {
				ids = append(ids, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rawHints, ok := interaction["hints"]; ok && rawHints != nil {
		hints, err := blob.AsList(rawHints, "interaction.hints")
		if err != nil {
			return nil, err
		}
		for i, rawHint := range hints {
			path := blob.Index("interaction.hints", i)
			hint, err := blob.AsMap(rawHint, path)
			if err != nil {
				return nil, err
			}
			hintContent, err := blob.Map(hint, "hint_content", path)
			if err != nil {
				return nil, err
			}
			if err := add(hintContent, blob.Join(path, "hint_content")); err != nil {
				return nil, err
			}
		}
	}

	if raw := interaction["solution"]; raw != nil {
		solution, err := blob.AsMap(raw, "interaction.solution")
		if err != nil {
			return nil, err
		}
		explanation, err := blob.Map(solution, "explanation", "interaction.solution")
		if err != nil {
			return nil, err
		}
		if err := add(explanation, "interaction.solution.explanation"); err != nil {
			return nil, err
		}
	}

	if len(specs) > 0 {
		args, err := customizationArgs(interaction)
		if err != nil {
			return nil, err
		}
		caIDs, err := custargs.ContentIDs(args, specs)
		if err != nil {
			return nil, blob.Malformed("interaction.customization_args", "%v", err)
		}
		ids = append(ids, caIDs...)
	}

	return ids, nil
}
