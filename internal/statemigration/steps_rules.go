package statemigration

import (
	"sort"

	"github.com/dyluth/quill/internal/blob"
)

// v36 -> v37: TextInput's CaseSensitiveEquals rule becomes Equals.
func (m *Migrator) convertV36ToV37(state map[string]any) error {
	interaction, id, hasID, err := interactionOf(state)
	if err != nil {
		return err
	}
	if !hasID || id != interactionTextInput {
		return nil
	}
	return forEachAnswerGroup(interaction, func(group map[string]any, path string) error {
		return forEachRuleSpec(group, path, func(spec map[string]any, specPath string) error {
			ruleType, err := blob.String(spec, "rule_type", specPath)
			if err != nil {
				return err
			}
			if ruleType == "CaseSensitiveEquals" {
				spec["rule_type"] = "Equals"
			}
			return nil
		})
	})
}

// v38 -> v39: each answer group's rule_specs list becomes
// rule_types_to_inputs, a mapping from rule type to the inputs of every
// rule of that type in their original order. Groups gain an empty
// rule_input_translations mapping.
func (m *Migrator) convertV38ToV39(state map[string]any) error {
	interaction, err := blob.Map(state, "interaction", "")
	if err != nil {
		return err
	}
	return forEachAnswerGroup(interaction, func(group map[string]any, path string) error {
		byType := make(map[string]any)
		err := forEachRuleSpec(group, path, func(spec map[string]any, specPath string) error {
			ruleType, err := blob.String(spec, "rule_type", specPath)
			if err != nil {
				return err
			}
			inputs, ok := spec["inputs"]
			if !ok {
				return blob.Malformed(blob.Join(specPath, "inputs"), "missing field")
			}
			existing, _ := byType[ruleType].([]any)
			byType[ruleType] = append(existing, inputs)
			return nil
		})
		if err != nil {
			return err
		}
		delete(group, "rule_specs")
		group["rule_types_to_inputs"] = byType
		group["rule_input_translations"] = map[string]any{}
		return nil
	})
}

// v39 -> v40: every rule type's inputs are wrapped as
// {rule_inputs, content_id}. TextInput and SetInput rule inputs are
// translatable and get a content id; others get null. The temporary
// rule_input_translations mapping is dropped.
func (m *Migrator) convertV39ToV40(state map[string]any) error {
	raw, ok := state["next_content_id_index"]
	if !ok {
		return blob.Malformed("next_content_id_index", "missing field")
	}
	next, err := blob.Int(raw, "next_content_id_index")
	if err != nil {
		return err
	}

	interaction, id, hasID, err := interactionOf(state)
	if err != nil {
		return err
	}
	translatable := hasID && (id == interactionTextInput || id == interactionSetInput)

	counter := newContentIDCounter(next)
	err = forEachAnswerGroup(interaction, func(group map[string]any, path string) error {
		byType, err := blob.Map(group, "rule_types_to_inputs", path)
		if err != nil {
			return err
		}
		// Decoded JSON objects lose their key order; sorting keeps the
		// generated content id suffixes deterministic.
		ruleTypes := mapKeys(byType)
		sort.Strings(ruleTypes)
		for _, ruleType := range ruleTypes {
			var contentID any
			if translatable {
				contentID = counter.generate("rule_inputs_" + ruleType + "_")
			}
			byType[ruleType] = map[string]any{
				"rule_inputs": byType[ruleType],
				"content_id":  contentID,
			}
		}
		delete(group, "rule_input_translations")
		return nil
	})
	if err != nil {
		return err
	}

	state["next_content_id_index"] = counter.next
	return seedContentIDs(state, counter.newIDs)
}
