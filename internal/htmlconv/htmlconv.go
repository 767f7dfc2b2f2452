// Package htmlconv applies a per-fragment HTML transform to every
// HTML-bearing field of a question state blob.
package htmlconv

import (
	"fmt"

	"github.com/dyluth/quill/internal/blob"
	"github.com/dyluth/quill/internal/custargs"
)

// Transform rewrites one HTML fragment.
type Transform func(html string) (string, error)

// Options describe which historical shapes the state uses.
type Options struct {
	// OldCustomizationArgSchema means html customization args are plain
	// strings in a "choices" list rather than SubtitledHtml values.
	OldCustomizationArgSchema bool

	// OldRuleSpecSchema means answer groups carry "rule_specs" rather than
	// "rule_types_to_inputs".
	OldRuleSpecSchema bool

	// Specs are the interaction's customization-arg specs. Only used when
	// OldCustomizationArgSchema is false.
	Specs []custargs.Spec
}

// Kinds of HTML-bearing rule inputs and answers.
const (
	kindHTML             = "html"
	kindSetOfHTML        = "set_of_html"
	kindListOfSetsOfHTML = "list_of_sets_of_html"
)

// htmlRuleInputs lists, per interaction and rule type, the rule inputs that
// hold HTML and their shape.
var htmlRuleInputs = map[string]map[string]map[string]string{
	"ItemSelectionInput": {
		"Equals":                     {"x": kindSetOfHTML},
		"ContainsAtLeastOneOf":       {"x": kindSetOfHTML},
		"DoesNotContainAtLeastOneOf": {"x": kindSetOfHTML},
		"IsProperSubsetOf":           {"x": kindSetOfHTML},
	},
	"DragAndDropSortInput": {
		"IsEqualToOrdering":                               {"x": kindListOfSetsOfHTML},
		"IsEqualToOrderingWithOneItemAtIncorrectPosition": {"x": kindListOfSetsOfHTML},
		"HasElementXAtPositionY":                          {"x": kindHTML},
		"HasElementXBeforeElementY":                       {"x": kindHTML, "y": kindHTML},
	},
}

// htmlAnswers lists interactions whose answers (and so solution correct
// answers) hold HTML.
var htmlAnswers = map[string]string{
	"ItemSelectionInput":   kindSetOfHTML,
	"DragAndDropSortInput": kindListOfSetsOfHTML,
}

// oldHTMLChoiceInteractions carry a "choices" list of plain HTML strings in
// the old customization-arg schema.
var oldHTMLChoiceInteractions = map[string]bool{
	"MultipleChoiceInput":  true,
	"ItemSelectionInput":   true,
	"DragAndDropSortInput": true,
}

// ConvertHTMLFieldsInState applies fn, in place, to the content, answer-group
// feedback, HTML rule inputs, default outcome feedback, hints, solution,
// written translations and HTML customization args of state.
func ConvertHTMLFieldsInState(state map[string]any, fn Transform, opts Options) error {
	c := &converter{fn: fn}

	content, err := blob.Map(state, "content", "")
	if err != nil {
		return err
	}
	if err := c.field(content, "html", "content"); err != nil {
		return err
	}

	interaction, err := blob.Map(state, "interaction", "")
	if err != nil {
		return err
	}
	interactionID, hasID, err := blob.NullableString(interaction, "id", "interaction")
	if err != nil {
		return err
	}

	if outcome, ok := interaction["default_outcome"]; ok && outcome != nil {
		if err := c.outcome(outcome, "interaction.default_outcome"); err != nil {
			return err
		}
	}

	groups, err := blob.List(interaction, "answer_groups", "interaction")
	if err != nil {
		return err
	}
	for i, rawGroup := range groups {
		path := blob.Index("interaction.answer_groups", i)
		group, err := blob.AsMap(rawGroup, path)
		if err != nil {
			return err
		}
		if err := c.outcome(group["outcome"], blob.Join(path, "outcome")); err != nil {
			return err
		}
		if err := c.ruleInputs(group, interactionID, path, opts.OldRuleSpecSchema); err != nil {
			return err
		}
	}

	if _, ok := state["written_translations"]; ok {
		if err := c.writtenTranslations(state); err != nil {
			return err
		}
	}

	if rawHints, ok := interaction["hints"]; ok {
		hints, err := blob.AsList(rawHints, "interaction.hints")
		if err != nil {
			return err
		}
		for i, rawHint := range hints {
			path := blob.Index("interaction.hints", i)
			hint, err := blob.AsMap(rawHint, path)
			if err != nil {
				return err
			}
			hintContent, err := blob.Map(hint, "hint_content", path)
			if err != nil {
				return err
			}
			if err := c.field(hintContent, "html", blob.Join(path, "hint_content")); err != nil {
				return err
			}
		}
	}

	if !hasID {
		return nil
	}

	if err := c.customizationArgs(interaction, interactionID, opts); err != nil {
		return err
	}

	if solution, ok := interaction["solution"]; ok && solution != nil {
		if err := c.solution(solution, interactionID); err != nil {
			return err
		}
	}

	return nil
}

type converter struct {
	fn Transform
}

// field converts m[key], which must be a string.
func (c *converter) field(m map[string]any, key, path string) error {
	s, err := blob.String(m, key, path)
	if err != nil {
		return err
	}
	out, err := c.fn(s)
	if err != nil {
		return fmt.Errorf("failed to convert html at '%s': %w", blob.Join(path, key), err)
	}
	m[key] = out
	return nil
}

func (c *converter) outcome(raw any, path string) error {
	outcome, err := blob.AsMap(raw, path)
	if err != nil {
		return err
	}
	feedback, err := blob.Map(outcome, "feedback", path)
	if err != nil {
		return err
	}
	return c.field(feedback, "html", blob.Join(path, "feedback"))
}

func (c *converter) ruleInputs(group map[string]any, interactionID, path string, oldSchema bool) error {
	inputKinds := htmlRuleInputs[interactionID]
	if inputKinds == nil {
		return nil
	}

	if oldSchema {
		specs, err := blob.List(group, "rule_specs", path)
		if err != nil {
			return err
		}
		for i, rawSpec := range specs {
			specPath := blob.Index(blob.Join(path, "rule_specs"), i)
			spec, err := blob.AsMap(rawSpec, specPath)
			if err != nil {
				return err
			}
			ruleType, err := blob.String(spec, "rule_type", specPath)
			if err != nil {
				return err
			}
			inputs, err := blob.Map(spec, "inputs", specPath)
			if err != nil {
				return err
			}
			if err := c.inputs(inputs, inputKinds[ruleType], blob.Join(specPath, "inputs")); err != nil {
				return err
			}
		}
		return nil
	}

	byType, err := blob.Map(group, "rule_types_to_inputs", path)
	if err != nil {
		return err
	}
	for ruleType, rawInputs := range byType {
		typePath := blob.Join(blob.Join(path, "rule_types_to_inputs"), ruleType)

		// v40 wraps the input list as {rule_inputs, content_id}.
		if wrapped, ok := rawInputs.(map[string]any); ok {
			rawInputs = wrapped["rule_inputs"]
			typePath = blob.Join(typePath, "rule_inputs")
		}
		list, err := blob.AsList(rawInputs, typePath)
		if err != nil {
			return err
		}
		for i, rawInput := range list {
			inputPath := blob.Index(typePath, i)
			inputs, err := blob.AsMap(rawInput, inputPath)
			if err != nil {
				return err
			}
			if err := c.inputs(inputs, inputKinds[ruleType], inputPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *converter) inputs(inputs map[string]any, kinds map[string]string, path string) error {
	for name, kind := range kinds {
		v, ok := inputs[name]
		if !ok {
			continue
		}
		converted, err := c.value(v, kind, blob.Join(path, name))
		if err != nil {
			return err
		}
		inputs[name] = converted
	}
	return nil
}

// value converts an HTML-bearing value of the given kind.
func (c *converter) value(v any, kind, path string) (any, error) {
	switch kind {
	case kindHTML:
		s, err := blob.AsString(v, path)
		if err != nil {
			return nil, err
		}
		out, err := c.fn(s)
		if err != nil {
			return nil, fmt.Errorf("failed to convert html at '%s': %w", path, err)
		}
		return out, nil

	case kindSetOfHTML:
		list, err := blob.AsList(v, path)
		if err != nil {
			return nil, err
		}
		for i, item := range list {
			converted, err := c.value(item, kindHTML, blob.Index(path, i))
			if err != nil {
				return nil, err
			}
			list[i] = converted
		}
		return list, nil

	case kindListOfSetsOfHTML:
		list, err := blob.AsList(v, path)
		if err != nil {
			return nil, err
		}
		for i, item := range list {
			converted, err := c.value(item, kindSetOfHTML, blob.Index(path, i))
			if err != nil {
				return nil, err
			}
			list[i] = converted
		}
		return list, nil

	default:
		return v, nil
	}
}

func (c *converter) writtenTranslations(state map[string]any) error {
	wt, err := blob.Map(state, "written_translations", "")
	if err != nil {
		return err
	}
	mapping, err := blob.Map(wt, "translations_mapping", "written_translations")
	if err != nil {
		return err
	}

	for contentID, rawByLang := range mapping {
		cidPath := blob.Join("written_translations.translations_mapping", contentID)
		byLang, err := blob.AsMap(rawByLang, cidPath)
		if err != nil {
			return err
		}
		for lang, rawTranslation := range byLang {
			path := blob.Join(cidPath, lang)
			translation, err := blob.AsMap(rawTranslation, path)
			if err != nil {
				return err
			}

			if _, ok := translation["html"]; ok {
				if err := c.field(translation, "html", path); err != nil {
					return err
				}
				continue
			}
			if format, _ := translation["data_format"].(string); format == "html" {
				if err := c.field(translation, "translation", path); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (c *converter) customizationArgs(interaction map[string]any, interactionID string, opts Options) error {
	args, err := blob.Map(interaction, "customization_args", "interaction")
	if err != nil {
		return err
	}

	if opts.OldCustomizationArgSchema {
		if !oldHTMLChoiceInteractions[interactionID] {
			return nil
		}
		choices, err := blob.Map(args, "choices", "interaction.customization_args")
		if err != nil {
			return err
		}
		_, err = c.value(choices["value"], kindSetOfHTML, "interaction.customization_args.choices.value")
		return err
	}

	return custargs.ConvertTranslatableInCustomizationArgs(args, opts.Specs, func(objType string, value any, argName string) (any, error) {
		if objType != custargs.ObjTypeSubtitledHTML {
			return value, nil
		}
		path := blob.Join("interaction.customization_args", argName)
		subtitled, err := blob.AsMap(value, path)
		if err != nil {
			return nil, err
		}
		if err := c.field(subtitled, "html", path); err != nil {
			return nil, err
		}
		return subtitled, nil
	})
}

func (c *converter) solution(raw any, interactionID string) error {
	solution, err := blob.AsMap(raw, "interaction.solution")
	if err != nil {
		return err
	}
	explanation, err := blob.Map(solution, "explanation", "interaction.solution")
	if err != nil {
		return err
	}
	if err := c.field(explanation, "html", "interaction.solution.explanation"); err != nil {
		return err
	}

	if kind, ok := htmlAnswers[interactionID]; ok {
		converted, err := c.value(solution["correct_answer"], kind, "interaction.solution.correct_answer")
		if err != nil {
			return err
		}
		solution["correct_answer"] = converted
	}
	return nil
}
