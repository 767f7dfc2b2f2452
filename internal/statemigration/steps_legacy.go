package statemigration

import (
	"github.com/dyluth/quill/internal/blob"
	"github.com/dyluth/quill/internal/htmlconv"
)

// v27 -> v28: content_ids_to_audio_translations moves under
// recorded_voiceovers.voiceovers_mapping.
func (m *Migrator) convertV27ToV28(state map[string]any) error {
	mapping, err := blob.Map(state, "content_ids_to_audio_translations", "")
	if err != nil {
		return err
	}
	delete(state, "content_ids_to_audio_translations")
	state["recorded_voiceovers"] = map[string]any{
		"voiceovers_mapping": mapping,
	}
	return nil
}

// v28 -> v29: learners are not asked for answer details by default.
func (m *Migrator) convertV28ToV29(state map[string]any) error {
	state["solicit_answer_details"] = false
	return nil
}

// v29 -> v30: tagged_misconception_id is replaced by a null
// tagged_skill_misconception_id.
func (m *Migrator) convertV29ToV30(state map[string]any) error {
	interaction, err := blob.Map(state, "interaction", "")
	if err != nil {
		return err
	}
	return forEachAnswerGroup(interaction, func(group map[string]any, path string) error {
		if _, ok := group["tagged_misconception_id"]; !ok {
			return blob.Malformed(blob.Join(path, "tagged_misconception_id"), "missing field")
		}
		group["tagged_skill_misconception_id"] = nil
		delete(group, "tagged_misconception_id")
		return nil
	})
}

// v30 -> v31: every voiceover gets duration_secs = 0.
func (m *Migrator) convertV30ToV31(state map[string]any) error {
	rv, err := blob.Map(state, "recorded_voiceovers", "")
	if err != nil {
		return err
	}
	mapping, err := blob.Map(rv, "voiceovers_mapping", "recorded_voiceovers")
	if err != nil {
		return err
	}
	for contentID, rawByLang := range mapping {
		cidPath := blob.Join(voiceoversPath, contentID)
		byLang, err := blob.AsMap(rawByLang, cidPath)
		if err != nil {
			return err
		}
		for lang, rawVoiceover := range byLang {
			voiceover, err := blob.AsMap(rawVoiceover, blob.Join(cidPath, lang))
			if err != nil {
				return err
			}
			voiceover["duration_secs"] = 0.0
		}
	}
	return nil
}

// v31 -> v32: SetInput gets a configurable "Add item" button label.
func (m *Migrator) convertV31ToV32(state map[string]any) error {
	return addCustomizationArg(state, interactionSetInput, "buttonText", "Add item")
}

// v32 -> v33: MultipleChoiceInput shuffles its choices by default.
func (m *Migrator) convertV32ToV33(state map[string]any) error {
	return addCustomizationArg(state, interactionMultipleChoiceInput, "showChoicesInShuffledOrder", true)
}

func addCustomizationArg(state map[string]any, interactionID, name string, value any) error {
	interaction, id, hasID, err := interactionOf(state)
	if err != nil {
		return err
	}
	if !hasID || id != interactionID {
		return nil
	}
	args, err := customizationArgs(interaction)
	if err != nil {
		return err
	}
	args[name] = map[string]any{"value": value}
	return nil
}

// v33 -> v34: every HTML field is rewritten with the HTML transform
// (by default, math components gain math_content).
func (m *Migrator) convertV33ToV34(state map[string]any) error {
	return htmlconv.ConvertHTMLFieldsInState(state, m.transform, htmlconv.Options{
		OldCustomizationArgSchema: true,
		OldRuleSpecSchema:         true,
	})
}
