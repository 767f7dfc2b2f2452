package statemigration

import (
	"github.com/dyluth/quill/internal/blob"
	"github.com/dyluth/quill/internal/custargs"
	"go.uber.org/zap"
)

// specVersionV36 is the interaction registry snapshot the v35 -> v36 step
// resolves customization arg specs against.
const specVersionV36 = 36

// v35 -> v36: written translations switch from {html} to
// {data_format, translation}, and translatable customization args become
// SubtitledUnicode / SubtitledHtml values carrying fresh content ids. The
// state gains next_content_id_index.
func (m *Migrator) convertV35ToV36(state map[string]any) error {
	voiceovers, translations, err := contentMappings(state)
	if err != nil {
		return err
	}
	maxIndex := maxContentIDIndex(mapKeys(voiceovers), mapKeys(translations))

	for contentID, rawByLang := range translations {
		cidPath := blob.Join(translationsPath, contentID)
		byLang, err := blob.AsMap(rawByLang, cidPath)
		if err != nil {
			return err
		}
		for lang, rawTranslation := range byLang {
			tPath := blob.Join(cidPath, lang)
			translation, err := blob.AsMap(rawTranslation, tPath)
			if err != nil {
				return err
			}
			html, ok := translation["html"]
			if !ok {
				return blob.Malformed(blob.Join(tPath, "html"), "missing field")
			}
			delete(translation, "html")
			translation["data_format"] = "html"
			translation["translation"] = html
		}
	}

	interaction, id, hasID, err := interactionOf(state)
	if err != nil {
		return err
	}
	if !hasID {
		state["next_content_id_index"] = maxIndex + 1
		return nil
	}

	args, err := customizationArgs(interaction)
	if err != nil {
		return err
	}
	if id == interactionPencilCodeEditor {
		if code, ok := args["initial_code"]; ok {
			args["initialCode"] = code
			delete(args, "initial_code")
		}
	}

	specs, err := m.specsAt(id, specVersionV36)
	if err != nil {
		return err
	}

	counter := newContentIDCounter(maxIndex + 1)
	for _, spec := range specs {
		argPath := blob.Join("interaction.customization_args", spec.Name)
		prefix := "ca_" + spec.Name + "_"

		switch {
		case custargs.IsSubtitledUnicode(spec.Schema):
			value, err := blob.AsMap(blob.DeepCopy(spec.DefaultValue), argPath)
			if err != nil {
				return err
			}
			if raw, ok := args[spec.Name]; ok {
				arg, err := blob.AsMap(raw, argPath)
				if err != nil {
					return err
				}
				value["unicode_str"] = arg["value"]
			}
			value["content_id"] = counter.generate(prefix)
			args[spec.Name] = map[string]any{"value": value}

		case custargs.IsSubtitledHTMLList(spec.Schema):
			items := []any{}
			if raw, ok := args[spec.Name]; ok {
				arg, err := blob.AsMap(raw, argPath)
				if err != nil {
					return err
				}
				htmls, err := blob.List(arg, "value", argPath)
				if err != nil {
					return err
				}
				for _, h := range htmls {
					items = append(items, map[string]any{"html": h})
				}
			} else {
				defaults, err := blob.AsList(blob.DeepCopy(spec.DefaultValue), argPath)
				if err != nil {
					return err
				}
				items = append(items, defaults...)
			}
			for i, rawItem := range items {
				item, err := blob.AsMap(rawItem, blob.Index(blob.Join(argPath, "value"), i))
				if err != nil {
					return err
				}
				item["content_id"] = counter.generate(prefix)
			}
			args[spec.Name] = map[string]any{"value": items}

		default:
			if _, ok := args[spec.Name]; !ok {
				args[spec.Name] = map[string]any{"value": blob.DeepCopy(spec.DefaultValue)}
			}
		}
	}

	if _, err := custargs.ValidateCustomizationArgsAndValues(m.logger, "interaction", id, args, specs); err != nil {
		return err
	}

	state["next_content_id_index"] = counter.next
	if err := seedContentIDs(state, counter.newIDs); err != nil {
		return err
	}

	m.logger.Debug("Assigned customization arg content ids",
		zap.String("event_type", "content_ids_assigned"),
		zap.String("interaction_id", id),
		zap.Strings("content_ids", counter.newIDs),
	)
	return nil
}
