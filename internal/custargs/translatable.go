package custargs

import "fmt"

// ConversionFunc receives a translatable customization-arg value (a
// SubtitledUnicode or SubtitledHtml dict), its object type and the name of
// the top-level argument it belongs to, and returns the replacement value.
type ConversionFunc func(objType string, value any, argName string) (any, error)

// ConvertTranslatableInCustomizationArgs applies fn to every translatable
// value inside args, following list items and dict properties as described
// by each spec's schema. Values whose shape does not match the schema are
// skipped.
func ConvertTranslatableInCustomizationArgs(args map[string]any, specs []Spec, fn ConversionFunc) error {
	for _, spec := range specs {
		entry, ok := args[spec.Name].(map[string]any)
		if !ok {
			continue
		}
		converted, err := convertTranslatable(entry["value"], spec.Schema, spec.Name, fn)
		if err != nil {
			return fmt.Errorf("customization arg %s: %w", spec.Name, err)
		}
		entry["value"] = converted
	}
	return nil
}

func convertTranslatable(value any, schema map[string]any, argName string, fn ConversionFunc) (any, error) {
	switch SchemaType(schema) {
	case SchemaTypeCustom:
		objType := ObjType(schema)
		if objType != ObjTypeSubtitledUnicode && objType != ObjTypeSubtitledHTML {
			return value, nil
		}
		return fn(objType, value, argName)

	case SchemaTypeList:
		list, ok := value.([]any)
		if !ok {
			return value, nil
		}
		items := ItemsSchema(schema)
		for i, item := range list {
			converted, err := convertTranslatable(item, items, argName, fn)
			if err != nil {
				return nil, err
			}
			list[i] = converted
		}
		return list, nil

	case SchemaTypeDict:
		dict, ok := value.(map[string]any)
		if !ok {
			return value, nil
		}
		props, _ := schema["properties"].([]any)
		for _, rawProp := range props {
			prop, ok := rawProp.(map[string]any)
			if !ok {
				continue
			}
			name, _ := prop["name"].(string)
			propSchema, _ := prop["schema"].(map[string]any)
			v, present := dict[name]
			if !present {
				continue
			}
			converted, err := convertTranslatable(v, propSchema, argName, fn)
			if err != nil {
				return nil, err
			}
			dict[name] = converted
		}
		return dict, nil

	default:
		return value, nil
	}
}

// ContentIDs returns the content ids of every translatable value in args,
// in spec order. Null content ids are skipped.
func ContentIDs(args map[string]any, specs []Spec) ([]string, error) {
	var ids []string
	err := ConvertTranslatableInCustomizationArgs(args, specs, func(objType string, value any, argName string) (any, error) {
		dict, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected %s dict, received %v", objType, value)
		}
		if id, ok := dict["content_id"].(string); ok {
			ids = append(ids, id)
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
