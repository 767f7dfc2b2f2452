package custargs

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// NormalizeAgainstSchema checks value against schema and returns it in
// canonical form. Containers are rebuilt rather than mutated, so a failed
// normalization leaves value untouched. Any "validators" listed in the
// schema are applied to the normalized value.
func NormalizeAgainstSchema(value any, schema map[string]any) (any, error) {
	normalized, err := normalizeType(value, schema)
	if err != nil {
		return nil, err
	}
	if err := applyValidators(normalized, schema["validators"]); err != nil {
		return nil, err
	}
	return normalized, nil
}

func normalizeType(value any, schema map[string]any) (any, error) {
	switch SchemaType(schema) {
	case SchemaTypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, received %v", value)
		}
		return b, nil

	case SchemaTypeInt:
		return normalizeInt(value)

	case SchemaTypeFloat:
		return normalizeFloat(value)

	case SchemaTypeUnicode, SchemaTypeHTML:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, received %v", value)
		}
		return s, nil

	case SchemaTypeUnicodeOrNone:
		if value == nil {
			return nil, nil
		}
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string or null, received %v", value)
		}
		return s, nil

	case SchemaTypeList:
		return normalizeList(value, schema)

	case SchemaTypeDict:
		return normalizeDict(value, schema)

	case SchemaTypeCustom:
		return normalizeCustom(value, ObjType(schema))

	default:
		return nil, fmt.Errorf("unknown schema type %q", SchemaType(schema))
	}
}

func normalizeInt(value any) (any, error) {
	switch n := value.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("expected int, received %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := strconv.Atoi(n.String())
		if err != nil {
			return nil, fmt.Errorf("expected int, received %s", n)
		}
		return i, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return nil, fmt.Errorf("expected int, received %q", n)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("expected int, received %v", value)
	}
}

func normalizeFloat(value any) (any, error) {
	switch n := value.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("expected float, received %s", n)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, fmt.Errorf("expected float, received %q", n)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("expected float, received %v", value)
	}
}

func normalizeList(value any, schema map[string]any) (any, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list, received %v", value)
	}
	if rawLen, ok := schema["len"]; ok {
		want, err := normalizeInt(rawLen)
		if err != nil {
			return nil, fmt.Errorf("invalid list length in schema: %w", err)
		}
		if len(list) != want.(int) {
			return nil, fmt.Errorf("expected list of length %d, received %d items", want, len(list))
		}
	}

	items := ItemsSchema(schema)
	out := make([]any, len(list))
	for i, item := range list {
		normalized, err := NormalizeAgainstSchema(item, items)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = normalized
	}
	return out, nil
}

func normalizeDict(value any, schema map[string]any) (any, error) {
	dict, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected dict, received %v", value)
	}

	props, _ := schema["properties"].([]any)
	if len(props) != len(dict) {
		return nil, fmt.Errorf("expected dict with %d properties, received %d", len(props), len(dict))
	}

	out := make(map[string]any, len(dict))
	for _, rawProp := range props {
		prop, ok := rawProp.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid property in schema: %v", rawProp)
		}
		name, _ := prop["name"].(string)
		propSchema, _ := prop["schema"].(map[string]any)

		v, present := dict[name]
		if !present {
			return nil, fmt.Errorf("missing dict property %q", name)
		}
		normalized, err := NormalizeAgainstSchema(v, propSchema)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = normalized
	}
	return out, nil
}

func normalizeCustom(value any, objType string) (any, error) {
	var textField string
	switch objType {
	case ObjTypeSubtitledUnicode:
		textField = "unicode_str"
	case ObjTypeSubtitledHTML:
		textField = "html"
	default:
		// Other object types are validated by their own editors.
		return value, nil
	}

	dict, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected %s dict, received %v", objType, value)
	}
	if len(dict) != 2 {
		return nil, fmt.Errorf("expected %s to have exactly content_id and %s", objType, textField)
	}
	contentID, present := dict["content_id"]
	if !present {
		return nil, fmt.Errorf("%s is missing content_id", objType)
	}
	if contentID != nil {
		if _, ok := contentID.(string); !ok {
			return nil, fmt.Errorf("%s content_id must be a string or null", objType)
		}
	}
	text, ok := dict[textField].(string)
	if !ok {
		return nil, fmt.Errorf("%s %s must be a string", objType, textField)
	}
	return map[string]any{"content_id": contentID, textField: text}, nil
}

// applyValidators runs the schema validators understood by the registry
// snapshots. Unknown validator ids are rejected so a typo in a snapshot
// cannot silently disable a check.
func applyValidators(value any, raw any) error {
	if raw == nil {
		return nil
	}
	validators, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("invalid validators in schema: %v", raw)
	}

	for _, rawValidator := range validators {
		v, ok := rawValidator.(map[string]any)
		if !ok {
			return fmt.Errorf("invalid validator in schema: %v", rawValidator)
		}
		id, _ := v["id"].(string)

		switch id {
		case "is_at_least", "is_at_most":
			n, err := normalizeFloat(value)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			key := "min_value"
			if id == "is_at_most" {
				key = "max_value"
			}
			bound, err := normalizeFloat(v[key])
			if err != nil {
				return fmt.Errorf("%s: invalid %s: %w", id, key, err)
			}
			if id == "is_at_least" && n.(float64) < bound.(float64) {
				return fmt.Errorf("expected value of at least %v, received %v", bound, n)
			}
			if id == "is_at_most" && n.(float64) > bound.(float64) {
				return fmt.Errorf("expected value of at most %v, received %v", bound, n)
			}

		case "has_length_at_least", "has_length_at_most":
			length, err := lengthOf(value)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			key := "min_value"
			if id == "has_length_at_most" {
				key = "max_value"
			}
			bound, err := normalizeInt(v[key])
			if err != nil {
				return fmt.Errorf("%s: invalid %s: %w", id, key, err)
			}
			if id == "has_length_at_least" && length < bound.(int) {
				return fmt.Errorf("expected length of at least %d, received %d", bound, length)
			}
			if id == "has_length_at_most" && length > bound.(int) {
				return fmt.Errorf("expected length of at most %d, received %d", bound, length)
			}

		case "is_nonempty":
			s, ok := value.(string)
			if !ok || s == "" {
				return fmt.Errorf("expected non-empty string, received %v", value)
			}

		case "is_uniquified":
			list, ok := value.([]any)
			if !ok {
				return fmt.Errorf("is_uniquified: expected list, received %v", value)
			}
			seen := make(map[string]bool, len(list))
			for _, item := range list {
				key := fmt.Sprintf("%#v", item)
				if seen[key] {
					return fmt.Errorf("expected unique list items, %v is repeated", item)
				}
				seen[key] = true
			}

		default:
			return fmt.Errorf("unknown validator %q", id)
		}
	}
	return nil
}

func lengthOf(value any) (int, error) {
	switch v := value.(type) {
	case string:
		return len([]rune(v)), nil
	case []any:
		return len(v), nil
	default:
		return 0, fmt.Errorf("expected string or list, received %v", value)
	}
}
