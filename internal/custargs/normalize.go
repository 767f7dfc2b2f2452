package custargs

import (
	"fmt"
	"unicode/utf8"

	"github.com/dyluth/quill/internal/blob"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ValidationError is returned when customization args cannot be validated
// at all (as opposed to individual values failing normalization).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// GetFullCustomizationArgs populates args with a copy of each spec's default
// value for every spec name that is missing. args is modified in place and
// returned.
func GetFullCustomizationArgs(args map[string]any, specs []Spec) map[string]any {
	for _, spec := range specs {
		if _, ok := args[spec.Name]; !ok {
			args[spec.Name] = map[string]any{
				"value": blob.DeepCopy(spec.DefaultValue),
			}
		}
	}
	return args
}

// ValidateCustomizationArgsAndValues validates args against specs. Missing
// args are populated with defaults, args the specs do not declare are logged
// and removed, and every value is normalized against its schema. Values that
// fail normalization are kept unchanged.
//
// itemName and itemType only feed the warning text (e.g. "interaction",
// "TextInput"). A mapping keyed by strings is modified in place; the
// resulting mapping is always returned.
func ValidateCustomizationArgsAndValues(logger *zap.Logger, itemName, itemType string, args any, specs []Spec) (map[string]any, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	caArgs, err := asArgsMap(args)
	if err != nil {
		return nil, err
	}

	declared := make(map[string]bool, len(specs))
	for _, spec := range specs {
		declared[spec.Name] = true
	}

	GetFullCustomizationArgs(caArgs, specs)

	for name := range caArgs {
		if declared[name] {
			continue
		}
		logger.Warn(fmt.Sprintf("%s %s does not support customization arg %s.", capitalize(itemName), itemType, name),
			zap.String("event_type", "unsupported_customization_arg"),
			zap.String("item_type", itemType),
			zap.String("arg_name", name),
		)
		delete(caArgs, name)
	}

	for _, spec := range specs {
		entry, ok := caArgs[spec.Name].(map[string]any)
		if !ok {
			continue
		}
		normalized, err := NormalizeAgainstSchema(entry["value"], spec.Schema)
		if err != nil {
			// Legacy data may not match the schema; the value is kept as-is.
			continue
		}
		entry["value"] = normalized
	}

	return caArgs, nil
}

// asArgsMap accepts the decoded forms a customization-args mapping can take
// (JSON gives map[string]any, some YAML decoders give map[any]any).
func asArgsMap(args any) (map[string]any, error) {
	switch m := args.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			name, ok := k.(string)
			if !ok {
				return nil, &ValidationError{Message: fmt.Sprintf("Invalid customization arg name: %v", k)}
			}
			out[name] = v
		}
		return out, nil
	default:
		return nil, &ValidationError{Message: fmt.Sprintf("Expected customization args to be a dict, received %v", args)}
	}
}

// capitalize upper-cases the first letter of s and lower-cases the rest
// ("interaction" -> "Interaction", "multiple choice" -> "Multiple choice").
// Casers are built per call; they are not safe for concurrent use.
func capitalize(s string) string {
	_, size := utf8.DecodeRuneInString(s)
	return cases.Upper(language.Und).String(s[:size]) + cases.Lower(language.Und).String(s[size:])
}
