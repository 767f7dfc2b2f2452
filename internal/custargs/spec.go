// Package custargs fills in, prunes and normalizes interaction
// customization arguments against the argument specs published by the
// interaction registry.
package custargs

// Spec describes one customization argument an interaction accepts.
type Spec struct {
	Name         string         `yaml:"name" json:"name"`
	Description  string         `yaml:"description" json:"description"`
	Schema       map[string]any `yaml:"schema" json:"schema"`
	DefaultValue any            `yaml:"default_value" json:"default_value"`
}

// Schema type tags.
const (
	SchemaTypeBool          = "bool"
	SchemaTypeInt           = "int"
	SchemaTypeFloat         = "float"
	SchemaTypeUnicode       = "unicode"
	SchemaTypeUnicodeOrNone = "unicode_or_none"
	SchemaTypeHTML          = "html"
	SchemaTypeList          = "list"
	SchemaTypeDict          = "dict"
	SchemaTypeCustom        = "custom"
)

// Object types used with SchemaTypeCustom that carry translatable content.
const (
	ObjTypeSubtitledUnicode = "SubtitledUnicode"
	ObjTypeSubtitledHTML    = "SubtitledHtml"
)

// SchemaType returns the "type" tag of a schema, or "" if absent.
func SchemaType(schema map[string]any) string {
	t, _ := schema["type"].(string)
	return t
}

// ObjType returns the "obj_type" of a custom schema, or "".
func ObjType(schema map[string]any) string {
	if SchemaType(schema) != SchemaTypeCustom {
		return ""
	}
	t, _ := schema["obj_type"].(string)
	return t
}

// ItemsSchema returns the item schema of a list schema, or nil.
func ItemsSchema(schema map[string]any) map[string]any {
	items, _ := schema["items"].(map[string]any)
	return items
}

// IsSubtitledUnicode reports whether schema is custom/SubtitledUnicode.
func IsSubtitledUnicode(schema map[string]any) bool {
	return ObjType(schema) == ObjTypeSubtitledUnicode
}

// IsSubtitledHTMLList reports whether schema is a list of custom/SubtitledHtml.
func IsSubtitledHTMLList(schema map[string]any) bool {
	if SchemaType(schema) != SchemaTypeList {
		return false
	}
	return ObjType(ItemsSchema(schema)) == ObjTypeSubtitledHTML
}

// Names returns the spec names in order.
func Names(specs []Spec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}
