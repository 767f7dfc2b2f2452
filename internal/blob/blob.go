// Package blob provides helpers for working with untyped, JSON-compatible
// question state blobs: typed field access with path-carrying errors, deep
// copies, and decoding that preserves numeric precision.
//
// A blob is a tree of map[string]any, []any, string, bool, nil and numbers
// (json.Number, float64 or int depending on where it came from).
package blob

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// MalformedStateError reports a blob field that is missing or has an
// unexpected shape for the schema version being processed.
type MalformedStateError struct {
	Path   string
	Reason string
}

func (e *MalformedStateError) Error() string {
	return fmt.Sprintf("malformed state at '%s': %s", e.Path, e.Reason)
}

// IsMalformed returns true if err is (or wraps) a MalformedStateError.
func IsMalformed(err error) bool {
	var m *MalformedStateError
	return errors.As(err, &m)
}

// Malformed builds a MalformedStateError for path.
func Malformed(path string, format string, a ...any) error {
	return &MalformedStateError{Path: path, Reason: fmt.Sprintf(format, a...)}
}

// Join appends a key to a dotted field path.
func Join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// Index appends a list index to a field path.
func Index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

// AsMap asserts that v is a mapping.
func AsMap(v any, path string) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, Malformed(path, "expected a mapping, got %s", typeName(v))
	}
	return m, nil
}

// AsList asserts that v is a list.
func AsList(v any, path string) ([]any, error) {
	l, ok := v.([]any)
	if !ok {
		return nil, Malformed(path, "expected a list, got %s", typeName(v))
	}
	return l, nil
}

// AsString asserts that v is a string.
func AsString(v any, path string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", Malformed(path, "expected a string, got %s", typeName(v))
	}
	return s, nil
}

// Map returns the mapping stored under key.
func Map(m map[string]any, key, path string) (map[string]any, error) {
	v, ok := m[key]
	if !ok {
		return nil, Malformed(Join(path, key), "missing field")
	}
	return AsMap(v, Join(path, key))
}

// List returns the list stored under key.
func List(m map[string]any, key, path string) ([]any, error) {
	v, ok := m[key]
	if !ok {
		return nil, Malformed(Join(path, key), "missing field")
	}
	return AsList(v, Join(path, key))
}

// String returns the string stored under key.
func String(m map[string]any, key, path string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", Malformed(Join(path, key), "missing field")
	}
	return AsString(v, Join(path, key))
}

// NullableString returns the string stored under key. A missing key or an
// explicit null yields ok == false.
func NullableString(m map[string]any, key, path string) (s string, ok bool, err error) {
	v, present := m[key]
	if !present || v == nil {
		return "", false, nil
	}
	s, err = AsString(v, Join(path, key))
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// Int converts a numeric blob value to an int. Non-integral numbers are rejected.
func Int(v any, path string) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, Malformed(path, "expected an integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := strconv.Atoi(n.String())
		if err != nil {
			return 0, Malformed(path, "expected an integer, got %s", n.String())
		}
		return i, nil
	default:
		return 0, Malformed(path, "expected an integer, got %s", typeName(v))
	}
}

// Float converts a numeric blob value to a float64.
func Float(v any, path string) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, Malformed(path, "expected a number, got %s", n.String())
		}
		return f, nil
	default:
		return 0, Malformed(path, "expected a number, got %s", typeName(v))
	}
}

// DeepCopy returns a copy of v sharing no mutable containers with it.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return DeepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = DeepCopy(item)
		}
		return out
	default:
		return v
	}
}

// DeepCopyMap is DeepCopy specialised for mappings. A nil map copies to nil.
func DeepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = DeepCopy(v)
	}
	return out
}

// Decode reads a single JSON object from r. Numbers are kept as json.Number
// so untouched fields re-encode byte-for-byte.
func Decode(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode state blob: %w", err)
	}
	return out, nil
}

// Unmarshal is json.Unmarshal with json.Number preservation.
func Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "mapping"
	case []any:
		return "list"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int64, float64, json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
