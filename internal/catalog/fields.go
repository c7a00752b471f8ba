package catalog

import (
	"strconv"
	"strings"
	"time"
)

// The remote API gives no schema guarantee: any field may be absent, null,
// or of unexpected type. These accessors validate on read and coerce
// mismatches to the zero value, so callers never see a decode error.

// StringField returns the string value of a field, "" if absent or not a string.
func StringField(fields map[string]any, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

// NumberField returns the numeric value of a field and whether one was present.
// JSON numbers decode as float64; integers are accepted for robustness.
func NumberField(fields map[string]any, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// DisplayField renders a field value for display: strings pass through,
// numbers and booleans are stringified, absent or null values and anything
// else yield "".
func DisplayField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// BoolField returns the boolean value of a field, false if absent or mistyped.
func BoolField(fields map[string]any, key string) bool {
	b, _ := fields[key].(bool)
	return b
}

// DateField parses a YYYY-MM-DD or RFC 3339 date string field.
func DateField(fields map[string]any, key string) (time.Time, bool) {
	s := StringField(fields, key)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// JoinName composes a display name from the given field values, skipping
// empty parts and joining with single spaces.
func JoinName(fields map[string]any, keys ...string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if s := StringField(fields, k); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Sanitize filters an untrusted field map against the collection schema:
// unknown keys are dropped and type mismatches become absent. Ref fields are
// kept as strings; the scan layer resolves them separately.
func Sanitize(k Key, raw map[string]any) map[string]any {
	out := make(map[string]any)
	for _, spec := range schemas[k] {
		v, ok := raw[spec.Key]
		if !ok || v == nil {
			continue
		}
		switch spec.Type {
		case String, Date, Ref:
			if s, ok := v.(string); ok && s != "" {
				out[spec.Key] = s
			}
		case Number:
			switch n := v.(type) {
			case float64:
				out[spec.Key] = n
			case int:
				out[spec.Key] = float64(n)
			}
		case Bool:
			if b, ok := v.(bool); ok {
				out[spec.Key] = b
			}
		}
	}
	return out
}
