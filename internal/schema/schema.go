// Package schema provides declarative field-set validation for stage
// documents. Every external stage implementation is treated as fallible
// input: its output is checked against the stage's declared schema at the
// adapter boundary before anything is persisted.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldRequirement defines whether a field is required or optional.
type FieldRequirement string

const (
	Required FieldRequirement = "required"
	Optional FieldRequirement = "optional"
)

// FieldSpec describes one field: its name, requirement level, and an
// optional validation function applied when the field is present.
type FieldSpec struct {
	Name        string               `json:"name"`
	Requirement FieldRequirement     `json:"requirement"`
	Description string               `json:"description,omitempty"`
	Check       func(value any) bool `json:"-"`
}

// Schema defines the expected structure of a stage document: top-level
// fields plus, optionally, a record schema applied to every element of the
// array found under ItemsField.
type Schema struct {
	Name       string      `json:"name"`
	Fields     []FieldSpec `json:"fields"`
	ItemsField string      `json:"items_field,omitempty"`
	Item       *Schema     `json:"item,omitempty"`
}

// Result scores a document against a schema. A document conforms when no
// fields are missing or invalid.
type Result struct {
	Schema  string   `json:"schema"`
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
}

// OK reports whether the document conformed.
func (r Result) OK() bool { return len(r.Missing) == 0 && len(r.Invalid) == 0 }

// Err returns a ViolationError describing the result, or nil when it is OK.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &ViolationError{Result: r}
}

// ViolationError is returned when a document does not conform to a schema.
type ViolationError struct {
	Result Result
}

func (e *ViolationError) Error() string {
	var parts []string
	if len(e.Result.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Result.Missing, ", "))
	}
	if len(e.Result.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Result.Invalid, ", "))
	}
	return fmt.Sprintf("schema %s: %s", e.Result.Schema, strings.Join(parts, "; "))
}

// Validate checks a document against the schema. Required fields must be
// present and non-nil; present fields with a Check must pass it. When
// ItemsField is set the array under it is validated element-wise against
// the Item schema, with violations reported as "items[i].field".
func (s Schema) Validate(doc map[string]any) Result {
	result := Result{Schema: s.Name}

	for _, spec := range s.Fields {
		v, has := doc[spec.Name]
		if !has || v == nil {
			if spec.Requirement == Required {
				result.Missing = append(result.Missing, spec.Name)
			}
			continue
		}
		if spec.Check != nil && !spec.Check(v) {
			result.Invalid = append(result.Invalid, spec.Name)
		}
	}

	if s.ItemsField == "" || s.Item == nil {
		return result
	}

	raw, has := doc[s.ItemsField]
	if !has || raw == nil {
		// Absence of the items array is covered by the field specs above;
		// an empty document body is a degraded result, not a violation.
		return result
	}
	items, ok := raw.([]any)
	if !ok {
		result.Invalid = append(result.Invalid, s.ItemsField)
		return result
	}
	for i, el := range items {
		rec, ok := el.(map[string]any)
		if !ok {
			result.Invalid = append(result.Invalid, fmt.Sprintf("%s[%d]", s.ItemsField, i))
			continue
		}
		sub := s.Item.Validate(rec)
		for _, m := range sub.Missing {
			result.Missing = append(result.Missing, fmt.Sprintf("%s[%d].%s", s.ItemsField, i, m))
		}
		for _, iv := range sub.Invalid {
			result.Invalid = append(result.Invalid, fmt.Sprintf("%s[%d].%s", s.ItemsField, i, iv))
		}
	}
	return result
}

// ToDoc converts a typed document to the map form Validate expects by
// round-tripping through JSON. Stage documents are plain data, so the trip
// is lossless for validation purposes.
func ToDoc(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: document is not an object: %w", err)
	}
	return doc, nil
}

// Common checks shared by stage schemas.

// IsString accepts non-empty strings.
func IsString(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}

// IsNumberIn returns a check accepting JSON numbers within [lo, hi].
func IsNumberIn(lo, hi float64) func(any) bool {
	return func(v any) bool {
		f, ok := v.(float64)
		return ok && f >= lo && f <= hi
	}
}

// IsArray accepts JSON arrays (including empty ones).
func IsArray(v any) bool {
	_, ok := v.([]any)
	return ok
}

// IsOneOf returns a check accepting one of the given string values.
func IsOneOf(values ...string) func(any) bool {
	return func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, w := range values {
			if s == w {
				return true
			}
		}
		return false
	}
}
