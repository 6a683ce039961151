// Package schema models the self-describing field schema a workflow step
// declares, the loosely-typed value tree answered against it, and the
// recursive evaluator that decides which required fields are still missing.
//
// Schemas and values cross the storage boundary as JSON text. Parsing is
// defensive: malformed text yields the zero value, never an error, so every
// caller downstream can stay total.
package schema

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FieldType discriminates the field-definition variants.
type FieldType string

const (
	TypeText    FieldType = "text"
	TypeNumber  FieldType = "number"
	TypeDate    FieldType = "date"
	TypeBoolean FieldType = "boolean"
	TypeFile    FieldType = "file"
	TypeGroup   FieldType = "group"
	TypeChoice  FieldType = "choice"
)

// Schema is the root of a step's field declaration. An empty field list is
// valid and means the step has no structured fields.
type Schema struct {
	Version int     `json:"version"`
	Fields  []Field `json:"fields"`
}

// Field is one node of the recursive schema tree. Exactly one payload shape
// applies per type: base fields carry none, groups carry Fields (and may be
// repeatable), choices carry Options.
type Field struct {
	ID           string    `json:"id"`
	Label        string    `json:"label,omitempty"`
	Type         FieldType `json:"type"`
	Required     bool      `json:"required,omitempty"`
	Repeatable   bool      `json:"repeatable,omitempty"`
	LinkToGlobal string    `json:"link_to_global,omitempty"`
	Fields       []Field   `json:"fields,omitempty"`
	Options      []Option  `json:"options,omitempty"`
}

// Option is one mutually exclusive branch of a choice field. At most one
// option per choice may be marked final; once the final branch is answered
// the sibling branches' requirements are suppressed.
type Option struct {
	ID      string  `json:"id"`
	Label   string  `json:"label,omitempty"`
	IsFinal bool    `json:"is_final,omitempty"`
	Fields  []Field `json:"fields,omitempty"`
}

// Parse decodes a serialized schema document. Malformed input returns the
// zero schema.
func Parse(text string) Schema {
	var s Schema
	if strings.TrimSpace(text) == "" {
		return Schema{Version: 1}
	}
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return Schema{Version: 1}
	}
	if s.Version == 0 {
		s.Version = 1
	}
	return s
}

// Encode renders s back to its stored JSON form.
func (s Schema) Encode() string {
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Fields == nil {
		s.Fields = []Field{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return `{"version":1,"fields":[]}`
	}
	return string(b)
}

// FinalOption returns the option marked is_final, if any.
func (f Field) FinalOption() *Option {
	for i := range f.Options {
		if f.Options[i].IsFinal {
			return &f.Options[i]
		}
	}
	return nil
}

// Truthy reports whether s is in the canonical truthy-string set used for
// stored boolean values.
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Number parses stored numeric text. Non-numeric text reads as absent and
// contributes zero to aggregates.
func Number(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
