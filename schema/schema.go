package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFieldID is returned when a field ID is not present in the
	// schema being addressed.
	ErrUnknownFieldID = errors.New("unknown field id")

	// ErrIncompatibleChange is returned by Evolve for any change outside the
	// allowed compatibility table.
	ErrIncompatibleChange = errors.New("incompatible schema change")
)

// Schema is an immutable, versioned field tree. Every field, nested or not,
// carries a globally unique integer ID; all addressing goes through IDs so
// renames never change identity.
type Schema struct {
	ID     int
	Fields []NestedField

	index map[int]NestedField
}

func New(id int, fields ...NestedField) *Schema {
	s := &Schema{ID: id, Fields: fields}
	s.index = make(map[int]NestedField)
	indexFields(s.index, fields)
	return s
}

func indexFields(idx map[int]NestedField, fields []NestedField) {
	for _, f := range fields {
		idx[f.ID] = f
		indexType(idx, f.Type)
	}
}

func indexType(idx map[int]NestedField, t Type) {
	switch nt := t.(type) {
	case StructType:
		indexFields(idx, nt.FieldList)
	case ListType:
		idx[nt.ElementID] = NestedField{ID: nt.ElementID, Name: "element", Type: nt.Element, Required: nt.ElementRequired}
		indexType(idx, nt.Element)
	case MapType:
		idx[nt.KeyID] = NestedField{ID: nt.KeyID, Name: "key", Type: nt.Key, Required: true}
		idx[nt.ValueID] = NestedField{ID: nt.ValueID, Name: "value", Type: nt.Value, Required: nt.ValueRequired}
		indexType(idx, nt.Key)
		indexType(idx, nt.Value)
	}
}

// Resolve returns the field with the given ID, searching nested types.
func (s *Schema) Resolve(fieldID int) (NestedField, error) {
	f, ok := s.index[fieldID]
	if !ok {
		return NestedField{}, fmt.Errorf("resolving field %d in schema %d: %w", fieldID, s.ID, ErrUnknownFieldID)
	}
	return f, nil
}

// HighestFieldID returns the largest field ID assigned anywhere in the
// schema, including nested element/key/value IDs.
func (s *Schema) HighestFieldID() int {
	max := 0
	for id := range s.index {
		if id > max {
			max = id
		}
	}
	return max
}

// Project returns a new schema containing only the requested field IDs,
// preserving nesting. Selecting a nested field keeps its ancestors;
// selecting a struct keeps the whole subtree.
func Project(s *Schema, fieldIDs []int) (*Schema, error) {
	want := make(map[int]bool, len(fieldIDs))
	for _, id := range fieldIDs {
		if _, ok := s.index[id]; !ok {
			return nil, fmt.Errorf("projecting field %d: %w", id, ErrUnknownFieldID)
		}
		want[id] = true
	}

	fields := projectFields(s.Fields, want)
	return New(s.ID, fields...), nil
}

func projectFields(fields []NestedField, want map[int]bool) []NestedField {
	var out []NestedField
	for _, f := range fields {
		if want[f.ID] {
			out = append(out, f)
			continue
		}
		if t, ok := projectType(f.Type, want); ok {
			f.Type = t
			out = append(out, f)
		}
	}
	return out
}

// projectType reports whether any requested ID lives inside t, returning the
// narrowed type. Selecting a list element or map key/value keeps the whole
// container field; map values project like struct fields.
func projectType(t Type, want map[int]bool) (Type, bool) {
	switch nt := t.(type) {
	case StructType:
		if sub := projectFields(nt.FieldList, want); len(sub) > 0 {
			return StructType{FieldList: sub}, true
		}
	case ListType:
		if want[nt.ElementID] {
			return nt, true
		}
		if elem, ok := projectType(nt.Element, want); ok {
			nt.Element = elem
			return nt, true
		}
	case MapType:
		if want[nt.KeyID] || want[nt.ValueID] {
			return nt, true
		}
		if value, ok := projectType(nt.Value, want); ok {
			nt.Value = value
			return nt, true
		}
		if key, ok := projectType(nt.Key, want); ok {
			nt.Key = key
			return nt, true
		}
	}
	return t, false
}

// Equals reports whether two schemas have the same fields, IDs included.
// The schema ID itself is not compared.
func (s *Schema) Equals(other *Schema) bool {
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		if !fieldEquals(s.Fields[i], other.Fields[i]) {
			return false
		}
	}
	return true
}

func fieldEquals(a, b NestedField) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Required == b.Required && typeEquals(a.Type, b.Type)
}
