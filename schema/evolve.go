package schema

import (
	"fmt"
)

// Change is the closed set of schema evolution operations.
type Change interface {
	isChange()
}

// AddField appends an optional field. ParentID 0 targets the schema root;
// otherwise it must name an existing struct field. New fields (and any
// nested fields inside their type) receive fresh IDs from the last-column-ID
// counter carried in table metadata.
type AddField struct {
	ParentID int
	Name     string
	Type     Type
	Doc      string
}

// DropField removes a field and its subtree. The ID is retired, never
// reassigned: re-adding a same-named field later yields a fresh ID.
type DropField struct {
	FieldID int
}

// RenameField changes a field's name, keeping its ID.
type RenameField struct {
	FieldID int
	NewName string
}

// WidenField promotes a field's type per the fixed compatibility table:
// int to long, float to double, decimal precision growth at equal scale.
type WidenField struct {
	FieldID int
	NewType Type
}

// MakeOptional clears the required flag. The reverse change is not allowed.
type MakeOptional struct {
	FieldID int
}

func (AddField) isChange()     {}
func (DropField) isChange()    {}
func (RenameField) isChange()  {}
func (WidenField) isChange()   {}
func (MakeOptional) isChange() {}

// Evolve applies changes to base and returns the new schema together with
// the advanced last-column-ID counter. Base is never modified; unchanged
// fields keep their IDs.
func Evolve(base *Schema, newSchemaID, lastColumnID int, changes ...Change) (*Schema, int, error) {
	fields := copyFields(base.Fields)
	nextID := lastColumnID

	for _, change := range changes {
		var err error
		switch c := change.(type) {
		case AddField:
			fields, nextID, err = applyAdd(fields, c, nextID)
		case DropField:
			fields, err = applyDrop(fields, c.FieldID)
		case RenameField:
			fields, err = applyRename(fields, c.FieldID, c.NewName)
		case WidenField:
			fields, err = applyWiden(fields, c.FieldID, c.NewType)
		case MakeOptional:
			fields, err = applyMakeOptional(fields, c.FieldID)
		default:
			err = fmt.Errorf("unknown change %T: %w", change, ErrIncompatibleChange)
		}
		if err != nil {
			return nil, lastColumnID, err
		}
	}

	return New(newSchemaID, fields...), nextID, nil
}

func copyFields(fields []NestedField) []NestedField {
	out := make([]NestedField, len(fields))
	for i, f := range fields {
		out[i] = f
		if st, ok := f.Type.(StructType); ok {
			out[i].Type = StructType{FieldList: copyFields(st.FieldList)}
		}
	}
	return out
}

// assignFreshIDs gives every nested field of a newly added type a fresh ID.
func assignFreshIDs(t Type, nextID int) (Type, int) {
	switch nt := t.(type) {
	case StructType:
		fields := make([]NestedField, len(nt.FieldList))
		for i, f := range nt.FieldList {
			nextID++
			f.ID = nextID
			f.Type, nextID = assignFreshIDs(f.Type, nextID)
			fields[i] = f
		}
		return StructType{FieldList: fields}, nextID
	case ListType:
		nextID++
		nt.ElementID = nextID
		nt.Element, nextID = assignFreshIDs(nt.Element, nextID)
		return nt, nextID
	case MapType:
		nextID++
		nt.KeyID = nextID
		nt.Key, nextID = assignFreshIDs(nt.Key, nextID)
		nextID++
		nt.ValueID = nextID
		nt.Value, nextID = assignFreshIDs(nt.Value, nextID)
		return nt, nextID
	default:
		return t, nextID
	}
}

func applyAdd(fields []NestedField, c AddField, nextID int) ([]NestedField, int, error) {
	nextID++
	nf := NestedField{ID: nextID, Name: c.Name, Required: false, Doc: c.Doc}
	nf.Type, nextID = assignFreshIDs(c.Type, nextID)

	if c.ParentID == 0 {
		for _, f := range fields {
			if f.Name == c.Name {
				return nil, nextID, fmt.Errorf("adding field %q: name already in use: %w", c.Name, ErrIncompatibleChange)
			}
		}
		return append(fields, nf), nextID, nil
	}

	found := false
	out, err := mapField(fields, c.ParentID, func(f NestedField) (NestedField, error) {
		st, ok := f.Type.(StructType)
		if !ok {
			return f, fmt.Errorf("adding to non-struct field %d: %w", c.ParentID, ErrIncompatibleChange)
		}
		for _, existing := range st.FieldList {
			if existing.Name == c.Name {
				return f, fmt.Errorf("adding field %q: name already in use: %w", c.Name, ErrIncompatibleChange)
			}
		}
		found = true
		f.Type = StructType{FieldList: append(copyFields(st.FieldList), nf)}
		return f, nil
	})
	if err != nil {
		return nil, nextID, err
	}
	if !found {
		return nil, nextID, fmt.Errorf("adding under field %d: %w", c.ParentID, ErrUnknownFieldID)
	}
	return out, nextID, nil
}

func applyDrop(fields []NestedField, fieldID int) ([]NestedField, error) {
	found := false
	var drop func(fields []NestedField) []NestedField
	var dropInType func(t Type) Type
	drop = func(fields []NestedField) []NestedField {
		var out []NestedField
		for _, f := range fields {
			if f.ID == fieldID {
				found = true
				continue
			}
			f.Type = dropInType(f.Type)
			out = append(out, f)
		}
		return out
	}
	dropInType = func(t Type) Type {
		switch nt := t.(type) {
		case StructType:
			return StructType{FieldList: drop(nt.FieldList)}
		case ListType:
			nt.Element = dropInType(nt.Element)
			return nt
		case MapType:
			nt.Key = dropInType(nt.Key)
			nt.Value = dropInType(nt.Value)
			return nt
		}
		return t
	}

	out := drop(fields)
	if !found {
		return nil, fmt.Errorf("dropping field %d: %w", fieldID, ErrUnknownFieldID)
	}
	return out, nil
}

func applyRename(fields []NestedField, fieldID int, name string) ([]NestedField, error) {
	found := false
	out, err := mapField(fields, fieldID, func(f NestedField) (NestedField, error) {
		found = true
		f.Name = name
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("renaming field %d: %w", fieldID, ErrUnknownFieldID)
	}
	return out, nil
}

func applyWiden(fields []NestedField, fieldID int, newType Type) ([]NestedField, error) {
	found := false
	out, err := mapField(fields, fieldID, func(f NestedField) (NestedField, error) {
		found = true
		if typeEquals(f.Type, newType) {
			return f, nil
		}
		if !canWiden(f.Type, newType) {
			return f, fmt.Errorf("widening field %d from %s to %s: %w", fieldID, f.Type, newType, ErrIncompatibleChange)
		}
		f.Type = newType
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("widening field %d: %w", fieldID, ErrUnknownFieldID)
	}
	return out, nil
}

func applyMakeOptional(fields []NestedField, fieldID int) ([]NestedField, error) {
	found := false
	out, err := mapField(fields, fieldID, func(f NestedField) (NestedField, error) {
		found = true
		f.Required = false
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("making field %d optional: %w", fieldID, ErrUnknownFieldID)
	}
	return out, nil
}

// mapField applies fn to the field with the given ID wherever it sits in
// the tree, descending through struct, list element and map key/value
// types. fn errors abort the walk.
func mapField(fields []NestedField, fieldID int, fn func(NestedField) (NestedField, error)) ([]NestedField, error) {
	out := make([]NestedField, len(fields))
	for i, f := range fields {
		if f.ID == fieldID {
			nf, err := fn(f)
			if err != nil {
				return nil, err
			}
			out[i] = nf
			continue
		}
		t, err := mapInType(f.Type, fieldID, fn)
		if err != nil {
			return nil, err
		}
		f.Type = t
		out[i] = f
	}
	return out, nil
}

func mapInType(t Type, fieldID int, fn func(NestedField) (NestedField, error)) (Type, error) {
	switch nt := t.(type) {
	case StructType:
		sub, err := mapField(nt.FieldList, fieldID, fn)
		if err != nil {
			return nil, err
		}
		return StructType{FieldList: sub}, nil
	case ListType:
		elem, err := mapInType(nt.Element, fieldID, fn)
		if err != nil {
			return nil, err
		}
		nt.Element = elem
		return nt, nil
	case MapType:
		key, err := mapInType(nt.Key, fieldID, fn)
		if err != nil {
			return nil, err
		}
		value, err := mapInType(nt.Value, fieldID, fn)
		if err != nil {
			return nil, err
		}
		nt.Key = key
		nt.Value = value
		return nt, nil
	}
	return t, nil
}

func canWiden(from, to Type) bool {
	switch f := from.(type) {
	case PrimitiveType:
		t, ok := to.(PrimitiveType)
		if !ok {
			return false
		}
		return (f == IntType && t == LongType) || (f == FloatType && t == DoubleType)
	case DecimalType:
		t, ok := to.(DecimalType)
		return ok && t.Scale == f.Scale && t.Precision >= f.Precision
	}
	return false
}
