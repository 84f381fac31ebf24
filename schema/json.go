package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// JSON layout follows the table-metadata document: primitives are plain
// strings, nested types are objects tagged with "type".

type schemaJSON struct {
	SchemaID int         `json:"schema-id"`
	Type     string      `json:"type"`
	Fields   []fieldJSON `json:"fields"`
}

type fieldJSON struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Required bool            `json:"required"`
	Type     json.RawMessage `json:"type"`
	Doc      string          `json:"doc,omitempty"`
}

type structJSON struct {
	Type   string      `json:"type"`
	Fields []fieldJSON `json:"fields"`
}

type listJSON struct {
	Type            string          `json:"type"`
	ElementID       int             `json:"element-id"`
	Element         json.RawMessage `json:"element"`
	ElementRequired bool            `json:"element-required"`
}

type mapJSON struct {
	Type          string          `json:"type"`
	KeyID         int             `json:"key-id"`
	Key           json.RawMessage `json:"key"`
	ValueID       int             `json:"value-id"`
	Value         json.RawMessage `json:"value"`
	ValueRequired bool            `json:"value-required"`
}

func (s *Schema) MarshalJSON() ([]byte, error) {
	fields, err := fieldsToJSON(s.Fields)
	if err != nil {
		return nil, err
	}
	return json.Marshal(schemaJSON{SchemaID: s.ID, Type: "struct", Fields: fields})
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw schemaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields, err := fieldsFromJSON(raw.Fields)
	if err != nil {
		return err
	}
	*s = *New(raw.SchemaID, fields...)
	return nil
}

func fieldsToJSON(fields []NestedField) ([]fieldJSON, error) {
	out := make([]fieldJSON, len(fields))
	for i, f := range fields {
		t, err := typeToJSON(f.Type)
		if err != nil {
			return nil, err
		}
		out[i] = fieldJSON{ID: f.ID, Name: f.Name, Required: f.Required, Type: t, Doc: f.Doc}
	}
	return out, nil
}

func typeToJSON(t Type) (json.RawMessage, error) {
	switch nt := t.(type) {
	case PrimitiveType:
		return json.Marshal(string(nt))
	case DecimalType, FixedType:
		return json.Marshal(nt.String())
	case StructType:
		fields, err := fieldsToJSON(nt.FieldList)
		if err != nil {
			return nil, err
		}
		return json.Marshal(structJSON{Type: "struct", Fields: fields})
	case ListType:
		elem, err := typeToJSON(nt.Element)
		if err != nil {
			return nil, err
		}
		return json.Marshal(listJSON{Type: "list", ElementID: nt.ElementID, Element: elem, ElementRequired: nt.ElementRequired})
	case MapType:
		key, err := typeToJSON(nt.Key)
		if err != nil {
			return nil, err
		}
		value, err := typeToJSON(nt.Value)
		if err != nil {
			return nil, err
		}
		return json.Marshal(mapJSON{Type: "map", KeyID: nt.KeyID, Key: key, ValueID: nt.ValueID, Value: value, ValueRequired: nt.ValueRequired})
	}
	return nil, fmt.Errorf("marshaling unknown type %T", t)
}

func fieldsFromJSON(fields []fieldJSON) ([]NestedField, error) {
	out := make([]NestedField, len(fields))
	for i, f := range fields {
		t, err := typeFromJSON(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out[i] = NestedField{ID: f.ID, Name: f.Name, Required: f.Required, Type: t, Doc: f.Doc}
	}
	return out, nil
}

var (
	decimalRe = regexp.MustCompile(`^decimal\((\d+),\s*(\d+)\)$`)
	fixedRe   = regexp.MustCompile(`^fixed\[(\d+)\]$`)
)

func typeFromJSON(raw json.RawMessage) (Type, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return primitiveFromString(name)
	}

	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("decoding type: %w", err)
	}

	switch tag.Type {
	case "struct":
		var st structJSON
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, err
		}
		fields, err := fieldsFromJSON(st.Fields)
		if err != nil {
			return nil, err
		}
		return StructType{FieldList: fields}, nil
	case "list":
		var lt listJSON
		if err := json.Unmarshal(raw, &lt); err != nil {
			return nil, err
		}
		elem, err := typeFromJSON(lt.Element)
		if err != nil {
			return nil, err
		}
		return ListType{ElementID: lt.ElementID, Element: elem, ElementRequired: lt.ElementRequired}, nil
	case "map":
		var mt mapJSON
		if err := json.Unmarshal(raw, &mt); err != nil {
			return nil, err
		}
		key, err := typeFromJSON(mt.Key)
		if err != nil {
			return nil, err
		}
		value, err := typeFromJSON(mt.Value)
		if err != nil {
			return nil, err
		}
		return MapType{KeyID: mt.KeyID, Key: key, ValueID: mt.ValueID, Value: value, ValueRequired: mt.ValueRequired}, nil
	}
	return nil, fmt.Errorf("decoding type %q: unknown type", tag.Type)
}

func primitiveFromString(name string) (Type, error) {
	switch PrimitiveType(name) {
	case BooleanType, IntType, LongType, FloatType, DoubleType, DateType,
		TimeType, TimestampType, TimestampTzType, StringType, UUIDType, BinaryType:
		return PrimitiveType(name), nil
	}
	if m := decimalRe.FindStringSubmatch(name); m != nil {
		p, _ := strconv.Atoi(m[1])
		s, _ := strconv.Atoi(m[2])
		return DecimalType{Precision: p, Scale: s}, nil
	}
	if m := fixedRe.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return FixedType{Length: n}, nil
	}
	return nil, fmt.Errorf("decoding type %q: unknown primitive", name)
}
