package partition

import (
	"encoding/json"
	"fmt"
	"strings"

	"tundra/schema"
)

// Field is one component of a partition spec: take the source column by
// field ID, apply the transform, store the result under Name. FieldID is
// the partition field's own ID, allocated from the table's last-partition-ID
// counter and never reused.
type Field struct {
	SourceID  int
	FieldID   int
	Name      string
	Transform Transform
}

// Spec is an ordered, immutable partition specification. A table may carry
// several specs over its lifetime; data files always reference the spec
// they were written under.
type Spec struct {
	ID     int
	Fields []Field
}

// Record holds source column values addressed by schema field ID.
type Record map[int]any

// Tuple is a computed partition value, one entry per spec field, in spec
// order. Nil entries are null partition values.
type Tuple []any

// Bind validates the spec against a schema: every source field must exist
// and every transform must accept its source type. It returns the result
// type of each partition field in order.
func (s *Spec) Bind(sch *schema.Schema) ([]schema.Type, error) {
	types := make([]schema.Type, len(s.Fields))
	for i, f := range s.Fields {
		src, err := sch.Resolve(f.SourceID)
		if err != nil {
			return nil, fmt.Errorf("binding partition field %q: %w", f.Name, err)
		}
		rt, err := f.Transform.ResultType(src.Type)
		if err != nil {
			return nil, fmt.Errorf("binding partition field %q: %w", f.Name, err)
		}
		types[i] = rt
	}
	return types, nil
}

// PartitionValues derives the partition tuple for one record. Missing or
// null source values become null components.
func (s *Spec) PartitionValues(rec Record) (Tuple, error) {
	tuple := make(Tuple, len(s.Fields))
	for i, f := range s.Fields {
		v, err := f.Transform.Apply(rec[f.SourceID])
		if err != nil {
			return nil, fmt.Errorf("computing partition field %q: %w", f.Name, err)
		}
		tuple[i] = v
	}
	return tuple, nil
}

// Path renders a tuple as a hive-style path fragment, name=value joined
// with slashes; null values render as "null".
func (s *Spec) Path(t Tuple) string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		v := "null"
		if i < len(t) && t[i] != nil {
			v = fmt.Sprint(t[i])
		}
		parts[i] = fmt.Sprintf("%s=%s", f.Name, v)
	}
	return strings.Join(parts, "/")
}

// FieldByName returns the index of the named partition field, or -1.
func (s *Spec) FieldByName(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

type fieldJSON struct {
	SourceID  int    `json:"source-id"`
	FieldID   int    `json:"field-id"`
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

type specJSON struct {
	SpecID int         `json:"spec-id"`
	Fields []fieldJSON `json:"fields"`
}

func (s *Spec) MarshalJSON() ([]byte, error) {
	fields := make([]fieldJSON, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = fieldJSON{SourceID: f.SourceID, FieldID: f.FieldID, Name: f.Name, Transform: f.Transform.String()}
	}
	return json.Marshal(specJSON{SpecID: s.ID, Fields: fields})
}

func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw specJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := make([]Field, len(raw.Fields))
	for i, f := range raw.Fields {
		t, err := ParseTransform(f.Transform)
		if err != nil {
			return fmt.Errorf("partition field %q: %w", f.Name, err)
		}
		fields[i] = Field{SourceID: f.SourceID, FieldID: f.FieldID, Name: f.Name, Transform: t}
	}
	s.ID = raw.SpecID
	s.Fields = fields
	return nil
}
