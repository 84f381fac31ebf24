package schema

import (
	"fmt"
)

// Type is the closed set of field types. Primitive kinds and the three
// nested kinds (struct, list, map) are the only implementations.
type Type interface {
	String() string
	isType()
}

type PrimitiveType string

const (
	BooleanType     PrimitiveType = "boolean"
	IntType         PrimitiveType = "int"
	LongType        PrimitiveType = "long"
	FloatType       PrimitiveType = "float"
	DoubleType      PrimitiveType = "double"
	DateType        PrimitiveType = "date"
	TimeType        PrimitiveType = "time"
	TimestampType   PrimitiveType = "timestamp"
	TimestampTzType PrimitiveType = "timestamptz"
	StringType      PrimitiveType = "string"
	UUIDType        PrimitiveType = "uuid"
	BinaryType      PrimitiveType = "binary"
)

func (p PrimitiveType) String() string { return string(p) }
func (p PrimitiveType) isType()        {}

type DecimalType struct {
	Precision int
	Scale     int
}

func (d DecimalType) String() string { return fmt.Sprintf("decimal(%d, %d)", d.Precision, d.Scale) }
func (d DecimalType) isType()        {}

type FixedType struct {
	Length int
}

func (f FixedType) String() string { return fmt.Sprintf("fixed[%d]", f.Length) }
func (f FixedType) isType()        {}

// NestedField is one named, ID-addressed field of a struct (including the
// schema root). IDs are assigned once and never reused.
type NestedField struct {
	ID       int
	Name     string
	Type     Type
	Required bool
	Doc      string
}

type StructType struct {
	FieldList []NestedField
}

func (s StructType) String() string { return "struct" }
func (s StructType) isType()        {}

type ListType struct {
	ElementID       int
	Element         Type
	ElementRequired bool
}

func (l ListType) String() string { return fmt.Sprintf("list<%s>", l.Element) }
func (l ListType) isType()        {}

type MapType struct {
	KeyID         int
	Key           Type
	ValueID       int
	Value         Type
	ValueRequired bool
}

func (m MapType) String() string { return fmt.Sprintf("map<%s, %s>", m.Key, m.Value) }
func (m MapType) isType()        {}

// typeEquals reports structural equality ignoring nested field IDs.
func typeEquals(a, b Type) bool {
	switch at := a.(type) {
	case PrimitiveType:
		bt, ok := b.(PrimitiveType)
		return ok && at == bt
	case DecimalType:
		bt, ok := b.(DecimalType)
		return ok && at == bt
	case FixedType:
		bt, ok := b.(FixedType)
		return ok && at == bt
	case StructType:
		bt, ok := b.(StructType)
		if !ok || len(at.FieldList) != len(bt.FieldList) {
			return false
		}
		for i := range at.FieldList {
			af, bf := at.FieldList[i], bt.FieldList[i]
			if af.Name != bf.Name || af.Required != bf.Required || !typeEquals(af.Type, bf.Type) {
				return false
			}
		}
		return true
	case ListType:
		bt, ok := b.(ListType)
		return ok && at.ElementRequired == bt.ElementRequired && typeEquals(at.Element, bt.Element)
	case MapType:
		bt, ok := b.(MapType)
		return ok && at.ValueRequired == bt.ValueRequired &&
			typeEquals(at.Key, bt.Key) && typeEquals(at.Value, bt.Value)
	}
	return false
}
