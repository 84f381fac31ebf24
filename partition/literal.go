package partition

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"tundra/schema"
)

// Single-value binary encoding for partition values and column bounds. The
// layout is fixed (little-endian, no framing) so encoded bounds compare and
// round-trip identically across writers.

// EncodeValue serializes one value of the given type. Nil encodes to nil.
func EncodeValue(t schema.Type, v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	pt, ok := t.(schema.PrimitiveType)
	if !ok {
		switch ft := t.(type) {
		case schema.FixedType:
			b, ok := v.([]byte)
			if !ok || len(b) != ft.Length {
				return nil, fmt.Errorf("encoding %T as %s: invalid value", v, t)
			}
			return b, nil
		}
		return nil, fmt.Errorf("encoding %s: unsupported literal type", t)
	}

	switch pt {
	case schema.BooleanType:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("encoding %T as boolean: invalid value", v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case schema.IntType, schema.DateType:
		n, ok := toInt64(v)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("encoding %T as %s: invalid value", v, pt)
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(int32(n)))
		return buf, nil
	case schema.LongType, schema.TimeType, schema.TimestampType, schema.TimestampTzType:
		var n int64
		if ts, isTime := v.(time.Time); isTime {
			n = ts.UTC().UnixMicro()
		} else {
			var ok bool
			n, ok = toInt64(v)
			if !ok {
				return nil, fmt.Errorf("encoding %T as %s: invalid value", v, pt)
			}
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(n))
		return buf, nil
	case schema.FloatType:
		f, ok := v.(float32)
		if !ok {
			return nil, fmt.Errorf("encoding %T as float: invalid value", v)
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
		return buf, nil
	case schema.DoubleType:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("encoding %T as double: invalid value", v)
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	case schema.StringType:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("encoding %T as string: invalid value", v)
		}
		return []byte(s), nil
	case schema.BinaryType:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("encoding %T as binary: invalid value", v)
		}
		return b, nil
	case schema.UUIDType:
		u, ok := v.(uuid.UUID)
		if !ok {
			return nil, fmt.Errorf("encoding %T as uuid: invalid value", v)
		}
		return u[:], nil
	}
	return nil, fmt.Errorf("encoding %s: unsupported literal type", pt)
}

// DecodeValue is the inverse of EncodeValue. Nil decodes to nil.
func DecodeValue(t schema.Type, b []byte) (any, error) {
	if b == nil {
		return nil, nil
	}
	if ft, ok := t.(schema.FixedType); ok {
		if len(b) != ft.Length {
			return nil, fmt.Errorf("decoding %s: got %d bytes", t, len(b))
		}
		return b, nil
	}
	pt, ok := t.(schema.PrimitiveType)
	if !ok {
		return nil, fmt.Errorf("decoding %s: unsupported literal type", t)
	}

	switch pt {
	case schema.BooleanType:
		if len(b) != 1 {
			return nil, fmt.Errorf("decoding boolean: got %d bytes", len(b))
		}
		return b[0] != 0, nil
	case schema.IntType, schema.DateType:
		if len(b) != 4 {
			return nil, fmt.Errorf("decoding %s: got %d bytes", pt, len(b))
		}
		return int32(binary.LittleEndian.Uint32(b)), nil
	case schema.LongType, schema.TimeType, schema.TimestampType, schema.TimestampTzType:
		if len(b) != 8 {
			return nil, fmt.Errorf("decoding %s: got %d bytes", pt, len(b))
		}
		return int64(binary.LittleEndian.Uint64(b)), nil
	case schema.FloatType:
		if len(b) != 4 {
			return nil, fmt.Errorf("decoding float: got %d bytes", len(b))
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
	case schema.DoubleType:
		if len(b) != 8 {
			return nil, fmt.Errorf("decoding double: got %d bytes", len(b))
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	case schema.StringType:
		return string(b), nil
	case schema.BinaryType:
		return b, nil
	case schema.UUIDType:
		if len(b) != 16 {
			return nil, fmt.Errorf("decoding uuid: got %d bytes", len(b))
		}
		var u uuid.UUID
		copy(u[:], b)
		return u, nil
	}
	return nil, fmt.Errorf("decoding %s: unsupported literal type", pt)
}

// Compare orders two encoded values of the same type: negative when a < b,
// zero when equal, positive when a > b. Used for bound rollups and manifest
// pruning.
func Compare(t schema.Type, a, b []byte) (int, error) {
	av, err := DecodeValue(t, a)
	if err != nil {
		return 0, err
	}
	bv, err := DecodeValue(t, b)
	if err != nil {
		return 0, err
	}

	switch x := av.(type) {
	case bool:
		y := bv.(bool)
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		default:
			return 1, nil
		}
	case int32:
		return cmpOrdered(x, bv.(int32)), nil
	case int64:
		return cmpOrdered(x, bv.(int64)), nil
	case float32:
		return cmpOrdered(x, bv.(float32)), nil
	case float64:
		return cmpOrdered(x, bv.(float64)), nil
	case string:
		return cmpOrdered(x, bv.(string)), nil
	case []byte:
		return bytes.Compare(x, bv.([]byte)), nil
	case uuid.UUID:
		y := bv.(uuid.UUID)
		return bytes.Compare(x[:], y[:]), nil
	}
	return 0, fmt.Errorf("comparing %s: unsupported literal type", t)
}

func cmpOrdered[T int32 | int64 | float32 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
