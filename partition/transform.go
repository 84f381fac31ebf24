package partition

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/murmur3"

	"tundra/schema"
)

var (
	// ErrUnsupportedTransform is returned when a transform is applied to a
	// source type outside its domain.
	ErrUnsupportedTransform = errors.New("unsupported transform for type")
)

const (
	microsPerDay  = int64(86_400_000_000)
	microsPerHour = int64(3_600_000_000)
)

// Transform is a pure, deterministic function from a source column value to
// a partition value. The set is closed; null maps to null for every variant.
type Transform interface {
	String() string

	// ResultType validates the source type and reports the partition value
	// type, or ErrUnsupportedTransform.
	ResultType(source schema.Type) (schema.Type, error)

	// Apply maps one value. A nil input always yields nil.
	Apply(value any) (any, error)
}

// ParseTransform parses the serialized form: identity, void, year, month,
// day, hour, bucket[N], truncate[W].
func ParseTransform(s string) (Transform, error) {
	switch s {
	case "identity":
		return IdentityTransform{}, nil
	case "void":
		return VoidTransform{}, nil
	case "year":
		return YearTransform{}, nil
	case "month":
		return MonthTransform{}, nil
	case "day":
		return DayTransform{}, nil
	case "hour":
		return HourTransform{}, nil
	}
	if n, ok := parseBracket(s, "bucket"); ok {
		if n <= 0 {
			return nil, fmt.Errorf("parsing transform %q: bucket count must be positive", s)
		}
		return BucketTransform{N: n}, nil
	}
	if w, ok := parseBracket(s, "truncate"); ok {
		if w <= 0 {
			return nil, fmt.Errorf("parsing transform %q: truncate width must be positive", s)
		}
		return TruncateTransform{Width: w}, nil
	}
	return nil, fmt.Errorf("parsing transform %q: unknown transform", s)
}

func parseBracket(s, name string) (int, bool) {
	if !strings.HasPrefix(s, name+"[") || !strings.HasSuffix(s, "]") {
		return 0, false
	}
	n, err := strconv.Atoi(s[len(name)+1 : len(s)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}

type IdentityTransform struct{}

func (IdentityTransform) String() string { return "identity" }

func (IdentityTransform) ResultType(source schema.Type) (schema.Type, error) {
	switch source.(type) {
	case schema.StructType, schema.ListType, schema.MapType:
		return nil, fmt.Errorf("identity on %s: %w", source, ErrUnsupportedTransform)
	}
	return source, nil
}

func (IdentityTransform) Apply(value any) (any, error) { return value, nil }

// BucketTransform hashes the value with murmur3_x86_32 (seed 0) over the
// value's single-value binary form and takes the result mod N. The hash is
// fixed so independent writers agree on bucket assignment.
type BucketTransform struct {
	N int
}

func (t BucketTransform) String() string { return fmt.Sprintf("bucket[%d]", t.N) }

func (t BucketTransform) ResultType(source schema.Type) (schema.Type, error) {
	switch st := source.(type) {
	case schema.PrimitiveType:
		switch st {
		case schema.IntType, schema.LongType, schema.DateType, schema.TimeType,
			schema.TimestampType, schema.TimestampTzType, schema.StringType,
			schema.UUIDType, schema.BinaryType:
			return schema.IntType, nil
		}
	case schema.FixedType, schema.DecimalType:
		return schema.IntType, nil
	}
	return nil, fmt.Errorf("bucket on %s: %w", source, ErrUnsupportedTransform)
}

func (t BucketTransform) Apply(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	buf, err := hashBytes(value)
	if err != nil {
		return nil, fmt.Errorf("bucket[%d]: %w", t.N, err)
	}
	h := murmur3.Sum32(buf)
	return int32(h&math.MaxInt32) % int32(t.N), nil
}

// hashBytes is the single-value binary form fed to the bucket hash:
// integral and temporal values widen to an 8-byte little-endian long,
// strings hash their UTF-8 bytes, uuid/binary hash raw bytes.
func hashBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case int, int32, int64:
		n, _ := toInt64(v)
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(n))
		return buf, nil
	case time.Time:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v.UTC().UnixMicro()))
		return buf, nil
	case float64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		return buf, nil
	case float32:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(float64(v)))
		return buf, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case uuid.UUID:
		return v[:], nil
	}
	return nil, fmt.Errorf("hashing %T: %w", value, ErrUnsupportedTransform)
}

// TruncateTransform floors integers to a multiple of the width and takes
// prefixes of strings (code points) and binary (bytes).
type TruncateTransform struct {
	Width int
}

func (t TruncateTransform) String() string { return fmt.Sprintf("truncate[%d]", t.Width) }

func (t TruncateTransform) ResultType(source schema.Type) (schema.Type, error) {
	switch st := source.(type) {
	case schema.PrimitiveType:
		switch st {
		case schema.IntType, schema.LongType, schema.StringType, schema.BinaryType:
			return source, nil
		}
	}
	return nil, fmt.Errorf("truncate on %s: %w", source, ErrUnsupportedTransform)
}

func (t TruncateTransform) Apply(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	w := int64(t.Width)
	switch v := value.(type) {
	case int:
		// Plain ints hash as 8-byte longs, so they truncate as longs too.
		return int64(v) - floorMod(int64(v), w), nil
	case int32:
		return int32(int64(v) - floorMod(int64(v), w)), nil
	case int64:
		return v - floorMod(v, w), nil
	case string:
		runes := []rune(v)
		if len(runes) <= t.Width {
			return v, nil
		}
		return string(runes[:t.Width]), nil
	case []byte:
		if len(v) <= t.Width {
			return v, nil
		}
		return v[:t.Width], nil
	}
	return nil, fmt.Errorf("truncate[%d] on %T: %w", t.Width, value, ErrUnsupportedTransform)
}

// Calendar transforms operate in UTC against the 1970-01-01 epoch and
// produce integer offsets: years and months since epoch, days, hours.

type YearTransform struct{}

func (YearTransform) String() string { return "year" }

func (YearTransform) ResultType(source schema.Type) (schema.Type, error) {
	return temporalResult("year", source, false)
}

func (YearTransform) Apply(value any) (any, error) {
	t, err := toUTCTime(value)
	if err != nil || t == nil {
		return nil, err
	}
	return int32(t.Year() - 1970), nil
}

type MonthTransform struct{}

func (MonthTransform) String() string { return "month" }

func (MonthTransform) ResultType(source schema.Type) (schema.Type, error) {
	return temporalResult("month", source, false)
}

func (MonthTransform) Apply(value any) (any, error) {
	t, err := toUTCTime(value)
	if err != nil || t == nil {
		return nil, err
	}
	return int32((t.Year()-1970)*12 + int(t.Month()) - 1), nil
}

type DayTransform struct{}

func (DayTransform) String() string { return "day" }

func (DayTransform) ResultType(source schema.Type) (schema.Type, error) {
	return temporalResult("day", source, false)
}

func (DayTransform) Apply(value any) (any, error) {
	micros, ok, err := toEpochMicros(value)
	if err != nil || !ok {
		return nil, err
	}
	return int32(floorDiv(micros, microsPerDay)), nil
}

type HourTransform struct{}

func (HourTransform) String() string { return "hour" }

func (HourTransform) ResultType(source schema.Type) (schema.Type, error) {
	return temporalResult("hour", source, true)
}

func (HourTransform) Apply(value any) (any, error) {
	micros, ok, err := toEpochMicros(value)
	if err != nil || !ok {
		return nil, err
	}
	return int32(floorDiv(micros, microsPerHour)), nil
}

// VoidTransform always produces null; it retires a partition field without
// renumbering later fields.
type VoidTransform struct{}

func (VoidTransform) String() string { return "void" }

func (VoidTransform) ResultType(source schema.Type) (schema.Type, error) {
	return source, nil
}

func (VoidTransform) Apply(value any) (any, error) { return nil, nil }

func temporalResult(name string, source schema.Type, timestampOnly bool) (schema.Type, error) {
	if pt, ok := source.(schema.PrimitiveType); ok {
		switch pt {
		case schema.TimestampType, schema.TimestampTzType:
			return schema.IntType, nil
		case schema.DateType:
			if !timestampOnly {
				return schema.IntType, nil
			}
		}
	}
	return nil, fmt.Errorf("%s on %s: %w", name, source, ErrUnsupportedTransform)
}

// toUTCTime normalizes temporal inputs: time.Time, int64 micros since
// epoch, or int/int32 days since epoch (dates). Returns nil for nil input.
func toUTCTime(value any) (*time.Time, error) {
	micros, ok, err := toEpochMicros(value)
	if err != nil || !ok {
		return nil, err
	}
	t := time.UnixMicro(micros).UTC()
	return &t, nil
}

func toEpochMicros(value any) (int64, bool, error) {
	switch v := value.(type) {
	case nil:
		return 0, false, nil
	case time.Time:
		return v.UTC().UnixMicro(), true, nil
	case int64:
		return v, true, nil
	case int:
		return int64(v) * microsPerDay, true, nil
	case int32:
		return int64(v) * microsPerDay, true, nil
	}
	return 0, false, fmt.Errorf("temporal value %T: %w", value, ErrUnsupportedTransform)
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return ((a % b) + b) % b
}
