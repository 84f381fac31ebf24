// Package datafile derives manifest statistics from parquet footers so
// writers never re-scan data they just wrote.
package datafile

import (
	"fmt"
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"tundra/manifest"
	"tundra/partition"
	"tundra/schema"
)

// Describe reads a parquet footer and produces the manifest row for the
// file: record count, per-column sizes, value and null counts, and
// min/max bounds in the single-value encoding. Only top-level columns
// that resolve to a field of sch are described; nested columns add to
// the record count but carry no per-column stats.
//
// The partition tuple is not filled in; callers attach it with
// manifest.EncodePartition.
func Describe(path string, r io.ReaderAt, size int64, sch *schema.Schema) (manifest.DataFile, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return manifest.DataFile{}, fmt.Errorf("opening parquet file %s: %w", path, err)
	}
	meta := pf.Metadata()

	fieldIDs := make(map[string]int, len(sch.Fields))
	fieldTypes := make(map[int]schema.Type, len(sch.Fields))
	for _, f := range sch.Fields {
		fieldIDs[f.Name] = f.ID
		fieldTypes[f.ID] = f.Type
	}

	columnSizes := map[int32]int64{}
	valueCounts := map[int32]int64{}
	nullCounts := map[int32]int64{}
	lower := map[int32][]byte{}
	upper := map[int32][]byte{}

	for _, rg := range meta.RowGroups {
		for _, col := range rg.Columns {
			if len(col.MetaData.PathInSchema) != 1 {
				continue
			}
			fieldID, ok := fieldIDs[col.MetaData.PathInSchema[0]]
			if !ok {
				continue
			}
			id := int32(fieldID)

			columnSizes[id] += col.MetaData.TotalCompressedSize
			valueCounts[id] += col.MetaData.NumValues
			nullCounts[id] += col.MetaData.Statistics.NullCount

			ft, comparable := boundType(fieldTypes[fieldID])
			if !comparable {
				continue
			}
			lo, hi := statBounds(col.MetaData.Statistics)
			if lo == nil || hi == nil {
				continue
			}
			if err := mergeBound(lower, id, lo, ft, false); err != nil {
				return manifest.DataFile{}, fmt.Errorf("reading bounds of %s: %w", path, err)
			}
			if err := mergeBound(upper, id, hi, ft, true); err != nil {
				return manifest.DataFile{}, fmt.Errorf("reading bounds of %s: %w", path, err)
			}
		}
	}

	return manifest.DataFile{
		Path:        path,
		Format:      "parquet",
		RecordCount: meta.NumRows,
		SizeBytes:   size,
		ColumnSizes: toI64Entries(columnSizes),
		ValueCounts: toI64Entries(valueCounts),
		NullCounts:  toI64Entries(nullCounts),
		LowerBounds: toBytesEntries(lower),
		UpperBounds: toBytesEntries(upper),
	}, nil
}

// boundType reports whether min/max stats of the column are carried, and
// under which type they compare. Parquet's plain encoding of primitives
// matches the single-value encoding byte for byte, so footer stats pass
// through without re-encoding.
func boundType(t schema.Type) (schema.Type, bool) {
	switch t {
	case schema.IntType, schema.LongType, schema.FloatType, schema.DoubleType,
		schema.DateType, schema.TimeType, schema.TimestampType, schema.TimestampTzType,
		schema.StringType, schema.BinaryType:
		return t, true
	}
	return nil, false
}

func statBounds(s format.Statistics) ([]byte, []byte) {
	lo, hi := s.MinValue, s.MaxValue
	if lo == nil {
		lo = s.Min
	}
	if hi == nil {
		hi = s.Max
	}
	return lo, hi
}

func mergeBound(bounds map[int32][]byte, id int32, candidate []byte, t schema.Type, max bool) error {
	cur, ok := bounds[id]
	if !ok {
		bounds[id] = candidate
		return nil
	}
	c, err := partition.Compare(t, candidate, cur)
	if err != nil {
		return err
	}
	if (max && c > 0) || (!max && c < 0) {
		bounds[id] = candidate
	}
	return nil
}

func toI64Entries(m map[int32]int64) []manifest.I64Entry {
	out := make([]manifest.I64Entry, 0, len(m))
	for k, v := range m {
		out = append(out, manifest.I64Entry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func toBytesEntries(m map[int32][]byte) []manifest.BytesEntry {
	out := make([]manifest.BytesEntry, 0, len(m))
	for k, v := range m {
		out = append(out, manifest.BytesEntry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
