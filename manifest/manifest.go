package manifest

import (
	"errors"
	"fmt"

	"tundra/partition"
	"tundra/schema"
)

var (
	// ErrCorrupt is returned when a manifest or manifest list cannot be
	// decoded. Readers return it without surfacing any partial results.
	ErrCorrupt = errors.New("corrupt manifest")
)

// Entry status relative to the manifest that lists the file.
const (
	StatusExisting int32 = 0
	StatusAdded    int32 = 1
	StatusDeleted  int32 = 2
)

// Metadata keys embedded in every manifest's Avro container, making the
// file readable without the table metadata at hand.
const (
	MetaSchema = "schema"
	MetaSpec   = "partition-spec"
	MetaSpecID = "partition-spec-id"
)

// Entry is one manifest row: a data file plus its status and the snapshot
// and sequence number that produced it.
type Entry struct {
	Status         int32    `avro:"status"`
	SnapshotID     int64    `avro:"snapshot_id"`
	SequenceNumber int64    `avro:"sequence_number"`
	Data           DataFile `avro:"data_file"`
}

// DataFile describes one immutable data file. Partition values and column
// bounds are stored in the single-value binary encoding.
type DataFile struct {
	Path        string           `avro:"file_path"`
	Format      string           `avro:"file_format"`
	Partition   []PartitionValue `avro:"partition"`
	RecordCount int64            `avro:"record_count"`
	SizeBytes   int64            `avro:"file_size_in_bytes"`
	ColumnSizes []I64Entry       `avro:"column_sizes"`
	ValueCounts []I64Entry       `avro:"value_counts"`
	NullCounts  []I64Entry       `avro:"null_value_counts"`
	LowerBounds []BytesEntry     `avro:"lower_bounds"`
	UpperBounds []BytesEntry     `avro:"upper_bounds"`
}

// PartitionValue is one component of a data file's partition tuple, in spec
// order.
type PartitionValue struct {
	Name  string `avro:"name"`
	Null  bool   `avro:"is_null"`
	Value []byte `avro:"value"`
}

// I64Entry and BytesEntry are key/value pairs keyed by schema field ID;
// Avro maps key on strings, so per-column stats are arrays of pairs.
type I64Entry struct {
	Key   int32 `avro:"key"`
	Value int64 `avro:"value"`
}

type BytesEntry struct {
	Key   int32 `avro:"key"`
	Value []byte `avro:"value"`
}

// File is a manifest-list row: one manifest plus the rollups that let
// planning prune it without opening it.
type File struct {
	Path               string         `avro:"manifest_path"`
	Length             int64          `avro:"manifest_length"`
	SpecID             int32          `avro:"partition_spec_id"`
	SequenceNumber     int64          `avro:"sequence_number"`
	MinSequenceNumber  int64          `avro:"min_sequence_number"`
	AddedSnapshotID    int64          `avro:"added_snapshot_id"`
	AddedFilesCount    int32          `avro:"added_files_count"`
	ExistingFilesCount int32          `avro:"existing_files_count"`
	DeletedFilesCount  int32          `avro:"deleted_files_count"`
	AddedRowsCount     int64          `avro:"added_rows_count"`
	ExistingRowsCount  int64          `avro:"existing_rows_count"`
	DeletedRowsCount   int64          `avro:"deleted_rows_count"`
	Partitions         []FieldSummary `avro:"partitions"`
}

// FieldSummary is the per-partition-field range rollup. Empty bounds mean
// the manifest holds no non-null value for the field.
type FieldSummary struct {
	ContainsNull bool   `avro:"contains_null"`
	LowerBound   []byte `avro:"lower_bound"`
	UpperBound   []byte `avro:"upper_bound"`
}

// LiveFilesCount reports how many entries the manifest still lists as
// added or existing.
func (f *File) LiveFilesCount() int32 {
	return f.AddedFilesCount + f.ExistingFilesCount
}

const entrySchema = `{
	"type": "record",
	"name": "manifest_entry",
	"fields": [
		{"name": "status", "type": "int", "field-id": 0},
		{"name": "snapshot_id", "type": "long", "field-id": 1},
		{"name": "sequence_number", "type": "long", "field-id": 3},
		{"name": "data_file", "field-id": 2, "type": {
			"type": "record",
			"name": "data_file",
			"fields": [
				{"name": "file_path", "type": "string", "field-id": 100},
				{"name": "file_format", "type": "string", "field-id": 101},
				{"name": "partition", "field-id": 102, "type": {"type": "array", "items": {
					"type": "record",
					"name": "partition_value",
					"fields": [
						{"name": "name", "type": "string"},
						{"name": "is_null", "type": "boolean"},
						{"name": "value", "type": "bytes"}
					]}}},
				{"name": "record_count", "type": "long", "field-id": 103},
				{"name": "file_size_in_bytes", "type": "long", "field-id": 104},
				{"name": "column_sizes", "field-id": 108, "type": {"type": "array", "items": {
					"type": "record",
					"name": "i64_entry",
					"fields": [
						{"name": "key", "type": "int"},
						{"name": "value", "type": "long"}
					]}}},
				{"name": "value_counts", "field-id": 109, "type": {"type": "array", "items": "i64_entry"}},
				{"name": "null_value_counts", "field-id": 110, "type": {"type": "array", "items": "i64_entry"}},
				{"name": "lower_bounds", "field-id": 125, "type": {"type": "array", "items": {
					"type": "record",
					"name": "bytes_entry",
					"fields": [
						{"name": "key", "type": "int"},
						{"name": "value", "type": "bytes"}
					]}}},
				{"name": "upper_bounds", "field-id": 128, "type": {"type": "array", "items": "bytes_entry"}}
			]}}
	]
}`

const listSchema = `{
	"type": "record",
	"name": "manifest_file",
	"fields": [
		{"name": "manifest_path", "type": "string", "field-id": 500},
		{"name": "manifest_length", "type": "long", "field-id": 501},
		{"name": "partition_spec_id", "type": "int", "field-id": 502},
		{"name": "sequence_number", "type": "long", "field-id": 515},
		{"name": "min_sequence_number", "type": "long", "field-id": 516},
		{"name": "added_snapshot_id", "type": "long", "field-id": 503},
		{"name": "added_files_count", "type": "int", "field-id": 504},
		{"name": "existing_files_count", "type": "int", "field-id": 505},
		{"name": "deleted_files_count", "type": "int", "field-id": 506},
		{"name": "added_rows_count", "type": "long", "field-id": 512},
		{"name": "existing_rows_count", "type": "long", "field-id": 513},
		{"name": "deleted_rows_count", "type": "long", "field-id": 514},
		{"name": "partitions", "field-id": 507, "type": {"type": "array", "items": {
			"type": "record",
			"name": "field_summary",
			"fields": [
				{"name": "contains_null", "type": "boolean", "field-id": 509},
				{"name": "lower_bound", "type": "bytes", "field-id": 510},
				{"name": "upper_bound", "type": "bytes", "field-id": 511}
			]}}}
	]
}`

// EncodePartition serializes a partition tuple for storage in a manifest
// entry. resultTypes come from Spec.Bind.
func EncodePartition(spec *partition.Spec, resultTypes []schema.Type, tuple partition.Tuple) ([]PartitionValue, error) {
	if len(tuple) != len(spec.Fields) {
		return nil, fmt.Errorf("encoding partition: tuple has %d values, spec %d fields", len(tuple), len(spec.Fields))
	}
	out := make([]PartitionValue, len(tuple))
	for i, v := range tuple {
		if v == nil {
			out[i] = PartitionValue{Name: spec.Fields[i].Name, Null: true}
			continue
		}
		b, err := partition.EncodeValue(resultTypes[i], v)
		if err != nil {
			return nil, fmt.Errorf("encoding partition field %q: %w", spec.Fields[i].Name, err)
		}
		out[i] = PartitionValue{Name: spec.Fields[i].Name, Value: b}
	}
	return out, nil
}

// DecodePartition restores the typed tuple from a manifest entry.
func DecodePartition(resultTypes []schema.Type, values []PartitionValue) (partition.Tuple, error) {
	if len(values) != len(resultTypes) {
		return nil, fmt.Errorf("decoding partition: %d values for %d fields", len(values), len(resultTypes))
	}
	tuple := make(partition.Tuple, len(values))
	for i, pv := range values {
		if pv.Null {
			continue
		}
		v, err := partition.DecodeValue(resultTypes[i], pv.Value)
		if err != nil {
			return nil, fmt.Errorf("decoding partition field %q: %w", pv.Name, err)
		}
		tuple[i] = v
	}
	return tuple, nil
}
