package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tundra/partition"
	"tundra/schema"
)

var (
	// ErrUnknownSnapshot is returned when a snapshot ID is not in the log.
	ErrUnknownSnapshot = errors.New("unknown snapshot")
)

// partition field IDs start above any plausible column ID so the two
// namespaces never collide.
const initialPartitionID = 999

// Metadata is the table's root document. It is immutable: every change
// produces a brand-new document, and old versions stay readable for
// time travel until explicitly expired.
type Metadata struct {
	FormatVersion      int               `json:"format-version"`
	UUID               string            `json:"table-uuid"`
	Location           string            `json:"location"`
	LastSequenceNumber int64             `json:"last-sequence-number"`
	LastUpdatedMs      int64             `json:"last-updated-ms"`
	LastColumnID       int               `json:"last-column-id"`
	CurrentSchemaID    int               `json:"current-schema-id"`
	Schemas            []*schema.Schema  `json:"schemas"`
	DefaultSpecID      int               `json:"default-spec-id"`
	LastPartitionID    int               `json:"last-partition-id"`
	Specs              []*partition.Spec `json:"partition-specs"`
	Properties         map[string]string `json:"properties"`
	CurrentSnapshotID  int64             `json:"current-snapshot-id"`
	Snapshots          []*Snapshot       `json:"snapshots"`
	SnapshotLog        []LogEntry        `json:"snapshot-log"`
}

// LogEntry records when a snapshot became current.
type LogEntry struct {
	SnapshotID  int64 `json:"snapshot-id"`
	TimestampMs int64 `json:"timestamp-ms"`
}

// SpecField is the caller-facing form of a partition field before the
// table assigns its partition-field ID.
type SpecField struct {
	SourceID  int
	Name      string
	Transform partition.Transform
}

// NewMetadata creates the metadata document for a fresh table. Fields carry
// their IDs already; the last-column-ID counter starts at the highest one.
func NewMetadata(location string, fields []schema.NestedField, specFields []SpecField) (*Metadata, error) {
	sch := schema.New(0, fields...)

	md := &Metadata{
		FormatVersion:     2,
		UUID:              uuid.New().String(),
		Location:          location,
		LastUpdatedMs:     nowMs(),
		LastColumnID:      sch.HighestFieldID(),
		CurrentSchemaID:   0,
		Schemas:           []*schema.Schema{sch},
		DefaultSpecID:     0,
		LastPartitionID:   initialPartitionID,
		Properties:        map[string]string{},
		CurrentSnapshotID: -1,
	}

	spec := &partition.Spec{ID: 0}
	for _, f := range specFields {
		md.LastPartitionID++
		spec.Fields = append(spec.Fields, partition.Field{
			SourceID:  f.SourceID,
			FieldID:   md.LastPartitionID,
			Name:      f.Name,
			Transform: f.Transform,
		})
	}
	if _, err := spec.Bind(sch); err != nil {
		return nil, fmt.Errorf("creating table: %w", err)
	}
	md.Specs = []*partition.Spec{spec}

	return md, nil
}

// ParseMetadata decodes a metadata document.
func ParseMetadata(data []byte) (*Metadata, error) {
	md := new(Metadata)
	if err := json.Unmarshal(data, md); err != nil {
		return nil, fmt.Errorf("decoding table metadata: %w", err)
	}
	return md, nil
}

// Marshal renders the document the way it is persisted.
func (m *Metadata) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func (m *Metadata) CurrentSchema() *schema.Schema {
	sch, _ := m.SchemaByID(m.CurrentSchemaID)
	return sch
}

func (m *Metadata) SchemaByID(id int) (*schema.Schema, error) {
	for _, s := range m.Schemas {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("schema %d not in table metadata", id)
}

func (m *Metadata) DefaultSpec() *partition.Spec {
	spec, _ := m.SpecByID(m.DefaultSpecID)
	return spec
}

func (m *Metadata) SpecByID(id int) (*partition.Spec, error) {
	for _, s := range m.Specs {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("partition spec %d not in table metadata", id)
}

// CurrentSnapshot returns nil for an empty table.
func (m *Metadata) CurrentSnapshot() *Snapshot {
	if m.CurrentSnapshotID < 0 {
		return nil
	}
	s, _ := m.SnapshotByID(m.CurrentSnapshotID)
	return s
}

func (m *Metadata) SnapshotByID(id int64) (*Snapshot, error) {
	for _, s := range m.Snapshots {
		if s.SnapshotID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("snapshot %d: %w", id, ErrUnknownSnapshot)
}

// SnapshotsAfter returns snapshots with a sequence number strictly greater
// than seq, in sequence order. The commit protocol uses this to find what
// landed between a stale base and the current state.
func (m *Metadata) SnapshotsAfter(seq int64) []*Snapshot {
	var out []*Snapshot
	for _, s := range m.Snapshots {
		if s.SequenceNumber > seq {
			out = append(out, s)
		}
	}
	return out
}

// UpdateSchema evolves the current schema and returns a new metadata
// document carrying it. The last-column-ID counter travels inside the
// document, so concurrent evolutions on separate copies cannot collide
// silently: they meet at the commit pointer instead.
func (m *Metadata) UpdateSchema(changes ...schema.Change) (*Metadata, error) {
	base := m.CurrentSchema()
	if base == nil {
		return nil, fmt.Errorf("updating schema: no current schema")
	}

	newID := 0
	for _, s := range m.Schemas {
		if s.ID >= newID {
			newID = s.ID + 1
		}
	}

	evolved, lastColumnID, err := schema.Evolve(base, newID, m.LastColumnID, changes...)
	if err != nil {
		return nil, fmt.Errorf("updating schema: %w", err)
	}

	// An evolution that lands on an already-known shape reuses that schema.
	for _, s := range m.Schemas {
		if s.Equals(evolved) {
			next := m.clone()
			next.CurrentSchemaID = s.ID
			next.LastUpdatedMs = nowMs()
			return next, nil
		}
	}

	next := m.clone()
	next.Schemas = append(next.Schemas, evolved)
	next.CurrentSchemaID = evolved.ID
	next.LastColumnID = lastColumnID
	next.LastUpdatedMs = nowMs()
	return next, nil
}

// AddPartitionSpec registers a new default spec. Old data files keep
// referencing the spec they were written under; partition-field IDs keep
// growing from the last-partition-ID counter and are never reused.
func (m *Metadata) AddPartitionSpec(fields []SpecField) (*Metadata, error) {
	sch := m.CurrentSchema()
	if sch == nil {
		return nil, fmt.Errorf("adding partition spec: no current schema")
	}

	next := m.clone()

	newID := 0
	for _, s := range m.Specs {
		if s.ID >= newID {
			newID = s.ID + 1
		}
	}

	spec := &partition.Spec{ID: newID}
	for _, f := range fields {
		next.LastPartitionID++
		spec.Fields = append(spec.Fields, partition.Field{
			SourceID:  f.SourceID,
			FieldID:   next.LastPartitionID,
			Name:      f.Name,
			Transform: f.Transform,
		})
	}
	if _, err := spec.Bind(sch); err != nil {
		return nil, fmt.Errorf("adding partition spec: %w", err)
	}

	next.Specs = append(next.Specs, spec)
	next.DefaultSpecID = spec.ID
	next.LastUpdatedMs = nowMs()
	return next, nil
}

// clone copies the document. Schemas, specs and snapshots are immutable
// once published, so the copies share them.
func (m *Metadata) clone() *Metadata {
	next := *m
	next.Schemas = append([]*schema.Schema(nil), m.Schemas...)
	next.Specs = append([]*partition.Spec(nil), m.Specs...)
	next.Snapshots = append([]*Snapshot(nil), m.Snapshots...)
	next.SnapshotLog = append([]LogEntry(nil), m.SnapshotLog...)
	next.Properties = make(map[string]string, len(m.Properties))
	for k, v := range m.Properties {
		next.Properties[k] = v
	}
	return &next
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
