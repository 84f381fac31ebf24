package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/hamba/avro/v2/ocf"

	"tundra/partition"
	"tundra/schema"
	"tundra/storage"
)

// Writer appends entries into one or more manifest objects, rolling to a
// new object when the configured target size is exceeded. Close returns the
// manifest-list rows for everything written.
type Writer struct {
	store      storage.Storage
	location   string
	sch        *schema.Schema
	spec       *partition.Spec
	types      []schema.Type
	snapshotID int64
	targetSize int64

	schemaJSON []byte
	specJSON   []byte

	base string
	n    int

	buf *storage.Buffer
	enc *ocf.Encoder
	acc *accumulator

	files []File
}

type accumulator struct {
	addedFiles, existingFiles, deletedFiles int32
	addedRows, existingRows, deletedRows    int64
	minSeq, maxSeq                          int64
	partitions                              []FieldSummary
	entries                                 int
}

// NewWriter binds the spec against the schema up front so partition tuples
// are validated before any bytes are written.
func NewWriter(store storage.Storage, location string, sch *schema.Schema, spec *partition.Spec, snapshotID, targetSize int64) (*Writer, error) {
	types, err := spec.Bind(sch)
	if err != nil {
		return nil, fmt.Errorf("binding spec %d: %w", spec.ID, err)
	}

	schemaJSON, err := json.Marshal(sch)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshaling spec: %w", err)
	}

	return &Writer{
		store:      store,
		location:   location,
		sch:        sch,
		spec:       spec,
		types:      types,
		snapshotID: snapshotID,
		targetSize: targetSize,
		schemaJSON: schemaJSON,
		specJSON:   specJSON,
		base:       uuid.New().String(),
	}, nil
}

func (w *Writer) open() error {
	w.buf = storage.NewBuffer()

	enc, err := ocf.NewEncoder(entrySchema, w.buf, ocf.WithMetadata(map[string][]byte{
		MetaSchema: w.schemaJSON,
		MetaSpec:   w.specJSON,
		MetaSpecID: []byte(strconv.Itoa(w.spec.ID)),
	}))
	if err != nil {
		return fmt.Errorf("creating manifest encoder: %w", err)
	}
	w.enc = enc

	summaries := make([]FieldSummary, len(w.spec.Fields))
	w.acc = &accumulator{partitions: summaries}
	return nil
}

// Append writes one entry, starting a new manifest object first when the
// current one has reached the target size.
func (w *Writer) Append(ctx context.Context, e Entry) error {
	if w.enc == nil {
		if err := w.open(); err != nil {
			return err
		}
	}

	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("encoding manifest entry: %w", err)
	}
	if err := w.enc.Flush(); err != nil {
		return fmt.Errorf("flushing manifest entry: %w", err)
	}

	if err := w.acc.add(e, w.types); err != nil {
		return err
	}

	if w.buf.Size() >= w.targetSize {
		if err := w.roll(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *accumulator) add(e Entry, types []schema.Type) error {
	switch e.Status {
	case StatusAdded:
		a.addedFiles++
		a.addedRows += e.Data.RecordCount
	case StatusExisting:
		a.existingFiles++
		a.existingRows += e.Data.RecordCount
	case StatusDeleted:
		a.deletedFiles++
		a.deletedRows += e.Data.RecordCount
	default:
		return fmt.Errorf("manifest entry for %s: unknown status %d", e.Data.Path, e.Status)
	}

	if a.entries == 0 || e.SequenceNumber < a.minSeq {
		a.minSeq = e.SequenceNumber
	}
	if e.SequenceNumber > a.maxSeq {
		a.maxSeq = e.SequenceNumber
	}
	a.entries++

	if len(e.Data.Partition) != len(a.partitions) {
		return fmt.Errorf("manifest entry for %s: %d partition values, want %d", e.Data.Path, len(e.Data.Partition), len(a.partitions))
	}
	for i, pv := range e.Data.Partition {
		s := &a.partitions[i]
		if pv.Null {
			s.ContainsNull = true
			continue
		}
		if s.LowerBound == nil {
			s.LowerBound = pv.Value
			s.UpperBound = pv.Value
			continue
		}
		if c, err := partition.Compare(types[i], pv.Value, s.LowerBound); err != nil {
			return fmt.Errorf("summarizing partition field %q: %w", pv.Name, err)
		} else if c < 0 {
			s.LowerBound = pv.Value
		}
		if c, err := partition.Compare(types[i], pv.Value, s.UpperBound); err != nil {
			return fmt.Errorf("summarizing partition field %q: %w", pv.Name, err)
		} else if c > 0 {
			s.UpperBound = pv.Value
		}
	}
	return nil
}

func (w *Writer) roll(ctx context.Context) error {
	if w.enc == nil || w.acc.entries == 0 {
		return nil
	}

	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("closing manifest encoder: %w", err)
	}

	path := fmt.Sprintf("metadata/%s-m%d.avro", w.base, w.n)
	w.n++

	if err := w.store.Write(ctx, w.location+"/"+path, w.buf.Reader()); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}

	w.files = append(w.files, File{
		Path:               path,
		Length:             w.buf.Size(),
		SpecID:             int32(w.spec.ID),
		SequenceNumber:     w.acc.maxSeq,
		MinSequenceNumber:  w.acc.minSeq,
		AddedSnapshotID:    w.snapshotID,
		AddedFilesCount:    w.acc.addedFiles,
		ExistingFilesCount: w.acc.existingFiles,
		DeletedFilesCount:  w.acc.deletedFiles,
		AddedRowsCount:     w.acc.addedRows,
		ExistingRowsCount:  w.acc.existingRows,
		DeletedRowsCount:   w.acc.deletedRows,
		Partitions:         w.acc.partitions,
	})

	w.enc = nil
	w.buf = nil
	w.acc = nil
	return nil
}

// Close flushes the open manifest, if any, and returns the manifest-list
// rows in write order.
func (w *Writer) Close(ctx context.Context) ([]File, error) {
	if err := w.roll(ctx); err != nil {
		return nil, err
	}
	return w.files, nil
}
