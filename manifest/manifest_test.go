package manifest

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tundra/partition"
	"tundra/schema"
	"tundra/storage"
)

const testLocation = "warehouse/events"

func testSchema() *schema.Schema {
	return schema.New(0,
		schema.NestedField{ID: 1, Name: "id", Type: schema.LongType, Required: true},
		schema.NestedField{ID: 2, Name: "region", Type: schema.StringType},
	)
}

func testSpec() *partition.Spec {
	return &partition.Spec{ID: 0, Fields: []partition.Field{
		{SourceID: 2, FieldID: 1000, Name: "region", Transform: partition.IdentityTransform{}},
	}}
}

func testEntry(t *testing.T, path, region string, status int32, snapID, seq, rows int64) Entry {
	t.Helper()
	spec := testSpec()
	types, err := spec.Bind(testSchema())
	require.NoError(t, err)

	var tuple partition.Tuple
	if region == "" {
		tuple = partition.Tuple{nil}
	} else {
		tuple = partition.Tuple{region}
	}
	pv, err := EncodePartition(spec, types, tuple)
	require.NoError(t, err)

	return Entry{
		Status:         status,
		SnapshotID:     snapID,
		SequenceNumber: seq,
		Data: DataFile{
			Path:        path,
			Format:      "parquet",
			Partition:   pv,
			RecordCount: rows,
			SizeBytes:   rows * 100,
		},
	}
}

func TestWriterRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	w, err := NewWriter(store, testLocation, testSchema(), testSpec(), 77, 1<<20)
	require.NoError(t, err)

	require.NoError(t, w.Append(ctx, testEntry(t, "data/a.parquet", "asia", StatusAdded, 77, 5, 10)))
	require.NoError(t, w.Append(ctx, testEntry(t, "data/b.parquet", "eu", StatusExisting, 12, 3, 20)))
	require.NoError(t, w.Append(ctx, testEntry(t, "data/c.parquet", "", StatusDeleted, 77, 5, 30)))

	files, err := w.Close(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)

	mf := files[0]
	assert.Equal(t, int64(77), mf.AddedSnapshotID)
	assert.Equal(t, int32(1), mf.AddedFilesCount)
	assert.Equal(t, int32(1), mf.ExistingFilesCount)
	assert.Equal(t, int32(1), mf.DeletedFilesCount)
	assert.Equal(t, int64(10), mf.AddedRowsCount)
	assert.Equal(t, int64(30), mf.DeletedRowsCount)
	assert.Equal(t, int64(3), mf.MinSequenceNumber)
	assert.Equal(t, int64(5), mf.SequenceNumber)
	assert.Equal(t, int32(2), mf.LiveFilesCount())

	require.Len(t, mf.Partitions, 1)
	s := mf.Partitions[0]
	assert.True(t, s.ContainsNull)
	assert.Equal(t, []byte("asia"), s.LowerBound)
	assert.Equal(t, []byte("eu"), s.UpperBound)

	entries, spec, err := Read(ctx, store, testLocation, mf.Path)
	require.NoError(t, err)
	assert.Equal(t, 0, spec.ID)
	require.Len(t, entries, 3)
	assert.Equal(t, "data/a.parquet", entries[0].Data.Path)
	assert.Equal(t, StatusDeleted, entries[2].Status)
	assert.True(t, entries[2].Data.Partition[0].Null)

	// The decoded partition restores the typed tuple.
	types, err := spec.Bind(testSchema())
	require.NoError(t, err)
	tuple, err := DecodePartition(types, entries[1].Data.Partition)
	require.NoError(t, err)
	assert.Equal(t, partition.Tuple{"eu"}, tuple)
}

func TestWriterRollsAtTargetSize(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	// A one-byte target forces a roll after every entry.
	w, err := NewWriter(store, testLocation, testSchema(), testSpec(), 9, 1)
	require.NoError(t, err)

	require.NoError(t, w.Append(ctx, testEntry(t, "data/a.parquet", "asia", StatusAdded, 9, 1, 1)))
	require.NoError(t, w.Append(ctx, testEntry(t, "data/b.parquet", "eu", StatusAdded, 9, 1, 1)))

	files, err := w.Close(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.NotEqual(t, files[0].Path, files[1].Path)

	for _, mf := range files {
		entries, _, err := Read(ctx, store, testLocation, mf.Path)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	}
}

func TestWriterEmptyClose(t *testing.T) {
	w, err := NewWriter(storage.NewMemoryStorage(), testLocation, testSchema(), testSpec(), 1, 1<<20)
	require.NoError(t, err)

	files, err := w.Close(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestListRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	files := []File{
		{Path: "metadata/m0.avro", Length: 123, SequenceNumber: 4, MinSequenceNumber: 1,
			AddedSnapshotID: 42, AddedFilesCount: 2, AddedRowsCount: 100,
			Partitions: []FieldSummary{{LowerBound: []byte("asia"), UpperBound: []byte("eu")}}},
		{Path: "metadata/m1.avro", Length: 456, SequenceNumber: 4, MinSequenceNumber: 4,
			AddedSnapshotID: 42, DeletedFilesCount: 1, DeletedRowsCount: 30,
			Partitions: []FieldSummary{{ContainsNull: true}}},
	}

	require.NoError(t, WriteList(ctx, store, testLocation, "metadata/snap-42.avro", files, 42, 4))

	got, err := ReadList(ctx, store, testLocation, "metadata/snap-42.avro")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "metadata/m0.avro", got[0].Path)
	assert.Equal(t, int64(123), got[0].Length)
	assert.Equal(t, int64(1), got[0].MinSequenceNumber)
	assert.Equal(t, int32(2), got[0].AddedFilesCount)
	require.Len(t, got[0].Partitions, 1)
	assert.Equal(t, []byte("asia"), got[0].Partitions[0].LowerBound)
	assert.Equal(t, []byte("eu"), got[0].Partitions[0].UpperBound)

	assert.Equal(t, int32(1), got[1].DeletedFilesCount)
	assert.Equal(t, int64(30), got[1].DeletedRowsCount)
	require.Len(t, got[1].Partitions, 1)
	assert.True(t, got[1].Partitions[0].ContainsNull)
}

func TestReadCorrupt(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	require.NoError(t, store.Write(ctx, testLocation+"/metadata/bad.avro", bytes.NewReader([]byte("not avro"))))

	_, _, err := Read(ctx, store, testLocation, "metadata/bad.avro")
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = ReadList(ctx, store, testLocation, "metadata/bad.avro")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReadMissing(t *testing.T) {
	_, _, err := Read(context.Background(), storage.NewMemoryStorage(), testLocation, "metadata/gone.avro")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEncodePartitionLengthMismatch(t *testing.T) {
	spec := testSpec()
	types, err := spec.Bind(testSchema())
	require.NoError(t, err)

	_, err = EncodePartition(spec, types, partition.Tuple{"eu", "extra"})
	assert.Error(t, err)
}
