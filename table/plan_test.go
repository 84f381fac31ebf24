package table

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tundra/manifest"
	"tundra/partition"
	"tundra/schema"
	"tundra/storage"
)

func longPartitionedMetadata(t *testing.T) *Metadata {
	t.Helper()
	md, err := NewMetadata("warehouse/events",
		[]schema.NestedField{{ID: 1, Name: "id", Type: schema.LongType}},
		[]SpecField{{SourceID: 1, Name: "id_p", Transform: partition.IdentityTransform{}}},
	)
	require.NoError(t, err)
	return md
}

func longPartitionedFile(t *testing.T, md *Metadata, path string, value any) manifest.DataFile {
	t.Helper()
	spec := md.DefaultSpec()
	types, err := spec.Bind(md.CurrentSchema())
	require.NoError(t, err)

	pv, err := manifest.EncodePartition(spec, types, partition.Tuple{value})
	require.NoError(t, err)

	return manifest.DataFile{
		Path:        path,
		Format:      "parquet",
		Partition:   pv,
		RecordCount: 1,
		SizeBytes:   100,
	}
}

// A manifest holding only null partition values round-trips its summary
// bounds as zero-length bytes. A bounded predicate must skip its files
// without erroring.
func TestPlanAllNullPartition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	md := longPartitionedMetadata(t)

	md2 := commitUpdate(t, store, md, Update{Operation: OpAppend, Added: []manifest.DataFile{
		longPartitionedFile(t, md, "data/n.parquet", nil),
	}})

	files, err := Plan(ctx, store, md2, md2.CurrentSnapshotID, &Predicate{Field: "id_p", Lower: int64(5), Upper: int64(9)})
	require.NoError(t, err)
	assert.Empty(t, files)

	// Without a predicate the null-partitioned file is still visible.
	files, err = Plan(ctx, store, md2, md2.CurrentSnapshotID, nil)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestPlanMixedNullPartition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	md := longPartitionedMetadata(t)

	md2 := commitUpdate(t, store, md, Update{Operation: OpAppend, Added: []manifest.DataFile{
		longPartitionedFile(t, md, "data/n.parquet", nil),
		longPartitionedFile(t, md, "data/seven.parquet", int64(7)),
	}})

	files, err := Plan(ctx, store, md2, md2.CurrentSnapshotID, &Predicate{Field: "id_p", Lower: int64(5), Upper: int64(9)})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "data/seven.parquet", files[0].Path)

	files, err = Plan(ctx, store, md2, md2.CurrentSnapshotID, &Predicate{Field: "id_p", Lower: int64(100), Upper: int64(200)})
	require.NoError(t, err)
	assert.Empty(t, files)
}
