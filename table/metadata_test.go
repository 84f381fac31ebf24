package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tundra/partition"
	"tundra/schema"
)

func TestNewMetadata(t *testing.T) {
	md := testMetadata(t)

	assert.Equal(t, 2, md.FormatVersion)
	assert.NotEmpty(t, md.UUID)
	assert.Equal(t, 2, md.LastColumnID)
	assert.Equal(t, int64(-1), md.CurrentSnapshotID)
	assert.Nil(t, md.CurrentSnapshot())

	spec := md.DefaultSpec()
	require.NotNil(t, spec)
	require.Len(t, spec.Fields, 1)
	assert.Equal(t, 1000, spec.Fields[0].FieldID)
}

func TestNewMetadataRejectsBadSpec(t *testing.T) {
	_, err := NewMetadata("warehouse/t",
		[]schema.NestedField{{ID: 1, Name: "ok", Type: schema.BooleanType}},
		[]SpecField{{SourceID: 1, Name: "b", Transform: partition.BucketTransform{N: 4}}},
	)
	assert.ErrorIs(t, err, partition.ErrUnsupportedTransform)
}

func TestMetadataRoundTrip(t *testing.T) {
	md := testMetadata(t)

	data, err := md.Marshal()
	require.NoError(t, err)

	got, err := ParseMetadata(data)
	require.NoError(t, err)

	assert.Equal(t, md.UUID, got.UUID)
	assert.Equal(t, md.Location, got.Location)
	require.Len(t, got.Schemas, 1)
	assert.True(t, md.CurrentSchema().Equals(got.CurrentSchema()))

	spec := got.DefaultSpec()
	require.NotNil(t, spec)
	assert.Equal(t, "identity", spec.Fields[0].Transform.String())
}

func TestUpdateSchemaThreadsColumnCounter(t *testing.T) {
	md := testMetadata(t)

	md2, err := md.UpdateSchema(schema.AddField{Name: "score", Type: schema.DoubleType})
	require.NoError(t, err)
	assert.Equal(t, 3, md2.LastColumnID)
	assert.Equal(t, 1, md2.CurrentSchemaID)
	require.Len(t, md2.Schemas, 2)

	// The base document is untouched.
	assert.Equal(t, 2, md.LastColumnID)
	assert.Equal(t, 0, md.CurrentSchemaID)

	md3, err := md2.UpdateSchema(schema.DropField{FieldID: 3}, schema.AddField{Name: "score", Type: schema.DoubleType})
	require.NoError(t, err)
	f, err := md3.CurrentSchema().Resolve(4)
	require.NoError(t, err)
	assert.Equal(t, "score", f.Name)
}

func TestUpdateSchemaReusesEqualSchema(t *testing.T) {
	md := testMetadata(t)

	md2, err := md.UpdateSchema(schema.RenameField{FieldID: 2, NewName: "zone"})
	require.NoError(t, err)
	md3, err := md2.UpdateSchema(schema.RenameField{FieldID: 2, NewName: "region"})
	require.NoError(t, err)

	// Renaming back lands on the original schema instead of minting a third.
	assert.Len(t, md3.Schemas, 2)
	assert.Equal(t, 0, md3.CurrentSchemaID)
}

func TestAddPartitionSpecContinuesFieldIDs(t *testing.T) {
	md := testMetadata(t)

	md2, err := md.AddPartitionSpec([]SpecField{
		{SourceID: 1, Name: "id_bucket", Transform: partition.BucketTransform{N: 16}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, md2.DefaultSpecID)
	require.Len(t, md2.Specs, 2)
	assert.Equal(t, 1001, md2.DefaultSpec().Fields[0].FieldID)

	// The old spec is still resolvable for old manifests.
	old, err := md2.SpecByID(0)
	require.NoError(t, err)
	assert.Equal(t, 1000, old.Fields[0].FieldID)
}

func TestSnapshotByIDUnknown(t *testing.T) {
	md := testMetadata(t)
	_, err := md.SnapshotByID(12345)
	assert.ErrorIs(t, err, ErrUnknownSnapshot)
}
