package datafile

import (
	"bytes"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tundra/partition"
	"tundra/schema"
)

type event struct {
	ID     int64  `parquet:"id"`
	Region string `parquet:"region"`
}

func TestDescribe(t *testing.T) {
	buf := new(bytes.Buffer)
	w := parquet.NewGenericWriter[event](buf)
	_, err := w.Write([]event{
		{ID: 5, Region: "eu"},
		{ID: 1, Region: "asia"},
		{ID: 3, Region: "asia"},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	sch := schema.New(0,
		schema.NestedField{ID: 1, Name: "id", Type: schema.LongType, Required: true},
		schema.NestedField{ID: 2, Name: "region", Type: schema.StringType},
	)

	df, err := Describe("data/a.parquet", bytes.NewReader(buf.Bytes()), int64(buf.Len()), sch)
	require.NoError(t, err)

	assert.Equal(t, "data/a.parquet", df.Path)
	assert.Equal(t, "parquet", df.Format)
	assert.Equal(t, int64(3), df.RecordCount)
	assert.Equal(t, int64(buf.Len()), df.SizeBytes)

	require.Len(t, df.ValueCounts, 2)
	assert.Equal(t, int32(1), df.ValueCounts[0].Key)
	assert.Equal(t, int64(3), df.ValueCounts[0].Value)
	assert.Equal(t, int32(2), df.ValueCounts[1].Key)

	require.Len(t, df.NullCounts, 2)
	assert.Equal(t, int64(0), df.NullCounts[0].Value)

	require.Len(t, df.ColumnSizes, 2)
	assert.Positive(t, df.ColumnSizes[0].Value)

	// Bounds decode under the matching column types.
	require.Len(t, df.LowerBounds, 2)
	lo, err := partition.DecodeValue(schema.LongType, df.LowerBounds[0].Value)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lo)
	hi, err := partition.DecodeValue(schema.LongType, df.UpperBounds[0].Value)
	require.NoError(t, err)
	assert.Equal(t, int64(5), hi)

	assert.Equal(t, []byte("asia"), df.LowerBounds[1].Value)
	assert.Equal(t, []byte("eu"), df.UpperBounds[1].Value)
}

func TestDescribeSkipsUnknownColumns(t *testing.T) {
	buf := new(bytes.Buffer)
	w := parquet.NewGenericWriter[event](buf)
	_, err := w.Write([]event{{ID: 1, Region: "eu"}})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// A schema that only knows the id column.
	sch := schema.New(0, schema.NestedField{ID: 1, Name: "id", Type: schema.LongType})

	df, err := Describe("data/a.parquet", bytes.NewReader(buf.Bytes()), int64(buf.Len()), sch)
	require.NoError(t, err)
	assert.Len(t, df.ValueCounts, 1)
	assert.Equal(t, int32(1), df.ValueCounts[0].Key)
}

func TestDescribeRejectsGarbage(t *testing.T) {
	junk := []byte("definitely not parquet")
	_, err := Describe("data/bad.parquet", bytes.NewReader(junk), int64(len(junk)), schema.New(0))
	assert.Error(t, err)
}
