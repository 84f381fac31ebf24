package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tundra/schema"
)

func TestLiteralRoundTrip(t *testing.T) {
	b, err := EncodeValue(schema.IntType, int32(-7))
	require.NoError(t, err)
	require.Len(t, b, 4)
	v, err := DecodeValue(schema.IntType, b)
	require.NoError(t, err)
	assert.Equal(t, int32(-7), v)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b, err = EncodeValue(schema.TimestampTzType, ts)
	require.NoError(t, err)
	v, err = DecodeValue(schema.TimestampTzType, b)
	require.NoError(t, err)
	assert.Equal(t, ts.UnixMicro(), v)

	b, err = EncodeValue(schema.StringType, "iceberg")
	require.NoError(t, err)
	v, err = DecodeValue(schema.StringType, b)
	require.NoError(t, err)
	assert.Equal(t, "iceberg", v)
}

func TestLiteralNil(t *testing.T) {
	b, err := EncodeValue(schema.LongType, nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	v, err := DecodeValue(schema.LongType, nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestLiteralTypeMismatch(t *testing.T) {
	_, err := EncodeValue(schema.StringType, 42)
	assert.Error(t, err)

	_, err = DecodeValue(schema.LongType, []byte{1, 2})
	assert.Error(t, err)
}

// Negative integers must order below positives despite their unsigned
// byte representation.
func TestCompareSigned(t *testing.T) {
	neg, err := EncodeValue(schema.LongType, int64(-5))
	require.NoError(t, err)
	pos, err := EncodeValue(schema.LongType, int64(3))
	require.NoError(t, err)

	c, err := Compare(schema.LongType, neg, pos)
	require.NoError(t, err)
	assert.Negative(t, c)

	c, err = Compare(schema.LongType, pos, neg)
	require.NoError(t, err)
	assert.Positive(t, c)

	c, err = Compare(schema.LongType, neg, neg)
	require.NoError(t, err)
	assert.Zero(t, c)
}

func TestCompareStrings(t *testing.T) {
	a, _ := EncodeValue(schema.StringType, "apple")
	b, _ := EncodeValue(schema.StringType, "banana")

	c, err := Compare(schema.StringType, a, b)
	require.NoError(t, err)
	assert.Negative(t, c)
}
