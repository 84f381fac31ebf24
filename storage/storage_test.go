package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAllRetriesTransient(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	require.NoError(t, store.Write(ctx, "obj", bytes.NewReader([]byte("payload"))))

	attempts := 0
	store.ReadHook = func(filepath string) error {
		attempts++
		if attempts <= 2 {
			return fmt.Errorf("throttled: %w", ErrUnavailable)
		}
		return nil
	}

	data, err := ReadAll(ctx, store, "obj")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, 3, attempts)
}

func TestReadAllDoesNotRetryNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	attempts := 0
	store.ReadHook = func(filepath string) error {
		attempts++
		return nil
	}

	_, err := ReadAll(ctx, store, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, attempts)
}

func TestMemoryPutIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	require.NoError(t, store.PutIfAbsent(ctx, "obj", bytes.NewReader([]byte("first"))))
	err := store.PutIfAbsent(ctx, "obj", bytes.NewReader([]byte("second")))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	data, err := ReadAll(ctx, store, "obj")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}

func TestFSStorage(t *testing.T) {
	ctx := context.Background()
	store := NewFSStorage(t.TempDir())

	require.NoError(t, store.Write(ctx, "t/metadata/a.json", bytes.NewReader([]byte("one"))))
	require.NoError(t, store.PutIfAbsent(ctx, "t/metadata/b.json", bytes.NewReader([]byte("two"))))

	err := store.PutIfAbsent(ctx, "t/metadata/b.json", bytes.NewReader([]byte("again")))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	data, err := ReadAll(ctx, store, "t/metadata/b.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data)

	files, err := store.List(ctx, "t/metadata/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t/metadata/a.json", "t/metadata/b.json"}, files)

	require.NoError(t, store.Delete(ctx, "t/metadata/a.json"))
	require.NoError(t, store.Delete(ctx, "t/metadata/a.json"), "deleting a missing object is not an error")

	_, err = store.Read(ctx, "t/metadata/a.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBufferTracksSize(t *testing.T) {
	buf := NewBuffer()
	assert.Equal(t, int64(0), buf.Size())

	n, err := buf.Write([]byte("hello "))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, err = buf.Write([]byte("world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), buf.Size())

	data, err := io.ReadAll(buf.Reader())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)
}

func TestFSListMissingRoot(t *testing.T) {
	store := NewFSStorage(t.TempDir() + "/nonexistent")
	files, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, files)
}
