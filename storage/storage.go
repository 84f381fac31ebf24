package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAlreadyExists is returned by PutIfAbsent when the target object
	// exists. Commit pointers rely on this as their compare-and-swap signal.
	ErrAlreadyExists = errors.New("object already exists")

	// ErrUnavailable marks transient I/O failures. Only idempotent reads are
	// retried on it; writes go back through the commit protocol.
	ErrUnavailable = errors.New("storage unavailable")
)

// Storage is the narrow surface the metadata engine needs from a durable
// object store. Objects written through it are immutable; Write is used only
// for advisory objects (e.g. the version hint) that may be overwritten.
type Storage interface {
	Write(ctx context.Context, filepath string, data io.Reader) error
	Read(ctx context.Context, filepath string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)

	// PutIfAbsent atomically creates the object, failing with
	// ErrAlreadyExists when it is already present.
	PutIfAbsent(ctx context.Context, filepath string, data io.Reader) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, filepath string) error
}

// ReadAll fetches a whole object, retrying transient failures with bounded
// exponential backoff. Non-transient errors are returned immediately.
func ReadAll(ctx context.Context, s Storage, filepath string) ([]byte, error) {
	var data []byte

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
	), 4), ctx)

	err := backoff.Retry(func() error {
		rc, err := s.Read(ctx, filepath)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		defer rc.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, rc); err != nil {
			return fmt.Errorf("reading %s: %w", filepath, ErrUnavailable)
		}
		data = buf.Bytes()
		return nil
	}, bo)
	if err != nil {
		return nil, err
	}

	return data, nil
}
