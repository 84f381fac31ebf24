package manifest

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/hamba/avro/v2/ocf"

	"tundra/storage"
)

// WriteList serializes a snapshot's manifest list. The list is a new,
// immutable object; manifests unchanged since the parent snapshot appear in
// it by reference.
func WriteList(ctx context.Context, store storage.Storage, location, path string, files []File, snapshotID, sequenceNumber int64) error {
	buf := storage.NewBuffer()

	enc, err := ocf.NewEncoder(listSchema, buf, ocf.WithMetadata(map[string][]byte{
		"snapshot-id":     []byte(strconv.FormatInt(snapshotID, 10)),
		"sequence-number": []byte(strconv.FormatInt(sequenceNumber, 10)),
	}))
	if err != nil {
		return fmt.Errorf("creating manifest list encoder: %w", err)
	}

	for _, f := range files {
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("encoding manifest list entry %s: %w", f.Path, err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing manifest list encoder: %w", err)
	}

	if err := store.Write(ctx, location+"/"+path, buf.Reader()); err != nil {
		return fmt.Errorf("writing manifest list %s: %w", path, err)
	}
	return nil
}

// ReadList decodes a manifest list. Decode failures surface as ErrCorrupt.
func ReadList(ctx context.Context, store storage.Storage, location, path string) ([]File, error) {
	data, err := storage.ReadAll(ctx, store, location+"/"+path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest list %s: %w", path, err)
	}

	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening manifest list %s: %v: %w", path, err, ErrCorrupt)
	}

	var files []File
	for dec.HasNext() {
		var f File
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decoding manifest list %s: %v: %w", path, err, ErrCorrupt)
		}
		files = append(files, f)
	}

	return files, nil
}
