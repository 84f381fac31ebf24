package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/hamba/avro/v2/ocf"

	"tundra/partition"
	"tundra/storage"
)

// Read decodes a manifest object into its entries plus the partition spec
// it was written under (embedded in the container metadata). Decode
// failures surface as ErrCorrupt; the entries slice is only returned when
// the whole file decoded cleanly.
func Read(ctx context.Context, store storage.Storage, location, path string) ([]Entry, *partition.Spec, error) {
	data, err := storage.ReadAll(ctx, store, location+"/"+path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("opening manifest %s: %v: %w", path, err, ErrCorrupt)
	}

	specJSON, ok := dec.Metadata()[MetaSpec]
	if !ok {
		return nil, nil, fmt.Errorf("manifest %s: missing %s metadata: %w", path, MetaSpec, ErrCorrupt)
	}
	spec := new(partition.Spec)
	if err := json.Unmarshal(specJSON, spec); err != nil {
		return nil, nil, fmt.Errorf("manifest %s: decoding spec: %v: %w", path, err, ErrCorrupt)
	}

	var entries []Entry
	for dec.HasNext() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, nil, fmt.Errorf("decoding manifest %s: %v: %w", path, err, ErrCorrupt)
		}
		entries = append(entries, e)
	}

	return entries, spec, nil
}
