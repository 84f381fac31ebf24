package table

import (
	"context"
	"fmt"

	"tundra/manifest"
	"tundra/partition"
	"tundra/schema"
	"tundra/storage"
)

// Predicate is an inclusive range over one partition field, used to prune
// manifests (by their partition summaries) and then individual files. Nil
// bounds are unbounded; a bounded range never matches null values.
type Predicate struct {
	Field string
	Lower any
	Upper any
}

// Plan returns the data files visible at the given snapshot, in manifest
// order. Historical snapshot IDs give time-travel reads: files added by
// later snapshots are absent, files deleted later are still present.
// Manifests whose partition range cannot overlap the predicate are skipped
// without being opened, bounding planning cost to the relevant manifests.
func Plan(ctx context.Context, store storage.Storage, md *Metadata, snapshotID int64, pred *Predicate) ([]manifest.DataFile, error) {
	snap, err := md.SnapshotByID(snapshotID)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}

	mfs, err := manifest.ReadList(ctx, store, md.Location, snap.ManifestList)
	if err != nil {
		return nil, fmt.Errorf("planning snapshot %d: %w", snapshotID, err)
	}

	var out []manifest.DataFile
	for _, mf := range mfs {
		if mf.LiveFilesCount() == 0 {
			continue
		}

		keep, resultType, fieldIdx, err := pruneManifest(md, mf, pred)
		if err != nil {
			return nil, fmt.Errorf("planning snapshot %d: %w", snapshotID, err)
		}
		if !keep {
			continue
		}

		entries, _, err := manifest.Read(ctx, store, md.Location, mf.Path)
		if err != nil {
			return nil, fmt.Errorf("planning snapshot %d: %w", snapshotID, err)
		}
		for _, e := range entries {
			if e.Status == manifest.StatusDeleted {
				continue
			}
			if e.SequenceNumber > snap.SequenceNumber {
				continue
			}
			if pred != nil && fieldIdx >= 0 {
				match, err := matchFile(e.Data, fieldIdx, resultType, pred)
				if err != nil {
					return nil, fmt.Errorf("planning snapshot %d: %w", snapshotID, err)
				}
				if !match {
					continue
				}
			}
			out = append(out, e.Data)
		}
	}
	return out, nil
}

// pruneManifest decides from the manifest-list summary alone whether the
// manifest can hold matching files. It also resolves the predicate's field
// position and result type under the manifest's own spec, since specs vary
// across the table's history.
func pruneManifest(md *Metadata, mf manifest.File, pred *Predicate) (bool, schema.Type, int, error) {
	if pred == nil {
		return true, nil, -1, nil
	}

	spec, err := md.SpecByID(int(mf.SpecID))
	if err != nil {
		return false, nil, -1, err
	}
	idx := spec.FieldByName(pred.Field)
	if idx < 0 {
		// The manifest was written under a spec without this field; its
		// summary says nothing, so it cannot be pruned.
		return true, nil, -1, nil
	}

	types, err := spec.Bind(md.CurrentSchema())
	if err != nil {
		// The spec no longer binds against the current schema; keep the
		// manifest rather than guess.
		return true, nil, -1, nil
	}
	rt := types[idx]

	if idx >= len(mf.Partitions) {
		return true, rt, idx, nil
	}
	s := mf.Partitions[idx]

	// Avro decodes absent bounds as zero-length bytes, so an all-null
	// manifest and an empty-string value are indistinguishable here. Keep
	// the manifest and let per-entry filtering decide.
	if len(s.LowerBound) == 0 || len(s.UpperBound) == 0 {
		return true, rt, idx, nil
	}

	if pred.Lower != nil {
		lo, err := partition.EncodeValue(rt, pred.Lower)
		if err != nil {
			return false, nil, -1, err
		}
		if c, err := partition.Compare(rt, s.UpperBound, lo); err != nil {
			return false, nil, -1, err
		} else if c < 0 {
			return false, rt, idx, nil
		}
	}
	if pred.Upper != nil {
		hi, err := partition.EncodeValue(rt, pred.Upper)
		if err != nil {
			return false, nil, -1, err
		}
		if c, err := partition.Compare(rt, s.LowerBound, hi); err != nil {
			return false, nil, -1, err
		} else if c > 0 {
			return false, rt, idx, nil
		}
	}
	return true, rt, idx, nil
}

func matchFile(df manifest.DataFile, idx int, rt schema.Type, pred *Predicate) (bool, error) {
	if idx >= len(df.Partition) {
		return true, nil
	}
	pv := df.Partition[idx]
	if pv.Null {
		return false, nil
	}

	if pred.Lower != nil {
		lo, err := partition.EncodeValue(rt, pred.Lower)
		if err != nil {
			return false, err
		}
		if c, err := partition.Compare(rt, pv.Value, lo); err != nil {
			return false, err
		} else if c < 0 {
			return false, nil
		}
	}
	if pred.Upper != nil {
		hi, err := partition.EncodeValue(rt, pred.Upper)
		if err != nil {
			return false, err
		}
		if c, err := partition.Compare(rt, pv.Value, hi); err != nil {
			return false, err
		} else if c > 0 {
			return false, nil
		}
	}
	return true, nil
}

// ChangedFiles returns the data-file paths a snapshot added or removed,
// with the manifest status that recorded the change. The commit protocol
// uses it to prove two operations disjoint.
func ChangedFiles(ctx context.Context, store storage.Storage, md *Metadata, snap *Snapshot) (map[string]int32, error) {
	mfs, err := manifest.ReadList(ctx, store, md.Location, snap.ManifestList)
	if err != nil {
		return nil, fmt.Errorf("reading changes of snapshot %d: %w", snap.SnapshotID, err)
	}

	changed := make(map[string]int32)
	for _, mf := range mfs {
		if mf.AddedSnapshotID != snap.SnapshotID {
			continue
		}
		entries, _, err := manifest.Read(ctx, store, md.Location, mf.Path)
		if err != nil {
			return nil, fmt.Errorf("reading changes of snapshot %d: %w", snap.SnapshotID, err)
		}
		for _, e := range entries {
			if e.SnapshotID == snap.SnapshotID && e.Status != manifest.StatusExisting {
				changed[e.Data.Path] = e.Status
			}
		}
	}
	return changed, nil
}
