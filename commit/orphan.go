package commit

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"tundra/manifest"
	"tundra/storage"
	"tundra/table"
)

// OrphanReport wraps a terminal commit failure with the candidate objects
// the failed attempts left behind. It is advisory: the files are harmless
// until CleanOrphans is explicitly invoked, and they are never removed
// automatically because a concurrent commit may still reference them.
type OrphanReport struct {
	Files []string
	Err   error
}

func (r *OrphanReport) Error() string {
	return fmt.Sprintf("%v (%d orphaned files)", r.Err, len(r.Files))
}

func (r *OrphanReport) Unwrap() error { return r.Err }

var metadataRe = regexp.MustCompile(`\.metadata\.json$`)

// CleanOrphans removes objects under the table location that no published
// metadata version references. It walks every metadata version (old
// versions stay readable for time travel), collects the reachable set of
// manifest lists, manifests and data files, and deletes the rest. The
// operation is idempotent and touches only already-committed state.
func CleanOrphans(ctx context.Context, store storage.Storage, location string) ([]string, error) {
	reachable := map[string]bool{
		location + "/metadata/version-hint.text": true,
	}

	paths, err := store.List(ctx, location+"/metadata/")
	if err != nil {
		return nil, fmt.Errorf("listing metadata versions: %w", err)
	}

	for _, path := range paths {
		// Both pointer layouts count: version-numbered files and the
		// uuid-named objects a SQL catalog points at.
		if !metadataRe.MatchString(path) {
			continue
		}
		reachable[path] = true

		data, err := storage.ReadAll(ctx, store, path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		md, err := table.ParseMetadata(data)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		for _, snap := range md.Snapshots {
			if err := markSnapshot(ctx, store, md, snap, reachable); err != nil {
				return nil, err
			}
		}
	}

	all, err := store.List(ctx, location+"/")
	if err != nil {
		return nil, fmt.Errorf("listing table objects: %w", err)
	}

	var removed []string
	for _, path := range all {
		if reachable[path] {
			continue
		}
		if err := store.Delete(ctx, path); err != nil {
			return removed, fmt.Errorf("deleting orphan %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

func markSnapshot(ctx context.Context, store storage.Storage, md *table.Metadata, snap *table.Snapshot, reachable map[string]bool) error {
	listPath := md.Location + "/" + snap.ManifestList
	if reachable[listPath] {
		return nil
	}
	reachable[listPath] = true

	mfs, err := manifest.ReadList(ctx, store, md.Location, snap.ManifestList)
	if err != nil {
		return fmt.Errorf("walking snapshot %d: %w", snap.SnapshotID, err)
	}
	for _, mf := range mfs {
		mfPath := md.Location + "/" + mf.Path
		if reachable[mfPath] {
			continue
		}
		reachable[mfPath] = true

		entries, _, err := manifest.Read(ctx, store, md.Location, mf.Path)
		if err != nil {
			return fmt.Errorf("walking manifest %s: %w", mf.Path, err)
		}
		for _, e := range entries {
			// Data-file paths may be absolute store keys or relative to
			// the table location.
			reachable[e.Data.Path] = true
			if !strings.HasPrefix(e.Data.Path, md.Location+"/") {
				reachable[md.Location+"/"+e.Data.Path] = true
			}
		}
	}
	return nil
}
