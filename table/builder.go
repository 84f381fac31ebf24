package table

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/google/uuid"

	"tundra/manifest"
	"tundra/storage"
)

// Update is a writer's proposed set of file-level deltas. Added files join
// the table; Deleted paths leave it (overwrite and delete operations);
// Rewritten paths are compacted away by a replace operation, with their
// replacements in Added.
type Update struct {
	Operation Operation
	Added     []manifest.DataFile
	Deleted   []string
	Rewritten []string
}

func (u *Update) validate() error {
	switch u.Operation {
	case OpAppend:
		if len(u.Deleted) > 0 || len(u.Rewritten) > 0 {
			return fmt.Errorf("append cannot delete or rewrite files")
		}
		if len(u.Added) == 0 {
			return fmt.Errorf("append has no files")
		}
	case OpOverwrite:
		if len(u.Rewritten) > 0 {
			return fmt.Errorf("overwrite cannot rewrite files")
		}
		if len(u.Added) == 0 && len(u.Deleted) == 0 {
			return fmt.Errorf("overwrite has no files")
		}
	case OpDelete:
		if len(u.Added) > 0 || len(u.Rewritten) > 0 {
			return fmt.Errorf("delete can only remove files")
		}
		if len(u.Deleted) == 0 {
			return fmt.Errorf("delete has no files")
		}
	case OpReplace:
		if len(u.Deleted) > 0 {
			return fmt.Errorf("replace expresses removals as rewrites")
		}
		if len(u.Rewritten) == 0 {
			return fmt.Errorf("replace has no files to rewrite")
		}
	default:
		return fmt.Errorf("unknown operation %q", u.Operation)
	}
	return nil
}

// Affected returns the paths the update removes from the table.
func (u *Update) Affected() map[string]bool {
	set := make(map[string]bool, len(u.Deleted)+len(u.Rewritten))
	for _, p := range u.Deleted {
		set[p] = true
	}
	for _, p := range u.Rewritten {
		set[p] = true
	}
	return set
}

// Builder turns an update against a base metadata document into a pending
// snapshot. All manifests and the manifest list are durably written before
// the snapshot is returned; publication is the commit protocol's job.
type Builder struct {
	Store              storage.Storage
	TargetManifestSize int64
}

// Summarize builds the new snapshot. Manifests untouched by the update are
// carried forward by reference; manifests that lose files are rewritten
// with per-entry deleted status.
func (b *Builder) Summarize(ctx context.Context, base *Metadata, up Update) (*Snapshot, error) {
	if err := up.validate(); err != nil {
		return nil, fmt.Errorf("building snapshot: %w", err)
	}

	seq := base.LastSequenceNumber + 1
	snapID := newSnapshotID(base)
	parentID := int64(-1)
	if cur := base.CurrentSnapshot(); cur != nil {
		parentID = cur.SnapshotID
	}

	var files []manifest.File

	// New files go into fresh manifests under the table's default spec.
	if len(up.Added) > 0 {
		w, err := manifest.NewWriter(b.Store, base.Location, base.CurrentSchema(), base.DefaultSpec(), snapID, b.TargetManifestSize)
		if err != nil {
			return nil, fmt.Errorf("building snapshot: %w", err)
		}
		for _, df := range up.Added {
			e := manifest.Entry{
				Status:         manifest.StatusAdded,
				SnapshotID:     snapID,
				SequenceNumber: seq,
				Data:           df,
			}
			if err := w.Append(ctx, e); err != nil {
				return nil, fmt.Errorf("building snapshot: %w", err)
			}
		}
		added, err := w.Close(ctx)
		if err != nil {
			return nil, fmt.Errorf("building snapshot: %w", err)
		}
		files = append(files, added...)
	}

	// Walk the base snapshot's manifests, rewriting only those that lose
	// files.
	removed := up.Affected()
	if cur := base.CurrentSnapshot(); cur != nil {
		baseFiles, err := manifest.ReadList(ctx, b.Store, base.Location, cur.ManifestList)
		if err != nil {
			return nil, fmt.Errorf("building snapshot: %w", err)
		}
		for _, mf := range baseFiles {
			carried, err := b.carryOrRewrite(ctx, base, mf, removed, snapID, seq)
			if err != nil {
				return nil, err
			}
			if carried != nil {
				files = append(files, *carried)
			}
		}
	}
	if len(removed) > 0 {
		for p := range removed {
			return nil, fmt.Errorf("building snapshot: file %q not in table", p)
		}
	}

	listPath := fmt.Sprintf("metadata/snap-%d-%s.avro", snapID, uuid.New())
	if err := manifest.WriteList(ctx, b.Store, base.Location, listPath, files, snapID, seq); err != nil {
		return nil, fmt.Errorf("building snapshot: %w", err)
	}

	return &Snapshot{
		SnapshotID:       snapID,
		ParentSnapshotID: parentID,
		SequenceNumber:   seq,
		TimestampMs:      nowMs(),
		Operation:        up.Operation,
		ManifestList:     listPath,
		Summary:          summarize(up, files),
	}, nil
}

// carryOrRewrite returns the manifest-list row for one base manifest: the
// original row when the update does not touch it, a rewritten manifest
// otherwise. Entries already deleted by older snapshots are dropped during
// a rewrite.
func (b *Builder) carryOrRewrite(ctx context.Context, base *Metadata, mf manifest.File, removed map[string]bool, snapID, seq int64) (*manifest.File, error) {
	if len(removed) == 0 {
		return &mf, nil
	}

	entries, spec, err := manifest.Read(ctx, b.Store, base.Location, mf.Path)
	if err != nil {
		return nil, fmt.Errorf("building snapshot: %w", err)
	}

	touched := false
	for _, e := range entries {
		if e.Status != manifest.StatusDeleted && removed[e.Data.Path] {
			touched = true
			break
		}
	}
	if !touched {
		return &mf, nil
	}

	w, err := manifest.NewWriter(b.Store, base.Location, base.CurrentSchema(), spec, snapID, b.TargetManifestSize)
	if err != nil {
		return nil, fmt.Errorf("rewriting manifest %s: %w", mf.Path, err)
	}
	for _, e := range entries {
		if e.Status == manifest.StatusDeleted {
			continue
		}
		if removed[e.Data.Path] {
			delete(removed, e.Data.Path)
			e.Status = manifest.StatusDeleted
			e.SnapshotID = snapID
			e.SequenceNumber = seq
		} else {
			e.Status = manifest.StatusExisting
		}
		if err := w.Append(ctx, e); err != nil {
			return nil, fmt.Errorf("rewriting manifest %s: %w", mf.Path, err)
		}
	}

	rewritten, err := w.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("rewriting manifest %s: %w", mf.Path, err)
	}
	if len(rewritten) != 1 {
		return nil, fmt.Errorf("rewriting manifest %s: produced %d manifests", mf.Path, len(rewritten))
	}
	return &rewritten[0], nil
}

func summarize(up Update, files []manifest.File) map[string]string {
	var addedRecords, deletedFiles, deletedRecords int64
	var totalFiles, totalRecords int64
	for _, df := range up.Added {
		addedRecords += df.RecordCount
	}
	for _, mf := range files {
		deletedFiles += int64(mf.DeletedFilesCount)
		deletedRecords += mf.DeletedRowsCount
		totalFiles += int64(mf.LiveFilesCount())
		totalRecords += mf.AddedRowsCount + mf.ExistingRowsCount
	}
	return map[string]string{
		"operation":          string(up.Operation),
		"added-data-files":   strconv.Itoa(len(up.Added)),
		"added-records":      strconv.FormatInt(addedRecords, 10),
		"deleted-data-files": strconv.FormatInt(deletedFiles, 10),
		"deleted-records":    strconv.FormatInt(deletedRecords, 10),
		"total-data-files":   strconv.FormatInt(totalFiles, 10),
		"total-records":      strconv.FormatInt(totalRecords, 10),
	}
}

func newSnapshotID(base *Metadata) int64 {
	for {
		id := rand.Int63()
		if id == 0 {
			continue
		}
		if _, err := base.SnapshotByID(id); err != nil {
			return id
		}
	}
}
