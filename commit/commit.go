package commit

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"tundra/manifest"
	"tundra/storage"
	"tundra/table"
)

var (
	// ErrConflict means the operation cannot be rebased onto what landed
	// concurrently. The table's committed state is untouched; the caller
	// may re-derive fresh deltas and try the whole operation again.
	ErrConflict = errors.New("commit conflict")

	// ErrRetriesExhausted means every rebase attempt lost the swap race.
	ErrRetriesExhausted = errors.New("commit retries exhausted")
)

// Committer runs the optimistic-concurrency commit protocol. It holds no
// locks; the pointer swap is the only serialization point, and all state
// is threaded through explicit base/candidate metadata values.
type Committer struct {
	Store              storage.Storage
	Pointer            Pointer
	MaxRetries         int
	TargetManifestSize int64
	Logger             zerolog.Logger
}

// Commit builds a candidate snapshot from the current base and the
// caller's deltas, then publishes it via compare-and-swap. On a lost race
// it re-reads the base, checks the operation-specific conflict rules,
// rebases and retries up to MaxRetries times.
//
// Manifests and the manifest list are durably written before any swap
// attempt, so a crash mid-commit leaves the table unchanged with only
// orphaned (harmless) objects behind. Failed commits report those
// candidates through OrphanReport; cleanup is a separate, explicit step.
func (c *Committer) Commit(ctx context.Context, up table.Update) (*table.Metadata, error) {
	builder := &table.Builder{Store: c.Store, TargetManifestSize: c.TargetManifestSize}

	base, token, err := c.Pointer.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading table: %w", err)
	}

	var orphans []string
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		snap, err := builder.Summarize(ctx, base, up)
		if err != nil {
			return nil, c.report(err, orphans)
		}
		candidate, err := table.Apply(base, snap)
		if err != nil {
			return nil, c.report(err, orphans)
		}

		next, err := c.Pointer.Swap(ctx, token, candidate)
		if err == nil {
			c.Logger.Debug().
				Int64("snapshot_id", snap.SnapshotID).
				Int64("sequence_number", snap.SequenceNumber).
				Str("operation", string(up.Operation)).
				Int("metadata_version", next.Version).
				Msg("committed snapshot")
			if len(orphans) > 0 {
				c.Logger.Warn().Strs("files", orphans).Msg("commit retries left orphaned candidate files")
			}
			return candidate, nil
		}

		// A failed swap may have written a metadata object of its own
		// before losing the race; the pointer reports it via the token.
		if next.Path != "" {
			orphans = append(orphans, base.Location+"/"+next.Path)
		}
		orphans = append(orphans, c.candidateObjects(ctx, base, snap)...)

		if !errors.Is(err, ErrStale) {
			return nil, c.report(fmt.Errorf("publishing snapshot: %w", err), orphans)
		}

		newBase, newToken, err := c.Pointer.Load(ctx)
		if err != nil {
			return nil, c.report(fmt.Errorf("reloading table after conflict: %w", err), orphans)
		}
		if err := c.checkRebase(ctx, base, newBase, up); err != nil {
			return nil, c.report(err, orphans)
		}

		c.Logger.Debug().
			Int("attempt", attempt+1).
			Int64("base_sequence", base.LastSequenceNumber).
			Int64("new_sequence", newBase.LastSequenceNumber).
			Msg("rebasing commit onto moved pointer")
		base, token = newBase, newToken
	}

	return nil, c.report(ErrRetriesExhausted, orphans)
}

// checkRebase decides whether the update can be recomputed against newBase.
// Pure appends never conflict with anything. Deletes and overwrites
// conflict with any concurrent change that is not provably disjoint in
// affected files. Replaces (compaction) tolerate only pure appends that
// leave every rewritten file untouched; anything ambiguous is a conflict.
func (c *Committer) checkRebase(ctx context.Context, base, newBase *table.Metadata, up table.Update) error {
	if up.Operation == table.OpAppend {
		return nil
	}

	affected := up.Affected()
	for _, snap := range newBase.SnapshotsAfter(base.LastSequenceNumber) {
		if up.Operation == table.OpReplace && snap.Operation != table.OpAppend {
			return fmt.Errorf("rewrite raced %s snapshot %d: %w", snap.Operation, snap.SnapshotID, ErrConflict)
		}
		changed, err := table.ChangedFiles(ctx, c.Store, newBase, snap)
		if err != nil {
			return fmt.Errorf("checking snapshot %d: %w", snap.SnapshotID, err)
		}
		for path := range changed {
			if affected[path] {
				return fmt.Errorf("file %s touched by concurrent snapshot %d: %w", path, snap.SnapshotID, ErrConflict)
			}
		}
	}
	return nil
}

// candidateObjects lists the objects an unpublished snapshot wrote: its
// manifest list and the manifests it created (carried-forward manifests
// belong to the base and are excluded).
func (c *Committer) candidateObjects(ctx context.Context, base *table.Metadata, snap *table.Snapshot) []string {
	objects := []string{base.Location + "/" + snap.ManifestList}
	mfs, err := manifest.ReadList(ctx, c.Store, base.Location, snap.ManifestList)
	if err != nil {
		return objects
	}
	for _, mf := range mfs {
		if mf.AddedSnapshotID == snap.SnapshotID {
			objects = append(objects, base.Location+"/"+mf.Path)
		}
	}
	return objects
}

func (c *Committer) report(err error, orphans []string) error {
	if len(orphans) == 0 {
		return err
	}
	c.Logger.Warn().Strs("files", orphans).Err(err).Msg("commit failed leaving orphaned files")
	return &OrphanReport{Files: orphans, Err: err}
}
