package table

import (
	"fmt"
)

// Operation classifies what a snapshot did; the commit protocol's conflict
// rules key off it.
type Operation string

const (
	OpAppend    Operation = "append"
	OpOverwrite Operation = "overwrite"
	OpDelete    Operation = "delete"
	OpReplace   Operation = "replace"
)

// Snapshot is one immutable entry of the table's commit history. Parent
// pointers are plain IDs, not references; the log is an append-only array
// ordered by sequence number.
type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID int64             `json:"parent-snapshot-id"`
	SequenceNumber   int64             `json:"sequence-number"`
	TimestampMs      int64             `json:"timestamp-ms"`
	Operation        Operation         `json:"operation"`
	ManifestList     string            `json:"manifest-list"`
	Summary          map[string]string `json:"summary"`
}

// Apply publishes a pending snapshot onto a base document, producing the
// candidate new metadata. It fails when the snapshot was not built against
// the base's current snapshot; the commit protocol treats that as a
// conflict to resolve by rebasing.
func Apply(base *Metadata, snap *Snapshot) (*Metadata, error) {
	currentID := int64(-1)
	if cur := base.CurrentSnapshot(); cur != nil {
		currentID = cur.SnapshotID
	}
	if snap.ParentSnapshotID != currentID {
		return nil, fmt.Errorf("applying snapshot %d: parent %d is not current snapshot %d",
			snap.SnapshotID, snap.ParentSnapshotID, currentID)
	}
	if snap.SequenceNumber != base.LastSequenceNumber+1 {
		return nil, fmt.Errorf("applying snapshot %d: sequence number %d, want %d",
			snap.SnapshotID, snap.SequenceNumber, base.LastSequenceNumber+1)
	}

	next := base.clone()
	next.Snapshots = append(next.Snapshots, snap)
	next.CurrentSnapshotID = snap.SnapshotID
	next.LastSequenceNumber = snap.SequenceNumber
	next.LastUpdatedMs = snap.TimestampMs
	next.SnapshotLog = append(next.SnapshotLog, LogEntry{
		SnapshotID:  snap.SnapshotID,
		TimestampMs: snap.TimestampMs,
	})
	return next, nil
}
