package store

import "time"

// Cycle is one decision-analysis cycle. Exactly one active document
// belongs to each cycle.
type Cycle struct {
	ID        string
	Title     string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentIndex is the persisted index record for a document aggregate.
// Content bytes are opaque to the index; they live in the per-document
// content repository.
type DocumentIndex struct {
	ID          string
	CycleID     string
	Version     int64
	Checksum    string
	SyncSource  string
	Progress    map[string]string
	ParentID    string
	BranchPoint string
	Diverged    bool
	Archived    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HistoryEntry is one immutable version snapshot, appended on every
// accepted write and never mutated afterwards.
type HistoryEntry struct {
	DocumentID string
	Version    int64
	Checksum   string
	SyncSource string
	Actor      string
	CreatedAt  time.Time
}

// ComponentRecord is one persisted structured-model payload. Origin is the
// marker of the write that last produced it.
type ComponentRecord struct {
	CycleID   string
	Kind      string
	Payload   []byte
	Origin    string
	UpdatedAt time.Time
}

// CommitInfo describes one content-repository commit.
type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
