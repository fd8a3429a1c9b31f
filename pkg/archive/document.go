package archive

import "time"

// State is a Document's lifecycle state.
type State int

const (
	StateLive State = iota
	StateDeleted
)

// History entry actions. Combined actions are ';'-joined, e.g.
// "Renamed;Revision".
const (
	ActionCreated   = "Created"
	ActionDeleted   = "Deleted"
	ActionRecovered = "Recovered"
	ActionRenamed   = "Renamed"
	ActionRetitled  = "Retitled"
	ActionKeywords  = "Keywords"
	ActionRevision  = "Revision"
	ActionMoved     = "Moved"
	ActionLinked    = "Linked"
)

// Document is the header entity: the one row per archived document,
// mutated in place across its lifetime. FolderPath is transient — it is not
// a column on the documents table but is populated from the Assignment the
// caller is interested in (the one passed to Save, or the first live one
// found by a query).
type Document struct {
	ID          string
	Creator     string
	Created     time.Time
	FileName    string
	DisplayName string
	State       State
	Locker      string
	Keywords    string
	Size        int64

	// FolderPath is where this document lives (on Save, the target folder;
	// on Find/FindById, the assignment path the row was matched through).
	FolderPath string

	// Revision is the latest HistoryEntry.SeqID for this document. Populated
	// on read, ignored on write (Save computes it internally).
	Revision int64
}

// HistoryEntry is one append-only change record. SeqID is 1-based and dense
// per Owner: the first entry for a document is always SeqID 1, and each
// subsequent entry increments by exactly one.
type HistoryEntry struct {
	ID      string
	Owner   string // Document.ID
	SeqID   int64
	Created time.Time
	Action  string
	Actor   string
	Comment string
	Source  string
	Target  string
}

// Assignment records that, as of a given revision, a document lives at
// Path. Owner references the HistoryEntry that produced this assignment;
// DocumentID is a denormalized, indexed copy of the owning document's id so
// per-document assignment queries don't need a join through history_entries.
type Assignment struct {
	ID             string
	Owner          string // HistoryEntry.ID
	DocumentID     string
	SeqID          int64
	AssignmentType string
	AssignmentID   string
	Path           string
}

// Content holds one revision's bytes: either the verbatim newest bytes, or
// a BSDIFF40 patch that reconstructs an older revision from the next one up
// the sparse content chain: only the newest revision stores its bytes
// directly, every older revision is reconstructed by applying patches
// downward from the newest. Owner
// references the HistoryEntry that produced the revision; DocumentID is
// denormalized the same way as on Assignment.
type Content struct {
	ID         string
	Owner      string // HistoryEntry.ID
	DocumentID string
	SeqID      int64
	Checksum   string
	Data       []byte
}

// MetaTag is one registered key from a document's meta-tag associations
// assigned via AssignMetaData/ReplaceMetaData, kept in a global per-shard set so
// ListMetaTags can enumerate every key in use.
type MetaTag struct {
	ID   string
	Name string
}

// RevisionEntry is the header type [Store.FindByID] returns when a revision
// is requested: only its Revision field reflects that revision; the other
// header fields carry their latest values.
type RevisionEntry = Document
