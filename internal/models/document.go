package models

import (
	"time"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/keywords"
)

// Document is a ledger row: one uploaded document and its link state.
type Document struct {
	ID           int64
	RepoID       int64
	OnbaseID     string
	DocumentType string
	Filename     string
	MimeType     string
	Digest       string
	Linked       bool
	WasLinked    bool
	CreatedAt    time.Time
}

// Unlinked reports whether the document was attached to a record once and
// has since been detached.
func (d Document) Unlinked() bool {
	return d.WasLinked && !d.Linked
}

// JobStatus is the state of a keyword job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// KeywordJob asks for a document's keywords to be regenerated.
type KeywordJob struct {
	ID       string
	OnbaseID string
	Keywords []keywords.Pair
	Status   JobStatus
	Error    string
}
