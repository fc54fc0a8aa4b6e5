package types

import (
	"context"
	"time"

	"github.com/dartmouth-dltg/aspace-onbase/internal/models"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/docstore"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/keywords"
)

// Core interfaces

// DocumentStore is the part of the document store client the sweeps use.
type DocumentStore interface {
	UpdateKeywords(ctx context.Context, ref docstore.DocumentReference, pairs []keywords.Pair) (keywords.Set, error)
	Delete(ctx context.Context, ref docstore.DocumentReference) bool
}

// Ledger records which documents this system uploaded.
type Ledger interface {
	Record(ctx context.Context, doc *models.Document) error
	Repositories(ctx context.Context) ([]int64, error)
	// Unlinked and Obsolete page in id order; afterID is the last id seen.
	Unlinked(ctx context.Context, repoID, afterID int64, limit int) ([]models.Document, error)
	Obsolete(ctx context.Context, repoID int64, olderThan time.Time, afterID int64, limit int) ([]models.Document, error)
	SetLinked(ctx context.Context, onbaseID string, linked bool) error
	Remove(ctx context.Context, id int64) error
	Close()
}

// JobQueue holds pending keyword jobs.
type JobQueue interface {
	Pending(ctx context.Context, limit int) ([]models.KeywordJob, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, cause error) error
}
