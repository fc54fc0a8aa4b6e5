package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dartmouth-dltg/aspace-onbase/internal/models"
)

// MemoryQueue is an in-process JobQueue. Jobs are handed out in the order
// they were added.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []*models.KeywordJob
	byID map[string]*models.KeywordJob
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{byID: make(map[string]*models.KeywordJob)}
}

// Add enqueues job as pending and returns its id. A job without an id is
// given one.
func (q *MemoryQueue) Add(job models.KeywordJob) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = models.JobPending
	job.Error = ""

	if existing, ok := q.byID[job.ID]; ok {
		*existing = job
		return job.ID
	}
	q.jobs = append(q.jobs, &job)
	q.byID[job.ID] = &job
	return job.ID
}

func (q *MemoryQueue) Pending(ctx context.Context, limit int) ([]models.KeywordJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []models.KeywordJob
	for _, job := range q.jobs {
		if limit > 0 && len(out) == limit {
			break
		}
		if job.Status == models.JobPending {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (q *MemoryQueue) Complete(ctx context.Context, id string) error {
	return q.set(id, models.JobDone, "")
}

func (q *MemoryQueue) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return q.set(id, models.JobFailed, msg)
}

func (q *MemoryQueue) set(id string, status models.JobStatus, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.byID[id]
	if !ok {
		return fmt.Errorf("no keyword job %q", id)
	}
	job.Status = status
	job.Error = msg
	return nil
}

// Jobs returns a snapshot of every job.
func (q *MemoryQueue) Jobs() []models.KeywordJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.KeywordJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, *job)
	}
	return out
}
