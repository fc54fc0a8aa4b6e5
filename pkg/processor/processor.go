package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dartmouth-dltg/aspace-onbase/internal/models"
	"github.com/dartmouth-dltg/aspace-onbase/internal/types"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/docstore"
)

// Sweep kinds.
const (
	SweepKeywords = "keywords"
	SweepUnlinked = "unlinked"
	SweepObsolete = "obsolete"
)

const (
	defaultBatchSize     = 100
	defaultRateLimit     = 5
	defaultObsoleteAfter = 24 * time.Hour
)

type ProcessorConfig struct {
	Store  types.DocumentStore
	Ledger types.Ledger
	Queue  types.JobQueue

	RateLimit     float64 // store calls per second
	Burst         int
	BatchSize     int
	ObsoleteAfter time.Duration

	// Now is the clock used to compute the obsolete cut-off.
	Now        func() time.Time
	Logger     *slog.Logger
	OnProgress func(sweep string, s Summary)
	OnFinish   func(s Summary)
}

// Processor runs the keyword sync and document deletion sweeps. Each sweep
// keeps going past individual failures; a failed item is picked up again by
// the next sweep.
type Processor struct {
	config  ProcessorConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Summary counts the outcome of one sweep.
type Summary struct {
	RunID     string        `json:"run_id"`
	Sweep     string        `json:"sweep"`
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("processor: Store is required")
	}
	if config.RateLimit == 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Burst == 0 {
		config.Burst = 1
	}
	if config.BatchSize == 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.ObsoleteAfter == 0 {
		config.ObsoleteAfter = defaultObsoleteAfter
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
		logger:  logger,
	}, nil
}

func (p *Processor) start(sweep string) (Summary, *slog.Logger, time.Time) {
	s := Summary{RunID: uuid.NewString(), Sweep: sweep}
	logger := p.logger.With("sweep", sweep, "run_id", s.RunID)
	logger.Debug("sweep started")
	return s, logger, time.Now()
}

func (p *Processor) finish(s *Summary, logger *slog.Logger, started time.Time) {
	s.Duration = time.Since(started)
	logger.Info("sweep finished",
		"processed", s.Processed,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"duration", s.Duration,
	)
	if p.config.OnFinish != nil {
		p.config.OnFinish(*s)
	}
}

func (p *Processor) progress(s Summary) {
	if p.config.OnProgress != nil {
		p.config.OnProgress(s.Sweep, s)
	}
}

// ProcessJobs runs every pending keyword job. A job whose update succeeds is
// completed; one that fails is marked failed and the sweep moves on.
func (p *Processor) ProcessJobs(ctx context.Context) (s Summary, err error) {
	if p.config.Queue == nil {
		return Summary{}, fmt.Errorf("processor: Queue is required for keyword sweeps")
	}

	s, logger, started := p.start(SweepKeywords)
	defer p.finish(&s, logger, started)

	seen := make(map[string]struct{})
	for {
		jobs, err := p.config.Queue.Pending(ctx, p.config.BatchSize)
		if err != nil {
			return s, fmt.Errorf("processor: failed to load pending jobs: %w", err)
		}

		fresh := 0
		for _, job := range jobs {
			if _, ok := seen[job.ID]; ok {
				continue
			}
			seen[job.ID] = struct{}{}
			fresh++

			if err := p.limiter.Wait(ctx); err != nil {
				return s, err
			}
			p.runJob(ctx, logger, job, &s)
			p.progress(s)
		}

		if fresh == 0 || len(jobs) < p.config.BatchSize {
			return s, nil
		}
	}
}

func (p *Processor) runJob(ctx context.Context, logger *slog.Logger, job models.KeywordJob, s *Summary) {
	s.Processed++

	_, err := p.config.Store.UpdateKeywords(ctx, docstore.Ref(job.OnbaseID), job.Keywords)
	if err != nil {
		s.Failed++
		logger.Error("keyword job failed", "job_id", job.ID, "onbase_id", job.OnbaseID, "error", err)
		if ferr := p.config.Queue.Fail(ctx, job.ID, err); ferr != nil {
			logger.Error("failed to mark keyword job failed", "job_id", job.ID, "error", ferr)
		}
		return
	}

	if err := p.config.Queue.Complete(ctx, job.ID); err != nil {
		s.Failed++
		logger.Error("failed to complete keyword job", "job_id", job.ID, "error", err)
		return
	}
	s.Succeeded++
}

// DeleteUnlinked deletes, in every repository, the documents that were
// attached to a record and have since been detached.
func (p *Processor) DeleteUnlinked(ctx context.Context) (Summary, error) {
	return p.deleteSweep(ctx, SweepUnlinked, func(ctx context.Context, repoID, afterID int64) ([]models.Document, error) {
		return p.config.Ledger.Unlinked(ctx, repoID, afterID, p.config.BatchSize)
	})
}

// DeleteObsolete deletes, in every repository, the documents that were never
// attached to a record within ObsoleteAfter of their upload.
func (p *Processor) DeleteObsolete(ctx context.Context) (Summary, error) {
	cutoff := p.config.Now().Add(-p.config.ObsoleteAfter)
	return p.deleteSweep(ctx, SweepObsolete, func(ctx context.Context, repoID, afterID int64) ([]models.Document, error) {
		return p.config.Ledger.Obsolete(ctx, repoID, cutoff, afterID, p.config.BatchSize)
	})
}

// fetchFunc returns the next page of candidates with ids above afterID.
type fetchFunc func(ctx context.Context, repoID, afterID int64) ([]models.Document, error)

func (p *Processor) deleteSweep(ctx context.Context, sweep string, fetch fetchFunc) (s Summary, err error) {
	if p.config.Ledger == nil {
		return Summary{}, fmt.Errorf("processor: Ledger is required for %s sweeps", sweep)
	}

	s, logger, started := p.start(sweep)
	defer p.finish(&s, logger, started)

	repos, err := p.config.Ledger.Repositories(ctx)
	if err != nil {
		return s, fmt.Errorf("processor: failed to list repositories: %w", err)
	}

	for _, repoID := range repos {
		if err := p.deleteRepository(ctx, logger.With("repo_id", repoID), repoID, fetch, &s); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (p *Processor) deleteRepository(ctx context.Context, logger *slog.Logger, repoID int64, fetch fetchFunc, s *Summary) error {
	// Failed deletes stay in the ledger, so page past them by id.
	var after int64
	for {
		docs, err := fetch(ctx, repoID, after)
		if err != nil {
			return fmt.Errorf("processor: failed to load documents for repository %d: %w", repoID, err)
		}

		for _, doc := range docs {
			after = doc.ID

			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}

			s.Processed++
			if !p.config.Store.Delete(ctx, docstore.Ref(doc.OnbaseID)) {
				s.Failed++
				p.progress(*s)
				continue
			}
			if err := p.config.Ledger.Remove(ctx, doc.ID); err != nil {
				s.Failed++
				logger.Error("deleted document but failed to remove ledger row",
					"onbase_id", doc.OnbaseID,
					"error", err,
				)
				p.progress(*s)
				continue
			}
			s.Succeeded++
			logger.Debug("removed document", "onbase_id", doc.OnbaseID, "filename", doc.Filename)
			p.progress(*s)
		}

		if len(docs) < p.config.BatchSize {
			return nil
		}
	}
}
