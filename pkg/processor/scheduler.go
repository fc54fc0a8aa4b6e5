package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type SchedulerConfig struct {
	KeywordJobInterval time.Duration
	DeleteUnlinkedCron string
	DeleteObsoleteCron string
	Logger             *slog.Logger
}

// Scheduler runs the sweeps on their schedules. A sweep still running when
// its next turn comes up is skipped, so no sweep overlaps itself.
type Scheduler struct {
	cron      *cron.Cron
	processor *Processor
	logger    *slog.Logger
	ctx       context.Context
}

func NewScheduler(p *Processor, config SchedulerConfig) (*Scheduler, error) {
	if config.KeywordJobInterval <= 0 {
		return nil, fmt.Errorf("scheduler: keyword job interval must be positive")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		processor: p,
		logger:    logger,
		ctx:       context.Background(),
	}

	entries := []struct {
		spec string
		name string
		run  func(context.Context) (Summary, error)
	}{
		{fmt.Sprintf("@every %s", config.KeywordJobInterval), SweepKeywords, p.ProcessJobs},
		{config.DeleteUnlinkedCron, SweepUnlinked, p.DeleteUnlinked},
		{config.DeleteObsoleteCron, SweepObsolete, p.DeleteObsolete},
	}
	for _, e := range entries {
		if e.spec == "" {
			return nil, fmt.Errorf("scheduler: no schedule for %s sweep", e.name)
		}
		e := e
		if _, err := s.cron.AddFunc(e.spec, func() { s.run(e.name, e.run) }); err != nil {
			return nil, fmt.Errorf("scheduler: invalid schedule %q for %s sweep: %w", e.spec, e.name, err)
		}
	}

	return s, nil
}

func (s *Scheduler) run(name string, sweep func(context.Context) (Summary, error)) {
	if _, err := sweep(s.ctx); err != nil {
		s.logger.Error("sweep aborted", "sweep", name, "error", err)
	}
}

// Run starts the schedules and blocks until ctx is done, then waits for
// running sweeps to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))

	<-ctx.Done()

	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
