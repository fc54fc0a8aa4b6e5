package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dartmouth-dltg/aspace-onbase/internal/models"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/doctype"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/keywords"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/processor"
	"github.com/dartmouth-dltg/aspace-onbase/server"
)

// Suffixes given to spool files once read.
const (
	queuedSuffix   = ".queued"
	rejectedSuffix = ".rejected"
)

func NewServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled sweeps",
		Long: `Run the keyword sync and deletion sweeps on their configured schedules
until interrupted. Keyword job batches dropped into the spool directory are
queued for the next keyword sweep. Write batch files under a name starting
with a dot and rename them into place when complete.

With --listen, sweep status is served over HTTP: /health, /status with the
last summary of each sweep, and /ws streaming progress as JSON messages.`,
		Args: cobra.NoArgs,
		RunE: makeServeRunner(a),
	}

	cmd.Flags().String("spool", "", "Directory watched for keyword job batch files")
	cmd.Flags().Bool("watch-registry", false, "Reload the document type registry when its file changes")
	cmd.Flags().String("listen", "", "Address of the status server, e.g. :8080")
	return cmd
}

func makeServeRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		spoolDir, _ := cmd.Flags().GetString("spool")
		watchRegistry, _ := cmd.Flags().GetBool("watch-registry")
		listen, _ := cmd.Flags().GetString("listen")

		if err := validateSetup(cmd, a); err != nil {
			return fmt.Errorf("refusing to start: %w", err)
		}
		cfg, _ := a.config()
		t, _ := a.keywordTranslator()
		registry, _ := a.documentTypes()

		client, err := a.client()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ledger, err := a.requireLedger(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close()

		queue := processor.NewMemoryQueue()
		config := processor.ProcessorConfig{
			Store:         client,
			Ledger:        ledger,
			Queue:         queue,
			RateLimit:     cfg.Sweep.RateLimit,
			Burst:         cfg.Sweep.Burst,
			BatchSize:     cfg.Sweep.BatchSize,
			ObsoleteAfter: cfg.Schedule.ObsoleteAfter,
			Logger:        a.log(),
		}
		var status *server.StatusServer
		if listen != "" {
			status = server.NewWithConfig(server.Config{Addr: listen, Logger: a.log()})
			config.OnProgress = status.Progress
			config.OnFinish = status.Finished
		}
		p, err := processor.NewWithConfig(config)
		if err != nil {
			return err
		}

		scheduler, err := processor.NewScheduler(p, processor.SchedulerConfig{
			KeywordJobInterval: cfg.KeywordJobInterval(),
			DeleteUnlinkedCron: cfg.Schedule.DeleteUnlinkedCron,
			DeleteObsoleteCron: cfg.Schedule.DeleteObsoleteCron,
			Logger:             a.log(),
		})
		if err != nil {
			return err
		}

		registryPath := ""
		if watchRegistry {
			if cfg.Registry.Path == "" {
				return fmt.Errorf("--watch-registry needs registry.path to be set")
			}
			registryPath = cfg.Registry.Path
		}

		g, ctx := errgroup.WithContext(ctx)

		if spoolDir != "" || registryPath != "" {
			s := &spool{
				dir:          spoolDir,
				registryPath: registryPath,
				registry:     registry,
				translator:   t,
				queue:        queue,
				logger:       a.log(),
			}
			watcher, err := s.watch()
			if err != nil {
				return err
			}
			defer watcher.Close()
			g.Go(func() error {
				s.run(ctx, watcher)
				return nil
			})
		}
		if status != nil {
			g.Go(func() error { return status.ListenAndServe(ctx) })
		}
		g.Go(func() error { return scheduler.Run(ctx) })

		return g.Wait()
	}
}

// spool feeds keyword job batch files into the queue and reloads the
// document type registry when its file changes. All of its state is owned
// by the run goroutine.
type spool struct {
	dir          string
	registryPath string
	registry     *doctype.Registry
	translator   *keywords.Translator
	queue        *processor.MemoryQueue
	logger       *slog.Logger
}

func (s *spool) watch() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	dirs := map[string]struct{}{}
	if s.dir != "" {
		dirs[s.dir] = struct{}{}
	}
	if s.registryPath != "" {
		// Editors replace files, so watch the directory.
		dirs[filepath.Dir(s.registryPath)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	if s.dir != "" {
		if err := s.drain(); err != nil {
			watcher.Close()
			return nil, err
		}
	}
	return watcher, nil
}

func (s *spool) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handle(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("watch error", "error", err)
		}
	}
}

func (s *spool) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if s.registryPath != "" && filepath.Clean(event.Name) == filepath.Clean(s.registryPath) {
		s.reloadRegistry()
		return
	}
	if s.dir != "" && isBatchFile(event.Name) && filepath.Dir(event.Name) == filepath.Clean(s.dir) {
		s.enqueue(event.Name)
	}
}

func isBatchFile(name string) bool {
	ext := filepath.Ext(name)
	return (ext == ".yaml" || ext == ".yml") && !strings.HasPrefix(filepath.Base(name), ".")
}

// drain queues the batch files already in the spool directory.
func (s *spool) drain() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read spool: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isBatchFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		s.enqueue(filepath.Join(s.dir, name))
	}
	return nil
}

func (s *spool) enqueue(path string) {
	batch, err := processor.LoadBatch(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err == nil && len(batch.Jobs) == 0 {
		// Possibly still being written; wait for the next event.
		s.logger.Debug("skipping empty batch file", "file", path)
		return
	}

	var jobs []models.KeywordJob
	if err == nil {
		jobs, err = batch.KeywordJobs(filepath.Base(path), s.registry, s.translator)
	}

	suffix := queuedSuffix
	if err != nil {
		s.logger.Error("rejected keyword job batch", "file", path, "error", err)
		suffix = rejectedSuffix
	} else {
		for _, job := range jobs {
			s.queue.Add(job)
		}
		s.logger.Info("queued keyword jobs", "file", path, "jobs", len(jobs))
	}

	if err := os.Rename(path, path+suffix); err != nil {
		s.logger.Error("failed to move batch file", "file", path, "error", err)
	}
}

func (s *spool) reloadRegistry() {
	registry, err := doctype.Load(s.registryPath)
	if err == nil {
		err = registry.Validate(keywords.KnownNames, s.translator)
	}
	if err != nil {
		s.logger.Error("keeping previous document type registry", "file", s.registryPath, "error", err)
		return
	}
	s.registry = registry
	s.logger.Info("reloaded document type registry", "file", s.registryPath, "types", len(registry.Names()))
}
