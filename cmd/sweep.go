package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/processor"
)

func NewSweepCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "sweep <unlinked|obsolete|sync>",
		Short:     "Run one sweep now",
		Long:      `Run a single deletion sweep over every repository, or a keyword sync of a job batch.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{processor.SweepUnlinked, processor.SweepObsolete, "sync"},
		RunE:      makeSweepRunner(a),
	}
	cmd.Flags().String("jobs", "", "YAML batch file of keyword jobs (sync only)")
	return cmd
}

func makeSweepRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		kind := args[0]
		if kind == "sync" {
			jobsPath, _ := cmd.Flags().GetString("jobs")
			if jobsPath == "" {
				return fmt.Errorf("sync needs --jobs")
			}
			return runJobBatch(cmd, a, jobsPath)
		}

		cfg, err := a.config()
		if err != nil {
			return err
		}
		client, err := a.client()
		if err != nil {
			return err
		}
		ledger, err := a.requireLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer ledger.Close()

		bar := getProgressBar(cmd.ErrOrStderr(), -1, fmt.Sprintf("Deleting %s documents", kind))
		p, err := processor.NewWithConfig(processor.ProcessorConfig{
			Store:         client,
			Ledger:        ledger,
			RateLimit:     cfg.Sweep.RateLimit,
			Burst:         cfg.Sweep.Burst,
			BatchSize:     cfg.Sweep.BatchSize,
			ObsoleteAfter: cfg.Schedule.ObsoleteAfter,
			Logger:        a.log(),
			OnProgress: func(string, processor.Summary) {
				bar.Add(1)
			},
		})
		if err != nil {
			return err
		}

		var run func(context.Context) (processor.Summary, error)
		switch kind {
		case processor.SweepUnlinked:
			run = p.DeleteUnlinked
		case processor.SweepObsolete:
			run = p.DeleteObsolete
		default:
			return fmt.Errorf("unknown sweep %q", kind)
		}

		summary, err := run(cmd.Context())
		bar.Finish()
		if err != nil {
			return err
		}
		return reportSummary(cmd, summary)
	}
}
