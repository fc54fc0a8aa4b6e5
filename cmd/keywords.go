package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/docstore"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/keywords"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/processor"
)

func NewKeywordsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keywords",
		Short: "Show or synchronize document keywords",
	}
	cmd.AddCommand(newKeywordsShowCmd(a), newKeywordsSyncCmd(a))
	return cmd
}

func newKeywordsShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a document's keywords",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			client, err := a.client()
			if err != nil {
				return err
			}
			set, err := client.FetchKeywords(cmd.Context(), docstore.Ref(args[0]))
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(set)
			}
			printKeywords(cmd, client.Codec(), set)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func printKeywords(cmd *cobra.Command, codec *keywords.Codec, set keywords.Set) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tNAME\tVALUE")
	for _, d := range codec.Decode(set) {
		name := string(d.Name)
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.TypeName, name, d.Value)
	}
	w.Flush()
}

func newKeywordsSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [id]",
		Short: "Regenerate a document's keywords",
		Long: `Write freshly generated keyword values to a document. Values the
document store already owns (hand-entered keywords, resolved dates and the
filename) are kept.

Either name one document with --type and --value, or pass a batch file of
jobs with --jobs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: makeKeywordsSyncRunner(a),
	}

	cmd.Flags().StringP("type", "t", "", "Document type of the document")
	cmd.Flags().StringArray("value", nil, "Generated value as name=value (repeatable)")
	cmd.Flags().String("jobs", "", "YAML batch file of keyword jobs")
	return cmd
}

func makeKeywordsSyncRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		jobsPath, _ := cmd.Flags().GetString("jobs")
		if jobsPath != "" {
			if len(args) > 0 {
				return fmt.Errorf("pass either a document id or --jobs, not both")
			}
			return runJobBatch(cmd, a, jobsPath)
		}
		if len(args) == 0 {
			return fmt.Errorf("a document id or --jobs is required")
		}

		docType, _ := cmd.Flags().GetString("type")
		if docType == "" {
			return fmt.Errorf("--type is required")
		}
		valueFlags, _ := cmd.Flags().GetStringArray("value")
		given, err := parseKeywordFlags(valueFlags)
		if err != nil {
			return err
		}

		registry, err := a.documentTypes()
		if err != nil {
			return err
		}
		t, err := a.keywordTranslator()
		if err != nil {
			return err
		}

		values := make(map[keywords.Name]string, len(given))
		for _, p := range given {
			if _, err := t.Translate(p.Name); err != nil {
				return err
			}
			values[p.Name] = p.Value
		}
		pairs, err := registry.Keywords(docType, values, t)
		if err != nil {
			return err
		}

		client, err := a.client()
		if err != nil {
			return err
		}
		written, err := client.UpdateKeywords(cmd.Context(), docstore.Ref(args[0]), pairs)
		if err != nil {
			return err
		}

		success(cmd, "Updated keywords of document %s", args[0])
		printKeywords(cmd, client.Codec(), written)
		return nil
	}
}

func runJobBatch(cmd *cobra.Command, a *app, path string) error {
	batch, err := processor.LoadBatch(path)
	if err != nil {
		return err
	}
	registry, err := a.documentTypes()
	if err != nil {
		return err
	}
	t, err := a.keywordTranslator()
	if err != nil {
		return err
	}
	jobs, err := batch.KeywordJobs(filepath.Base(path), registry, t)
	if err != nil {
		return err
	}

	queue := processor.NewMemoryQueue()
	for _, job := range jobs {
		queue.Add(job)
	}

	client, err := a.client()
	if err != nil {
		return err
	}
	cfg, err := a.config()
	if err != nil {
		return err
	}

	bar := getProgressBar(cmd.ErrOrStderr(), len(jobs), "Synchronizing keywords")
	p, err := processor.NewWithConfig(processor.ProcessorConfig{
		Store:     client,
		Queue:     queue,
		RateLimit: cfg.Sweep.RateLimit,
		Burst:     cfg.Sweep.Burst,
		BatchSize: cfg.Sweep.BatchSize,
		Logger:    a.log(),
		OnProgress: func(string, processor.Summary) {
			bar.Add(1)
		},
	})
	if err != nil {
		return err
	}

	summary, err := p.ProcessJobs(cmd.Context())
	bar.Finish()
	if err != nil {
		return err
	}

	for _, job := range queue.Jobs() {
		if job.Error != "" {
			color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "✗ %s (document %s): %s\n", job.ID, job.OnbaseID, job.Error)
		}
	}
	return reportSummary(cmd, summary)
}

func reportSummary(cmd *cobra.Command, s processor.Summary) error {
	if s.Failed > 0 {
		return fmt.Errorf("%s sweep: %d of %d failed", s.Sweep, s.Failed, s.Processed)
	}
	success(cmd, "%s sweep: %d processed in %s", s.Sweep, s.Processed, s.Duration.Round(time.Millisecond))
	return nil
}
