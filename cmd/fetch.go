package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/docstore"
)

func NewFetchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <id>",
		Short: "Download a document",
		Long:  `Download a document's content to a file, or to stdout when no file is given.`,
		Args:  cobra.ExactArgs(1),
		RunE:  makeFetchRunner(a),
	}

	cmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func makeFetchRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := a.client()
		if err != nil {
			return err
		}
		ref := docstore.Ref(args[0])

		if output == "" {
			_, err := client.StreamFetchTo(cmd.Context(), ref, cmd.OutOrStdout())
			return err
		}

		// Download beside the target and rename on success.
		tmp, err := os.CreateTemp(filepath.Dir(output), ".onbase-fetch-*")
		if err != nil {
			return fmt.Errorf("create %s: %w", output, err)
		}
		defer os.Remove(tmp.Name())

		bar := progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription(color.BlueString("Downloading %s", ref.ID)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)

		info, err := client.StreamFetchTo(cmd.Context(), ref, io.MultiWriter(tmp, bar))
		bar.Finish()
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if info.ContentLength != nil && *info.ContentLength != info.Written {
			return fmt.Errorf("document %s: expected %d bytes, received %d", ref.ID, *info.ContentLength, info.Written)
		}

		if err := os.Rename(tmp.Name(), output); err != nil {
			return fmt.Errorf("write %s: %w", output, err)
		}
		success(cmd, "Saved document %s to %s (%d bytes, %s)", ref.ID, output, info.Written, info.ContentType)
		return nil
	}
}
