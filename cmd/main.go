package main

import (
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	rootCmd := NewRootCmd(version, &app{})
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCmd(version string, a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onbase",
		Short: "Manage archival documents held in OnBase",
		Long: `onbase uploads documents to the OnBase document store, keeps their
keywords in step with the archival records they belong to, and removes
documents that were unlinked from their record or never linked at all.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}

			opts := &slog.HandlerOptions{
				Level: level,
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), opts))
			slog.SetDefault(a.logger)
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to config file")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(
		NewUploadCmd(a),
		NewExistsCmd(a),
		NewFetchCmd(a),
		NewKeywordsCmd(a),
		NewDeleteCmd(a),
		NewLinkCmd(a),
		NewSweepCmd(a),
		NewServeCmd(a),
		NewValidateCmd(a),
	)

	return cmd
}

func printf(cmd *cobra.Command, attr color.Attribute, format string, args ...any) {
	color.New(attr).Fprintf(cmd.OutOrStdout(), format, args...)
}

func success(cmd *cobra.Command, format string, args ...any) {
	printf(cmd, color.FgGreen, "✓ "+format+"\n", args...)
}

func warn(cmd *cobra.Command, format string, args ...any) {
	color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "! "+format+"\n", args...)
}
