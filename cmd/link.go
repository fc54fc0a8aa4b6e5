package main

import (
	"github.com/spf13/cobra"
)

func NewLinkCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <id>",
		Short: "Record a document as attached to, or detached from, its record",
		Long: `Update the ledger's link state for a document. A document detached
after having been linked is removed by the unlinked sweep.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unlink, _ := cmd.Flags().GetBool("unlink")

			ledger, err := a.requireLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer ledger.Close()

			if err := ledger.SetLinked(cmd.Context(), args[0], !unlink); err != nil {
				return err
			}
			if unlink {
				success(cmd, "Document %s detached", args[0])
			} else {
				success(cmd, "Document %s linked", args[0])
			}
			return nil
		},
	}
	cmd.Flags().Bool("unlink", false, "Mark the document as detached")
	return cmd
}
