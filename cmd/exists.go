package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/docstore"
)

func NewExistsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <id>",
		Short: "Check whether a document exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			exists, err := client.Exists(cmd.Context(), docstore.Ref(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), exists)
			return nil
		},
	}
}
