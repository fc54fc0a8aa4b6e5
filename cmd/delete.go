package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/docstore"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/store"
)

func NewDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document",
		Long: `Delete a document from the document store. A document that is already
gone counts as deleted. The ledger row, if any, is removed as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}

			ref := docstore.Ref(args[0])
			if !client.Delete(cmd.Context(), ref) {
				return fmt.Errorf("document %s was not deleted", ref.ID)
			}
			success(cmd, "Deleted document %s", ref.ID)

			ledger, err := a.ledger(cmd.Context())
			if err != nil || ledger == nil {
				return err
			}
			defer ledger.Close()

			doc, err := ledger.Get(cmd.Context(), ref.ID)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return ledger.Remove(cmd.Context(), doc.ID)
		},
	}
}
