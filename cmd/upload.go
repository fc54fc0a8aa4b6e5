package main

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dartmouth-dltg/aspace-onbase/internal/models"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/doctype"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/store"
)

func NewUploadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document",
		Long: `Upload a file as a new document of the given type. The file name is
recorded as the filename keyword. When a database is configured the upload
is recorded in the document ledger.`,
		Args: cobra.ExactArgs(1),
		RunE: makeUploadRunner(a),
	}

	cmd.Flags().StringP("type", "t", "", "Document type name")
	cmd.Flags().StringArrayP("keyword", "k", nil, "Keyword as name=value (repeatable)")
	cmd.Flags().String("mime-type", "", "Content type (detected when empty)")
	cmd.Flags().Int64("repo", 0, "Repository id recorded in the ledger")
	cmd.Flags().Bool("linked", false, "Record the document as attached to a record")
	cmd.MarkFlagRequired("type")
	return cmd
}

func makeUploadRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		path := args[0]
		docType, _ := cmd.Flags().GetString("type")
		keywordFlags, _ := cmd.Flags().GetStringArray("keyword")
		mimeType, _ := cmd.Flags().GetString("mime-type")
		repoID, _ := cmd.Flags().GetInt64("repo")
		linked, _ := cmd.Flags().GetBool("linked")

		pairs, err := parseKeywordFlags(keywordFlags)
		if err != nil {
			return err
		}

		registry, err := a.documentTypes()
		if err != nil {
			return err
		}
		if _, err := registry.Fields(docType); err != nil {
			if !errors.Is(err, doctype.ErrUnknownDocumentType) {
				return err
			}
			warn(cmd, "document type %q is not in the registry", docType)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		filename := filepath.Base(path)
		if mimeType == "" {
			mimeType = detectContentType(filename, content)
		}

		digest, err := store.Digest(bytes.NewReader(content))
		if err != nil {
			return err
		}

		ledger, err := a.ledger(cmd.Context())
		if err != nil {
			return err
		}
		if ledger != nil {
			defer ledger.Close()
			if same, err := ledger.ByDigest(cmd.Context(), repoID, digest); err == nil && len(same) > 0 {
				warn(cmd, "identical content already uploaded as document %s", same[0].OnbaseID)
			}
		}

		client, err := a.client()
		if err != nil {
			return err
		}

		ref, err := client.Upload(cmd.Context(), bytes.NewReader(content), filename, mimeType, docType, pairs)
		if err != nil {
			return err
		}
		success(cmd, "Uploaded %s as document %s", filename, ref.ID)

		if ledger != nil {
			doc := &models.Document{
				RepoID:       repoID,
				OnbaseID:     ref.ID,
				DocumentType: docType,
				Filename:     filename,
				MimeType:     mimeType,
				Digest:       digest,
				Linked:       linked,
			}
			if err := ledger.Record(cmd.Context(), doc); err != nil {
				return fmt.Errorf("document %s uploaded but not recorded: %w", ref.ID, err)
			}
		}
		return nil
	}
}

func detectContentType(filename string, content []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return http.DetectContentType(content)
}
