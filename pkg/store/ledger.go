package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zeebo/blake3"

	"github.com/dartmouth-dltg/aspace-onbase/internal/models"
)

// ErrNotFound is returned when no ledger row matches.
var ErrNotFound = errors.New("document not in ledger")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type LedgerConfig struct {
	ConnString string
	TableName  string
	Logger     *slog.Logger
}

// Ledger is the Postgres record of every document uploaded to the store.
type Ledger struct {
	config LedgerConfig
	table  string
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewWithConfig(ctx context.Context, config LedgerConfig) (*Ledger, error) {
	if config.TableName == "" {
		config.TableName = "onbase_document"
	}
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}
	if config.ConnString == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	l := &Ledger{
		config: config,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
		pool:   pool,
		logger: logger,
	}

	if err := l.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return l, nil
}

func (l *Ledger) initialize(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			repo_id BIGINT NOT NULL,
			onbase_id TEXT NOT NULL UNIQUE,
			document_type TEXT NOT NULL,
			filename TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			digest TEXT NOT NULL DEFAULT '',
			linked BOOLEAN NOT NULL DEFAULT false,
			was_linked BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, l.table)

	if _, err := l.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s (repo_id, linked, was_linked)`,
		pgx.Identifier{l.config.TableName + "_repo_link_idx"}.Sanitize(), l.table)

	if _, err := l.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Record inserts doc, or refreshes the row already held for its store id.
// doc.ID and doc.CreatedAt are filled in from the stored row.
func (l *Ledger) Record(ctx context.Context, doc *models.Document) error {
	if doc.OnbaseID == "" {
		return fmt.Errorf("document has no store id")
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (repo_id, onbase_id, document_type, filename, mime_type, digest, linked, was_linked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (onbase_id) DO UPDATE SET
			document_type = EXCLUDED.document_type,
			filename = EXCLUDED.filename,
			mime_type = EXCLUDED.mime_type,
			digest = EXCLUDED.digest
		RETURNING id, linked, was_linked, created_at`,
		l.table)

	err := l.pool.QueryRow(ctx, stmt,
		doc.RepoID,
		doc.OnbaseID,
		sanitizeUTF8(doc.DocumentType),
		sanitizeUTF8(doc.Filename),
		doc.MimeType,
		doc.Digest,
		doc.Linked,
	).Scan(&doc.ID, &doc.Linked, &doc.WasLinked, &doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record document: %w", err)
	}

	l.logger.Debug("recorded document", "id", doc.ID, "onbase_id", doc.OnbaseID, "repo_id", doc.RepoID)
	return nil
}

// Get returns the row for a store id.
func (l *Ledger) Get(ctx context.Context, onbaseID string) (models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE onbase_id = $1`, documentColumns, l.table)
	docs, err := l.query(ctx, query, onbaseID)
	if err != nil {
		return models.Document{}, err
	}
	if len(docs) == 0 {
		return models.Document{}, fmt.Errorf("%w: %s", ErrNotFound, onbaseID)
	}
	return docs[0], nil
}

// ByDigest returns the documents of a repository with the given content
// digest, oldest first.
func (l *Ledger) ByDigest(ctx context.Context, repoID int64, digest string) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE repo_id = $1 AND digest = $2
		ORDER BY created_at`,
		documentColumns, l.table)
	return l.query(ctx, query, repoID, digest)
}

// Repositories returns every repository holding a ledger row.
func (l *Ledger) Repositories(ctx context.Context) ([]int64, error) {
	rows, err := l.pool.Query(ctx, fmt.Sprintf(`SELECT DISTINCT repo_id FROM %s ORDER BY repo_id`, l.table))
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	repos, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan repositories: %w", err)
	}
	return repos, nil
}

// Unlinked returns documents that were attached to a record and no longer
// are, in id order starting after afterID.
func (l *Ledger) Unlinked(ctx context.Context, repoID, afterID int64, limit int) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE repo_id = $1 AND id > $2 AND was_linked AND NOT linked
		ORDER BY id
		LIMIT $3`,
		documentColumns, l.table)
	return l.query(ctx, query, repoID, afterID, limit)
}

// Obsolete returns documents created before olderThan that were never
// attached to a record, in id order starting after afterID.
func (l *Ledger) Obsolete(ctx context.Context, repoID int64, olderThan time.Time, afterID int64, limit int) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE repo_id = $1 AND id > $3 AND NOT was_linked AND NOT linked AND created_at < $2
		ORDER BY id
		LIMIT $4`,
		documentColumns, l.table)
	return l.query(ctx, query, repoID, olderThan, afterID, limit)
}

// SetLinked records whether the document is attached to a record. Once
// linked, a document stays marked as having been linked.
func (l *Ledger) SetLinked(ctx context.Context, onbaseID string, linked bool) error {
	stmt := fmt.Sprintf(`
		UPDATE %s SET linked = $2, was_linked = was_linked OR $2
		WHERE onbase_id = $1`,
		l.table)

	tag, err := l.pool.Exec(ctx, stmt, onbaseID, linked)
	if err != nil {
		return fmt.Errorf("failed to update link state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, onbaseID)
	}
	return nil
}

// Remove deletes a ledger row.
func (l *Ledger) Remove(ctx context.Context, id int64) error {
	tag, err := l.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, l.table), id)
	if err != nil {
		return fmt.Errorf("failed to remove document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: row %d", ErrNotFound, id)
	}
	return nil
}

func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

const documentColumns = `id, repo_id, onbase_id, document_type, filename, mime_type, digest, linked, was_linked, created_at`

func (l *Ledger) query(ctx context.Context, query string, args ...any) ([]models.Document, error) {
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		err := rows.Scan(
			&doc.ID,
			&doc.RepoID,
			&doc.OnbaseID,
			&doc.DocumentType,
			&doc.Filename,
			&doc.MimeType,
			&doc.Digest,
			&doc.Linked,
			&doc.WasLinked,
			&doc.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	return docs, nil
}

// Digest returns the hex BLAKE3 digest of r's content.
func Digest(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to digest content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// sanitizeUTF8 drops invalid bytes; Postgres rejects them in TEXT columns.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
