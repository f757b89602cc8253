package document

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"knowledgescout/internal/indexer"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const documentColumns = `id, owner_id, title, filename, file_path, size_bytes, visibility, status, chunk_count, pages, COALESCE(fail_reason, ''), indexed_at, created_at, updated_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*Document, error) {
	d := &Document{}
	err := row.Scan(&d.ID, &d.OwnerID, &d.Title, &d.Filename, &d.FilePath, &d.SizeBytes,
		&d.Visibility, &d.Status, &d.ChunkCount, &d.Pages, &d.FailReason,
		&d.IndexedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PostgresRepo) Create(ctx context.Context, d *Document) error {
	query := `INSERT INTO documents (owner_id, title, filename, file_path, size_bytes, visibility, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		d.OwnerID, d.Title, d.Filename, d.FilePath, d.SizeBytes, d.Visibility, d.Status,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, query, id))
}

// List returns documents visible to viewerID (their own plus public ones)
// with the total for pagination. An empty viewerID sees only public
// documents.
func (r *PostgresRepo) List(ctx context.Context, viewerID string, limit, offset int) ([]Document, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM documents WHERE visibility = 'public' OR owner_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, viewerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE visibility = 'public' OR owner_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, viewerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *d)
	}
	return docs, total, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

// ClaimForIndexing flips the document into the indexing state with a
// conditional update, so exactly one of two concurrent claims wins.
func (r *PostgresRepo) ClaimForIndexing(ctx context.Context, id string) (indexer.Document, error) {
	query := `UPDATE documents SET status = 'indexing', fail_reason = NULL, updated_at = NOW()
		WHERE id = $1 AND status <> 'indexing'
		RETURNING id, title, file_path`
	var doc indexer.Document
	err := r.db.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.Title, &doc.FilePath)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return indexer.Document{}, err
	}

	// No row updated: either the document is gone or a run already holds it.
	var status string
	checkErr := r.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&status)
	if checkErr == nil {
		return indexer.Document{}, indexer.ErrAlreadyIndexing
	}
	return indexer.Document{}, checkErr
}

func (r *PostgresRepo) FinishIndexing(ctx context.Context, id string, chunkCount, pages int) error {
	query := `UPDATE documents SET status = 'indexed', chunk_count = $2, pages = $3,
		fail_reason = NULL, indexed_at = NOW(), updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, chunkCount, pages)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	query := `UPDATE documents SET status = 'failed', fail_reason = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, reason)
	return err
}

// ListUnindexedIDs returns every document not currently indexed, the input
// for an index rebuild.
func (r *PostgresRepo) ListUnindexedIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM documents WHERE status <> 'indexed' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepo) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	query := `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE status = 'indexed'),
		COALESCE(SUM(pages), 0),
		MAX(indexed_at)
		FROM documents`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.TotalDocuments, &s.IndexedDocuments, &s.TotalPages, &s.LastIndexUpdate)
	if err != nil {
		return Stats{}, err
	}
	s.UnindexedDocuments = s.TotalDocuments - s.IndexedDocuments
	return s, nil
}

func (r *PostgresRepo) CreateShareToken(ctx context.Context, documentID, token string, expiresAt time.Time) error {
	query := `INSERT INTO share_tokens (token, document_id, expires_at) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, token, documentID, expiresAt)
	return err
}

// GetByShareToken resolves an unexpired share token to its document.
func (r *PostgresRepo) GetByShareToken(ctx context.Context, token string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE id = (SELECT document_id FROM share_tokens WHERE token = $1 AND expires_at > NOW())`
	return scanDocument(r.db.QueryRowContext(ctx, query, token))
}
