package chunk

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Replace swaps the full chunk set of a document inside one transaction.
// Re-indexing is a full replace, never a merge: readers observe either the
// old set or the new set, not a mix.
func (s *PostgresStore) Replace(ctx context.Context, documentID string, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (document_id, position, content, embedding) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		var embedding interface{}
		if c.Embedding != nil {
			embedding = pq.Float64Array(c.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, documentID, c.Position, c.Content, embedding); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Position, err)
		}
	}

	return tx.Commit()
}

// Candidates pulls up to limit chunks for ranking, optionally scoped to one
// document. This is a linear-scan design: the ranking happens in memory, so
// the pull is bounded by the caller (3·k) rather than by an index.
func (s *PostgresStore) Candidates(ctx context.Context, documentID string, limit int) ([]Chunk, error) {
	query := `SELECT c.id, c.document_id, c.position, c.content, c.embedding, c.created_at, d.title
		FROM chunks c
		JOIN documents d ON d.id = c.document_id`
	args := []interface{}{}
	if documentID != "" {
		query += ` WHERE c.document_id = $1 ORDER BY c.position ASC LIMIT $2`
		args = append(args, documentID, limit)
	} else {
		query += ` ORDER BY c.document_id, c.position ASC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var embedding pq.Float64Array
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Position, &c.Content, &embedding, &c.CreatedAt, &c.DocumentTitle); err != nil {
			return nil, err
		}
		c.Embedding = []float64(embedding)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *PostgresStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}

func (s *PostgresStore) CountAll(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// CountEmbedded counts chunks that actually carry a vector; chunks whose
// embedding call failed are stored without one.
func (s *PostgresStore) CountEmbedded(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL`).Scan(&count)
	return count, err
}
