package document_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgescout/features/document"
	"knowledgescout/internal/indexer"
)

var docColumns = []string{
	"id", "owner_id", "title", "filename", "file_path", "size_bytes",
	"visibility", "status", "chunk_count", "pages", "coalesce",
	"indexed_at", "created_at", "updated_at",
}

func TestPostgresRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("owner1", "Manual", "manual.pdf", "/uploads/x.pdf", int64(1024), "private", "unindexed").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("doc1", time.Now(), time.Now()))

	doc := &document.Document{
		OwnerID:    "owner1",
		Title:      "Manual",
		Filename:   "manual.pdf",
		FilePath:   "/uploads/x.pdf",
		SizeBytes:  1024,
		Visibility: document.VisibilityPrivate,
		Status:     document.StatusUnindexed,
	}
	require.NoError(t, repo.Create(context.Background(), doc))
	assert.Equal(t, "doc1", doc.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ClaimForIndexing(t *testing.T) {
	ctx := context.Background()

	t.Run("Claim Wins", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := document.NewPostgresRepo(db)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE documents SET status = 'indexing'")).
			WithArgs("doc1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "file_path"}).
				AddRow("doc1", "Manual", "/uploads/x.pdf"))

		doc, err := repo.ClaimForIndexing(ctx, "doc1")
		require.NoError(t, err)
		assert.Equal(t, indexer.Document{ID: "doc1", Title: "Manual", FilePath: "/uploads/x.pdf"}, doc)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Claim Loses To Running Index", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := document.NewPostgresRepo(db)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE documents SET status = 'indexing'")).
			WithArgs("doc1").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM documents WHERE id = $1")).
			WithArgs("doc1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("indexing"))

		_, err = repo.ClaimForIndexing(ctx, "doc1")
		assert.ErrorIs(t, err, indexer.ErrAlreadyIndexing)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown Document", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := document.NewPostgresRepo(db)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE documents SET status = 'indexing'")).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM documents WHERE id = $1")).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		_, err = repo.ClaimForIndexing(ctx, "ghost")
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})
}

func TestPostgresRepo_FinishAndFail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := document.NewPostgresRepo(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status = 'indexed'")).
		WithArgs("doc1", 12, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.FinishIndexing(ctx, "doc1", 12, 3))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status = 'failed'")).
		WithArgs("doc1", "corrupt pdf").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkFailed(ctx, "doc1", "corrupt pdf"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Stats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := document.NewPostgresRepo(db)

	last := time.Now()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
		WillReturnRows(sqlmock.NewRows([]string{"count", "indexed", "pages", "last"}).
			AddRow(10, 7, 145, last))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalDocuments)
	assert.Equal(t, 7, stats.IndexedDocuments)
	assert.Equal(t, 3, stats.UnindexedDocuments)
	assert.Equal(t, 145, stats.TotalPages)
	require.NotNil(t, stats.LastIndexUpdate)
	assert.WithinDuration(t, last, *stats.LastIndexUpdate, time.Second)
}

func TestPostgresRepo_ListUnindexedIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := document.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM documents WHERE status <> 'indexed'")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc1").AddRow("doc2"))

	ids, err := repo.ListUnindexedIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1", "doc2"}, ids)
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := document.NewPostgresRepo(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM documents WHERE visibility = 'public' OR owner_id = $1")).
		WithArgs("owner1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id, owner_id, title").
		WithArgs("owner1", 20, 0).
		WillReturnRows(sqlmock.NewRows(docColumns).
			AddRow("doc1", "owner1", "Manual", "manual.pdf", "/uploads/x.pdf", int64(1024),
				"private", "indexed", 12, 3, "", now, now, now))

	docs, total, err := repo.List(context.Background(), "owner1", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, "Manual", docs[0].Title)
	assert.Equal(t, 12, docs[0].ChunkCount)
}
