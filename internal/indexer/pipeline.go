// Package indexer owns the document indexing pipeline: claim the document,
// extract its text, split it into chunks, embed each chunk and swap the
// stored chunk set, then settle the document's status.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"knowledgescout/internal/cache"
	"knowledgescout/internal/chunk"
	"knowledgescout/internal/extract"
	"knowledgescout/internal/text"
)

// ErrAlreadyIndexing is returned when a claim races with a run already in
// flight for the same document. Callers drop the request instead of queueing
// a duplicate.
var ErrAlreadyIndexing = errors.New("document is already being indexed")

// Document is the slice of document state the pipeline needs.
type Document struct {
	ID       string
	Title    string
	FilePath string
}

// DocumentStore moves a document through the indexing state machine.
// ClaimForIndexing must be atomic: exactly one caller wins when two runs
// race, the loser gets ErrAlreadyIndexing.
type DocumentStore interface {
	ClaimForIndexing(ctx context.Context, id string) (Document, error)
	FinishIndexing(ctx context.Context, id string, chunkCount, pages int) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// ContentLoader produces the document's plain text. The default
// implementation reads the stored upload and extracts by format.
type ContentLoader interface {
	Load(ctx context.Context, doc Document) (extract.Result, error)
}

type ChunkStore interface {
	Replace(ctx context.Context, documentID string, chunks []chunk.Chunk) error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type Pipeline struct {
	documents    DocumentStore
	loader       ContentLoader
	chunks       ChunkStore
	embedder     Embedder
	cache        cache.Cache
	splitter     *text.Splitter
	embedTimeout time.Duration
	logger       *slog.Logger
}

func NewPipeline(
	documents DocumentStore,
	loader ContentLoader,
	chunks ChunkStore,
	embedder Embedder,
	queryCache cache.Cache,
	splitter *text.Splitter,
	embedTimeout time.Duration,
	logger *slog.Logger,
) *Pipeline {
	if embedTimeout <= 0 {
		embedTimeout = 30 * time.Second
	}
	return &Pipeline{
		documents:    documents,
		loader:       loader,
		chunks:       chunks,
		embedder:     embedder,
		cache:        queryCache,
		splitter:     splitter,
		embedTimeout: embedTimeout,
		logger:       logger,
	}
}

// Index runs the full pipeline for one document. Re-indexing an already
// indexed document is the same run: the chunk set is fully replaced, never
// merged. Any failure after the claim settles the document as failed so it
// can be retried.
func (p *Pipeline) Index(ctx context.Context, documentID string) error {
	doc, err := p.documents.ClaimForIndexing(ctx, documentID)
	if err != nil {
		return err
	}

	started := time.Now()
	p.logger.InfoContext(ctx, "indexing started", "document_id", doc.ID, "title", doc.Title)

	content, err := p.loader.Load(ctx, doc)
	if err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("load content: %w", err))
	}

	pieces := p.splitter.Split(content.Text)

	// A document with no extractable text indexes cleanly as empty: it will
	// simply never be retrieved.
	if len(pieces) == 0 {
		if err := p.chunks.Replace(ctx, doc.ID, nil); err != nil {
			return p.fail(ctx, doc.ID, fmt.Errorf("replace chunks: %w", err))
		}
		if err := p.documents.FinishIndexing(ctx, doc.ID, 0, content.Pages); err != nil {
			return err
		}
		p.invalidate(ctx, doc.ID)
		p.logger.InfoContext(ctx, "indexing finished", "document_id", doc.ID, "chunks", 0)
		return nil
	}

	chunks := make([]chunk.Chunk, 0, len(pieces))
	embedded := 0
	for i, piece := range pieces {
		c := chunk.Chunk{DocumentID: doc.ID, Position: i + 1, Content: piece}

		vector, err := p.embedPiece(ctx, piece)
		if err != nil {
			// Keep positions contiguous: store the chunk without a vector
			// rather than dropping it.
			p.logger.WarnContext(ctx, "chunk embedding failed", "document_id", doc.ID, "position", c.Position, "error", err)
		} else {
			c.Embedding = vector
			embedded++
		}
		chunks = append(chunks, c)
	}

	if embedded == 0 {
		return p.fail(ctx, doc.ID, errors.New("no chunk could be embedded"))
	}

	if err := p.chunks.Replace(ctx, doc.ID, chunks); err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("replace chunks: %w", err))
	}
	if err := p.documents.FinishIndexing(ctx, doc.ID, len(chunks), content.Pages); err != nil {
		return err
	}

	p.invalidate(ctx, doc.ID)
	p.logger.InfoContext(ctx, "indexing finished",
		"document_id", doc.ID,
		"chunks", len(chunks),
		"embedded", embedded,
		"duration", time.Since(started).String(),
	)
	return nil
}

func (p *Pipeline) embedPiece(ctx context.Context, piece string) ([]float64, error) {
	embedCtx, cancel := context.WithTimeout(ctx, p.embedTimeout)
	defer cancel()
	return p.embedder.Embed(embedCtx, piece)
}

// invalidate drops cached answers scoped to this document. Stale entries
// for unscoped queries expire through their TTL instead.
func (p *Pipeline) invalidate(ctx context.Context, documentID string) {
	removed := p.cache.Invalidate(ctx, "query:*:doc:"+documentID)
	if removed > 0 {
		p.logger.DebugContext(ctx, "query cache invalidated", "document_id", documentID, "entries", removed)
	}
}

func (p *Pipeline) fail(ctx context.Context, documentID string, cause error) error {
	p.logger.ErrorContext(ctx, "indexing failed", "document_id", documentID, "error", cause)
	if err := p.documents.MarkFailed(ctx, documentID, cause.Error()); err != nil {
		p.logger.ErrorContext(ctx, "could not mark document failed", "document_id", documentID, "error", err)
	}
	return cause
}
