package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"knowledgescout/internal/indexer"
	"knowledgescout/internal/middleware"
)

type Indexer interface {
	Index(ctx context.Context, documentID string) error
}

// IndexConsumer drives the indexing pipeline from index.task messages.
type IndexConsumer struct {
	pipeline Indexer
}

func NewIndexConsumer(pipeline Indexer) *IndexConsumer {
	return &IndexConsumer{pipeline: pipeline}
}

func (h *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task IndexTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison pill: invalid JSON will never parse, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if task.DocumentID == "" {
		slog.Error("poison pill: index task without document id")
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}

	err := h.pipeline.Index(ctx, task.DocumentID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, indexer.ErrAlreadyIndexing):
		// A run is already in flight; a retry would only duplicate it.
		slog.InfoContext(ctx, "dropping duplicate index task", "document_id", task.DocumentID)
		return nil
	default:
		slog.ErrorContext(ctx, "index task failed", "document_id", task.DocumentID, "error", err)
		return err // Retry
	}
}
