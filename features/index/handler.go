// Package index exposes corpus-level indexing operations: stats, a rebuild
// trigger and query-cache clearing.
package index

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"knowledgescout/features/document"
	"knowledgescout/internal/cache"
	"knowledgescout/internal/middleware"
	"knowledgescout/internal/worker"
)

type DocumentStore interface {
	Stats(ctx context.Context) (document.Stats, error)
	ListUnindexedIDs(ctx context.Context) ([]string, error)
}

type ChunkCounter interface {
	CountAll(ctx context.Context) (int, error)
	CountEmbedded(ctx context.Context) (int, error)
}

type TaskPublisher interface {
	PublishIndexTask(ctx context.Context, task worker.IndexTask) error
}

type Handler struct {
	documents DocumentStore
	chunks    ChunkCounter
	publisher TaskPublisher
	cache     cache.Cache
}

func NewHandler(documents DocumentStore, chunks ChunkCounter, publisher TaskPublisher, queryCache cache.Cache) *Handler {
	return &Handler{
		documents: documents,
		chunks:    chunks,
		publisher: publisher,
		cache:     queryCache,
	}
}

type statsResponse struct {
	document.Stats
	TotalChunks     int `json:"totalChunks"`
	TotalEmbeddings int `json:"totalEmbeddings"`
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	docStats, err := h.documents.Stats(r.Context())
	if err != nil {
		slog.Error("stats query failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	totalChunks, err := h.chunks.CountAll(r.Context())
	if err != nil {
		slog.Error("chunk count failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	embedded, err := h.chunks.CountEmbedded(r.Context())
	if err != nil {
		slog.Error("embedding count failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, statsResponse{
		Stats:           docStats,
		TotalChunks:     totalChunks,
		TotalEmbeddings: embedded,
	})
}

type healthResponse struct {
	Status           string  `json:"status"`
	TotalDocuments   int     `json:"totalDocuments"`
	IndexedDocuments int     `json:"indexedDocuments"`
	NeedsReindexing  int     `json:"needsReindexing"`
	IndexingProgress float64 `json:"indexingProgress"`
}

// Health reports how far indexing has caught up with the corpus. The index
// is healthy only when every document is indexed; an empty corpus counts as
// fully indexed.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	docStats, err := h.documents.Stats(r.Context())
	if err != nil {
		slog.Error("health query failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	progress := 100.0
	if docStats.TotalDocuments > 0 {
		progress = float64(docStats.IndexedDocuments) / float64(docStats.TotalDocuments) * 100
	}

	status := "healthy"
	if docStats.IndexedDocuments != docStats.TotalDocuments {
		status = "degraded"
	}

	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:           status,
		TotalDocuments:   docStats.TotalDocuments,
		IndexedDocuments: docStats.IndexedDocuments,
		NeedsReindexing:  docStats.TotalDocuments - docStats.IndexedDocuments,
		IndexingProgress: progress,
	})
}

// Rebuild enqueues an index task for every document that is not currently
// indexed. The work happens on the queue; the response only reports how
// many were scheduled.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ids, err := h.documents.ListUnindexedIDs(r.Context())
	if err != nil {
		slog.Error("rebuild listing failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	scheduled := 0
	for _, id := range ids {
		task := worker.IndexTask{
			DocumentID:    id,
			Reindex:       true,
			CorrelationID: middleware.GetCorrelationID(r.Context()),
		}
		if err := h.publisher.PublishIndexTask(r.Context(), task); err != nil {
			slog.Error("could not enqueue rebuild task", "document_id", id, "error", err)
			continue
		}
		scheduled++
	}

	h.writeJSON(w, http.StatusAccepted, map[string]int{"scheduled": scheduled})
}

// ClearCache wipes every cache entry, query results and cached document
// lists alike, and reports how many were removed.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	cleared := h.cache.Invalidate(r.Context(), "*")
	h.writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
