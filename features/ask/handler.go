// Package ask exposes the question-answering endpoint over the retrieval
// core.
package ask

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"knowledgescout/features/document"
	"knowledgescout/internal/answer"
	"knowledgescout/internal/middleware"
)

const (
	maxQueryChars = 1000
	defaultK      = 5
	maxK          = 20
)

type Asker interface {
	Ask(ctx context.Context, query, documentID string, k int) (answer.Result, error)
}

// DocumentGate checks that the caller may see a document before a scoped
// query runs against it.
type DocumentGate interface {
	Get(ctx context.Context, id string, viewer middleware.Identity, shareToken string) (*document.Document, error)
}

type Handler struct {
	service Asker
	gate    DocumentGate
}

func NewHandler(service Asker, gate DocumentGate) *Handler {
	return &Handler{service: service, gate: gate}
}

type askRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"documentId"`
	K          *int   `json:"k"`
}

func (req *askRequest) validate() (int, string) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return 0, "Query is required"
	}
	if utf8.RuneCountInString(req.Query) > maxQueryChars {
		return 0, "Query must be at most 1000 characters"
	}

	k := defaultK
	if req.K != nil {
		k = *req.K
		if k < 1 || k > maxK {
			return 0, "k must be between 1 and 20"
		}
	}

	if req.DocumentID != "" {
		if _, err := uuid.Parse(req.DocumentID); err != nil {
			return 0, "documentId must be a valid id"
		}
	}
	return k, ""
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	k, msg := req.validate()
	if msg != "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", msg, http.StatusBadRequest)
		return
	}

	// A document-scoped query is only answered for callers who could read
	// the document itself.
	if req.DocumentID != "" {
		viewer, _ := middleware.IdentityFromContext(r.Context())
		if _, err := h.gate.Get(r.Context(), req.DocumentID, viewer, r.URL.Query().Get("token")); err != nil {
			switch {
			case errors.Is(err, document.ErrNotFound):
				h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			case errors.Is(err, document.ErrAccessDenied):
				h.writeError(r.Context(), w, "FORBIDDEN", "You do not have access to this document", http.StatusForbidden)
			default:
				slog.Error("document gate failed", "error", err)
				h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
			}
			return
		}
	}

	result, err := h.service.Ask(r.Context(), req.Query, req.DocumentID, k)
	if err != nil {
		if errors.Is(err, answer.ErrEmbedding) {
			h.writeError(r.Context(), w, "EMBEDDING_UNAVAILABLE", "The embedding provider is unavailable, try again later", http.StatusServiceUnavailable)
			return
		}
		slog.Error("ask failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
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
