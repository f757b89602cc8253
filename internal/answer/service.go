// Package answer implements the retrieval flow behind /ask: embed the
// query, rank stored chunks by cosine similarity and compose an answer from
// the best matches, with a short-lived cache in front of the whole thing.
package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"knowledgescout/internal/cache"
	"knowledgescout/internal/chunk"
	"knowledgescout/internal/vector"
)

// ErrEmbedding marks a failed query embedding. The query cannot be ranked
// without a vector, so this maps to an unavailable provider rather than a
// bad request.
var ErrEmbedding = errors.New("query embedding failed")

const (
	// candidateMultiplier widens the pull so ranking has headroom over k.
	candidateMultiplier = 3

	// maxContextChars bounds the prompt sent to the composer.
	maxContextChars = 8000

	previewChars = 200

	noMatchAnswer = "I couldn't find any relevant information in the indexed documents to answer your question."

	composeFallbackAnswer = "I found relevant passages but couldn't generate an answer from them. The sources below may still help."
)

type Source struct {
	DocumentID    string  `json:"documentId"`
	DocumentTitle string  `json:"documentTitle"`
	Position      int     `json:"position"`
	Preview       string  `json:"preview"`
	Relevance     float64 `json:"relevance"`
}

type Result struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	QueryID   string   `json:"queryId"`
	FromCache bool     `json:"fromCache"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type Composer interface {
	Compose(ctx context.Context, question, contextBlock string) (string, error)
}

// CandidateStore pulls chunks for ranking; an empty documentID means the
// whole corpus.
type CandidateStore interface {
	Candidates(ctx context.Context, documentID string, limit int) ([]chunk.Chunk, error)
}

type Service struct {
	embedder   Embedder
	composer   Composer
	candidates CandidateStore
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *slog.Logger
}

func NewService(embedder Embedder, composer Composer, candidates CandidateStore, queryCache cache.Cache, cacheTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		embedder:   embedder,
		composer:   composer,
		candidates: candidates,
		cache:      queryCache,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// Ask answers the query from the top-k most similar chunks, optionally
// scoped to one document. Results are cached by normalized query text, so a
// repeat of the same question within the TTL is served without touching the
// providers.
func (s *Service) Ask(ctx context.Context, query, documentID string, k int) (Result, error) {
	key := cache.Fingerprint(query, documentID)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var cached Result
		if err := json.Unmarshal(raw, &cached); err == nil {
			cached.FromCache = true
			s.logger.DebugContext(ctx, "answer served from cache", "key", key)
			return cached, nil
		}
		s.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key)
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	candidates, err := s.candidates.Candidates(ctx, documentID, k*candidateMultiplier)
	if err != nil {
		return Result{}, fmt.Errorf("load candidates: %w", err)
	}

	ranked := vector.Rank(queryVector, candidates, k)

	result := Result{QueryID: newQueryID()}
	if len(ranked) == 0 {
		result.Answer = noMatchAnswer
		result.Sources = []Source{}
		s.store(ctx, key, result)
		return result, nil
	}

	result.Sources = make([]Source, 0, len(ranked))
	for rank, rc := range ranked {
		result.Sources = append(result.Sources, Source{
			DocumentID:    rc.Chunk.DocumentID,
			DocumentTitle: rc.Chunk.DocumentTitle,
			Position:      rc.Chunk.Position,
			Preview:       preview(rc.Chunk.Content),
			Relevance:     relevance(rank),
		})
	}

	answer, err := s.composer.Compose(ctx, query, contextBlock(ranked))
	if err != nil {
		// Retrieval already succeeded; a composer outage degrades the
		// answer text, not the whole request.
		s.logger.WarnContext(ctx, "composer failed, returning sources only", "error", err)
		answer = composeFallbackAnswer
	}
	result.Answer = answer

	s.store(ctx, key, result)
	return result, nil
}

func (s *Service) store(ctx context.Context, key string, result Result) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, raw, s.cacheTTL)
}

// relevance maps a 0-based rank to a display score: 1.0, 0.9, 0.8, ...
// floored at 0.5.
func relevance(rank int) float64 {
	score := 1.0 - 0.1*float64(rank)
	if score < 0.5 {
		return 0.5
	}
	return score
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewChars {
		return content
	}
	return string(runes[:previewChars]) + "..."
}

// contextBlock labels each chunk with its document and position so the
// composer can cite them, truncating once the budget is spent.
func contextBlock(ranked []vector.RankedCandidate) string {
	var sb strings.Builder
	for _, rc := range ranked {
		section := fmt.Sprintf("[Document: %s, Chunk: %d]\n%s\n\n", rc.Chunk.DocumentTitle, rc.Chunk.Position, rc.Chunk.Content)
		if sb.Len()+len(section) > maxContextChars {
			break
		}
		sb.WriteString(section)
	}
	return strings.TrimSpace(sb.String())
}

const queryIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func newQueryID() string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = queryIDAlphabet[rand.Intn(len(queryIDAlphabet))]
	}
	return fmt.Sprintf("query_%d_%s", time.Now().UnixMilli(), suffix)
}
