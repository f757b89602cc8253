package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	embeddingModel  = "gemini-embedding-001"
	generativeModel = "gemini-1.5-flash"
)

// Client wraps one genai client for both retrieval concerns: embedding text
// into vectors and composing an answer from retrieved context.
type Client struct {
	client *genai.Client
}

func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}

	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Embed returns the embedding vector for text. The genai SDK produces
// float32 values; they are widened to float64 here so the rest of the
// pipeline works in one precision.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	slog.DebugContext(ctx, "embedding content", "model", embeddingModel, "length", len(text))

	em := c.client.EmbeddingModel(embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}

	vector := make([]float64, len(res.Embedding.Values))
	for i, v := range res.Embedding.Values {
		vector[i] = float64(v)
	}
	return vector, nil
}

// Compose asks the generative model to answer the question using only the
// supplied context block.
func (c *Client) Compose(ctx context.Context, question, contextBlock string) (string, error) {
	slog.DebugContext(ctx, "composing answer", "model", generativeModel, "context_length", len(contextBlock))

	prompt := fmt.Sprintf(
		"Answer the question using only the context below. If the context does not contain the answer, say so.\n\nContext:\n%s\n\nQuestion: %s",
		contextBlock, question,
	)

	gm := c.client.GenerativeModel(generativeModel)
	res, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		slog.ErrorContext(ctx, "compose failed", "error", err)
		return "", err
	}

	var sb strings.Builder
	for _, cand := range res.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty completion received")
	}
	return sb.String(), nil
}
