// Package fallback provides deterministic stand-ins for the embedding and
// composition providers. They keep the full pipeline runnable in local
// development and CI without an API key; answers are obviously synthetic.
package fallback

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// NullEmbedder derives a pseudo-vector from a hash of the text. The same
// text always yields the same vector, so cosine ranking still behaves
// consistently: identical chunks match a matching query exactly.
type NullEmbedder struct {
	dims int
}

func NewNullEmbedder(dims int) *NullEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &NullEmbedder{dims: dims}
}

func (e *NullEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	vector := make([]float64, e.dims)
	for i := range vector {
		vector[i] = rng.Float64()*2 - 1
	}
	return vector, nil
}

// NullComposer returns a canned answer that quotes the question, making it
// unmistakable that no model was involved.
type NullComposer struct{}

func NewNullComposer() *NullComposer {
	return &NullComposer{}
}

func (c *NullComposer) Compose(_ context.Context, question, _ string) (string, error) {
	return fmt.Sprintf("[no language model configured] The most relevant passages for %q are listed in the sources.", question), nil
}
