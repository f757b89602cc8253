package chunk

import "time"

// Chunk is the unit of embedding and retrieval: a bounded slice of one
// document's text. Position is 1-based and contiguous for a fully indexed
// document. Embedding stays nil until the provider has produced a vector.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Position   int       `json:"position"`
	Content    string    `json:"content"`
	Embedding  []float64 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`

	// DocumentTitle is populated on candidate reads for context labelling;
	// it is not a column of the chunks table.
	DocumentTitle string `json:"document_title,omitempty"`
}
