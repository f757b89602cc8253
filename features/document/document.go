package document

import "time"

// Indexing status lifecycle: unindexed → indexing → indexed | failed.
// A failed document goes back through indexing on retry.
const (
	StatusUnindexed = "unindexed"
	StatusIndexing  = "indexing"
	StatusIndexed   = "indexed"
	StatusFailed    = "failed"
)

const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

type Document struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Title      string     `json:"title"`
	Filename   string     `json:"filename"`
	FilePath   string     `json:"-"`
	SizeBytes  int64      `json:"size_bytes"`
	Visibility string     `json:"visibility"`
	Status     string     `json:"status"`
	ChunkCount int        `json:"chunk_count"`
	Pages      int        `json:"pages"`
	FailReason string     `json:"fail_reason,omitempty"`
	IndexedAt  *time.Time `json:"indexed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Stats aggregates the corpus for GET /index/stats; chunk counts are added
// by the index feature from the chunk store.
type Stats struct {
	TotalDocuments     int        `json:"totalDocuments"`
	IndexedDocuments   int        `json:"indexedDocuments"`
	UnindexedDocuments int        `json:"unindexedDocuments"`
	TotalPages         int        `json:"totalPages"`
	LastIndexUpdate    *time.Time `json:"lastIndexUpdate"`
}
