package retrieval

import "context"

// Document is a unit of ingested text before chunk indexing.
type Document struct {
	ID    string            `json:"id"`
	Title string            `json:"title"`
	Text  string            `json:"text"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Snippet is one retrieved chunk of text with its provenance metadata,
// ranked best first by the searcher.
type Snippet struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Stats describes the indexed corpus.
type Stats struct {
	TotalChunks    int    `json:"total_chunks"`
	TotalDocuments int    `json:"total_documents"`
	Backend        string `json:"backend"`
}

// Searcher exposes nearest-neighbor text search over an indexed corpus.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Snippet, error)
	Index(ctx context.Context, chunks []Chunk) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// Chunk is an indexable fragment of a document.
type Chunk struct {
	DocumentID string
	Title      string
	Index      int
	Text       string
}
