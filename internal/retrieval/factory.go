package retrieval

import (
	"fmt"
	"strings"
	"time"
)

// Config selects and configures the retrieval backend.
type Config struct {
	Mode             string
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	EmbedderURL      string
	EmbedderAPIKey   string
	EmbedderModel    string
	Timeout          time.Duration
}

// NewSearcher builds the configured backend. The in-memory TF-IDF index is
// the default and needs no external services.
func NewSearcher(cfg Config) (Searcher, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case "", "memory":
		return NewTFIDFIndex(), nil
	case "qdrant":
		embedder := NewHTTPEmbedder(HTTPEmbedderConfig{
			BaseURL: cfg.EmbedderURL,
			APIKey:  cfg.EmbedderAPIKey,
			Model:   cfg.EmbedderModel,
			Timeout: cfg.Timeout,
		})
		return NewQdrantStore(QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Timeout:    cfg.Timeout,
		}, embedder), nil
	default:
		return nil, fmt.Errorf("unsupported retriever mode %q (expected memory|qdrant)", cfg.Mode)
	}
}
