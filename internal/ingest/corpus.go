package ingest

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/historia-ai/historia/internal/retrieval"
)

type corpusFile struct {
	Documents []corpusDocument `yaml:"documents"`
}

type corpusDocument struct {
	ID    string            `yaml:"id"`
	Title string            `yaml:"title"`
	Text  string            `yaml:"text"`
	Meta  map[string]string `yaml:"meta"`
}

// LoadCorpus reads a YAML seed file of documents.
func LoadCorpus(path string) ([]retrieval.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus file: %w", err)
	}

	var file corpusFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse corpus file %s: %w", path, err)
	}

	docs := make([]retrieval.Document, 0, len(file.Documents))
	for _, d := range file.Documents {
		docs = append(docs, retrieval.Document{
			ID:    d.ID,
			Title: d.Title,
			Text:  d.Text,
			Meta:  d.Meta,
		})
	}
	return docs, nil
}

// IndexDocument chunks one document and indexes it, returning the number
// of chunks created.
func IndexDocument(ctx context.Context, searcher retrieval.Searcher, doc retrieval.Document) (int, error) {
	chunks := Chunk(doc, DefaultChunkSize)
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := searcher.Index(ctx, chunks); err != nil {
		return 0, fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	return len(chunks), nil
}

// Seed loads the corpus file at path and indexes every document. It
// returns the total chunk count.
func Seed(ctx context.Context, searcher retrieval.Searcher, path string) (int, error) {
	docs, err := LoadCorpus(path)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, doc := range docs {
		n, err := IndexDocument(ctx, searcher, doc)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
