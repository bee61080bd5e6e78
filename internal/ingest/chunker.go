// Package ingest turns raw document text into indexable chunks and
// seeds the retrieval corpus at startup.
package ingest

import (
	"strings"

	"github.com/google/uuid"

	"github.com/historia-ai/historia/internal/retrieval"
)

const (
	// DefaultChunkSize caps chunk length in bytes. Paragraphs are packed
	// into a chunk until the next one would cross the cap.
	DefaultChunkSize = 1000
)

// Chunk splits a document into retrieval chunks. Paragraph boundaries
// (blank lines) are preserved where possible; an oversized paragraph is
// hard-split at the cap. Documents without an ID get a generated one.
func Chunk(doc retrieval.Document, maxSize int) []retrieval.Chunk {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	var pieces []string
	var current strings.Builder
	for _, para := range splitParagraphs(doc.Text) {
		if current.Len() > 0 && current.Len()+2+len(para) > maxSize {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if len(para) > maxSize {
			for len(para) > maxSize {
				pieces = append(pieces, para[:maxSize])
				para = para[maxSize:]
			}
			if para == "" {
				continue
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	chunks := make([]retrieval.Chunk, 0, len(pieces))
	for i, text := range pieces {
		chunks = append(chunks, retrieval.Chunk{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Index:      i,
			Text:       text,
		})
	}
	return chunks
}

func splitParagraphs(text string) []string {
	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para != "" {
			out = append(out, para)
		}
	}
	return out
}
