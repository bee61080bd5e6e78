package retrieval

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\d+`)

// TFIDFIndex is a brute-force in-memory index scoring chunks by smoothed
// TF-IDF cosine overlap with the query. It needs no external service and no
// embedding model, which makes it the default backend.
type TFIDFIndex struct {
	mu     sync.RWMutex
	chunks []Chunk
	// df counts how many chunks contain each term.
	df map[string]int
}

func NewTFIDFIndex() *TFIDFIndex {
	return &TFIDFIndex{df: make(map[string]int)}
}

func (ix *TFIDFIndex) Index(_ context.Context, chunks []Chunk) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, c := range chunks {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(c.Text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			ix.df[tok]++
		}
		ix.chunks = append(ix.chunks, c)
	}
	return nil
}

func (ix *TFIDFIndex) Search(_ context.Context, query string, k int) ([]Snippet, error) {
	if k <= 0 {
		k = 5
	}
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := float64(len(ix.chunks))
	scores := make([]float64, len(ix.chunks))
	for i, c := range ix.chunks {
		tf := termCounts(tokenize(c.Text))
		var score, norm float64
		for term, count := range tf {
			idf := math.Log((1+n)/(1+float64(ix.df[term]))) + 1.0
			w := float64(count) * idf
			norm += w * w
		}
		if norm == 0 {
			continue
		}
		for _, term := range queryTerms {
			count, ok := tf[term]
			if !ok {
				continue
			}
			idf := math.Log((1+n)/(1+float64(ix.df[term]))) + 1.0
			score += float64(count) * idf * idf
		}
		scores[i] = score / math.Sqrt(norm)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	out := make([]Snippet, 0, k)
	for _, i := range order {
		if len(out) == k {
			break
		}
		if scores[i] <= 0 {
			break
		}
		out = append(out, snippetFromChunk(ix.chunks[i], scores[i]))
	}
	return out, nil
}

func (ix *TFIDFIndex) Clear(_ context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.chunks = nil
	ix.df = make(map[string]int)
	return nil
}

func (ix *TFIDFIndex) Stats(_ context.Context) (Stats, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	docs := make(map[string]struct{})
	for _, c := range ix.chunks {
		docs[c.DocumentID] = struct{}{}
	}
	return Stats{TotalChunks: len(ix.chunks), TotalDocuments: len(docs), Backend: "memory"}, nil
}

func snippetFromChunk(c Chunk, score float64) Snippet {
	return Snippet{
		Text:  c.Text,
		Score: score,
		Metadata: map[string]string{
			"document_id": c.DocumentID,
			"title":       c.Title,
			"chunk_index": strconv.Itoa(c.Index),
		},
	}
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func termCounts(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}
