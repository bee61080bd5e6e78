package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// QdrantStore is a minimal REST client to a Qdrant collection. Vectors come
// from the configured Embedder; the collection is created on first index if
// missing, using cosine distance.
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	embedder   Embedder
	client     *http.Client

	mu      sync.Mutex
	created bool
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewQdrantStore(cfg QdrantConfig, embedder Embedder) *QdrantStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantStore{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		embedder:   embedder,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 when the collection already exists with the same schema.
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body); err != nil {
		return err
	}
	s.created = true
	return nil
}

func (s *QdrantStore) Index(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		vector, err := s.embedder.Embed(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("embed chunk %s/%d: %w", c.DocumentID, c.Index, err)
		}
		if err := s.ensureCollection(ctx, len(vector)); err != nil {
			return err
		}
		points = append(points, map[string]any{
			"id":     uuid.NewString(),
			"vector": vector,
			"payload": map[string]any{
				"document_id": c.DocumentID,
				"title":       c.Title,
				"chunk_index": c.Index,
				"text":        c.Text,
			},
		})
	}
	body := map[string]any{"points": points}
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body)
}

func (s *QdrantStore) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	if k <= 0 {
		k = 5
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}
	out := make([]Snippet, 0, len(resp.Result))
	for _, r := range resp.Result {
		sn := Snippet{Score: r.Score, Metadata: make(map[string]string)}
		if v, ok := r.Payload["text"].(string); ok {
			sn.Text = v
		}
		if v, ok := r.Payload["document_id"].(string); ok {
			sn.Metadata["document_id"] = v
		}
		if v, ok := r.Payload["title"].(string); ok {
			sn.Metadata["title"] = v
		}
		if v, ok := r.Payload["chunk_index"].(float64); ok {
			sn.Metadata["chunk_index"] = strconv.Itoa(int(v))
		}
		out = append(out, sn)
	}
	return out, nil
}

func (s *QdrantStore) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil)
	if err != nil {
		return err
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	res.Body.Close()
	s.mu.Lock()
	s.created = false
	s.mu.Unlock()
	return nil
}

func (s *QdrantStore) Stats(ctx context.Context) (Stats, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	if err := s.getJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), &resp); err != nil {
		return Stats{Backend: "qdrant"}, err
	}
	// Qdrant does not track source documents; chunk count is what it knows.
	return Stats{TotalChunks: resp.Result.PointsCount, Backend: "qdrant"}, nil
}

func (s *QdrantStore) putJSON(ctx context.Context, url string, body any) error {
	return s.doJSON(ctx, http.MethodPut, url, body, nil)
}

func (s *QdrantStore) postJSON(ctx context.Context, url string, body any, out any) error {
	return s.doJSON(ctx, http.MethodPost, url, body, out)
}

func (s *QdrantStore) getJSON(ctx context.Context, url string, out any) error {
	return s.doJSON(ctx, http.MethodGet, url, nil, out)
}

func (s *QdrantStore) doJSON(ctx context.Context, method, url string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request: %w", err)
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, res.Status)
	}
	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}
