package retrieval

import (
	"context"
	"testing"
)

func seedIndex(t *testing.T) *TFIDFIndex {
	t.Helper()
	ix := NewTFIDFIndex()
	err := ix.Index(context.Background(), []Chunk{
		{DocumentID: "doc-1", Title: "Origins", Index: 0, Text: "The Mexican Revolution began in 1910 when Madero challenged Porfirio Díaz."},
		{DocumentID: "doc-1", Title: "Origins", Index: 1, Text: "Díaz had ruled Mexico for three decades before the uprising."},
		{DocumentID: "doc-2", Title: "Leaders", Index: 0, Text: "Emiliano Zapata fought for land reform in the south."},
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	return ix
}

func TestSearchRanksRelevantChunksFirst(t *testing.T) {
	ix := seedIndex(t)

	got, err := ix.Search(context.Background(), "When did the revolution begin?", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("no results")
	}
	if got[0].Metadata["document_id"] != "doc-1" || got[0].Metadata["chunk_index"] != "0" {
		t.Fatalf("top result = %+v", got[0])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("results not sorted by score: %v", got)
		}
	}
}

func TestSearchRespectsK(t *testing.T) {
	ix := seedIndex(t)
	got, err := ix.Search(context.Background(), "Mexico revolution Díaz Zapata land", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
}

func TestSearchNoMatches(t *testing.T) {
	ix := seedIndex(t)
	got, err := ix.Search(context.Background(), "quantum chromodynamics", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no results, got %v", got)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	ix := seedIndex(t)
	got, err := ix.Search(context.Background(), "¿?", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no results for tokenless query, got %v", got)
	}
}

func TestStatsAndClear(t *testing.T) {
	ix := seedIndex(t)
	ctx := context.Background()

	stats, err := ix.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalChunks != 3 || stats.TotalDocuments != 2 || stats.Backend != "memory" {
		t.Fatalf("stats = %+v", stats)
	}

	if err := ix.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, _ = ix.Stats(ctx)
	if stats.TotalChunks != 0 || stats.TotalDocuments != 0 {
		t.Fatalf("stats after clear = %+v", stats)
	}
}

func TestTokenizeAccentsAndApostrophes(t *testing.T) {
	got := tokenize("Díaz's régime fell in 1911")
	want := map[string]bool{"díaz's": true, "régime": true, "fell": true, "in": true, "1911": true}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v", got)
	}
	for _, tok := range got {
		if !want[tok] {
			t.Fatalf("unexpected token %q in %v", tok, got)
		}
	}
}
