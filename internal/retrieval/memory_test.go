package retrieval

import (
	"context"
	"strings"
	"testing"
)

func TestMemoryStoreSearchRanksByOverlap(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ids, err := store.AddDocuments(ctx, []Document{
		{Content: "Zero Trust Architecture: never trust, always verify."},
		{ID: "doc-siem", Content: "SIEM systems aggregate logs and correlate security alerts."},
		{Content: "Defense in depth employs multiple layers of security controls."},
	})
	if err != nil {
		t.Fatalf("写入文档失败: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("unexpected id count: %d", len(ids))
	}
	if ids[1] != "doc-siem" {
		t.Fatalf("expected provided id to be kept, got %q", ids[1])
	}
	for _, id := range ids {
		if id == "" {
			t.Fatal("expected generated ids to be non-empty")
		}
	}

	docs, err := store.Search(ctx, "how do SIEM alerts get correlated", 2)
	if err != nil {
		t.Fatalf("检索失败: %v", err)
	}
	if len(docs) == 0 || docs[0].ID != "doc-siem" {
		t.Fatalf("unexpected top result: %+v", docs)
	}

	docs, err = store.Search(ctx, "quantum gardening", 3)
	if err != nil {
		t.Fatalf("检索失败: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no results for unrelated query, got %d", len(docs))
	}
}

func TestSearchDefaultsTopK(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var docs []Document
	for i := 0; i < 5; i++ {
		docs = append(docs, Document{Content: "security baseline hardening checklist"})
	}
	if _, err := store.AddDocuments(ctx, docs); err != nil {
		t.Fatalf("写入文档失败: %v", err)
	}

	results, err := store.Search(ctx, "security baseline", 0)
	if err != nil {
		t.Fatalf("检索失败: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected default top-k of 3, got %d", len(results))
	}
}

func TestSeedDocumentsLoadsCorpus(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	count, err := SeedDocuments(ctx, store)
	if err != nil {
		t.Fatalf("播种失败: %v", err)
	}
	if count != len(seedCorpus) {
		t.Fatalf("unexpected seed count: got %d want %d", count, len(seedCorpus))
	}

	docs, err := store.Search(ctx, "incident response phases", 3)
	if err != nil {
		t.Fatalf("检索失败: %v", err)
	}
	if len(docs) == 0 || !strings.Contains(docs[0].Content, "Incident Response") {
		t.Fatalf("expected incident response doc first, got %+v", docs)
	}
}
