package semantic

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/falox/observability-assistant-router/internal/config"
)

// fakeEmbedder maps known phrases to hand-picked unit vectors so tests can
// reason about exact cosine similarities instead of real model output.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{0, 0, 1} // orthogonal default: similarity 0 to known axes
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCatalog(t *testing.T) *config.Catalog {
	t.Helper()
	return &config.Catalog{
		DefaultAgentID: "general",
		Agents: []config.Agent{
			{
				ID: "troubleshooting", Handles: []string{"troubleshooting"},
				Routing: &config.Routing{Priority: 1, Threshold: 0.5, Examples: []string{"pod crash"}},
			},
			{
				ID: "metrics", Handles: []string{"metrics"},
				Routing: &config.Routing{Priority: 2, Threshold: 0.5, Examples: []string{"cpu usage"}},
			},
			{ID: "general", Handles: []string{"general"}},
		},
	}
}

func TestBuildIndexSkipsAgentsWithoutExamples(t *testing.T) {
	cat := newCatalog(t)
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"pod crash": {1, 0, 0},
		"cpu usage": {0, 1, 0},
	}}
	idx, err := BuildIndex(context.Background(), embedder, cat)
	if err != nil {
		t.Fatal(err)
	}
	if len(idx.rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2 (general has no examples)", len(idx.rows))
	}
}

func TestMatchReturnsOnlyAgentsAtOrAboveThreshold(t *testing.T) {
	cat := newCatalog(t)
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"pod crash":               {1, 0, 0},
		"cpu usage":               {0, 1, 0},
		"why is my pod crashing?": {1, 0, 0},
	}}
	idx, err := BuildIndex(context.Background(), embedder, cat)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMatcher(embedder, 8, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	matches, err := m.Match(context.Background(), idx, "why is my pod crashing?")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Agent.ID != "troubleshooting" {
		t.Fatalf("matches = %+v, want exactly troubleshooting", matches)
	}
}

func TestMatchStrictlyNonIncreasing(t *testing.T) {
	cat := newCatalog(t)
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"pod crash": {1, 0, 0},
		"cpu usage": {0.9, 0.1, 0},
		"query":     {1, 0, 0},
	}}
	idx, err := BuildIndex(context.Background(), embedder, cat)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMatcher(embedder, 8, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	matches, err := m.Match(context.Background(), idx, "query")
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Fatalf("matches not sorted by descending score: %+v", matches)
		}
	}
}

func TestMatchRejectsEmptyMessage(t *testing.T) {
	cat := newCatalog(t)
	embedder := &fakeEmbedder{}
	idx, err := BuildIndex(context.Background(), embedder, cat)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMatcher(embedder, 8, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Match(context.Background(), idx, "   "); err == nil {
		t.Fatal("expected error for whitespace-only message")
	}
}

func TestMatchNotInitialized(t *testing.T) {
	embedder := &fakeEmbedder{}
	m, err := NewMatcher(embedder, 8, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Match(context.Background(), nil, "hello"); err == nil {
		t.Fatal("expected ErrNotInitialized for nil index")
	}
}

func TestComputeSimilarityNoExamplesReturnsZero(t *testing.T) {
	cat := newCatalog(t)
	embedder := &fakeEmbedder{}
	idx, err := BuildIndex(context.Background(), embedder, cat)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMatcher(embedder, 8, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	score, err := m.ComputeSimilarity(context.Background(), idx, "hi", cat.GetAgentByID("general"))
	if err != nil {
		t.Fatal(err)
	}
	if score != 0 {
		t.Errorf("score = %v, want 0 for agent without examples", score)
	}
}

func TestComputeSimilarityOnDemandForAgentOutsideIndex(t *testing.T) {
	cat := newCatalog(t)
	// Build the index with only "troubleshooting" having examples at build
	// time, then query similarity for "metrics" which is in the catalog but
	// we simulate it being absent from the prebuilt index by using a
	// narrower catalog for BuildIndex.
	narrow := &config.Catalog{
		DefaultAgentID: "general",
		Agents: []config.Agent{
			{ID: "troubleshooting", Handles: []string{"troubleshooting"}, Routing: &config.Routing{Priority: 1, Threshold: 0.5, Examples: []string{"pod crash"}}},
		},
	}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"pod crash": {1, 0, 0},
		"cpu usage": {0, 1, 0},
		"query":     {0, 1, 0},
	}}
	idx, err := BuildIndex(context.Background(), embedder, narrow)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMatcher(embedder, 8, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	metrics := cat.GetAgentByID("metrics")
	score, err := m.ComputeSimilarity(context.Background(), idx, "query", metrics)
	if err != nil {
		t.Fatal(err)
	}
	if score < 0.99 {
		t.Errorf("score = %v, want ~1.0 (on-demand embed of metrics examples)", score)
	}
}
