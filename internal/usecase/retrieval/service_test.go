package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kailas-cloud/passage/internal/domain"
	"github.com/kailas-cloud/passage/internal/domain/chunk"
	"github.com/kailas-cloud/passage/internal/index"
	"github.com/kailas-cloud/passage/internal/transport/hashing"
)

// countingEmbedder wraps the hashing embedder and records calls.
type countingEmbedder struct {
	inner      *hashing.Embedder
	embeds     atomic.Int32
	batchSizes []int
	mu         sync.Mutex
	failOn     string
}

func newCounting() *countingEmbedder {
	return &countingEmbedder{inner: hashing.NewEmbedder(4096)}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	c.embeds.Add(1)
	if c.failOn != "" && strings.Contains(text, c.failOn) {
		return domain.EmbeddingResult{}, fmt.Errorf("provider down: %w", domain.ErrEmbeddingProviderError)
	}
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	c.mu.Lock()
	c.batchSizes = append(c.batchSizes, len(texts))
	c.mu.Unlock()
	for _, text := range texts {
		if c.failOn != "" && strings.Contains(text, c.failOn) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("provider down: %w", domain.ErrEmbeddingProviderError)
		}
	}
	return c.inner.BatchEmbed(ctx, texts)
}

var campus = []string{
	"The library opens at 9am.",
	"Fees are due in March.",
	"The cafeteria serves lunch from noon until two.",
}

func buildCampus(t *testing.T, emb domain.Embedder, opts Options) *Service {
	t.Helper()
	opts.Embedder = emb
	svc, err := Build(context.Background(), campus, opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return svc
}

func TestAnswer_LibraryScenario(t *testing.T) {
	svc := buildCampus(t, newCounting(), Options{})

	ans, err := svc.Answer(context.Background(), "When does the library open?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ans.Status != StatusFound {
		t.Fatalf("status = %q, want found", ans.Status)
	}
	if ans.Text != "The library opens at 9am." {
		t.Errorf("text = %q, want the library passage verbatim", ans.Text)
	}
	if len(ans.Hits) != 3 {
		t.Errorf("hits = %d, want 3 (top_k)", len(ans.Hits))
	}
	if ans.Distance != ans.Hits[0].Distance {
		t.Errorf("distance %v does not match top hit %v", ans.Distance, ans.Hits[0].Distance)
	}
	for i := 1; i < len(ans.Hits); i++ {
		if ans.Hits[i].Distance < ans.Hits[i-1].Distance {
			t.Errorf("hits not ascending at %d", i)
		}
	}
}

func TestAnswer_BlankQuestionSkipsEmbedder(t *testing.T) {
	emb := newCounting()
	svc := buildCampus(t, emb, Options{})
	before := emb.embeds.Load()

	for _, q := range []string{"", "   ", "\n\t"} {
		ans, err := svc.Answer(context.Background(), q)
		if err != nil {
			t.Fatalf("Answer(%q): %v", q, err)
		}
		if ans.Status != StatusNoQuestion || ans.Text != NoQuestionText {
			t.Errorf("Answer(%q) = %+v, want no-question sentinel", q, ans)
		}
	}
	if emb.embeds.Load() != before {
		t.Error("blank questions must not call the embedder")
	}
}

func TestAnswer_TopKSmallerThanIndex(t *testing.T) {
	svc := buildCampus(t, newCounting(), Options{TopK: 1})

	ans, err := svc.Answer(context.Background(), "fees")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(ans.Hits) != 1 || ans.Text != "Fees are due in March." {
		t.Errorf("unexpected answer %+v", ans)
	}
}

func TestAnswer_EmbeddingFailure(t *testing.T) {
	emb := newCounting()
	svc := buildCampus(t, emb, Options{})
	emb.failOn = "broken"

	_, err := svc.Answer(context.Background(), "a broken question")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

type fixedEmbedder struct{ vec []float32 }

func (f fixedEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: f.vec}, nil
}

func TestAnswer_DimensionMismatch(t *testing.T) {
	svc := buildCampus(t, newCounting(), Options{})
	svc.embedder = fixedEmbedder{vec: []float32{1, 2}}

	_, err := svc.Answer(context.Background(), "anything")
	if !errors.Is(err, domain.ErrQuery) || !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrQuery wrapping dimension mismatch, got %v", err)
	}
}

func TestAnswer_Idempotent(t *testing.T) {
	svc := buildCampus(t, newCounting(), Options{})
	ctx := context.Background()

	first, err := svc.Answer(ctx, "lunch at the cafeteria")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	for range 5 {
		again, err := svc.Answer(ctx, "lunch at the cafeteria")
		if err != nil {
			t.Fatalf("Answer: %v", err)
		}
		if again.Text != first.Text || again.Distance != first.Distance {
			t.Fatalf("answers differ: %+v vs %+v", again, first)
		}
	}
}

func TestAnswer_Concurrent(t *testing.T) {
	svc := buildCampus(t, newCounting(), Options{})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ans, err := svc.Answer(context.Background(), "When does the library open?")
			if err != nil || ans.Text != campus[0] {
				t.Errorf("concurrent answer = %+v, %v", ans, err)
			}
		}()
	}
	wg.Wait()
}

func TestBuild_EmptyKnowledgeBase(t *testing.T) {
	tests := map[string][]string{
		"no documents":    nil,
		"only whitespace": {"", "   ", "\n\n"},
	}
	for name, docs := range tests {
		t.Run(name, func(t *testing.T) {
			emb := newCounting()
			_, err := Build(context.Background(), docs, Options{Embedder: emb})
			if !errors.Is(err, domain.ErrIndex) {
				t.Fatalf("expected ErrIndex, got %v", err)
			}
			if len(emb.batchSizes) != 0 {
				t.Error("embedder must not be called for an empty knowledge base")
			}
		})
	}
}

func TestBuild_EmbeddingFailureAborts(t *testing.T) {
	emb := newCounting()
	emb.failOn = "Fees"

	_, err := Build(context.Background(), campus, Options{Embedder: emb})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestBuild_RequiresEmbedder(t *testing.T) {
	if _, err := Build(context.Background(), campus, Options{}); err == nil {
		t.Fatal("expected error without embedder")
	}
}

func TestBuild_BatchesAndCounts(t *testing.T) {
	splitter, err := chunk.NewSplitter(20, 5)
	if err != nil {
		t.Fatal(err)
	}
	emb := newCounting()
	svc, err := Build(context.Background(), campus, Options{
		Embedder:  emb,
		Splitter:  splitter,
		BatchSize: 2,
		Metric:    index.Cosine,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	expected := 0
	for _, doc := range campus {
		expected += len(splitter.Split(doc))
	}
	if svc.ChunkCount() != expected {
		t.Errorf("ChunkCount = %d, want %d", svc.ChunkCount(), expected)
	}
	if svc.DocumentCount() != len(campus) {
		t.Errorf("DocumentCount = %d, want %d", svc.DocumentCount(), len(campus))
	}
	total := 0
	for _, n := range emb.batchSizes {
		if n > 2 {
			t.Errorf("batch of %d exceeds BatchSize 2", n)
		}
		total += n
	}
	if total != expected {
		t.Errorf("embedded %d chunks, want %d", total, expected)
	}
	if !svc.IsReady() || svc.IndexID() == "" {
		t.Error("built service must be ready and carry an index id")
	}
}

func TestBuild_LongDocumentAnswersWithChunk(t *testing.T) {
	splitter, err := chunk.NewSplitter(40, 8)
	if err != nil {
		t.Fatal(err)
	}
	doc := "Parking permits are sold at the front desk. " +
		"The swimming pool closes for cleaning on Mondays."
	svc, err := Build(context.Background(), []string{doc}, Options{Embedder: newCounting(), Splitter: splitter})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ans, err := svc.Answer(context.Background(), "swimming pool")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(doc, ans.Text) || len([]rune(ans.Text)) > 40 {
		t.Errorf("answer %q is not a bounded chunk of the document", ans.Text)
	}
	if !strings.Contains(ans.Text, "pool") {
		t.Errorf("answer %q should be the pool chunk", ans.Text)
	}
}

func TestAnswer_UsesQueryEmbedder(t *testing.T) {
	docs := newCounting()
	queries := newCounting()
	svc := buildCampus(t, docs, Options{QueryEmbedder: queries})
	before := docs.embeds.Load()

	ans, err := svc.Answer(context.Background(), "When does the library open?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ans.Text != campus[0] {
		t.Errorf("Text = %q, want %q", ans.Text, campus[0])
	}
	if queries.embeds.Load() != 1 {
		t.Errorf("query embedder calls = %d, want 1", queries.embeds.Load())
	}
	if docs.embeds.Load() != before {
		t.Error("document embedder must not embed questions")
	}
}
