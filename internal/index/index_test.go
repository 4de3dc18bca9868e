package index

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/kailas-cloud/passage/internal/domain"
	"github.com/kailas-cloud/passage/internal/domain/chunk"
)

func entry(text string, vec ...float32) Entry {
	return Entry{Chunk: chunk.New(text, 0, 0), Vector: vec}
}

func mustBuild(t *testing.T, metric Metric, entries ...Entry) *Index {
	t.Helper()
	idx, err := Build(entries, metric)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func hitTexts(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk.Text()
	}
	return out
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		metric  Metric
		wantDim bool
	}{
		{name: "empty", entries: nil, metric: L2},
		{name: "empty vector", entries: []Entry{entry("a")}, metric: L2},
		{name: "inconsistent dims", entries: []Entry{entry("a", 1, 0), entry("b", 1, 0, 0)}, metric: Cosine, wantDim: true},
		{name: "unknown metric", entries: []Entry{entry("a", 1)}, metric: "manhattan"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.entries, tc.metric)
			if !errors.Is(err, domain.ErrIndex) {
				t.Fatalf("expected ErrIndex, got %v", err)
			}
			if tc.wantDim && !errors.Is(err, domain.ErrVectorDimMismatch) {
				t.Errorf("expected ErrVectorDimMismatch in chain, got %v", err)
			}
		})
	}
}

func TestQuery_AscendingAndBounded(t *testing.T) {
	idx := mustBuild(t, L2,
		entry("far", 10, 10),
		entry("near", 1, 1),
		entry("exact", 0, 0),
		entry("mid", 3, 4),
	)

	hits, err := idx.Query([]float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []string{"exact", "near", "mid"}
	got := hitTexts(hits)
	if len(got) != 3 {
		t.Fatalf("expected 3 hits, got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Errorf("hits not ascending: %v", hits)
		}
	}
	if hits[0].Distance != 0 {
		t.Errorf("expected exact match distance 0, got %f", hits[0].Distance)
	}
	if math.Abs(hits[2].Distance-5) > 1e-9 {
		t.Errorf("expected L2 distance 5, got %f", hits[2].Distance)
	}
}

func TestQuery_FewerEntriesThanK(t *testing.T) {
	idx := mustBuild(t, Cosine, entry("a", 1, 0), entry("b", 0, 1))

	hits, err := idx.Query([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
}

func TestQuery_TiesKeepInsertionOrder(t *testing.T) {
	idx := mustBuild(t, L2,
		entry("first", 1, 0),
		entry("second", 0, 1),
		entry("third", -1, 0),
		entry("fourth", 0, -1),
	)

	hits, err := idx.Query([]float32{0, 0}, 4)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []string{"first", "second", "third", "fourth"}
	for i, got := range hitTexts(hits) {
		if got != want[i] {
			t.Fatalf("got %v, want %v", hitTexts(hits), want)
		}
	}
}

func TestQuery_Errors(t *testing.T) {
	idx := mustBuild(t, L2, entry("a", 1, 0))

	tests := []struct {
		name    string
		vec     []float32
		k       int
		wantDim bool
	}{
		{name: "zero k", vec: []float32{1, 0}, k: 0},
		{name: "negative k", vec: []float32{1, 0}, k: -3},
		{name: "dimension mismatch", vec: []float32{1, 0, 0}, k: 1, wantDim: true},
		{name: "empty vector", vec: nil, k: 1, wantDim: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := idx.Query(tc.vec, tc.k)
			if !errors.Is(err, domain.ErrQuery) {
				t.Fatalf("expected ErrQuery, got %v", err)
			}
			if tc.wantDim && !errors.Is(err, domain.ErrVectorDimMismatch) {
				t.Errorf("expected ErrVectorDimMismatch in chain, got %v", err)
			}
		})
	}
}

func TestQuery_MetricsRankDifferently(t *testing.T) {
	// Same direction as the query but far away vs. close but at an angle.
	entries := []Entry{
		entry("same direction", 10, 0),
		entry("close", 1, 1),
	}
	query := []float32{1, 0}

	l2Hits, err := mustBuild(t, L2, entries...).Query(query, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	cosHits, err := mustBuild(t, Cosine, entries...).Query(query, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if l2Hits[0].Chunk.Text() != "close" {
		t.Errorf("l2: expected 'close', got %q", l2Hits[0].Chunk.Text())
	}
	if cosHits[0].Chunk.Text() != "same direction" {
		t.Errorf("cosine: expected 'same direction', got %q", cosHits[0].Chunk.Text())
	}
	if math.Abs(cosHits[0].Distance) > 1e-9 {
		t.Errorf("cosine: expected distance 0, got %f", cosHits[0].Distance)
	}
}

func TestQuery_CosineZeroVector(t *testing.T) {
	idx := mustBuild(t, Cosine, entry("zero", 0, 0), entry("unit", 1, 0))

	hits, err := idx.Query([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if hits[0].Chunk.Text() != "unit" || hits[1].Distance != 1 {
		t.Errorf("unexpected hits %+v", hits)
	}
}

func TestBuild_CopiesVectors(t *testing.T) {
	vec := []float32{1, 0}
	idx := mustBuild(t, L2, Entry{Chunk: chunk.New("a", 0, 0), Vector: vec})

	vec[0] = 100

	hits, err := idx.Query([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if hits[0].Distance != 0 {
		t.Errorf("index observed caller mutation, distance %f", hits[0].Distance)
	}
}

func TestIndex_Accessors(t *testing.T) {
	idx := mustBuild(t, Cosine, entry("a", 1, 2, 3), entry("b", 3, 2, 1))

	if idx.Len() != 2 || idx.Dimension() != 3 || idx.Metric() != Cosine {
		t.Errorf("unexpected accessors: len=%d dim=%d metric=%s", idx.Len(), idx.Dimension(), idx.Metric())
	}
	if idx.ID() == "" {
		t.Error("expected a build id")
	}
	other := mustBuild(t, Cosine, entry("a", 1, 2, 3))
	if other.ID() == idx.ID() {
		t.Error("expected distinct build ids")
	}
}

func TestQuery_Concurrent(t *testing.T) {
	entries := make([]Entry, 0, 64)
	for i := range 64 {
		entries = append(entries, entry("e", float32(i), float32(64-i)))
	}
	idx := mustBuild(t, L2, entries...)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for g := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := idx.Query([]float32{float32(g), float32(64 - g)}, 3)
			if err != nil {
				errs <- err
				return
			}
			if hits[0].Distance != 0 {
				errs <- errors.New("expected exact match first")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want Metric
		ok   bool
	}{
		{"", L2, true},
		{"l2", L2, true},
		{"Euclidean", L2, true},
		{" cosine ", Cosine, true},
		{"dot", "", false},
	}
	for _, tc := range tests {
		got, err := ParseMetric(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseMetric(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseMetric(%q): expected error", tc.in)
		}
	}
}
