// Package retrieval builds the passage index and resolves questions against it.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/passage/internal/domain"
	"github.com/kailas-cloud/passage/internal/domain/chunk"
	"github.com/kailas-cloud/passage/internal/index"
	"github.com/kailas-cloud/passage/internal/metrics"
)

// Defaults applied by Build.
const (
	DefaultTopK      = 3
	DefaultBatchSize = 64
	DefaultChunkSize = 200
	DefaultOverlap   = 20
)

// Fixed answer texts.
const (
	NoQuestionText = "No question provided."
	NoMatchText    = "Sorry, no relevant answer found."
)

// Status tells how a question was resolved.
type Status string

const (
	StatusFound      Status = "found"
	StatusNoQuestion Status = "no_question"
	StatusNoMatch    Status = "no_match"
)

// Answer is the result of resolving one question.
type Answer struct {
	Status Status
	// Text is the best passage verbatim, or one of the fixed texts.
	Text     string
	Distance float64
	Hits     []index.Hit
}

// Options configures Build. Zero values take the package defaults.
type Options struct {
	Splitter *chunk.Splitter
	// Embedder embeds the chunks at build time.
	Embedder domain.Embedder
	// QueryEmbedder embeds questions. Defaults to Embedder.
	QueryEmbedder domain.Embedder
	Metric        index.Metric
	TopK          int
	BatchSize     int
	Logger        *zap.Logger
}

// Service answers questions from an immutable index.
// It is safe for concurrent use.
type Service struct {
	idx       *index.Index
	embedder  domain.Embedder
	topK      int
	documents int
	logger    *zap.Logger
}

// Build chunks docs, embeds every chunk and builds the index. Any embedding
// failure aborts the build. A knowledge base with no text fails with domain.ErrIndex.
func Build(ctx context.Context, docs []string, opts Options) (*Service, error) {
	if opts.Embedder == nil {
		return nil, errors.New("retrieval: embedder is required")
	}
	if opts.QueryEmbedder == nil {
		opts.QueryEmbedder = opts.Embedder
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Splitter == nil {
		s, err := chunk.NewSplitter(DefaultChunkSize, DefaultOverlap)
		if err != nil {
			return nil, err
		}
		opts.Splitter = s
	}
	if opts.Metric == "" {
		opts.Metric = index.L2
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	start := time.Now()

	chunks := splitAll(docs, opts.Splitter)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("knowledge base has no text (%d documents): %w", len(docs), domain.ErrIndex)
	}

	entries := make([]index.Entry, 0, len(chunks))
	tokens := 0
	for offset := 0; offset < len(chunks); offset += opts.BatchSize {
		batch := chunks[offset:min(offset+opts.BatchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text()
		}

		res, err := domain.EmbedMany(ctx, opts.Embedder, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", offset, offset+len(batch)-1, err)
		}
		for i, c := range batch {
			entries = append(entries, index.Entry{Chunk: c, Vector: res.Embeddings[i]})
		}
		tokens += res.TotalTokens
	}

	idx, err := index.Build(entries, opts.Metric)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.IndexEntries.Set(float64(idx.Len()))
	metrics.IndexDocuments.Set(float64(len(docs)))
	metrics.IndexBuildDuration.Set(elapsed.Seconds())

	opts.Logger.Info("Index built",
		zap.String("index_id", idx.ID()),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", idx.Len()),
		zap.Int("dimension", idx.Dimension()),
		zap.String("metric", string(idx.Metric())),
		zap.Int("tokens", tokens),
		zap.Duration("duration", elapsed),
	)

	return &Service{
		idx:       idx,
		embedder:  opts.QueryEmbedder,
		topK:      opts.TopK,
		documents: len(docs),
		logger:    opts.Logger,
	}, nil
}

// splitAll chunks every document, dropping chunks that are only whitespace.
func splitAll(docs []string, splitter *chunk.Splitter) []chunk.Chunk {
	var out []chunk.Chunk
	for d, doc := range docs {
		for c := range splitter.Chunks(doc) {
			if strings.TrimSpace(c.Text()) == "" {
				continue
			}
			out = append(out, c.InDocument(d))
		}
	}
	return out
}

// Answer resolves a question to the closest passage.
// A blank question never reaches the embedder.
func (s *Service) Answer(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		metrics.AnswersTotal.WithLabelValues(string(StatusNoQuestion)).Inc()
		return Answer{Status: StatusNoQuestion, Text: NoQuestionText}, nil
	}

	res, err := s.embedder.Embed(ctx, question)
	if err != nil {
		metrics.AnswersTotal.WithLabelValues("error").Inc()
		return Answer{}, fmt.Errorf("embed question: %w", err)
	}

	hits, err := s.idx.Query(res.Embedding, s.topK)
	if err != nil {
		metrics.AnswersTotal.WithLabelValues("error").Inc()
		return Answer{}, fmt.Errorf("search: %w", err)
	}

	if len(hits) == 0 {
		metrics.AnswersTotal.WithLabelValues(string(StatusNoMatch)).Inc()
		return Answer{Status: StatusNoMatch, Text: NoMatchText}, nil
	}

	best := hits[0]
	metrics.AnswersTotal.WithLabelValues(string(StatusFound)).Inc()
	metrics.AnswerDistance.Observe(best.Distance)

	s.logger.Debug("Question answered",
		zap.Int("document", best.Chunk.Document()),
		zap.Int("chunk", best.Chunk.Ordinal()),
		zap.Float64("distance", best.Distance),
		zap.Int("hits", len(hits)),
	)

	return Answer{
		Status:   StatusFound,
		Text:     best.Chunk.Text(),
		Distance: best.Distance,
		Hits:     hits,
	}, nil
}

// IsReady reports whether the service can answer. A built Service always can.
func (s *Service) IsReady() bool { return s != nil && s.idx != nil }

// DocumentCount returns the number of documents the index was built from.
func (s *Service) DocumentCount() int { return s.documents }

// ChunkCount returns the number of indexed chunks.
func (s *Service) ChunkCount() int { return s.idx.Len() }

// IndexID identifies this build of the index.
func (s *Service) IndexID() string { return s.idx.ID() }
