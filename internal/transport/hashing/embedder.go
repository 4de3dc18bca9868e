// Package hashing provides a deterministic offline embedder.
//
// Texts are lowercased, split into letter/digit tokens and each token is
// hashed (FNV-1a) into one of Dimension buckets. The bucket counts are
// L2-normalised, so texts sharing more words end up closer under both L2
// and cosine distance. It needs no network and no credentials, which makes
// it suitable for local runs and tests.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/kailas-cloud/passage/internal/domain"
)

// DefaultDimension is used when the configured dimension is not positive.
const DefaultDimension = 512

// Embedder is a feature-hashing bag-of-words embedder.
type Embedder struct {
	dim int
}

// NewEmbedder creates a hashing embedder producing vectors of length dim.
func NewEmbedder(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Embedder{dim: dim}
}

// Dimension returns the vector length.
func (e *Embedder) Dimension() int { return e.dim }

// Embed implements domain.Embedder. Token counts are reported as usage.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("hashing embed: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	vec, tokens := e.vector(text)
	return domain.EmbeddingResult{
		Embedding:    vec,
		PromptTokens: tokens,
		TotalTokens:  tokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("hashing embed: %w: %w", domain.ErrEmbeddingProviderError, err)
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		vec, tokens := e.vector(text)
		out.Embeddings[i] = vec
		out.PromptTokens += tokens
		out.TotalTokens += tokens
	}
	return out, nil
}

// HealthCheck always succeeds.
func (e *Embedder) HealthCheck(context.Context) error { return nil }

func (e *Embedder) vector(text string) ([]float32, int) {
	counts := make([]float64, e.dim)
	tokens := 0
	for _, tok := range Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		counts[h.Sum32()%uint32(e.dim)]++
		tokens++
	}

	var sum float64
	for _, c := range counts {
		sum += c * c
	}
	vec := make([]float32, e.dim)
	if sum == 0 {
		return vec, 0
	}
	n := math.Sqrt(sum)
	for i, c := range counts {
		vec[i] = float32(c / n)
	}
	return vec, tokens
}

// Tokenize lowercases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
