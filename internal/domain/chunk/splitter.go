package chunk

import (
	"fmt"
	"iter"
	"unicode"

	"github.com/kailas-cloud/passage/internal/domain"
)

// Splitter cuts documents with a sliding window of Size runes. Consecutive chunks
// share exactly Overlap runes. Chunk ends snap to the nearest natural boundary
// (paragraph, line, sentence, word) inside the second half of the window.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter validates 0 <= overlap < size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", domain.ErrInvalidChunking, size, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Size returns the maximum chunk length in runes.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the number of runes shared by adjacent chunks.
func (s *Splitter) Overlap() int { return s.overlap }

// Split materializes Chunks.
func (s *Splitter) Split(text string) []Chunk {
	var out []Chunk
	for c := range s.Chunks(text) {
		out = append(out, c)
	}
	return out
}

// Chunks lazily yields the chunks of text in source order.
func (s *Splitter) Chunks(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if text == "" {
			return
		}
		runes := []rune(text)

		start, ordinal := 0, 0
		for {
			if len(runes)-start <= s.size {
				yield(New(string(runes[start:]), ordinal, start))
				return
			}
			end := s.boundary(runes, start)
			if !yield(New(string(runes[start:end]), ordinal, start)) {
				return
			}
			// end > start+overlap, see boundary
			start = end - s.overlap
			ordinal++
		}
	}
}

// boundary picks the end of the chunk starting at start. Candidates lie in
// [start+max(overlap+1, size/2), start+size].
func (s *Splitter) boundary(runes []rune, start int) int {
	hi := start + s.size
	lo := start + max(s.overlap+1, s.size/2)

	for _, at := range []func(runes []rune, start, end int) bool{
		isParagraphEnd,
		isLineEnd,
		isSentenceEnd,
		isWordEnd,
	} {
		for end := hi; end >= lo; end-- {
			if at(runes, start, end) {
				return end
			}
		}
	}
	return hi
}

func isParagraphEnd(runes []rune, start, end int) bool {
	return end-2 >= start && runes[end-1] == '\n' && runes[end-2] == '\n'
}

func isLineEnd(runes []rune, _, end int) bool {
	return runes[end-1] == '\n'
}

func isSentenceEnd(runes []rune, start, end int) bool {
	if end-2 < start || !unicode.IsSpace(runes[end-1]) {
		return false
	}
	switch runes[end-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func isWordEnd(runes []rune, _, end int) bool {
	return unicode.IsSpace(runes[end-1])
}
