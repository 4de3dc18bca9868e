// Package chunk splits knowledge-base documents into overlapping retrieval units.
package chunk

// Chunk is a bounded substring of a source document, the atomic retrieval unit.
type Chunk struct {
	text     string
	document int
	ordinal  int
	offset   int
}

// New creates a chunk. offset is measured in runes from the start of the document.
func New(text string, ordinal, offset int) Chunk {
	return Chunk{text: text, ordinal: ordinal, offset: offset}
}

// InDocument returns a copy of the chunk attributed to the document at position doc.
func (c Chunk) InDocument(doc int) Chunk {
	c.document = doc
	return c
}

// Text returns the chunk content verbatim.
func (c Chunk) Text() string { return c.text }

// Document returns the position of the source document in the knowledge base.
func (c Chunk) Document() int { return c.document }

// Ordinal returns the position of the chunk within its document.
func (c Chunk) Ordinal() int { return c.ordinal }

// Offset returns the rune offset of the chunk within its document.
func (c Chunk) Offset() int { return c.offset }
