// Package chunker splits extracted page text into overlapping, ordered
// segments sized for embedding and prompt-context use.
package chunker

import (
	"strings"

	"github.com/google/uuid"

	"github.com/formsage/formsage/internal/core/domain"
)

// DefaultChunkSize is the default target number of characters per chunk.
const DefaultChunkSize = 800

// DefaultChunkOverlap is the default number of characters copied from the
// tail of the previous chunk into the head of the next.
const DefaultChunkOverlap = 150

// separators are tried in priority order so natural breakpoints are
// preferred over mid-word cuts: paragraph, line, sentence, space, then a
// hard character cut.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits pages into chunks. The zero value is not usable; call New.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Overlap must leave room for new content in every chunk.
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// Chunk splits the pages of a document into ordered chunks. Index values
// are assigned sequentially across the whole call, in page order. Overlap
// never crosses a page boundary; empty pages produce no chunks. Empty
// input yields an empty result, never an error.
//
// Size and overlap count characters, not bytes, so cuts never land inside
// a multi-byte rune. Tax documents arrive in any of the supported answer
// languages and often have no ASCII separators at all.
func (c *Chunker) Chunk(documentID string, pages []domain.Page) []domain.Chunk {
	var chunks []domain.Chunk
	index := 0

	for _, page := range pages {
		text := []rune(strings.TrimSpace(page.Text))
		if len(text) == 0 {
			continue
		}

		segments := c.segment(text)
		pos := 0
		for _, seg := range segments {
			head := pos
			overlap := c.overlap
			if overlap > head {
				overlap = head
			}

			chunks = append(chunks, domain.Chunk{
				ID:         uuid.New().String(),
				DocumentID: documentID,
				Index:      index,
				Text:       string(text[head-overlap : head+len(seg)]),
				Metadata: domain.ChunkMetadata{
					Page:       page.Number,
					FormFields: page.Fields,
				},
			})
			index++
			pos += len(seg)
		}
	}

	return chunks
}

// segment partitions text into consecutive pieces of at most chunkSize
// characters. The pieces concatenate back to the input exactly; overlap is
// applied later by the caller.
func (c *Chunker) segment(text []rune) [][]rune {
	atoms := c.split(text, separators)

	// Greedily merge atoms back up toward the target size. Atoms are
	// consecutive slices of text, so each merged segment is a single
	// contiguous window.
	var segments [][]rune
	start, length := 0, 0
	for _, atom := range atoms {
		if length > 0 && length+len(atom) > c.chunkSize {
			segments = append(segments, text[start:start+length])
			start += length
			length = 0
		}
		length += len(atom)
	}
	if length > 0 {
		segments = append(segments, text[start:start+length])
	}
	return segments
}

// split recursively breaks text into atoms no longer than chunkSize,
// preferring the earliest separator present. Separators stay attached to
// the preceding atom so concatenation reproduces the input.
func (c *Chunker) split(text []rune, seps []string) [][]rune {
	if len(text) <= c.chunkSize {
		return [][]rune{text}
	}

	if len(seps) == 0 {
		// Hard character cuts as the last resort.
		var atoms [][]rune
		for start := 0; start < len(text); start += c.chunkSize {
			end := start + c.chunkSize
			if end > len(text) {
				end = len(text)
			}
			atoms = append(atoms, text[start:end])
		}
		return atoms
	}

	parts := splitAfter(text, []rune(seps[0]))
	if len(parts) == 1 {
		return c.split(text, seps[1:])
	}

	var atoms [][]rune
	for _, part := range parts {
		if len(part) > c.chunkSize {
			atoms = append(atoms, c.split(part, seps[1:])...)
		} else {
			atoms = append(atoms, part)
		}
	}
	return atoms
}

// splitAfter splits text after each occurrence of sep. Text ending with
// sep produces no empty trailing part.
func splitAfter(text, sep []rune) [][]rune {
	var parts [][]rune
	start := 0
	for i := 0; i+len(sep) <= len(text); {
		if runesEqual(text[i:i+len(sep)], sep) {
			i += len(sep)
			parts = append(parts, text[start:i])
			start = i
		} else {
			i++
		}
	}
	if start < len(text) {
		parts = append(parts, text[start:])
	}
	return parts
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
