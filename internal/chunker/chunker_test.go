package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formsage/formsage/internal/core/domain"
)

func TestChunker_Chunk_Empty(t *testing.T) {
	c := New()

	assert.Empty(t, c.Chunk("doc-1", nil))
	assert.Empty(t, c.Chunk("doc-1", []domain.Page{{Number: 1, Text: "   "}}))
}

func TestChunker_Chunk_SmallPage(t *testing.T) {
	c := New()

	chunks := c.Chunk("doc-1", []domain.Page{
		{Number: 1, Text: "A short page.", Fields: map[string]string{"Wages": "50000"}},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, "doc-1", chunks[0].DocumentID)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "A short page.", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].Metadata.Page)
	assert.Equal(t, "50000", chunks[0].Metadata.FormFields["Wages"])
	assert.NotEmpty(t, chunks[0].ID)
}

func TestChunker_Chunk_SequentialIndexAcrossPages(t *testing.T) {
	c := New(WithChunkSize(40), WithOverlap(0))

	long := strings.Repeat("alpha beta gamma delta epsilon. ", 8)
	chunks := c.Chunk("doc-1", []domain.Page{
		{Number: 1, Text: long},
		{Number: 2, Text: ""},
		{Number: 3, Text: long},
	})

	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.NotEqual(t, 2, chunk.Metadata.Page, "empty page must produce no chunks")
	}
}

func TestChunker_Chunk_ReconstructsPageText(t *testing.T) {
	overlap := 10
	c := New(WithChunkSize(50), WithOverlap(overlap))

	text := strings.TrimSpace(strings.Repeat("one two three four five six seven eight. ", 6))
	chunks := c.Chunk("doc-1", []domain.Page{{Number: 1, Text: text}})
	require.Greater(t, len(chunks), 1)

	// Stripping the overlapping prefix from every chunk after the first
	// must reconstruct the page exactly.
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0].Text)
	for _, chunk := range chunks[1:] {
		rebuilt.WriteString(chunk.Text[overlap:])
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestChunker_Chunk_OverlapStaysWithinPage(t *testing.T) {
	c := New(WithChunkSize(40), WithOverlap(20))

	pageOne := strings.Repeat("aaaa bbbb cccc dddd. ", 5)
	pageTwo := strings.Repeat("zzzz yyyy xxxx wwww. ", 5)
	chunks := c.Chunk("doc-1", []domain.Page{
		{Number: 1, Text: pageOne},
		{Number: 2, Text: pageTwo},
	})

	for _, chunk := range chunks {
		switch chunk.Metadata.Page {
		case 1:
			assert.NotContains(t, chunk.Text, "zzzz")
		case 2:
			assert.NotContains(t, chunk.Text, "aaaa")
		}
	}
}

func TestChunker_Chunk_RespectsChunkSizeBound(t *testing.T) {
	size, overlap := 60, 15
	c := New(WithChunkSize(size), WithOverlap(overlap))

	chunks := c.Chunk("doc-1", []domain.Page{
		{Number: 1, Text: strings.Repeat("word ", 200)},
	})

	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), size+overlap)
	}
}

func TestChunker_Chunk_HardCutWithoutSeparators(t *testing.T) {
	c := New(WithChunkSize(30), WithOverlap(0))

	text := strings.Repeat("x", 95)
	chunks := c.Chunk("doc-1", []domain.Page{{Number: 1, Text: text}})

	require.Len(t, chunks, 4)
	var rebuilt strings.Builder
	for _, chunk := range chunks {
		rebuilt.WriteString(chunk.Text)
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestChunker_Chunk_MultiByteHardCut(t *testing.T) {
	size := 30
	c := New(WithChunkSize(size), WithOverlap(0))

	// No ASCII separators anywhere, so every cut is a hard cut.
	text := strings.Repeat("工资与预扣税款合计金额请填写在表格第一行。", 30)
	chunks := c.Chunk("doc-1", []domain.Page{{Number: 1, Text: text}})
	require.Greater(t, len(chunks), 1)

	var rebuilt strings.Builder
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk.Text), "chunk %d is not valid UTF-8", chunk.Index)
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), size)
		rebuilt.WriteString(chunk.Text)
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestChunker_Chunk_MultiByteOverlap(t *testing.T) {
	size, overlap := 30, 8
	c := New(WithChunkSize(size), WithOverlap(overlap))

	text := strings.Repeat("عليك إدخال إجمالي الأجور والضرائب المقتطعة هنا. ", 10)
	text = strings.TrimSpace(text)
	chunks := c.Chunk("doc-1", []domain.Page{{Number: 1, Text: text}})
	require.Greater(t, len(chunks), 1)

	// Stripping the overlap prefix, counted in runes, must reconstruct
	// the page exactly.
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0].Text)
	for _, chunk := range chunks[1:] {
		assert.True(t, utf8.ValidString(chunk.Text), "chunk %d is not valid UTF-8", chunk.Index)
		rebuilt.WriteString(string([]rune(chunk.Text)[overlap:]))
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestNew_OverlapLargerThanSizeIsReduced(t *testing.T) {
	c := New(WithChunkSize(100), WithOverlap(200))

	assert.Equal(t, 25, c.overlap)
}
