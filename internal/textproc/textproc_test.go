package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainText_RawMarkdown(t *testing.T) {
	got := ExtractPlainText("Hello   world\n\n\n\nBye")
	assert.Equal(t, "Hello world\n\nBye", got)
}

func TestExtractPlainText_StructuredTree(t *testing.T) {
	doc := `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Hello"},{"type":"hardBreak"},{"type":"text","text":"world"}]}]}`
	got := ExtractPlainText(doc)
	assert.Equal(t, "Hello\nworld", got)
}

func TestExtractPlainText_Empty(t *testing.T) {
	assert.Equal(t, "", ExtractPlainText("   "))
}

func TestChunkDocument_EmptyBody(t *testing.T) {
	chunks := ChunkDocument("My Title", "")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "My Title", chunks[0].Text)
}

func TestChunkDocument_FitsInSingleChunk(t *testing.T) {
	chunks := ChunkDocument("Title", "Short body text.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Title\n\nShort body text.", chunks[0].Text)
}

func TestChunkDocument_PacksMultipleParagraphs(t *testing.T) {
	para := strings.Repeat("word ", 100) // ~500 chars
	body := para + "\n\n" + para + "\n\n" + para
	chunks := ChunkDocument("T", body)
	require.True(t, len(chunks) >= 2, "expected multiple chunks, got %d", len(chunks))
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestChunkDocument_IndicesContiguousFromZero(t *testing.T) {
	para := strings.Repeat("x", 700)
	body := strings.Join([]string{para, para, para, para}, "\n\n")
	chunks := ChunkDocument("Title", body)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestChunkDocument_OverlapCarriesContext(t *testing.T) {
	para1 := strings.Repeat("a", 700)
	para2 := strings.Repeat("b", 700)
	chunks := ChunkDocument("", para1+"\n\n"+para2)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0].Text, strings.Repeat("a", 200)) || strings.Contains(chunks[0].Text, "a"))
	assert.True(t, strings.HasPrefix(chunks[1].Text, strings.Repeat("a", 1)))
}

func TestFormatQuery_Trims(t *testing.T) {
	assert.Equal(t, "hello world", FormatQuery("  hello world  \n"))
}
