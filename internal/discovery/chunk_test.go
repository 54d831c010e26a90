package discovery

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestChunk_ShortText(t *testing.T) {
	assert.Equal(t, []string{"one court"}, Chunk("  one court  ", 100))
	assert.Nil(t, Chunk("   ", 100))
}

func TestChunk_PrefersParagraphBreak(t *testing.T) {
	got := Chunk("aaaa bbbb\n\ncccc dddd", 12)
	assert.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, got)
}

func TestChunk_HardCut(t *testing.T) {
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, Chunk("abcdefghij", 4))
}

func TestChunk_RuneSafe(t *testing.T) {
	got := Chunk("ééééé", 2)
	assert.Equal(t, []string{"éé", "éé", "é"}, got)
	for _, c := range got {
		assert.True(t, utf8.ValidString(c))
	}
}

func TestChunk_DefaultSize(t *testing.T) {
	text := strings.Repeat("Superior Court of Example County.\n", 400)
	chunks := Chunk(text, 0)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), DefaultChunkSize)
		assert.True(t, strings.HasSuffix(c, "."), "chunks end on a line boundary")
	}
}
