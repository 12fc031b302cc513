package chunker

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentenceChunkerOverlap(t *testing.T) {
	c := NewSentenceChunker(2, 1)
	text := "One is first. Two is second! Three is third? Four ends it."
	chunks, err := c.Chunk(doc(text))
	require.NoError(t, err)

	want := []string{
		"One is first. Two is second!",
		"Two is second! Three is third?",
		"Three is third? Four ends it.",
	}
	require.Len(t, chunks, len(want))
	for i, ch := range chunks {
		assert.Equal(t, want[i], ch.Text)
		assert.Equal(t, ch.Text, runeSlice(text, ch.Offset, utf8.RuneCountInString(ch.Text)))
	}
}

func TestSentenceChunkerTrailingText(t *testing.T) {
	c := NewSentenceChunker(5, 0)
	chunks, err := c.Chunk(doc("Done. and a tail without a stop"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Done. and a tail without a stop", chunks[0].Text)
}

func TestSentenceChunkerEmpty(t *testing.T) {
	c := NewSentenceChunker(0, -1)
	chunks, err := c.Chunk(doc("   "))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
