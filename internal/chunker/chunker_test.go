package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkEmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t  \n"} {
		chunks, err := Chunk(text, 100, 10)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestChunkShortText(t *testing.T) {
	chunks, err := Chunk("Hello world", 512, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello world"}, chunks)
}

func TestChunkExactSizeIsOneChunk(t *testing.T) {
	text := strings.Repeat("ABCDEFGHIJ", 5)
	chunks, err := Chunk(text, 50, 10)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestChunkInvalidParameters(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 100, 100},
		{"overlap larger", 100, 150},
		{"negative overlap", 100, -1},
		{"zero size", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, text := range []string{"", "some text", strings.Repeat("x", 300)} {
				_, err := Chunk(text, tc.size, tc.overlap)
				assert.ErrorIs(t, err, ErrInvalidParameter)
			}
			_, newErr := New(tc.size, tc.overlap)
			require.Error(t, newErr)
			_, chunkErr := Chunk("some text", tc.size, tc.overlap)
			assert.Equal(t, chunkErr.Error(), newErr.Error())
		})
	}
}

func TestChunkThousandCharacters(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	text := b.String()

	chunks, err := Chunk(text, 100, 10)
	require.NoError(t, err)

	// windows start at 0, 90, ..., 900; the window at 900 reaches the end.
	require.Len(t, chunks, 11)
	for _, c := range chunks {
		assert.Len(t, c, 100)
	}
	assert.Equal(t, chunks[0][90:], chunks[1][:10])
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
}

func TestChunkShorterTail(t *testing.T) {
	text := strings.Repeat("z", 1050)
	chunks, err := Chunk(text, 100, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 12)
	for _, c := range chunks[:11] {
		assert.Len(t, c, 100)
	}
	assert.Len(t, chunks[11], 60)
}

func TestChunkOverlapAndCoverage(t *testing.T) {
	cases := []struct {
		text          string
		size, overlap int
	}{
		{strings.Repeat("ABCDEFGHIJKLMNOPQRSTUVWXYZ", 10), 50, 10},
		{strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30), 100, 20},
		{strings.Repeat("0123456789", 37), 7, 3},
		{strings.Repeat("héllo wörld ", 40), 33, 5},
	}
	for _, tc := range cases {
		chunks, err := Chunk(tc.text, tc.size, tc.overlap)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		var rebuilt []rune
		for i, c := range chunks {
			r := []rune(c)
			if i == 0 {
				rebuilt = append(rebuilt, r...)
				continue
			}
			prev := []rune(chunks[i-1])
			assert.Equal(t, string(prev[len(prev)-tc.overlap:]), string(r[:tc.overlap]))
			rebuilt = append(rebuilt, r[tc.overlap:]...)
		}
		assert.Equal(t, tc.text, string(rebuilt))
	}
}

func TestChunkNoOverlapConcatenates(t *testing.T) {
	text := strings.Repeat("ABCDEFGHIJ", 7) + "tail"
	chunks, err := Chunk(text, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkDeterministic(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 50)
	a, err := Chunk(text, DefaultChunkSize, DefaultOverlap)
	require.NoError(t, err)
	b, err := Chunk(text, DefaultChunkSize, DefaultOverlap)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewRejectsBadWindow(t *testing.T) {
	_, err := New(50, 50)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	c, err := New(10, 2)
	require.NoError(t, err)
	chunks, err := c.Split("abcdefghijklmnop")
	require.NoError(t, err)
	assert.Equal(t, []string{"abcdefghij", "ijklmnop"}, chunks)
}
