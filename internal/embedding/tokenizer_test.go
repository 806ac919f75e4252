package embedding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVocab = `[PAD]
[UNK]
[CLS]
[SEP]
the
cafe
un
##aff
##able
,
!
hello
world
`

func newTestTokenizer(t *testing.T) *WordPieceTokenizer {
	t.Helper()
	tok, err := NewWordPieceTokenizer(strings.NewReader(testVocab))
	require.NoError(t, err)
	return tok
}

func TestWordPieceEncode(t *testing.T) {
	tok := newTestTokenizer(t)

	// [CLS] hello , world ! [SEP]
	assert.Equal(t, []int64{2, 11, 9, 12, 10, 3}, tok.Encode("Hello, WORLD!", 32))
	// un ##aff ##able
	assert.Equal(t, []int64{2, 6, 7, 8, 3}, tok.Encode("unaffable", 32))
	// accents are stripped before lookup
	assert.Equal(t, []int64{2, 5, 3}, tok.Encode("Café", 32))
	assert.Equal(t, []int64{2, 1, 3}, tok.Encode("zebra", 32))
	assert.Equal(t, int64(0), tok.PadID())
}

func TestWordPieceTruncates(t *testing.T) {
	tok := newTestTokenizer(t)
	ids := tok.Encode(strings.Repeat("the ", 50), 8)
	require.Len(t, ids, 8)
	assert.Equal(t, int64(2), ids[0])
	assert.Equal(t, int64(3), ids[7])
}

func TestWordPieceMissingSpecialToken(t *testing.T) {
	_, err := NewWordPieceTokenizer(strings.NewReader("hello\nworld\n"))
	assert.Error(t, err)
}

func TestMeanPool(t *testing.T) {
	hidden := []float32{
		3, 0,
		1, 4,
		100, 100, // masked out
	}
	v := meanPool(hidden, []int64{1, 1, 0}, 2)
	// mean (2, 2) normalized
	assert.InDelta(t, 0.7071, v[0], 1e-3)
	assert.InDelta(t, 0.7071, v[1], 1e-3)
}
