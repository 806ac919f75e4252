package embedding

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
	tokenUNK = "[UNK]"
	tokenPAD = "[PAD]"

	maxWordRunes = 100
)

// WordPieceTokenizer implements the uncased BERT tokenizer used by
// sentence-transformer MiniLM models.
type WordPieceTokenizer struct {
	vocab map[string]int64
	clsID int64
	sepID int64
	unkID int64
	padID int64

	stripAccents transform.Transformer
}

func LoadVocab(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab failed: %w", err)
	}
	defer f.Close()
	return NewWordPieceTokenizer(f)
}

// NewWordPieceTokenizer reads a vocab with one token per line; the line
// number is the token id.
func NewWordPieceTokenizer(r io.Reader) (*WordPieceTokenizer, error) {
	vocab := make(map[string]int64)
	sc := bufio.NewScanner(r)
	var id int64
	for sc.Scan() {
		vocab[strings.TrimRight(sc.Text(), "\r")] = id
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocab failed: %w", err)
	}

	t := &WordPieceTokenizer{
		vocab:        vocab,
		stripAccents: transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
	}
	for tok, dst := range map[string]*int64{tokenCLS: &t.clsID, tokenSEP: &t.sepID, tokenUNK: &t.unkID, tokenPAD: &t.padID} {
		v, ok := vocab[tok]
		if !ok {
			return nil, fmt.Errorf("vocab missing special token %s", tok)
		}
		*dst = v
	}
	return t, nil
}

// Encode returns [CLS] tokens [SEP] ids, truncated to maxLen.
func (t *WordPieceTokenizer) Encode(text string, maxLen int) []int64 {
	ids := []int64{t.clsID}
	for _, word := range t.basicTokens(text) {
		for _, id := range t.wordPiece(word) {
			if len(ids) >= maxLen-1 {
				return append(ids, t.sepID)
			}
			ids = append(ids, id)
		}
	}
	return append(ids, t.sepID)
}

func (t *WordPieceTokenizer) PadID() int64 { return t.padID }

func (t *WordPieceTokenizer) basicTokens(text string) []string {
	text = strings.ToLower(text)
	if s, _, err := transform.String(t.stripAccents, text); err == nil {
		text = s
	}

	var (
		words []string
		cur   strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case r == 0 || r == unicode.ReplacementChar || (unicode.IsControl(r) && !unicode.IsSpace(r)):
			continue
		case unicode.IsSpace(r):
			flush()
		case isPunct(r) || isCJK(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

func (t *WordPieceTokenizer) wordPiece(word string) []int64 {
	rs := []rune(word)
	if len(rs) > maxWordRunes {
		return []int64{t.unkID}
	}

	var ids []int64
	for start := 0; start < len(rs); {
		end := len(rs)
		found := int64(-1)
		for end > start {
			piece := string(rs[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				found = id
				break
			}
			end--
		}
		if found < 0 {
			return []int64{t.unkID}
		}
		ids = append(ids, found)
		start = end
	}
	return ids
}

func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r)
}
