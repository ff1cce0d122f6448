package chunker

import (
	"fmt"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// Token is one unit of the tokenizer output. Start/End are byte offsets into
// the tokenized text; the tokens of a text cover it contiguously.
type Token struct {
	Start int
	End   int
}

// Tokenizer splits text into contiguous tokens.
type Tokenizer interface {
	Tokenize(text string) []Token
}

// WordTokenizer treats every whitespace-delimited word as a token. Trailing
// whitespace belongs to the word before it; leading whitespace to the first word.
type WordTokenizer struct{}

func (WordTokenizer) Tokenize(text string) []Token {
	var tokens []Token
	start := 0
	seenWord, prevSpace := false, false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && prevSpace && seenWord {
			tokens = append(tokens, Token{Start: start, End: i})
			start = i
		}
		if !space {
			seenWord = true
		}
		prevSpace = space
	}
	if seenWord {
		tokens = append(tokens, Token{Start: start, End: len(text)})
	}
	return tokens
}

// TiktokenTokenizer uses a BPE encoding. The encoding is loaded lazily on
// first use and may download vocabulary data; when it cannot be loaded the
// tokenizer falls back to words.
type TiktokenTokenizer struct {
	Encoding string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktokenTokenizer returns a tokenizer for the named encoding
// (cl100k_base when empty).
func NewTiktokenTokenizer(encoding string) *TiktokenTokenizer {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenTokenizer{Encoding: encoding}
}

func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.Encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.Encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Err reports why the encoding could not be loaded, if it could not.
func (t *TiktokenTokenizer) Err() error { return t.init() }

func (t *TiktokenTokenizer) Tokenize(text string) []Token {
	if err := t.init(); err != nil {
		return WordTokenizer{}.Tokenize(text)
	}
	ids := t.enc.Encode(text, nil, nil)
	tokens := make([]Token, 0, len(ids))
	pos := 0
	for _, id := range ids {
		n := len(t.enc.Decode([]int{id}))
		if n == 0 {
			continue
		}
		end := min(pos+n, len(text))
		tokens = append(tokens, Token{Start: pos, End: end})
		pos = end
	}
	if pos < len(text) {
		if n := len(tokens); n > 0 {
			tokens[n-1].End = len(text)
		} else {
			tokens = append(tokens, Token{Start: 0, End: len(text)})
		}
	}
	return tokens
}

// Count returns the number of tokens in text.
func Count(t Tokenizer, text string) int {
	return len(t.Tokenize(text))
}
