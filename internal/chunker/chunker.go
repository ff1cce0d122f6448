// Package chunker splits text into overlapping token windows for search indexing.
package chunker

import (
	"strings"
	"unicode"
)

const (
	DefaultTokens  = 400
	DefaultOverlap = 80
)

// Options configures chunking behavior.
type Options struct {
	Tokens    int
	Overlap   int
	Tokenizer Tokenizer
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		Tokens:    DefaultTokens,
		Overlap:   DefaultOverlap,
		Tokenizer: WordTokenizer{},
	}
}

// ChunkResult represents a chunk with its position in the original text.
// TokenStart/TokenEnd index the tokenizer output; offsets are byte offsets.
type ChunkResult struct {
	Text        string
	TokenStart  int
	TokenEnd    int
	TokenCount  int
	OffsetStart int
	OffsetEnd   int
	StartLine   int
	EndLine     int
}

// Resolve fills defaults and clamps overlap to [0, Tokens-1].
func (o Options) Resolve() Options {
	if o.Tokens <= 0 {
		o.Tokens = DefaultTokens
	}
	if o.Tokenizer == nil {
		o.Tokenizer = WordTokenizer{}
	}
	switch {
	case o.Overlap < 0:
		o.Overlap = 0
	case o.Overlap >= o.Tokens:
		o.Overlap = o.Tokens - 1
	}
	return o
}

// Chunk splits text into windows of at most opts.Tokens tokens, each window
// starting opts.Tokens-opts.Overlap tokens after the previous one. The last
// window is the first one that reaches the end of the text, so it may be
// shorter. Empty text yields nil.
func Chunk(text string, opts Options) []ChunkResult {
	opts = opts.Resolve()
	if text == "" {
		return nil
	}

	tokens := opts.Tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	step := opts.Tokens - opts.Overlap
	var results []ChunkResult
	for start := 0; ; start += step {
		end := min(start+opts.Tokens, len(tokens))
		results = append(results, window(text, tokens, start, end))
		if end == len(tokens) {
			break
		}
	}
	return results
}

func window(text string, tokens []Token, start, end int) ChunkResult {
	from, to := tokens[start].Start, tokens[end-1].End
	startLine := strings.Count(text[:from], "\n") + 1
	return ChunkResult{
		Text:        text[from:to],
		TokenStart:  start,
		TokenEnd:    end,
		TokenCount:  end - start,
		OffsetStart: from,
		OffsetEnd:   to,
		StartLine:   startLine,
		EndLine:     startLine + strings.Count(strings.TrimRightFunc(text[from:to], unicode.IsSpace), "\n"),
	}
}

// Reassemble joins chunks back into the original text by dropping, from
// every chunk after the first, the bytes it shares with its predecessor.
func Reassemble(chunks []ChunkResult) string {
	var b strings.Builder
	covered := 0
	for _, c := range chunks {
		if c.OffsetEnd <= covered {
			continue
		}
		skip := max(0, covered-c.OffsetStart)
		b.WriteString(c.Text[skip:])
		covered = c.OffsetEnd
	}
	return b.String()
}
