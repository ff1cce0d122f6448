package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestChunk_EmptyInput(t *testing.T) {
	assert.Nil(t, Chunk("", DefaultOptions()))
	assert.Nil(t, Chunk("   \n\t", DefaultOptions()))
}

func TestChunk_ShortContent(t *testing.T) {
	text := "This is a short memory."
	result := Chunk(text, DefaultOptions())
	require.Len(t, result, 1)
	assert.Equal(t, text, result[0].Text)
	assert.Equal(t, 5, result[0].TokenCount)
	assert.Equal(t, 1, result[0].StartLine)
	assert.Equal(t, 1, result[0].EndLine)
}

func TestChunk_ThousandTokens(t *testing.T) {
	result := Chunk(words(1000), Options{Tokens: 400, Overlap: 80})
	require.Len(t, result, 3)

	var sizes, fresh []int
	for i, c := range result {
		sizes = append(sizes, c.TokenCount)
		if i == 0 {
			fresh = append(fresh, c.TokenCount)
			continue
		}
		assert.Equal(t, 80, result[i-1].TokenEnd-c.TokenStart, "overlap before chunk %d", i)
		fresh = append(fresh, c.TokenEnd-result[i-1].TokenEnd)
	}
	assert.Equal(t, []int{400, 400, 360}, sizes)
	assert.Equal(t, []int{400, 320, 280}, fresh)
}

func TestChunk_OverlapClamped(t *testing.T) {
	text := words(37)
	clamped := Chunk(text, Options{Tokens: 10, Overlap: 15})
	explicit := Chunk(text, Options{Tokens: 10, Overlap: 9})
	assert.Equal(t, explicit, clamped)
	for i := 1; i < len(clamped); i++ {
		assert.Equal(t, 1, clamped[i].TokenStart-clamped[i-1].TokenStart)
	}

	negative := Chunk(text, Options{Tokens: 10, Overlap: -4})
	assert.Equal(t, Chunk(text, Options{Tokens: 10, Overlap: 0}), negative)
}

func TestChunk_TokenBound(t *testing.T) {
	for _, c := range Chunk(words(523), Options{Tokens: 64, Overlap: 16}) {
		assert.LessOrEqual(t, c.TokenCount, 64)
	}
}

func TestChunk_Deterministic(t *testing.T) {
	text := words(250)
	assert.Equal(t, Chunk(text, Options{Tokens: 40, Overlap: 7}), Chunk(text, Options{Tokens: 40, Overlap: 7}))
}

func TestChunk_LineNumbers(t *testing.T) {
	text := "alpha beta\ngamma delta\nepsilon zeta\neta theta"
	result := Chunk(text, Options{Tokens: 4, Overlap: 0})
	require.Len(t, result, 2)
	assert.Equal(t, 1, result[0].StartLine)
	assert.Equal(t, 2, result[0].EndLine)
	assert.Equal(t, 3, result[1].StartLine)
	assert.Equal(t, 4, result[1].EndLine)
}

func TestWordTokenizer_CoversText(t *testing.T) {
	text := "  leading\tand  trailing \n"
	tokens := WordTokenizer{}.Tokenize(text)
	require.Len(t, tokens, 3)
	assert.Equal(t, 0, tokens[0].Start)
	assert.Equal(t, len(text), tokens[2].End)
	for i := 1; i < len(tokens); i++ {
		assert.Equal(t, tokens[i-1].End, tokens[i].Start)
	}
}

func TestChunk_RoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ws := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z0-9éß]{1,8}`), 1, 300).Draw(rt, "words")
		seps := rapid.SliceOfN(rapid.SampledFrom([]string{" ", "  ", "\n", "\t", " \n\n"}), len(ws), len(ws)).Draw(rt, "seps")
		var b strings.Builder
		for i, w := range ws {
			b.WriteString(w)
			b.WriteString(seps[i])
		}
		text := b.String()
		tokens := rapid.IntRange(1, 50).Draw(rt, "tokens")
		overlap := rapid.IntRange(-5, 80).Draw(rt, "overlap")

		chunks := Chunk(text, Options{Tokens: tokens, Overlap: overlap})
		if got := Reassemble(chunks); got != text {
			rt.Fatalf("reassembled text differs:\n got %q\nwant %q", got, text)
		}

		// token-level: dropping each chunk's overlapping prefix yields 0..n-1
		next := 0
		for i, c := range chunks {
			if c.TokenCount > tokens {
				rt.Fatalf("chunk %d has %d tokens, limit %d", i, c.TokenCount, tokens)
			}
			for idx := c.TokenStart; idx < c.TokenEnd; idx++ {
				if idx < next {
					continue
				}
				if idx != next {
					rt.Fatalf("gap at token %d (chunk %d)", next, i)
				}
				next++
			}
		}
		if next != len(ws) {
			rt.Fatalf("covered %d tokens, want %d", next, len(ws))
		}
	})
}
