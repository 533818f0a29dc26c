package knowledge

import (
	"fmt"
	"strings"
)

// CleanText normalizes raw document text before chunking: all whitespace runs
// collapse to a single space and the result is trimmed. Chunk offsets are
// relative to the cleaned text, so cleaning must happen exactly once, at
// ingestion.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// tokenSpan is a whitespace-delimited token's rune range within the text.
type tokenSpan struct {
	start, end int
}

func tokenize(r []rune) []tokenSpan {
	var spans []tokenSpan
	i := 0
	for i < len(r) {
		for i < len(r) && isSpace(r[i]) {
			i++
		}
		if i >= len(r) {
			break
		}
		start := i
		for i < len(r) && !isSpace(r[i]) {
			i++
		}
		spans = append(spans, tokenSpan{start: start, end: i})
	}
	return spans
}

func isSpace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Split divides text into chunks of at most maxTokens whitespace-delimited
// tokens, with consecutive chunks sharing exactly overlapTokens of trailing and
// leading content. It is a pure function: identical input and parameters yield
// identical boundaries.
//
// Window ends prefer a sentence boundary when one falls in the back half of the
// window, so retrieval units tend to end on complete thoughts.
//
// Constraints: maxTokens >= 1 and 0 <= overlapTokens < maxTokens, otherwise
// ErrInvalidChunking. Empty or all-whitespace text yields an empty slice, not
// an error. Returned chunks carry text, sequence index, and rune offsets; the
// caller assigns IDs and the owning document.
func Split(text string, maxTokens, overlapTokens int) ([]Chunk, error) {
	if maxTokens < 1 || overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, fmt.Errorf("%w: maxTokens=%d overlapTokens=%d",
			ErrInvalidChunking, maxTokens, overlapTokens)
	}

	r := []rune(text)
	toks := tokenize(r)
	if len(toks) == 0 {
		return []Chunk{}, nil
	}

	var chunks []Chunk
	start := 0
	for seq := 0; ; seq++ {
		end := start + maxTokens
		if end >= len(toks) {
			end = len(toks)
		} else if adj := sentenceEnd(r, toks, start, end, maxTokens); adj-overlapTokens > start {
			end = adj
		}

		chunks = append(chunks, Chunk{
			Text:          string(r[toks[start].start:toks[end-1].end]),
			SequenceIndex: seq,
			StartOffset:   toks[start].start,
			EndOffset:     toks[end-1].end,
		})

		if end == len(toks) {
			return chunks, nil
		}
		start = end - overlapTokens
	}
}

// sentenceEnd looks backward from the window end for a token that closes a
// sentence, stopping at the window's midpoint. Returns the adjusted end, or
// end unchanged when no boundary is found.
func sentenceEnd(r []rune, toks []tokenSpan, start, end, maxTokens int) int {
	mid := start + maxTokens/2
	for i := end - 1; i >= mid && i > start; i-- {
		last := r[toks[i].end-1]
		if last == '.' || last == '!' || last == '?' {
			return i + 1
		}
	}
	return end
}
