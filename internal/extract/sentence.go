package extract

import "unicode"

// DefaultMaxSpan is the largest number of runes the sentence heuristic
// returns. It bounds backend latency and the damage a bad correction can do.
const DefaultMaxSpan = 300

func isTerminator(r rune) bool { return r == '.' || r == '!' || r == '?' }

// SentenceSpan returns the span of text ending at caret that should be
// corrected when the user has no selection.
//
// The span extends backward from caret to just after the nearest preceding
// sentence terminator ('.', '!', '?') or to the start of the text, and never
// exceeds maxSpan runes. A terminator immediately before the caret belongs to
// the sentence being corrected. Whitespace at either end is excluded. When the
// cap cuts into a sentence the span starts at the next word boundary.
//
// The returned range may be empty when there is nothing but whitespace
// before the caret.
func SentenceSpan(text []rune, caret, maxSpan int) (start, end int) {
	if maxSpan <= 0 {
		maxSpan = DefaultMaxSpan
	}
	caret = min(max(caret, 0), len(text))

	end = caret
	for end > 0 && unicode.IsSpace(text[end-1]) {
		end--
	}
	from := end
	if from > 0 && isTerminator(text[from-1]) {
		from--
	}

	limit := max(end-maxSpan, 0)
	start = limit
	// The cap only cuts a word when the rune before it belongs to that word.
	capped := limit > 0 && !unicode.IsSpace(text[limit-1]) && !isTerminator(text[limit-1])
	for i := from - 1; i >= limit; i-- {
		if isTerminator(text[i]) {
			start = i + 1
			capped = false
			break
		}
	}
	if capped {
		// Don't start mid-word: skip to the first whitespace after the cut.
		for i := start; i < end; i++ {
			if unicode.IsSpace(text[i]) {
				start = i
				break
			}
		}
	}
	for start < end && unicode.IsSpace(text[start]) {
		start++
	}
	return start, end
}
