package ondevice

import (
	"strings"
	"unicode/utf8"
)

// RuneTokenizer maps each rune to its code point. Decoding skips the padding
// id 0 and ids that are not valid runes.
type RuneTokenizer struct{}

var _ Tokenizer = RuneTokenizer{}

// Encode returns one token per rune. Whitespace-only text encodes to nothing.
func (RuneTokenizer) Encode(text string) ([]uint32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	out := make([]uint32, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, uint32(r))
	}
	return out, nil
}

// Decode converts tokens back to text.
func (RuneTokenizer) Decode(tokens []uint32) (string, error) {
	var sb strings.Builder
	sb.Grow(len(tokens))
	for _, t := range tokens {
		if t == 0 || t > utf8.MaxRune {
			continue
		}
		r := rune(t)
		if !utf8.ValidRune(r) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}
