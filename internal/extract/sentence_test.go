package extract

import (
	"strings"
	"testing"
)

func TestSentenceSpan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		caret     int // -1 means end of text
		wantText  string
		wantStart int
		wantEnd   int
	}{
		{
			name:      "caret after terminator includes that sentence",
			text:      "First sentence. Second sentence.",
			caret:     -1,
			wantText:  "Second sentence.",
			wantStart: 16, wantEnd: 32,
		},
		{
			name:      "no trailing terminator",
			text:      "First sentence. Second sentence without punctuation",
			caret:     -1,
			wantText:  "Second sentence without punctuation",
			wantStart: 16, wantEnd: 51,
		},
		{
			name:      "leading whitespace skipped",
			text:      "First sentence.   Second sentence",
			caret:     -1,
			wantText:  "Second sentence",
			wantStart: 18, wantEnd: 33,
		},
		{
			name:      "single sentence from field start",
			text:      "I has a apple",
			caret:     -1,
			wantText:  "I has a apple",
			wantStart: 0, wantEnd: 13,
		},
		{
			name:      "caret mid-text ends span at caret",
			text:      "First sentence. Second sentence. Third sentence.",
			caret:     31,
			wantText:  "Second sentence",
			wantStart: 16, wantEnd: 31,
		},
		{
			name:      "trailing whitespace before caret excluded",
			text:      "Is it teh one?  ",
			caret:     -1,
			wantText:  "Is it teh one?",
			wantStart: 0, wantEnd: 14,
		},
		{
			name:      "exclamation and question terminators",
			text:      "Wow! Realy? Thsi is it",
			caret:     -1,
			wantText:  "Thsi is it",
			wantStart: 12, wantEnd: 22,
		},
		{
			name:      "caret at start",
			text:      "Hello.",
			caret:     0,
			wantText:  "",
			wantStart: 0, wantEnd: 0,
		},
		{
			name:      "only whitespace",
			text:      "   ",
			caret:     -1,
			wantText:  "",
			wantStart: 0, wantEnd: 0,
		},
		{
			name:      "multibyte runes counted as one",
			text:      "Ça va. Naïve façade",
			caret:     -1,
			wantText:  "Naïve façade",
			wantStart: 7, wantEnd: 19,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runes := []rune(tt.text)
			caret := tt.caret
			if caret < 0 {
				caret = len(runes)
			}
			start, end := SentenceSpan(runes, caret, DefaultMaxSpan)
			var got string
			if start < end {
				got = string(runes[start:end])
			}
			if got != tt.wantText {
				t.Errorf("text = %q, want %q", got, tt.wantText)
			}
			if tt.wantText != "" && (start != tt.wantStart || end != tt.wantEnd) {
				t.Errorf("range = %d..%d, want %d..%d", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestSentenceSpan_Capped(t *testing.T) {
	t.Parallel()
	// 400 runes with no terminator: the span must be capped and start on a
	// word boundary.
	text := []rune(strings.Repeat("abcd ", 80))
	start, end := SentenceSpan(text, len(text), DefaultMaxSpan)
	if n := end - start; n > DefaultMaxSpan {
		t.Fatalf("span length = %d, want <= %d", n, DefaultMaxSpan)
	}
	if start > 0 && text[start-1] != ' ' {
		t.Errorf("span starts mid-word at %d (%q)", start, string(text[start-1:start+1]))
	}
	if end != len(text)-1 {
		t.Errorf("end = %d, want %d (trailing space excluded)", end, len(text)-1)
	}
}

func TestSentenceSpan_CapStopsAtTerminatorWithinWindow(t *testing.T) {
	t.Parallel()
	text := []rune(strings.Repeat("x", 500) + ". short tail")
	start, end := SentenceSpan(text, len(text), DefaultMaxSpan)
	if got := string(text[start:end]); got != "short tail" {
		t.Fatalf("span = %q, want %q", got, "short tail")
	}
}

func TestSentenceSpan_CapOnWordBoundary(t *testing.T) {
	t.Parallel()
	sentence := "Hello " + strings.Repeat("b", DefaultMaxSpan-6)

	tests := []struct {
		name   string
		prefix string
	}{
		{"space before cap", "Hi. "},
		{"terminator before cap", "Hi."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			text := []rune(tt.prefix + sentence)
			start, end := SentenceSpan(text, len(text), DefaultMaxSpan)
			if got := string(text[start:end]); got != sentence {
				t.Errorf("span = %q (%d runes), want the whole %d-rune sentence", got, end-start, DefaultMaxSpan)
			}
		})
	}
}
