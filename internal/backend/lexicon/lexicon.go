// Package lexicon implements a dictionary spelling model for the on-device
// backend.
//
// The model is a YAML file listing known words (most frequent first) and an
// optional table of common misspellings:
//
//	words: [the, a, have, an, apple, ...]
//	corrections:
//	  teh: the
//	  recieve: receive
//
// Unknown words are corrected in two stages, as in a phonetic entity matcher:
//
//  1. Phonetic candidates: dictionary words whose Double Metaphone codes
//     overlap the word's codes are ranked by Jaro-Winkler similarity and
//     accepted above the phonetic threshold.
//
//  2. Fuzzy fallback: when no phonetic candidate qualifies, every dictionary
//     word sharing the first letter is ranked by Jaro-Winkler and accepted
//     above the stricter fuzzy threshold.
//
// Ties are broken by Levenshtein distance and then by dictionary rank. Words
// with no acceptable candidate are left unchanged, as are numbers and words
// shorter than three letters.
package lexicon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/antzucaro/matchr"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/typofix/internal/backend/ondevice"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90

	minWordLen = 3
)

// file is the on-disk model format.
type file struct {
	Words       []string          `yaml:"words"`
	Corrections map[string]string `yaml:"corrections"`
}

// index is the loaded, immutable model.
type index struct {
	rank        map[string]int
	words       []string
	corrections map[string]string
	byCode      map[string][]string
	byInitial   map[rune][]string
}

// Option configures a [Model].
type Option func(*Model)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matched candidate. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Model) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for the fuzzy
// fallback. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Model) { m.fuzzyThreshold = threshold }
}

// WithSource replaces the function that opens the model file. Used by tests
// and for models embedded in the binary.
func WithSource(open func() (io.ReadCloser, error)) Option {
	return func(m *Model) { m.open = open }
}

// Model is a dictionary spelling model. It implements [ondevice.Model] and
// [ondevice.TokenizerProvider]; all methods are safe for concurrent use once
// loaded.
type Model struct {
	path              string
	open              func() (io.ReadCloser, error)
	phoneticThreshold float64
	fuzzyThreshold    float64

	idx atomic.Pointer[index]
}

var (
	_ ondevice.Model             = (*Model)(nil)
	_ ondevice.TokenizerProvider = (*Model)(nil)
)

// New returns an unloaded model reading path.
func New(path string, opts ...Option) *Model {
	m := &Model{
		path:              path,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	m.open = func() (io.ReadCloser, error) { return os.Open(m.path) }
	for _, o := range opts {
		o(m)
	}
	return m
}

// Load reads and indexes the model file.
func (m *Model) Load(ctx context.Context) error {
	rc, err := m.open()
	if err != nil {
		return fmt.Errorf("lexicon: open %q: %w", m.path, err)
	}
	defer rc.Close()

	var f file
	dec := yaml.NewDecoder(rc)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("lexicon: %q: empty model", m.path)
		}
		return fmt.Errorf("lexicon: decode %q: %w", m.path, err)
	}
	if len(f.Words) == 0 {
		return fmt.Errorf("lexicon: %q: model has no words", m.path)
	}

	idx := &index{
		rank:        make(map[string]int, len(f.Words)),
		corrections: make(map[string]string, len(f.Corrections)),
		byCode:      make(map[string][]string),
		byInitial:   make(map[rune][]string),
	}
	for i, w := range f.Words {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("lexicon: load: %w", err)
			}
		}
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := idx.rank[w]; dup {
			continue
		}
		idx.rank[w] = len(idx.words)
		idx.words = append(idx.words, w)
		for _, code := range codes(w) {
			idx.byCode[code] = append(idx.byCode[code], w)
		}
		initial := []rune(w)[0]
		idx.byInitial[initial] = append(idx.byInitial[initial], w)
	}
	for wrong, right := range f.Corrections {
		idx.corrections[strings.ToLower(strings.TrimSpace(wrong))] = strings.TrimSpace(right)
	}
	m.idx.Store(idx)
	return nil
}

// IsReady reports whether Load has completed successfully.
func (m *Model) IsReady() bool { return m.idx.Load() != nil }

// Tokenizer returns the rune tokenizer the model operates on.
func (m *Model) Tokenizer() ondevice.Tokenizer { return ondevice.RuneTokenizer{} }

// Len returns the number of dictionary words.
func (m *Model) Len() int {
	if idx := m.idx.Load(); idx != nil {
		return len(idx.words)
	}
	return 0
}

// Infer corrects the text encoded in tokens (one token per rune).
func (m *Model) Infer(ctx context.Context, tokens []uint32) ([]uint32, error) {
	idx := m.idx.Load()
	if idx == nil {
		return nil, errors.New("lexicon: model not loaded")
	}
	runes := make([]rune, len(tokens))
	for i, t := range tokens {
		runes[i] = rune(t)
	}

	out := make([]rune, 0, len(runes))
	for i := 0; i < len(runes); {
		if !unicode.IsLetter(runes[i]) {
			out = append(out, runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && (unicode.IsLetter(runes[j]) || runes[j] == '\'') {
			j++
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("lexicon: infer: %w", err)
		}
		out = append(out, []rune(m.correctWord(idx, string(runes[i:j])))...)
		i = j
	}

	res := make([]uint32, len(out))
	for i, r := range out {
		res[i] = uint32(r)
	}
	return res, nil
}

// Suggest returns the correction for a single word, or the word itself.
func (m *Model) Suggest(word string) string {
	idx := m.idx.Load()
	if idx == nil {
		return word
	}
	return m.correctWord(idx, word)
}

func (m *Model) correctWord(idx *index, word string) string {
	lower := strings.ToLower(word)
	if _, known := idx.rank[lower]; known {
		return word
	}
	if fix, ok := idx.corrections[lower]; ok {
		return matchCase(word, fix)
	}
	if len([]rune(lower)) < minWordLen {
		return word
	}
	if best, ok := m.bestCandidate(idx, lower); ok {
		return matchCase(word, best)
	}
	return word
}

type candidate struct {
	word  string
	score float64
	dist  int
	rank  int
}

func (c candidate) better(o candidate) bool {
	if c.score != o.score {
		return c.score > o.score
	}
	if c.dist != o.dist {
		return c.dist < o.dist
	}
	return c.rank < o.rank
}

func (m *Model) bestCandidate(idx *index, word string) (string, bool) {
	seen := make(map[string]struct{})
	var best candidate
	for _, code := range codes(word) {
		for _, w := range idx.byCode[code] {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			c := score(idx, word, w)
			if c.score >= m.phoneticThreshold && (best.word == "" || c.better(best)) {
				best = c
			}
		}
	}
	if best.word != "" {
		return best.word, true
	}

	for _, w := range idx.byInitial[[]rune(word)[0]] {
		c := score(idx, word, w)
		if c.score >= m.fuzzyThreshold && (best.word == "" || c.better(best)) {
			best = c
		}
	}
	return best.word, best.word != ""
}

func score(idx *index, word, candidateWord string) candidate {
	return candidate{
		word:  candidateWord,
		score: matchr.JaroWinkler(word, candidateWord, false),
		dist:  matchr.Levenshtein(word, candidateWord),
		rank:  idx.rank[candidateWord],
	}
}

// codes returns the non-empty Double Metaphone codes of w.
func codes(w string) []string {
	p, s := matchr.DoubleMetaphone(w)
	out := make([]string, 0, 2)
	if p != "" {
		out = append(out, p)
	}
	if s != "" && s != p {
		out = append(out, s)
	}
	return out
}

// matchCase applies the capitalisation pattern of orig to repl: all upper,
// leading capital or unchanged.
func matchCase(orig, repl string) string {
	r := []rune(orig)
	if len(r) > 1 && strings.ToUpper(orig) == orig {
		return strings.ToUpper(repl)
	}
	if unicode.IsUpper(r[0]) {
		rr := []rune(repl)
		if len(rr) > 0 {
			rr[0] = unicode.ToUpper(rr[0])
		}
		return string(rr)
	}
	return repl
}
