// Package types defines the data model shared by every typofix package.
//
// These types are the lingua franca between the host adapters, the context
// extractor, the correction backends, the replacement writer and the
// orchestrator. Each package keeps its own domain types; only values that
// cross package boundaries live here to avoid circular imports.
package types

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// FocusTarget identifies the application currently holding input focus. It is
// read fresh on every trigger and never cached across correction cycles.
type FocusTarget struct {
	// AppID is the host's stable application identifier (a bundle identifier
	// on macOS, an executable name elsewhere).
	AppID string

	// Name is the human-readable application name.
	Name string

	// SecureInput reports that the host has process-level secure keyboard
	// entry enabled for this application.
	SecureInput bool
}

// String returns a short label suitable for logs.
func (t FocusTarget) String() string {
	if t.AppID == "" {
		return t.Name
	}
	return t.Name + " (" + t.AppID + ")"
}

// Range is a half-open span [Start, End) measured in runes.
type Range struct {
	Start int
	End   int
}

// Len returns the number of runes covered by r.
func (r Range) Len() int { return r.End - r.Start }

// Empty reports whether r covers no runes. An empty range is a caret.
func (r Range) Empty() bool { return r.End <= r.Start }

// Valid reports whether r lies within a text of n runes.
func (r Range) Valid(n int) bool {
	return r.Start >= 0 && r.End >= r.Start && r.End <= n
}

func (r Range) String() string { return fmt.Sprintf("%d..%d", r.Start, r.End) }

// Splice returns text with the runes in r replaced by repl. It returns an
// error when r does not fit inside text.
func (r Range) Splice(text, repl string) (string, error) {
	runes := []rune(text)
	if !r.Valid(len(runes)) {
		return "", fmt.Errorf("types: range %s out of bounds for %d runes", r, len(runes))
	}
	var sb strings.Builder
	sb.Grow(len(text) + len(repl))
	sb.WriteString(string(runes[:r.Start]))
	sb.WriteString(repl)
	sb.WriteString(string(runes[r.End:]))
	return sb.String(), nil
}

// StrategyKind describes how text is read from or written to the target
// application. Values are ordered by preference: lower values are tried first.
type StrategyKind int

const (
	// AccessibilityDirect reads and writes the focused element's value through
	// the host accessibility API.
	AccessibilityDirect StrategyKind = iota

	// ClipboardSimulatedPaste moves text through the system clipboard using
	// simulated select, copy and paste key chords.
	ClipboardSimulatedPaste

	// ScriptedAutomation sets the focused element's value through the host
	// scripting facility. Last resort.
	ScriptedAutomation
)

// Strategies lists every StrategyKind in preference order.
var Strategies = []StrategyKind{AccessibilityDirect, ClipboardSimulatedPaste, ScriptedAutomation}

// String returns the configuration name of the strategy.
func (s StrategyKind) String() string {
	switch s {
	case AccessibilityDirect:
		return "accessibility_direct"
	case ClipboardSimulatedPaste:
		return "clipboard_paste"
	case ScriptedAutomation:
		return "scripted_automation"
	default:
		return "unknown"
	}
}

// ParseStrategyKind converts a configuration name into a StrategyKind.
func ParseStrategyKind(s string) (StrategyKind, error) {
	for _, k := range Strategies {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("types: unknown strategy %q; valid values: accessibility_direct, clipboard_paste, scripted_automation", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s StrategyKind) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler so strategies can be
// written by name in YAML and JSON.
func (s *StrategyKind) UnmarshalText(b []byte) error {
	k, err := ParseStrategyKind(string(b))
	if err != nil {
		return err
	}
	*s = k
	return nil
}

// ExtractionResult is the immutable snapshot produced by the context
// extractor. It is consumed once per correction cycle; the orchestrator never
// re-reads live application state after it has been captured.
type ExtractionResult struct {
	// Text is the span selected for correction.
	Text string

	// Selection is the location of Text within FieldText, in runes.
	Selection Range

	// HasSelection reports whether Text came verbatim from a user selection
	// rather than from the sentence-span heuristic.
	HasSelection bool

	// FieldText is the full value of the element at extraction time.
	FieldText string

	// ElementID identifies the focused element for strategies that write back
	// through the accessibility API. Empty for clipboard extractions.
	ElementID string

	// IsSecure is always false for a successful extraction; secure fields are
	// rejected before any text is read.
	IsSecure bool

	// SourceStrategy records how Text was obtained.
	SourceStrategy StrategyKind

	// Target is the application the text was read from.
	Target FocusTarget
}

// RuneLen returns the number of runes in Text.
func (e ExtractionResult) RuneLen() int { return utf8.RuneCountInString(e.Text) }

// CorrectionRequest is created by the orchestrator and owned exclusively by the
// in-flight backend call.
type CorrectionRequest struct {
	Text     string
	Deadline time.Time
}

// CorrectionResult is the output of exactly one backend invocation.
type CorrectionResult struct {
	CorrectedText string
	BackendID     string
}
