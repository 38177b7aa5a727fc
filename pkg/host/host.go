// Package host defines the narrow interfaces through which typofix talks to
// the operating system: the accessibility layer, the system clipboard,
// simulated keyboard input and the host scripting facility.
//
// Every method takes a context. Host calls are expected to be short, but a
// non-responsive target application can make any of them hang, so callers
// bound them with a deadline and implementations should honour cancellation
// where the underlying API allows it.
//
// Implementations must be safe for concurrent use.
package host

import (
	"context"
	"errors"

	"github.com/MrWong99/typofix/pkg/types"
)

// ErrUnsupported is returned by host adapters for operations the current
// platform or target application cannot perform.
var ErrUnsupported = errors.New("host: operation not supported")

// ErrFieldChanged is returned when an element no longer holds the text a
// write or selection was computed from.
var ErrFieldChanged = errors.New("host: field changed since it was read")

// Element is a handle to a UI element inside another process.
type Element struct {
	// ID is an adapter-specific reference to the element.
	ID string

	// Role is the accessibility role (e.g. "AXTextField", "AXTextArea").
	Role string
}

// Value is the content of an editable element together with its selection.
// An empty Selection is the caret position.
type Value struct {
	Text      string
	Selection types.Range
}

// Accessibility queries and mutates UI elements through the host
// accessibility API.
type Accessibility interface {
	// FocusedApp returns the application currently holding input focus.
	FocusedApp(ctx context.Context) (types.FocusTarget, error)

	// FocusedElement returns the focused element of target, or nil when the
	// application has no focused element.
	FocusedElement(ctx context.Context, target types.FocusTarget) (*Element, error)

	// IsSecure reports whether el holds secure (password) input. It must not
	// read the element's value.
	IsSecure(ctx context.Context, el Element) (bool, error)

	// ReadValue returns the element's full text and its selection.
	ReadValue(ctx context.Context, el Element) (Value, error)

	// WriteValue replaces the runes in r with text. The runes in r must still
	// equal original; otherwise nothing is written and the error wraps
	// [ErrFieldChanged].
	WriteValue(ctx context.Context, el Element, r types.Range, original, text string) error

	// Select sets the element's selection to r under the same condition as
	// WriteValue.
	Select(ctx context.Context, el Element, r types.Range, original string) error
}

// Clipboard is the system clipboard. A nil slice from Get means the clipboard
// is empty.
type Clipboard interface {
	Get(ctx context.Context) ([]byte, error)
	Set(ctx context.Context, data []byte) error
}

// Chord is a simulated key combination.
type Chord int

const (
	// ChordSelectAll selects all text in the focused element.
	ChordSelectAll Chord = iota
	// ChordCopy copies the selection to the clipboard.
	ChordCopy
	// ChordPaste pastes the clipboard over the selection.
	ChordPaste
)

// String returns the chord's name.
func (c Chord) String() string {
	switch c {
	case ChordSelectAll:
		return "select_all"
	case ChordCopy:
		return "copy"
	case ChordPaste:
		return "paste"
	default:
		return "unknown"
	}
}

// Keyboard simulates key chords in the focused application.
type Keyboard interface {
	Press(ctx context.Context, chord Chord) error
}

// Scripting is the host automation facility used as a last resort.
type Scripting interface {
	// FocusedValue returns the entire value of the front window's primary
	// text control, or "" when it has none.
	FocusedValue(ctx context.Context) (string, error)

	// SetFocusedValue replaces that control's entire value.
	SetFocusedValue(ctx context.Context, text string) error
}
