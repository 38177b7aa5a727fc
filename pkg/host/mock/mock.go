// Package mock provides recording test doubles for the host interfaces.
//
// Each double returns its configured values and records every call so tests
// can assert what the orchestrator touched (and, just as important, what it
// did not touch). Optional Func hooks override the canned values when a test
// needs behaviour, such as blocking until the context expires.
//
// Example:
//
//	clip := &mock.Clipboard{Data: []byte("user data")}
//	acc := &mock.Accessibility{
//	    App:     types.FocusTarget{AppID: "com.apple.TextEdit", Name: "TextEdit"},
//	    Element: &host.Element{ID: "field"},
//	    Value:   host.Value{Text: "teh cat", Selection: types.Range{Start: 7, End: 7}},
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/typofix/pkg/host"
	"github.com/MrWong99/typofix/pkg/types"
)

// WriteCall records a single invocation of Accessibility.WriteValue.
type WriteCall struct {
	Element  host.Element
	Range    types.Range
	Original string
	Text     string
}

// Accessibility is a mock implementation of host.Accessibility.
type Accessibility struct {
	mu sync.Mutex

	// --- Configurable responses ---

	App        types.FocusTarget
	AppErr     error
	Element    *host.Element
	ElementErr error
	Secure     bool
	SecureErr  error
	Value      host.Value
	ReadErr    error
	WriteErr   error
	SelectErr  error

	// WriteFunc, when set, replaces the canned WriteErr.
	WriteFunc func(ctx context.Context, el host.Element, r types.Range, original, text string) error

	// ReadFunc, when set, replaces the canned Value and ReadErr.
	ReadFunc func(ctx context.Context, el host.Element) (host.Value, error)

	// --- Call records ---

	FocusedAppCalls     int
	FocusedElementCalls int
	IsSecureCalls       int
	ReadValueCalls      int
	WriteCalls          []WriteCall
	SelectCalls         []types.Range
}

// FocusedApp records the call and returns App, AppErr.
func (a *Accessibility) FocusedApp(_ context.Context) (types.FocusTarget, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.FocusedAppCalls++
	return a.App, a.AppErr
}

// FocusedElement records the call and returns Element, ElementErr.
func (a *Accessibility) FocusedElement(_ context.Context, _ types.FocusTarget) (*host.Element, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.FocusedElementCalls++
	if a.Element == nil {
		return nil, a.ElementErr
	}
	el := *a.Element
	return &el, a.ElementErr
}

// IsSecure records the call and returns Secure, SecureErr.
func (a *Accessibility) IsSecure(_ context.Context, _ host.Element) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.IsSecureCalls++
	return a.Secure, a.SecureErr
}

// ReadValue records the call and returns Value, ReadErr.
func (a *Accessibility) ReadValue(ctx context.Context, el host.Element) (host.Value, error) {
	a.mu.Lock()
	a.ReadValueCalls++
	fn := a.ReadFunc
	v, err := a.Value, a.ReadErr
	a.mu.Unlock()
	if fn != nil {
		return fn(ctx, el)
	}
	return v, err
}

// WriteValue records the call and returns WriteErr (or WriteFunc's result).
func (a *Accessibility) WriteValue(ctx context.Context, el host.Element, r types.Range, original, text string) error {
	a.mu.Lock()
	a.WriteCalls = append(a.WriteCalls, WriteCall{Element: el, Range: r, Original: original, Text: text})
	fn := a.WriteFunc
	err := a.WriteErr
	a.mu.Unlock()
	if fn != nil {
		return fn(ctx, el, r, original, text)
	}
	return err
}

// Select records the call and returns SelectErr.
func (a *Accessibility) Select(_ context.Context, _ host.Element, r types.Range, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SelectCalls = append(a.SelectCalls, r)
	return a.SelectErr
}

// Writes returns a copy of the recorded WriteValue calls. Thread-safe.
func (a *Accessibility) Writes() []WriteCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.WriteCalls)
}

// Clipboard is a mock implementation of host.Clipboard. It behaves like a
// real clipboard: Set replaces the contents that Get returns.
type Clipboard struct {
	mu sync.Mutex

	// Data is the current clipboard content.
	Data []byte

	GetErr error
	SetErr error

	// GetCalls is the number of times Get was called.
	GetCalls int

	// SetCalls records every value passed to Set, in order.
	SetCalls [][]byte
}

// Get records the call and returns a copy of Data.
func (c *Clipboard) Get(_ context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GetCalls++
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	return slices.Clone(c.Data), nil
}

// Set records the call and, unless SetErr is configured, replaces Data.
func (c *Clipboard) Set(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetCalls = append(c.SetCalls, slices.Clone(data))
	if c.SetErr != nil {
		return c.SetErr
	}
	c.Data = slices.Clone(data)
	return nil
}

// Contents returns a copy of Data. Thread-safe.
func (c *Clipboard) Contents() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.Data)
}

// Touched reports whether Get or Set was ever called. Thread-safe.
func (c *Clipboard) Touched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.GetCalls > 0 || len(c.SetCalls) > 0
}

// Keyboard is a mock implementation of host.Keyboard.
type Keyboard struct {
	mu sync.Mutex

	// Err is returned by Press when OnPress is nil.
	Err error

	// OnPress, when set, is called for every chord. Tests use it to emulate
	// the target application (e.g. a copy chord filling the clipboard).
	OnPress func(ctx context.Context, chord host.Chord) error

	// Presses records every chord in order.
	Presses []host.Chord
}

// Press records the chord and returns Err or OnPress's result.
func (k *Keyboard) Press(ctx context.Context, chord host.Chord) error {
	k.mu.Lock()
	k.Presses = append(k.Presses, chord)
	fn := k.OnPress
	err := k.Err
	k.mu.Unlock()
	if fn != nil {
		return fn(ctx, chord)
	}
	return err
}

// Pressed returns a copy of the recorded chords. Thread-safe.
func (k *Keyboard) Pressed() []host.Chord {
	k.mu.Lock()
	defer k.mu.Unlock()
	return slices.Clone(k.Presses)
}

// Scripting is a mock implementation of host.Scripting.
type Scripting struct {
	mu sync.Mutex

	Err error

	// Value and ValueErr are returned by FocusedValue. A successful
	// SetFocusedValue replaces Value.
	Value    string
	ValueErr error

	// ValueCalls is the number of times FocusedValue was called.
	ValueCalls int

	// Calls records every value passed to SetFocusedValue.
	Calls []string
}

// FocusedValue records the call and returns Value, ValueErr.
func (s *Scripting) FocusedValue(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ValueCalls++
	return s.Value, s.ValueErr
}

// SetFocusedValue records the call and, unless Err is configured, replaces
// Value.
func (s *Scripting) SetFocusedValue(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, text)
	if s.Err != nil {
		return s.Err
	}
	s.Value = text
	return nil
}

// Values returns a copy of the recorded calls. Thread-safe.
func (s *Scripting) Values() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.Calls)
}

// Compile-time interface checks.
var (
	_ host.Accessibility = (*Accessibility)(nil)
	_ host.Clipboard     = (*Clipboard)(nil)
	_ host.Keyboard      = (*Keyboard)(nil)
	_ host.Scripting     = (*Scripting)(nil)
)
