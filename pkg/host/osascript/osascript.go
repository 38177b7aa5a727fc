// Package osascript implements [host.Accessibility] and [host.Scripting] on
// macOS by driving System Events through the osascript command.
//
// Every script receives user text through argv ("on run argv"), never by
// string interpolation, so corrected text cannot alter the script.
//
// System Events reports text positions in UTF-16 code units; this package
// converts them to the rune offsets used by [types.Range].
package osascript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/MrWong99/typofix/pkg/host"
	"github.com/MrWong99/typofix/pkg/types"
)

// focusedElementID is the element handle returned by FocusedElement. System
// Events resolves AXFocusedUIElement on every call, so the handle carries no
// state of its own.
const focusedElementID = "AXFocusedUIElement"

// secureSubrole is the accessibility subrole of password fields.
const secureSubrole = "AXSecureTextField"

// Runner executes an AppleScript with the given argv and returns its standard
// output without the trailing newline.
type Runner func(ctx context.Context, script string, args ...string) (string, error)

// SecureInputFunc reports whether some process has enabled secure keyboard
// entry, as a password prompt or a terminal's secure mode does.
type SecureInputFunc func(ctx context.Context) (bool, error)

// Host talks to System Events. It is safe for concurrent use.
type Host struct {
	run         Runner
	secureInput SecureInputFunc
}

var (
	_ host.Accessibility = (*Host)(nil)
	_ host.Scripting     = (*Host)(nil)
)

// Option configures a [Host].
type Option func(*Host)

// WithRunner replaces the osascript executor. Used by tests.
func WithRunner(r Runner) Option {
	return func(h *Host) { h.run = r }
}

// WithSecureInputCheck replaces the secure keyboard entry check. Used by
// tests.
func WithSecureInputCheck(fn SecureInputFunc) Option {
	return func(h *Host) { h.secureInput = fn }
}

// New returns a [Host] that shells out to /usr/bin/osascript.
func New(opts ...Option) *Host {
	h := &Host{run: execRunner, secureInput: ioregSecureInput}
	for _, o := range opts {
		o(h)
	}
	return h
}

const frontmostScript = `tell application "System Events"
	set p to first application process whose frontmost is true
	set bid to bundle identifier of p
	if bid is missing value then set bid to ""
	return bid & linefeed & (name of p)
end tell`

// FocusedApp returns the frontmost application. SecureInput is set while any
// process holds secure keyboard entry. A failed check is an error rather
// than a false negative.
func (h *Host) FocusedApp(ctx context.Context) (types.FocusTarget, error) {
	out, err := h.run(ctx, frontmostScript)
	if err != nil {
		return types.FocusTarget{}, fmt.Errorf("osascript: frontmost app: %w", err)
	}
	id, name, _ := strings.Cut(out, "\n")
	target := types.FocusTarget{AppID: strings.TrimSpace(id), Name: strings.TrimSpace(name)}

	if h.secureInput != nil {
		secure, err := h.secureInput(ctx)
		if err != nil {
			return types.FocusTarget{}, fmt.Errorf("osascript: secure input: %w", err)
		}
		target.SecureInput = secure
	}
	return target, nil
}

// secureInputKey appears in the console session's IORegistry entry while
// secure keyboard entry is enabled.
const secureInputKey = "kCGSSessionSecureInputPID"

// ioregSecureInput looks for [secureInputKey] in the IORegistry dump.
func ioregSecureInput(ctx context.Context) (bool, error) {
	out, err := exec.CommandContext(ctx, "ioreg", "-l", "-w", "0").Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, err
	}
	return bytes.Contains(out, []byte(secureInputKey)), nil
}

const focusedElementScript = `tell application "System Events" to tell (first application process whose frontmost is true)
	set el to value of attribute "AXFocusedUIElement"
	if el is missing value then return ""
	return (role of el) as text
end tell`

// FocusedElement returns the focused element of the frontmost application, or
// nil when nothing has focus.
func (h *Host) FocusedElement(ctx context.Context, _ types.FocusTarget) (*host.Element, error) {
	out, err := h.run(ctx, focusedElementScript)
	if err != nil {
		return nil, fmt.Errorf("osascript: focused element: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return &host.Element{ID: focusedElementID, Role: out}, nil
}

const subroleScript = `tell application "System Events" to tell (first application process whose frontmost is true)
	set el to value of attribute "AXFocusedUIElement"
	if el is missing value then return ""
	set s to subrole of el
	if s is missing value then return ""
	return s as text
end tell`

// IsSecure reports whether the focused element is a password field. It reads
// only the element's subrole.
func (h *Host) IsSecure(ctx context.Context, el host.Element) (bool, error) {
	if el.Role == secureSubrole {
		return true, nil
	}
	out, err := h.run(ctx, subroleScript)
	if err != nil {
		return false, fmt.Errorf("osascript: subrole: %w", err)
	}
	return out == secureSubrole, nil
}

// readValueScript prints "first,last" on the first line followed by the value.
// System Events reports a caret at n as {n+1, n}.
const readValueScript = `tell application "System Events" to tell (first application process whose frontmost is true)
	set el to value of attribute "AXFocusedUIElement"
	set v to value of attribute "AXValue" of el
	if v is missing value then set v to ""
	set r to value of attribute "AXSelectedTextRange" of el
	return ((item 1 of r) as text) & "," & ((item 2 of r) as text) & linefeed & v
end tell`

// ReadValue returns the focused element's value and selection.
func (h *Host) ReadValue(ctx context.Context, _ host.Element) (host.Value, error) {
	out, err := h.run(ctx, readValueScript)
	if err != nil {
		return host.Value{}, fmt.Errorf("osascript: read value: %w", err)
	}
	header, text, ok := strings.Cut(out, "\n")
	if !ok {
		return host.Value{}, fmt.Errorf("osascript: read value: malformed output %q", header)
	}
	first, last, err := parsePair(header)
	if err != nil {
		return host.Value{}, fmt.Errorf("osascript: read value: %w", err)
	}
	sel := types.Range{
		Start: utf16ToRune(text, first-1),
		End:   utf16ToRune(text, last),
	}
	if sel.End < sel.Start {
		sel.End = sel.Start
	}
	return host.Value{Text: text, Selection: sel}, nil
}

const selectScript = `on run argv
	tell application "System Events" to tell (first application process whose frontmost is true)
		set el to value of attribute "AXFocusedUIElement"
		set value of attribute "AXSelectedTextRange" of el to {(item 1 of argv) as integer, (item 2 of argv) as integer}
	end tell
end run`

// Select sets the focused element's selection.
func (h *Host) Select(ctx context.Context, el host.Element, r types.Range, original string) error {
	v, err := h.checkedValue(ctx, el, r, original)
	if err != nil {
		return fmt.Errorf("osascript: select: %w", err)
	}
	first, last := runeToUTF16(v.Text, r.Start)+1, runeToUTF16(v.Text, r.End)
	if _, err := h.run(ctx, selectScript, strconv.Itoa(first), strconv.Itoa(last)); err != nil {
		return fmt.Errorf("osascript: select: %w", err)
	}
	return nil
}

const replaceSelectionScript = `on run argv
	tell application "System Events" to tell (first application process whose frontmost is true)
		set el to value of attribute "AXFocusedUIElement"
		set value of attribute "AXSelectedTextRange" of el to {(item 1 of argv) as integer, (item 2 of argv) as integer}
		set value of attribute "AXSelectedText" of el to (item 3 of argv)
	end tell
end run`

// WriteValue replaces the runes in r with text by selecting the range and
// setting AXSelectedText, which keeps the application's undo stack intact.
func (h *Host) WriteValue(ctx context.Context, el host.Element, r types.Range, original, text string) error {
	v, err := h.checkedValue(ctx, el, r, original)
	if err != nil {
		return fmt.Errorf("osascript: write value: %w", err)
	}
	first, last := runeToUTF16(v.Text, r.Start)+1, runeToUTF16(v.Text, r.End)
	if _, err := h.run(ctx, replaceSelectionScript, strconv.Itoa(first), strconv.Itoa(last), text); err != nil {
		return fmt.Errorf("osascript: write value: %w", err)
	}
	return nil
}

// checkedValue re-reads the field and verifies that r still holds original.
func (h *Host) checkedValue(ctx context.Context, el host.Element, r types.Range, original string) (host.Value, error) {
	v, err := h.ReadValue(ctx, el)
	if err != nil {
		return host.Value{}, err
	}
	runes := []rune(v.Text)
	if !r.Valid(len(runes)) {
		return host.Value{}, fmt.Errorf("range %s no longer fits the field: %w", r, host.ErrFieldChanged)
	}
	if string(runes[r.Start:r.End]) != original {
		return host.Value{}, fmt.Errorf("range %s: %w", r, host.ErrFieldChanged)
	}
	return v, nil
}

const focusedValueScript = `tell application "System Events"
	set frontApp to name of first application process whose frontmost is true
	tell process frontApp
		try
			return value of text field 1 of window 1
		on error
			try
				return value of text area 1 of scroll area 1 of window 1
			on error
				return ""
			end try
		end try
	end tell
end tell`

// FocusedValue returns the value of the front window's first text field, or
// of its first scrolling text area when it has no text field.
func (h *Host) FocusedValue(ctx context.Context) (string, error) {
	out, err := h.run(ctx, focusedValueScript)
	if err != nil {
		return "", fmt.Errorf("osascript: focused value: %w", err)
	}
	return out, nil
}

const setFocusedValueScript = `on run argv
	tell application "System Events"
		set frontApp to name of first application process whose frontmost is true
		tell process frontApp
			try
				set value of text field 1 of window 1 to (item 1 of argv)
			on error
				set value of text area 1 of scroll area 1 of window 1 to (item 1 of argv)
			end try
		end tell
	end tell
end run`

// SetFocusedValue replaces the value of the front window's primary text
// control through System Events scripting.
func (h *Host) SetFocusedValue(ctx context.Context, text string) error {
	if _, err := h.run(ctx, setFocusedValueScript, text); err != nil {
		return fmt.Errorf("osascript: set focused value: %w", err)
	}
	return nil
}

// execRunner runs osascript and returns stdout with the trailing newline
// removed. Leading whitespace is preserved because field values may start
// with it.
func execRunner(ctx context.Context, script string, args ...string) (string, error) {
	argv := append([]string{"-e", script}, args...)
	cmd := exec.CommandContext(ctx, "osascript", argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return strings.TrimSuffix(stdout.String(), "\n"), nil
}

func parsePair(s string) (int, int, error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", s)
	}
	first, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, fmt.Errorf("malformed range %q: %w", s, err)
	}
	last, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, fmt.Errorf("malformed range %q: %w", s, err)
	}
	return first, last, nil
}

// utf16ToRune converts a UTF-16 code unit offset in s into a rune offset,
// clamping to the bounds of s.
func utf16ToRune(s string, off int) int {
	if off <= 0 {
		return 0
	}
	units, runes := 0, 0
	for _, r := range s {
		if units >= off {
			break
		}
		units += utf16.RuneLen(r)
		runes++
	}
	return runes
}

// runeToUTF16 converts a rune offset in s into a UTF-16 code unit offset.
func runeToUTF16(s string, off int) int {
	units, runes := 0, 0
	for _, r := range s {
		if runes >= off {
			break
		}
		units += utf16.RuneLen(r)
		runes++
	}
	return units
}
