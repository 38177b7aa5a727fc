// Package extract implements the context extractor: it locates the focused
// editable element of the target application and decides which span of its
// text a correction cycle works on.
//
// Three read strategies are tried in order. The direct strategy reads the
// element's value and selection through the accessibility API. The clipboard
// strategy, used for applications whose profile marks direct reads as
// unreliable, simulates select-all and copy inside a [clipboard.Scope] so the
// user's clipboard is restored before Extract returns. The scripting strategy
// asks the host scripting facility for the front window's text control and is
// the last resort.
//
// Secure input is rejected before any text is read.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/typofix/internal/clipboard"
	"github.com/MrWong99/typofix/internal/observe"
	"github.com/MrWong99/typofix/internal/profile"
	"github.com/MrWong99/typofix/pkg/host"
	"github.com/MrWong99/typofix/pkg/types"
)

const (
	// DefaultMaxFieldRunes caps the field size the clipboard strategy accepts.
	// The clipboard writer pastes the whole field back, so larger fields are
	// refused rather than rewritten wholesale.
	DefaultMaxFieldRunes = 4000

	// DefaultCopyWait is how long the clipboard strategy waits for the copy
	// chord to populate the clipboard.
	DefaultCopyWait = clipboard.DefaultCopyWait
)

// Extractor reads the text to correct from the focused application. It holds
// no per-cycle state and is safe for concurrent use.
type Extractor struct {
	acc      host.Accessibility
	kb       host.Keyboard
	script   host.Scripting
	maxSpan  int
	maxField int
	copyWait time.Duration
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithMaxSpan sets the sentence heuristic's span cap in runes.
func WithMaxSpan(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxSpan = n
		}
	}
}

// WithMaxFieldRunes sets the largest field the clipboard strategy accepts.
func WithMaxFieldRunes(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxField = n
		}
	}
}

// WithCopyWait sets how long the clipboard strategy waits for copied text.
func WithCopyWait(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.copyWait = d
		}
	}
}

// WithScripting enables the scripting strategy.
func WithScripting(s host.Scripting) Option {
	return func(e *Extractor) { e.script = s }
}

// New creates an [Extractor]. kb may be nil on hosts without key simulation,
// in which case only the direct strategy is available. acc is required: the
// secure-input check cannot be performed without it.
func New(acc host.Accessibility, kb host.Keyboard, opts ...Option) *Extractor {
	e := &Extractor{
		acc:      acc,
		kb:       kb,
		maxSpan:  DefaultMaxSpan,
		maxField: DefaultMaxFieldRunes,
		copyWait: DefaultCopyWait,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract captures an immutable snapshot of the text to correct in target.
//
// It fails with [types.ErrNoFocusedElement] when nothing has focus,
// [types.ErrSecureFieldSkipped] for password fields and
// [types.ErrExtractionUnsupported] when no strategy can read the element.
// Host calls that outlive ctx fail with [types.ErrTimeout].
//
// clip is only used by the clipboard strategy. Its prior contents are restored
// before Extract returns on every path.
func (e *Extractor) Extract(ctx context.Context, target types.FocusTarget, prof profile.Profile, clip host.Clipboard) (types.ExtractionResult, error) {
	ctx, span := observe.StartSpan(ctx, "extract.Extract",
		trace.WithAttributes(attribute.String("app_id", target.AppID)),
	)
	defer span.End()
	log := observe.Logger(ctx)

	if target.SecureInput {
		return types.ExtractionResult{}, fmt.Errorf("extract: %s: %w", target, types.ErrSecureFieldSkipped)
	}
	if e.acc == nil {
		return types.ExtractionResult{}, fmt.Errorf("extract: no accessibility host: %w", types.ErrExtractionUnsupported)
	}

	el, err := e.acc.FocusedElement(ctx, target)
	if err != nil {
		return types.ExtractionResult{}, hostErr(ctx, "focused element", err, types.ErrNoFocusedElement)
	}
	if el == nil {
		return types.ExtractionResult{}, fmt.Errorf("extract: %s: %w", target, types.ErrNoFocusedElement)
	}

	// The secure check must come before anything reads the value.
	secure, err := e.acc.IsSecure(ctx, *el)
	if err != nil {
		return types.ExtractionResult{}, hostErr(ctx, "secure check", err, types.ErrExtractionUnsupported)
	}
	if secure {
		return types.ExtractionResult{}, fmt.Errorf("extract: %s: %w", target, types.ErrSecureFieldSkipped)
	}

	if prof.SupportsDirectRead {
		v, err := e.acc.ReadValue(ctx, *el)
		if err == nil {
			res, err := e.fromValue(v, *el, target)
			if err == nil {
				log.Debug("extracted text", "app_id", target.AppID, "strategy", res.SourceStrategy, "runes", res.RuneLen(), "selection", res.HasSelection)
			}
			return res, err
		}
		if ctx.Err() != nil {
			return types.ExtractionResult{}, hostErr(ctx, "read value", err, types.ErrExtractionUnsupported)
		}
		log.Warn("direct read failed, falling back to clipboard", "app_id", target.AppID, "err", err)
	}

	res, err := e.viaClipboard(ctx, target, clip)
	if err != nil && e.script != nil && !errors.Is(err, types.ErrTimeout) {
		log.Warn("clipboard read failed, falling back to scripting", "app_id", target.AppID, "err", err)
		res, err = e.viaScripting(ctx, target)
	}
	if err != nil {
		return types.ExtractionResult{}, err
	}
	log.Debug("extracted text", "app_id", target.AppID, "strategy", res.SourceStrategy, "runes", res.RuneLen(), "field_runes", len([]rune(res.FieldText)))
	return res, nil
}

// fromValue picks the span to correct from a direct read.
func (e *Extractor) fromValue(v host.Value, el host.Element, target types.FocusTarget) (types.ExtractionResult, error) {
	runes := []rune(v.Text)
	sel := v.Selection
	if !sel.Valid(len(runes)) {
		sel = types.Range{Start: len(runes), End: len(runes)}
	}

	res := types.ExtractionResult{
		FieldText:      v.Text,
		ElementID:      el.ID,
		SourceStrategy: types.AccessibilityDirect,
		Target:         target,
	}

	if !sel.Empty() {
		text := string(runes[sel.Start:sel.End])
		if strings.TrimSpace(text) != "" {
			res.Text = text
			res.Selection = sel
			res.HasSelection = true
			return res, nil
		}
	}

	start, end := SentenceSpan(runes, sel.End, e.maxSpan)
	if start >= end {
		return types.ExtractionResult{}, fmt.Errorf("extract: nothing to correct before caret: %w", types.ErrExtractionUnsupported)
	}
	res.Text = string(runes[start:end])
	res.Selection = types.Range{Start: start, End: end}
	return res, nil
}

// viaClipboard copies the whole field through the clipboard.
func (e *Extractor) viaClipboard(ctx context.Context, target types.FocusTarget, clip host.Clipboard) (types.ExtractionResult, error) {
	if clip == nil || e.kb == nil {
		return types.ExtractionResult{}, fmt.Errorf("extract: clipboard strategy unavailable: %w", types.ErrExtractionUnsupported)
	}

	scope := clipboard.Acquire(clip)
	defer func() { _ = scope.Release(ctx) }()

	data, err := clipboard.CopyAll(ctx, scope, e.kb, e.copyWait)
	if err != nil {
		return types.ExtractionResult{}, hostErr(ctx, "copy field", err, types.ErrExtractionUnsupported)
	}
	if len(data) == 0 {
		return types.ExtractionResult{}, fmt.Errorf("extract: copy produced no text: %w", types.ErrExtractionUnsupported)
	}
	return e.fromField(string(data), types.ClipboardSimulatedPaste, target)
}

// viaScripting reads the front window's text control through host scripting.
func (e *Extractor) viaScripting(ctx context.Context, target types.FocusTarget) (types.ExtractionResult, error) {
	text, err := e.script.FocusedValue(ctx)
	if err != nil {
		return types.ExtractionResult{}, hostErr(ctx, "scripted read", err, types.ErrExtractionUnsupported)
	}
	if text == "" {
		return types.ExtractionResult{}, fmt.Errorf("extract: scripted read returned no text: %w", types.ErrExtractionUnsupported)
	}
	return e.fromField(text, types.ScriptedAutomation, target)
}

// fromField picks the span to correct from a whole field read without caret
// information. The caret is assumed to be at the end.
func (e *Extractor) fromField(field string, source types.StrategyKind, target types.FocusTarget) (types.ExtractionResult, error) {
	runes := []rune(field)
	if len(runes) > e.maxField {
		return types.ExtractionResult{}, fmt.Errorf("extract: field has %d runes, limit %d: %w", len(runes), e.maxField, types.ErrExtractionUnsupported)
	}
	start, end := SentenceSpan(runes, len(runes), e.maxSpan)
	if start >= end {
		return types.ExtractionResult{}, fmt.Errorf("extract: nothing to correct: %w", types.ErrExtractionUnsupported)
	}

	return types.ExtractionResult{
		Text:           string(runes[start:end]),
		Selection:      types.Range{Start: start, End: end},
		FieldText:      field,
		SourceStrategy: source,
		Target:         target,
	}, nil
}

// hostErr classifies a failed host call. Calls cut short by ctx are timeouts;
// everything else maps to kind.
func hostErr(ctx context.Context, op string, err, kind error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("extract: %s: %w: %w", op, types.ErrTimeout, err)
	}
	return fmt.Errorf("extract: %s: %w: %w", op, kind, err)
}
