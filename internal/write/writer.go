// Package write implements the replacement writer: it applies an accepted
// correction to the location it was read from, escalating through write
// strategies until one succeeds.
//
// The strategies and their order come from the application profile (see
// [profile.Profile.WriteStrategies]). Each strategy is attempted at most once
// per write; a failure moves on to the next strategy rather than retrying.
// Exhausting every strategy yields [types.ErrWriteFailed].
//
// Every strategy first checks that the field still holds the extracted text.
// A field that changed since extraction stops the escalation immediately with
// [host.ErrFieldChanged] wrapped in [types.ErrWriteFailed]; later strategies
// replace more of the field and would overwrite what the user typed.
//
// The clipboard strategy runs inside a [clipboard.Scope], so the user's
// clipboard is restored after the paste on every path.
package write

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/typofix/internal/clipboard"
	"github.com/MrWong99/typofix/internal/observe"
	"github.com/MrWong99/typofix/internal/profile"
	"github.com/MrWong99/typofix/internal/resilience"
	"github.com/MrWong99/typofix/pkg/host"
	"github.com/MrWong99/typofix/pkg/types"
)

// DefaultPasteSettle is how long the clipboard strategy waits after the paste
// chord before restoring the clipboard, so the target application reads the
// corrected text rather than the restored contents.
const DefaultPasteSettle = 120 * time.Millisecond

// Attempt records one strategy attempt.
type Attempt struct {
	Strategy types.StrategyKind
	Err      error
	Duration time.Duration
}

// Report describes a write.
type Report struct {
	// Strategy is the strategy that succeeded. Meaningless when Write fails.
	Strategy types.StrategyKind

	// Attempts lists every strategy tried, in order.
	Attempts []Attempt
}

// Writer applies corrections to the focused application. It holds no
// per-write state and is safe for concurrent use.
type Writer struct {
	acc    host.Accessibility
	kb     host.Keyboard
	script host.Scripting

	pasteSettle time.Duration
	copyWait    time.Duration
	onAttempt   func(Attempt)
}

// Option configures a [Writer].
type Option func(*Writer)

// WithPasteSettle overrides [DefaultPasteSettle].
func WithPasteSettle(d time.Duration) Option {
	return func(w *Writer) {
		if d >= 0 {
			w.pasteSettle = d
		}
	}
}

// WithCopyWait sets how long the clipboard strategy waits for the copy it
// verifies the field with. Default: [clipboard.DefaultCopyWait].
func WithCopyWait(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.copyWait = d
		}
	}
}

// WithAttemptHook registers fn to observe every strategy attempt.
func WithAttemptHook(fn func(Attempt)) Option {
	return func(w *Writer) { w.onAttempt = fn }
}

// New creates a [Writer]. Any host may be nil; strategies that need a missing
// host fail and escalate.
func New(acc host.Accessibility, kb host.Keyboard, script host.Scripting, opts ...Option) *Writer {
	w := &Writer{
		acc:         acc,
		kb:          kb,
		script:      script,
		pasteSettle: DefaultPasteSettle,
		copyWait:    clipboard.DefaultCopyWait,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Write replaces ext.Text with corrected at ext.Selection.
//
// It fails with [types.ErrWriteFailed] when every strategy fails and with
// [types.ErrTimeout] when ctx expires first. A strategy already dispatched
// when ctx expires is not rolled back.
func (w *Writer) Write(ctx context.Context, ext types.ExtractionResult, prof profile.Profile, corrected string, clip host.Clipboard) (Report, error) {
	ctx, span := observe.StartSpan(ctx, "write.Write",
		trace.WithAttributes(attribute.String("app_id", ext.Target.AppID)),
	)
	defer span.End()
	log := observe.Logger(ctx)

	field, err := ext.Selection.Splice(ext.FieldText, corrected)
	if err != nil {
		return Report{}, fmt.Errorf("write: %w: %w", types.ErrWriteFailed, err)
	}

	strategies := prof.WriteStrategies(ext.SourceStrategy)
	steps := make([]resilience.Step[types.StrategyKind], len(strategies))
	for i, s := range strategies {
		steps[i] = resilience.Step[types.StrategyKind]{Name: s.String(), Value: s}
	}

	var rep Report
	chain := resilience.NewChain(steps, resilience.WithAttemptHook[types.StrategyKind](func(a resilience.Attempt) {
		at := Attempt{Strategy: strategies[len(rep.Attempts)], Err: a.Err, Duration: a.Duration}
		rep.Attempts = append(rep.Attempts, at)
		if a.Err != nil {
			log.Info("write strategy failed", "strategy", at.Strategy, "err", a.Err, "duration", a.Duration)
		}
		if w.onAttempt != nil {
			w.onAttempt(at)
		}
	}))

	_, err = chain.Run(ctx, func(ctx context.Context, s types.StrategyKind) error {
		err := w.apply(ctx, s, ext, corrected, field, clip)
		if errors.Is(err, host.ErrFieldChanged) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rep, fmt.Errorf("write: %w: %w", types.ErrTimeout, err)
		}
		return rep, fmt.Errorf("write: %w: %w", types.ErrWriteFailed, err)
	}

	rep.Strategy = rep.Attempts[len(rep.Attempts)-1].Strategy
	log.Debug("correction written", "app_id", ext.Target.AppID, "strategy", rep.Strategy, "attempts", len(rep.Attempts))
	return rep, nil
}

func (w *Writer) apply(ctx context.Context, s types.StrategyKind, ext types.ExtractionResult, corrected, field string, clip host.Clipboard) error {
	switch s {
	case types.AccessibilityDirect:
		return w.direct(ctx, ext, corrected)
	case types.ClipboardSimulatedPaste:
		return w.paste(ctx, ext, corrected, field, clip)
	case types.ScriptedAutomation:
		return w.scripted(ctx, ext, field)
	default:
		return fmt.Errorf("unknown strategy %v", s)
	}
}

// direct replaces the span through the accessibility API.
func (w *Writer) direct(ctx context.Context, ext types.ExtractionResult, corrected string) error {
	if w.acc == nil || ext.ElementID == "" {
		return host.ErrUnsupported
	}
	return w.acc.WriteValue(ctx, host.Element{ID: ext.ElementID}, ext.Selection, ext.Text, corrected)
}

// paste selects the text to replace and pastes over it. Text read directly
// has a precise element range to select. Text read any other way is replaced
// by re-copying the whole field, checking it against the snapshot, and
// pasting it back with only the span changed.
func (w *Writer) paste(ctx context.Context, ext types.ExtractionResult, corrected, field string, clip host.Clipboard) error {
	if w.kb == nil || clip == nil {
		return host.ErrUnsupported
	}

	scope := clipboard.Acquire(clip)
	defer func() { _ = scope.Release(ctx) }()

	payload := corrected
	if ext.SourceStrategy == types.AccessibilityDirect && w.acc != nil && ext.ElementID != "" {
		if err := w.acc.Select(ctx, host.Element{ID: ext.ElementID}, ext.Selection, ext.Text); err != nil {
			return fmt.Errorf("select span: %w", err)
		}
	} else {
		payload = field
		cur, err := clipboard.CopyAll(ctx, scope, w.kb, w.copyWait)
		if err != nil {
			return err
		}
		if len(cur) == 0 {
			return errors.New("copy produced no text")
		}
		if string(cur) != ext.FieldText {
			return fmt.Errorf("copied field: %w", host.ErrFieldChanged)
		}
	}

	if err := scope.Set(ctx, []byte(payload)); err != nil {
		return err
	}
	if err := w.kb.Press(ctx, host.ChordPaste); err != nil {
		return err
	}
	return sleep(ctx, w.pasteSettle)
}

// scripted replaces the whole field value through host scripting once the
// field is confirmed to still hold the snapshot.
func (w *Writer) scripted(ctx context.Context, ext types.ExtractionResult, field string) error {
	if w.script == nil {
		return host.ErrUnsupported
	}
	cur, err := w.script.FocusedValue(ctx)
	if err != nil {
		return err
	}
	if cur != ext.FieldText {
		return fmt.Errorf("scripted field: %w", host.ErrFieldChanged)
	}
	return w.script.SetFocusedValue(ctx, field)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
