// Package orchestrator implements the fallback controller: the state machine
// that drives one correction cycle from trigger to reported outcome.
//
// A cycle moves Idle → Extracting → Correcting → Validating → Writing → Done,
// and any non-terminal state may fail. At most one cycle runs at a time; a
// trigger arriving while a cycle is in flight is rejected with a busy outcome
// rather than queued, since the focused field may have changed by the time a
// queued request would run.
//
// The system clipboard is acquired once per cycle through a
// [clipboard.Scope] and restored before the outcome is reported, on every
// exit path.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/typofix/internal/backend"
	"github.com/MrWong99/typofix/internal/clipboard"
	"github.com/MrWong99/typofix/internal/journal"
	"github.com/MrWong99/typofix/internal/notify"
	"github.com/MrWong99/typofix/internal/observe"
	"github.com/MrWong99/typofix/internal/profile"
	"github.com/MrWong99/typofix/internal/validate"
	"github.com/MrWong99/typofix/internal/write"
	"github.com/MrWong99/typofix/pkg/host"
	"github.com/MrWong99/typofix/pkg/types"
)

// journalTimeout bounds persisting one outcome.
const journalTimeout = 2 * time.Second

// Extractor reads the span to correct. Satisfied by *extract.Extractor.
type Extractor interface {
	Extract(ctx context.Context, target types.FocusTarget, prof profile.Profile, clip host.Clipboard) (types.ExtractionResult, error)
}

// Writer applies an accepted correction. Satisfied by *write.Writer.
type Writer interface {
	Write(ctx context.Context, ext types.ExtractionResult, prof profile.Profile, corrected string, clip host.Clipboard) (write.Report, error)
}

// Profiles resolves the application profile for a target. Satisfied by
// *profile.Table and *profile.Store.
type Profiles interface {
	Lookup(target types.FocusTarget) profile.Profile
}

// Config holds the controller's collaborators. Extractor, Backend and Writer
// are required.
type Config struct {
	// Accessibility resolves the frontmost application. When nil every cycle
	// fails with no focused element.
	Accessibility host.Accessibility

	// Clipboard is the system clipboard. When nil, clipboard strategies fail
	// and escalate.
	Clipboard host.Clipboard

	Extractor Extractor
	Backend   backend.Backend
	Writer    Writer

	// Profiles defaults to the built-in table.
	Profiles Profiles

	// Notifier receives every terminal outcome. Defaults to logging.
	Notifier notify.Notifier

	// Journal persists outcomes. Defaults to discarding them.
	Journal journal.Store

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	Settings Settings
}

// Controller runs correction cycles. All exported methods are safe for
// concurrent use.
type Controller struct {
	acc       host.Accessibility
	clip      host.Clipboard
	extractor Extractor
	backend   backend.Backend
	writer    Writer
	profiles  Profiles
	notifier  notify.Notifier
	journal   journal.Store
	metrics   *observe.Metrics

	settings atomic.Pointer[Settings]
	state    atomic.Int32

	// flight admits a single cycle. Acquisition never blocks.
	flight *semaphore.Weighted
	wg     sync.WaitGroup

	newID        func() string
	onTransition func(from, to State)
}

// Option configures a [Controller].
type Option func(*Controller)

// WithTransitionHook registers fn to observe every state transition. fn runs
// on the cycle goroutine and must not block.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(c *Controller) { c.onTransition = fn }
}

// WithIDFunc overrides cycle ID generation (random UUIDs by default).
func WithIDFunc(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// New creates a [Controller] in [StateIdle].
func New(cfg Config, opts ...Option) (*Controller, error) {
	var errs []error
	if cfg.Extractor == nil {
		errs = append(errs, errors.New("extractor is required"))
	}
	if cfg.Backend == nil {
		errs = append(errs, errors.New("backend is required"))
	}
	if cfg.Writer == nil {
		errs = append(errs, errors.New("writer is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	c := &Controller{
		acc:       cfg.Accessibility,
		clip:      cfg.Clipboard,
		extractor: cfg.Extractor,
		backend:   cfg.Backend,
		writer:    cfg.Writer,
		profiles:  cfg.Profiles,
		notifier:  cfg.Notifier,
		journal:   cfg.Journal,
		metrics:   cfg.Metrics,
		flight:    semaphore.NewWeighted(1),
		newID:     uuid.NewString,
	}
	if c.profiles == nil {
		c.profiles = profile.Builtin()
	}
	if c.notifier == nil {
		c.notifier = notify.Log{}
	}
	if c.journal == nil {
		c.journal = journal.Nop{}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.UpdateSettings(cfg.Settings)

	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// State returns the current controller state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Backend returns the correction backend.
func (c *Controller) Backend() backend.Backend { return c.backend }

// Settings returns the active settings.
func (c *Controller) Settings() Settings { return *c.settings.Load() }

// UpdateSettings replaces the settings used by subsequent cycles. A cycle in
// flight keeps the settings it started with.
func (c *Controller) UpdateSettings(s Settings) {
	s.Deadlines = s.Deadlines.withDefaults()
	if s.MaxLengthRatio <= 0 {
		s.MaxLengthRatio = validate.DefaultMaxLengthRatio
	}
	c.settings.Store(&s)
}

// Correct runs one cycle synchronously and returns its outcome. The error is
// non-nil exactly when the outcome kind is [notify.KindFailed]; it wraps a
// taxonomy sentinel (including [types.ErrBusy] when another cycle is in
// flight and [types.ErrSecureFieldSkipped] for secure fields).
func (c *Controller) Correct(ctx context.Context) (notify.Outcome, error) {
	if !c.flight.TryAcquire(1) {
		o := c.busy(ctx)
		return o, o.Err
	}
	c.wg.Add(1)
	defer c.wg.Done()
	defer c.flight.Release(1)

	o := c.run(ctx)
	if o.Kind == notify.KindFailed {
		return o, o.Err
	}
	return o, nil
}

// Trigger starts a cycle in the background and reports whether it was
// accepted. A rejected trigger emits a busy outcome. ctx bounds the cycle;
// use [Controller.Wait] to wait for it.
func (c *Controller) Trigger(ctx context.Context) bool {
	if !c.flight.TryAcquire(1) {
		c.busy(ctx)
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.flight.Release(1)
		c.run(ctx)
	}()
	return true
}

// Serve starts a cycle for every value received on triggers until ctx is
// cancelled or triggers is closed, then waits for the in-flight cycle.
func (c *Controller) Serve(ctx context.Context, triggers <-chan struct{}) error {
	defer c.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-triggers:
			if !ok {
				return nil
			}
			c.Trigger(ctx)
		}
	}
}

// Wait blocks until every cycle in flight has finished, whether it was
// started by [Controller.Trigger] or is running inside [Controller.Correct].
func (c *Controller) Wait() { c.wg.Wait() }

// busy reports a rejected trigger without touching the cycle in flight.
func (c *Controller) busy(ctx context.Context) notify.Outcome {
	o := notify.Outcome{
		CycleID:   c.newID(),
		Kind:      notify.KindFailed,
		Reason:    types.ReasonBusy,
		State:     c.State().String(),
		StartedAt: time.Now(),
		Err:       fmt.Errorf("orchestrator: %w", types.ErrBusy),
	}
	c.metrics.BusyRejections.Add(ctx, 1)
	c.notifier.Notify(ctx, o)
	return o
}

// cycle carries the per-cycle bookkeeping.
type cycle struct {
	o        notify.Outcome
	settings Settings
	clip     host.Clipboard
	log      *slog.Logger

	state      State
	stateStart time.Time
}

// run executes one cycle. The caller holds the flight semaphore.
func (c *Controller) run(ctx context.Context) notify.Outcome {
	cy := &cycle{
		o:          notify.Outcome{CycleID: c.newID(), StartedAt: time.Now()},
		settings:   c.Settings(),
		state:      StateIdle,
		stateStart: time.Now(),
	}

	ctx = observe.WithCycleID(ctx, cy.o.CycleID)
	ctx, span := observe.StartSpan(ctx, "orchestrator.Cycle",
		trace.WithAttributes(attribute.String("cycle_id", cy.o.CycleID)),
	)
	defer span.End()
	cy.log = observe.Logger(ctx)

	c.metrics.ActiveCycles.Add(ctx, 1)
	defer c.metrics.ActiveCycles.Add(ctx, -1)

	var scope *clipboard.Scope
	if c.clip != nil {
		scope = clipboard.Acquire(c.clip)
		cy.clip = scope
	}

	err := c.drive(ctx, cy)

	terminal := StateDone
	if err != nil {
		terminal = StateFailed
		cy.o.Kind = notify.KindFailed
		cy.o.Reason = types.ReasonOf(err)
		cy.o.State = cy.state.String()
		cy.o.Err = err
		if !cy.o.Reason.Benign() {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(cy.o.Reason))
		}
	} else {
		cy.o.State = StateDone.String()
	}
	c.transition(ctx, cy, terminal)

	if scope != nil {
		if rerr := scope.Release(ctx); rerr != nil {
			cy.log.Error("clipboard not restored", "err", rerr)
		}
	}

	cy.o.Duration = time.Since(cy.o.StartedAt)
	span.SetAttributes(
		attribute.String("kind", cy.o.Kind.String()),
		attribute.String("reason", string(cy.o.Reason)),
	)
	c.report(ctx, cy)
	c.transition(ctx, cy, StateIdle)
	return cy.o
}

// drive runs the non-terminal states. It returns nil for Done (including the
// no-op path) and the failure cause otherwise. cy.state is the failing state
// when it returns an error.
func (c *Controller) drive(ctx context.Context, cy *cycle) error {
	d := cy.settings.Deadlines

	// Extracting.
	c.transition(ctx, cy, StateExtracting)
	ectx, cancel := context.WithTimeout(ctx, d.Extract)
	target, err := c.focusedApp(ectx)
	if err != nil {
		cancel()
		return err
	}
	cy.o.AppID, cy.o.AppName = target.AppID, target.Name
	prof := c.profiles.Lookup(target)
	ext, err := c.extractor.Extract(ectx, target, prof, cy.clip)
	cancel()
	if err != nil {
		return err
	}
	cy.o.Source = ext.SourceStrategy.String()
	cy.o.OriginalRunes = ext.RuneLen()
	cy.log.Debug("text extracted",
		"app_id", target.AppID,
		"source", cy.o.Source,
		"runes", cy.o.OriginalRunes,
		"has_selection", ext.HasSelection,
	)

	// Correcting.
	c.transition(ctx, cy, StateCorrecting)
	cy.o.Backend = c.backend.ID()
	res, err := c.correct(ctx, cy, ext.Text)
	if err != nil {
		return err
	}
	cy.o.CorrectedRunes = utf8.RuneCountInString(res.CorrectedText)

	// Validating.
	c.transition(ctx, cy, StateValidating)
	vctx, cancel := context.WithTimeout(ctx, d.Validate)
	verdict := validate.Check(ext.Text, res.CorrectedText, cy.settings.MaxLengthRatio)
	verr := vctx.Err()
	cancel()
	if verr != nil {
		return fmt.Errorf("orchestrator: validate: %w: %w", types.ErrTimeout, verr)
	}
	switch verdict {
	case validate.Accept:
	case validate.RejectNoOp:
		cy.o.Kind = notify.KindNoOp
		return nil
	default:
		cy.log.Info("correction rejected", "verdict", verdict.String(),
			"original_runes", cy.o.OriginalRunes, "corrected_runes", cy.o.CorrectedRunes)
		return fmt.Errorf("orchestrator: %w", verdict.Err())
	}

	// Writing.
	c.transition(ctx, cy, StateWriting)
	wctx, cancel := context.WithTimeout(ctx, d.Write)
	rep, err := c.writer.Write(wctx, ext, prof, res.CorrectedText, cy.clip)
	cancel()
	for _, a := range rep.Attempts {
		status := "ok"
		if a.Err != nil {
			status = "error"
		}
		c.metrics.RecordWriteAttempt(ctx, a.Strategy.String(), status)
	}
	if err != nil {
		return err
	}
	cy.o.Kind = notify.KindSuccess
	cy.o.Strategy = rep.Strategy.String()
	return nil
}

// focusedApp resolves the target application.
func (c *Controller) focusedApp(ctx context.Context) (types.FocusTarget, error) {
	if c.acc == nil {
		return types.FocusTarget{}, fmt.Errorf("orchestrator: focused app: %w: no accessibility host", types.ErrNoFocusedElement)
	}
	target, err := c.acc.FocusedApp(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return types.FocusTarget{}, fmt.Errorf("orchestrator: focused app: %w: %w", types.ErrTimeout, err)
		}
		return types.FocusTarget{}, fmt.Errorf("orchestrator: focused app: %w: %w", types.ErrNoFocusedElement, err)
	}
	return target, nil
}

// correct calls the backend under the deadline matching its status. An
// unavailable backend is not called.
func (c *Controller) correct(ctx context.Context, cy *cycle, text string) (types.CorrectionResult, error) {
	id := c.backend.ID()
	var deadline time.Duration
	switch status := c.backend.Status(); status {
	case backend.StatusReady:
		deadline = cy.settings.Deadlines.Correction
	case backend.StatusLoading:
		deadline = cy.settings.Deadlines.Loading
		cy.log.Info("backend loading, using loading deadline", "backend", id, "deadline", deadline)
	default:
		c.metrics.RecordBackendError(ctx, id, string(types.ReasonBackendUnavailable))
		return types.CorrectionResult{}, fmt.Errorf("orchestrator: backend %s is %s: %w", id, status, types.ErrBackendUnavailable)
	}

	start := time.Now()
	res, err := backend.Call(ctx, c.backend, types.CorrectionRequest{
		Text:     text,
		Deadline: start.Add(deadline),
	})
	c.metrics.RecordBackendCall(ctx, id, string(types.ReasonOf(err)), time.Since(start))
	if err != nil {
		return types.CorrectionResult{}, err
	}
	return res, nil
}

// transition moves cy to next, recording the time spent in the previous
// state.
func (c *Controller) transition(ctx context.Context, cy *cycle, next State) {
	prev := cy.state
	now := time.Now()
	if prev != StateIdle && prev != StateDone && prev != StateFailed {
		c.metrics.RecordStage(ctx, prev.String(), now.Sub(cy.stateStart))
	}
	cy.state = next
	cy.stateStart = now
	c.state.Store(int32(next))
	if c.onTransition != nil {
		c.onTransition(prev, next)
	}
}

// report delivers the terminal outcome: metrics, journal, then the notifier.
func (c *Controller) report(ctx context.Context, cy *cycle) {
	o := cy.o
	c.metrics.RecordCycle(ctx, o.Kind.String(), string(o.Reason), o.Duration)

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	if err := c.journal.Record(jctx, journal.FromOutcome(o)); err != nil {
		cy.log.Warn("journal record failed", "err", err)
	}
	cancel()

	c.notifier.Notify(ctx, o)
}
