// Package notify carries terminal cycle outcomes from the orchestrator to the
// presentation layer.
//
// The orchestrator never touches presentation state. It reports each outcome
// exactly once to a [Notifier]; implementations forward it as a message: a
// Go channel ([Channel]), the structured log ([Log]), websocket subscribers
// ([Hub]) or several of these at once ([Multi]).
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/typofix/pkg/types"
)

// Kind is the user-facing class of an outcome.
type Kind int

const (
	// KindSuccess means a correction was written.
	KindSuccess Kind = iota

	// KindNoOp means the text was already correct; nothing was written.
	KindNoOp

	// KindFailed means the cycle ended without writing. Benign reasons
	// (secure field, busy) are failures of the cycle but not errors; see
	// [Outcome.Benign].
	KindFailed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindNoOp:
		return "no_op"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Outcome is the terminal result of one correction cycle. It never contains
// user text, only lengths.
type Outcome struct {
	CycleID string       `json:"cycle_id"`
	Kind    Kind         `json:"kind"`
	Reason  types.Reason `json:"reason,omitempty"`

	// State is the controller state the cycle ended in (for failures, the
	// state that failed).
	State string `json:"state,omitempty"`

	AppID   string `json:"app_id,omitempty"`
	AppName string `json:"app_name,omitempty"`

	// Backend is the correction backend ID, when one was called.
	Backend string `json:"backend,omitempty"`

	// Strategy is the write strategy that applied the correction.
	Strategy string `json:"strategy,omitempty"`

	// Source is the strategy the text was read with.
	Source string `json:"source,omitempty"`

	OriginalRunes  int `json:"original_runes,omitempty"`
	CorrectedRunes int `json:"corrected_runes,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`

	// Err is the failure cause, for logs. It is not serialised.
	Err error `json:"-"`
}

// Benign reports whether the outcome is a deliberate no-op rather than an
// error: success, already-correct text, a skipped secure field or a trigger
// rejected while busy.
func (o Outcome) Benign() bool {
	return o.Kind != KindFailed || o.Reason.Benign()
}

// Message returns a short user-facing description.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindSuccess:
		return "Corrected"
	case KindNoOp:
		return "Already correct"
	}
	switch o.Reason {
	case types.ReasonSecureFieldSkipped:
		return "Skipped: secure field"
	case types.ReasonBusy:
		return "Already correcting"
	case types.ReasonNoFocusedElement:
		return "No text field focused"
	case types.ReasonExtractionUnsupported:
		return "Cannot read text from this application"
	case types.ReasonBackendUnavailable:
		return "Correction backend unavailable"
	case types.ReasonTimeout:
		return "Timed out (a late correction may still apply)"
	case types.ReasonInvalidResponse:
		return "Correction backend returned an invalid response"
	case types.ReasonRejectEmpty:
		return "Rejected: correction was empty"
	case types.ReasonRejectUnsafeLengthRatio:
		return "Rejected: correction changed too much"
	case types.ReasonWriteFailed:
		return "Could not write the correction"
	default:
		return fmt.Sprintf("Failed (%s)", o.Reason)
	}
}

// Notifier receives terminal outcomes. Notify must not block for long; it is
// called on the orchestrator's cycle goroutine.
type Notifier interface {
	Notify(ctx context.Context, o Outcome)
}

// Func adapts a function to [Notifier].
type Func func(ctx context.Context, o Outcome)

// Notify calls f.
func (f Func) Notify(ctx context.Context, o Outcome) { f(ctx, o) }

// Multi fans an outcome out to every notifier in order.
type Multi []Notifier

// Notify forwards o to each notifier.
func (m Multi) Notify(ctx context.Context, o Outcome) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, o)
		}
	}
}

// Log writes outcomes to a [slog.Logger]. Benign outcomes are logged at info
// level and failures at warn.
type Log struct {
	Logger *slog.Logger
}

// Notify logs o.
func (l Log) Notify(ctx context.Context, o Outcome) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if !o.Benign() {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("cycle_id", o.CycleID),
		slog.String("kind", o.Kind.String()),
		slog.String("app_id", o.AppID),
		slog.Duration("duration", o.Duration),
	}
	if o.Reason != types.ReasonNone {
		attrs = append(attrs, slog.String("reason", string(o.Reason)), slog.String("state", o.State))
	}
	if o.Backend != "" {
		attrs = append(attrs, slog.String("backend", o.Backend))
	}
	if o.Strategy != "" {
		attrs = append(attrs, slog.String("strategy", o.Strategy))
	}
	if o.Err != nil && !o.Benign() {
		attrs = append(attrs, slog.String("err", o.Err.Error()))
	}
	logger.LogAttrs(ctx, level, o.Message(), attrs...)
}

// Channel delivers outcomes on a buffered Go channel. When the buffer is full
// the outcome is dropped and counted rather than blocking the orchestrator.
type Channel struct {
	ch      chan Outcome
	mu      sync.Mutex
	dropped int
}

// NewChannel returns a [Channel] buffering size outcomes.
func NewChannel(size int) *Channel {
	if size < 1 {
		size = 1
	}
	return &Channel{ch: make(chan Outcome, size)}
}

// Notify enqueues o without blocking.
func (c *Channel) Notify(_ context.Context, o Outcome) {
	select {
	case c.ch <- o:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		slog.Warn("outcome dropped, channel full", "cycle_id", o.CycleID, "kind", o.Kind.String())
	}
}

// C returns the receive side.
func (c *Channel) C() <-chan Outcome { return c.ch }

// Dropped returns the number of outcomes dropped because the buffer was full.
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Recorder keeps every outcome in memory. It backs the status endpoint's
// recent-outcomes list and tests.
type Recorder struct {
	mu       sync.Mutex
	outcomes []Outcome
	limit    int
}

// NewRecorder keeps at most limit outcomes, discarding the oldest. A limit of
// zero or less keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Notify records o.
func (r *Recorder) Notify(_ context.Context, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	if r.limit > 0 && len(r.outcomes) > r.limit {
		r.outcomes = slices.Delete(r.outcomes, 0, len(r.outcomes)-r.limit)
	}
}

// Outcomes returns a copy of the recorded outcomes, oldest first.
func (r *Recorder) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.outcomes)
}

// Last returns the most recent outcome.
func (r *Recorder) Last() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return Outcome{}, false
	}
	return r.outcomes[len(r.outcomes)-1], true
}

// Compile-time interface checks.
var (
	_ Notifier = Func(nil)
	_ Notifier = Multi(nil)
	_ Notifier = Log{}
	_ Notifier = (*Channel)(nil)
	_ Notifier = (*Recorder)(nil)
)
