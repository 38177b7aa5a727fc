// Package backend defines the correction backend contract shared by the remote
// and on-device implementations.
//
// The orchestrator is written once against [Backend] and never branches on
// which implementation is active. [Call] enforces the request deadline on the
// client side, so a backend that ignores its context is abandoned rather than
// waited on, and normalises every failure into the error taxonomy of
// [types]: implementation-specific errors never escape.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/typofix/pkg/types"
)

// Status is the externally observable readiness of a backend.
type Status int

const (
	// StatusReady means the backend can serve requests within the steady
	// state correction deadline.
	StatusReady Status = iota

	// StatusLoading means the backend is still preparing (e.g. loading or
	// compiling a model). Requests wait for readiness within the longer
	// loading deadline.
	StatusLoading

	// StatusUnavailable means the backend cannot serve requests: its model
	// failed to load or its endpoint is failing fast.
	StatusUnavailable
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusLoading:
		return "loading"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Backend corrects text. Implementations must be safe for concurrent use and
// must honour ctx cancellation where the underlying work allows it.
type Backend interface {
	// ID identifies the backend in outcomes, logs and metrics
	// (e.g. "remote/ollama/llama3.2", "on_device/lexicon").
	ID() string

	// Status reports readiness. It must be cheap and safe to call while a
	// correction is in flight.
	Status() Status

	// Correct returns the corrected form of req.Text.
	Correct(ctx context.Context, req types.CorrectionRequest) (types.CorrectionResult, error)
}

// Call runs b.Correct bounded by req.Deadline (when set) and by ctx.
//
// The backend runs on its own goroutine. When the deadline passes first, Call
// returns [types.ErrTimeout] immediately; the abandoned call's result is
// discarded. Errors are normalised: taxonomy errors pass through, anything
// else becomes [types.ErrBackendUnavailable].
func Call(ctx context.Context, b Backend, req types.CorrectionRequest) (types.CorrectionResult, error) {
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	type result struct {
		res types.CorrectionResult
		err error
	}
	ch := make(chan result, 1)
	go func() {
		res, err := b.Correct(ctx, req)
		ch <- result{res, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return types.CorrectionResult{}, normalise(ctx, b.ID(), r.err)
		}
		if r.res.BackendID == "" {
			r.res.BackendID = b.ID()
		}
		return r.res, nil
	case <-ctx.Done():
		return types.CorrectionResult{}, normalise(ctx, b.ID(), ctx.Err())
	}
}

// normalise maps err into the backend error taxonomy.
func normalise(ctx context.Context, id string, err error) error {
	switch {
	case errors.Is(err, types.ErrTimeout),
		errors.Is(err, types.ErrBackendUnavailable),
		errors.Is(err, types.ErrInvalidResponse):
		return fmt.Errorf("backend %s: %w", id, err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("backend %s: %w", id, types.ErrTimeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("backend %s: %w", id, context.Canceled)
	default:
		return fmt.Errorf("backend %s: %w: %v", id, types.ErrBackendUnavailable, err)
	}
}

// Prompt is the instruction sent to text-generation backends. The text is
// quoted with guillemets so the model can tell instruction from content.
func Prompt(text string) string {
	return "Correct any spelling mistakes in the following sentence without re-phrasing: «" + text + "»"
}

// PostProcess cleans a raw model output. It trims surrounding whitespace and
// any guillemets echoed from [Prompt]. When both texts are a single word and
// the original starts with an upper-case letter, the correction keeps that
// capitalisation.
func PostProcess(original, corrected string) string {
	out := strings.TrimSpace(corrected)
	if strings.HasPrefix(out, "«") && strings.HasSuffix(out, "»") && !strings.Contains(original, "«") {
		out = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(out, "«"), "»"))
	}

	orig := strings.TrimSpace(original)
	if isSingleWord(orig) && isSingleWord(out) {
		first, _ := utf8.DecodeRuneInString(orig)
		if unicode.IsUpper(first) {
			r, size := utf8.DecodeRuneInString(out)
			out = string(unicode.ToUpper(r)) + out[size:]
		}
	}
	return out
}

func isSingleWord(s string) bool {
	return s != "" && !strings.ContainsFunc(s, unicode.IsSpace)
}
