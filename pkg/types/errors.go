package types

import (
	"context"
	"errors"
)

// Error taxonomy shared by every stage of a correction cycle. Stages wrap these
// sentinels with context; callers classify with errors.Is or [ReasonOf].
var (
	// ErrNoFocusedElement means the target application has no focused
	// editable element.
	ErrNoFocusedElement = errors.New("no focused element")

	// ErrSecureFieldSkipped means the focused element holds secure input. It
	// is a deliberate no-op rather than a failure.
	ErrSecureFieldSkipped = errors.New("secure field skipped")

	// ErrExtractionUnsupported means no extraction strategy can read the
	// focused element.
	ErrExtractionUnsupported = errors.New("extraction unsupported")

	// ErrBackendUnavailable means the correction backend cannot serve requests.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrTimeout means a stage exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrInvalidResponse means the backend answered with a malformed or
	// unexpected payload.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrRejectEmpty means the correction was blank while the original was not.
	ErrRejectEmpty = errors.New("rejected: empty correction")

	// ErrRejectUnsafeLengthRatio means the correction grew beyond the
	// configured length ratio.
	ErrRejectUnsafeLengthRatio = errors.New("rejected: unsafe length ratio")

	// ErrWriteFailed means every write strategy failed.
	ErrWriteFailed = errors.New("write failed")

	// ErrBusy means a trigger arrived while another cycle was in flight.
	ErrBusy = errors.New("already correcting")
)

// Reason is a stable, machine-readable label for a terminal cycle outcome.
// It is used by the notifier, the journal and metric attributes.
type Reason string

const (
	ReasonNone                    Reason = ""
	ReasonNoFocusedElement        Reason = "no_focused_element"
	ReasonSecureFieldSkipped      Reason = "secure_field_skipped"
	ReasonExtractionUnsupported   Reason = "extraction_unsupported"
	ReasonBackendUnavailable      Reason = "backend_unavailable"
	ReasonTimeout                 Reason = "timeout"
	ReasonInvalidResponse         Reason = "invalid_response"
	ReasonRejectEmpty             Reason = "reject_empty"
	ReasonRejectUnsafeLengthRatio Reason = "reject_unsafe_length_ratio"
	ReasonWriteFailed             Reason = "write_failed"
	ReasonBusy                    Reason = "busy"
	ReasonInternal                Reason = "internal"
)

var reasonTable = []struct {
	err    error
	reason Reason
}{
	{ErrSecureFieldSkipped, ReasonSecureFieldSkipped},
	{ErrNoFocusedElement, ReasonNoFocusedElement},
	{ErrExtractionUnsupported, ReasonExtractionUnsupported},
	{ErrTimeout, ReasonTimeout},
	{context.DeadlineExceeded, ReasonTimeout},
	{ErrBackendUnavailable, ReasonBackendUnavailable},
	{ErrInvalidResponse, ReasonInvalidResponse},
	{ErrRejectEmpty, ReasonRejectEmpty},
	{ErrRejectUnsafeLengthRatio, ReasonRejectUnsafeLengthRatio},
	{ErrWriteFailed, ReasonWriteFailed},
	{ErrBusy, ReasonBusy},
}

// ReasonOf classifies err. A nil error yields [ReasonNone]; errors outside the
// taxonomy yield [ReasonInternal].
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	for _, e := range reasonTable {
		if errors.Is(err, e.err) {
			return e.reason
		}
	}
	return ReasonInternal
}

// Benign reports whether r is a deliberate no-op rather than a failure.
func (r Reason) Benign() bool {
	return r == ReasonNone || r == ReasonSecureFieldSkipped || r == ReasonBusy
}
