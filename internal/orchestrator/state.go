package orchestrator

import "time"

// State is a controller state.
type State int32

const (
	// StateIdle is the only state in which a trigger starts a cycle.
	StateIdle State = iota
	StateExtracting
	StateCorrecting
	StateValidating
	StateWriting

	// StateDone and StateFailed are terminal. The controller reports the
	// outcome and returns to StateIdle.
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateCorrecting:
		return "correcting"
	case StateValidating:
		return "validating"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Deadlines bounds the time spent in each non-terminal state. Expiry fails
// the cycle with a timeout.
type Deadlines struct {
	// Extract bounds focus lookup and text extraction.
	Extract time.Duration

	// Correction bounds a backend call while the backend reports ready.
	Correction time.Duration

	// Loading bounds a backend call while the backend reports loading, so a
	// first-use model load is not failed against the steady-state budget.
	Loading time.Duration

	// Validate bounds the safety check.
	Validate time.Duration

	// Write bounds the whole write escalation chain.
	Write time.Duration
}

// DefaultDeadlines returns the deadlines used when none are configured.
func DefaultDeadlines() Deadlines {
	return Deadlines{
		Extract:    750 * time.Millisecond,
		Correction: 300 * time.Millisecond,
		Loading:    30 * time.Second,
		Validate:   50 * time.Millisecond,
		Write:      1500 * time.Millisecond,
	}
}

// withDefaults fills zero fields from [DefaultDeadlines].
func (d Deadlines) withDefaults() Deadlines {
	def := DefaultDeadlines()
	if d.Extract <= 0 {
		d.Extract = def.Extract
	}
	if d.Correction <= 0 {
		d.Correction = def.Correction
	}
	if d.Loading <= 0 {
		d.Loading = def.Loading
	}
	if d.Validate <= 0 {
		d.Validate = def.Validate
	}
	if d.Write <= 0 {
		d.Write = def.Write
	}
	return d
}

// Settings are the hot-reloadable controller parameters. A cycle snapshots
// them once when it starts.
type Settings struct {
	Deadlines Deadlines

	// MaxLengthRatio is passed to the safety validator. Zero means the
	// validator's default.
	MaxLengthRatio float64
}
