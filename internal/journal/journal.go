// Package journal persists terminal cycle outcomes for later inspection.
//
// Entries hold metadata only: cycle ID, application, outcome kind and reason,
// strategies, backend and timings. The text being corrected is never stored,
// only its length.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/typofix/internal/notify"
)

// Entry is one journaled outcome.
type Entry struct {
	CycleID        string    `json:"cycle_id"`
	Timestamp      time.Time `json:"timestamp"`
	AppID          string    `json:"app_id,omitempty"`
	Kind           string    `json:"kind"`
	Reason         string    `json:"reason,omitempty"`
	State          string    `json:"state,omitempty"`
	Source         string    `json:"source,omitempty"`
	Strategy       string    `json:"strategy,omitempty"`
	Backend        string    `json:"backend,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	OriginalRunes  int       `json:"original_runes"`
	CorrectedRunes int       `json:"corrected_runes"`
}

// FromOutcome converts a notifier outcome into an [Entry].
func FromOutcome(o notify.Outcome) Entry {
	ts := o.StartedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return Entry{
		CycleID:        o.CycleID,
		Timestamp:      ts.UTC(),
		AppID:          o.AppID,
		Kind:           o.Kind.String(),
		Reason:         string(o.Reason),
		State:          o.State,
		Source:         o.Source,
		Strategy:       o.Strategy,
		Backend:        o.Backend,
		DurationMS:     o.Duration.Milliseconds(),
		OriginalRunes:  o.OriginalRunes,
		CorrectedRunes: o.CorrectedRunes,
	}
}

// Store persists entries.
type Store interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards every entry.
type Nop struct{}

// Record does nothing.
func (Nop) Record(context.Context, Entry) error { return nil }

// errMissingCycleID is returned for entries without a cycle ID.
var errMissingCycleID = errors.New("journal: entry has no cycle id")

// Compile-time interface checks.
var (
	_ Store = Nop{}
	_ Store = (*FileStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
