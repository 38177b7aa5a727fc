// Package clipboard provides scoped access to the shared system clipboard.
//
// The clipboard is ambient state that other applications may read at any
// time. Every correction cycle that touches it does so through a [Scope]: the
// first write snapshots the prior contents, and [Scope.Restore] puts them back
// and closes the scope. Restore is idempotent and callers defer it on every
// exit path, including cancellation.
package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/typofix/pkg/host"
)

// DefaultRestoreTimeout bounds [Scope.Release].
const DefaultRestoreTimeout = 500 * time.Millisecond

// ErrClosed is returned by [Scope] methods after [Scope.Restore].
var ErrClosed = errors.New("clipboard: scope closed")

// Scope is a single scoped acquisition of the system clipboard. It is safe
// for concurrent use; operations are serialised.
type Scope struct {
	clip host.Clipboard

	mu       sync.Mutex
	snapshot []byte
	saved    bool
	dirty    bool
	closed   bool
}

// Acquire opens a scope over clip. Nothing is read until the first write.
func Acquire(clip host.Clipboard) *Scope {
	return &Scope{clip: clip}
}

// Get returns the current clipboard contents.
func (s *Scope) Get(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	data, err := s.clip.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("clipboard: get: %w", err)
	}
	return data, nil
}

// Set replaces the clipboard contents. The first call snapshots the previous
// contents; if the snapshot cannot be taken the clipboard is left untouched
// and an error is returned.
func (s *Scope) Set(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.saved {
		prev, err := s.clip.Get(ctx)
		if err != nil {
			return fmt.Errorf("clipboard: snapshot: %w", err)
		}
		s.snapshot = bytes.Clone(prev)
		s.saved = true
	}
	s.dirty = true
	if err := s.clip.Set(ctx, data); err != nil {
		return fmt.Errorf("clipboard: set: %w", err)
	}
	return nil
}

// Touched reports whether the scope has written to the clipboard.
func (s *Scope) Touched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Restore writes the snapshot back if the scope changed the clipboard, then
// closes the scope. Later calls return nil without touching the clipboard.
//
// ctx should not be the cycle's (possibly expired) context; callers pass a
// fresh, short deadline so the restore still runs after a timeout.
func (s *Scope) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.dirty {
		return nil
	}
	if err := s.clip.Set(ctx, s.snapshot); err != nil {
		slog.Error("clipboard restore failed", "err", err, "snapshot_bytes", len(s.snapshot))
		return fmt.Errorf("clipboard: restore: %w", err)
	}
	return nil
}

// Release restores the scope on a context detached from ctx's cancellation
// and bounded by [DefaultRestoreTimeout], so it can be deferred on paths
// where ctx has already expired.
func (s *Scope) Release(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultRestoreTimeout)
	defer cancel()
	return s.Restore(rctx)
}

var _ host.Clipboard = (*Scope)(nil)
