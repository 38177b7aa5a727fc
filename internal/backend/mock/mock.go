// Package mock provides a recording test double for [backend.Backend].
//
// Example:
//
//	b := &mock.Backend{
//	    IDValue: "remote/test",
//	    Result:  types.CorrectionResult{CorrectedText: "I have an apple"},
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/typofix/internal/backend"
	"github.com/MrWong99/typofix/pkg/types"
)

// Backend is a mock implementation of [backend.Backend].
type Backend struct {
	mu sync.Mutex

	// IDValue is returned by ID. Defaults to "mock".
	IDValue string

	// StatusValue is returned by Status.
	StatusValue backend.Status

	// Result and Err are returned by Correct when CorrectFunc is nil.
	Result types.CorrectionResult
	Err    error

	// CorrectFunc, when set, replaces the canned Result and Err.
	CorrectFunc func(ctx context.Context, req types.CorrectionRequest) (types.CorrectionResult, error)

	// Calls records every request passed to Correct.
	Calls []types.CorrectionRequest
}

var _ backend.Backend = (*Backend)(nil)

// ID returns IDValue or "mock".
func (b *Backend) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.IDValue == "" {
		return "mock"
	}
	return b.IDValue
}

// Status returns StatusValue.
func (b *Backend) Status() backend.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.StatusValue
}

// SetStatus changes the reported status. Thread-safe.
func (b *Backend) SetStatus(s backend.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.StatusValue = s
}

// Correct records the request and returns the configured response.
func (b *Backend) Correct(ctx context.Context, req types.CorrectionRequest) (types.CorrectionResult, error) {
	b.mu.Lock()
	b.Calls = append(b.Calls, req)
	fn := b.CorrectFunc
	res, err := b.Result, b.Err
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return res, err
}

// Requests returns a copy of the recorded requests. Thread-safe.
func (b *Backend) Requests() []types.CorrectionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.Calls)
}

// CallCount returns the number of Correct calls. Thread-safe.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Calls)
}
