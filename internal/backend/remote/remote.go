// Package remote implements the network correction backend.
//
// A [Backend] sends the text to a [Transport] and guards every call with a
// [resilience.CircuitBreaker]: once the endpoint has failed repeatedly the
// breaker opens, [Backend.Status] reports [backend.StatusUnavailable] and
// calls fail fast without network I/O until the reset timeout has passed.
//
// Two transports exist. [EndpointTransport] speaks a minimal JSON protocol to
// a text-generation service ({"prompt_text"} in, {"corrected_text"} out).
// [LLMTransport] drives any [llm.Provider] (OpenAI-compatible servers,
// Ollama, llama.cpp and hosted APIs) and asks for a JSON object answer.
//
// Transports never decide how long to wait; the caller's context carries the
// correction deadline, which is enforced client-side because the service may
// not honour timeouts itself.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/typofix/internal/backend"
	"github.com/MrWong99/typofix/internal/observe"
	"github.com/MrWong99/typofix/internal/resilience"
	"github.com/MrWong99/typofix/pkg/types"
)

// Transport performs one correction round trip.
type Transport interface {
	// Name identifies the transport and model, e.g. "endpoint/llama3.2" or
	// "ollama/llama3.2".
	Name() string

	// Correct returns the raw corrected text. Malformed answers must be
	// reported as [types.ErrInvalidResponse].
	Correct(ctx context.Context, text string) (string, error)
}

// Backend is the remote correction backend. It is safe for concurrent use.
type Backend struct {
	transport  Transport
	breakerCfg resilience.CircuitBreakerConfig
	breaker    *resilience.CircuitBreaker
	id         string
}

var _ backend.Backend = (*Backend)(nil)

// Option configures a [Backend].
type Option func(*Backend)

// WithBreaker overrides the circuit breaker configuration. Zero fields keep
// their defaults.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(b *Backend) { b.breakerCfg = cfg }
}

// New returns a [Backend] that corrects text through t.
func New(t Transport, opts ...Option) *Backend {
	b := &Backend{transport: t, id: "remote/" + t.Name()}
	for _, o := range opts {
		o(b)
	}
	if b.breakerCfg.Name == "" {
		b.breakerCfg.Name = b.id
	}
	b.breaker = resilience.NewCircuitBreaker(b.breakerCfg)
	return b
}

// ID returns "remote/" followed by the transport name.
func (b *Backend) ID() string { return b.id }

// Status is [backend.StatusUnavailable] while the breaker is open and
// [backend.StatusReady] otherwise.
func (b *Backend) Status() backend.Status {
	if b.breaker.State() == resilience.StateOpen {
		return backend.StatusUnavailable
	}
	return backend.StatusReady
}

// Breaker exposes the circuit breaker for status reporting.
func (b *Backend) Breaker() *resilience.CircuitBreaker { return b.breaker }

// Correct sends req.Text through the transport.
func (b *Backend) Correct(ctx context.Context, req types.CorrectionRequest) (types.CorrectionResult, error) {
	ctx, span := observe.StartSpan(ctx, "remote.Correct")
	defer span.End()

	var out string
	err := b.breaker.Execute(func() error {
		var err error
		out, err = b.transport.Correct(ctx, req.Text)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return types.CorrectionResult{}, fmt.Errorf("remote: %w: %w", types.ErrBackendUnavailable, err)
	}
	if err != nil {
		observe.Logger(ctx).Debug("remote correction failed", "backend", b.id, "err", err)
		return types.CorrectionResult{}, fmt.Errorf("remote: %s: %w", b.transport.Name(), err)
	}
	return types.CorrectionResult{
		CorrectedText: backend.PostProcess(req.Text, out),
		BackendID:     b.id,
	}, nil
}
