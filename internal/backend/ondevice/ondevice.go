// Package ondevice implements the in-process correction backend.
//
// A [Backend] owns a [Model] that is loaded once, asynchronously, on a
// background goroutine. Until the load finishes the backend reports
// [backend.StatusLoading] and requests wait for readiness within their own
// deadline; a failed load is permanent and reported as
// [backend.StatusUnavailable] so callers can tell a broken model from a slow
// one. The ready transition is one-shot and safe to observe concurrently with
// in-flight corrections.
//
// Text is converted to model tokens by a [Tokenizer]. Models may supply their
// own by implementing [TokenizerProvider]; otherwise the rune-level
// [RuneTokenizer] is used.
package ondevice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/typofix/internal/backend"
	"github.com/MrWong99/typofix/internal/observe"
	"github.com/MrWong99/typofix/pkg/types"
)

// Model is a local inference model.
type Model interface {
	// Load prepares the model. It may take tens of seconds on first use.
	Load(ctx context.Context) error

	// IsReady reports whether Load completed successfully.
	IsReady() bool

	// Infer maps input tokens to output tokens.
	Infer(ctx context.Context, tokens []uint32) ([]uint32, error)
}

// Tokenizer converts between text and model tokens.
type Tokenizer interface {
	Encode(text string) ([]uint32, error)
	Decode(tokens []uint32) (string, error)
}

// TokenizerProvider is implemented by models that ship their own tokenizer.
type TokenizerProvider interface {
	Tokenizer() Tokenizer
}

// ErrNotLoaded is wrapped into the load error when the model reports itself
// not ready after a successful Load.
var ErrNotLoaded = errors.New("ondevice: model not ready after load")

// Backend is the on-device correction backend. It is safe for concurrent use.
type Backend struct {
	name  string
	model Model
	tok   Tokenizer

	startOnce sync.Once
	done      chan struct{} // closed when loading finishes
	loadErr   error         // written before done is closed
	status    atomic.Int32
	loadTime  atomic.Int64
}

var _ backend.Backend = (*Backend)(nil)

// Option configures a [Backend].
type Option func(*Backend)

// WithTokenizer overrides the tokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(b *Backend) { b.tok = t }
}

// New returns a [Backend] for m. name labels the model in the backend ID
// ("on_device/<name>"). Loading does not begin until [Backend.Start] or the
// first correction.
func New(name string, m Model, opts ...Option) *Backend {
	b := &Backend{
		name:  name,
		model: m,
		done:  make(chan struct{}),
	}
	if tp, ok := m.(TokenizerProvider); ok {
		b.tok = tp.Tokenizer()
	}
	for _, o := range opts {
		o(b)
	}
	if b.tok == nil {
		b.tok = RuneTokenizer{}
	}
	b.status.Store(int32(backend.StatusLoading))
	return b
}

// ID returns "on_device/<name>".
func (b *Backend) ID() string { return "on_device/" + b.name }

// Start begins loading the model in the background. Only the first call has
// an effect. ctx bounds the load; cancelling it marks the model unavailable.
func (b *Backend) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.load(ctx)
	})
}

func (b *Backend) load(ctx context.Context) {
	start := time.Now()
	slog.Info("loading on-device model", "backend", b.ID())

	err := b.model.Load(ctx)
	if err == nil && !b.model.IsReady() {
		err = ErrNotLoaded
	}
	b.loadTime.Store(int64(time.Since(start)))
	if err != nil {
		b.loadErr = err
		b.status.Store(int32(backend.StatusUnavailable))
		slog.Error("on-device model failed to load", "backend", b.ID(), "err", err)
	} else {
		b.status.Store(int32(backend.StatusReady))
		slog.Info("on-device model ready", "backend", b.ID(), "load_time", time.Since(start))
	}
	close(b.done)
}

// Status reports loading, ready or unavailable.
func (b *Backend) Status() backend.Status {
	return backend.Status(b.status.Load())
}

// LoadDuration returns how long loading took, or zero while it is running.
func (b *Backend) LoadDuration() time.Duration {
	return time.Duration(b.loadTime.Load())
}

// WaitReady blocks until loading finishes or ctx is done. It starts loading
// if nobody has yet.
func (b *Backend) WaitReady(ctx context.Context) error {
	b.Start(context.WithoutCancel(ctx))
	select {
	case <-b.done:
		if b.loadErr != nil {
			return fmt.Errorf("ondevice: %w: %w", types.ErrBackendUnavailable, b.loadErr)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ondevice: waiting for model: %w", ctx.Err())
	}
}

// Correct runs the model over req.Text. While the model is loading it waits
// for readiness within ctx.
func (b *Backend) Correct(ctx context.Context, req types.CorrectionRequest) (types.CorrectionResult, error) {
	ctx, span := observe.StartSpan(ctx, "ondevice.Correct")
	defer span.End()

	if err := b.WaitReady(ctx); err != nil {
		return types.CorrectionResult{}, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return types.CorrectionResult{CorrectedText: req.Text, BackendID: b.ID()}, nil
	}

	in, err := b.tok.Encode(req.Text)
	if err != nil {
		return types.CorrectionResult{}, fmt.Errorf("ondevice: encode: %w", err)
	}
	out, err := b.model.Infer(ctx, in)
	if err != nil {
		return types.CorrectionResult{}, fmt.Errorf("ondevice: infer: %w", err)
	}
	text, err := b.tok.Decode(out)
	if err != nil {
		return types.CorrectionResult{}, fmt.Errorf("ondevice: decode: %w: %v", types.ErrInvalidResponse, err)
	}
	return types.CorrectionResult{
		CorrectedText: backend.PostProcess(req.Text, text),
		BackendID:     b.ID(),
	}, nil
}
