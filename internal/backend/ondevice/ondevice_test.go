package ondevice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/MrWong99/typofix/internal/backend"
	"github.com/MrWong99/typofix/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeModel upper-cases its input. Load blocks until gate is closed.
type fakeModel struct {
	gate    chan struct{}
	loadErr error
	ready   atomic.Bool
	infers  atomic.Int32
}

func newFakeModel() *fakeModel { return &fakeModel{gate: make(chan struct{})} }

func (m *fakeModel) Load(ctx context.Context) error {
	select {
	case <-m.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	if m.loadErr != nil {
		return m.loadErr
	}
	m.ready.Store(true)
	return nil
}

func (m *fakeModel) IsReady() bool { return m.ready.Load() }

func (m *fakeModel) Infer(_ context.Context, tokens []uint32) ([]uint32, error) {
	m.infers.Add(1)
	out := make([]uint32, len(tokens))
	for i, t := range tokens {
		out[i] = uint32([]rune(strings.ToUpper(string(rune(t))))[0])
	}
	return out, nil
}

func TestBackend_LoadingThenReady(t *testing.T) {
	t.Parallel()
	m := newFakeModel()
	b := New("fake", m)

	if b.Status() != backend.StatusLoading {
		t.Fatalf("Status() = %v, want loading", b.Status())
	}
	b.Start(context.Background())

	type result struct {
		res types.CorrectionResult
		err error
	}
	ch := make(chan result, 1)
	go func() {
		res, err := b.Correct(context.Background(), types.CorrectionRequest{Text: "teh cat"})
		ch <- result{res, err}
	}()

	// Status must be observable while a request waits for readiness.
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Status()
		}()
	}
	wg.Wait()

	close(m.gate)
	r := <-ch
	if r.err != nil {
		t.Fatalf("Correct() error: %v", r.err)
	}
	if r.res.CorrectedText != "TEH CAT" {
		t.Errorf("CorrectedText = %q, want %q", r.res.CorrectedText, "TEH CAT")
	}
	if r.res.BackendID != "on_device/fake" {
		t.Errorf("BackendID = %q", r.res.BackendID)
	}
	if b.Status() != backend.StatusReady {
		t.Errorf("Status() = %v, want ready", b.Status())
	}
	if b.LoadDuration() <= 0 {
		t.Error("LoadDuration() = 0 after load")
	}
}

func TestBackend_LoadFailureIsUnavailable(t *testing.T) {
	t.Parallel()
	m := newFakeModel()
	m.loadErr = errors.New("model file truncated")
	close(m.gate)
	b := New("fake", m)
	b.Start(context.Background())

	err := b.WaitReady(context.Background())
	if !errors.Is(err, types.ErrBackendUnavailable) {
		t.Fatalf("WaitReady() error = %v, want ErrBackendUnavailable", err)
	}
	if b.Status() != backend.StatusUnavailable {
		t.Errorf("Status() = %v, want unavailable", b.Status())
	}

	_, err = backend.Call(context.Background(), b, types.CorrectionRequest{Text: "teh"})
	if !errors.Is(err, types.ErrBackendUnavailable) {
		t.Fatalf("Call() error = %v, want ErrBackendUnavailable", err)
	}
	if m.infers.Load() != 0 {
		t.Error("Infer called on a model that failed to load")
	}
}

func TestBackend_NotReadyAfterLoad(t *testing.T) {
	t.Parallel()
	b := New("broken", brokenModel{})
	err := b.WaitReady(context.Background())
	if !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("WaitReady() error = %v, want ErrNotLoaded", err)
	}
}

type brokenModel struct{}

func (brokenModel) Load(context.Context) error { return nil }
func (brokenModel) IsReady() bool              { return false }
func (brokenModel) Infer(context.Context, []uint32) ([]uint32, error) {
	return nil, errors.New("unreachable")
}

func TestBackend_LoadingDeadlineIsTimeout(t *testing.T) {
	t.Parallel()
	m := newFakeModel()
	b := New("fake", m)
	defer func() {
		close(m.gate)
		_ = b.WaitReady(context.Background())
	}()

	_, err := backend.Call(context.Background(), b, types.CorrectionRequest{
		Text:     "teh",
		Deadline: time.Now().Add(30 * time.Millisecond),
	})
	if !errors.Is(err, types.ErrTimeout) {
		t.Fatalf("Call() error = %v, want ErrTimeout", err)
	}
	if b.Status() != backend.StatusLoading {
		t.Errorf("Status() = %v, want still loading", b.Status())
	}
}

func TestBackend_BlankTextSkipsModel(t *testing.T) {
	t.Parallel()
	m := newFakeModel()
	close(m.gate)
	b := New("fake", m)

	res, err := b.Correct(context.Background(), types.CorrectionRequest{Text: "  "})
	if err != nil {
		t.Fatalf("Correct() error: %v", err)
	}
	if res.CorrectedText != "  " || m.infers.Load() != 0 {
		t.Errorf("Correct() = %q with %d infers, want input unchanged and no inference", res.CorrectedText, m.infers.Load())
	}
}

func TestRuneTokenizer(t *testing.T) {
	t.Parallel()
	var tok RuneTokenizer

	ids, err := tok.Encode("Hi🚀")
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if diff := cmp.Diff([]uint32{72, 105, 0x1F680}, ids); diff != "" {
		t.Errorf("Encode() mismatch (-want +got):\n%s", diff)
	}

	text, err := tok.Decode([]uint32{72, 0, 0xD800, 0x110000, 105})
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if text != "Hi" {
		t.Errorf("Decode() = %q, want %q", text, "Hi")
	}

	if ids, _ := tok.Encode("   "); len(ids) != 0 {
		t.Errorf("Encode(whitespace) = %v, want empty", ids)
	}
}
