package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/typofix/internal/backend"
	"github.com/MrWong99/typofix/internal/resilience"
	llm "github.com/MrWong99/typofix/pkg/provider/llm"
	"github.com/MrWong99/typofix/pkg/provider/llm/mock"
	"github.com/MrWong99/typofix/pkg/types"
)

// fakeTransport is a scripted Transport.
type fakeTransport struct {
	out   string
	err   error
	calls atomic.Int32
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Correct(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)
	return f.out, f.err
}

func TestBackend_Correct(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{out: "  I have an apple\n"}
	b := New(tr)

	res, err := b.Correct(context.Background(), types.CorrectionRequest{Text: "I has a appl"})
	if err != nil {
		t.Fatalf("Correct() error: %v", err)
	}
	want := types.CorrectionResult{CorrectedText: "I have an apple", BackendID: "remote/fake"}
	if res != want {
		t.Errorf("Correct() = %+v, want %+v", res, want)
	}
	if b.Status() != backend.StatusReady {
		t.Errorf("Status() = %v, want ready", b.Status())
	}
}

func TestBackend_BreakerFailsFast(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{err: errors.New("connection refused")}
	b := New(tr, WithBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}))

	for range 2 {
		if _, err := b.Correct(context.Background(), types.CorrectionRequest{Text: "teh"}); err == nil {
			t.Fatal("Correct() expected error")
		}
	}
	if b.Status() != backend.StatusUnavailable {
		t.Fatalf("Status() = %v, want unavailable", b.Status())
	}

	_, err := b.Correct(context.Background(), types.CorrectionRequest{Text: "teh"})
	if !errors.Is(err, types.ErrBackendUnavailable) {
		t.Fatalf("Correct() error = %v, want ErrBackendUnavailable", err)
	}
	if got := tr.calls.Load(); got != 2 {
		t.Errorf("transport calls = %d, want 2 (open breaker must not reach the network)", got)
	}
}

func TestBackend_DeadlineEnforcedClientSide(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A service that ignores timeouts.
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		_, _ = w.Write([]byte(`{"corrected_text":"late"}`))
	}))
	defer srv.Close()
	defer close(release)

	tr, err := NewEndpointTransport(srv.URL)
	if err != nil {
		t.Fatalf("NewEndpointTransport() error: %v", err)
	}
	b := New(tr)

	start := time.Now()
	_, err = backend.Call(context.Background(), b, types.CorrectionRequest{
		Text:     "teh",
		Deadline: time.Now().Add(50 * time.Millisecond),
	})
	if !errors.Is(err, types.ErrTimeout) {
		t.Fatalf("Call() error = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("deadline was not enforced client-side")
	}
}

func TestEndpointTransport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr error
	}{
		{name: "ok", status: 200, body: `{"corrected_text":"I have an apple"}`, want: "I have an apple"},
		{name: "empty correction", status: 200, body: `{"corrected_text":""}`, want: ""},
		{name: "missing field", status: 200, body: `{"text":"I have an apple"}`, wantErr: types.ErrInvalidResponse},
		{name: "not json", status: 200, body: `I have an apple`, wantErr: types.ErrInvalidResponse},
		{name: "wrong type", status: 200, body: `{"corrected_text":42}`, wantErr: types.ErrInvalidResponse},
		{name: "error payload", status: 200, body: `{"error":"model not loaded"}`, wantErr: types.ErrBackendUnavailable},
		{name: "server error", status: 503, body: `{"error":"overloaded"}`, wantErr: types.ErrBackendUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got endpointRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				if auth := r.Header.Get("Authorization"); auth != "Bearer k" {
					t.Errorf("Authorization = %q, want bearer token", auth)
				}
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tr, err := NewEndpointTransport(srv.URL, WithModel("llama3.2"), WithAPIKey("k"))
			if err != nil {
				t.Fatalf("NewEndpointTransport() error: %v", err)
			}
			out, err := tr.Correct(context.Background(), "I has a appl")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Correct() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Correct() error: %v", err)
			}
			if out != tt.want {
				t.Errorf("Correct() = %q, want %q", out, tt.want)
			}
			if got.Model != "llama3.2" {
				t.Errorf("request model = %q, want llama3.2", got.Model)
			}
			if !strings.Contains(got.PromptText, "«I has a appl»") {
				t.Errorf("prompt_text = %q, want quoted input", got.PromptText)
			}
		})
	}
}

func TestNewEndpointTransport_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := NewEndpointTransport(""); err == nil {
		t.Fatal("NewEndpointTransport(\"\") expected error")
	}
}

func TestLLMTransport(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{
		ModelName:        "ollama/llama3.2",
		CompleteResponse: &llm.CompletionResponse{Content: "```json\n{\"corrected_text\": \"I have an apple\"}\n```"},
	}
	tr := NewLLMTransport(p, WithMaxTokens(64))

	out, err := tr.Correct(context.Background(), "I has a appl")
	if err != nil {
		t.Fatalf("Correct() error: %v", err)
	}
	if out != "I have an apple" {
		t.Errorf("Correct() = %q, want %q", out, "I have an apple")
	}
	if tr.Name() != "ollama/llama3.2" {
		t.Errorf("Name() = %q", tr.Name())
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if !req.JSONMode || req.MaxTokens != 64 || req.SystemPrompt == "" {
		t.Errorf("request = %+v, want JSON mode, 64 tokens and a system prompt", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Fatalf("messages = %+v, want one user message", req.Messages)
	}
}

func TestLLMTransport_InvalidResponses(t *testing.T) {
	t.Parallel()

	for _, content := range []string{
		"I have an apple",
		`{"text": "I have an apple"}`,
		`["I have an apple"]`,
		"",
	} {
		p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
		_, err := NewLLMTransport(p).Correct(context.Background(), "I has a appl")
		if !errors.Is(err, types.ErrInvalidResponse) {
			t.Errorf("Correct() with content %q: error = %v, want ErrInvalidResponse", content, err)
		}
	}

	p := &mock.Provider{}
	if _, err := NewLLMTransport(p).Correct(context.Background(), "x"); !errors.Is(err, types.ErrInvalidResponse) {
		t.Errorf("nil response: error = %v, want ErrInvalidResponse", err)
	}
}

func TestLLMTransport_ProviderError(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{ModelName: "openai/gpt-4o-mini", CompleteErr: errors.New("429 rate limited")}
	b := New(NewLLMTransport(p))

	_, err := backend.Call(context.Background(), b, types.CorrectionRequest{Text: "teh"})
	if !errors.Is(err, types.ErrBackendUnavailable) {
		t.Fatalf("Call() error = %v, want ErrBackendUnavailable", err)
	}
}

func TestStripMarkdown(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"```json\n{}\n```": "{}",
		"```\n{}\n```":     "{}",
		"  {}  ":           "{}",
	} {
		if got := stripMarkdown(in); got != want {
			t.Errorf("stripMarkdown(%q) = %q, want %q", in, got, want)
		}
	}
}
