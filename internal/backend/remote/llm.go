package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/typofix/internal/backend"
	llm "github.com/MrWong99/typofix/pkg/provider/llm"
	"github.com/MrWong99/typofix/pkg/types"
)

const (
	defaultTemperature = 0.0
	defaultMaxTokens   = 512
)

// systemPrompt keeps the model to spelling fixes and a machine-readable
// answer.
const systemPrompt = `You are a spelling and grammar corrector.

Rules:
- Fix spelling mistakes and obvious grammatical slips only.
- Do NOT re-phrase, translate, summarise or add text.
- Keep punctuation, capitalisation and spacing unless they are wrong.
- If the text is already correct, return it unchanged.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"corrected_text": "<corrected text>"}`

type llmAnswer struct {
	CorrectedText *string `json:"corrected_text"`
}

// LLMTransport corrects text with an [llm.Provider].
type LLMTransport struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
}

var _ Transport = (*LLMTransport)(nil)

// LLMOption configures an [LLMTransport].
type LLMOption func(*LLMTransport)

// WithTemperature sets the sampling temperature. Default: 0.
func WithTemperature(temp float64) LLMOption {
	return func(t *LLMTransport) { t.temperature = temp }
}

// WithMaxTokens caps the completion length. Default: 512.
func WithMaxTokens(n int) LLMOption {
	return func(t *LLMTransport) {
		if n > 0 {
			t.maxTokens = n
		}
	}
}

// NewLLMTransport returns a transport backed by p. Model selection follows
// the one-provider-per-model pattern: configure the model on p.
func NewLLMTransport(p llm.Provider, opts ...LLMOption) *LLMTransport {
	t := &LLMTransport{
		provider:    p,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Name returns the provider's model label.
func (t *LLMTransport) Name() string { return t.provider.Model() }

// Correct asks the model for {"corrected_text"} and parses the answer.
func (t *LLMTransport) Correct(ctx context.Context, text string) (string, error) {
	resp, err := t.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{llm.UserMessage(backend.Prompt(text))},
		Temperature:  t.temperature,
		MaxTokens:    t.maxTokens,
		JSONMode:     true,
	})
	if err != nil {
		return "", fmt.Errorf("llm: complete: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("llm: %w: nil response", types.ErrInvalidResponse)
	}
	return parseAnswer(resp.Content)
}

// parseAnswer extracts corrected_text from a model answer. Anything other
// than a JSON object carrying that field is an invalid response.
func parseAnswer(content string) (string, error) {
	var a llmAnswer
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &a); err != nil {
		return "", fmt.Errorf("llm: %w: %v", types.ErrInvalidResponse, err)
	}
	if a.CorrectedText == nil {
		return "", fmt.Errorf("llm: %w: missing corrected_text", types.ErrInvalidResponse)
	}
	return *a.CorrectedText, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
