// Package llm defines the Provider interface for Large Language Model backends
// used by the remote correction backend.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama or llama.cpp server) and exposes a single blocking completion call.
// Correction prompts are one short user turn, so streaming and tool calling
// are not part of the contract.
//
// Implementors must be safe for concurrent use and must return promptly when
// the supplied context is cancelled.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. For corrections it holds exactly
	// one "user" message.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before
	// Messages. Providers without a dedicated system field prepend it as a
	// "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness. Zero requests the provider
	// default, which for correction prompts should be close to greedy.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means the provider
	// default.
	MaxTokens int

	// JSONMode asks the model to answer with a single JSON object. Providers
	// without a native switch rely on the prompt alone.
	JSONMode bool
}

// CompletionResponse is the full reply to a CompletionRequest.
type CompletionResponse struct {
	// Content is the text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model name requests are sent to. It is used as part of
	// the correction backend's identifier.
	Model() string
}
