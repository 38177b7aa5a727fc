package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/typofix/internal/backend"
	"github.com/MrWong99/typofix/pkg/types"
)

// maxResponseBytes bounds how much of an endpoint response is read.
const maxResponseBytes = 1 << 20

type endpointRequest struct {
	PromptText string `json:"prompt_text"`
	Model      string `json:"model,omitempty"`
}

type endpointResponse struct {
	CorrectedText *string `json:"corrected_text"`
	Error         string  `json:"error"`
}

// EndpointTransport posts {"prompt_text", "model"} to a JSON endpoint and
// expects {"corrected_text"} or {"error"} back.
type EndpointTransport struct {
	url    string
	model  string
	apiKey string
	client *http.Client
}

var _ Transport = (*EndpointTransport)(nil)

// EndpointOption configures an [EndpointTransport].
type EndpointOption func(*EndpointTransport)

// WithModel sets the model name sent with every request.
func WithModel(model string) EndpointOption {
	return func(t *EndpointTransport) { t.model = model }
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) EndpointOption {
	return func(t *EndpointTransport) { t.apiKey = key }
}

// WithHTTPClient replaces the HTTP client. The client's own timeout should be
// unset; deadlines come from the request context.
func WithHTTPClient(c *http.Client) EndpointOption {
	return func(t *EndpointTransport) { t.client = c }
}

// NewEndpointTransport returns a transport for the endpoint at url.
func NewEndpointTransport(url string, opts ...EndpointOption) (*EndpointTransport, error) {
	if url == "" {
		return nil, errors.New("remote: endpoint url must not be empty")
	}
	t := &EndpointTransport{url: url, client: http.DefaultClient}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Name returns "endpoint" or "endpoint/<model>".
func (t *EndpointTransport) Name() string {
	if t.model == "" {
		return "endpoint"
	}
	return "endpoint/" + t.model
}

// Correct performs one POST round trip.
func (t *EndpointTransport) Correct(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(endpointRequest{PromptText: backend.Prompt(text), Model: t.model})
	if err != nil {
		return "", fmt.Errorf("endpoint: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("endpoint: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("endpoint: read response: %w", err)
	}

	var r endpointResponse
	decodeErr := json.Unmarshal(raw, &r)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(r.Error)
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("endpoint: status %d: %w: %s", resp.StatusCode, types.ErrBackendUnavailable, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("endpoint: %w: %v", types.ErrInvalidResponse, decodeErr)
	}
	if r.Error != "" {
		return "", fmt.Errorf("endpoint: %w: %s", types.ErrBackendUnavailable, r.Error)
	}
	if r.CorrectedText == nil {
		return "", fmt.Errorf("endpoint: %w: missing corrected_text", types.ErrInvalidResponse)
	}
	return *r.CorrectedText, nil
}
