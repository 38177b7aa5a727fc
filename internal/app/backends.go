package app

import (
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/typofix/internal/backend"
	"github.com/MrWong99/typofix/internal/backend/lexicon"
	"github.com/MrWong99/typofix/internal/backend/ondevice"
	"github.com/MrWong99/typofix/internal/backend/remote"
	"github.com/MrWong99/typofix/internal/config"
	"github.com/MrWong99/typofix/internal/resilience"
	"github.com/MrWong99/typofix/pkg/provider/llm"
	"github.com/MrWong99/typofix/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/typofix/pkg/provider/llm/openai"
)

// lexiconName names the built-in on-device model in backend IDs.
const lexiconName = "lexicon"

// NewRegistry returns a registry holding every built-in backend kind and
// remote provider.
func NewRegistry() *config.Registry {
	reg := config.NewRegistry()
	RegisterBuiltins(reg)
	return reg
}

// RegisterBuiltins registers the remote and on-device backend kinds and every
// built-in LLM provider with reg.
func RegisterBuiltins(reg *config.Registry) {
	// ── LLM providers ────────────────────────────────────────────────────
	for _, name := range anyllm.SupportedProviders {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(cfg *config.Config) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if cfg.Remote.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(cfg.Remote.APIKey))
			}
			if cfg.Correction.EndpointURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(cfg.Correction.EndpointURL))
			}
			return anyllm.New(name, cfg.Remote.Model, opts...)
		})
	}

	reg.RegisterLLM("openai", func(cfg *config.Config) (llm.Provider, error) {
		var opts []llmopenai.Option
		if cfg.Correction.EndpointURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(cfg.Correction.EndpointURL))
		}
		return llmopenai.New(cfg.Remote.APIKey, cfg.Remote.Model, opts...)
	})

	// ── Backends ─────────────────────────────────────────────────────────
	reg.RegisterBackend(config.BackendRemote, newRemoteBackend)
	reg.RegisterBackend(config.BackendOnDevice, newOnDeviceBackend)
}

// newRemoteBackend builds the remote backend. The "endpoint" provider talks
// to a plain correction endpoint; every other provider goes through an LLM
// chat completion.
func newRemoteBackend(cfg *config.Config, reg *config.Registry) (backend.Backend, error) {
	var t remote.Transport
	if cfg.Remote.Provider == "endpoint" {
		var opts []remote.EndpointOption
		if cfg.Remote.Model != "" {
			opts = append(opts, remote.WithModel(cfg.Remote.Model))
		}
		if cfg.Remote.APIKey != "" {
			opts = append(opts, remote.WithAPIKey(cfg.Remote.APIKey))
		}
		et, err := remote.NewEndpointTransport(cfg.Correction.EndpointURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("remote backend: %w", err)
		}
		t = et
	} else {
		p, err := reg.CreateLLM(cfg)
		if err != nil {
			return nil, fmt.Errorf("remote backend: %w", err)
		}
		t = remote.NewLLMTransport(p)
	}

	return remote.New(t, remote.WithBreaker(resilience.CircuitBreakerConfig{
		Name:         "remote/" + cfg.Remote.Provider,
		MaxFailures:  cfg.Remote.Breaker.MaxFailures,
		ResetTimeout: cfg.Remote.Breaker.ResetTimeout(),
	})), nil
}

// newOnDeviceBackend builds the on-device backend over the lexicon model. The
// model is not loaded here; the app starts loading it when it runs.
func newOnDeviceBackend(cfg *config.Config, _ *config.Registry) (backend.Backend, error) {
	m := lexicon.New(cfg.Correction.ModelPath,
		lexicon.WithPhoneticThreshold(cfg.OnDevice.PhoneticThreshold),
		lexicon.WithFuzzyThreshold(cfg.OnDevice.FuzzyThreshold),
	)
	return ondevice.New(lexiconName, m), nil
}
