package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/typofix/internal/backend"
	bmock "github.com/MrWong99/typofix/internal/backend/mock"
	"github.com/MrWong99/typofix/internal/config"
	"github.com/MrWong99/typofix/internal/profile"
	"github.com/MrWong99/typofix/pkg/provider/llm"
	llmmock "github.com/MrWong99/typofix/pkg/provider/llm/mock"
	"github.com/MrWong99/typofix/pkg/types"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: "127.0.0.1:9000"
  log_level: debug

correction:
  backend_kind: remote
  endpoint_url: "http://localhost:11434"
  correction_deadline_ms: 400
  loading_deadline_ms: 20000
  max_length_ratio: 1.3
  cache_size: 0

remote:
  provider: ollama
  model: llama3.2
  breaker:
    max_failures: 5

deadlines:
  extract_ms: 500

profiles:
  apps:
    - app_id: com.jetbrains.goland
      preferred_strategy: clipboard_paste
      supports_direct_write: false

journal:
  path: /tmp/typofix.jsonl
`

func intPtr(n int) *int { return &n }

// ── Load ─────────────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error: %v", err)
	}

	clip := types.ClipboardSimulatedPaste
	no := false
	want := &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:9000", LogLevel: config.LogDebug},
		Correction: config.CorrectionConfig{
			BackendKind:          config.BackendRemote,
			EndpointURL:          "http://localhost:11434",
			CorrectionDeadlineMS: 400,
			LoadingDeadlineMS:    20000,
			MaxLengthRatio:       1.3,
			CacheSize:            intPtr(0),
		},
		Remote: config.RemoteConfig{
			Provider: "ollama",
			Model:    "llama3.2",
			Breaker:  config.BreakerConfig{MaxFailures: 5, ResetTimeoutMS: config.DefaultBreakerResetMS},
		},
		OnDevice: config.OnDeviceConfig{
			PhoneticThreshold: config.DefaultPhoneticThreshold,
			FuzzyThreshold:    config.DefaultFuzzyThreshold,
		},
		Deadlines: config.DeadlinesConfig{
			ExtractMS:  500,
			ValidateMS: config.DefaultValidateMS,
			WriteMS:    config.DefaultWriteMS,
		},
		Profiles: config.ProfilesConfig{Apps: []profile.Entry{{
			AppID:               "com.jetbrains.goland",
			PreferredStrategy:   &clip,
			SupportsDirectWrite: &no,
		}}},
		Journal: config.JournalConfig{Path: "/tmp/typofix.jsonl"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.Correction.CacheEntries(); got != 0 {
		t.Errorf("CacheEntries() = %d, want 0 (explicitly disabled)", got)
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil || !strings.Contains(err.Error(), "correction.endpoint_url is required") {
		t.Errorf("LoadFromReader(empty) error = %v, want missing endpoint_url", err)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("correction:\n  backend: remote\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want os.ErrNotExist", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "correction:\n  backend_kind: on_device\n  model_path: /models/en.yaml\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Correction.BackendKind != config.BackendOnDevice {
		t.Errorf("backend_kind = %q, want on_device", cfg.Correction.BackendKind)
	}
	if got := cfg.Correction.CacheEntries(); got != config.DefaultCacheSize {
		t.Errorf("CacheEntries() = %d, want %d", got, config.DefaultCacheSize)
	}
}

// ── Defaults ─────────────────────────────────────────────────────────────────

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := config.Default()

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, config.DefaultListenAddr},
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"backend_kind", cfg.Correction.BackendKind, config.BackendRemote},
		{"provider", cfg.Remote.Provider, "endpoint"},
		{"correction_deadline", cfg.Correction.CorrectionDeadline(), 300 * time.Millisecond},
		{"loading_deadline", cfg.Correction.LoadingDeadline(), 30 * time.Second},
		{"max_length_ratio", cfg.Correction.MaxLengthRatio, 1.5},
		{"cache_size", cfg.Correction.CacheEntries(), 128},
		{"breaker_reset", cfg.Remote.Breaker.ResetTimeout(), 15 * time.Second},
		{"extract", cfg.Deadlines.ExtractTimeout(), 750 * time.Millisecond},
		{"validate", cfg.Deadlines.ValidateTimeout(), 50 * time.Millisecond},
		{"write", cfg.Deadlines.WriteTimeout(), 1500 * time.Millisecond},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Correction: config.CorrectionConfig{CorrectionDeadlineMS: 120, CacheSize: intPtr(0)},
		OnDevice:   config.OnDeviceConfig{FuzzyThreshold: 0.75},
	}
	config.ApplyDefaults(cfg)
	if cfg.Correction.CorrectionDeadlineMS != 120 {
		t.Errorf("correction_deadline_ms = %d, want 120", cfg.Correction.CorrectionDeadlineMS)
	}
	if cfg.Correction.CacheEntries() != 0 {
		t.Errorf("cache_size = %d, want 0", cfg.Correction.CacheEntries())
	}
	if cfg.OnDevice.FuzzyThreshold != 0.75 {
		t.Errorf("fuzzy_threshold = %v, want 0.75", cfg.OnDevice.FuzzyThreshold)
	}
}

// ── Environment ──────────────────────────────────────────────────────────────

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		config.EnvBackendKind: "ON_DEVICE",
		config.EnvEndpointURL: "http://gpu-box:8080/correct",
		config.EnvModelPath:   "/models/en.yaml",
		config.EnvAPIKey:      "sk-test",
		config.EnvLogLevel:    "Warn",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := &config.Config{}
	config.ApplyEnv(cfg, lookup)

	if cfg.Correction.BackendKind != config.BackendOnDevice {
		t.Errorf("backend_kind = %q, want on_device", cfg.Correction.BackendKind)
	}
	if cfg.Correction.EndpointURL != "http://gpu-box:8080/correct" {
		t.Errorf("endpoint_url = %q", cfg.Correction.EndpointURL)
	}
	if cfg.Correction.ModelPath != "/models/en.yaml" {
		t.Errorf("model_path = %q", cfg.Correction.ModelPath)
	}
	if cfg.Remote.APIKey != "sk-test" {
		t.Errorf("api_key = %q", cfg.Remote.APIKey)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log_level = %q, want warn", cfg.Server.LogLevel)
	}
}

func TestApplyEnv_EmptyValuesIgnored(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Correction: config.CorrectionConfig{ModelPath: "/keep"}}
	config.ApplyEnv(cfg, func(string) (string, bool) { return "", true })
	if cfg.Correction.ModelPath != "/keep" {
		t.Errorf("model_path = %q, want /keep", cfg.Correction.ModelPath)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	writeFile(t, envFile, "TYPOFIX_TEST_LOADENV=from-file\n")
	t.Cleanup(func() { os.Unsetenv("TYPOFIX_TEST_LOADENV") })

	if err := config.LoadEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv() error: %v", err)
	}
	if got := os.Getenv("TYPOFIX_TEST_LOADENV"); got != "from-file" {
		t.Errorf("TYPOFIX_TEST_LOADENV = %q, want from-file", got)
	}
}

// ── Validation ───────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: bananas\ncorrection:\n  endpoint_url: http://x\n",
			wantErr: "server.log_level",
		},
		{
			name:    "invalid listen addr",
			yaml:    "server:\n  listen_addr: nope\ncorrection:\n  endpoint_url: http://x\n",
			wantErr: "server.listen_addr",
		},
		{
			name:    "invalid backend kind",
			yaml:    "correction:\n  backend_kind: cloud\n",
			wantErr: "correction.backend_kind",
		},
		{
			name:    "bad endpoint url",
			yaml:    "correction:\n  endpoint_url: not a url\n",
			wantErr: "correction.endpoint_url",
		},
		{
			name:    "ratio below one",
			yaml:    "correction:\n  endpoint_url: http://x\n  max_length_ratio: 0.5\n",
			wantErr: "correction.max_length_ratio",
		},
		{
			name:    "negative cache",
			yaml:    "correction:\n  endpoint_url: http://x\n  cache_size: -1\n",
			wantErr: "correction.cache_size",
		},
		{
			name:    "on-device without model",
			yaml:    "correction:\n  backend_kind: on_device\n",
			wantErr: "correction.model_path is required",
		},
		{
			name:    "llm provider without model",
			yaml:    "remote:\n  provider: openai\n",
			wantErr: "remote.model is required",
		},
		{
			name:    "loading shorter than correction",
			yaml:    "correction:\n  endpoint_url: http://x\n  correction_deadline_ms: 500\n  loading_deadline_ms: 200\n",
			wantErr: "loading_deadline_ms",
		},
		{
			name:    "threshold above one",
			yaml:    "correction:\n  endpoint_url: http://x\non_device:\n  fuzzy_threshold: 1.5\n",
			wantErr: "on_device.fuzzy_threshold",
		},
		{
			name:    "profile entry without key",
			yaml:    "correction:\n  endpoint_url: http://x\nprofiles:\n  apps:\n    - supports_direct_read: false\n",
			wantErr: "profiles.apps[0]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_MultipleErrorsJoined(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: loud\ncorrection:\n  backend_kind: on_device\n"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"server.log_level", "correction.model_path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q.IsValid() = false", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error(`"trace".IsValid() = true`)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownBackend(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateBackend(config.Default())
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateBackend() error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_UnknownLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	cfg := config.Default()
	cfg.Remote.Provider = "nonexistent"
	_, err := reg.CreateLLM(cfg)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM() error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_CreateBackendResolvesLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterLLM("ollama", func(cfg *config.Config) (llm.Provider, error) {
		return &llmmock.Provider{ModelName: "ollama/" + cfg.Remote.Model}, nil
	})
	reg.RegisterBackend(config.BackendRemote, func(cfg *config.Config, r *config.Registry) (backend.Backend, error) {
		p, err := r.CreateLLM(cfg)
		if err != nil {
			return nil, err
		}
		return &bmock.Backend{IDValue: "remote/" + p.Model()}, nil
	})

	cfg := config.Default()
	cfg.Remote.Provider = "ollama"
	cfg.Remote.Model = "llama3.2"
	b, err := reg.CreateBackend(cfg)
	if err != nil {
		t.Fatalf("CreateBackend() error: %v", err)
	}
	if got := b.ID(); got != "remote/ollama/llama3.2" {
		t.Errorf("ID() = %q, want remote/ollama/llama3.2", got)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterBackend(config.BackendOnDevice, func(*config.Config, *config.Registry) (backend.Backend, error) {
		return nil, boom
	})
	cfg := config.Default()
	cfg.Correction.BackendKind = config.BackendOnDevice
	if _, err := reg.CreateBackend(cfg); !errors.Is(err, boom) {
		t.Errorf("CreateBackend() error = %v, want boom", err)
	}
}

func TestRegistry_LLMNames(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	for _, n := range []string{"ollama", "anthropic", "openai"} {
		reg.RegisterLLM(n, func(*config.Config) (llm.Provider, error) { return nil, nil })
	}
	if diff := cmp.Diff([]string{"anthropic", "ollama", "openai"}, reg.LLMNames()); diff != "" {
		t.Errorf("LLMNames() mismatch (-want +got):\n%s", diff)
	}
}
