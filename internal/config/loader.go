package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr           = "127.0.0.1:7878"
	DefaultProvider             = "endpoint"
	DefaultCorrectionDeadlineMS = 300
	DefaultLoadingDeadlineMS    = 30000
	DefaultMaxLengthRatio       = 1.5
	DefaultCacheSize            = 128
	DefaultBreakerMaxFailures   = 3
	DefaultBreakerResetMS       = 15000
	DefaultPhoneticThreshold    = 0.80
	DefaultFuzzyThreshold       = 0.90
	DefaultExtractMS            = 750
	DefaultValidateMS           = 50
	DefaultWriteMS              = 1500
)

// Environment variables consulted by [ApplyEnv].
const (
	EnvBackendKind = "TYPOFIX_BACKEND_KIND"
	EnvEndpointURL = "TYPOFIX_ENDPOINT_URL"
	EnvModelPath   = "TYPOFIX_MODEL_PATH"
	EnvAPIKey      = "TYPOFIX_API_KEY"
	EnvLogLevel    = "TYPOFIX_LOG_LEVEL"
)

// ValidProviders lists the remote provider names known to the default
// registry. [Validate] warns about names outside this list since third-party
// transports may be registered at runtime.
var ValidProviders = []string{
	"endpoint", "openai", "anthropic", "gemini", "ollama",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// structValidator checks the validate struct tags. Field names in errors use
// the yaml keys so messages match the file the user edits.
var structValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("yaml")
		if tag == "-" || tag == "" {
			return fld.Name
		}
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		return tag
	})
	return v
}()

// Default returns a configuration with every default applied and no file or
// environment input.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := loadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("config: load %q: %w", path, err)
	}
	return cfg, nil
}

// loadBytes is the common path of [Load] and the [Watcher].
func loadBytes(data []byte) (*Config, error) {
	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, os.LookupEnv)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. The environment is not consulted, which keeps it deterministic
// for tests.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses YAML strictly. An empty document yields a zero Config.
func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// LoadEnv loads KEY=value pairs from the given .env files (".env" when none
// are given) into the process environment. Variables that are already set
// win. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load env %q: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with the TYPOFIX_* variables found through lookup.
// Pass [os.LookupEnv] for the process environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBackendKind); ok && v != "" {
		cfg.Correction.BackendKind = BackendKind(strings.ToLower(v))
	}
	if v, ok := lookup(EnvEndpointURL); ok && v != "" {
		cfg.Correction.EndpointURL = v
	}
	if v, ok := lookup(EnvModelPath); ok && v != "" {
		cfg.Correction.ModelPath = v
	}
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		cfg.Remote.APIKey = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}
}

// ApplyDefaults fills every unset field with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	c := &cfg.Correction
	if c.BackendKind == "" {
		c.BackendKind = BackendRemote
	}
	if c.CorrectionDeadlineMS == 0 {
		c.CorrectionDeadlineMS = DefaultCorrectionDeadlineMS
	}
	if c.LoadingDeadlineMS == 0 {
		c.LoadingDeadlineMS = DefaultLoadingDeadlineMS
	}
	if c.MaxLengthRatio == 0 {
		c.MaxLengthRatio = DefaultMaxLengthRatio
	}
	if c.CacheSize == nil {
		n := DefaultCacheSize
		c.CacheSize = &n
	}

	if cfg.Remote.Provider == "" {
		cfg.Remote.Provider = DefaultProvider
	}
	if cfg.Remote.Breaker.MaxFailures == 0 {
		cfg.Remote.Breaker.MaxFailures = DefaultBreakerMaxFailures
	}
	if cfg.Remote.Breaker.ResetTimeoutMS == 0 {
		cfg.Remote.Breaker.ResetTimeoutMS = DefaultBreakerResetMS
	}

	if cfg.OnDevice.PhoneticThreshold == 0 {
		cfg.OnDevice.PhoneticThreshold = DefaultPhoneticThreshold
	}
	if cfg.OnDevice.FuzzyThreshold == 0 {
		cfg.OnDevice.FuzzyThreshold = DefaultFuzzyThreshold
	}

	if cfg.Deadlines.ExtractMS == 0 {
		cfg.Deadlines.ExtractMS = DefaultExtractMS
	}
	if cfg.Deadlines.ValidateMS == 0 {
		cfg.Deadlines.ValidateMS = DefaultValidateMS
	}
	if cfg.Deadlines.WriteMS == 0 {
		cfg.Deadlines.WriteMS = DefaultWriteMS
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: validate: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: value %v fails %q", fieldPath(fe), fe.Value(), constraint(fe)))
		}
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	c := cfg.Correction
	switch c.BackendKind {
	case BackendRemote:
		if cfg.Remote.Provider == "endpoint" && c.EndpointURL == "" {
			errs = append(errs, errors.New("correction.endpoint_url is required for the endpoint provider"))
		}
		if cfg.Remote.Provider != "endpoint" && cfg.Remote.Model == "" {
			errs = append(errs, fmt.Errorf("remote.model is required for provider %q", cfg.Remote.Provider))
		}
		validateProviderName(cfg.Remote.Provider)
	case BackendOnDevice:
		if c.ModelPath == "" {
			errs = append(errs, errors.New("correction.model_path is required when backend_kind is on_device"))
		}
	default:
		errs = append(errs, fmt.Errorf("correction.backend_kind %q is invalid; valid values: remote, on_device", c.BackendKind))
	}

	if c.LoadingDeadlineMS > 0 && c.LoadingDeadlineMS < c.CorrectionDeadlineMS {
		errs = append(errs, fmt.Errorf("correction.loading_deadline_ms (%d) must not be shorter than correction_deadline_ms (%d)",
			c.LoadingDeadlineMS, c.CorrectionDeadlineMS))
	}

	for i, e := range cfg.Profiles.Apps {
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("profiles.apps[%d]: %w", i, err))
		}
	}

	if cfg.Journal.Path != "" && cfg.Journal.PostgresDSN != "" {
		slog.Warn("journal.path and journal.postgres_dsn are both set; outcomes go to PostgreSQL only")
	}

	return errors.Join(errs...)
}

// fieldPath strips the root type name from a validator namespace, leaving the
// dotted yaml path (e.g. "correction.cache_size").
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// validateProviderName logs a warning if name is not one of [ValidProviders].
func validateProviderName(name string) {
	if slices.Contains(ValidProviders, name) {
		return
	}
	slog.Warn("unknown remote provider; it must be registered before the backend is built",
		"provider", name,
		"known", ValidProviders,
	)
}
