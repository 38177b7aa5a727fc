// Package config provides the configuration schema, loader, watcher and
// backend registry for the typofix daemon.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/typofix/internal/profile"
)

// LogLevel controls log verbosity for the typofix daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to the matching slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// BackendKind selects the correction backend implementation.
type BackendKind string

const (
	// BackendRemote corrects text through a network text-generation service.
	BackendRemote BackendKind = "remote"

	// BackendOnDevice corrects text with a locally loaded model.
	BackendOnDevice BackendKind = "on_device"
)

// IsValid reports whether k is a recognised backend kind.
func (k BackendKind) IsValid() bool {
	return k == BackendRemote || k == BackendOnDevice
}

// Config is the root configuration structure for typofix.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Correction CorrectionConfig `yaml:"correction"`
	Remote     RemoteConfig     `yaml:"remote"`
	OnDevice   OnDeviceConfig   `yaml:"on_device"`
	Deadlines  DeadlinesConfig  `yaml:"deadlines"`
	Profiles   ProfilesConfig   `yaml:"profiles"`
	Journal    JournalConfig    `yaml:"journal"`
}

// ServerConfig holds the local status server and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the status and trigger server. It
	// should stay on loopback; the server has no authentication.
	ListenAddr string `yaml:"listen_addr" validate:"omitempty,hostname_port"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// CorrectionConfig is the static configuration of the correction pipeline.
type CorrectionConfig struct {
	// BackendKind selects the backend family.
	BackendKind BackendKind `yaml:"backend_kind"`

	// EndpointURL is the base URL of the remote service. For the "endpoint"
	// provider it is the full URL requests are posted to.
	EndpointURL string `yaml:"endpoint_url" validate:"omitempty,url"`

	// ModelPath is the on-device model file.
	ModelPath string `yaml:"model_path"`

	// CorrectionDeadlineMS bounds a backend call while the backend is ready.
	CorrectionDeadlineMS int `yaml:"correction_deadline_ms" validate:"gte=0"`

	// LoadingDeadlineMS bounds a backend call while the model is still
	// loading.
	LoadingDeadlineMS int `yaml:"loading_deadline_ms" validate:"gte=0"`

	// MaxLengthRatio is the largest accepted corrected/original length ratio.
	MaxLengthRatio float64 `yaml:"max_length_ratio" validate:"omitempty,gte=1"`

	// CacheSize is the number of corrections kept in the LRU cache. An
	// explicit zero disables the cache; nil selects the default.
	CacheSize *int `yaml:"cache_size" validate:"omitempty,gte=0"`
}

// RemoteConfig configures the remote backend transport.
type RemoteConfig struct {
	// Provider selects the transport registered in the [Registry].
	Provider string `yaml:"provider"`

	// Model is the model name passed to the provider.
	Model string `yaml:"model"`

	// APIKey authenticates against hosted providers.
	APIKey string `yaml:"api_key"`

	// Breaker configures the circuit breaker guarding the transport.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the remote circuit breaker.
type BreakerConfig struct {
	MaxFailures    int `yaml:"max_failures" validate:"gte=0"`
	ResetTimeoutMS int `yaml:"reset_timeout_ms" validate:"gte=0"`
}

// OnDeviceConfig tunes the on-device spelling model.
type OnDeviceConfig struct {
	PhoneticThreshold float64 `yaml:"phonetic_threshold" validate:"gte=0,lte=1"`
	FuzzyThreshold    float64 `yaml:"fuzzy_threshold" validate:"gte=0,lte=1"`
}

// DeadlinesConfig bounds the non-correcting controller states.
type DeadlinesConfig struct {
	ExtractMS  int `yaml:"extract_ms" validate:"gte=0"`
	ValidateMS int `yaml:"validate_ms" validate:"gte=0"`
	WriteMS    int `yaml:"write_ms" validate:"gte=0"`
}

// ProfilesConfig extends the built-in application profile table.
type ProfilesConfig struct {
	// Path is an optional profile table file merged over the built-ins.
	Path string `yaml:"path"`

	// Apps are inline profile entries, applied after the file.
	Apps []profile.Entry `yaml:"apps"`
}

// JournalConfig selects where terminal outcomes are persisted. When both are
// empty outcomes are not journaled.
type JournalConfig struct {
	// Path is a JSON-lines file.
	Path string `yaml:"path"`

	// PostgresDSN is a PostgreSQL connection string. It takes precedence
	// over Path.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ms converts a millisecond count to a duration.
func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// CorrectionDeadline returns the ready-state backend deadline.
func (c CorrectionConfig) CorrectionDeadline() time.Duration { return ms(c.CorrectionDeadlineMS) }

// LoadingDeadline returns the loading-state backend deadline.
func (c CorrectionConfig) LoadingDeadline() time.Duration { return ms(c.LoadingDeadlineMS) }

// CacheEntries returns the configured cache size, zero when unset.
func (c CorrectionConfig) CacheEntries() int {
	if c.CacheSize == nil {
		return 0
	}
	return *c.CacheSize
}

// ResetTimeout returns the breaker reset timeout.
func (b BreakerConfig) ResetTimeout() time.Duration { return ms(b.ResetTimeoutMS) }

// ExtractTimeout returns the extraction deadline.
func (d DeadlinesConfig) ExtractTimeout() time.Duration { return ms(d.ExtractMS) }

// ValidateTimeout returns the validation deadline.
func (d DeadlinesConfig) ValidateTimeout() time.Duration { return ms(d.ValidateMS) }

// WriteTimeout returns the write deadline.
func (d DeadlinesConfig) WriteTimeout() time.Duration { return ms(d.WriteMS) }
