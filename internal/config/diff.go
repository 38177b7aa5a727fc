package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (listen address, backend selection, journal target) needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MaxLengthRatioChanged reports a new validator ratio.
	MaxLengthRatioChanged bool

	// DeadlinesChanged covers correction, loading, extract, validate and
	// write deadlines.
	DeadlinesChanged bool

	// ProfilesChanged covers the profile file path and the inline entries.
	// The file contents themselves are re-read on every reload.
	ProfilesChanged bool

	// RestartRequired lists changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.MaxLengthRatioChanged || d.DeadlinesChanged || d.ProfilesChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Correction.MaxLengthRatio != new.Correction.MaxLengthRatio {
		d.MaxLengthRatioChanged = true
	}

	if old.Correction.CorrectionDeadlineMS != new.Correction.CorrectionDeadlineMS ||
		old.Correction.LoadingDeadlineMS != new.Correction.LoadingDeadlineMS ||
		old.Deadlines != new.Deadlines {
		d.DeadlinesChanged = true
	}

	if old.Profiles.Path != new.Profiles.Path || !reflect.DeepEqual(old.Profiles.Apps, new.Profiles.Apps) {
		d.ProfilesChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameBackend(old, new) {
		d.RestartRequired = append(d.RestartRequired, "backend")
	}
	if old.Journal != new.Journal {
		d.RestartRequired = append(d.RestartRequired, "journal")
	}

	return d
}

// sameBackend reports whether both configs build the same backend.
func sameBackend(old, new *Config) bool {
	oc, nc := old.Correction, new.Correction
	return oc.BackendKind == nc.BackendKind &&
		oc.EndpointURL == nc.EndpointURL &&
		oc.ModelPath == nc.ModelPath &&
		oc.CacheEntries() == nc.CacheEntries() &&
		old.Remote == new.Remote &&
		old.OnDevice == new.OnDevice
}
