// Package profile holds the application profile table: the data-driven
// mapping from an application identity to the strategy typofix should use to
// read and write its text.
//
// All application-specific knowledge lives in the table. Callers look up a
// [Profile] once per correction cycle and never branch on application names
// themselves.
package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/typofix/pkg/types"
)

// Profile describes how to interact with one application.
type Profile struct {
	// AppID is the host application identifier the profile was registered
	// under. Empty for name-matched and default profiles.
	AppID string `json:"app_id,omitempty"`

	// Name is the application display name the profile matches.
	Name string `json:"name,omitempty"`

	// PreferredStrategy is the first strategy the replacement writer tries.
	PreferredStrategy types.StrategyKind `json:"preferred_strategy"`

	// SupportsDirectRead reports whether the application's accessibility tree
	// exposes reliable value and selection reads.
	SupportsDirectRead bool `json:"supports_direct_read"`

	// SupportsDirectWrite reports whether the application accepts direct value
	// replacement through the accessibility API.
	SupportsDirectWrite bool `json:"supports_direct_write"`

	// Source records where the profile came from: "builtin", "config", a file
	// path, or "default".
	Source string `json:"source"`
}

// Default returns the profile used for applications not in the table. It
// assumes a well-behaved native application.
func Default() Profile {
	return Profile{
		PreferredStrategy:   types.AccessibilityDirect,
		SupportsDirectRead:  true,
		SupportsDirectWrite: true,
		Source:              "default",
	}
}

// WriteStrategies returns the strategies the replacement writer may attempt
// for a text that was read with source, in escalation order. Strategies before
// PreferredStrategy are never attempted, and AccessibilityDirect is only
// eligible when the text was read directly and the application supports
// direct writes. Text read by scripting came from the window's primary text
// control rather than the focused element, so only scripting writes it back.
func (p Profile) WriteStrategies(source types.StrategyKind) []types.StrategyKind {
	out := make([]types.StrategyKind, 0, len(types.Strategies))
	for _, s := range types.Strategies {
		if s < p.PreferredStrategy {
			continue
		}
		if source == types.ScriptedAutomation && s != types.ScriptedAutomation {
			continue
		}
		if s == types.AccessibilityDirect && (!p.SupportsDirectWrite || source != types.AccessibilityDirect) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Entry is the configuration form of a [Profile]. Unset booleans inherit the
// default profile's values, so an entry only has to state its quirks.
//
// Example:
//
//	- app_id: com.microsoft.VSCode
//	  name: Visual Studio Code
//	  preferred_strategy: clipboard_paste
//	  supports_direct_read: false
//	  supports_direct_write: false
type Entry struct {
	AppID               string              `yaml:"app_id"`
	Name                string              `yaml:"name"`
	NameContains        string              `yaml:"name_contains"`
	PreferredStrategy   *types.StrategyKind `yaml:"preferred_strategy"`
	SupportsDirectRead  *bool               `yaml:"supports_direct_read"`
	SupportsDirectWrite *bool               `yaml:"supports_direct_write"`
}

// Validate reports structural problems with the entry.
func (e Entry) Validate() error {
	var errs []error
	if e.AppID == "" && e.Name == "" && e.NameContains == "" {
		errs = append(errs, errors.New("one of app_id, name or name_contains is required"))
	}
	if e.PreferredStrategy != nil && !validStrategy(*e.PreferredStrategy) {
		errs = append(errs, fmt.Errorf("preferred_strategy %d is not a known strategy", *e.PreferredStrategy))
	}
	return errors.Join(errs...)
}

// key returns a label for error messages.
func (e Entry) key() string {
	switch {
	case e.AppID != "":
		return e.AppID
	case e.Name != "":
		return e.Name
	default:
		return "*" + e.NameContains + "*"
	}
}

// resolve fills unset fields from def.
func (e Entry) resolve(def Profile, source string) Profile {
	p := def
	p.AppID = e.AppID
	p.Name = e.Name
	if p.Name == "" {
		p.Name = e.NameContains
	}
	p.Source = source
	if e.PreferredStrategy != nil {
		p.PreferredStrategy = *e.PreferredStrategy
	}
	if e.SupportsDirectRead != nil {
		p.SupportsDirectRead = *e.SupportsDirectRead
	}
	if e.SupportsDirectWrite != nil {
		p.SupportsDirectWrite = *e.SupportsDirectWrite
	}
	return p
}

func validStrategy(s types.StrategyKind) bool {
	for _, k := range types.Strategies {
		if k == s {
			return true
		}
	}
	return false
}

func normName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
