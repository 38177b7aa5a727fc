package profile

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a profile table YAML file.
//
// Example:
//
//	profiles:
//	  - app_id: com.jetbrains.goland
//	    preferred_strategy: clipboard_paste
//	    supports_direct_write: false
//	  - name_contains: electron
//	    preferred_strategy: clipboard_paste
type File struct {
	Profiles []Entry `yaml:"profiles"`
}

// LoadFile reads and parses a profile table file from disk.
func LoadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("profile: open %q: %w", path, err)
	}
	defer f.Close()

	entries, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("profile: parse %q: %w", path, err)
	}
	return entries, nil
}

// LoadFromReader parses a profile table from r. Unknown keys are rejected to
// catch typos; an empty document yields no entries.
func LoadFromReader(r io.Reader) ([]Entry, error) {
	var pf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("profile: decode yaml: %w", err)
	}
	for i, e := range pf.Profiles {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("profile: entry %d (%s): %w", i, e.key(), err)
		}
	}
	return pf.Profiles, nil
}
