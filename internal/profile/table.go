package profile

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/typofix/pkg/types"
)

// Table is an immutable lookup table of profiles. Extending a table returns a
// new one, so a profile obtained from a table never changes underneath a
// running correction cycle.
type Table struct {
	def      Profile
	byID     map[string]Profile
	byName   map[string]Profile
	contains []Profile // matched by substring of the lowercased name, in order
}

// NewTable builds a table from entries, later entries overriding earlier ones
// for the same key. Unknown applications resolve to def.
func NewTable(def Profile, source string, entries ...Entry) (*Table, error) {
	t := &Table{
		def:    def,
		byID:   make(map[string]Profile),
		byName: make(map[string]Profile),
	}
	if err := t.add(source, entries); err != nil {
		return nil, err
	}
	return t, nil
}

// Builtin returns a table holding the built-in profiles over [Default].
func Builtin() *Table {
	t, err := NewTable(Default(), "builtin", BuiltinEntries()...)
	if err != nil {
		panic(fmt.Sprintf("profile: invalid builtin table: %v", err))
	}
	return t
}

// With returns a copy of t extended with entries. t itself is unchanged.
func (t *Table) With(source string, entries ...Entry) (*Table, error) {
	n := &Table{
		def:      t.def,
		byID:     make(map[string]Profile, len(t.byID)+len(entries)),
		byName:   make(map[string]Profile, len(t.byName)+len(entries)),
		contains: slices.Clone(t.contains),
	}
	for k, v := range t.byID {
		n.byID[k] = v
	}
	for k, v := range t.byName {
		n.byName[k] = v
	}
	if err := n.add(source, entries); err != nil {
		return nil, err
	}
	return n, nil
}

func (t *Table) add(source string, entries []Entry) error {
	var errs []error
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("profile %d (%s): %w", i, e.key(), err))
			continue
		}
		p := e.resolve(t.def, source)
		if e.AppID != "" {
			t.byID[e.AppID] = p
		}
		if e.Name != "" {
			t.byName[normName(e.Name)] = p
		}
		if e.NameContains != "" {
			needle := normName(e.NameContains)
			t.contains = slices.DeleteFunc(t.contains, func(c Profile) bool { return normName(c.Name) == needle })
			t.contains = append(t.contains, p)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("profile: %w", errors.Join(errs...))
	}
	return nil
}

// Lookup returns the profile for target: by application identifier first,
// then by exact case-insensitive name, then by name substring, else the
// default profile.
func (t *Table) Lookup(target types.FocusTarget) Profile {
	if target.AppID != "" {
		if p, ok := t.byID[target.AppID]; ok {
			return p
		}
	}
	name := normName(target.Name)
	if name != "" {
		if p, ok := t.byName[name]; ok {
			return p
		}
		for _, p := range t.contains {
			if strings.Contains(name, normName(p.Name)) {
				return p
			}
		}
	}
	return t.def
}

// Default returns the profile used for unknown applications.
func (t *Table) Default() Profile { return t.def }

// Profiles returns every distinct profile in the table, sorted by name then
// application identifier.
func (t *Table) Profiles() []Profile {
	seen := make(map[Profile]struct{})
	var out []Profile
	add := func(p Profile) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range t.byID {
		add(p)
	}
	for _, p := range t.byName {
		add(p)
	}
	for _, p := range t.contains {
		add(p)
	}
	slices.SortFunc(out, func(a, b Profile) int {
		if c := strings.Compare(normName(a.Name), normName(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.AppID, b.AppID)
	})
	return out
}

// Store holds the current [Table] and swaps it atomically. Readers never
// block; a correction cycle snapshots its profile with one Lookup.
type Store struct {
	cur atomic.Pointer[Table]
}

// NewStore returns a Store serving t.
func NewStore(t *Table) *Store {
	s := &Store{}
	s.cur.Store(t)
	return s
}

// Table returns the current table.
func (s *Store) Table() *Table { return s.cur.Load() }

// Lookup is shorthand for s.Table().Lookup(target).
func (s *Store) Lookup(target types.FocusTarget) Profile { return s.cur.Load().Lookup(target) }

// Replace installs t as the current table.
func (s *Store) Replace(t *Table) { s.cur.Store(t) }

// Extend atomically replaces the current table with one extended by entries.
func (s *Store) Extend(source string, entries ...Entry) error {
	for {
		old := s.cur.Load()
		n, err := old.With(source, entries...)
		if err != nil {
			return err
		}
		if s.cur.CompareAndSwap(old, n) {
			return nil
		}
	}
}
