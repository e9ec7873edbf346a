// Package registry stores the translations registered for each executable
// unit.
//
// Readers never take a lock: the unit index is a copy-on-write map behind an
// atomic pointer, and each unit's exact table and pattern list are published
// with a single pointer swap. A reader therefore sees either the previous
// table or the new one, never a partially populated one.
package registry

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pboyd/retext/apis"
	"github.com/pboyd/retext/pattern"
)

// ExactTable is an immutable original -> translated mapping.
type ExactTable struct {
	m map[string]string
}

// NewExactTable copies m into a table.
func NewExactTable(m map[string]string) *ExactTable {
	return &ExactTable{m: maps.Clone(m)}
}

// Get returns the translation of s.
func (t *ExactTable) Get(s string) (string, bool) {
	if t == nil {
		return "", false
	}
	v, ok := t.m[s]
	return v, ok
}

// Len returns the number of entries.
func (t *ExactTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.m)
}

// All returns a copy of the mapping.
func (t *ExactTable) All() map[string]string {
	if t == nil {
		return nil
	}
	return maps.Clone(t.m)
}

// CacheMetrics is a snapshot of a unit's lookup counters.
type CacheMetrics struct {
	Hits   uint64
	Misses uint64
}

// slot holds everything registered for one unit. The pointers are swapped
// whole, the counters only grow.
type slot struct {
	exact    atomic.Pointer[ExactTable]
	patterns atomic.Pointer[pattern.List]
	hits     atomic.Uint64
	misses   atomic.Uint64
}

type index map[apis.UnitID]*slot

// Registry maps unit ids to their translations. The zero value is not
// usable, call New.
type Registry struct {
	log *slog.Logger

	// mu serializes writers. Readers only load idx.
	mu  sync.Mutex
	idx atomic.Pointer[index]

	// unknownMisses counts lookups for units that were never registered.
	unknownMisses atomic.Uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	r.idx.Store(&index{})
	return r
}

func (r *Registry) load(id apis.UnitID) *slot {
	return (*r.idx.Load())[id]
}

// slotFor returns the unit's slot, adding one if needed. Callers must hold
// r.mu.
func (r *Registry) slotFor(id apis.UnitID) *slot {
	cur := *r.idx.Load()
	if s, ok := cur[id]; ok {
		return s
	}

	next := make(index, len(cur)+1)
	maps.Copy(next, cur)
	s := &slot{}
	next[id] = s
	r.idx.Store(&next)
	return s
}

// Register replaces the unit's exact table with a copy of m.
func (r *Registry) Register(id apis.UnitID, m map[string]string) {
	t := NewExactTable(m)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.slotFor(id).exact.Store(t)
}

// RegisterPatterns compiles entries and replaces the unit's pattern list.
// Entries that fail to compile are logged and kept as rules that never
// match. The returned error reports them.
func (r *Registry) RegisterPatterns(id apis.UnitID, entries []apis.TranslationEntry) error {
	l, err := pattern.Build(entries)
	if err != nil {
		r.log.Warn("Invalid translation patterns.", "unit", id, "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.slotFor(id).patterns.Store(l)
	return err
}

// Lookup returns the unit's exact table.
func (r *Registry) Lookup(id apis.UnitID) (*ExactTable, bool) {
	s := r.load(id)
	if s == nil {
		r.unknownMisses.Add(1)
		return nil, false
	}
	t := s.exact.Load()
	if t == nil {
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	return t, true
}

// LookupPatterns returns the unit's pattern list.
func (r *Registry) LookupPatterns(id apis.UnitID) (*pattern.List, bool) {
	s := r.load(id)
	if s == nil {
		r.unknownMisses.Add(1)
		return nil, false
	}
	l := s.patterns.Load()
	if l == nil {
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	return l, true
}

// Remove drops everything registered for the unit. It does not affect a
// rewrite that was already installed.
func (r *Registry) Remove(id apis.UnitID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.idx.Load()
	if _, ok := cur[id]; !ok {
		return false
	}
	next := maps.Clone(cur)
	delete(next, id)
	r.idx.Store(&next)
	return true
}

// Metrics returns the unit's counters. Unknown units report zero.
func (r *Registry) Metrics(id apis.UnitID) CacheMetrics {
	s := r.load(id)
	if s == nil {
		return CacheMetrics{}
	}
	return CacheMetrics{Hits: s.hits.Load(), Misses: s.misses.Load()}
}

// Totals sums the counters of every registered unit plus the misses for
// units that were never registered.
func (r *Registry) Totals() CacheMetrics {
	total := CacheMetrics{Misses: r.unknownMisses.Load()}
	for _, s := range *r.idx.Load() {
		total.Hits += s.hits.Load()
		total.Misses += s.misses.Load()
	}
	return total
}

// Units returns the registered unit ids, sorted.
func (r *Registry) Units() []apis.UnitID {
	return slices.Sorted(maps.Keys(*r.idx.Load()))
}

// Len returns the number of registered units.
func (r *Registry) Len() int {
	return len(*r.idx.Load())
}

// Clear removes every unit and resets the counters.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idx.Store(&index{})
	r.unknownMisses.Store(0)
}
