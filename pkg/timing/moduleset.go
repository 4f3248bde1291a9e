package timing

import "sync"

// ModuleSet is an identifier-keyed table of module records that remembers
// the order in which identifiers were first seen. Adding a record for a known
// identifier merges it into the existing entry instead of duplicating it.
//
// ModuleSet is safe for concurrent use.
type ModuleSet struct {
	mu    sync.RWMutex
	index map[string]int
	items []ModuleTiming
}

// NewModuleSet creates an empty set.
func NewModuleSet() *ModuleSet {
	return &ModuleSet{index: make(map[string]int)}
}

// Add merges m into the set and returns the merged record.
// Records without a resolved identifier are ignored.
func (s *ModuleSet) Add(m ModuleTiming) (ModuleTiming, bool) {
	if m.ResolvedIdentifier == "" {
		return ModuleTiming{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[m.ResolvedIdentifier]; ok {
		s.items[i] = s.items[i].Merge(m)
		return s.items[i], true
	}

	s.index[m.ResolvedIdentifier] = len(s.items)
	s.items = append(s.items, m)
	return m, true
}

// AddAll merges every record of ms into the set.
func (s *ModuleSet) AddAll(ms []ModuleTiming) {
	for _, m := range ms {
		s.Add(m)
	}
}

// Get returns the record for id.
func (s *ModuleSet) Get(id string) (ModuleTiming, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return ModuleTiming{}, false
	}
	return s.items[i], true
}

// Len returns the number of distinct identifiers.
func (s *ModuleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Snapshot returns a copy of all records in first-seen order.
func (s *ModuleSet) Snapshot() []ModuleTiming {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ModuleTiming, len(s.items))
	copy(out, s.items)
	return out
}
