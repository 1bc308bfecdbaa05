package autoprocess

import (
	"sort"
	"sync"

	"github.com/c360/autoprocess/errors"
)

// Set holds the compiled processes known to a running service, indexed by ID and by
// source series. It is safe for concurrent use.
type Set struct {
	mu       sync.RWMutex
	byID     map[string]*Process
	bySource map[SeriesRef]map[string]*Process
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{
		byID:     make(map[string]*Process),
		bySource: make(map[SeriesRef]map[string]*Process),
	}
}

// Put adds or replaces a process. It fails when another process already writes the
// same target series, since two processes appending to one series would conflict.
func (s *Set) Put(p *Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, other := range s.byID {
		if id != p.ID() && other.Target() == p.Target() {
			return errors.ConfigErrorf("target", "%s is already the target of process %s", p.Target(), id)
		}
	}

	s.removeLocked(p.ID())
	s.byID[p.ID()] = p
	if s.bySource[p.Source()] == nil {
		s.bySource[p.Source()] = make(map[string]*Process)
	}
	s.bySource[p.Source()][p.ID()] = p
	return nil
}

// Remove deletes a process and reports whether it was present.
func (s *Set) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Set) removeLocked(id string) bool {
	old, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	if m := s.bySource[old.Source()]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(s.bySource, old.Source())
		}
	}
	return true
}

// Get returns the process with the given ID.
func (s *Set) Get(id string) (*Process, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	return p, ok
}

// BySource returns the processes reading a series, ordered by ID.
func (s *Set) BySource(ref SeriesRef) []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Process, 0, len(s.bySource[ref]))
	for _, p := range s.bySource[ref] {
		out = append(out, p)
	}
	sortByID(out)
	return out
}

// All returns every process ordered by ID.
func (s *Set) All() []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Process, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	sortByID(out)
	return out
}

// Len returns the number of processes.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func sortByID(ps []*Process) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID() < ps[j].ID() })
}
