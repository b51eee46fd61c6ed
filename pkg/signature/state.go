package signature

import (
	"sort"
	"sync"
)

// Record is the outcome of the last build attempt for an output path.
type Record struct {
	Signature Signature
	OK        bool
}

// State holds the signature records of one project session. Tasks without
// outputs are recorded by task name. It is safe for concurrent use.
type State struct {
	mu      sync.RWMutex
	records map[string]Record
	tasks   map[string]Record
}

// NewState creates an empty state
func NewState() *State {
	return &State{
		records: make(map[string]Record),
		tasks:   make(map[string]Record),
	}
}

// Get returns the record for an output path
func (s *State) Get(path string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[path]
	return r, ok
}

// Put records the same outcome for all outputs of a task in one step
func (s *State) Put(paths []string, sig Signature, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		s.records[p] = Record{Signature: sig, OK: ok}
	}
}

// Remove forgets the records of the given paths
func (s *State) Remove(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		delete(s.records, p)
	}
}

// Paths returns every recorded output path in lexical order
func (s *State) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.records))
	for p := range s.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// PutTask records the outcome of a task without outputs
func (s *State) PutTask(name string, sig Signature, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = Record{Signature: sig, OK: ok}
}

// TaskUpToDate reports whether the task without outputs has a successful
// record matching sig
func (s *State) TaskUpToDate(name string, sig Signature) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.tasks[name]
	return ok && r.OK && r.Signature == sig
}

// ClearTasks drops the records of tasks without outputs
func (s *State) ClearTasks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]Record)
}

// Len returns the number of output records
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear drops every record
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record)
	s.tasks = make(map[string]Record)
}

// UpToDate reports whether every path has a successful record matching sig.
// It is false for an empty path list, use TaskUpToDate for those tasks.
func (s *State) UpToDate(paths []string, sig Signature) bool {
	if len(paths) == 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range paths {
		r, ok := s.records[p]
		if !ok || !r.OK || r.Signature != sig {
			return false
		}
	}
	return true
}
