package coordination

import "sync"

// FileSet remembers spool file names the poller has taken. Names are only
// removed when a file was deferred before it was read, so the set grows for
// the lifetime of the process.
type FileSet struct {
	mu    sync.Mutex
	names map[string]struct{}
}

func NewFileSet() *FileSet {
	return &FileSet{names: make(map[string]struct{})}
}

// Mark adds name and reports false if it was already present.
func (s *FileSet) Mark(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[name]; ok {
		return false
	}
	s.names[name] = struct{}{}
	return true
}

// Unmark releases a name that was marked but not consumed.
func (s *FileSet) Unmark(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.names, name)
}

func (s *FileSet) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.names[name]
	return ok
}

func (s *FileSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}
