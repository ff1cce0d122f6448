package memory

import "sync"

// Locks hands out one mutex per file path. Every load→modify→save cycle on
// a file holds that file's mutex.
type Locks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

// NewLocks returns an empty registry.
func NewLocks() *Locks {
	return &Locks{m: make(map[string]*sync.Mutex)}
}

// For returns the mutex for path.
func (l *Locks) For(path string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.m[path]
	if !ok {
		mu = &sync.Mutex{}
		l.m[path] = mu
	}
	return mu
}
