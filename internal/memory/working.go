package memory

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

// DefaultWorkingTTL is how long a working memory lives when no TTL is given.
const DefaultWorkingTTL = time.Hour

// WorkingInput is a new working memory.
type WorkingInput struct {
	ScopeID string
	Content string
	Context map[string]any
	TTL     time.Duration // 0 for the store default; negative never expires
}

// WorkingFilter selects working memories. Expired entries are never returned.
type WorkingFilter struct {
	ScopeID string
	Text    string
	Limit   int
}

// WorkingPatch changes the non-nil fields.
type WorkingPatch struct {
	Content *string
	Context map[string]any
}

// WorkingStore keeps scope-local scratch memories in process.
type WorkingStore struct {
	mu    sync.RWMutex
	items map[string]model.WorkingMemory
	ttl   time.Duration
	now   func() time.Time
}

// NewWorkingStore creates an empty store.
func NewWorkingStore(ttl time.Duration, now func() time.Time) *WorkingStore {
	if ttl <= 0 {
		ttl = DefaultWorkingTTL
	}
	if now == nil {
		now = time.Now
	}
	return &WorkingStore{items: make(map[string]model.WorkingMemory), ttl: ttl, now: now}
}

func (s *WorkingStore) Add(in WorkingInput) string {
	now := s.now().UTC()
	m := model.WorkingMemory{
		Base:    model.Base{ID: ulid.Make().String(), Type: model.TypeWorking, CreatedAt: now, UpdatedAt: now},
		ScopeID: in.ScopeID,
		Content: in.Content,
		Context: in.Context,
	}
	ttl := in.TTL
	if ttl == 0 {
		ttl = s.ttl
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		m.ExpiresAt = &exp
	}
	s.mu.Lock()
	s.items[m.ID] = m
	s.mu.Unlock()
	return m.ID
}

func (s *WorkingStore) Get(id string) (model.WorkingMemory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.items[id]
	if !ok || s.expired(m, s.now()) {
		return model.WorkingMemory{}, false
	}
	return m, true
}

func (s *WorkingStore) Query(f WorkingFilter) []model.WorkingMemory {
	now := s.now()
	s.mu.RLock()
	out := make([]model.WorkingMemory, 0, len(s.items))
	for _, m := range s.items {
		if s.expired(m, now) {
			continue
		}
		if f.ScopeID != "" && m.ScopeID != f.ScopeID {
			continue
		}
		if !Matches(m.Content, f.Text) {
			continue
		}
		out = append(out, m)
	}
	s.mu.RUnlock()
	SortByRecency(out)
	return limit(out, f.Limit)
}

func (s *WorkingStore) Update(id string, p WorkingPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[id]
	if !ok || s.expired(m, s.now()) {
		return false
	}
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.Context != nil {
		m.Context = p.Context
	}
	if now := s.now().UTC(); now.After(m.CreatedAt) {
		m.UpdatedAt = now
	} else {
		m.UpdatedAt = m.CreatedAt
	}
	s.items[id] = m
	return true
}

func (s *WorkingStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}

// ClearScope drops every memory of scopeID and returns how many it dropped.
func (s *WorkingStore) ClearScope(scopeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.items {
		if m.ScopeID == scopeID {
			delete(s.items, id)
			n++
		}
	}
	return n
}

// ClearExpired drops expired memories and returns how many it dropped.
func (s *WorkingStore) ClearExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.items {
		if s.expired(m, now) {
			delete(s.items, id)
			n++
		}
	}
	return n
}

// Len counts live entries, expired ones included until swept.
func (s *WorkingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *WorkingStore) expired(m model.WorkingMemory, now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}
