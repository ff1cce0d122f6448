package memory

import (
	"time"

	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

type EpisodicInput struct {
	Event     string
	Timestamp time.Time // zero for now
	Context   model.EpisodicContext
	ScopeID   string
}

type EpisodicFilter struct {
	ScopeID string
	Text    string
	Since   time.Time
	Until   time.Time
	Limit   int
}

type EpisodicPatch struct {
	Event     *string
	Timestamp *time.Time
	Context   *model.EpisodicContext
}

// EpisodicStore holds timestamped events. Adds are mirrored to the daily log.
type EpisodicStore struct {
	c   *collection[model.EpisodicMemory, *model.EpisodicMemory]
	env *env
}

func (s *EpisodicStore) Add(in EpisodicInput) (string, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.env.now()
	}
	m, err := s.c.add(model.EpisodicMemory{
		Event:     in.Event,
		Timestamp: ts.UTC(),
		Context:   in.Context,
		ScopeID:   in.ScopeID,
	})
	if err != nil {
		return "", err
	}
	if s.env.mirror != nil {
		if err := s.env.mirror.AppendEvent(ts, in.Event); err != nil {
			s.env.log.Warn("mirror episodic memory failed", zap.String("id", m.ID), zap.Error(err))
		}
	}
	return m.ID, nil
}

func (s *EpisodicStore) Get(id string) (model.EpisodicMemory, bool) { return s.c.get(id) }

func (s *EpisodicStore) Query(f EpisodicFilter) []model.EpisodicMemory {
	var out []model.EpisodicMemory
	for _, m := range s.c.all() {
		if f.ScopeID != "" && m.ScopeID != f.ScopeID {
			continue
		}
		if !f.Since.IsZero() && m.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && m.Timestamp.After(f.Until) {
			continue
		}
		if !Matches(m.Event, f.Text) {
			continue
		}
		out = append(out, m)
	}
	SortByRecency(out)
	return limit(out, f.Limit)
}

func (s *EpisodicStore) Update(id string, p EpisodicPatch) (bool, error) {
	_, found, err := s.c.update(id, func(m *model.EpisodicMemory) (bool, error) {
		if p.Event != nil {
			m.Event = *p.Event
		}
		if p.Timestamp != nil {
			m.Timestamp = p.Timestamp.UTC()
		}
		if p.Context != nil {
			m.Context = *p.Context
		}
		return true, nil
	})
	return found && err == nil, err
}

func (s *EpisodicStore) Remove(id string) (bool, error) { return s.c.remove(id) }
