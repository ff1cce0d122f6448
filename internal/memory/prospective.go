package memory

import (
	"sort"
	"strings"
	"time"

	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

type ProspectiveInput struct {
	Intention      string
	TriggerTime    *time.Time
	TriggerContext string
	Priority       float64
}

// ProspectiveFilter selects intentions. Filtering on StatusPending orders
// the result by trigger time.
type ProspectiveFilter struct {
	Status model.ProspectiveStatus
	Text   string
	Limit  int
}

// ProspectivePatch changes the non-nil fields. Status moves only through
// Trigger and Complete.
type ProspectivePatch struct {
	Intention      *string
	TriggerTime    *time.Time
	ClearTrigger   bool
	TriggerContext *string
	Priority       *float64
}

// ProspectiveStore holds future intentions.
type ProspectiveStore struct {
	c *collection[model.ProspectiveMemory, *model.ProspectiveMemory]
}

func (s *ProspectiveStore) Add(in ProspectiveInput) (string, error) {
	m := model.ProspectiveMemory{
		Intention:      in.Intention,
		TriggerContext: in.TriggerContext,
		Status:         model.StatusPending,
		Priority:       model.Clamp01(in.Priority),
	}
	if in.TriggerTime != nil {
		t := in.TriggerTime.UTC()
		m.TriggerTime = &t
	}
	m, err := s.c.add(m)
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (s *ProspectiveStore) Get(id string) (model.ProspectiveMemory, bool) { return s.c.get(id) }

func (s *ProspectiveStore) Query(f ProspectiveFilter) []model.ProspectiveMemory {
	var out []model.ProspectiveMemory
	for _, m := range s.c.all() {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if !Matches(m.Intention+" "+m.TriggerContext, f.Text) {
			continue
		}
		out = append(out, m)
	}
	SortByRecency(out)
	if f.Status == model.StatusPending {
		sortDue(out)
	}
	return limit(out, f.Limit)
}

func (s *ProspectiveStore) Update(id string, p ProspectivePatch) (bool, error) {
	_, found, err := s.c.update(id, func(m *model.ProspectiveMemory) (bool, error) {
		if p.Intention != nil {
			m.Intention = *p.Intention
		}
		if p.ClearTrigger {
			m.TriggerTime = nil
		} else if p.TriggerTime != nil {
			t := p.TriggerTime.UTC()
			m.TriggerTime = &t
		}
		if p.TriggerContext != nil {
			m.TriggerContext = *p.TriggerContext
		}
		if p.Priority != nil {
			m.Priority = model.Clamp01(*p.Priority)
		}
		return true, nil
	})
	return found && err == nil, err
}

func (s *ProspectiveStore) Remove(id string) (bool, error) { return s.c.remove(id) }

// Trigger moves a pending intention to triggered.
func (s *ProspectiveStore) Trigger(id string) error {
	return s.transition(id, model.StatusPending, model.StatusTriggered)
}

// Complete moves a triggered intention to completed.
func (s *ProspectiveStore) Complete(id string) error {
	return s.transition(id, model.StatusTriggered, model.StatusCompleted)
}

func (s *ProspectiveStore) transition(id string, from, to model.ProspectiveStatus) error {
	_, found, err := s.c.update(id, func(m *model.ProspectiveMemory) (bool, error) {
		if m.Status != from {
			return false, ErrInvalidTransition
		}
		m.Status = to
		return true, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// GetDue returns pending intentions whose trigger time is at or before now.
func (s *ProspectiveStore) GetDue(now time.Time) []model.ProspectiveMemory {
	var out []model.ProspectiveMemory
	for _, m := range s.c.all() {
		if m.Status == model.StatusPending && m.TriggerTime != nil && !m.TriggerTime.After(now) {
			out = append(out, m)
		}
	}
	sortDue(out)
	return out
}

// GetByContext returns pending intentions whose trigger context matches ctx
// in either direction, ignoring case.
func (s *ProspectiveStore) GetByContext(ctx string) []model.ProspectiveMemory {
	c := strings.ToLower(strings.TrimSpace(ctx))
	if c == "" {
		return nil
	}
	var out []model.ProspectiveMemory
	for _, m := range s.c.all() {
		tc := strings.ToLower(strings.TrimSpace(m.TriggerContext))
		if m.Status != model.StatusPending || tc == "" {
			continue
		}
		if strings.Contains(c, tc) || strings.Contains(tc, c) {
			out = append(out, m)
		}
	}
	sortDue(out)
	return out
}

// sortDue orders by trigger time (unset last), then priority descending.
func sortDue(items []model.ProspectiveMemory) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].TriggerTime, items[j].TriggerTime
		switch {
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return items[i].Priority > items[j].Priority
	})
}
