package memory

import (
	"sort"
	"strings"

	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

type ProceduralInput struct {
	Pattern      string
	Trigger      string
	Action       string
	SuccessCount int
	FailureCount int
}

type ProceduralFilter struct {
	Text           string
	MinSuccessRate float64
	Limit          int
}

type ProceduralPatch struct {
	Pattern *string
	Trigger *string
	Action  *string
}

// ProceduralStore holds trigger→action patterns and their success rates.
type ProceduralStore struct {
	c *collection[model.ProceduralMemory, *model.ProceduralMemory]
}

func (s *ProceduralStore) Add(in ProceduralInput) (string, error) {
	succ, fail := max(0, in.SuccessCount), max(0, in.FailureCount)
	m, err := s.c.add(model.ProceduralMemory{
		Pattern:      in.Pattern,
		Trigger:      in.Trigger,
		Action:       in.Action,
		SuccessCount: succ,
		FailureCount: fail,
		SuccessRate:  model.SuccessRate(succ, fail),
	})
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (s *ProceduralStore) Get(id string) (model.ProceduralMemory, bool) { return s.c.get(id) }

func (s *ProceduralStore) Query(f ProceduralFilter) []model.ProceduralMemory {
	var out []model.ProceduralMemory
	for _, m := range s.c.all() {
		if m.SuccessRate < f.MinSuccessRate {
			continue
		}
		if !Matches(m.Pattern+" "+m.Trigger+" "+m.Action, f.Text) {
			continue
		}
		out = append(out, m)
	}
	SortByRecency(out)
	return limit(out, f.Limit)
}

func (s *ProceduralStore) Update(id string, p ProceduralPatch) (bool, error) {
	_, found, err := s.c.update(id, func(m *model.ProceduralMemory) (bool, error) {
		if p.Pattern != nil {
			m.Pattern = *p.Pattern
		}
		if p.Trigger != nil {
			m.Trigger = *p.Trigger
		}
		if p.Action != nil {
			m.Action = *p.Action
		}
		return true, nil
	})
	return found && err == nil, err
}

func (s *ProceduralStore) Remove(id string) (bool, error) { return s.c.remove(id) }

// RecordUse counts one success or failure and recomputes the success rate.
// It returns the updated record.
func (s *ProceduralStore) RecordUse(id string, success bool) (model.ProceduralMemory, error) {
	m, found, err := s.c.update(id, func(m *model.ProceduralMemory) (bool, error) {
		if success {
			m.SuccessCount++
		} else {
			m.FailureCount++
		}
		m.SuccessRate = model.SuccessRate(m.SuccessCount, m.FailureCount)
		return true, nil
	})
	if err != nil {
		return m, err
	}
	if !found {
		return m, ErrNotFound
	}
	return m, nil
}

// FindMatching returns the patterns whose trigger matches text, best
// success rate first.
func (s *ProceduralStore) FindMatching(text string) []model.ProceduralMemory {
	var out []model.ProceduralMemory
	for _, m := range s.c.all() {
		if triggerMatches(m.Trigger, text) {
			out = append(out, m)
		}
	}
	SortByRecency(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SuccessRate > out[j].SuccessRate })
	return out
}

// triggerMatches accepts the trigger as a substring of text, or every word
// of the trigger appearing in text.
func triggerMatches(trigger, text string) bool {
	if strings.TrimSpace(trigger) == "" {
		return false
	}
	return Matches(text, trigger)
}
