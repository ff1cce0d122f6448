package memory

import (
	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

type SemanticInput struct {
	Fact       string
	Category   string
	Confidence float64
	Source     string
}

type SemanticFilter struct {
	Category      string
	Text          string
	MinConfidence float64
	Limit         int
}

type SemanticPatch struct {
	Fact       *string
	Category   *string
	Confidence *float64
	Source     *string
}

// SemanticStore holds durable facts. Adds are mirrored to MEMORY.md.
type SemanticStore struct {
	c   *collection[model.SemanticMemory, *model.SemanticMemory]
	env *env
}

func (s *SemanticStore) Add(in SemanticInput) (string, error) {
	m, err := s.c.add(model.SemanticMemory{
		Fact:       in.Fact,
		Category:   in.Category,
		Confidence: model.Clamp01(in.Confidence),
		Source:     in.Source,
	})
	if err != nil {
		return "", err
	}
	if s.env.mirror != nil {
		if err := s.env.mirror.AppendFact(in.Fact); err != nil {
			s.env.log.Warn("mirror semantic memory failed", zap.String("id", m.ID), zap.Error(err))
		}
	}
	return m.ID, nil
}

func (s *SemanticStore) Get(id string) (model.SemanticMemory, bool) { return s.c.get(id) }

func (s *SemanticStore) Query(f SemanticFilter) []model.SemanticMemory {
	var out []model.SemanticMemory
	for _, m := range s.c.all() {
		if f.Category != "" && m.Category != f.Category {
			continue
		}
		if m.Confidence < f.MinConfidence {
			continue
		}
		if !Matches(m.Fact, f.Text) {
			continue
		}
		out = append(out, m)
	}
	SortByRecency(out)
	return limit(out, f.Limit)
}

func (s *SemanticStore) Update(id string, p SemanticPatch) (bool, error) {
	_, found, err := s.c.update(id, func(m *model.SemanticMemory) (bool, error) {
		if p.Fact != nil {
			m.Fact = *p.Fact
		}
		if p.Category != nil {
			m.Category = *p.Category
		}
		if p.Confidence != nil {
			m.Confidence = model.Clamp01(*p.Confidence)
		}
		if p.Source != nil {
			m.Source = *p.Source
		}
		return true, nil
	})
	return found && err == nil, err
}

func (s *SemanticStore) Remove(id string) (bool, error) { return s.c.remove(id) }
