package memory

import (
	"time"

	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

type EmotionalInput struct {
	TargetMemoryID   string
	TargetMemoryType model.Type
	Kind             string
	Intensity        float64
	Timestamp        time.Time // zero for now
}

type EmotionalFilter struct {
	TargetMemoryID string
	Kind           string
	Limit          int
}

type EmotionalPatch struct {
	Kind      *string
	Intensity *float64
}

// EmotionalStore holds emotion tags on other memories. Targets are not
// checked: a tag may outlive the memory it points at.
type EmotionalStore struct {
	c *collection[model.EmotionalMemory, *model.EmotionalMemory]
}

func (s *EmotionalStore) Add(in EmotionalInput) (string, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.c.now()
	}
	m, err := s.c.add(model.EmotionalMemory{
		TargetMemoryID:   in.TargetMemoryID,
		TargetMemoryType: in.TargetMemoryType,
		Emotion: model.Emotion{
			Kind:      in.Kind,
			Intensity: model.Clamp01(in.Intensity),
			Timestamp: ts.UTC(),
		},
	})
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (s *EmotionalStore) Get(id string) (model.EmotionalMemory, bool) { return s.c.get(id) }

func (s *EmotionalStore) Query(f EmotionalFilter) []model.EmotionalMemory {
	var out []model.EmotionalMemory
	for _, m := range s.c.all() {
		if f.TargetMemoryID != "" && m.TargetMemoryID != f.TargetMemoryID {
			continue
		}
		if f.Kind != "" && m.Emotion.Kind != f.Kind {
			continue
		}
		out = append(out, m)
	}
	SortByRecency(out)
	return limit(out, f.Limit)
}

func (s *EmotionalStore) Update(id string, p EmotionalPatch) (bool, error) {
	_, found, err := s.c.update(id, func(m *model.EmotionalMemory) (bool, error) {
		if p.Kind != nil {
			m.Emotion.Kind = *p.Kind
		}
		if p.Intensity != nil {
			m.Emotion.Intensity = model.Clamp01(*p.Intensity)
		}
		return true, nil
	})
	return found && err == nil, err
}

func (s *EmotionalStore) Remove(id string) (bool, error) { return s.c.remove(id) }

// ForTarget returns every tag on the memory with id.
func (s *EmotionalStore) ForTarget(id string) []model.EmotionalMemory {
	return s.Query(EmotionalFilter{TargetMemoryID: id})
}
