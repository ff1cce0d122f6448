package manager

import (
	"time"

	"github.com/zuckermanai/zuckerman-sub001/internal/memory"
	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

func (m *Manager) AddWorkingMemory(in memory.WorkingInput) string {
	return m.stores.Working.Add(in)
}

func (m *Manager) GetWorkingMemories(scopeID string) []model.WorkingMemory {
	return m.stores.Working.Query(memory.WorkingFilter{ScopeID: scopeID})
}

func (m *Manager) ClearWorkingMemory(scopeID string) int {
	return m.stores.Working.ClearScope(scopeID)
}

func (m *Manager) AddEpisodicMemory(in memory.EpisodicInput) (string, error) {
	return m.stores.Episodic.Add(in)
}

func (m *Manager) GetEpisodicMemories(f memory.EpisodicFilter) []model.EpisodicMemory {
	return m.stores.Episodic.Query(f)
}

func (m *Manager) AddSemanticMemory(in memory.SemanticInput) (string, error) {
	return m.stores.Semantic.Add(in)
}

func (m *Manager) GetSemanticMemories() []model.SemanticMemory {
	return m.stores.Semantic.Query(memory.SemanticFilter{})
}

func (m *Manager) AddProceduralMemory(in memory.ProceduralInput) (string, error) {
	return m.stores.Procedural.Add(in)
}

func (m *Manager) FindProcedures(trigger string) []model.ProceduralMemory {
	return m.stores.Procedural.FindMatching(trigger)
}

func (m *Manager) AddProspectiveMemory(in memory.ProspectiveInput) (string, error) {
	return m.stores.Prospective.Add(in)
}

// GetDueReminders returns pending intentions due at now, plus those whose
// trigger context matches contextText when it is set.
func (m *Manager) GetDueReminders(now time.Time, contextText string) []model.ProspectiveMemory {
	due := m.stores.Prospective.GetDue(now)
	if contextText == "" {
		return due
	}
	seen := make(map[string]bool, len(due))
	for _, d := range due {
		seen[d.ID] = true
	}
	for _, c := range m.stores.Prospective.GetByContext(contextText) {
		if !seen[c.ID] {
			due = append(due, c)
		}
	}
	return due
}

func (m *Manager) AddEmotionalMemory(in memory.EmotionalInput) (string, error) {
	return m.stores.Emotional.Add(in)
}
