package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/manager"
	"github.com/zuckermanai/zuckerman-sub001/internal/memory"
	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

func openStores(t *testing.T) *memory.Stores {
	t.Helper()
	s, err := memory.Open(memory.Options{Layout: config.Layout{Dir: t.TempDir()}, NoMirror: true})
	require.NoError(t, err)
	return s
}

func TestExportImport_RemapsTargetsAndStatus(t *testing.T) {
	src := openStores(t)
	factID, err := src.Semantic.Add(memory.SemanticInput{Fact: "Prefers dark mode", Confidence: 0.9})
	require.NoError(t, err)
	_, err = src.Emotional.Add(memory.EmotionalInput{TargetMemoryID: factID, TargetMemoryType: model.TypeSemantic, Kind: "joy", Intensity: 0.7})
	require.NoError(t, err)
	_, err = src.Emotional.Add(memory.EmotionalInput{TargetMemoryID: "gone", TargetMemoryType: model.TypeEpisodic, Kind: "regret", Intensity: 0.2})
	require.NoError(t, err)
	remindID, err := src.Prospective.Add(memory.ProspectiveInput{Intention: "Call mom", Priority: 0.4})
	require.NoError(t, err)
	require.NoError(t, src.Prospective.Trigger(remindID))
	require.NoError(t, src.Prospective.Complete(remindID))
	_, err = src.Procedural.Add(memory.ProceduralInput{Pattern: "deploy", Trigger: "deploy", Action: "make ship", SuccessCount: 3, FailureCount: 1})
	require.NoError(t, err)

	dst := openStores(t)
	n, err := importStores(dst, exportStores(src))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	facts := dst.Semantic.Query(memory.SemanticFilter{})
	require.Len(t, facts, 1)
	assert.NotEqual(t, factID, facts[0].ID)
	tags := dst.Emotional.ForTarget(facts[0].ID)
	require.Len(t, tags, 1)
	assert.Equal(t, "joy", tags[0].Emotion.Kind)
	assert.Len(t, dst.Emotional.ForTarget("gone"), 1, "dangling targets are kept as-is")

	reminders := dst.Prospective.Query(memory.ProspectiveFilter{})
	require.Len(t, reminders, 1)
	assert.Equal(t, model.StatusCompleted, reminders[0].Status)

	procs := dst.Procedural.Query(memory.ProceduralFilter{})
	require.Len(t, procs, 1)
	assert.InDelta(t, 0.75, procs[0].SuccessRate, 1e-9)
}

func TestPackBudget(t *testing.T) {
	now := time.Now()
	items := []manager.Item{
		{ID: "a", Content: "one two three", UpdatedAt: now},
		{ID: "b", Content: "four five six seven eight", UpdatedAt: now},
		{ID: "c", Content: "nine", UpdatedAt: now},
	}

	out := packBudget(items, 4)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "a", out.Items[0].ID)
	assert.Equal(t, "c", out.Items[1].ID)
	assert.Equal(t, 4, out.Tokens)

	out = packBudget(items, 0)
	assert.Len(t, out.Items, 3)
	assert.Equal(t, 9, out.Tokens)
}

func TestParseWhen(t *testing.T) {
	got, err := parseWhen("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseWhen("2024-06-01T09:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), got.UTC())

	before := time.Now()
	got, err = parseWhen("90m")
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(90*time.Minute), *got, 5*time.Second)

	_, err = parseWhen("tomorrow")
	assert.Error(t, err)
}

func TestParseTypes(t *testing.T) {
	types, err := parseTypes([]string{"semantic", "episodic"})
	require.NoError(t, err)
	assert.Equal(t, []model.Type{model.TypeSemantic, model.TypeEpisodic}, types)

	_, err = parseTypes([]string{"dreams"})
	assert.Error(t, err)
}
