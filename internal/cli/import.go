package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/memory"
	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import memories from JSON",
		Long:  "Import memories from stdin. Expects the format produced by export. Records get new ids; emotional tags are re-pointed at the new ids when their target was imported too.",
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var d dump
	if err := json.Unmarshal(data, &d); err != nil {
		exitErr("parse json", err)
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	n, err := importStores(a.Stores, d)
	if err != nil {
		exitErr("import", err)
	}
	printOut(map[string]any{"ok": true, "imported": n}, func() []string {
		return []string{fmt.Sprintf("imported %d memories", n)}
	})
}

func importStores(s *memory.Stores, d dump) (int, error) {
	ids := make(map[string]string)
	n := 0
	keep := func(old, id string, err error) error {
		if err != nil {
			return err
		}
		ids[old] = id
		n++
		return nil
	}

	for _, m := range d.Episodic {
		id, err := s.Episodic.Add(memory.EpisodicInput{Event: m.Event, Timestamp: m.Timestamp, Context: m.Context, ScopeID: m.ScopeID})
		if err := keep(m.ID, id, err); err != nil {
			return n, err
		}
	}
	for _, m := range d.Semantic {
		id, err := s.Semantic.Add(memory.SemanticInput{Fact: m.Fact, Category: m.Category, Confidence: m.Confidence, Source: m.Source})
		if err := keep(m.ID, id, err); err != nil {
			return n, err
		}
	}
	for _, m := range d.Procedural {
		id, err := s.Procedural.Add(memory.ProceduralInput{
			Pattern: m.Pattern, Trigger: m.Trigger, Action: m.Action,
			SuccessCount: m.SuccessCount, FailureCount: m.FailureCount,
		})
		if err := keep(m.ID, id, err); err != nil {
			return n, err
		}
	}
	for _, m := range d.Prospective {
		id, err := s.Prospective.Add(memory.ProspectiveInput{
			Intention: m.Intention, TriggerTime: m.TriggerTime,
			TriggerContext: m.TriggerContext, Priority: m.Priority,
		})
		if err := keep(m.ID, id, err); err != nil {
			return n, err
		}
		if err := restoreStatus(s.Prospective, id, m.Status); err != nil {
			return n, err
		}
	}
	for _, m := range d.Emotional {
		target := m.TargetMemoryID
		if id, ok := ids[target]; ok {
			target = id
		}
		id, err := s.Emotional.Add(memory.EmotionalInput{
			TargetMemoryID: target, TargetMemoryType: m.TargetMemoryType,
			Kind: m.Emotion.Kind, Intensity: m.Emotion.Intensity, Timestamp: m.Emotion.Timestamp,
		})
		if err := keep(m.ID, id, err); err != nil {
			return n, err
		}
	}
	return n, nil
}

// restoreStatus replays the forward transitions up to status.
func restoreStatus(s *memory.ProspectiveStore, id string, status model.ProspectiveStatus) error {
	switch status {
	case model.StatusTriggered:
		return s.Trigger(id)
	case model.StatusCompleted:
		if err := s.Trigger(id); err != nil {
			return err
		}
		return s.Complete(id)
	}
	return nil
}
