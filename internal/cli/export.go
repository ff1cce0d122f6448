package cli

import (
	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/memory"
	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export persisted memories as JSON",
		Long:  "Export every persisted store as one JSON document keyed by memory type. Working memory is process-local and never exported.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

// dump is the document written by export and read by import.
type dump struct {
	Episodic    []model.EpisodicMemory    `json:"episodic"`
	Semantic    []model.SemanticMemory    `json:"semantic"`
	Procedural  []model.ProceduralMemory  `json:"procedural"`
	Prospective []model.ProspectiveMemory `json:"prospective"`
	Emotional   []model.EmotionalMemory   `json:"emotional"`
}

func exportStores(s *memory.Stores) dump {
	return dump{
		Episodic:    s.Episodic.Query(memory.EpisodicFilter{}),
		Semantic:    s.Semantic.Query(memory.SemanticFilter{}),
		Procedural:  s.Procedural.Query(memory.ProceduralFilter{}),
		Prospective: s.Prospective.Query(memory.ProspectiveFilter{}),
		Emotional:   s.Emotional.Query(memory.EmotionalFilter{}),
	}
}

func runExport(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	printOut(exportStores(a.Stores), nil)
}
