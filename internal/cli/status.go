package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/app"
	"github.com/zuckermanai/zuckerman-sub001/internal/index"
	"github.com/zuckermanai/zuckerman-sub001/internal/memory"
	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store counts, index stats and metrics",
		Run:   runStatus,
	}

	RootCmd.AddCommand(cmd)
}

type statusReport struct {
	Agent   string             `json:"agent"`
	Root    string             `json:"root"`
	Stores  map[model.Type]int `json:"stores"`
	Index   *index.Stats       `json:"index,omitempty"`
	LLM     bool               `json:"llm"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

func storeCounts(s *memory.Stores) map[model.Type]int {
	return map[model.Type]int{
		model.TypeWorking:     s.Working.Len(),
		model.TypeEpisodic:    len(s.Episodic.Query(memory.EpisodicFilter{})),
		model.TypeSemantic:    len(s.Semantic.Query(memory.SemanticFilter{})),
		model.TypeProcedural:  len(s.Procedural.Query(memory.ProceduralFilter{})),
		model.TypeProspective: len(s.Prospective.Query(memory.ProspectiveFilter{})),
		model.TypeEmotional:   len(s.Emotional.Query(memory.EmotionalFilter{})),
	}
}

func collectStatus(cmd *cobra.Command, a *app.App) statusReport {
	rep := statusReport{
		Agent:  a.Config.Agent,
		Root:   a.Layout.Dir,
		Stores: storeCounts(a.Stores),
		LLM:    a.LLM != nil,
	}
	if a.Index != nil {
		st, err := a.Index.Stats(cmd.Context())
		if err != nil {
			exitErr("stats", err)
		}
		rep.Index = st
	}
	if snap, err := a.Metrics.Snapshot(); err == nil {
		rep.Metrics = snap
	}
	return rep
}

func runStatus(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	rep := collectStatus(cmd, a)
	printOut(rep, func() []string {
		lines := []string{fmt.Sprintf("agent %s at %s", rep.Agent, rep.Root)}
		for _, t := range model.AllTypes {
			lines = append(lines, fmt.Sprintf("  %-11s %d", t, rep.Stores[t]))
		}
		if rep.Index == nil {
			lines = append(lines, "index: unavailable")
		} else {
			fp := rep.Index.Fingerprint
			lines = append(lines,
				fmt.Sprintf("index: %d files, %d chunks (%d embedded), %d cached embeddings", rep.Index.Files, rep.Index.Chunks, rep.Index.EmbeddedChunks, rep.Index.CacheEntries),
				fmt.Sprintf("  %s/%s dims=%d chunk=%d/%d", fp.Provider, fp.Model, rep.Index.Dims, fp.Tokens, fp.Overlap))
		}
		keys := make([]string, 0, len(rep.Metrics))
		for k := range rep.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("  %s %g", k, rep.Metrics[k]))
		}
		return lines
	})
}
