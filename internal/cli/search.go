package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/index"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Hybrid search over memory files and transcripts",
		Long:  "Rank indexed chunks by combined vector similarity and full-text relevance.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("limit", "l", 0, "Max results (default: query.maxResults)")
	cmd.Flags().Float64("min-score", -1, "Minimum combined score (default: query.minScore)")
	cmd.Flags().StringSlice("source", nil, "Restrict to sources: memory, conversations")
	cmd.Flags().Bool("no-sync", false, "Skip the sync pass before searching")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	minScore, _ := cmd.Flags().GetFloat64("min-score")
	sources, _ := cmd.Flags().GetStringSlice("source")
	noSync, _ := cmd.Flags().GetBool("no-sync")
	query := strings.Join(args, " ")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()
	if a.Index == nil {
		exitErr("search", fmt.Errorf("hybrid search unavailable (see log)"))
	}

	// a one-shot process has no background sync, so sync in the foreground
	if !noSync && a.Config.Sync.OnSearch {
		if _, err := a.Sync(cmd.Context()); err != nil {
			exitErr("sync", err)
		}
	}

	opts := index.QueryOptionsFrom(a.Config.Query)
	opts.Sources = sources
	if limit > 0 {
		opts.MaxResults = limit
	}
	if minScore >= 0 {
		opts.MinScore = minScore
	}
	results, err := a.Index.Query(cmd.Context(), query, opts)
	if err != nil {
		exitErr("search", err)
	}

	if len(results) == 0 {
		fmt.Println("[]")
		return
	}
	printOut(results, func() []string {
		lines := make([]string, 0, len(results))
		for _, r := range results {
			lines = append(lines, fmt.Sprintf("%.3f  %s:%d-%d  %s", r.Score, r.Path, r.StartLine, r.EndLine, oneLine(r.Text, 100)))
		}
		return lines
	})
}
