package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/chunker"
	"github.com/zuckermanai/zuckerman-sub001/internal/manager"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Assemble relevant memories for a task",
		Long:  "Retrieve matching memories from every store and the index, then greedily pack them, newest first, into a token budget.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecall,
	}

	cmd.Flags().StringSliceP("type", "t", nil, "Filter by type (repeatable)")
	cmd.Flags().StringP("scope", "s", "", "Filter by scope id")
	cmd.Flags().IntP("limit", "l", manager.DefaultLimit, "Max memories considered")
	cmd.Flags().IntP("budget", "b", 4000, "Max tokens in output")

	RootCmd.AddCommand(cmd)
}

type recallResult struct {
	Query  string         `json:"query"`
	Items  []manager.Item `json:"items"`
	Total  int            `json:"total"`
	Tokens int            `json:"tokens"`
	Budget int            `json:"budget"`
}

func runRecall(cmd *cobra.Command, args []string) {
	typeNames, _ := cmd.Flags().GetStringSlice("type")
	scope, _ := cmd.Flags().GetString("scope")
	limit, _ := cmd.Flags().GetInt("limit")
	budget, _ := cmd.Flags().GetInt("budget")
	query := strings.Join(args, " ")

	types, err := parseTypes(typeNames)
	if err != nil {
		exitErr("recall", err)
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	res, err := a.Manager.RetrieveMemories(cmd.Context(), manager.RetrieveParams{
		Query: query, Types: types, ScopeID: scope, Limit: limit,
	})
	if err != nil {
		exitErr("recall", err)
	}

	out := packBudget(res.Items, budget)
	out.Query = query
	out.Total = res.Total
	printOut(out, func() []string { return itemLines(out.Items) })
}

// packBudget keeps items in order while they fit in budget tokens.
func packBudget(items []manager.Item, budget int) recallResult {
	out := recallResult{Budget: budget}
	tok := chunker.WordTokenizer{}
	for _, it := range items {
		cost := chunker.Count(tok, it.Content)
		if budget > 0 && out.Tokens+cost > budget {
			continue
		}
		out.Items = append(out.Items, it)
		out.Tokens += cost
	}
	return out
}
