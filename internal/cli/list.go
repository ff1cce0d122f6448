package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/manager"
	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Run:   runList,
	}

	cmd.Flags().StringSliceP("type", "t", nil, "Filter by type (repeatable)")
	cmd.Flags().StringP("scope", "s", "", "Filter by scope id")
	cmd.Flags().IntP("limit", "l", 50, "Max results")

	RootCmd.AddCommand(cmd)
}

func parseTypes(names []string) ([]model.Type, error) {
	var out []model.Type
	for _, n := range names {
		t, err := model.ParseType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func runList(cmd *cobra.Command, args []string) {
	typeNames, _ := cmd.Flags().GetStringSlice("type")
	scope, _ := cmd.Flags().GetString("scope")
	limit, _ := cmd.Flags().GetInt("limit")

	types, err := parseTypes(typeNames)
	if err != nil {
		exitErr("list", err)
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	res, err := a.Manager.RetrieveMemories(cmd.Context(), manager.RetrieveParams{Types: types, ScopeID: scope, Limit: limit})
	if err != nil {
		exitErr("list", err)
	}
	printOut(res, func() []string { return itemLines(res.Items) })
}

func itemLines(items []manager.Item) []string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s  %-11s %s  %s", it.UpdatedAt.Local().Format("2006-01-02 15:04"), it.Type, it.ID, oneLine(it.Content, 100)))
	}
	return lines
}
