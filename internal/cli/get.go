package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/app"
	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Show one memory",
		Args:  cobra.ExactArgs(2),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	t, err := model.ParseType(args[0])
	if err != nil {
		exitErr("get", err)
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	rec, ok := lookup(a, t, args[1])
	if !ok {
		exitErr("get", fmt.Errorf("%s memory %s not found", t, args[1]))
	}
	printOut(rec, nil)
}

func lookup(a *app.App, t model.Type, id string) (any, bool) {
	s := a.Stores
	switch t {
	case model.TypeWorking:
		return s.Working.Get(id)
	case model.TypeEpisodic:
		return s.Episodic.Get(id)
	case model.TypeSemantic:
		return s.Semantic.Get(id)
	case model.TypeProcedural:
		return s.Procedural.Get(id)
	case model.TypeProspective:
		return s.Prospective.Get(id)
	case model.TypeEmotional:
		return s.Emotional.Get(id)
	}
	return nil, false
}
