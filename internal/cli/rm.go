package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <type> <id>",
		Short: "Remove a memory",
		Args:  cobra.ExactArgs(2),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	t, err := model.ParseType(args[0])
	if err != nil {
		exitErr("rm", err)
	}
	id := args[1]

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()
	s := a.Stores

	var ok bool
	switch t {
	case model.TypeWorking:
		ok = s.Working.Remove(id)
	case model.TypeEpisodic:
		ok, err = s.Episodic.Remove(id)
	case model.TypeSemantic:
		ok, err = s.Semantic.Remove(id)
	case model.TypeProcedural:
		ok, err = s.Procedural.Remove(id)
	case model.TypeProspective:
		ok, err = s.Prospective.Remove(id)
	case model.TypeEmotional:
		ok, err = s.Emotional.Remove(id)
	}
	if err != nil {
		exitErr("rm", err)
	}
	if !ok {
		exitErr("rm", fmt.Errorf("%s memory %s not found", t, id))
	}

	fmt.Printf(`{"ok":true,"removed":%q}`+"\n", id)
}
