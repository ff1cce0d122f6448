package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/memory"
	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory",
		Long:  "Store a memory of the given type. Content can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().StringP("type", "t", "semantic", "Type: semantic, episodic, procedural, prospective")
	cmd.Flags().String("category", "", "Semantic category")
	cmd.Flags().Float64("confidence", 0.8, "Semantic confidence in [0,1]")
	cmd.Flags().String("source", "cli", "Semantic source")
	cmd.Flags().StringP("scope", "s", "", "Episodic scope id")
	cmd.Flags().String("trigger", "", "Procedural trigger")
	cmd.Flags().String("action", "", "Procedural action")
	cmd.Flags().String("at", "", "Prospective trigger time (RFC3339 or duration from now)")
	cmd.Flags().String("when", "", "Prospective trigger context")
	cmd.Flags().Float64P("priority", "p", 0.5, "Prospective priority in [0,1]")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	category, _ := cmd.Flags().GetString("category")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	source, _ := cmd.Flags().GetString("source")
	scope, _ := cmd.Flags().GetString("scope")
	trigger, _ := cmd.Flags().GetString("trigger")
	action, _ := cmd.Flags().GetString("action")
	at, _ := cmd.Flags().GetString("at")
	when, _ := cmd.Flags().GetString("when")
	priority, _ := cmd.Flags().GetFloat64("priority")

	// Get content: positional arg first, then check stdin
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	t, err := model.ParseType(typ)
	if err != nil {
		exitErr("put", err)
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()
	s := a.Stores

	var id string
	switch t {
	case model.TypeSemantic:
		id, err = s.Semantic.Add(memory.SemanticInput{Fact: content, Category: category, Confidence: confidence, Source: source})
	case model.TypeEpisodic:
		id, err = s.Episodic.Add(memory.EpisodicInput{Event: content, ScopeID: scope})
	case model.TypeProcedural:
		if trigger == "" || action == "" {
			exitErr("put", fmt.Errorf("procedural memories need --trigger and --action"))
		}
		id, err = s.Procedural.Add(memory.ProceduralInput{Pattern: content, Trigger: trigger, Action: action})
	case model.TypeProspective:
		triggerAt, perr := parseWhen(at)
		if perr != nil {
			exitErr("put", perr)
		}
		id, err = s.Prospective.Add(memory.ProspectiveInput{Intention: content, TriggerTime: triggerAt, TriggerContext: when, Priority: priority})
	default:
		exitErr("put", fmt.Errorf("%s memories cannot be stored from the command line (use link for emotional tags)", t))
	}
	if err != nil {
		exitErr("put", err)
	}

	printOut(map[string]string{"id": id, "type": string(t)}, func() []string { return []string{id} })
}
