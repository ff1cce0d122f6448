package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/app"
	"github.com/zuckermanai/zuckerman-sub001/internal/memory"
	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "link <target-id> <emotion>",
		Short: "Tag a memory with an emotion",
		Long:  "Create an emotional memory pointing at another memory. With --list, show the tags on the target instead.",
		Args:  cobra.RangeArgs(1, 2),
		Run:   runLink,
	}

	cmd.Flags().StringP("target-type", "t", "", "Type of the target memory (default: looked up)")
	cmd.Flags().Float64P("intensity", "i", 0.5, "Intensity in [0,1]")
	cmd.Flags().Bool("list", false, "List emotional tags on the target")

	RootCmd.AddCommand(cmd)
}

func runLink(cmd *cobra.Command, args []string) {
	targetType, _ := cmd.Flags().GetString("target-type")
	intensity, _ := cmd.Flags().GetFloat64("intensity")
	list, _ := cmd.Flags().GetBool("list")
	target := args[0]

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	if list {
		tags := a.Stores.Emotional.ForTarget(target)
		printOut(tags, func() []string {
			lines := make([]string, 0, len(tags))
			for _, t := range tags {
				lines = append(lines, fmt.Sprintf("%s  %-10s %.2f", t.ID, t.Emotion.Kind, t.Emotion.Intensity))
			}
			return lines
		})
		return
	}
	if len(args) < 2 {
		exitErr("link", fmt.Errorf("an emotion is required"))
	}

	var t model.Type
	if targetType != "" {
		if t, err = model.ParseType(targetType); err != nil {
			exitErr("link", err)
		}
	} else if t = findType(a, target); t == "" {
		exitErr("link", fmt.Errorf("memory %s not found (pass --target-type to tag it anyway)", target))
	}

	id, err := a.Manager.AddEmotionalMemory(memory.EmotionalInput{
		TargetMemoryID: target, TargetMemoryType: t, Kind: args[1], Intensity: intensity,
	})
	if err != nil {
		exitErr("link", err)
	}
	printOut(map[string]string{"id": id, "target": target, "target_type": string(t)}, func() []string { return []string{id} })
}

// findType returns the type of the persisted store holding id, or "".
func findType(a *app.App, id string) model.Type {
	for _, t := range model.AllTypes {
		if t == model.TypeWorking {
			continue
		}
		if _, ok := lookup(a, t, id); ok {
			return t
		}
	}
	return ""
}
