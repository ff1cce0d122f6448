package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "due",
		Short: "Show due reminders, or move one through its lifecycle",
		Long:  "List pending intentions that are due now or match --context. --trigger and --complete advance an intention (pending → triggered → completed).",
		Run:   runDue,
	}

	cmd.Flags().String("context", "", "Also include intentions whose trigger context matches this text")
	cmd.Flags().String("trigger", "", "Mark the intention with this id as triggered")
	cmd.Flags().String("complete", "", "Mark the intention with this id as completed")

	RootCmd.AddCommand(cmd)
}

func runDue(cmd *cobra.Command, args []string) {
	contextText, _ := cmd.Flags().GetString("context")
	triggerID, _ := cmd.Flags().GetString("trigger")
	completeID, _ := cmd.Flags().GetString("complete")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()
	p := a.Stores.Prospective

	switch {
	case triggerID != "":
		if err := p.Trigger(triggerID); err != nil {
			exitErr("trigger", err)
		}
		printOut(map[string]string{"id": triggerID, "status": string(model.StatusTriggered)}, nil)
		return
	case completeID != "":
		if err := p.Complete(completeID); err != nil {
			exitErr("complete", err)
		}
		printOut(map[string]string{"id": completeID, "status": string(model.StatusCompleted)}, nil)
		return
	}

	due := a.Manager.GetDueReminders(time.Now(), contextText)
	printOut(due, func() []string {
		lines := make([]string, 0, len(due))
		for _, d := range due {
			when := d.TriggerContext
			if d.TriggerTime != nil {
				when = d.TriggerTime.Local().Format("2006-01-02 15:04")
			}
			lines = append(lines, fmt.Sprintf("%s  %.2f  %-16s %s", d.ID, d.Priority, when, oneLine(d.Intention, 80)))
		}
		return lines
	})
}
