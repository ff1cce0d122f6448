package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/sleep"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sleep <scope>",
		Short: "Consolidate a conversation into long-term memory",
		Long:  "Run the consolidation pipeline over conversations/<scope>.jsonl. With --used and --window, only run when usage crosses the configured threshold.",
		Args:  cobra.ExactArgs(1),
		Run:   runSleep,
	}

	cmd.Flags().Int("used", 0, "Tokens in use")
	cmd.Flags().Int("window", 0, "Context window size in tokens")

	RootCmd.AddCommand(cmd)
}

func runSleep(cmd *cobra.Command, args []string) {
	used, _ := cmd.Flags().GetInt("used")
	window, _ := cmd.Flags().GetInt("window")
	scope := args[0]

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	if window > 0 {
		u := sleep.Usage{Used: used, Window: window}
		if !sleep.ShouldSleep(u, a.Config.Sleep.Threshold, time.Time{}, time.Now(), a.Config.Sleep.Cooldown) {
			printOut(map[string]any{"scope_id": scope, "due": false, "ratio": u.Ratio()}, func() []string {
				return []string{fmt.Sprintf("not due: %.0f%% of %d tokens, threshold %.0f%%", u.Ratio()*100, window, a.Config.Sleep.Threshold*100)}
			})
			return
		}
	}

	res := a.Sleep.RunNow(cmd.Context(), scope)
	if res == nil {
		exitErr("sleep", fmt.Errorf("consolidation of %s already running", scope))
	}
	printOut(res, func() []string {
		lines := []string{fmt.Sprintf("%s: %d turns, %d summaries, %d stored (%s)", res.ScopeID, res.Turns, len(res.Summaries), res.Stored, res.Strategy)}
		for _, s := range res.Summaries {
			lines = append(lines, fmt.Sprintf("  [%s %.2f] %s", s.Type, s.Importance, oneLine(s.Content, 100)))
		}
		if res.Failed() {
			lines = append(lines, fmt.Sprintf("failed in %s: %v", res.FailedPhase, res.Err))
		}
		return lines
	})
	if res.Failed() {
		exitErr("sleep", res.Err)
	}
}
