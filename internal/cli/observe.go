package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/manager"
)

func init() {
	cmd := &cobra.Command{
		Use:   "observe [message]",
		Short: "Extract and store memories from a conversation message",
		Long:  "Ask the configured model whether the message holds anything worth remembering and store what it finds. The message can be a positional arg or piped via stdin.",
		Run:   runObserve,
	}

	cmd.Flags().StringP("scope", "s", "", "Conversation scope id")
	cmd.Flags().String("recent", "", "Recent conversation text for context")

	RootCmd.AddCommand(cmd)
}

func runObserve(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	recent, _ := cmd.Flags().GetString("recent")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else if stat, _ := os.Stdin.Stat(); stat != nil && stat.Mode()&os.ModeCharDevice == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		content = string(b)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		exitErr("observe", errors.New("message is required (positional arg or stdin)"))
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()
	if a.LLM == nil {
		exitErr("observe", errors.New("no model configured (llm.provider)"))
	}

	before := storeCounts(a.Stores)
	a.Manager.OnNewMessage(cmd.Context(), manager.Message{Content: content, ScopeID: scope, RecentContext: recent})
	after := storeCounts(a.Stores)

	added := make(map[string]int)
	for t, n := range after {
		if d := n - before[t]; d > 0 {
			added[string(t)] = d
		}
	}
	printOut(map[string]any{"added": added}, func() []string {
		if len(added) == 0 {
			return []string{"nothing worth remembering"}
		}
		var lines []string
		for t, n := range added {
			lines = append(lines, fmt.Sprintf("%s +%d", t, n))
		}
		return lines
	})
}
