package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Record the outcome of applying a procedure",
		Args:  cobra.ExactArgs(1),
		Run:   runUse,
	}

	cmd.Flags().Bool("failed", false, "The procedure did not work")

	RootCmd.AddCommand(cmd)
}

func runUse(cmd *cobra.Command, args []string) {
	failed, _ := cmd.Flags().GetBool("failed")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	p, err := a.Stores.Procedural.RecordUse(args[0], !failed)
	if err != nil {
		exitErr("use", err)
	}
	printOut(p, func() []string {
		return []string{fmt.Sprintf("%s  %d/%d succeeded (%.0f%%)", p.ID, p.SuccessCount, p.SuccessCount+p.FailureCount, p.SuccessRate*100)}
	})
}
