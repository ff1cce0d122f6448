package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring the search index up to date with files on disk",
		Run:   runSync,
	}

	RootCmd.AddCommand(cmd)
}

func runSync(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	rep, err := a.Sync(cmd.Context())
	if err != nil {
		exitErr("sync", err)
	}
	printOut(rep, func() []string {
		return []string{fmt.Sprintf("indexed %d, unchanged %d, deferred %d, removed %d, failed %d in %s",
			rep.Indexed, rep.Unchanged, rep.Deferred, rep.Removed, rep.Failed, rep.Duration)}
	})
}
