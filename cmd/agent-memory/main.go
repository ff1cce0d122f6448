package main

import (
	"os"

	"github.com/zuckermanai/zuckerman-sub001/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
