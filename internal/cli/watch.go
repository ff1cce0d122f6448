package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/chunker"
	"github.com/zuckermanai/zuckerman-sub001/internal/sleep"
)

func init() {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the background sync, sweep and consolidation loop",
		Long:  "Keep the index in sync with files on disk and run scheduled tasks until interrupted. With --window, transcripts whose estimated size crosses the sleep threshold are consolidated.",
		Run:   runWatch,
	}

	cmd.Flags().Int("window", 0, "Context window in tokens used to estimate transcript usage (0 disables consolidation checks)")
	cmd.Flags().Duration("check-every", time.Minute, "How often to check transcript usage")

	RootCmd.AddCommand(cmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	window, _ := cmd.Flags().GetInt("window")
	every, _ := cmd.Flags().GetDuration("check-every")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if window > 0 {
		usage := transcriptUsage(a.Layout.ConversationsDir(), window, a.Consolidation, a.Log)
		if err := a.Sleep.Schedule(a.Scheduler, every, usage); err != nil {
			exitErr("schedule", err)
		}
	}
	if err := a.Start(ctx); err != nil {
		exitErr("start", err)
	}
	a.Log.Info("watching", zap.String("root", a.Layout.Dir), zap.Strings("tasks", a.Scheduler.Tasks()))
	<-ctx.Done()
	a.Log.Info("shutting down")
}

// transcriptUsage estimates each transcript's unconsolidated turns as a
// share of window.
func transcriptUsage(dir string, window int, p *sleep.Pipeline, log *zap.Logger) sleep.UsageFunc {
	tok := chunker.WordTokenizer{}
	return func(ctx context.Context) map[string]sleep.Usage {
		matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
		if err != nil {
			return nil
		}
		out := make(map[string]sleep.Usage, len(matches))
		for _, path := range matches {
			if ctx.Err() != nil {
				break
			}
			scope := strings.TrimSuffix(filepath.Base(path), ".jsonl")
			turns, err := p.Pending(ctx, scope)
			if err != nil {
				log.Warn("read transcript failed", zap.String("path", path), zap.Error(err))
				continue
			}
			used := 0
			for _, t := range turns {
				used += chunker.Count(tok, t.String())
			}
			out[scope] = sleep.Usage{Used: used, Window: window}
		}
		return out
	}
}
