// Package cli implements the agent-memory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zuckermanai/zuckerman-sub001/internal/app"
	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/logging"
)

var (
	configPath string
	rootDir    string
	agentName  string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "agent-memory",
	Short: "Long-term memory for a personal assistant agent",
	Long:  "Typed memory stores, hybrid search over memory files and transcripts, and consolidation. Files on disk, SQLite index, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $AGENT_MEMORY_CONFIG or ~/.agent-memory/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Memory root directory (overrides config)")
	RootCmd.PersistentFlags().StringVarP(&agentName, "agent", "a", "", "Agent identity (overrides config)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("AGENT_MEMORY_CONFIG"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agent-memory", "config.yaml")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return cfg, err
	}
	if rootDir != "" {
		cfg.Root = rootDir
	}
	if agentName != "" {
		cfg.Agent = agentName
	}
	return cfg.Resolve(), nil
}

func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, app.Options{Logger: logging.Must(cfg.Log.Level, cfg.Log.Format)})
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// printOut writes v as indented JSON, or the text lines in text format.
func printOut(v any, text func() []string) {
	if formatFlag == "text" && text != nil {
		for _, line := range text() {
			fmt.Println(line)
		}
		return
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// parseWhen accepts RFC3339 or a duration from now ("90m").
func parseWhen(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("time %q is neither RFC3339 nor a duration", s)
	}
	t := time.Now().Add(d)
	return &t, nil
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n > 0 && len(s) > n {
		return s[:n] + "…"
	}
	return s
}
