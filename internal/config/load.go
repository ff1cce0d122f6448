package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads defaults, then the YAML file at path (if any), then environment
// overrides, and returns the resolved configuration. A missing file is not an
// error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg.Resolve(), nil
}

// applyEnv overrides selected fields from the environment.
//
//	AGENT_MEMORY_HOME            root directory
//	AGENT_MEMORY_AGENT           agent identity
//	AGENT_MEMORY_ENABLED         true|false
//	AGENT_MEMORY_EMBED_PROVIDER  auto|openai|gemini|local
//	AGENT_MEMORY_EMBED_MODEL     embedding model name
//	AGENT_MEMORY_EMBED_URL       embedding base URL override
//	AGENT_MEMORY_EMBED_API_KEY   embedding API key
//	AGENT_MEMORY_LOG_LEVEL       debug|info|warn|error
//	ANTHROPIC_API_KEY            LLM port key
func applyEnv(c *Config) {
	c.Root = envStr("AGENT_MEMORY_HOME", c.Root)
	c.Agent = envStr("AGENT_MEMORY_AGENT", c.Agent)
	c.Enabled = envBool("AGENT_MEMORY_ENABLED", c.Enabled)
	c.Provider = envStr("AGENT_MEMORY_EMBED_PROVIDER", c.Provider)
	c.Model = envStr("AGENT_MEMORY_EMBED_MODEL", c.Model)
	c.Remote.BaseURL = envStr("AGENT_MEMORY_EMBED_URL", c.Remote.BaseURL)
	c.Remote.APIKey = envStr("AGENT_MEMORY_EMBED_API_KEY", c.Remote.APIKey)
	c.Log.Level = envStr("AGENT_MEMORY_LOG_LEVEL", c.Log.Level)
	c.LLM.APIKey = envStr("ANTHROPIC_API_KEY", c.LLM.APIKey)
	c.Query.MaxResults = envInt("AGENT_MEMORY_MAX_RESULTS", c.Query.MaxResults)

	if c.Root == "" {
		home, _ := os.UserHomeDir()
		c.Root = filepath.Join(home, ".agent-memory")
	}
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
