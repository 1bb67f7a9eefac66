package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

// Config holds agentws's resolved configuration: where the workspace ZIP
// lives, default execution limits, and optional metrics exposure. Layered
// the way the teacher layers its own config: built-in defaults, then a
// JSONC config file, then CLI flags, each layer overriding the last.
type Config struct {
	WorkspacePath string `json:"workspacePath"`
	TimeoutMs     int    `json:"timeoutMs"`
	MetricsAddr   string `json:"metricsAddr,omitempty"`
}

func defaultConfig() Config {
	return Config{
		WorkspacePath: "./workspace.zip",
		TimeoutMs:     1500,
	}
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	ConfigPath string
	EnvVars    map[string]string
	CLIFlags   *pflag.FlagSet
}

// LoadConfig resolves the effective Config from defaults, an optional JSONC
// config file (parsed leniently via hujson, same as the teacher), the
// AGENTWS_WORKSPACE environment variable, and CLI flag overrides, in that
// precedence order. The config file is read from ConfigPath, or from the
// AGENTWS_CONFIG environment variable when ConfigPath is empty.
func LoadConfig(in LoadConfigInput) (Config, error) {
	cfg := defaultConfig()

	configPath := in.ConfigPath
	if configPath == "" {
		configPath = in.EnvVars["AGENTWS_CONFIG"]
	}

	if configPath != "" {
		if err := applyConfigFile(&cfg, configPath); err != nil {
			return Config{}, err
		}
	}

	if addr, ok := in.EnvVars["AGENTWS_WORKSPACE"]; ok && addr != "" {
		cfg.WorkspacePath = addr
	}

	if in.CLIFlags != nil {
		if v, err := in.CLIFlags.GetString("workspace"); err == nil && v != "" {
			cfg.WorkspacePath = v
		}

		if v, err := in.CLIFlags.GetInt("timeout-ms"); err == nil && v > 0 {
			cfg.TimeoutMs = v
		}

		if v, err := in.CLIFlags.GetString("metrics-addr"); err == nil && v != "" {
			cfg.MetricsAddr = v
		}
	}

	abs, err := filepath.Abs(cfg.WorkspacePath)
	if err == nil {
		cfg.WorkspacePath = abs
	}

	return cfg, nil
}

func applyConfigFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %q: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return fmt.Errorf("parsing config %q: %w", path, err)
	}

	if err := json.Unmarshal(standardized, cfg); err != nil {
		return fmt.Errorf("decoding config %q: %w", path, err)
	}

	return nil
}
