package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file-backed configuration for the corpus agent.
// Precedence: command-line flags > environment > config file > defaults.
type Config struct {
	CorpusRoot string `yaml:"corpus_root"`
	StateDir   string `yaml:"state_dir"`
	Model      string `yaml:"model"`

	Agent struct {
		BaseURL string `yaml:"base_url"`
		// APIKey is taken from AGENT_API_KEY; the config file never holds it.
		APIKey string `yaml:"-"`
	} `yaml:"agent"`

	MaxRoundTrips      int    `yaml:"max_round_trips"`
	TurnTimeoutSeconds int    `yaml:"turn_timeout_seconds"`
	ListenAddr         string `yaml:"listen_addr"`
}

// TurnTimeout returns the configured turn timeout, zero when unset.
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.TurnTimeoutSeconds) * time.Second
}

const defaultConfigFile = "corpusagent.yaml"

// LoadConfig reads the config file (if any) and applies environment and
// flag overrides.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	path := configFlag
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment overrides.
	if v := os.Getenv("CORPUS_ROOT"); v != "" {
		cfg.CorpusRoot = v
	}
	if v := os.Getenv("STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("AGENT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("AGENT_BASE_URL"); v != "" {
		cfg.Agent.BaseURL = v
	}
	cfg.Agent.APIKey = os.Getenv("AGENT_API_KEY")

	// Flag overrides.
	if corpusFlag != "" {
		cfg.CorpusRoot = corpusFlag
	}
	if stateFlag != "" {
		cfg.StateDir = stateFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}

	// Defaults.
	if cfg.CorpusRoot == "" {
		cfg.CorpusRoot = "corpus"
	}
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join("workspace", "state")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-5"
	}
	if cfg.Agent.BaseURL == "" {
		cfg.Agent.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	abs, err := filepath.Abs(cfg.CorpusRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve corpus root: %w", err)
	}
	cfg.CorpusRoot = abs

	if _, err := os.Stat(cfg.CorpusRoot); err != nil {
		return nil, fmt.Errorf("corpus root not accessible: %w", err)
	}
	return cfg, nil
}
