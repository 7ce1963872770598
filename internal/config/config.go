// Package config loads engine configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mnemo-ai/mnemo/internal/model"
)

// Summarizer configures the external summarization collaborator.
type Summarizer struct {
	// Provider is "ollama", "openai" or "" (heuristic fallback only).
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	TimeoutMS int    `yaml:"timeout_ms"`
	CacheSize int    `yaml:"cache_size"`
}

// Relevance configures query scoring.
type Relevance struct {
	// Cutoff excludes candidates scoring below it. Tuned so that
	// clearly relevant content is never filtered out while unrelated
	// noise is.
	Cutoff     float64 `yaml:"cutoff"`
	MaxResults int     `yaml:"max_results"`
	// Classifier selects the invoke-key matching strategy:
	// "rules" or "similarity".
	Classifier string `yaml:"classifier"`
}

// Rules configures contextual rule synthesis.
type Rules struct {
	DefaultTTLTurns      int     `yaml:"default_ttl_turns"`
	DefaultMaxViolations int     `yaml:"default_max_violations"`
	// MemoryMatchThreshold is the confidence above which the
	// memory-match variant is selected over topic inference.
	MemoryMatchThreshold float64 `yaml:"memory_match_threshold"`
	MaxRules             int     `yaml:"max_rules"`
}

// Retention bounds episode growth.
type Retention struct {
	// MaxEpisodes caps stored episodes; 0 disables eviction.
	MaxEpisodes int `yaml:"max_episodes"`
}

// Config is the full engine configuration.
type Config struct {
	DBPath     string            `yaml:"db_path"`
	Weights    model.RankWeights `yaml:"rank_weights"`
	Summarizer Summarizer        `yaml:"summarizer"`
	Relevance  Relevance         `yaml:"relevance"`
	Rules      Rules             `yaml:"rules"`
	Retention  Retention         `yaml:"retention"`
}

// Default returns the baseline configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DBPath:  filepath.Join(home, ".mnemo", "memory.db"),
		Weights: model.DefaultRankWeights(),
		Summarizer: Summarizer{
			Provider:  "",
			TimeoutMS: 10000,
			CacheSize: 256,
		},
		Relevance: Relevance{
			Cutoff:     0.15,
			MaxResults: 10,
			Classifier: "rules",
		},
		Rules: Rules{
			DefaultTTLTurns:      3,
			DefaultMaxViolations: 2,
			MemoryMatchThreshold: 0.35,
			MaxRules:             5,
		},
		Retention: Retention{MaxEpisodes: 0},
	}
}

// Load reads config from path (optional) and applies env overrides.
// A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays MNEMO_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MNEMO_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MNEMO_SUMMARIZER_PROVIDER"); v != "" {
		cfg.Summarizer.Provider = v
	}
	if v := os.Getenv("MNEMO_SUMMARIZER_MODEL"); v != "" {
		cfg.Summarizer.Model = v
	}
	if v := os.Getenv("MNEMO_SUMMARIZER_URL"); v != "" {
		cfg.Summarizer.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Summarizer.APIKey == "" {
		cfg.Summarizer.APIKey = v
	}
	if v := os.Getenv("MNEMO_RELEVANCE_CUTOFF"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Relevance.Cutoff = f
		}
	}
	if v := os.Getenv("MNEMO_MAX_EPISODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retention.MaxEpisodes = n
		}
	}
}

// Validate checks internal consistency.
func (c Config) Validate() error {
	if s := c.Weights.Sum(); s < 0.999 || s > 1.001 {
		return fmt.Errorf("rank weights must sum to 1.0, got %.3f", s)
	}
	if c.Relevance.Cutoff < 0 || c.Relevance.Cutoff >= 1 {
		return fmt.Errorf("relevance cutoff must be in [0,1), got %.3f", c.Relevance.Cutoff)
	}
	if c.Rules.DefaultTTLTurns <= 0 {
		return fmt.Errorf("rule ttl must be positive, got %d", c.Rules.DefaultTTLTurns)
	}
	if c.Rules.DefaultMaxViolations <= 0 {
		return fmt.Errorf("rule violation limit must be positive, got %d", c.Rules.DefaultMaxViolations)
	}
	switch c.Relevance.Classifier {
	case "rules", "similarity":
	default:
		return fmt.Errorf("unknown classifier %q (valid: rules, similarity)", c.Relevance.Classifier)
	}
	return nil
}
