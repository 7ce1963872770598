package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Relevance.Cutoff != 0.15 || cfg.Rules.MaxRules != 5 {
		t.Fatalf("missing file should leave defaults intact: %+v", cfg)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemo.yaml")
	data := `
db_path: /tmp/custom.db
relevance:
  cutoff: 0.3
  classifier: similarity
retention:
  max_episodes: 500
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/custom.db" {
		t.Errorf("db_path = %q", cfg.DBPath)
	}
	if cfg.Relevance.Cutoff != 0.3 {
		t.Errorf("cutoff = %v", cfg.Relevance.Cutoff)
	}
	if cfg.Relevance.Classifier != "similarity" {
		t.Errorf("classifier = %q", cfg.Relevance.Classifier)
	}
	if cfg.Retention.MaxEpisodes != 500 {
		t.Errorf("max_episodes = %d", cfg.Retention.MaxEpisodes)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Rules.DefaultTTLTurns != 3 {
		t.Errorf("ttl turns = %d", cfg.Rules.DefaultTTLTurns)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("MNEMO_DB", "/tmp/env.db")
	t.Setenv("MNEMO_RELEVANCE_CUTOFF", "0.25")
	t.Setenv("MNEMO_MAX_EPISODES", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Relevance.Cutoff != 0.25 {
		t.Errorf("cutoff = %v", cfg.Relevance.Cutoff)
	}
	if cfg.Retention.MaxEpisodes != 42 {
		t.Errorf("max episodes = %d", cfg.Retention.MaxEpisodes)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights not summing to one", func(c *Config) { c.Weights.Quality = 0.9 }},
		{"cutoff out of range", func(c *Config) { c.Relevance.Cutoff = 1.0 }},
		{"negative cutoff", func(c *Config) { c.Relevance.Cutoff = -0.1 }},
		{"zero ttl", func(c *Config) { c.Rules.DefaultTTLTurns = 0 }},
		{"zero violation limit", func(c *Config) { c.Rules.DefaultMaxViolations = 0 }},
		{"unknown classifier", func(c *Config) { c.Relevance.Classifier = "neural" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
