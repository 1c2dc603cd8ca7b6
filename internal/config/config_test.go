package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/kobza-harvester/authdedup/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authdedup.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if !cfg.Matching.TranslitPass {
		t.Error("Expected translit pass enabled by default")
	}
	if len(cfg.Normalize.AuthTypes) != 1 || cfg.Normalize.AuthTypes[0] != "200" {
		t.Errorf("Unexpected default auth types %v", cfg.Normalize.AuthTypes)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/authdedup/store.db
matching:
  threshold: 0.8
  max_partition_size: 5000
servers:
  - id: 1
    name: kyiv
    endpoint: https://kyiv.example.org/cgi-bin/authorities
    given_name_repeats_entry: true
  - id: 2
    name: lviv
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/var/lib/authdedup/store.db" {
		t.Errorf("Unexpected database path %s", cfg.Database.Path)
	}
	if cfg.Matching.Threshold != 0.8 || cfg.Matching.MaxPartitionSize != 5000 {
		t.Errorf("Unexpected matching config %+v", cfg.Matching)
	}
	// Untouched keys keep their defaults.
	if cfg.Matching.Recall != 0.5 || cfg.Matching.MaxIterations != 25 {
		t.Errorf("Defaults lost: %+v", cfg.Matching)
	}
	if len(cfg.Servers) != 2 || !cfg.Servers[0].GivenNameRepeatsEntry {
		t.Errorf("Unexpected servers %+v", cfg.Servers)
	}

	tc := cfg.Matching.TrainerConfig()
	if tc.Threshold != 0.8 || tc.Seed != 42 {
		t.Errorf("Unexpected trainer config %+v", tc)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUTHDEDUP_DB", ":memory:")
	t.Setenv("AUTHDEDUP_THRESHOLD", "0.95")
	t.Setenv("AUTHDEDUP_LINKS_DIR", "/tmp/links")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != ":memory:" || cfg.Matching.Threshold != 0.95 || cfg.Links.Dir != "/tmp/links" {
		t.Errorf("Env overrides not applied: %+v", cfg)
	}

	t.Setenv("AUTHDEDUP_THRESHOLD", "high")
	if _, err := Load(""); err == nil {
		t.Error("Expected error for non-numeric threshold")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Matching.Threshold = 0 }},
		{"threshold above one", func(c *Config) { c.Matching.Threshold = 1.5 }},
		{"zero recall", func(c *Config) { c.Matching.Recall = 0 }},
		{"no iterations", func(c *Config) { c.Matching.MaxIterations = 0 }},
		{"empty database", func(c *Config) { c.Database.Path = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"duplicate servers", func(c *Config) {
			c.Servers = append(c.Servers, c.Servers[0], c.Servers[0])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Servers = []models.Server{{ID: 1, Name: "kyiv"}}
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
