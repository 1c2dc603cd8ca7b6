// Package config loads the authdedup YAML configuration and applies
// environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kobza-harvester/authdedup/internal/blocking"
	"github.com/kobza-harvester/authdedup/internal/feed"
	"github.com/kobza-harvester/authdedup/internal/matching"
	"github.com/kobza-harvester/authdedup/internal/models"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Matching  MatchingConfig  `yaml:"matching"`
	Links     LinksConfig     `yaml:"links"`
	Servers   []models.Server `yaml:"servers"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type FeedConfig struct {
	CacheDir string `yaml:"cache_dir"`
	Token    string `yaml:"token"`
}

type NormalizeConfig struct {
	Workers   int      `yaml:"workers"`
	AuthTypes []string `yaml:"auth_types"`
}

type MatchingConfig struct {
	Recall           float64 `yaml:"recall"`
	FallbackPrior    float64 `yaml:"fallback_prior"`
	Threshold        float64 `yaml:"threshold"`
	MaxIterations    int     `yaml:"max_iterations"`
	Tolerance        float64 `yaml:"tolerance"`
	MinTrainingPairs int     `yaml:"min_training_pairs"`
	MaxSamplePairs   int     `yaml:"max_sample_pairs"`
	MinSamplePairs   int     `yaml:"min_sample_pairs"`
	Seed             uint64  `yaml:"seed"`
	TranslitPass     bool    `yaml:"translit_pass"`
	MaxPartitionSize int     `yaml:"max_partition_size"`
	Workers          int     `yaml:"workers"`
}

type LinksConfig struct {
	Dir     string `yaml:"dir"`
	Workers int    `yaml:"workers"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	tc := matching.DefaultTrainerConfig()
	return Config{
		Database: DatabaseConfig{Path: "authdedup.db"},
		Log:      LogConfig{Level: "info"},
		Feed:     FeedConfig{CacheDir: feed.DefaultCacheDir},
		Normalize: NormalizeConfig{
			AuthTypes: []string{"200"},
		},
		Matching: MatchingConfig{
			Recall:           tc.Recall,
			FallbackPrior:    tc.FallbackPrior,
			Threshold:        tc.Threshold,
			MaxIterations:    tc.MaxIterations,
			Tolerance:        tc.Tolerance,
			MinTrainingPairs: tc.MinTrainingPairs,
			MaxSamplePairs:   tc.MaxSamplePairs,
			MinSamplePairs:   tc.MinSamplePairs,
			Seed:             tc.Seed,
			TranslitPass:     true,
		},
		Links: LinksConfig{Dir: "links"},
	}
}

// Load reads path over the defaults and then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("AUTHDEDUP_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("AUTHDEDUP_LINKS_DIR"); v != "" {
		c.Links.Dir = v
	}
	if v := os.Getenv("AUTHDEDUP_FEED_TOKEN"); v != "" {
		c.Feed.Token = v
	}
	if v := os.Getenv("AUTHDEDUP_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid AUTHDEDUP_THRESHOLD %q: %w", v, err)
		}
		c.Matching.Threshold = threshold
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Matching.Threshold <= 0 || c.Matching.Threshold > 1 {
		errs = append(errs, fmt.Errorf("matching.threshold must be in (0, 1], got %v", c.Matching.Threshold))
	}
	if c.Matching.Recall <= 0 || c.Matching.Recall > 1 {
		errs = append(errs, fmt.Errorf("matching.recall must be in (0, 1], got %v", c.Matching.Recall))
	}
	if c.Matching.FallbackPrior <= 0 || c.Matching.FallbackPrior >= 1 {
		errs = append(errs, fmt.Errorf("matching.fallback_prior must be in (0, 1), got %v", c.Matching.FallbackPrior))
	}
	if c.Matching.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("matching.max_iterations must be positive, got %d", c.Matching.MaxIterations))
	}
	if c.Matching.MaxSamplePairs <= 0 {
		errs = append(errs, fmt.Errorf("matching.max_sample_pairs must be positive, got %d", c.Matching.MaxSamplePairs))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[int]bool, len(c.Servers))
	for _, srv := range c.Servers {
		if seen[srv.ID] {
			errs = append(errs, fmt.Errorf("duplicate server id %d", srv.ID))
		}
		seen[srv.ID] = true
	}

	return errors.Join(errs...)
}

// TrainerConfig converts the matching section for the trainer.
func (m MatchingConfig) TrainerConfig() matching.TrainerConfig {
	return matching.TrainerConfig{
		Recall:           m.Recall,
		FallbackPrior:    m.FallbackPrior,
		Threshold:        m.Threshold,
		MaxIterations:    m.MaxIterations,
		Tolerance:        m.Tolerance,
		MinTrainingPairs: m.MinTrainingPairs,
		MaxSamplePairs:   m.MaxSamplePairs,
		MinSamplePairs:   m.MinSamplePairs,
		Seed:             m.Seed,
	}
}

func (m MatchingConfig) BlockingOptions() blocking.Options {
	return blocking.Options{TranslitPass: m.TranslitPass, MaxPartitionSize: m.MaxPartitionSize}
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
