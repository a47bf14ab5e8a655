// Package config loads run configuration from YAML with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"worldmodel-rl/internal/multiagent"
	"worldmodel-rl/internal/pipeline"
)

// MultiAgent configures the multi-agent program.
type MultiAgent struct {
	Agents   int `yaml:"agents"`
	MaxSteps int `yaml:"max_steps"`
	Rounds   int `yaml:"rounds"`

	Orchestrator multiagent.Config `yaml:"orchestrator"`
}

type Config struct {
	Seed      int64  `yaml:"seed"`
	OutputDir string `yaml:"output_dir"`
	LogLevel  string `yaml:"log_level"`
	// RedisURL, when set, stores model weights in Redis instead of the run
	// directory.
	RedisURL string `yaml:"redis_url"`

	Pipeline   pipeline.Config `yaml:"pipeline"`
	MultiAgent MultiAgent      `yaml:"multiagent"`
}

func Default() Config {
	return Config{
		Seed:      1,
		OutputDir: "out",
		LogLevel:  "info",
		Pipeline:  pipeline.DefaultConfig(),
		MultiAgent: MultiAgent{
			Agents:   3,
			MaxSteps: 25,
			Rounds:   10,
			Orchestrator: multiagent.Config{
				Scenario: "simple_spread",
				Learner:  multiagent.DefaultLearnerConfig(),
			},
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	cfg.propagateSeed()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from WM_* environment variables.
func (c *Config) ApplyEnv() {
	c.Seed = getenvInt64("WM_SEED", c.Seed)
	c.OutputDir = getenv("WM_OUTPUT_DIR", c.OutputDir)
	c.LogLevel = getenv("WM_LOG_LEVEL", c.LogLevel)
	c.RedisURL = getenv("WM_REDIS_URL", c.RedisURL)

	c.Pipeline.EnvName = getenv("WM_ENV_NAME", c.Pipeline.EnvName)
	c.Pipeline.BufferCapacity = getenvInt("WM_BUFFER_CAPACITY", c.Pipeline.BufferCapacity)
	c.Pipeline.SequenceLength = getenvInt("WM_SEQUENCE_LENGTH", c.Pipeline.SequenceLength)
	c.Pipeline.PolicySteps = getenvInt("WM_POLICY_STEPS", c.Pipeline.PolicySteps)

	c.MultiAgent.Agents = getenvInt("WM_AGENTS", c.MultiAgent.Agents)
	c.MultiAgent.Rounds = getenvInt("WM_ROUNDS", c.MultiAgent.Rounds)
	c.MultiAgent.Orchestrator.Scenario = getenv("WM_SCENARIO", c.MultiAgent.Orchestrator.Scenario)
	c.MultiAgent.Orchestrator.Learner.MemSize = getenvInt("WM_MEM_SIZE", c.MultiAgent.Orchestrator.Learner.MemSize)
}

func (c *Config) propagateSeed() {
	c.Pipeline.Seed = c.Seed
	c.MultiAgent.Orchestrator.Learner.Seed = c.Seed
}

func (c Config) Validate() error {
	var errs []error
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir must be set"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}
	ma := c.MultiAgent
	if ma.Agents <= 0 {
		errs = append(errs, errors.New("multiagent: agents must be > 0"))
	}
	if ma.Rounds < 0 {
		errs = append(errs, errors.New("multiagent: rounds must be >= 0"))
	}
	if ma.Orchestrator.Learner.MemSize <= 0 {
		errs = append(errs, errors.New("multiagent: mem_size must be > 0"))
	}
	if err := ma.Orchestrator.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("multiagent: %w", err))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
