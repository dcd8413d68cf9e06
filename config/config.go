// Package config loads the ambient, non-domain settings a deployment wires
// around the engine: which session backend to use and how to reach it,
// default compaction behavior, and default model settings. None of this is
// part of the core execution semantics; it exists so a process can be
// brought up from a single YAML file the way the rest of the stack is.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Model   ModelConfig   `yaml:"model"`
	Runner  RunnerConfig  `yaml:"runner"`
}

// SessionConfig selects and configures a session.Backend.
type SessionConfig struct {
	// Backend is one of "memory", "redis", "mongo", "hybrid".
	Backend     string          `yaml:"backend"`
	MaxMessages int             `yaml:"max_messages"`
	Redis       RedisConfig     `yaml:"redis"`
	Mongo       MongoConfig     `yaml:"mongo"`
	Hybrid      HybridConfig    `yaml:"hybrid"`
	Compaction  CompactionConfig `yaml:"compaction"`
}

// RedisConfig addresses a Redis-backed session store.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// MongoConfig addresses a Mongo-backed session store.
type MongoConfig struct {
	URI        string        `yaml:"uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
	TTL        time.Duration `yaml:"ttl"`
}

// HybridConfig configures the hybrid session backend's flush cadence.
type HybridConfig struct {
	SyncEvery int `yaml:"sync_every"`
}

// CompactionConfig mirrors session.CompactionPolicy's scalar fields; the
// summary model itself is wired in code, not configuration.
type CompactionConfig struct {
	Enabled            bool   `yaml:"enabled"`
	MessageThreshold   int    `yaml:"message_threshold"`
	KeepRecentMessages int    `yaml:"keep_recent_messages"`
	SummaryPrompt      string `yaml:"summary_prompt"`
}

// ModelConfig carries the default model-settings record applied to agents
// that don't override it (spec.md §9: "freeze the accepted options").
type ModelConfig struct {
	Temperature      *float64 `yaml:"temperature"`
	TopP             *float64 `yaml:"top_p"`
	PresencePenalty  *float64 `yaml:"presence_penalty"`
	FrequencyPenalty *float64 `yaml:"frequency_penalty"`
	ResponseTokens   *int     `yaml:"response_tokens"`
	MaxTokens        *int     `yaml:"max_tokens"`
}

// RunnerConfig carries defaults applied when an Agent doesn't set its own.
type RunnerConfig struct {
	DefaultMaxSteps int `yaml:"default_max_steps"`
	EventBufferSize int `yaml:"event_buffer_size"`
}

// Defaults returns a Config with every zero-value field filled with the
// engine's built-in defaults, applied before a loaded document is merged
// over it.
func Defaults() Config {
	return Config{
		Session: SessionConfig{
			Backend:     "memory",
			MaxMessages: 200,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "session",
			},
			Mongo: MongoConfig{
				Collection: "agent_sessions",
				Timeout:    5 * time.Second,
			},
			Hybrid: HybridConfig{
				SyncEvery: 1,
			},
			Compaction: CompactionConfig{
				Enabled:            false,
				MessageThreshold:   200,
				KeepRecentMessages: 20,
			},
		},
		Runner: RunnerConfig{
			DefaultMaxSteps: 10,
			EventBufferSize: 64,
		},
	}
}

// Load reads and parses a YAML configuration file at path, expanding
// ${VAR}/$VAR references against the process environment (so secrets like
// Redis/Mongo credentials need not be committed), and overlays it on top of
// Defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := Defaults()
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := decoder.Decode(new(any)); err != io.EOF {
		return nil, fmt.Errorf("config: %s must contain a single YAML document", path)
	}
	return &cfg, nil
}
