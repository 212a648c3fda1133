// Package config centralizes environment and file configuration so the
// rest of the codebase never calls os.Getenv directly.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// AxonEnv holds all environment variables the orchestrator reads.
type AxonEnv struct {
	// SessionID is the current session identifier (AXON_SESSION_ID)
	SessionID string

	// DataDir overrides the default data directory (AXON_DATA_DIR)
	DataDir string

	// Model is the default LLM model (AXON_MODEL)
	Model string

	// AnthropicKey is the Anthropic API key (ANTHROPIC_API_KEY)
	AnthropicKey string

	// AnthropicBaseURL overrides the Anthropic API base URL (ANTHROPIC_BASE_URL)
	AnthropicBaseURL string

	// TokenBudget caps total tokens per session, 0 = unlimited (AXON_TOKEN_BUDGET)
	TokenBudget int64

	// MaxParallel bounds concurrent plan steps (AXON_MAX_PARALLEL)
	MaxParallel int

	// AllowDangerous permits dangerous tool operations (AXON_ALLOW_DANGEROUS)
	AllowDangerous bool

	// Strict makes the policy gate fail closed on unknown tools (AXON_STRICT)
	Strict bool

	// ConfirmTimeout bounds pending confirmations (AXON_CONFIRM_TIMEOUT, e.g. "30s")
	ConfirmTimeout time.Duration

	// Debug enables debug logging (AXON_DEBUG)
	Debug bool

	// MetricsAddr is the Prometheus listen address, empty = disabled (AXON_METRICS_ADDR)
	MetricsAddr string
}

var (
	env     *AxonEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *AxonEnv {
	envOnce.Do(func() {
		env = &AxonEnv{
			SessionID:        getEnvDefault("AXON_SESSION_ID", "default"),
			DataDir:          os.Getenv("AXON_DATA_DIR"),
			Model:            getEnvDefault("AXON_MODEL", "claude-sonnet-4-20250514"),
			AnthropicKey:     os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicBaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			TokenBudget:      getEnvInt64("AXON_TOKEN_BUDGET", 0),
			MaxParallel:      int(getEnvInt64("AXON_MAX_PARALLEL", 4)),
			AllowDangerous:   os.Getenv("AXON_ALLOW_DANGEROUS") == "1",
			Strict:           os.Getenv("AXON_STRICT") == "1",
			ConfirmTimeout:   getEnvDuration("AXON_CONFIRM_TIMEOUT", 60*time.Second),
			Debug:            os.Getenv("AXON_DEBUG") == "1",
			MetricsAddr:      os.Getenv("AXON_METRICS_ADDR"),
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// Paths holds the standard axon directory layout.
type Paths struct {
	// Home is the axon home directory (~/.axon)
	Home string

	// Data is the database directory (~/.axon/data)
	Data string

	// Policy is the policy file path (~/.axon/policy.yaml)
	Policy string

	// Agents is the agent registry file path (~/.axon/agents.yaml)
	Agents string
}

// DefaultPaths derives the directory layout from the user's home directory,
// honoring AXON_DATA_DIR when set.
func DefaultPaths() Paths {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".axon")
	data := filepath.Join(root, "data")
	if d := Env().DataDir; d != "" {
		data = d
	}
	return Paths{
		Home:   root,
		Data:   data,
		Policy: filepath.Join(root, "policy.yaml"),
		Agents: filepath.Join(root, "agents.yaml"),
	}
}
