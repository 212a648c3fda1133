package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seva/axon/internal/domain"
)

func TestEnvDefaults(t *testing.T) {
	ResetEnv()
	t.Setenv("AXON_SESSION_ID", "")
	t.Setenv("AXON_TOKEN_BUDGET", "")
	t.Setenv("AXON_CONFIRM_TIMEOUT", "")

	e := Env()
	assert.Equal(t, "default", e.SessionID)
	assert.Zero(t, e.TokenBudget)
	assert.Equal(t, 60*time.Second, e.ConfirmTimeout)
	assert.Equal(t, 4, e.MaxParallel)

	ResetEnv()
}

func TestEnvOverrides(t *testing.T) {
	ResetEnv()
	t.Setenv("AXON_SESSION_ID", "sess-9")
	t.Setenv("AXON_TOKEN_BUDGET", "50000")
	t.Setenv("AXON_CONFIRM_TIMEOUT", "5s")
	t.Setenv("AXON_ALLOW_DANGEROUS", "1")
	t.Setenv("AXON_STRICT", "1")

	e := Env()
	assert.Equal(t, "sess-9", e.SessionID)
	assert.Equal(t, int64(50000), e.TokenBudget)
	assert.Equal(t, 5*time.Second, e.ConfirmTimeout)
	assert.True(t, e.AllowDangerous)
	assert.True(t, e.Strict)

	ResetEnv()
}

func TestLoadPolicyMissingFileYieldsDefaults(t *testing.T) {
	f, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.NotNil(t, f.Tools)
	assert.False(t, f.Policy.Strict)
}

func TestLoadPolicyParsesTools(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
policy:
  strict: true
  allow_dangerous_operations: false
tools:
  shell:
    dangerous: true
    requires_confirmation: true
  file_write:
    allowed_paths:
      - "/workspace/**"
`), 0o644))

	f, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.True(t, f.Policy.Strict)
	assert.True(t, f.Tools["shell"].Dangerous)
	assert.True(t, f.Tools["shell"].RequiresConfirmation)
	assert.Equal(t, []string{"/workspace/**"}, f.Tools["file_write"].AllowedPaths)
}

func TestLoadPolicyMalformedIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools: [not: a map"), 0o644))

	_, err := LoadPolicy(path)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoadAgentsValidates(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
agents:
  - id: coder-1
    name: Coder
    capabilities: [code, refactor]
    max_concurrent_tasks: 2
`), 0o644))

	specs, err := LoadAgents(good)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "coder-1", specs[0].ID)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
agents:
  - id: broken
    max_concurrent_tasks: 0
`), 0o644))

	_, err = LoadAgents(bad)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
