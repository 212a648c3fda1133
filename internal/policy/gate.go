// Package policy implements the tool-permission gate consulted before every
// side-effecting action. The permission table is read-mostly: writes happen
// at registration time or by explicit admin action, behind a single writer
// lock.
package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/seva/axon/internal/domain"
)

// ToolPermission describes what a named tool operation may do.
type ToolPermission struct {
	Dangerous            bool     `yaml:"dangerous" json:"dangerous"`
	RequiresConfirmation bool     `yaml:"requires_confirmation" json:"requires_confirmation"`
	AllowedPaths         []string `yaml:"allowed_paths,omitempty" json:"allowed_paths,omitempty"` // doublestar globs; empty = any path
}

// Config is the active policy configuration.
type Config struct {
	// Strict denies unknown tools by default (fail-closed).
	Strict bool `yaml:"strict"`
	// AllowDangerous permits tools flagged dangerous. Without it such
	// calls are rejected with a permission error, not executed.
	AllowDangerous bool `yaml:"allow_dangerous_operations"`
	// ConfirmTimeout bounds how long a confirmation may be pending.
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

// Confirmer obtains an explicit approval signal from the interactive layer.
// Synchronous from the pipeline's perspective.
type Confirmer interface {
	RequestApproval(ctx context.Context, description string, dangerous bool) (bool, error)
}

// Gate is the authorization layer for tool invocations.
type Gate struct {
	mu     sync.RWMutex
	perms  map[string]ToolPermission
	cfg    Config
	risk   *Analyzer
	logger *zap.Logger
}

// NewGate creates a gate with the given configuration.
func NewGate(cfg Config, logger *zap.Logger) *Gate {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	return &Gate{
		perms:  make(map[string]ToolPermission),
		cfg:    cfg,
		risk:   NewAnalyzer(),
		logger: logger.Named("policy"),
	}
}

// RegisterTool records the permission entry for a tool name.
func (g *Gate) RegisterTool(name string, perm ToolPermission) {
	g.mu.Lock()
	g.perms[name] = perm
	g.mu.Unlock()
}

// CheckPermission returns the permission entry for a tool, if registered.
func (g *Gate) CheckPermission(tool string) (ToolPermission, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.perms[tool]
	return p, ok
}

// RequiresConfirmation reports whether the tool needs an approval signal.
// Unknown tools need none unless the gate is strict.
func (g *Gate) RequiresConfirmation(tool string) bool {
	p, ok := g.CheckPermission(tool)
	if !ok {
		return g.cfg.Strict
	}
	return p.RequiresConfirmation
}

// IsAllowed reports whether the tool may touch the target path. Tools with
// no path restrictions allow any path.
func (g *Gate) IsAllowed(tool, targetPath string) bool {
	p, ok := g.CheckPermission(tool)
	if !ok {
		return !g.cfg.Strict
	}
	if len(p.AllowedPaths) == 0 || targetPath == "" {
		return true
	}
	for _, pattern := range p.AllowedPaths {
		if ok, err := doublestar.Match(pattern, targetPath); err == nil && ok {
			return true
		}
	}
	return false
}

// Authorize runs the full gate for one tool call: permission lookup, danger
// check, path check, risk analysis of command parameters, and confirmation.
// A denied or timed-out confirmation is a step failure, not a fatal error.
func (g *Gate) Authorize(ctx context.Context, call domain.ToolCall, confirmer Confirmer) error {
	perm, known := g.CheckPermission(call.Tool)
	if !known && g.cfg.Strict {
		return domain.NewPermissionError(call.Tool, "unknown tool in strict mode")
	}

	dangerous := perm.Dangerous
	if cmd, ok := call.Params["command"].(string); ok {
		switch res := g.risk.Analyze(cmd); res.Level {
		case RiskBlocked:
			dangerous = true
			g.logger.Warn("command matched denylist",
				zap.String("tool", call.Tool),
				zap.String("reason", res.Reason))
		case RiskWarning:
			g.logger.Warn("risky command",
				zap.String("tool", call.Tool),
				zap.String("reason", res.Reason))
		}
	}

	if dangerous && !g.cfg.AllowDangerous {
		return domain.NewPermissionError(call.Tool, "dangerous operation not allowed by policy")
	}

	if path, ok := call.Params["path"].(string); ok && path != "" {
		if !g.IsAllowed(call.Tool, path) {
			return domain.NewPermissionError(call.Tool, fmt.Sprintf("path not allowed: %s", path))
		}
	}

	if g.RequiresConfirmation(call.Tool) {
		if confirmer == nil {
			return domain.NewPermissionError(call.Tool, "confirmation required but no confirmer available")
		}
		confirmCtx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
		defer cancel()

		approved, err := confirmer.RequestApproval(confirmCtx,
			fmt.Sprintf("tool %s requests execution", call.Tool), dangerous)
		if err != nil {
			return domain.NewPermissionError(call.Tool, fmt.Sprintf("confirmation failed: %v", err))
		}
		if !approved {
			return domain.NewPermissionError(call.Tool, "confirmation denied")
		}
	}

	return nil
}

// Tools returns the names of all registered tools.
func (g *Gate) Tools() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.perms))
	for name := range g.perms {
		out = append(out, name)
	}
	return out
}
