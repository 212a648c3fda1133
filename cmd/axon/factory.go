package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/seva/axon/internal/bus"
	"github.com/seva/axon/internal/config"
	"github.com/seva/axon/internal/core"
	"github.com/seva/axon/internal/domain"
	"github.com/seva/axon/internal/logging"
	"github.com/seva/axon/internal/metrics"
	"github.com/seva/axon/internal/plan"
	"github.com/seva/axon/internal/policy"
	"github.com/seva/axon/internal/queue"
	"github.com/seva/axon/internal/registry"
	"github.com/seva/axon/internal/resilience"
	"github.com/seva/axon/internal/store"
	"github.com/seva/axon/internal/tokens"
	"github.com/seva/axon/internal/tool"
	"github.com/seva/axon/pkg/llm"
)

// app bundles everything a command needs after wiring.
type app struct {
	logger  *zap.Logger
	orch    *core.Orchestrator
	metrics *metrics.Metrics
	store   *store.Store
	queue   *queue.Queue
	reg     *registry.Registry
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
	a.logger.Sync()
}

// buildApp wires the orchestrator from environment and file configuration.
// Invalid configuration is fatal here, before any work is accepted.
func buildApp(withMetrics bool) (*app, error) {
	env := config.Env()
	paths := config.DefaultPaths()

	logger, err := logging.New(logging.Options{Debug: env.Debug})
	if err != nil {
		return nil, fmt.Errorf("%w: build logger: %v", domain.ErrConfiguration, err)
	}

	policyFile, err := config.LoadPolicy(paths.Policy)
	if err != nil {
		return nil, err
	}
	agentSpecs, err := config.LoadAgents(paths.Agents)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(paths.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: open store: %v", domain.ErrConfiguration, err)
	}

	gateCfg := policyFile.Policy
	gateCfg.Strict = gateCfg.Strict || env.Strict
	gateCfg.AllowDangerous = gateCfg.AllowDangerous || env.AllowDangerous
	if gateCfg.ConfirmTimeout <= 0 {
		gateCfg.ConfirmTimeout = env.ConfirmTimeout
	}
	gate := policy.NewGate(gateCfg, logger)
	// The agent runner carries no side effects of its own; the policy file
	// can still override this entry to require confirmation.
	gate.RegisterTool(tool.AgentTool, policy.ToolPermission{})
	for name, perm := range policyFile.Tools {
		gate.RegisterTool(name, perm)
	}

	reg := registry.New(logger)
	for _, spec := range agentSpecs {
		err := reg.Register(domain.Agent{
			ID:                 spec.ID,
			Name:               spec.Name,
			Specialization:     spec.Specialization,
			Capabilities:       spec.Capabilities,
			Status:             domain.AgentReady,
			MaxConcurrentTasks: spec.MaxConcurrentTasks,
		})
		if err != nil {
			return nil, err
		}
	}

	wrapper := resilience.NewWrapper("provider", resilience.DefaultWrapperConfig(), logger)

	var provider llm.Provider
	var generator *plan.Generator
	if env.AnthropicKey != "" {
		anthropic := llm.NewAnthropic(env.AnthropicKey)
		anthropic.SetBaseURL(env.AnthropicBaseURL)
		provider = anthropic
		generator = plan.NewGeneratorWithProvider(provider, wrapper, logger)
	} else {
		generator = plan.NewGenerator(logger)
	}

	var budget *resilience.Budget
	if env.TokenBudget > 0 {
		budget = resilience.NewBudget(env.TokenBudget)
	}

	var m *metrics.Metrics
	if withMetrics {
		m = metrics.New(prometheus.NewRegistry())
	}

	toolReg := tool.NewRegistry()
	toolReg.Register(tool.NewAgentRunner(provider))
	toolReg.Register(tool.NewEcho())

	q := queue.New(logger)
	b := bus.New(logger)
	if m != nil {
		b.OnDrop(m.EventsDropped.Inc)
	}

	orch, err := core.New(core.Options{
		Logger:      logger,
		Queue:       q,
		Registry:    reg,
		Router:      registry.NewRouter(reg, logger),
		Generator:   generator,
		Gate:        gate,
		Confirmer:   policy.NewTerminalConfirmer(),
		Tools:       toolReg,
		Wrapper:     wrapper,
		Budget:      budget,
		Bus:         b,
		Store:       st,
		Metrics:     m,
		Counter:     tokens.NewCounter(),
		SessionID:   env.SessionID,
		Workers:     env.MaxParallel,
		MaxParallel: env.MaxParallel,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		logger:  logger,
		orch:    orch,
		metrics: m,
		store:   st,
		queue:   q,
		reg:     reg,
	}, nil
}
