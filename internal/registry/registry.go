// Package registry holds agent descriptors and routes tasks to capable
// agents. Task-count bookkeeping happens only through the registry's own
// operations so routing decisions stay race-free under concurrency.
package registry

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seva/axon/internal/domain"
)

// entry wraps an agent with its own lock so lookups on different agents do
// not serialize on one mutex.
type entry struct {
	mu    sync.Mutex
	agent domain.Agent
}

// Registry is the authoritative store of agent descriptors.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*entry
	order  []string // registration order, used by the router's first-fit scan
	logger *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*entry),
		logger: logger.Named("registry"),
	}
}

// Register adds an agent. Registering an existing ID replaces the descriptor
// but keeps its position in the scan order.
func (r *Registry) Register(agent domain.Agent) error {
	if agent.ID == "" {
		return fmt.Errorf("%w: agent ID is required", domain.ErrConfiguration)
	}
	if agent.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("%w: agent %s: max_concurrent_tasks must be positive", domain.ErrConfiguration, agent.ID)
	}
	if agent.Status == "" {
		agent.Status = domain.AgentReady
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.LastActivity = now

	r.mu.Lock()
	if _, exists := r.agents[agent.ID]; !exists {
		r.order = append(r.order, agent.ID)
	}
	r.agents[agent.ID] = &entry{agent: agent}
	r.mu.Unlock()

	r.logger.Info("agent registered",
		zap.String("agent", agent.ID),
		zap.Strings("capabilities", agent.Capabilities),
		zap.Int("max_tasks", agent.MaxConcurrentTasks))
	return nil
}

// Get returns a copy of the agent descriptor.
func (r *Registry) Get(id string) (domain.Agent, bool) {
	r.mu.RLock()
	e, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return domain.Agent{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agent, true
}

// List returns copies of all agents in registration order.
func (r *Registry) List() []domain.Agent {
	r.mu.RLock()
	order := make([]string, len(r.order))
	copy(order, r.order)
	r.mu.RUnlock()

	out := make([]domain.Agent, 0, len(order))
	for _, id := range order {
		if a, ok := r.Get(id); ok {
			out = append(out, a)
		}
	}
	return out
}

// UpdateStatus sets the agent's status directly. Busy is managed by the
// task counters; explicit updates are for offline/error marking.
func (r *Registry) UpdateStatus(id string, status domain.AgentStatus) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.agent.Status = status
	e.agent.LastActivity = time.Now().UTC()
	e.mu.Unlock()
	return nil
}

// Reserve atomically claims one slot of the agent's concurrency budget.
// Fails with ErrAgentOverloaded when the agent is at capacity, so concurrent
// routing can never push current_tasks past max_concurrent_tasks.
func (r *Registry) Reserve(id string) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.agent.CanAccept() {
		return fmt.Errorf("%w: %s at %d/%d", domain.ErrAgentOverloaded,
			id, e.agent.CurrentTasks, e.agent.MaxConcurrentTasks)
	}
	e.agent.CurrentTasks++
	e.agent.Status = domain.AgentBusy
	e.agent.LastActivity = time.Now().UTC()
	return nil
}

// Release returns one reserved slot. The agent transitions back to Ready
// when its task count reaches zero.
func (r *Registry) Release(id string) {
	e, err := r.entry(id)
	if err != nil {
		return
	}

	e.mu.Lock()
	if e.agent.CurrentTasks > 0 {
		e.agent.CurrentTasks--
	}
	if e.agent.CurrentTasks == 0 && e.agent.Status == domain.AgentBusy {
		e.agent.Status = domain.AgentReady
	}
	e.agent.LastActivity = time.Now().UTC()
	e.mu.Unlock()
}

func (r *Registry) entry(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown agent %s", domain.ErrNoAgent, id)
	}
	return e, nil
}
