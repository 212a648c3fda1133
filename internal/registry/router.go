package registry

import (
	"go.uber.org/zap"

	"github.com/seva/axon/internal/domain"
)

// Router matches a task's required capabilities against registered agents.
//
// The routing policy is first-fit in registration order, not least-loaded.
// That is a deliberate simplicity/throughput trade-off: one scan, no load
// sorting, and reservation happens atomically inside the scan so a winning
// agent can never be oversubscribed.
type Router struct {
	reg    *Registry
	logger *zap.Logger
}

// NewRouter creates a router over the given registry.
func NewRouter(reg *Registry, logger *zap.Logger) *Router {
	return &Router{reg: reg, logger: logger.Named("router")}
}

// Route selects and reserves the first eligible agent for the task.
// An agent is eligible iff its capability set is a superset of the task's
// required capabilities (an empty requirement matches any agent) and it has
// spare concurrency capacity. Returns ErrNoAgent when nothing fits; the
// condition is non-fatal and the caller may queue for retry.
//
// The returned agent carries a reservation; the caller must Release it.
func (rt *Router) Route(task domain.Task) (string, error) {
	return rt.RouteAmong(task, rt.reg.scanOrder())
}

// RouteAmong routes within an explicit candidate list, scanned in order.
func (rt *Router) RouteAmong(task domain.Task, candidates []string) (string, error) {
	for _, id := range candidates {
		agent, ok := rt.reg.Get(id)
		if !ok {
			continue
		}
		if !covers(agent.Capabilities, task.Capabilities) {
			continue
		}
		// Reserve re-checks capacity under the agent's lock; a concurrent
		// winner makes this fail and the scan moves on.
		if err := rt.reg.Reserve(id); err != nil {
			continue
		}
		rt.logger.Debug("task routed",
			zap.String("task", task.ID),
			zap.String("agent", id))
		return id, nil
	}
	return "", domain.ErrNoAgent
}

// covers reports whether have is a superset of want.
func covers(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// scanOrder returns a snapshot of the registration order.
func (r *Registry) scanOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
