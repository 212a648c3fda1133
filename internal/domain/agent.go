// Package domain defines the core entities shared across axon subsystems.
package domain

import "time"

// AgentStatus represents the lifecycle state of an agent.
type AgentStatus string

const (
	AgentReady   AgentStatus = "ready"
	AgentBusy    AgentStatus = "busy"
	AgentOffline AgentStatus = "offline"
	AgentError   AgentStatus = "error"
)

// Agent describes a registered executing agent and its capacity.
// CurrentTasks is bounded by MaxConcurrentTasks and is mutated only
// through the registry's increment/decrement operations.
type Agent struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Specialization     string      `json:"specialization,omitempty"`
	Capabilities       []string    `json:"capabilities"`
	Status             AgentStatus `json:"status"`
	CurrentTasks       int         `json:"current_tasks"`
	MaxConcurrentTasks int         `json:"max_concurrent_tasks"`
	CreatedAt          time.Time   `json:"created_at"`
	LastActivity       time.Time   `json:"last_activity"`
}

// HasCapability reports whether the agent declares the given capability tag.
func (a *Agent) HasCapability(tag string) bool {
	for _, c := range a.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// CanAccept reports whether the agent has spare concurrency capacity.
func (a *Agent) CanAccept() bool {
	return a.Status != AgentOffline && a.Status != AgentError &&
		a.CurrentTasks < a.MaxConcurrentTasks
}
