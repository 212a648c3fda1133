package domain

import "time"

// EventType classifies orchestration lifecycle events.
type EventType string

const (
	EventQueued    EventType = "task.queued"
	EventRouted    EventType = "task.routed"
	EventPlanned   EventType = "task.planned"
	EventExecuting EventType = "task.executing"
	EventCompleted EventType = "task.completed"
	EventFailed    EventType = "task.failed"
	EventCancelled EventType = "task.cancelled"
	EventStep      EventType = "step.transition"
)

// Event is a fire-and-forget progress notification published to subscribers.
type Event struct {
	Type      EventType      `json:"type"`
	TaskID    string         `json:"task_id,omitempty"`
	PlanID    string         `json:"plan_id,omitempty"`
	StepID    string         `json:"step_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
