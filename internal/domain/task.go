package domain

import "time"

// Priority orders work items in the intake queue.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Task is a unit of work submitted to the orchestrator.
// Immutable once created.
type Task struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	Capabilities []string  `json:"capabilities,omitempty"` // required capability tags, in declaration order
	Priority     Priority  `json:"priority"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// TaskResult records the outcome of a single task attempt.
// Created exactly once per attempt, never mutated afterwards.
type TaskResult struct {
	TaskID      string         `json:"task_id"`
	AgentID     string         `json:"agent_id"`
	Success     bool           `json:"success"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	Duration    time.Duration  `json:"duration_ms"`
	TokensUsed  int            `json:"tokens_used"`
	CompletedAt time.Time      `json:"completed_at"`
}

// QueuedInput is a raw work item buffered before dispatch.
// Destroyed on dequeue.
type QueuedInput struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Priority   Priority  `json:"priority"`
	Source     string    `json:"source,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
