package domain

import (
	"errors"
	"fmt"
)

// Common orchestration errors.
var (
	// ErrConfiguration indicates invalid startup configuration. Fatal.
	ErrConfiguration = errors.New("configuration error")

	// ErrNoAgent indicates no eligible agent is available. Non-fatal; the
	// caller may queue for retry.
	ErrNoAgent = errors.New("no capable agent available")

	// ErrAgentOverloaded indicates the selected agent is at capacity.
	ErrAgentOverloaded = errors.New("agent overloaded")

	// ErrTool indicates a tool execution failed.
	ErrTool = errors.New("tool execution failed")

	// ErrPlanning indicates a malformed or unsatisfiable dependency graph.
	ErrPlanning = errors.New("planning error")

	// ErrPermissionDenied indicates the policy gate rejected an operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrCircuitOpen indicates a protected dependency is unavailable and the
	// call failed fast without invoking it.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrBudgetExceeded indicates the token budget ceiling would be exceeded.
	ErrBudgetExceeded = errors.New("token budget exceeded")

	// ErrTaskNotFound indicates the task ID is unknown to the orchestrator.
	ErrTaskNotFound = errors.New("task not found")

	// ErrIO indicates a storage or transport failure.
	ErrIO = errors.New("io error")

	// ErrSerialization indicates a payload could not be encoded or decoded.
	ErrSerialization = errors.New("serialization error")
)

// PermissionError wraps ErrPermissionDenied with tool details.
type PermissionError struct {
	Tool   string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied for %s: %s", e.Tool, e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return ErrPermissionDenied
}

// NewPermissionError creates a typed policy gate rejection.
func NewPermissionError(tool, reason string) error {
	return &PermissionError{Tool: tool, Reason: reason}
}

// PlanningError wraps ErrPlanning with graph details.
type PlanningError struct {
	PlanID string
	Detail string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed for %s: %s", e.PlanID, e.Detail)
}

func (e *PlanningError) Unwrap() error {
	return ErrPlanning
}

// ToolError wraps ErrTool with the failing tool's name.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

// Unwrap exposes both the ErrTool sentinel and the underlying cause so
// errors.Is can see either.
func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTool}
	}
	return []error{ErrTool, e.Err}
}

// IsPermissionDenied checks for a policy gate rejection.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsCircuitOpen checks for a fail-fast breaker rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsNoAgent checks for the no-eligible-agent condition.
func IsNoAgent(err error) bool {
	return errors.Is(err, ErrNoAgent)
}
