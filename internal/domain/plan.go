package domain

import "time"

// PlanStatus represents the aggregate state of an execution plan.
type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanRunning   PlanStatus = "running"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
	PlanCancelled PlanStatus = "cancelled"
)

// StepStatus represents the state of a single plan step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Terminal reports whether the step status is final.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// ToolCall names a tool invocation a step performs, with its parameters.
type ToolCall struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params,omitempty"`
}

// PlanStep is one node of a plan's dependency DAG.
// A step may enter StepRunning only when every dependency is StepCompleted.
type PlanStep struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      StepStatus `json:"status"`
	AgentID     string     `json:"agent_id,omitempty"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	Progress    int        `json:"progress"` // 0-100
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ExecutionPlan is a dependency-ordered sequence of steps generated from a
// request. Owned exclusively by the plan pipeline for its lifetime.
type ExecutionPlan struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Description       string        `json:"description,omitempty"`
	Steps             []PlanStep    `json:"steps"`
	Status            PlanStatus    `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	ActualDuration    time.Duration `json:"actual_duration,omitempty"`
}

// Step returns a pointer to the step with the given ID, or nil.
// Clone returns a deep copy safe to hand to concurrent readers.
func (p *ExecutionPlan) Clone() *ExecutionPlan {
	out := *p
	out.Steps = make([]PlanStep, len(p.Steps))
	for i, s := range p.Steps {
		cs := s
		cs.DependsOn = append([]string(nil), s.DependsOn...)
		cs.ToolCalls = make([]ToolCall, len(s.ToolCalls))
		for j, tc := range s.ToolCalls {
			ctc := tc
			if tc.Params != nil {
				ctc.Params = make(map[string]any, len(tc.Params))
				for k, v := range tc.Params {
					ctc.Params[k] = v
				}
			}
			cs.ToolCalls[j] = ctc
		}
		out.Steps[i] = cs
	}
	return &out
}

func (p *ExecutionPlan) Step(id string) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Aggregate recomputes the plan status from its step statuses.
// Failed wins over Running; a plan is Completed when every step is
// Completed or Skipped.
func (p *ExecutionPlan) Aggregate() PlanStatus {
	anyFailed := false
	anyRunning := false
	anyPending := false
	for i := range p.Steps {
		switch p.Steps[i].Status {
		case StepFailed:
			anyFailed = true
		case StepRunning:
			anyRunning = true
		case StepPending:
			anyPending = true
		}
	}
	switch {
	case anyFailed:
		return PlanFailed
	case anyRunning:
		return PlanRunning
	case anyPending:
		return PlanPending
	default:
		return PlanCompleted
	}
}
