// Package render provides output formatting for terminal consumption.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/seva/axon/internal/domain"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Agents formats the agent roster.
func (r *Renderer) Agents(agents []*domain.Agent) string {
	if len(agents) == 0 {
		return "No agents registered"
	}

	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Registered Agents\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, a := range agents {
		r.formatAgent(&sb, a)
	}
	return sb.String()
}

func (r *Renderer) formatAgent(sb *strings.Builder, a *domain.Agent) {
	load := fmt.Sprintf("%d/%d", a.CurrentTasks, a.MaxConcurrentTasks)
	caps := strings.Join(a.Capabilities, ", ")

	if r.pretty {
		fmt.Fprintf(sb, "%s %-16s %-8s load=%s  [%s]\n",
			statusDot(a.Status), a.ID, a.Status, load, caps)
	} else {
		fmt.Fprintf(sb, "%s\t%s\t%s\t%s\n", a.ID, a.Status, load, caps)
	}
}

func statusDot(s domain.AgentStatus) string {
	switch s {
	case domain.AgentReady:
		return color.GreenString("●")
	case domain.AgentBusy:
		return color.YellowString("●")
	default:
		return color.RedString("●")
	}
}

// Plan formats an execution plan with per-step status.
func (r *Renderer) Plan(p *domain.ExecutionPlan) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString(fmt.Sprintf("Plan %s", p.ID)) +
			"  " + r.planStatus(p.Status) + "\n")
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	} else {
		fmt.Fprintf(&sb, "plan %s status=%s\n", p.ID, p.Status)
	}

	for _, s := range p.Steps {
		r.formatStep(&sb, s)
	}

	if p.ActualDuration > 0 {
		fmt.Fprintf(&sb, "\nTook %s\n", p.ActualDuration.Round(10*time.Millisecond))
	}
	return sb.String()
}

func (r *Renderer) formatStep(sb *strings.Builder, s domain.PlanStep) {
	marker := "○"
	switch s.Status {
	case domain.StepCompleted:
		marker = color.GreenString("✓")
	case domain.StepFailed:
		marker = color.RedString("✗")
	case domain.StepRunning:
		marker = color.YellowString("▸")
	case domain.StepSkipped:
		marker = color.HiBlackString("−")
	}

	if r.pretty {
		fmt.Fprintf(sb, "%s %s\n", marker, s.Title)
		if s.Error != "" {
			fmt.Fprintf(sb, "    %s\n", color.RedString(s.Error))
		}
	} else {
		fmt.Fprintf(sb, "[%s] %s\n", s.Status, s.Title)
		if s.Error != "" {
			fmt.Fprintf(sb, "    error: %s\n", s.Error)
		}
	}
}

func (r *Renderer) planStatus(s domain.PlanStatus) string {
	switch s {
	case domain.PlanCompleted:
		return color.GreenString(string(s))
	case domain.PlanFailed, domain.PlanCancelled:
		return color.RedString(string(s))
	case domain.PlanRunning:
		return color.YellowString(string(s))
	}
	return string(s)
}

// Result formats a task outcome.
func (r *Renderer) Result(res *domain.TaskResult) string {
	var sb strings.Builder

	status := color.GreenString("✓ completed")
	if !res.Success {
		status = color.RedString("✗ failed")
	}
	if !r.pretty {
		status = "completed"
		if !res.Success {
			status = "failed"
		}
	}

	fmt.Fprintf(&sb, "%s  task=%s agent=%s", status, res.TaskID, res.AgentID)
	if res.Duration > 0 {
		fmt.Fprintf(&sb, " (%s)", res.Duration.Round(10*time.Millisecond))
	}
	if res.TokensUsed > 0 {
		fmt.Fprintf(&sb, " tokens=%d", res.TokensUsed)
	}
	sb.WriteString("\n")

	if res.Error != "" {
		if r.pretty {
			fmt.Fprintf(&sb, "    %s\n", color.RedString(res.Error))
		} else {
			fmt.Fprintf(&sb, "    error: %s\n", res.Error)
		}
	}
	return sb.String()
}

// QueueStatus formats queue depths per priority tier.
func (r *Renderer) QueueStatus(high, normal, low int) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Queue\n"))
		sb.WriteString(strings.Repeat("─", 40) + "\n")
		fmt.Fprintf(&sb, "  High:   %d\n", high)
		fmt.Fprintf(&sb, "  Normal: %d\n", normal)
		fmt.Fprintf(&sb, "  Low:    %d\n", low)
	} else {
		fmt.Fprintf(&sb, "high=%d normal=%d low=%d\n", high, normal, low)
	}
	return sb.String()
}
