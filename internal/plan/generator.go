// Package plan turns a free-text request into a dependency-ordered
// execution plan and drives it step by step through the policy gate and
// the resilience layer.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/seva/axon/internal/domain"
	"github.com/seva/axon/internal/resilience"
	"github.com/seva/axon/internal/tool"
	"github.com/seva/axon/pkg/llm"
)

// Generator decomposes requests into plans. With a provider configured it
// asks the model for a step breakdown through the resilience wrapper and
// falls back to heuristic splitting on any failure, so generation never
// fails on well-formed input. Every step carries at least one tool call;
// steps with no explicit tool default to the agent runner.
type Generator struct {
	provider llm.Provider
	wrapper  *resilience.Wrapper
	logger   *zap.Logger
}

// NewGenerator creates a heuristic-only generator.
func NewGenerator(logger *zap.Logger) *Generator {
	return &Generator{logger: logger.Named("planner")}
}

// NewGeneratorWithProvider creates a generator that consults the given
// provider, guarded by the wrapper.
func NewGeneratorWithProvider(provider llm.Provider, wrapper *resilience.Wrapper, logger *zap.Logger) *Generator {
	return &Generator{provider: provider, wrapper: wrapper, logger: logger.Named("planner")}
}

const planPrompt = `Break the following request into an ordered list of implementation steps.
Respond with a JSON array only: [{"title": "...", "description": "...", "depends_on": [0]}]
where depends_on holds zero-based indices of prerequisite steps. A step may
additionally name a "tool" and its "params" object when a specific tool
should run it.

Request: %s`

// Generate builds an execution plan for the request. Empty or pathological
// input yields a single-step plan describing the request verbatim.
func (g *Generator) Generate(ctx context.Context, request string) (*domain.ExecutionPlan, error) {
	request = strings.TrimSpace(request)
	now := time.Now().UTC()

	planObj := &domain.ExecutionPlan{
		ID:        "plan-" + ulid.Make().String(),
		Title:     titleOf(request),
		Status:    domain.PlanPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if request == "" {
		planObj.Description = "(empty request)"
		planObj.Steps = []domain.PlanStep{newStep("Handle request", "(empty request)", nil)}
		return planObj, nil
	}
	planObj.Description = request

	var steps []domain.PlanStep
	if g.provider != nil {
		steps = g.generateWithModel(ctx, request)
	}
	if steps == nil {
		steps = decompose(request)
	}
	planObj.Steps = steps

	if err := ValidateDAG(planObj); err != nil {
		return nil, err
	}
	return planObj, nil
}

// generateWithModel asks the provider for a step breakdown. Returns nil on
// any failure so the caller falls back to heuristic decomposition.
func (g *Generator) generateWithModel(ctx context.Context, request string) []domain.PlanStep {
	var text string
	call := func(ctx context.Context) error {
		resp, err := g.provider.Generate(ctx, []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(planPrompt, request)},
		}, llm.Options{MaxTokens: 2048})
		if err != nil {
			return err
		}
		text = resp.Text
		return nil
	}

	var err error
	if g.wrapper != nil {
		err = g.wrapper.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		g.logger.Warn("model planning failed, falling back to heuristic", zap.Error(err))
		return nil
	}

	var raw []struct {
		Title       string         `json:"title"`
		Description string         `json:"description"`
		DependsOn   []int          `json:"depends_on"`
		Tool        string         `json:"tool"`
		Params      map[string]any `json:"params"`
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil || len(raw) == 0 {
		return nil
	}

	steps := make([]domain.PlanStep, len(raw))
	for i, r := range raw {
		steps[i] = newStep(r.Title, r.Description, nil)
		if r.Tool != "" {
			steps[i].ToolCalls = []domain.ToolCall{{Tool: r.Tool, Params: r.Params}}
		}
	}
	for i, r := range raw {
		for _, dep := range r.DependsOn {
			if dep < 0 || dep >= len(steps) || dep == i {
				return nil // malformed indices, fall back
			}
			steps[i].DependsOn = append(steps[i].DependsOn, steps[dep].ID)
		}
	}
	return steps
}

var stepSplitter = regexp.MustCompile(`(?i)\s*(?:;|\.\s|,?\s+(?:and\s+then|then)\s+)\s*`)

// decompose splits a request into sequential steps on common separators.
// Each step depends on the previous one. A request that does not split
// becomes a single verbatim step.
func decompose(request string) []domain.PlanStep {
	parts := stepSplitter.Split(request, -1)
	var cleaned []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{request}
	}

	steps := make([]domain.PlanStep, len(cleaned))
	for i, part := range cleaned {
		steps[i] = newStep(titleOf(part), part, nil)
		if i > 0 {
			steps[i].DependsOn = []string{steps[i-1].ID}
		}
	}
	return steps
}

// newStep creates a pending step carrying the default agent call, so the
// gate and the tool registry see every step of every generated plan.
func newStep(title, description string, deps []string) domain.PlanStep {
	return domain.PlanStep{
		ID:          "step-" + ulid.Make().String(),
		Title:       title,
		Description: description,
		Status:      domain.StepPending,
		DependsOn:   deps,
		ToolCalls: []domain.ToolCall{
			{Tool: tool.AgentTool, Params: map[string]any{"description": description}},
		},
	}
}

func titleOf(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "Handle request"
	}
	if r := []rune(text); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return text
}

// ValidateDAG rejects plans with unknown dependency IDs or cycles.
func ValidateDAG(p *domain.ExecutionPlan) error {
	ids := make(map[string]int, len(p.Steps))
	for i := range p.Steps {
		ids[p.Steps[i].ID] = i
	}

	indegree := make([]int, len(p.Steps))
	dependents := make(map[int][]int)
	for i := range p.Steps {
		for _, dep := range p.Steps[i].DependsOn {
			j, ok := ids[dep]
			if !ok {
				return &domain.PlanningError{PlanID: p.ID,
					Detail: fmt.Sprintf("step %s depends on unknown step %s", p.Steps[i].ID, dep)}
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// Kahn's algorithm: anything left over sits on a cycle.
	var queue []int
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, m := range dependents[n] {
			indegree[m]--
			if indegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	if visited != len(p.Steps) {
		return &domain.PlanningError{PlanID: p.ID, Detail: "dependency graph contains a cycle"}
	}
	return nil
}
