package plan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seva/axon/internal/domain"
	"github.com/seva/axon/internal/tool"
	"github.com/seva/axon/pkg/llm"
)

func TestGenerateHeuristicSplitsSentences(t *testing.T) {
	g := NewGenerator(zap.NewNop())

	p, err := g.Generate(context.Background(), "read the config; validate it then write the report")
	require.NoError(t, err)

	require.Len(t, p.Steps, 3)
	assert.True(t, strings.HasPrefix(p.ID, "plan-"))
	assert.Equal(t, domain.PlanPending, p.Status)

	// Sequential chain: each step depends on the previous one.
	assert.Empty(t, p.Steps[0].DependsOn)
	assert.Equal(t, []string{p.Steps[0].ID}, p.Steps[1].DependsOn)
	assert.Equal(t, []string{p.Steps[1].ID}, p.Steps[2].DependsOn)
	for _, s := range p.Steps {
		assert.Equal(t, domain.StepPending, s.Status)
		assert.True(t, strings.HasPrefix(s.ID, "step-"))
	}
}

func TestGenerateStepsCarryAgentCall(t *testing.T) {
	g := NewGenerator(zap.NewNop())

	p, err := g.Generate(context.Background(), "fetch sources; build index then publish")
	require.NoError(t, err)
	require.Len(t, p.Steps, 3)

	// Every step must be executable: without a tool call the gate and the
	// tool registry would never see it.
	for _, s := range p.Steps {
		require.Len(t, s.ToolCalls, 1)
		assert.Equal(t, tool.AgentTool, s.ToolCalls[0].Tool)
		assert.Equal(t, s.Description, s.ToolCalls[0].Params["description"])
	}
}

func TestGenerateModelHonorsExplicitTool(t *testing.T) {
	mock := llm.NewMock()
	mock.Response = `[
		{"title": "List", "description": "list files", "tool": "shell", "params": {"command": "ls"}},
		{"title": "Summarize", "description": "summarize listing", "depends_on": [0]}
	]`
	g := NewGeneratorWithProvider(mock, nil, zap.NewNop())

	p, err := g.Generate(context.Background(), "inspect the workspace")
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)

	require.Len(t, p.Steps[0].ToolCalls, 1)
	assert.Equal(t, "shell", p.Steps[0].ToolCalls[0].Tool)
	assert.Equal(t, "ls", p.Steps[0].ToolCalls[0].Params["command"])

	// Steps without an explicit tool fall back to the agent runner.
	require.Len(t, p.Steps[1].ToolCalls, 1)
	assert.Equal(t, tool.AgentTool, p.Steps[1].ToolCalls[0].Tool)
}

func TestGenerateEmptyInputYieldsSingleStep(t *testing.T) {
	g := NewGenerator(zap.NewNop())

	p, err := g.Generate(context.Background(), "   ")
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "(empty request)", p.Description)
}

func TestGenerateModelFallsBackOnProviderError(t *testing.T) {
	mock := llm.NewMock()
	mock.FailNext = 10
	mock.Err = errors.New("upstream down")
	g := NewGeneratorWithProvider(mock, nil, zap.NewNop())

	p, err := g.Generate(context.Background(), "do one thing")
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "do one thing", p.Steps[0].Description)
	assert.Positive(t, mock.Calls())
}

func TestGenerateModelParsesStepArray(t *testing.T) {
	mock := llm.NewMock()
	mock.Response = `[
		{"title": "Fetch", "description": "fetch sources", "depends_on": []},
		{"title": "Index", "description": "build index", "depends_on": [0]}
	]`
	g := NewGeneratorWithProvider(mock, nil, zap.NewNop())

	p, err := g.Generate(context.Background(), "index the repo")
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "Fetch", p.Steps[0].Title)
	assert.Equal(t, []string{p.Steps[0].ID}, p.Steps[1].DependsOn)
}

func TestGenerateModelRejectsMalformedIndices(t *testing.T) {
	mock := llm.NewMock()
	mock.Response = `[{"title": "A", "description": "a", "depends_on": [5]}]`
	g := NewGeneratorWithProvider(mock, nil, zap.NewNop())

	// Out-of-range dependency index falls back to the heuristic.
	p, err := g.Generate(context.Background(), "single task")
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "single task", p.Steps[0].Description)
}

func TestTitleOfTruncatesByRunes(t *testing.T) {
	long := strings.Repeat("проверка ", 10)
	title := titleOf(long)

	r := []rune(title)
	assert.Len(t, r, 60)
	assert.Equal(t, "...", string(r[57:]))
	// The cut must not split a multi-byte rune.
	assert.True(t, strings.HasPrefix(long, string(r[:57])))
}

func TestValidateDAGRejectsCycle(t *testing.T) {
	p := &domain.ExecutionPlan{
		ID: "plan-x",
		Steps: []domain.PlanStep{
			{ID: "a", DependsOn: []string{"b"}},
			{ID: "b", DependsOn: []string{"a"}},
		},
	}

	err := ValidateDAG(p)
	require.Error(t, err)
	var perr *domain.PlanningError
	assert.ErrorAs(t, err, &perr)
}

func TestValidateDAGRejectsUnknownDependency(t *testing.T) {
	p := &domain.ExecutionPlan{
		ID: "plan-y",
		Steps: []domain.PlanStep{
			{ID: "a", DependsOn: []string{"ghost"}},
		},
	}

	var perr *domain.PlanningError
	assert.ErrorAs(t, ValidateDAG(p), &perr)
}

func TestValidateDAGAcceptsDiamond(t *testing.T) {
	p := &domain.ExecutionPlan{
		ID: "plan-z",
		Steps: []domain.PlanStep{
			{ID: "a"},
			{ID: "b", DependsOn: []string{"a"}},
			{ID: "c", DependsOn: []string{"a"}},
			{ID: "d", DependsOn: []string{"b", "c"}},
		},
	}
	assert.NoError(t, ValidateDAG(p))
}
