package plan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seva/axon/internal/domain"
	"github.com/seva/axon/internal/policy"
	"github.com/seva/axon/internal/tool"
)

// recordingTool captures every invocation with its parameters.
type recordingTool struct {
	mu     sync.Mutex
	name   string
	calls  []map[string]any
	err    error
	block  chan struct{} // when set, Execute waits for it or ctx
	output string
}

func (r *recordingTool) Info() tool.Info { return tool.Info{Name: r.name} }

func (r *recordingTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, params)
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &tool.Result{Output: r.output}, nil
}

func (r *recordingTool) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func linearPlan(toolName string) *domain.ExecutionPlan {
	return &domain.ExecutionPlan{
		ID:     "plan-lin",
		Status: domain.PlanPending,
		Steps: []domain.PlanStep{
			{ID: "s1", Title: "first", Status: domain.StepPending,
				ToolCalls: []domain.ToolCall{{Tool: toolName}}},
			{ID: "s2", Title: "second", Status: domain.StepPending, DependsOn: []string{"s1"},
				ToolCalls: []domain.ToolCall{{Tool: toolName}}},
			{ID: "s3", Title: "third", Status: domain.StepPending, DependsOn: []string{"s2"},
				ToolCalls: []domain.ToolCall{{Tool: toolName}}},
		},
	}
}

func TestRunLinearPlanCompletesInOrder(t *testing.T) {
	rec := &recordingTool{name: "work", output: "done"}
	tools := tool.NewRegistry()
	tools.Register(rec)

	ex := NewExecutor(Options{Tools: tools})
	p := linearPlan("work")

	require.NoError(t, ex.Run(context.Background(), p))

	assert.Equal(t, domain.PlanCompleted, p.Status)
	for _, s := range p.Steps {
		assert.Equal(t, domain.StepCompleted, s.Status)
		assert.Equal(t, 100, s.Progress)
	}
	assert.Equal(t, 3, rec.callCount())
	assert.Equal(t, "s3", ex.Cursor())
}

func TestRunStepWithUnmetDependenciesNeverRuns(t *testing.T) {
	rec := &recordingTool{name: "work", err: errors.New("boom")}
	tools := tool.NewRegistry()
	tools.Register(rec)

	ex := NewExecutor(Options{Tools: tools, Policy: FailContinue})
	p := linearPlan("work")

	err := ex.Run(context.Background(), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPlanning)

	// Only s1 ever reached the tool; its dependents were skipped without
	// transitioning through Running.
	assert.Equal(t, 1, rec.callCount())
	assert.Equal(t, domain.StepFailed, p.Step("s1").Status)
	assert.Equal(t, domain.StepSkipped, p.Step("s2").Status)
	assert.Equal(t, domain.StepSkipped, p.Step("s3").Status)
	assert.Equal(t, domain.PlanFailed, p.Status)
}

func TestRunRejectsCyclicPlan(t *testing.T) {
	ex := NewExecutor(Options{})
	p := &domain.ExecutionPlan{
		ID: "plan-cyc",
		Steps: []domain.PlanStep{
			{ID: "a", Status: domain.StepPending, DependsOn: []string{"b"}},
			{ID: "b", Status: domain.StepPending, DependsOn: []string{"a"}},
		},
	}

	err := ex.Run(context.Background(), p)
	var perr *domain.PlanningError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.PlanFailed, p.Status)
}

func TestRunAbortPolicySkipsIndependentBranches(t *testing.T) {
	fail := &recordingTool{name: "fail", err: errors.New("boom")}
	ok := &recordingTool{name: "ok", output: "fine"}
	tools := tool.NewRegistry()
	tools.Register(fail)
	tools.Register(ok)

	// Two independent chains; the failing one aborts everything pending.
	p := &domain.ExecutionPlan{
		ID: "plan-ab",
		Steps: []domain.PlanStep{
			{ID: "f1", Status: domain.StepPending,
				ToolCalls: []domain.ToolCall{{Tool: "fail"}}},
			{ID: "f2", Status: domain.StepPending, DependsOn: []string{"f1"},
				ToolCalls: []domain.ToolCall{{Tool: "ok"}}},
			{ID: "g2", Status: domain.StepPending, DependsOn: []string{"f1"},
				ToolCalls: []domain.ToolCall{{Tool: "ok"}}},
		},
	}

	ex := NewExecutor(Options{Tools: tools, Policy: FailAbort, MaxParallel: 1})
	require.Error(t, ex.Run(context.Background(), p))

	assert.Equal(t, domain.StepFailed, p.Step("f1").Status)
	assert.Equal(t, domain.StepSkipped, p.Step("f2").Status)
	assert.Equal(t, domain.StepSkipped, p.Step("g2").Status)
	assert.Zero(t, ok.callCount())
}

func TestRunContinuePolicyRunsIndependentBranch(t *testing.T) {
	fail := &recordingTool{name: "fail", err: errors.New("boom")}
	ok := &recordingTool{name: "ok", output: "fine"}
	tools := tool.NewRegistry()
	tools.Register(fail)
	tools.Register(ok)

	p := &domain.ExecutionPlan{
		ID: "plan-ct",
		Steps: []domain.PlanStep{
			{ID: "a", Status: domain.StepPending,
				ToolCalls: []domain.ToolCall{{Tool: "fail"}}},
			{ID: "b", Status: domain.StepPending, DependsOn: []string{"a"},
				ToolCalls: []domain.ToolCall{{Tool: "ok"}}},
			{ID: "c", Status: domain.StepPending,
				ToolCalls: []domain.ToolCall{{Tool: "ok"}}},
		},
	}

	ex := NewExecutor(Options{Tools: tools, Policy: FailContinue})
	require.Error(t, ex.Run(context.Background(), p))

	// The independent branch completed despite the failure next to it.
	assert.Equal(t, domain.StepFailed, p.Step("a").Status)
	assert.Equal(t, domain.StepSkipped, p.Step("b").Status)
	assert.Equal(t, domain.StepCompleted, p.Step("c").Status)
	assert.Equal(t, domain.PlanFailed, p.Status)
}

func TestRunCancellationSkipsPendingFailsRunning(t *testing.T) {
	release := make(chan struct{})
	slow := &recordingTool{name: "slow", block: release, output: "late"}
	tools := tool.NewRegistry()
	tools.Register(slow)

	p := linearPlan("slow")
	ex := NewExecutor(Options{Tools: tools})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ex.Run(ctx, p) }()

	// Wait until the first step is actually inside the tool.
	require.Eventually(t, func() bool { return slow.callCount() == 1 },
		time.Second, time.Millisecond)
	cancel()
	close(release)

	err := <-done
	require.Error(t, err)
	assert.Equal(t, domain.PlanCancelled, p.Status)
	assert.Equal(t, domain.StepFailed, p.Step("s1").Status)
	assert.Equal(t, domain.StepSkipped, p.Step("s2").Status)
	assert.Equal(t, domain.StepSkipped, p.Step("s3").Status)
}

// denyConfirmer rejects every approval request and counts how often it
// was consulted.
type denyConfirmer struct {
	mu    sync.Mutex
	asked int
}

func (d *denyConfirmer) RequestApproval(ctx context.Context, description string, dangerous bool) (bool, error) {
	d.mu.Lock()
	d.asked++
	d.mu.Unlock()
	return false, nil
}

func (d *denyConfirmer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.asked
}

func TestRunGeneratedPlanExecutesAgentCalls(t *testing.T) {
	g := NewGenerator(zap.NewNop())
	p, err := g.Generate(context.Background(), "fetch the data; publish the report")
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)

	rec := &recordingTool{name: tool.AgentTool, output: "done"}
	tools := tool.NewRegistry()
	tools.Register(rec)

	ex := NewExecutor(Options{Tools: tools})
	require.NoError(t, ex.Run(context.Background(), p))

	assert.Equal(t, domain.PlanCompleted, p.Status)
	require.Equal(t, 2, rec.callCount())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, p.Steps[0].Description, rec.calls[0]["description"])
}

func TestRunGeneratedPlanStopsOnDeniedConfirmation(t *testing.T) {
	g := NewGenerator(zap.NewNop())
	p, err := g.Generate(context.Background(), "wipe the cache then rebuild it")
	require.NoError(t, err)

	rec := &recordingTool{name: tool.AgentTool, output: "done"}
	tools := tool.NewRegistry()
	tools.Register(rec)

	gate := policy.NewGate(policy.Config{}, zap.NewNop())
	gate.RegisterTool(tool.AgentTool, policy.ToolPermission{RequiresConfirmation: true})
	confirmer := &denyConfirmer{}

	ex := NewExecutor(Options{Tools: tools, Gate: gate, Confirmer: confirmer})
	err = ex.Run(context.Background(), p)
	require.ErrorIs(t, err, domain.ErrPlanning)

	// The gate saw the generated steps and nothing reached the tool.
	assert.Equal(t, domain.PlanFailed, p.Status)
	assert.Positive(t, confirmer.count())
	assert.Zero(t, rec.callCount())
	assert.Contains(t, p.Steps[0].Error, "confirmation denied")
}

func TestSnapshotIsolatedFromRunningPlan(t *testing.T) {
	release := make(chan struct{})
	slow := &recordingTool{name: "slow", block: release, output: "late"}
	tools := tool.NewRegistry()
	tools.Register(slow)

	p := linearPlan("slow")
	ex := NewExecutor(Options{Tools: tools})
	assert.Nil(t, ex.Snapshot())

	done := make(chan error, 1)
	go func() { done <- ex.Run(context.Background(), p) }()

	require.Eventually(t, func() bool { return slow.callCount() == 1 },
		time.Second, time.Millisecond)

	snap := ex.Snapshot()
	require.NotNil(t, snap)
	assert.NotSame(t, p, snap)
	assert.Equal(t, domain.PlanRunning, snap.Status)
	assert.Equal(t, domain.StepRunning, snap.Step("s1").Status)

	// Writes to the copy never reach the live plan.
	snap.Steps[0].Status = domain.StepFailed
	snap.Steps[0].ToolCalls[0].Params = map[string]any{"tampered": true}

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, domain.PlanCompleted, p.Status)
	assert.Equal(t, domain.StepCompleted, p.Step("s1").Status)
	assert.NotContains(t, p.Steps[0].ToolCalls[0].Params, "tampered")
}

func TestRunPropagatesDependencyOutputs(t *testing.T) {
	rec := &recordingTool{name: "work", output: "artifact"}
	tools := tool.NewRegistry()
	tools.Register(rec)

	p := &domain.ExecutionPlan{
		ID: "plan-io",
		Steps: []domain.PlanStep{
			{ID: "producer", Status: domain.StepPending,
				ToolCalls: []domain.ToolCall{{Tool: "work"}}},
			{ID: "consumer", Status: domain.StepPending, DependsOn: []string{"producer"},
				ToolCalls: []domain.ToolCall{{Tool: "work", Params: map[string]any{"mode": "merge"}}}},
		},
	}

	ex := NewExecutor(Options{Tools: tools})
	require.NoError(t, ex.Run(context.Background(), p))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.calls, 2)
	inputs, ok := rec.calls[1]["inputs"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "artifact", inputs["producer"])
	assert.Equal(t, "merge", rec.calls[1]["mode"])
}
