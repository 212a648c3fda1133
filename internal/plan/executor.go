package plan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seva/axon/internal/bus"
	"github.com/seva/axon/internal/domain"
	"github.com/seva/axon/internal/policy"
	"github.com/seva/axon/internal/resilience"
	"github.com/seva/axon/internal/tool"
)

// FailurePolicy controls how step failures affect the rest of the plan.
type FailurePolicy string

const (
	// FailAbort skips every remaining step after the first failure.
	FailAbort FailurePolicy = "abort"
	// FailSkipDependents skips the failed step's transitive dependents
	// immediately and keeps independent branches running.
	FailSkipDependents FailurePolicy = "skip_dependents"
	// FailContinue keeps running everything whose dependencies still
	// complete; blocked steps are skipped at the end.
	FailContinue FailurePolicy = "continue"
)

// Options wires an executor's collaborators.
type Options struct {
	Gate        *policy.Gate
	Confirmer   policy.Confirmer
	Tools       *tool.Registry
	Wrapper     *resilience.Wrapper
	Bus         *bus.Bus
	Logger      *zap.Logger
	Policy      FailurePolicy
	MaxParallel int // bounded parallelism for independent branches
}

// Executor drives one plan's step state machine. Steps run in topological
// order, ties broken by declaration order; independent branches run
// concurrently up to MaxParallel.
type Executor struct {
	opts Options

	mu      sync.Mutex
	plan    *domain.ExecutionPlan // set by Run, read by Snapshot
	cursor  string                // last step moved to Running, for external checkpointing
	outputs map[string]string     // completed step outputs, propagated to dependents
	aborted bool
}

// NewExecutor creates an executor for a single plan run.
func NewExecutor(opts Options) *Executor {
	if opts.Policy == "" {
		opts.Policy = FailAbort
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Executor{
		opts:    opts,
		outputs: make(map[string]string),
	}
}

// Cursor returns the ID of the most recently started step. Callers that
// persist plan state externally can restart from here after a crash.
func (e *Executor) Cursor() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// Snapshot returns a deep copy of the running plan, consistent under the
// executor's lock. Returns nil before Run has been called.
func (e *Executor) Snapshot() *domain.ExecutionPlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.plan == nil {
		return nil
	}
	return e.plan.Clone()
}

// Run executes the plan to completion, cancellation, or failure per the
// configured policy. The plan object is mutated in place; concurrent
// readers must go through Snapshot.
func (e *Executor) Run(ctx context.Context, p *domain.ExecutionPlan) error {
	e.mu.Lock()
	e.plan = p
	e.mu.Unlock()

	if err := ValidateDAG(p); err != nil {
		e.setPlanStatus(p, domain.PlanFailed)
		return err
	}

	start := time.Now()
	e.setPlanStatus(p, domain.PlanRunning)

	for {
		if ctx.Err() != nil {
			e.cancelRemaining(p)
			e.setDuration(p, time.Since(start))
			return ctx.Err()
		}

		ready := e.readySteps(p)
		if len(ready) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(e.opts.MaxParallel)
		for _, id := range ready {
			id := id
			g.Go(func() error {
				e.runStep(ctx, p, id)
				return nil
			})
		}
		_ = g.Wait()

		e.mu.Lock()
		aborted := e.aborted
		e.mu.Unlock()
		if aborted {
			break
		}
	}

	e.finalize(p, ctx.Err() != nil)
	e.setDuration(p, time.Since(start))

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if p.Status == domain.PlanFailed {
		return fmt.Errorf("%w: plan %s has failed steps", domain.ErrPlanning, p.ID)
	}
	return nil
}

// readySteps returns pending steps whose dependencies are all completed,
// in declaration order.
func (e *Executor) readySteps(p *domain.ExecutionPlan) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ready []string
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.Status != domain.StepPending {
			continue
		}
		ok := true
		for _, dep := range s.DependsOn {
			if d := p.Step(dep); d == nil || d.Status != domain.StepCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, s.ID)
		}
	}
	return ready
}

func (e *Executor) runStep(ctx context.Context, p *domain.ExecutionPlan, stepID string) {
	e.transition(p, stepID, domain.StepRunning, "")

	step := e.stepCopy(p, stepID)
	output, err := e.executeToolCalls(ctx, p, step)
	if err != nil {
		e.transition(p, stepID, domain.StepFailed, failureMessage(err))
		e.handleFailure(p, stepID)
		return
	}

	e.mu.Lock()
	e.outputs[stepID] = output
	e.mu.Unlock()
	e.transition(p, stepID, domain.StepCompleted, "")
}

// executeToolCalls gates and runs every tool call of the step. Completed
// dependency outputs are propagated into each call's parameters.
func (e *Executor) executeToolCalls(ctx context.Context, p *domain.ExecutionPlan, step domain.PlanStep) (string, error) {
	var output string
	for _, call := range step.ToolCalls {
		if e.opts.Gate != nil {
			if err := e.opts.Gate.Authorize(ctx, call, e.opts.Confirmer); err != nil {
				return "", err
			}
		}
		if e.opts.Tools == nil {
			continue
		}

		params := e.withInputs(call.Params, step.DependsOn)
		var res *tool.Result
		run := func(ctx context.Context) error {
			var err error
			res, err = e.opts.Tools.Execute(ctx, call.Tool, params)
			return err
		}

		var err error
		if e.opts.Wrapper != nil {
			err = e.opts.Wrapper.Do(ctx, run)
		} else {
			err = run(ctx)
		}
		if err != nil {
			return "", err
		}
		if res != nil {
			output = res.Output
		}
	}
	return output, nil
}

// withInputs copies params and merges the outputs of completed dependency
// steps under the "inputs" key.
func (e *Executor) withInputs(params map[string]any, deps []string) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	if len(deps) > 0 {
		e.mu.Lock()
		inputs := make(map[string]string, len(deps))
		for _, dep := range deps {
			if v, ok := e.outputs[dep]; ok {
				inputs[dep] = v
			}
		}
		e.mu.Unlock()
		if len(inputs) > 0 {
			out["inputs"] = inputs
		}
	}
	return out
}

func (e *Executor) handleFailure(p *domain.ExecutionPlan, failedID string) {
	switch e.opts.Policy {
	case FailAbort:
		e.mu.Lock()
		e.aborted = true
		e.mu.Unlock()
	case FailSkipDependents:
		for _, id := range e.dependentsOf(p, failedID) {
			e.transition(p, id, domain.StepSkipped, "")
		}
	}
	// FailContinue: blocked steps are skipped in finalize.
}

// dependentsOf returns the transitive dependents of a step that are still
// pending.
func (e *Executor) dependentsOf(p *domain.ExecutionPlan, rootID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	blocked := map[string]bool{rootID: true}
	var out []string
	// Steps are scanned repeatedly until the blocked set stops growing;
	// the graph is small and acyclic.
	for changed := true; changed; {
		changed = false
		for i := range p.Steps {
			s := &p.Steps[i]
			if blocked[s.ID] || s.Status != domain.StepPending {
				continue
			}
			for _, dep := range s.DependsOn {
				if blocked[dep] {
					blocked[s.ID] = true
					out = append(out, s.ID)
					changed = true
					break
				}
			}
		}
	}
	return out
}

// finalize skips blocked pending steps and recomputes the aggregate status.
func (e *Executor) finalize(p *domain.ExecutionPlan, cancelled bool) {
	e.mu.Lock()
	for i := range p.Steps {
		if p.Steps[i].Status == domain.StepPending {
			p.Steps[i].Status = domain.StepSkipped
		}
	}
	p.Status = p.Aggregate()
	if cancelled {
		p.Status = domain.PlanCancelled
	}
	p.UpdatedAt = time.Now().UTC()
	e.mu.Unlock()
}

// cancelRemaining marks running steps failed and pending steps skipped
// when the plan-level cancellation fires.
func (e *Executor) cancelRemaining(p *domain.ExecutionPlan) {
	e.mu.Lock()
	for i := range p.Steps {
		switch p.Steps[i].Status {
		case domain.StepRunning:
			p.Steps[i].Status = domain.StepFailed
			p.Steps[i].Error = "cancelled"
		case domain.StepPending:
			p.Steps[i].Status = domain.StepSkipped
		}
	}
	p.Status = domain.PlanCancelled
	p.UpdatedAt = time.Now().UTC()
	e.mu.Unlock()
}

func (e *Executor) transition(p *domain.ExecutionPlan, stepID string, status domain.StepStatus, errMsg string) {
	e.mu.Lock()
	s := p.Step(stepID)
	if s == nil {
		e.mu.Unlock()
		return
	}
	s.Status = status
	s.Error = errMsg
	switch status {
	case domain.StepRunning:
		e.cursor = stepID
	case domain.StepCompleted:
		s.Progress = 100
	}
	p.UpdatedAt = time.Now().UTC()
	e.mu.Unlock()

	e.opts.Logger.Debug("step transition",
		zap.String("plan", p.ID),
		zap.String("step", stepID),
		zap.String("status", string(status)))
	if e.opts.Bus != nil {
		e.opts.Bus.Publish(domain.Event{
			Type:   domain.EventStep,
			PlanID: p.ID,
			StepID: stepID,
			Payload: map[string]any{
				"status": string(status),
				"error":  errMsg,
			},
		})
	}
}

func (e *Executor) stepCopy(p *domain.ExecutionPlan, stepID string) domain.PlanStep {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := p.Step(stepID); s != nil {
		return *s
	}
	return domain.PlanStep{}
}

func (e *Executor) setDuration(p *domain.ExecutionPlan, d time.Duration) {
	e.mu.Lock()
	p.ActualDuration = d
	e.mu.Unlock()
}

func (e *Executor) setPlanStatus(p *domain.ExecutionPlan, status domain.PlanStatus) {
	e.mu.Lock()
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	e.mu.Unlock()
}

// failureMessage keeps circuit-open failures human readable: the step is
// degraded, not broken.
func failureMessage(err error) string {
	if domain.IsCircuitOpen(err) {
		return "service temporarily unavailable"
	}
	return err.Error()
}
