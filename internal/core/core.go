// Package core is the orchestrator facade. It owns the worker pool that
// drains the intake queue and wires routing, planning, policy, resilience,
// persistence, and progress events together. All collaborators are
// injected; nothing in here is a package-level singleton.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seva/axon/internal/bus"
	"github.com/seva/axon/internal/domain"
	"github.com/seva/axon/internal/metrics"
	"github.com/seva/axon/internal/plan"
	"github.com/seva/axon/internal/policy"
	"github.com/seva/axon/internal/queue"
	"github.com/seva/axon/internal/registry"
	"github.com/seva/axon/internal/resilience"
	"github.com/seva/axon/internal/store"
	"github.com/seva/axon/internal/tokens"
	"github.com/seva/axon/internal/tool"
)

// Stage is a task's lifecycle position.
type Stage string

const (
	StageQueued    Stage = "queued"
	StageRouted    Stage = "routed"
	StagePlanning  Stage = "planning"
	StageExecuting Stage = "executing"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
	StageCancelled Stage = "cancelled"
)

// Options wires the orchestrator's collaborators. Queue, Registry, Router,
// Generator, Gate, and Bus are required; the rest degrade gracefully when
// absent.
type Options struct {
	Logger    *zap.Logger
	Queue     *queue.Queue
	Registry  *registry.Registry
	Router    *registry.Router
	Generator *plan.Generator
	Gate      *policy.Gate
	Confirmer policy.Confirmer
	Tools     *tool.Registry
	Wrapper   *resilience.Wrapper
	Budget    *resilience.Budget
	Bus       *bus.Bus
	Store     *store.Store
	Metrics   *metrics.Metrics
	Counter   *tokens.Counter

	SessionID     string
	Workers       int
	MaxParallel   int
	FailurePolicy plan.FailurePolicy

	// RetryDelay paces re-queueing when no agent is available.
	RetryDelay time.Duration
	// MaxRouteRetries bounds how often an unroutable task is retried
	// before failing with ErrNoAgent.
	MaxRouteRetries int
}

// Status is the externally visible view of a task.
type Status struct {
	Task   domain.Task           `json:"task"`
	Stage  Stage                 `json:"stage"`
	Plan   *domain.ExecutionPlan `json:"plan,omitempty"`
	Result *domain.TaskResult    `json:"result,omitempty"`
}

type taskState struct {
	task         domain.Task
	stage        Stage
	routeRetries int
	plan         *domain.ExecutionPlan
	exec         *plan.Executor
	result       *domain.TaskResult
	cancel       context.CancelFunc
}

// Orchestrator is the coordination facade.
type Orchestrator struct {
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[string]*taskState

	rootCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	started bool
	startMu sync.Mutex
}

// New creates an orchestrator from injected collaborators.
func New(opts Options) (*Orchestrator, error) {
	if opts.Queue == nil || opts.Registry == nil || opts.Router == nil ||
		opts.Generator == nil || opts.Bus == nil {
		return nil, fmt.Errorf("%w: orchestrator requires queue, registry, router, generator, and bus", domain.ErrConfiguration)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.MaxRouteRetries <= 0 {
		opts.MaxRouteRetries = 5
	}
	return &Orchestrator{
		opts:   opts,
		logger: opts.Logger.Named("core"),
		tasks:  make(map[string]*taskState),
	}, nil
}

// Start launches the worker pool. Idempotent.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if o.started {
		return
	}
	o.started = true

	o.rootCtx, o.stop = context.WithCancel(ctx)
	for i := 0; i < o.opts.Workers; i++ {
		o.wg.Add(1)
		go o.worker(o.rootCtx)
	}
	o.logger.Info("worker pool started", zap.Int("workers", o.opts.Workers))
}

// Stop cancels all in-flight work and waits for the workers to drain.
func (o *Orchestrator) Stop() {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if !o.started {
		return
	}
	o.stop()
	o.wg.Wait()
	o.started = false
}

// Submit admits a task. The token budget is checked before admission so a
// session over budget rejects new work instead of starting it.
func (o *Orchestrator) Submit(ctx context.Context, description string, capabilities []string, priority domain.Priority) (string, error) {
	if o.opts.Budget != nil {
		cost := tokens.Estimate(description)
		if o.opts.Counter != nil {
			cost = o.opts.Counter.Count(description)
		}
		if err := o.opts.Budget.Check(cost); err != nil {
			o.countError("budget")
			return "", err
		}
	}

	task := domain.Task{
		ID:           "task-" + uuid.NewString(),
		Description:  description,
		Capabilities: capabilities,
		Priority:     priority,
		SubmittedAt:  time.Now().UTC(),
	}

	o.mu.Lock()
	o.tasks[task.ID] = &taskState{task: task, stage: StageQueued}
	o.mu.Unlock()

	if o.opts.Store != nil {
		if err := o.opts.Store.CreateTask(ctx, &task); err != nil {
			return "", fmt.Errorf("persist task: %w", err)
		}
	}

	o.opts.Queue.Enqueue(description, priority, task.ID)
	o.observeQueue()
	o.countStage("queued")
	o.opts.Bus.Emit(domain.EventQueued, task.ID, "", map[string]any{
		"priority": string(priority),
	})
	return task.ID, nil
}

// Status reports a task's current lifecycle view. The returned plan is a
// deep copy; the executor keeps mutating the live one.
func (o *Orchestrator) Status(ctx context.Context, taskID string) (*Status, error) {
	o.mu.Lock()
	st, ok := o.tasks[taskID]
	if ok {
		view := &Status{Task: st.task, Stage: st.stage, Result: st.result}
		exec, p := st.exec, st.plan
		o.mu.Unlock()
		if exec != nil {
			view.Plan = exec.Snapshot()
		}
		if view.Plan == nil && p != nil {
			view.Plan = p.Clone()
		}
		return view, nil
	}
	o.mu.Unlock()

	if o.opts.Store == nil {
		return nil, domain.ErrTaskNotFound
	}

	// Not in memory; reconstruct from persisted state.
	task, stage, err := o.opts.Store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	view := &Status{Task: *task, Stage: Stage(stage)}
	if p, err := o.opts.Store.GetPlanForTask(ctx, taskID); err == nil {
		view.Plan = p
	}
	if r, err := o.opts.Store.GetResult(ctx, taskID); err == nil {
		view.Result = r
	}
	return view, nil
}

// Cancel stops a task. Queued tasks are dropped before dispatch; executing
// tasks get their plan context cancelled.
func (o *Orchestrator) Cancel(taskID string) error {
	o.mu.Lock()
	st, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return domain.ErrTaskNotFound
	}
	switch st.stage {
	case StageCompleted, StageFailed, StageCancelled:
		o.mu.Unlock()
		return nil
	case StageQueued:
		st.stage = StageCancelled
		o.mu.Unlock()
	default:
		cancel := st.cancel
		o.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	}

	o.countStage("cancelled")
	o.opts.Bus.Emit(domain.EventCancelled, taskID, "", nil)
	if o.opts.Store != nil {
		if err := o.opts.Store.SetTaskStatus(context.Background(), taskID, string(StageCancelled)); err != nil {
			o.logger.Warn("task status update failed", zap.String("task", taskID), zap.Error(err))
		}
	}
	return nil
}

// Subscribe exposes the progress bus to external observers.
func (o *Orchestrator) Subscribe(buffer int) (<-chan domain.Event, func()) {
	return o.opts.Bus.Subscribe(buffer)
}

// worker drains the intake queue until the root context is cancelled.
func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		in := o.opts.Queue.Dequeue()
		if in == nil {
			continue
		}
		o.observeQueue()
		o.process(ctx, in)
	}
}

// process runs one dequeued input through route → plan → execute.
func (o *Orchestrator) process(ctx context.Context, in *domain.QueuedInput) {
	taskID := in.Source
	o.mu.Lock()
	st, ok := o.tasks[taskID]
	if !ok || st.stage == StageCancelled {
		o.mu.Unlock()
		return
	}
	task := st.task
	o.mu.Unlock()

	agentID, err := o.opts.Router.Route(task)
	if err != nil {
		o.handleRouteFailure(ctx, st, in, err)
		return
	}

	o.setStage(st, StageRouted)
	o.countStage("routed")
	o.opts.Bus.Publish(domain.Event{Type: domain.EventRouted, TaskID: task.ID, AgentID: agentID})
	defer o.opts.Registry.Release(agentID)

	start := time.Now()
	result := o.runPlan(ctx, st, task, agentID)
	result.Duration = time.Since(start)
	result.CompletedAt = time.Now().UTC()
	o.finish(st, result)
}

// handleRouteFailure requeues unroutable tasks a bounded number of times.
func (o *Orchestrator) handleRouteFailure(ctx context.Context, st *taskState, in *domain.QueuedInput, routeErr error) {
	o.mu.Lock()
	st.routeRetries++
	retries := st.routeRetries
	task := st.task
	o.mu.Unlock()

	if !domain.IsNoAgent(routeErr) || retries >= o.opts.MaxRouteRetries {
		o.countError("no_agent")
		o.finish(st, &domain.TaskResult{
			TaskID:      task.ID,
			Error:       routeErr.Error(),
			CompletedAt: time.Now().UTC(),
		})
		return
	}

	o.logger.Debug("no agent available, requeueing",
		zap.String("task", task.ID), zap.Int("attempt", retries))
	select {
	case <-ctx.Done():
		return
	case <-time.After(o.opts.RetryDelay):
	}
	o.opts.Queue.Enqueue(in.Content, in.Priority, task.ID)
	o.observeQueue()
}

// runPlan generates and executes the plan for a routed task.
func (o *Orchestrator) runPlan(ctx context.Context, st *taskState, task domain.Task, agentID string) *domain.TaskResult {
	result := &domain.TaskResult{TaskID: task.ID, AgentID: agentID}

	o.setStage(st, StagePlanning)
	p, err := o.opts.Generator.Generate(ctx, task.Description)
	if err != nil {
		o.countError("planning")
		result.Error = err.Error()
		return result
	}
	for i := range p.Steps {
		p.Steps[i].AgentID = agentID
	}

	ex := plan.NewExecutor(plan.Options{
		Gate:        o.opts.Gate,
		Confirmer:   o.opts.Confirmer,
		Tools:       o.opts.Tools,
		Wrapper:     o.opts.Wrapper,
		Bus:         o.opts.Bus,
		Logger:      o.logger,
		Policy:      o.opts.FailurePolicy,
		MaxParallel: o.opts.MaxParallel,
	})
	o.mu.Lock()
	st.plan = p
	st.exec = ex
	o.mu.Unlock()
	o.savePlan(task.ID, p)
	o.opts.Bus.Emit(domain.EventPlanned, task.ID, p.ID, map[string]any{
		"steps": len(p.Steps),
	})

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	st.cancel = cancel
	o.mu.Unlock()

	o.setStage(st, StageExecuting)
	o.opts.Bus.Emit(domain.EventExecuting, task.ID, p.ID, nil)

	runErr := ex.Run(taskCtx, p)
	o.savePlan(task.ID, p)
	o.observeBreaker()

	result.Output = map[string]any{"plan_id": p.ID, "cursor": ex.Cursor()}
	result.TokensUsed = o.trackTokens(task, p)
	if runErr != nil {
		result.Error = runErr.Error()
		return result
	}
	result.Success = true
	return result
}

// trackTokens charges the session budget for the work consumed.
func (o *Orchestrator) trackTokens(task domain.Task, p *domain.ExecutionPlan) int {
	text := task.Description
	for _, s := range p.Steps {
		text += "\n" + s.Description
	}
	cost := tokens.Estimate(text)
	if o.opts.Counter != nil {
		cost = o.opts.Counter.Count(text)
	}
	if o.opts.Budget != nil {
		o.opts.Budget.Track(cost)
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.TokensConsumed.Add(float64(cost))
	}
	if o.opts.Store != nil {
		if err := o.opts.Store.RecordUsage(context.Background(), o.opts.SessionID, cost, 0); err != nil {
			o.logger.Warn("usage update failed", zap.String("session", o.opts.SessionID), zap.Error(err))
		}
	}
	return cost
}

// finish records the terminal state and publishes the outcome.
func (o *Orchestrator) finish(st *taskState, result *domain.TaskResult) {
	stage := StageFailed
	event := domain.EventFailed
	outcome := "failed"
	switch {
	case result.Success:
		stage = StageCompleted
		event = domain.EventCompleted
		outcome = "completed"
	case st.planStatus() == domain.PlanCancelled:
		stage = StageCancelled
		event = domain.EventCancelled
		outcome = "cancelled"
	}

	o.mu.Lock()
	st.stage = stage
	st.result = result
	taskID := st.task.ID
	planID := ""
	if st.plan != nil {
		planID = st.plan.ID
	}
	o.mu.Unlock()

	o.countStage(outcome)
	if o.opts.Metrics != nil {
		o.opts.Metrics.TaskDuration.WithLabelValues(outcome).Observe(result.Duration.Seconds())
	}
	if o.opts.Store != nil {
		ctx := context.Background()
		if err := o.opts.Store.SetTaskStatus(ctx, taskID, string(stage)); err != nil {
			o.logger.Warn("task status update failed", zap.String("task", taskID), zap.Error(err))
		}
		if err := o.opts.Store.SaveResult(ctx, result); err != nil {
			o.logger.Warn("result persist failed", zap.String("task", taskID), zap.Error(err))
		}
	}

	o.opts.Bus.Emit(event, taskID, planID, map[string]any{
		"success": result.Success,
		"error":   result.Error,
	})
	o.logger.Info("task finished",
		zap.String("task", taskID),
		zap.String("outcome", outcome),
		zap.Duration("duration", result.Duration))
}

func (st *taskState) planStatus() domain.PlanStatus {
	if st.plan == nil {
		return ""
	}
	return st.plan.Status
}

func (o *Orchestrator) setStage(st *taskState, stage Stage) {
	o.mu.Lock()
	st.stage = stage
	o.mu.Unlock()
	if o.opts.Store != nil {
		if err := o.opts.Store.SetTaskStatus(context.Background(), st.task.ID, string(stage)); err != nil {
			o.logger.Warn("task status update failed", zap.String("task", st.task.ID), zap.Error(err))
		}
	}
}

func (o *Orchestrator) savePlan(taskID string, p *domain.ExecutionPlan) {
	if o.opts.Store == nil {
		return
	}
	if err := o.opts.Store.SavePlan(context.Background(), taskID, p); err != nil {
		o.logger.Warn("plan snapshot failed", zap.String("plan", p.ID), zap.Error(err))
	}
}

func (o *Orchestrator) observeQueue() {
	if o.opts.Metrics == nil {
		return
	}
	high, normal, low := o.opts.Queue.Sizes()
	o.opts.Metrics.QueueDepth.WithLabelValues("high").Set(float64(high))
	o.opts.Metrics.QueueDepth.WithLabelValues("normal").Set(float64(normal))
	o.opts.Metrics.QueueDepth.WithLabelValues("low").Set(float64(low))
}

func (o *Orchestrator) observeBreaker() {
	if o.opts.Metrics == nil || o.opts.Wrapper == nil {
		return
	}
	state := o.opts.Wrapper.Breaker().State()
	o.opts.Metrics.BreakerState.WithLabelValues("provider").Set(float64(state))
}

func (o *Orchestrator) countStage(stage string) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.TasksTotal.WithLabelValues(stage).Inc()
	}
}

func (o *Orchestrator) countError(kind string) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.ErrorsTotal.WithLabelValues(kind).Inc()
	}
}
