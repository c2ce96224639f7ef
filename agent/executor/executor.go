package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/query-router/agent/contract"
	planx "github.com/tanpawarit/query-router/agent/plan"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ToolResolver looks up the capability bound to a tool name.
type ToolResolver interface {
	Lookup(name contractx.ToolName) (contractx.Tool, bool)
}

// Hooks are optional callbacks fired on step transitions.
type Hooks struct {
	OnStepStart  func(ctx context.Context, step contractx.Step, wave int)
	OnStepFinish func(ctx context.Context, result contractx.StepResult)
	OnRetry      func(ctx context.Context, step contractx.Step, attempt int, err error)
}

// Executor runs a validated plan as a DAG. Each step gets its own task that
// waits on the completion barriers of its dependencies; steps whose
// dependencies are all terminal form the current ready wave and run
// concurrently.
type Executor struct {
	tools       ToolResolver
	policies    Policies
	deadline    time.Duration
	maxParallel int
	hooks       Hooks
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

var _ contractx.Executor = (*Executor)(nil)

func New(tools ToolResolver, opts ...Option) (*Executor, error) {
	if tools == nil {
		return nil, errors.New("tool resolver is required")
	}
	ex := &Executor{
		tools:    tools,
		policies: DefaultPolicies(),
		tracer:   otel.Tracer("query-router/executor"),
		logger:   log.Logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ex)
		}
	}
	return ex, nil
}

type stepTask struct {
	step   contractx.Step
	wave   int
	done   chan struct{}
	result contractx.StepResult
}

func (t *stepTask) transition(next contractx.StepStatus) bool {
	if !t.result.Status.CanTransition(next) {
		return false
	}
	t.result.Status = next
	return true
}

// Execute runs every step to a terminal status and returns the results keyed
// by step id. It fails only when the plan itself is not executable.
func (e *Executor) Execute(ctx context.Context, p contractx.Plan) (map[string]contractx.StepResult, error) {
	waves, err := planx.Waves(p.Steps)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if e.deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.deadline)
		defer cancel()
	}

	runCtx, span := e.tracer.Start(runCtx, "executor.plan", trace.WithAttributes(
		attribute.Int("plan.steps", len(p.Steps)),
		attribute.Int("plan.waves", len(waves)),
	))
	defer span.End()

	index := p.StepIndex()
	tasks := make([]*stepTask, len(p.Steps))
	for w, wave := range waves {
		for _, i := range wave {
			tasks[i] = &stepTask{
				step: p.Steps[i],
				wave: w,
				done: make(chan struct{}),
				result: contractx.StepResult{
					StepID: p.Steps[i].ID,
					Tool:   p.Steps[i].Tool,
					Status: contractx.StepPending,
					Wave:   w,
				},
			}
		}
	}

	// Tasks are launched in topological order so a task holding a slot only
	// ever waits on tasks launched before it.
	var g errgroup.Group
	if e.maxParallel > 0 {
		g.SetLimit(e.maxParallel)
	}
	for _, wave := range waves {
		for _, i := range wave {
			task := tasks[i]
			g.Go(func() error {
				defer close(task.done)
				e.runStep(runCtx, task, tasks, index)
				return nil
			})
		}
	}
	_ = g.Wait()

	results := make(map[string]contractx.StepResult, len(tasks))
	failed := 0
	for _, t := range tasks {
		results[t.step.ID] = t.result
		if t.result.Status != contractx.StepSucceeded {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("plan.unsuccessful_steps", failed))
	if runCtx.Err() != nil {
		span.SetStatus(codes.Error, contractx.ErrTimeout.Error())
	}

	e.logger.Debug().
		Int("steps", len(tasks)).
		Int("waves", len(waves)).
		Int("unsuccessful", failed).
		Msg("plan executed")

	return results, nil
}

func (e *Executor) runStep(ctx context.Context, t *stepTask, tasks []*stepTask, index map[string]int) {
	defer func() {
		if e.hooks.OnStepFinish != nil {
			e.hooks.OnStepFinish(ctx, t.result)
		}
	}()

	for _, dep := range t.step.DependsOn {
		select {
		case <-tasks[index[dep]].done:
		case <-ctx.Done():
			e.skip(t, contractx.ErrorKindTimeout, fmt.Sprintf("%v before step started", contractx.ErrTimeout))
			return
		}
	}

	deps := make(contractx.ToolContext, len(t.step.DependsOn))
	for _, dep := range t.step.DependsOn {
		res := tasks[index[dep]].result
		if res.Status != contractx.StepSucceeded {
			e.skip(t, contractx.ErrorKindSkippedDependency, fmt.Sprintf("dependency %s is %s", dep, res.Status))
			return
		}
		deps[dep] = res.Value
	}

	if ctx.Err() != nil {
		e.skip(t, contractx.ErrorKindTimeout, fmt.Sprintf("%v before step started", contractx.ErrTimeout))
		return
	}

	t.transition(contractx.StepRunning)
	t.result.StartedAt = e.now()
	if e.hooks.OnStepStart != nil {
		e.hooks.OnStepStart(ctx, t.step, t.wave)
	}

	stepCtx, span := e.tracer.Start(ctx, "executor.step", trace.WithAttributes(
		attribute.String("step.id", t.step.ID),
		attribute.String("step.tool", string(t.step.Tool)),
		attribute.Int("step.wave", t.wave),
	))
	defer span.End()

	value, attempts, err := e.invokeWithRetry(stepCtx, t.step, deps)
	t.result.Attempts = attempts
	t.result.FinishedAt = e.now()

	span.SetAttributes(attribute.Int("step.attempts", attempts))
	if err != nil {
		kind := classify(ctx, err)
		t.transition(contractx.StepFailed)
		t.result.Error = &contractx.StepError{Kind: kind, Message: err.Error()}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		e.logger.Warn().
			Str("step_id", t.step.ID).
			Str("tool", string(t.step.Tool)).
			Str("kind", string(kind)).
			Int("attempts", attempts).
			Err(err).
			Msg("step failed")
		return
	}

	t.transition(contractx.StepSucceeded)
	t.result.Value = value
	span.SetStatus(codes.Ok, "")
	e.logger.Debug().
		Str("step_id", t.step.ID).
		Str("tool", string(t.step.Tool)).
		Int("attempts", attempts).
		Dur("elapsed", t.result.FinishedAt.Sub(t.result.StartedAt)).
		Msg("step succeeded")
}

func (e *Executor) skip(t *stepTask, kind contractx.ErrorKind, msg string) {
	if !t.transition(contractx.StepSkipped) {
		return
	}
	t.result.Error = &contractx.StepError{Kind: kind, Message: msg}
	e.logger.Debug().Str("step_id", t.step.ID).Str("reason", msg).Msg("step skipped")
}

func (e *Executor) invokeWithRetry(ctx context.Context, step contractx.Step, deps contractx.ToolContext) (string, int, error) {
	tool, ok := e.tools.Lookup(step.Tool)
	if !ok {
		return "", 0, fmt.Errorf("%w: %w: %s", contractx.ErrToolError, contractx.ErrUnknownTool, step.Tool)
	}

	input := planx.Substitute(step.Input, func(id string) (string, bool) {
		v, ok := deps[id]
		return v, ok
	})

	policy := e.policies.For(step.Tool)
	var lastErr error
	attempt := 0
	for attempt < policy.MaxRetries+1 {
		attempt++
		value, err := invokeOnce(ctx, tool, input, deps.Clone(), policy.Timeout)
		if err == nil {
			return value, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil || contractx.IsPermanent(err) || attempt > policy.MaxRetries {
			break
		}
		if e.hooks.OnRetry != nil {
			e.hooks.OnRetry(ctx, step, attempt, err)
		}
		e.logger.Debug().
			Str("step_id", step.ID).
			Int("attempt", attempt).
			Err(err).
			Msg("retrying step")

		if !sleep(ctx, policy.backoff(attempt)) {
			break
		}
	}

	if ctx.Err() != nil {
		return "", attempt, fmt.Errorf("%w: %v", contractx.ErrTimeout, lastErr)
	}
	if errors.Is(lastErr, contractx.ErrToolTimeout) {
		return "", attempt, lastErr
	}
	return "", attempt, fmt.Errorf("%w: %w", contractx.ErrToolError, lastErr)
}

// invokeOnce runs a single attempt. A tool that ignores cancellation is
// abandoned once the attempt deadline passes.
func invokeOnce(
	ctx context.Context,
	tool contractx.Tool,
	input string,
	deps contractx.ToolContext,
	timeout time.Duration,
) (string, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type outcome struct {
		value string
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := tool.Invoke(attemptCtx, input, deps)
		ch <- outcome{value: v, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil && ctx.Err() == nil && attemptCtx.Err() != nil {
			return "", fmt.Errorf("%w: %s exceeded %s", contractx.ErrToolTimeout, tool.Name(), timeout)
		}
		return out.value, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s exceeded %s", contractx.ErrToolTimeout, tool.Name(), timeout)
	}
}

func classify(planCtx context.Context, err error) contractx.ErrorKind {
	switch {
	case errors.Is(err, contractx.ErrTimeout) || planCtx.Err() != nil:
		return contractx.ErrorKindTimeout
	case errors.Is(err, contractx.ErrToolTimeout):
		return contractx.ErrorKindToolTimeout
	default:
		return contractx.ErrorKindTool
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
