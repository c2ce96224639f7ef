package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/query-router/agent/contract"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeTool struct {
	name contractx.ToolName
	fn   func(ctx context.Context, input string, deps contractx.ToolContext) (string, error)
}

func (f fakeTool) Name() contractx.ToolName { return f.name }

func (f fakeTool) Invoke(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
	return f.fn(ctx, input, deps)
}

type fakeTools map[contractx.ToolName]contractx.Tool

func (f fakeTools) Lookup(name contractx.ToolName) (contractx.Tool, bool) {
	t, ok := f[name]
	return t, ok
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) index(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.events {
		if e == event {
			return i
		}
	}
	return -1
}

func (l *eventLog) hooks() Hooks {
	return Hooks{
		OnStepStart: func(ctx context.Context, step contractx.Step, wave int) {
			l.add("start:" + step.ID)
		},
		OnStepFinish: func(ctx context.Context, result contractx.StepResult) {
			l.add("end:" + result.StepID)
		},
	}
}

func echoTool(name contractx.ToolName) fakeTool {
	return fakeTool{name: name, fn: func(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
		return input, nil
	}}
}

func failingTool(name contractx.ToolName, err error) fakeTool {
	return fakeTool{name: name, fn: func(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
		return "", err
	}}
}

func noRetryPolicies() Policies {
	return Policies{Default: Policy{Timeout: time.Second}}
}

func mustNew(t *testing.T, tools ToolResolver, opts ...Option) *Executor {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	ex, err := New(tools, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return ex
}

func step(id string, tool contractx.ToolName, input string, deps ...string) contractx.Step {
	if deps == nil {
		deps = []string{}
	}
	return contractx.Step{ID: id, Tool: tool, Input: input, DependsOn: deps}
}

func TestExecuteRespectsDependencies(t *testing.T) {
	t.Parallel()

	var log eventLog
	ex := mustNew(t, fakeTools{contractx.ToolCalculator: echoTool(contractx.ToolCalculator)},
		WithPolicies(noRetryPolicies()),
		WithHooks(log.hooks()),
	)

	p := contractx.Plan{Steps: []contractx.Step{
		step("d", contractx.ToolCalculator, "{{b}}+{{c}}", "b", "c"),
		step("a", contractx.ToolCalculator, "1"),
		step("b", contractx.ToolCalculator, "{{a}}2", "a"),
		step("c", contractx.ToolCalculator, "3"),
	}}

	results, err := ex.Execute(context.Background(), p)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	for _, s := range p.Steps {
		if results[s.ID].Status != contractx.StepSucceeded {
			t.Fatalf("step %s status = %s", s.ID, results[s.ID].Status)
		}
		start := log.index("start:" + s.ID)
		for _, dep := range s.DependsOn {
			if end := log.index("end:" + dep); end < 0 || end > start {
				t.Fatalf("step %s started at %d before dependency %s finished at %d", s.ID, start, dep, end)
			}
		}
	}

	if got := results["d"].Value; got != "12+3" {
		t.Fatalf("d value = %q, want %q", got, "12+3")
	}
	if results["a"].Wave != 0 || results["b"].Wave != 1 || results["d"].Wave != 2 {
		t.Fatalf("unexpected waves: a=%d b=%d d=%d", results["a"].Wave, results["b"].Wave, results["d"].Wave)
	}
}

func TestExecutePassesDependencyContext(t *testing.T) {
	t.Parallel()

	var gotDeps contractx.ToolContext
	tools := fakeTools{
		contractx.ToolCalculator: echoTool(contractx.ToolCalculator),
		contractx.ToolGSM8K: fakeTool{name: contractx.ToolGSM8K, fn: func(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
			gotDeps = deps
			return "ok", nil
		}},
	}
	ex := mustNew(t, tools, WithPolicies(noRetryPolicies()))

	p := contractx.Plan{Steps: []contractx.Step{
		step("a", contractx.ToolCalculator, "8"),
		step("b", contractx.ToolGSM8K, "use the previous answer", "a"),
	}}
	if _, err := ex.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotDeps["a"] != "8" || len(gotDeps) != 1 {
		t.Fatalf("deps = %#v, want map[a:8]", gotDeps)
	}
}

func TestExecuteIsolatesFailures(t *testing.T) {
	t.Parallel()

	var log eventLog
	tools := fakeTools{
		contractx.ToolCalculator: echoTool(contractx.ToolCalculator),
		contractx.ToolWebSearch:  failingTool(contractx.ToolWebSearch, errors.New("upstream unavailable")),
	}
	ex := mustNew(t, tools, WithPolicies(noRetryPolicies()), WithHooks(log.hooks()))

	p := contractx.Plan{Steps: []contractx.Step{
		step("broken", contractx.ToolWebSearch, "who"),
		step("child", contractx.ToolCalculator, "{{broken}}", "broken"),
		step("grandchild", contractx.ToolCalculator, "{{child}}", "child"),
		step("independent", contractx.ToolCalculator, "2+2"),
	}}

	results, err := ex.Execute(context.Background(), p)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if got := results["broken"]; got.Status != contractx.StepFailed || got.Error == nil || got.Error.Kind != contractx.ErrorKindTool {
		t.Fatalf("broken = %#v, want failed tool_error", got)
	}
	for _, id := range []string{"child", "grandchild"} {
		got := results[id]
		if got.Status != contractx.StepSkipped {
			t.Fatalf("%s status = %s, want skipped", id, got.Status)
		}
		if log.index("start:"+id) >= 0 {
			t.Fatalf("%s must never start", id)
		}
	}
	if got := results["independent"]; got.Status != contractx.StepSucceeded || got.Value != "2+2" {
		t.Fatalf("independent = %#v, want succeeded", got)
	}
}

func TestExecuteRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tools := fakeTools{contractx.ToolWebSearch: fakeTool{name: contractx.ToolWebSearch, fn: func(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("connection reset")
		}
		return "Elon Musk", nil
	}}}
	var retries atomic.Int32
	ex := mustNew(t, tools,
		WithPolicies(Policies{Default: Policy{Timeout: time.Second, MaxRetries: 2, RetryDelay: time.Millisecond}}),
		WithHooks(Hooks{OnRetry: func(ctx context.Context, step contractx.Step, attempt int, err error) {
			retries.Add(1)
		}}),
	)

	results, err := ex.Execute(context.Background(), contractx.Plan{Steps: []contractx.Step{
		step("ceo", contractx.ToolWebSearch, "CEO of Tesla"),
	}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	got := results["ceo"]
	if got.Status != contractx.StepSucceeded || got.Value != "Elon Musk" {
		t.Fatalf("ceo = %#v, want succeeded", got)
	}
	if got.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", got.Attempts)
	}
	if retries.Load() != 2 {
		t.Fatalf("retries = %d, want 2", retries.Load())
	}
}

func TestExecuteExhaustedRetriesFailStep(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tools := fakeTools{contractx.ToolWebSearch: fakeTool{name: contractx.ToolWebSearch, fn: func(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
		calls.Add(1)
		return "", errors.New("503")
	}}}
	ex := mustNew(t, tools, WithPolicies(Policies{Default: Policy{Timeout: time.Second, MaxRetries: 2}}))

	results, err := ex.Execute(context.Background(), contractx.Plan{Steps: []contractx.Step{
		step("s", contractx.ToolWebSearch, "q"),
	}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	got := results["s"]
	if got.Status != contractx.StepFailed || got.Error.Kind != contractx.ErrorKindTool {
		t.Fatalf("s = %#v, want failed tool_error", got)
	}
}

func TestExecuteDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tools := fakeTools{contractx.ToolCalculator: fakeTool{name: contractx.ToolCalculator, fn: func(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
		calls.Add(1)
		return "", contractx.Permanent(errors.New("not an arithmetic expression"))
	}}}
	ex := mustNew(t, tools, WithPolicies(Policies{Default: Policy{Timeout: time.Second, MaxRetries: 3}}))

	results, err := ex.Execute(context.Background(), contractx.Plan{Steps: []contractx.Step{
		step("s", contractx.ToolCalculator, "hello"),
	}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if results["s"].Status != contractx.StepFailed {
		t.Fatalf("status = %s, want failed", results["s"].Status)
	}
}

func TestExecuteToolTimeout(t *testing.T) {
	t.Parallel()

	tools := fakeTools{contractx.ToolRAG: fakeTool{name: contractx.ToolRAG, fn: func(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}}
	ex := mustNew(t, tools, WithPolicies(Policies{Default: Policy{Timeout: 20 * time.Millisecond, MaxRetries: 1}}))

	results, err := ex.Execute(context.Background(), contractx.Plan{Steps: []contractx.Step{
		step("slow", contractx.ToolRAG, "q"),
	}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	got := results["slow"]
	if got.Status != contractx.StepFailed || got.Error.Kind != contractx.ErrorKindToolTimeout {
		t.Fatalf("slow = %#v, want failed tool_timeout", got)
	}
	if got.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", got.Attempts)
	}
}

func TestExecutePlanDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	tools := fakeTools{
		contractx.ToolCalculator: echoTool(contractx.ToolCalculator),
		// ignores cancellation; the executor must abandon it
		contractx.ToolWebSearch: fakeTool{name: contractx.ToolWebSearch, fn: func(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
			<-release
			return "late", nil
		}},
	}
	ex := mustNew(t, tools,
		WithPolicies(Policies{Default: Policy{Timeout: time.Minute}}),
		WithDeadline(50*time.Millisecond),
	)

	started := time.Now()
	results, err := ex.Execute(context.Background(), contractx.Plan{Steps: []contractx.Step{
		step("fast", contractx.ToolCalculator, "1"),
		step("hung", contractx.ToolWebSearch, "q"),
		step("after", contractx.ToolCalculator, "{{hung}}", "hung"),
	}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("Execute() took %s, deadline not enforced", elapsed)
	}

	if results["fast"].Status != contractx.StepSucceeded {
		t.Fatalf("fast status = %s", results["fast"].Status)
	}
	if got := results["hung"]; got.Status != contractx.StepFailed || got.Error.Kind != contractx.ErrorKindTimeout {
		t.Fatalf("hung = %#v, want failed timeout", got)
	}
	if got := results["after"]; got.Status != contractx.StepSkipped {
		t.Fatalf("after = %#v, want skipped", got)
	}
}

func TestExecuteRunsReadyStepsConcurrently(t *testing.T) {
	t.Parallel()

	var running atomic.Int32
	bothRunning := make(chan struct{})
	var once sync.Once
	tool := fakeTool{name: contractx.ToolWebSearch, fn: func(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
		if running.Add(1) == 2 {
			once.Do(func() { close(bothRunning) })
		}
		select {
		case <-bothRunning:
			return input, nil
		case <-ctx.Done():
			return "", fmt.Errorf("peer never started: %w", ctx.Err())
		}
	}}
	ex := mustNew(t, fakeTools{contractx.ToolWebSearch: tool},
		WithPolicies(Policies{Default: Policy{Timeout: 2 * time.Second}}),
	)

	results, err := ex.Execute(context.Background(), contractx.Plan{Steps: []contractx.Step{
		step("left", contractx.ToolWebSearch, "l"),
		step("right", contractx.ToolWebSearch, "r"),
	}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, id := range []string{"left", "right"} {
		if results[id].Status != contractx.StepSucceeded {
			t.Fatalf("%s = %#v, want succeeded", id, results[id])
		}
	}
}

func TestExecuteBoundedParallelismFanOutFanIn(t *testing.T) {
	t.Parallel()

	for _, limit := range []int{1, 2} {
		limit := limit
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			t.Parallel()

			var inFlight, peak atomic.Int32
			tool := fakeTool{name: contractx.ToolCalculator, fn: func(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				return input, nil
			}}

			var log eventLog
			ex := mustNew(t, fakeTools{contractx.ToolCalculator: tool},
				WithPolicies(noRetryPolicies()),
				WithHooks(log.hooks()),
				WithMaxParallel(limit),
			)

			steps := []contractx.Step{step("root", contractx.ToolCalculator, "1")}
			children := make([]string, 0, 6)
			for i := 0; i < 6; i++ {
				id := fmt.Sprintf("child-%d", i)
				children = append(children, id)
				steps = append(steps, step(id, contractx.ToolCalculator, "{{root}}", "root"))
			}
			steps = append(steps, step("join", contractx.ToolCalculator, "done", children...))
			p := contractx.Plan{Steps: steps}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			results, err := ex.Execute(ctx, p)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}

			for _, s := range p.Steps {
				r := results[s.ID]
				if r.Status != contractx.StepSucceeded {
					t.Fatalf("step %s = %#v, want succeeded", s.ID, r)
				}
				start := log.index("start:" + s.ID)
				for _, dep := range s.DependsOn {
					if end := log.index("end:" + dep); end < 0 || end > start {
						t.Fatalf("step %s started at %d before dependency %s finished at %d", s.ID, start, dep, end)
					}
					if r.StartedAt.Before(results[dep].FinishedAt) {
						t.Fatalf("step %s StartedAt %v before %s FinishedAt %v", s.ID, r.StartedAt, dep, results[dep].FinishedAt)
					}
				}
			}
			if got := peak.Load(); got > int32(limit) {
				t.Fatalf("peak concurrency = %d, want at most %d", got, limit)
			}
		})
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	t.Parallel()

	ex := mustNew(t, fakeTools{}, WithPolicies(noRetryPolicies()))
	results, err := ex.Execute(context.Background(), contractx.Plan{Steps: []contractx.Step{
		step("s", contractx.ToolRAG, "q"),
	}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	got := results["s"]
	if got.Status != contractx.StepFailed || !strings.Contains(got.Error.Message, "unknown tool") {
		t.Fatalf("s = %#v, want failed unknown tool", got)
	}
}

func TestExecuteRejectsCyclicPlan(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tools := fakeTools{contractx.ToolCalculator: fakeTool{name: contractx.ToolCalculator, fn: func(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
		calls.Add(1)
		return "", nil
	}}}
	ex := mustNew(t, tools)

	_, err := ex.Execute(context.Background(), contractx.Plan{Steps: []contractx.Step{
		step("a", contractx.ToolCalculator, "1", "b"),
		step("b", contractx.ToolCalculator, "1", "a"),
	}})
	if !errors.Is(err, contractx.ErrCycleDetected) {
		t.Fatalf("Execute() error = %v, want ErrCycleDetected", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("tool invoked %d times on a cyclic plan", calls.Load())
	}
}

func TestExecuteRecordsSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ex := mustNew(t, fakeTools{contractx.ToolCalculator: echoTool(contractx.ToolCalculator)},
		WithPolicies(noRetryPolicies()),
		WithTracer(provider.Tracer("test")),
	)
	if _, err := ex.Execute(context.Background(), contractx.Plan{Steps: []contractx.Step{
		step("a", contractx.ToolCalculator, "1"),
		step("b", contractx.ToolCalculator, "2", "a"),
	}}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	names := map[string]int{}
	for _, s := range recorder.Ended() {
		names[s.Name()]++
	}
	if names["executor.plan"] != 1 || names["executor.step"] != 2 {
		t.Fatalf("unexpected spans: %v", names)
	}
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	t.Parallel()

	task := &stepTask{result: contractx.StepResult{Status: contractx.StepPending}}
	if !task.transition(contractx.StepRunning) {
		t.Fatal("pending -> running must be allowed")
	}
	if task.transition(contractx.StepPending) {
		t.Fatal("running -> pending must be rejected")
	}
	if !task.transition(contractx.StepSucceeded) {
		t.Fatal("running -> succeeded must be allowed")
	}
	if task.transition(contractx.StepFailed) {
		t.Fatal("terminal status must not be rewritten")
	}
}
