package cmd

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	orchestratorx "github.com/tanpawarit/query-router/agent/agents/orchestrator"
	plannerx "github.com/tanpawarit/query-router/agent/agents/planner"
	contractx "github.com/tanpawarit/query-router/agent/contract"
	executorx "github.com/tanpawarit/query-router/agent/executor"
	llmx "github.com/tanpawarit/query-router/agent/llm"
	promptx "github.com/tanpawarit/query-router/agent/prompt"
	ragx "github.com/tanpawarit/query-router/agent/rag"
	toolx "github.com/tanpawarit/query-router/agent/tool"
	tracex "github.com/tanpawarit/query-router/agent/trace"
	metricsx "github.com/tanpawarit/query-router/pkg/metrics"
	openrouterx "github.com/tanpawarit/query-router/pkg/openrouter"
	qstashx "github.com/tanpawarit/query-router/pkg/qstash"
	telemetryx "github.com/tanpawarit/query-router/pkg/telemetry"
)

type AppOptions struct {
	// Offline plans with the rule-based router and never calls a model.
	Offline bool
}

// App is the fully wired query pipeline shared by every command.
type App struct {
	Controller *orchestratorx.Controller
	Store      contractx.TraceStore
	Metrics    *metricsx.Metrics

	logger  zerolog.Logger
	closers []func(context.Context) error
}

func NewApp(ctx context.Context, cfg AppConfig, opts AppOptions) (*App, error) {
	a := &App{
		Metrics: metricsx.New(),
		logger:  log.Logger,
	}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	tp, err := telemetryx.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(ctx context.Context) error { return telemetryx.Shutdown(ctx, tp) })

	store, err := openTraceStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if c, isCloser := store.(io.Closer); isCloser {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	useModel := !opts.Offline && cfg.LLM.Enabled()
	if !opts.Offline && !useModel {
		a.logger.Warn().Msg("LLM_API_KEY is not set, running with the rule-based router only")
	}

	prompts := promptx.LoadPromptSet()
	registry, err := a.buildTools(ctx, cfg, prompts, useModel)
	if err != nil {
		return nil, err
	}

	planner, err := a.buildPlanner(ctx, cfg, prompts, registry, useModel)
	if err != nil {
		return nil, err
	}

	exec, err := executorx.New(registry, append(cfg.Executor.Options(), executorx.WithHooks(a.stepHooks()))...)
	if err != nil {
		return nil, err
	}

	recorder, err := tracex.NewRecorder(store)
	if err != nil {
		return nil, err
	}

	controller, err := orchestratorx.New(planner, exec, recorder)
	if err != nil {
		return nil, err
	}
	a.Controller = controller

	ok = true
	return a, nil
}

func openTraceStore(ctx context.Context, cfg AppConfig) (contractx.TraceStore, error) {
	store, err := tracex.Open(ctx, cfg.Trace)
	if err != nil {
		return nil, err
	}
	if !cfg.QStash.Enabled() {
		return store, nil
	}
	client, err := qstashx.NewClient(cfg.QStash)
	if err != nil {
		if c, isCloser := store.(io.Closer); isCloser {
			_ = c.Close()
		}
		return nil, err
	}
	return closingStore{
		PublishingStore: tracex.NewPublishingStore(store, client, cfg.QStash.Destination),
		inner:           store,
	}, nil
}

// closingStore keeps the wrapped store closable behind the publisher.
type closingStore struct {
	*tracex.PublishingStore
	inner contractx.TraceStore
}

func (s closingStore) Recent(ctx context.Context, limit int) ([]contractx.ExecutionRecord, error) {
	if l, ok := s.inner.(recentLister); ok {
		return l.Recent(ctx, limit)
	}
	return nil, errRecentUnsupported
}

func (s closingStore) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (a *App) buildTools(ctx context.Context, cfg AppConfig, prompts promptx.PromptSet, useModel bool) (*toolx.Registry, error) {
	var (
		webModel  model.ToolCallingChatModel
		ragModel  model.ToolCallingChatModel
		completer toolx.Completer
	)
	if useModel {
		var err error
		webCfg := cfg.LLM.OpenRouterFor(llmx.RoleWeb)
		if webModel, err = webCfg.New(ctx); err != nil {
			return nil, err
		}
		ragCfg := cfg.LLM.OpenRouterFor(llmx.RoleRAG)
		if ragModel, err = ragCfg.New(ctx); err != nil {
			return nil, err
		}
		c, err := openrouterx.NewCompleter(cfg.LLM.OpenRouterFor(llmx.RoleGSM8K))
		if err != nil {
			return nil, err
		}
		completer = c
	}

	var searcher toolx.Searcher
	if s, err := toolx.NewSearcher(cfg.Web); err != nil {
		a.logger.Warn().Err(err).Msg("web search disabled")
	} else {
		searcher = s
	}
	web := toolx.NewWebSearch(searcher, chatModel(webModel), prompts, cfg.Web.MaxResults)

	var retriever toolx.Retriever
	if idx, err := ragx.OpenIndex(cfg.RAG.IndexDir); err != nil {
		if !errors.Is(err, ragx.ErrIndexMissing) {
			return nil, err
		}
		a.logger.Warn().Str("dir", cfg.RAG.IndexDir).Msg("rag index missing, rag questions fall back to web search")
	} else {
		retriever = idx
		a.closers = append(a.closers, func(context.Context) error { return idx.Close() })
	}
	rag := toolx.NewRAG(retriever, chatModel(ragModel), prompts, cfg.RAG.TopK).WithFallback(web)

	return toolx.NewRegistry(
		toolx.NewCalculator(),
		toolx.NewGSM8K(completer, prompts),
		web,
		rag,
	)
}

// chatModel keeps an unset model a nil interface.
func chatModel(m model.ToolCallingChatModel) model.BaseChatModel {
	if m == nil {
		return nil
	}
	return m
}

func (a *App) buildPlanner(
	ctx context.Context,
	cfg AppConfig,
	prompts promptx.PromptSet,
	registry *toolx.Registry,
	useModel bool,
) (contractx.Planner, error) {
	if !useModel {
		return plannerx.Router{}, nil
	}

	plannerCfg := cfg.LLM.OpenRouterFor(llmx.RolePlanner)
	m, err := plannerCfg.New(ctx)
	if err != nil {
		return nil, err
	}
	system := promptx.Render(prompts.Planner, map[string]string{"tools": registry.Describe()})
	primary, err := plannerx.New(ctx, m, system,
		plannerx.WithMaxRetries(cfg.Planner.MaxRetries),
		plannerx.WithOnAttempt(func(_ context.Context, _ int, err error) {
			a.Metrics.ObservePlanAttempt(err == nil)
		}),
	)
	if err != nil {
		return nil, err
	}
	if !cfg.Planner.Fallback {
		return primary, nil
	}
	return plannerx.Fallback{Primary: primary, Secondary: plannerx.Router{}, Logger: a.logger}, nil
}

func (a *App) stepHooks() executorx.Hooks {
	return executorx.Hooks{
		OnStepFinish: func(_ context.Context, res contractx.StepResult) {
			var elapsed time.Duration
			if !res.StartedAt.IsZero() && !res.FinishedAt.IsZero() {
				elapsed = res.FinishedAt.Sub(res.StartedAt)
			}
			a.Metrics.ObserveStep(string(res.Tool), string(res.Status), elapsed)
		},
		OnRetry: func(_ context.Context, step contractx.Step, _ int, _ error) {
			a.Metrics.ObserveRetry(string(step.Tool))
		},
	}
}

// AnswerWithID runs one query and records its outcome in the metrics.
func (a *App) AnswerWithID(ctx context.Context, queryID, text string) (orchestratorx.Result, error) {
	start := time.Now()
	res, err := a.Controller.AnswerWithID(ctx, queryID, text)
	outcome := "answered"
	switch {
	case errors.Is(err, contractx.ErrPlanningFailure):
		outcome = "planning_failure"
	case err != nil:
		outcome = "error"
	}
	a.Metrics.ObserveQuery(outcome, time.Since(start))
	return res, err
}

// Close releases stores and flushes telemetry, newest first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
