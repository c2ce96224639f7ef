package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/query-router/agent/contract"
	planx "github.com/tanpawarit/query-router/agent/plan"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultMaxRetries = 2

type Config struct {
	MaxRetries int  `envconfig:"MAX_RETRIES" default:"2"`
	Fallback   bool `envconfig:"FALLBACK" default:"false"`
}

// AttemptFunc observes each planning attempt. err is nil on success.
type AttemptFunc func(ctx context.Context, attempt int, err error)

type Option func(*Planner)

func WithMaxRetries(n int) Option {
	return func(p *Planner) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

func WithOnAttempt(fn AttemptFunc) Option {
	return func(p *Planner) { p.onAttempt = fn }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Planner) { p.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Planner) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// Planner asks a chat model for a routing plan and validates the reply.
// A rejected reply is sent back to the model with the validation error as
// feedback, up to maxRetries times.
type Planner struct {
	runner     compose.Runnable[map[string]any, string]
	system     string
	maxRetries int
	onAttempt  AttemptFunc
	logger     zerolog.Logger
	tracer     trace.Tracer
}

var _ contractx.Planner = (*Planner)(nil)

func New(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string, opts ...Option) (*Planner, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: planner chat model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: planner prompt is empty", contractx.ErrPromptMissing)
	}
	runner, err := compilePlanningGraph(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("%w: compile planner graph: %v", contractx.ErrModelInvoke, err)
	}

	p := &Planner{
		runner:     runner,
		system:     systemPrompt,
		maxRetries: DefaultMaxRetries,
		logger:     log.Logger,
		tracer:     otel.Tracer("query-router/planner"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *Planner) Plan(ctx context.Context, q contractx.Query) (contractx.Plan, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return contractx.Plan{}, &contractx.ValidationError{Check: contractx.CheckStructure, Message: "query text is empty"}
	}

	ctx, span := p.tracer.Start(ctx, "planner.plan", trace.WithAttributes(attribute.String("query.id", q.ID)))
	defer span.End()

	attempts := p.maxRetries + 1
	history := make([]*schema.Message, 0, 2*p.maxRetries)
	var lastErr error
	made := 0

	for attempt := 1; attempt <= attempts; attempt++ {
		made = attempt
		raw, err := p.runner.Invoke(ctx, map[string]any{
			"system":  p.system,
			"input":   text,
			"history": history,
		})
		if err != nil {
			lastErr = fmt.Errorf("%w: planner invoke: %w", contractx.ErrModelInvoke, err)
			p.observe(ctx, attempt, lastErr)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		plan, err := planx.Validate([]byte(raw))
		p.observe(ctx, attempt, err)
		if err == nil {
			span.SetAttributes(attribute.Int("planner.attempts", attempt), attribute.Int("plan.steps", len(plan.Steps)))
			p.logger.Debug().
				Str("query_id", q.ID).
				Int("attempt", attempt).
				Int("steps", len(plan.Steps)).
				Msg("plan accepted")
			return plan, nil
		}

		lastErr = err
		var ve *contractx.ValidationError
		if !errors.As(err, &ve) {
			break
		}
		p.logger.Warn().
			Str("query_id", q.ID).
			Int("attempt", attempt).
			Str("check", ve.Check).
			Str("reason", ve.Message).
			Msg("plan rejected")

		history = append(history,
			schema.AssistantMessage(raw, nil),
			schema.UserMessage(feedback(ve)),
		)
	}

	failure := &contractx.PlanningFailure{Attempts: made, Last: lastErr}
	span.RecordError(failure)
	span.SetStatus(codes.Error, contractx.ErrPlanningFailure.Error())
	return contractx.Plan{}, failure
}

func (p *Planner) observe(ctx context.Context, attempt int, err error) {
	if p.onAttempt != nil {
		p.onAttempt(ctx, attempt, err)
	}
}

func feedback(ve *contractx.ValidationError) string {
	return fmt.Sprintf(
		"Your previous plan was rejected (%s check): %s. Return a corrected plan as a single JSON object that follows the output format exactly.",
		ve.Check, ve.Message,
	)
}

// Fallback tries Primary and, when it reports a planning failure, plans
// again with Secondary.
type Fallback struct {
	Primary   contractx.Planner
	Secondary contractx.Planner
	Logger    zerolog.Logger
}

var _ contractx.Planner = Fallback{}

func (f Fallback) Plan(ctx context.Context, q contractx.Query) (contractx.Plan, error) {
	plan, err := f.Primary.Plan(ctx, q)
	if err == nil || f.Secondary == nil || !errors.Is(err, contractx.ErrPlanningFailure) {
		return plan, err
	}
	f.Logger.Warn().Str("query_id", q.ID).Err(err).Msg("planner failed, using rule-based router")
	return f.Secondary.Plan(ctx, q)
}
