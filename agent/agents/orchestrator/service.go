package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/query-router/agent/contract"
	nodex "github.com/tanpawarit/query-router/agent/nodes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrInvalidQuery = nodex.ErrInvalidQuery

// Result is everything produced for one query.
type Result = nodex.GraphOutput

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) {
		if newID != nil {
			c.newID = newID
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// Controller runs query -> plan -> execute -> aggregate -> record.
type Controller struct {
	planner  contractx.Planner
	executor contractx.Executor
	recorder nodex.Recorder

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
	tracer trace.Tracer
}

// New wires the pipeline. recorder may be nil to skip tracing.
func New(
	planner contractx.Planner,
	executor contractx.Executor,
	recorder nodex.Recorder,
	opts ...Option,
) (*Controller, error) {
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}

	c := &Controller{
		planner:  planner,
		executor: executor,
		recorder: recorder,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   log.Logger,
		tracer:   otel.Tracer("query-router/orchestrator"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	graphRunner, err := c.compileAnswerGraph(context.Background())
	if err != nil {
		return nil, err
	}
	c.graphRunner = graphRunner

	return c, nil
}

// Answer handles a query with a generated id.
func (c *Controller) Answer(ctx context.Context, text string) (Result, error) {
	return c.AnswerWithID(ctx, "", text)
}

// AnswerWithID handles a query under a caller-chosen id. Re-using an id
// keeps the first stored record.
func (c *Controller) AnswerWithID(ctx context.Context, queryID, text string) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "orchestrator.answer")
	defer span.End()

	start := c.now()
	out, err := c.graphRunner.Invoke(ctx, nodex.GraphInput{
		QueryID: queryID,
		Text:    text,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn().Err(err).Str("query_id", queryID).Msg("query failed")
		return Result{}, err
	}

	unsuccessful := 0
	for _, res := range out.Results {
		if !res.Available() {
			unsuccessful++
		}
	}
	span.SetAttributes(
		attribute.String("query.id", out.Query.ID),
		attribute.Int("plan.steps", len(out.Plan.Steps)),
		attribute.Int("plan.unsuccessful_steps", unsuccessful),
	)
	c.logger.Info().
		Str("query_id", out.Query.ID).
		Int("steps", len(out.Plan.Steps)).
		Int("unsuccessful", unsuccessful).
		Bool("recorded", out.Recorded).
		Dur("elapsed", c.now().Sub(start)).
		Msg("query answered")
	return out, nil
}
