package eval

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Prediction is what the system under test produced for one question.
type Prediction struct {
	QueryID string
	Text    string
}

type Answerer interface {
	Answer(ctx context.Context, question string) (Prediction, error)
}

// AnswerFunc adapts a function to Answerer.
type AnswerFunc func(ctx context.Context, question string) (Prediction, error)

func (f AnswerFunc) Answer(ctx context.Context, question string) (Prediction, error) {
	return f(ctx, question)
}

type Outcome struct {
	Index     int           `json:"index"`
	Question  string        `json:"question"`
	Expected  string        `json:"expected,omitempty"`
	QueryID   string        `json:"query_id,omitempty"`
	Predicted string        `json:"predicted"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

type Report struct {
	Kind     Kind      `json:"kind"`
	Total    int       `json:"total"`
	Correct  int       `json:"correct"`
	Outcomes []Outcome `json:"outcomes"`
}

func (r Report) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Total)
}

type Option func(*Runner)

// WithConcurrency bounds how many questions are in flight. Default 1.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

type Runner struct {
	answerer    Answerer
	concurrency int
	logger      zerolog.Logger
	now         func() time.Time
}

func NewRunner(answerer Answerer, opts ...Option) (*Runner, error) {
	if answerer == nil {
		return nil, errors.New("answerer is required")
	}
	r := &Runner{
		answerer:    answerer,
		concurrency: 1,
		logger:      log.Logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Run answers every case and scores it. A failed answer counts as wrong and
// does not stop the run; only context cancellation does.
func (r *Runner) Run(ctx context.Context, kind Kind, cases []Case) (Report, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Report{}, err
	}

	outcomes := make([]Outcome, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, c := range cases {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.runCase(gctx, kind, i, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report := Report{Kind: kind, Total: len(outcomes), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.OK {
			report.Correct++
		}
	}
	r.logger.Info().
		Str("kind", string(kind)).
		Int("total", report.Total).
		Int("correct", report.Correct).
		Float64("accuracy", report.Accuracy()).
		Msg("benchmark finished")
	return report, nil
}

func (r *Runner) runCase(ctx context.Context, kind Kind, i int, c Case) Outcome {
	start := r.now()
	out := Outcome{Index: i, Question: c.Question, Expected: expected(kind, c)}

	pred, err := r.answerer.Answer(ctx, c.Question)
	out.Elapsed = r.now().Sub(start)
	out.QueryID = pred.QueryID
	if err != nil {
		out.Error = err.Error()
		r.logger.Warn().Int("index", i).Err(err).Msg("benchmark question failed")
		return out
	}

	out.Predicted = pred.Text
	out.OK = Score(kind, c, pred.Text)
	r.logger.Debug().
		Int("index", i).
		Str("query_id", pred.QueryID).
		Bool("ok", out.OK).
		Dur("elapsed", out.Elapsed).
		Msg("benchmark question scored")
	return out
}

func expected(kind Kind, c Case) string {
	if kind != KindMixed {
		return c.Gold
	}
	parts := append([]string{}, c.MustContain...)
	if len(c.AnyOf) > 0 {
		parts = append(parts, "("+strings.Join(c.AnyOf, " or ")+")")
	}
	return strings.Join(parts, ", ")
}
