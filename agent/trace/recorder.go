package trace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/query-router/agent/contract"
)

// Recorder turns a finished run into an ExecutionRecord and persists it.
type Recorder struct {
	store  contractx.TraceStore
	now    func() time.Time
	logger zerolog.Logger
}

type RecorderOption func(*Recorder)

func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

func NewRecorder(store contractx.TraceStore, opts ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("trace store is required")
	}
	r := &Recorder{store: store, now: time.Now, logger: log.Logger}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Record builds the record and saves it keyed by query id. Saving the same
// query twice keeps the first record, and Record returns whatever the store
// holds for the id.
func (r *Recorder) Record(
	ctx context.Context,
	q contractx.Query,
	p contractx.Plan,
	results map[string]contractx.StepResult,
	finalAnswer string,
) (contractx.ExecutionRecord, error) {
	if strings.TrimSpace(q.ID) == "" {
		return contractx.ExecutionRecord{}, fmt.Errorf("%w: query id is required", contractx.ErrValidation)
	}

	copied := make(map[string]contractx.StepResult, len(results))
	for id, res := range results {
		if res.Error != nil {
			e := *res.Error
			res.Error = &e
		}
		copied[id] = res
	}

	rec := contractx.ExecutionRecord{
		Query:       q,
		Plan:        clonePlan(p),
		StepResults: copied,
		FinalAnswer: finalAnswer,
		CreatedAt:   r.now().UTC(),
	}

	if err := r.store.Save(ctx, rec); err != nil {
		return contractx.ExecutionRecord{}, fmt.Errorf("save execution record: %w", err)
	}

	stored, err := r.store.FindByQueryID(ctx, q.ID)
	if err != nil {
		r.logger.Warn().Err(err).Str("query_id", q.ID).Msg("reload execution record")
		return rec, nil
	}

	r.logger.Debug().
		Str("query_id", q.ID).
		Int("steps", len(p.Steps)).
		Msg("execution record saved")
	return stored, nil
}

func clonePlan(p contractx.Plan) contractx.Plan {
	steps := make([]contractx.Step, len(p.Steps))
	for i, s := range p.Steps {
		deps := make([]string, len(s.DependsOn))
		copy(deps, s.DependsOn)
		s.DependsOn = deps
		steps[i] = s
	}
	p.Steps = steps
	return p
}
