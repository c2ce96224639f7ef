package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/query-router/agent/contract"
)

// Recorder persists one execution.
type Recorder interface {
	Record(
		ctx context.Context,
		q contractx.Query,
		p contractx.Plan,
		results map[string]contractx.StepResult,
		finalAnswer string,
	) (contractx.ExecutionRecord, error)
}

// RecordTrace saves the execution record. A store failure is logged and
// does not discard the answer.
func RecordTrace(
	ctx context.Context,
	in *GraphState,
	recorder Recorder,
	logger zerolog.Logger,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if recorder == nil {
		return in, nil
	}

	rec, err := recorder.Record(ctx, in.Query, in.Plan, in.Results, in.Answer.Text)
	if err != nil {
		logger.Error().Err(err).Str("query_id", in.Query.ID).Msg("record execution trace")
		return in, nil
	}
	in.Record = rec
	in.Recorded = true
	return in, nil
}
