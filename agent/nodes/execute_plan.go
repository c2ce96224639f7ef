package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/query-router/agent/contract"
)

func ExecutePlan(
	ctx context.Context,
	in *GraphState,
	executor contractx.Executor,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	results, err := executor.Execute(ctx, in.Plan)
	if err != nil {
		return nil, err
	}

	in.Results = results
	return in, nil
}
