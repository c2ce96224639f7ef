package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/query-router/agent/contract"
)

func PlanQuery(
	ctx context.Context,
	in *GraphState,
	planner contractx.Planner,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	plan, err := planner.Plan(ctx, in.Query)
	if err != nil {
		return nil, err
	}

	in.Plan = plan
	return in, nil
}
