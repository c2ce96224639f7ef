package orchestratornode

import (
	"fmt"

	aggregatex "github.com/tanpawarit/query-router/agent/aggregate"
	contractx "github.com/tanpawarit/query-router/agent/contract"
)

func AggregateAnswer(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	in.Answer = aggregatex.Aggregate(in.Plan, in.Results)
	return in, nil
}
