package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/query-router/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	return GraphOutput{
		Query:    in.Query,
		Plan:     in.Plan,
		Results:  in.Results,
		Answer:   in.Answer,
		Record:   in.Record,
		Recorded: in.Recorded,
	}, nil
}
