package orchestratornode

import (
	contractx "github.com/tanpawarit/query-router/agent/contract"
)

type GraphInput struct {
	QueryID string
	Text    string
}

type GraphOutput struct {
	Query    contractx.Query
	Plan     contractx.Plan
	Results  map[string]contractx.StepResult
	Answer   contractx.FinalAnswer
	Record   contractx.ExecutionRecord
	Recorded bool
}

type GraphState struct {
	Query contractx.Query

	Plan    contractx.Plan
	Results map[string]contractx.StepResult
	Answer  contractx.FinalAnswer

	Record   contractx.ExecutionRecord
	Recorded bool
}
