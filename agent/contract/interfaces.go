package contract

import "context"

// Tool is the uniform capability contract every routed tool implements.
type Tool interface {
	Name() ToolName
	Invoke(ctx context.Context, input string, deps ToolContext) (string, error)
}

type Planner interface {
	Plan(ctx context.Context, q Query) (Plan, error)
}

type Executor interface {
	Execute(ctx context.Context, plan Plan) (map[string]StepResult, error)
}

type TraceStore interface {
	Save(ctx context.Context, rec ExecutionRecord) error
	FindByQueryID(ctx context.Context, queryID string) (ExecutionRecord, error)
}
