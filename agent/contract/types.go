package contract

import "time"

type ToolName string

const (
	ToolCalculator ToolName = "calculator"
	ToolGSM8K      ToolName = "gsm8k"
	ToolWebSearch  ToolName = "web_search"
	ToolRAG        ToolName = "rag"
)

// KnownTools lists every tool a plan step may route to.
var KnownTools = []ToolName{ToolCalculator, ToolGSM8K, ToolWebSearch, ToolRAG}

func (t ToolName) Valid() bool {
	for _, known := range KnownTools {
		if t == known {
			return true
		}
	}
	return false
}

// Query is one user request. It is never mutated after creation.
type Query struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Step struct {
	ID        string   `json:"id"`
	Tool      ToolName `json:"tool"`
	Input     string   `json:"input"`
	DependsOn []string `json:"depends_on"`
}

// Plan is a validated dependency graph of steps. Steps keep the order the
// planner emitted them in; edges are expressed as step ids.
type Plan struct {
	Steps            []Step `json:"steps"`
	FinalTemplate    string `json:"final_template"`
	FalsePremiseNote string `json:"false_premise_note,omitempty"`
}

// StepIndex maps step ids to their position in Steps.
func (p Plan) StepIndex() map[string]int {
	idx := make(map[string]int, len(p.Steps))
	for i, s := range p.Steps {
		idx[s.ID] = i
	}
	return idx
}

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

func (s StepStatus) IsTerminal() bool {
	return s == StepSucceeded || s == StepFailed || s == StepSkipped
}

func (s StepStatus) rank() int {
	switch s {
	case StepPending:
		return 0
	case StepRunning:
		return 1
	case StepSucceeded, StepFailed, StepSkipped:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether a step may move from s to next.
// Terminal statuses are final.
func (s StepStatus) CanTransition(next StepStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

type ErrorKind string

const (
	ErrorKindTool              ErrorKind = "tool_error"
	ErrorKindToolTimeout       ErrorKind = "tool_timeout"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindSkippedDependency ErrorKind = "skipped_dependency"
)

type StepError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

type StepResult struct {
	StepID     string     `json:"step_id"`
	Tool       ToolName   `json:"tool"`
	Status     StepStatus `json:"status"`
	Value      string     `json:"value,omitempty"`
	Error      *StepError `json:"error,omitempty"`
	Attempts   int        `json:"attempts,omitempty"`
	Wave       int        `json:"wave"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// Available reports whether the step produced a usable value.
func (r StepResult) Available() bool {
	return r.Status == StepSucceeded
}

type StepOutcome struct {
	StepID string     `json:"step_id"`
	Tool   ToolName   `json:"tool"`
	Status StepStatus `json:"status"`
	Value  string     `json:"value,omitempty"`
	Error  string     `json:"error,omitempty"`
}

type FinalAnswer struct {
	Text     string        `json:"text"`
	Outcomes []StepOutcome `json:"outcomes"`
}

// ExecutionRecord is the persisted trace of one query. Written once.
type ExecutionRecord struct {
	Query       Query                 `json:"query"`
	Plan        Plan                  `json:"plan"`
	StepResults map[string]StepResult `json:"step_results"`
	FinalAnswer string                `json:"final_answer"`
	CreatedAt   time.Time             `json:"created_at"`
}

// ToolContext carries resolved outputs of completed dependencies keyed by step id.
type ToolContext map[string]string

func (c ToolContext) Clone() ToolContext {
	out := make(ToolContext, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
