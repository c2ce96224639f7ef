package contract

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")
	ErrCycleDetected   = errors.New("cycle detected")
	ErrPlanningFailure = errors.New("planning failed")
	ErrToolError       = errors.New("tool error")
	ErrToolTimeout     = errors.New("tool timeout")
	ErrTimeout         = errors.New("plan deadline exceeded")
	ErrUnknownTool     = errors.New("unknown tool")
	ErrRecordNotFound  = errors.New("execution record not found")
)

// Validation check names, in the order the validator runs them.
const (
	CheckStructure    = "structure"
	CheckUniqueIDs    = "unique_ids"
	CheckDependencies = "dependencies"
	CheckAcyclic      = "acyclic"
	CheckTemplate     = "template"
)

// ValidationError reports the first structural defect found in a plan.
type ValidationError struct {
	Check   string
	Message string
	StepIDs []string
}

func (e *ValidationError) Error() string {
	if len(e.StepIDs) == 0 {
		return fmt.Sprintf("%s: %s", e.Check, e.Message)
	}
	return fmt.Sprintf("%s: %s [%s]", e.Check, e.Message, strings.Join(e.StepIDs, ", "))
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	return target == ErrCycleDetected && e.Check == CheckAcyclic
}

// PlanningFailure is returned once every planning attempt has been rejected.
type PlanningFailure struct {
	Attempts int
	Last     error
}

func (e *PlanningFailure) Error() string {
	return fmt.Sprintf("%v after %d attempt(s): %v", ErrPlanningFailure, e.Attempts, e.Last)
}

func (e *PlanningFailure) Unwrap() []error {
	return []error{ErrPlanningFailure, e.Last}
}

// PermanentError marks a tool failure that retrying cannot fix, such as
// unparsable input.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
