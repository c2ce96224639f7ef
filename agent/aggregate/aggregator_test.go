package aggregate

import (
	"reflect"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/query-router/agent/contract"
)

func twoStepPlan(template, note string) contractx.Plan {
	return contractx.Plan{
		Steps: []contractx.Step{
			{ID: "step-1", Tool: contractx.ToolCalculator, Input: "2+2", DependsOn: []string{}},
			{ID: "step-2", Tool: contractx.ToolWebSearch, Input: "CEO of Tesla", DependsOn: []string{}},
		},
		FinalTemplate:    template,
		FalsePremiseNote: note,
	}
}

func TestAggregateSubstitutesInTemplateOrder(t *testing.T) {
	t.Parallel()

	results := map[string]contractx.StepResult{
		"step-1": {StepID: "step-1", Status: contractx.StepSucceeded, Value: "4"},
		"step-2": {StepID: "step-2", Status: contractx.StepSucceeded, Value: "Elon Musk"},
	}
	got := Aggregate(twoStepPlan("2+2 = {{step-1}}; CEO: {{ step-2 }}", ""), results)
	if got.Text != "2+2 = 4; CEO: Elon Musk" {
		t.Fatalf("Text = %q", got.Text)
	}
	if len(got.Outcomes) != 2 || got.Outcomes[0].StepID != "step-1" {
		t.Fatalf("unexpected outcomes: %#v", got.Outcomes)
	}
}

func TestAggregateMarksUnavailableSteps(t *testing.T) {
	t.Parallel()

	results := map[string]contractx.StepResult{
		"step-1": {StepID: "step-1", Status: contractx.StepSucceeded, Value: "4"},
		"step-2": {StepID: "step-2", Status: contractx.StepFailed, Error: &contractx.StepError{Kind: contractx.ErrorKindTool, Message: "boom"}},
	}
	got := Aggregate(twoStepPlan("{{step-1}} | {{step-2}}", ""), results)
	if got.Text != "4 | "+Unavailable {
		t.Fatalf("Text = %q", got.Text)
	}
	if got.Outcomes[1].Status != contractx.StepFailed || got.Outcomes[1].Error != "boom" {
		t.Fatalf("unexpected outcome: %#v", got.Outcomes[1])
	}
}

func TestAggregateEmptyTemplateJoinsValues(t *testing.T) {
	t.Parallel()

	results := map[string]contractx.StepResult{
		"step-1": {Status: contractx.StepSucceeded, Value: " 4 "},
		"step-2": {Status: contractx.StepSkipped},
	}
	got := Aggregate(twoStepPlan("", ""), results)
	if got.Text != "4 | "+Unavailable {
		t.Fatalf("Text = %q", got.Text)
	}
}

func TestAggregateAppendsFalsePremiseNote(t *testing.T) {
	t.Parallel()

	results := map[string]contractx.StepResult{
		"step-1": {Status: contractx.StepSucceeded, Value: "4"},
		"step-2": {Status: contractx.StepSucceeded, Value: "Elon Musk"},
	}
	got := Aggregate(twoStepPlan("{{step-1}}", "Tesla was founded in 2003, not 1990."), results)
	if !strings.HasSuffix(got.Text, "\n\nNote: Tesla was founded in 2003, not 1990.") {
		t.Fatalf("Text = %q", got.Text)
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	t.Parallel()

	results := map[string]contractx.StepResult{
		"step-1": {Status: contractx.StepSucceeded, Value: "{{step-2}}"},
		"step-2": {Status: contractx.StepFailed},
	}
	p := twoStepPlan("{{step-1}} / {{step-2}}", "note")
	first := Aggregate(p, results)
	second := Aggregate(p, results)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Aggregate() not idempotent:\n%#v\n%#v", first, second)
	}
	if !strings.HasPrefix(first.Text, "{{step-2}} / "+Unavailable) {
		t.Fatalf("values must not be rescanned: %q", first.Text)
	}
}
