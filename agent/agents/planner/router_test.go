package planner

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/query-router/agent/contract"
	planx "github.com/tanpawarit/query-router/agent/plan"
)

func TestSplitQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "leading arithmetic peeled",
			query: "What is 12*7 and who is the CEO of OpenAI?",
			want:  []string{"12*7", "who is the CEO of OpenAI"},
		},
		{
			name:  "word problem kept whole",
			query: "A bus has 40 seats and 25 are occupied. 8 people get on and 5 get off. How many seats are empty?",
			want:  []string{"A bus has 40 seats and 25 are occupied. 8 people get on and 5 get off. How many seats are empty"},
		},
		{
			name:  "doc preface comma not split",
			query: "According to our docs, what is the refund policy?",
			want:  []string{"According to our docs what is the refund policy"},
		},
		{
			name:  "semicolons and connectors",
			query: "square root of 144; capital of France",
			want:  []string{"square root of 144", "capital of France"},
		},
		{
			name:  "expression then clause",
			query: "Compute 10!/(2^3), then tell me who won the 2018 World Cup",
			want:  []string{"10!/(2^3)", "tell me who won the 2018 World Cup"},
		},
		{
			name:  "multiple questions",
			query: "Who wrote Hamlet? Who painted the Mona Lisa?",
			want:  []string{"Who wrote Hamlet", "Who painted the Mona Lisa"},
		},
		{
			name:  "clause comma split keeps numbers",
			query: "population of Tokyo, capital of Peru",
			want:  []string{"population of Tokyo", "capital of Peru"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SplitQuery(tc.query); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("SplitQuery(%q) = %#v, want %#v", tc.query, got, tc.want)
			}
		})
	}
}

func TestRoutePart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		part  string
		tool  contractx.ToolName
		input string
	}{
		{part: "5!", tool: contractx.ToolCalculator, input: "5!"},
		{part: "what is the square root of 81", tool: contractx.ToolCalculator, input: "sqrt(81)"},
		{part: "10!/(2^3)", tool: contractx.ToolCalculator, input: "10!/(2^3)"},
		{part: "Sam had 10 apples and ate 3. How many are left", tool: contractx.ToolGSM8K, input: "Sam had 10 apples and ate 3. How many are left"},
		{part: "According to our docs what is the refund policy", tool: contractx.ToolRAG, input: "what is the refund policy"},
		{part: "who is the CEO of OpenAI", tool: contractx.ToolWebSearch, input: "who is the CEO of OpenAI"},
		{part: "what is 3-year-old behaviour", tool: contractx.ToolWebSearch, input: "what is 3-year-old behaviour"},
	}

	for _, tc := range tests {
		tool, input := RoutePart(tc.part)
		if tool != tc.tool || input != tc.input {
			t.Fatalf("RoutePart(%q) = (%s, %q), want (%s, %q)", tc.part, tool, input, tc.tool, tc.input)
		}
	}
}

func TestRouterPlan(t *testing.T) {
	t.Parallel()

	plan, err := Router{}.Plan(context.Background(), contractx.Query{ID: "q", Text: "What is 12*7 and who is the CEO of OpenAI?"})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("steps = %#v", plan.Steps)
	}
	if plan.Steps[0].ID != "step-1" || plan.Steps[0].Tool != contractx.ToolCalculator || plan.Steps[0].Input != "12*7" {
		t.Fatalf("step-1 = %#v", plan.Steps[0])
	}
	if plan.Steps[1].ID != "step-2" || plan.Steps[1].Tool != contractx.ToolWebSearch {
		t.Fatalf("step-2 = %#v", plan.Steps[1])
	}
	if len(plan.Steps[0].DependsOn) != 0 || len(plan.Steps[1].DependsOn) != 0 {
		t.Fatal("router steps should be independent")
	}
	if plan.FinalTemplate != "{{step-1}} | {{step-2}}" {
		t.Fatalf("template = %q", plan.FinalTemplate)
	}

	if _, err := (Router{}).Plan(context.Background(), contractx.Query{Text: " "}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Plan(empty) error = %v", err)
	}
}

func TestRouterPlanCapsStepsAndRoundTrips(t *testing.T) {
	t.Parallel()

	queries := []string{
		"What is 12*7 and who is the CEO of OpenAI?",
		"1+1? 2+2? 3+3? 4+4? 5+5? 6+6? 7+7? 8+8? 9+9? 10+10?",
		"According to our docs, what is entropy; who wrote Dune",
	}
	for _, q := range queries {
		plan, err := Router{}.Plan(context.Background(), contractx.Query{ID: "q", Text: q})
		if err != nil {
			t.Fatalf("Plan(%q) error = %v", q, err)
		}
		if len(plan.Steps) > planx.MaxSteps {
			t.Fatalf("Plan(%q) steps = %d, want at most %d", q, len(plan.Steps), planx.MaxSteps)
		}
		encoded, err := planx.Encode(plan)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		again, err := planx.Validate(encoded)
		if err != nil {
			t.Fatalf("Validate(Encode(%q)) error = %v", q, err)
		}
		if !reflect.DeepEqual(plan, again) {
			t.Fatalf("round trip mismatch for %q:\nfirst  = %#v\nsecond = %#v", q, plan, again)
		}
	}

	plan, err := Router{}.Plan(context.Background(), contractx.Query{Text: queries[1]})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	last := plan.Steps[len(plan.Steps)-1]
	if len(plan.Steps) != planx.MaxSteps || !strings.Contains(last.Input, "10+10") {
		t.Fatalf("overflow not folded into last step: %#v", plan.Steps)
	}
}
