package prompt

import (
	"strings"
	"testing"
)

func TestLoadPromptSet(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	if set.Planner == "" {
		t.Fatal("planner prompt is empty")
	}
	if !strings.Contains(set.Planner, "{{step-1}}") || !strings.Contains(set.Planner, "{tools}") {
		t.Fatal("planner prompt should show the placeholder syntax")
	}
	for name, pair := range map[string]Pair{
		"gsm8k":        set.GSM8K,
		"gsm8k_strict": set.GSM8KStrict,
		"web":          set.WebSynthesis,
		"rag":          set.RAG,
	} {
		if pair.System == "" || pair.User == "" {
			t.Fatalf("%s prompt pair is incomplete: %+v", name, pair)
		}
		if !strings.Contains(pair.User, "{question}") {
			t.Fatalf("%s user template should contain {question}", name)
		}
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	got := Render("Q: {question} / {missing}", map[string]string{"question": "2+2 {x}"})
	if got != "Q: 2+2 {x} / {missing}" {
		t.Fatalf("Render() = %q", got)
	}
}
