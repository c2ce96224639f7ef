package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/planner.txt
	plannerRaw string

	//go:embed template/gsm8k.txt
	gsm8kRaw string

	//go:embed template/gsm8k_user.txt
	gsm8kUserRaw string

	//go:embed template/gsm8k_strict.txt
	gsm8kStrictRaw string

	//go:embed template/gsm8k_strict_user.txt
	gsm8kStrictUserRaw string

	//go:embed template/web_synthesis.txt
	webSynthesisRaw string

	//go:embed template/web_user.txt
	webUserRaw string

	//go:embed template/rag.txt
	ragRaw string

	//go:embed template/rag_user.txt
	ragUserRaw string
)

// Pair is a system prompt and the user message template sent with it.
// User templates use {name} placeholders.
type Pair struct {
	System string
	User   string
}

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Planner      string
	GSM8K        Pair
	GSM8KStrict  Pair
	WebSynthesis Pair
	RAG          Pair
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Planner:      strings.TrimSpace(plannerRaw),
		GSM8K:        Pair{System: strings.TrimSpace(gsm8kRaw), User: strings.TrimSpace(gsm8kUserRaw)},
		GSM8KStrict:  Pair{System: strings.TrimSpace(gsm8kStrictRaw), User: strings.TrimSpace(gsm8kStrictUserRaw)},
		WebSynthesis: Pair{System: strings.TrimSpace(webSynthesisRaw), User: strings.TrimSpace(webUserRaw)},
		RAG:          Pair{System: strings.TrimSpace(ragRaw), User: strings.TrimSpace(ragUserRaw)},
	}
}

// Render replaces {name} placeholders in tpl with vars. Unknown
// placeholders are left as-is.
func Render(tpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
