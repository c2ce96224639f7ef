package tool

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/query-router/agent/contract"
)

var descriptions = map[contractx.ToolName]struct {
	desc  string
	input string
}{
	contractx.ToolCalculator: {
		desc:  `Evaluates a pure arithmetic expression with + - * / % ^, parentheses, sqrt() and factorials. Example inputs: "12*(3+4)", "sqrt(144)", "10!/2^3".`,
		input: "The arithmetic expression only",
	},
	contractx.ToolGSM8K: {
		desc:  "Solves a grade-school math word problem and returns the numeric answer. Never split a word problem across steps.",
		input: "The whole word problem, unchanged",
	},
	contractx.ToolWebSearch: {
		desc:  "Answers a question about world facts, people, places or current events from web search results.",
		input: "A short search question",
	},
	contractx.ToolRAG: {
		desc:  `Answers from the local document collection. Use only when the user refers to "our docs", "the document", "the knowledge base" or similar.`,
		input: "The question without the document preface",
	},
}

// Registry binds tool names to capabilities. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	tools map[contractx.ToolName]contractx.Tool
	order []contractx.ToolName
}

func NewRegistry(tools ...contractx.Tool) (*Registry, error) {
	r := &Registry{tools: make(map[contractx.ToolName]contractx.Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			continue
		}
		name := t.Name()
		if !name.Valid() {
			return nil, fmt.Errorf("%w: %s", contractx.ErrUnknownTool, name)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("tool %s registered twice", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

func (r *Registry) Lookup(name contractx.ToolName) (contractx.Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names lists registered tools in registration order.
func (r *Registry) Names() []contractx.ToolName {
	return append([]contractx.ToolName(nil), r.order...)
}

// Infos describes the registered tools for model prompts.
func (r *Registry) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		d := descriptions[name]
		infos = append(infos, &schema.ToolInfo{
			Name: string(name),
			Desc: d.desc,
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"input": {Type: schema.String, Desc: d.input, Required: true},
			}),
		})
	}
	return infos
}

// Describe renders Infos as a bullet list.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, info := range r.Infos() {
		fmt.Fprintf(&b, "- %s: %s\n", info.Name, info.Desc)
	}
	return strings.TrimRight(b.String(), "\n")
}
