package plan

import (
	"encoding/json"
	"strings"

	contractx "github.com/tanpawarit/query-router/agent/contract"
)

// WirePlan is the JSON document exchanged with the planner model.
type WirePlan struct {
	Plan                      []WireStep `json:"plan"`
	FinalResponseInstructions string     `json:"final_response_instructions"`
	NotesOnFalsePremises      string     `json:"notes_on_false_premises"`
}

type WireStep struct {
	ID        string   `json:"id"`
	Tool      string   `json:"tool"`
	Input     string   `json:"input"`
	DependsOn []string `json:"depends_on"`
}

// ToWire converts a plan into its wire representation.
func ToWire(p contractx.Plan) WirePlan {
	steps := make([]WireStep, 0, len(p.Steps))
	for _, s := range p.Steps {
		deps := make([]string, len(s.DependsOn))
		copy(deps, s.DependsOn)
		steps = append(steps, WireStep{
			ID:        s.ID,
			Tool:      string(s.Tool),
			Input:     s.Input,
			DependsOn: deps,
		})
	}
	return WirePlan{
		Plan:                      steps,
		FinalResponseInstructions: p.FinalTemplate,
		NotesOnFalsePremises:      p.FalsePremiseNote,
	}
}

// Encode serializes a plan to the wire JSON contract.
func Encode(p contractx.Plan) ([]byte, error) {
	return json.Marshal(ToWire(p))
}

// ExtractJSON pulls the JSON object out of a model reply that may wrap it in
// prose or a fenced code block.
func ExtractJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if start := strings.Index(text, "```"); start >= 0 {
		body := text[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			lang := strings.TrimSpace(body[:nl])
			if lang == "" || strings.EqualFold(lang, "json") {
				body = body[nl+1:]
			}
		}
		if end := strings.Index(body, "```"); end >= 0 {
			return strings.TrimSpace(body[:end])
		}
	}
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first >= 0 && last > first {
		return text[first : last+1]
	}
	return text
}
