package aggregate

import (
	"strings"

	contractx "github.com/tanpawarit/query-router/agent/contract"
	planx "github.com/tanpawarit/query-router/agent/plan"
)

// Unavailable replaces the value of any step that failed or was skipped.
const Unavailable = "<unavailable>"

const joinSeparator = " | "

// Aggregate renders the final answer from the plan template and step results.
// It never fails: missing values degrade to Unavailable. The output depends
// only on its inputs, so repeated calls yield the same answer.
func Aggregate(p contractx.Plan, results map[string]contractx.StepResult) contractx.FinalAnswer {
	valueOf := func(id string) (string, bool) {
		res, ok := results[id]
		if !ok || !res.Available() {
			return Unavailable, true
		}
		return strings.TrimSpace(res.Value), true
	}

	var text string
	if strings.TrimSpace(p.FinalTemplate) == "" {
		parts := make([]string, 0, len(p.Steps))
		for _, s := range p.Steps {
			v, _ := valueOf(s.ID)
			parts = append(parts, v)
		}
		text = strings.Join(parts, joinSeparator)
	} else {
		known := make(map[string]struct{}, len(p.Steps))
		for _, s := range p.Steps {
			known[s.ID] = struct{}{}
		}
		text = planx.Substitute(p.FinalTemplate, func(id string) (string, bool) {
			if _, ok := known[id]; !ok {
				return "", false
			}
			return valueOf(id)
		})
	}

	if note := strings.TrimSpace(p.FalsePremiseNote); note != "" {
		text = strings.TrimSpace(text) + "\n\nNote: " + note
	}

	return contractx.FinalAnswer{
		Text:     strings.TrimSpace(text),
		Outcomes: Outcomes(p, results),
	}
}

// Outcomes lists per-step results in plan order.
func Outcomes(p contractx.Plan, results map[string]contractx.StepResult) []contractx.StepOutcome {
	out := make([]contractx.StepOutcome, 0, len(p.Steps))
	for _, s := range p.Steps {
		res, ok := results[s.ID]
		outcome := contractx.StepOutcome{StepID: s.ID, Tool: s.Tool, Status: contractx.StepPending}
		if ok {
			outcome.Status = res.Status
			outcome.Value = res.Value
			if res.Error != nil {
				outcome.Error = res.Error.Message
			}
		}
		out = append(out, outcome)
	}
	return out
}
