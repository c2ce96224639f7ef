package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	contractx "github.com/tanpawarit/query-router/agent/contract"
)

// Validate parses a raw planner reply and returns a Plan, or a
// *contractx.ValidationError describing the first failed check. It never
// returns a partially valid plan.
func Validate(raw []byte) (contractx.Plan, error) {
	doc := ExtractJSON(string(raw))

	var generic any
	if err := json.Unmarshal([]byte(doc), &generic); err != nil {
		return contractx.Plan{}, invalid(contractx.CheckStructure, fmt.Sprintf("plan is not valid JSON: %v", err))
	}

	if err := checkSchema(generic); err != nil {
		return contractx.Plan{}, err
	}

	var wire WirePlan
	if err := json.Unmarshal([]byte(doc), &wire); err != nil {
		return contractx.Plan{}, invalid(contractx.CheckStructure, fmt.Sprintf("decode plan: %v", err))
	}
	return ValidateWire(wire)
}

// ValidateWire runs the checks on an already decoded document, in order:
// structure, unique ids, dependency resolution, acyclicity, template refs.
// The normalized plan is checked against the same schema Validate uses, so
// anything ValidateWire accepts survives Encode followed by Validate.
func ValidateWire(wire WirePlan) (contractx.Plan, error) {
	if len(wire.Plan) == 0 {
		return contractx.Plan{}, invalid(contractx.CheckStructure, "plan must contain at least one step")
	}

	steps := make([]contractx.Step, 0, len(wire.Plan))
	for i, ws := range wire.Plan {
		id := strings.TrimSpace(ws.ID)
		if id == "" {
			return contractx.Plan{}, invalid(contractx.CheckStructure, fmt.Sprintf("step %d has an empty id", i))
		}
		tool := contractx.ToolName(strings.TrimSpace(ws.Tool))
		if !tool.Valid() {
			return contractx.Plan{}, invalid(contractx.CheckStructure, fmt.Sprintf("step %q uses unknown tool %q", id, ws.Tool), id)
		}
		input := strings.TrimSpace(ws.Input)
		if input == "" {
			return contractx.Plan{}, invalid(contractx.CheckStructure, fmt.Sprintf("step %q has an empty input", id), id)
		}
		steps = append(steps, contractx.Step{
			ID:        id,
			Tool:      tool,
			Input:     input,
			DependsOn: dedupe(ws.DependsOn),
		})
	}

	if dups := duplicateIDs(steps); len(dups) > 0 {
		return contractx.Plan{}, invalid(contractx.CheckUniqueIDs, "step ids must be unique", dups...)
	}

	known := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		known[s.ID] = struct{}{}
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := known[dep]; !ok {
				return contractx.Plan{}, invalid(contractx.CheckDependencies,
					fmt.Sprintf("step %q depends on unknown step %q", s.ID, dep), s.ID, dep)
			}
		}
	}

	if _, err := Waves(steps); err != nil {
		var ce *cycleError
		if errors.As(err, &ce) {
			return contractx.Plan{}, invalid(contractx.CheckAcyclic, "dependency graph contains a cycle", ce.ids...)
		}
		return contractx.Plan{}, invalid(contractx.CheckDependencies, err.Error())
	}

	template := strings.TrimSpace(wire.FinalResponseInstructions)
	for _, ref := range Placeholders(template) {
		if _, ok := known[ref]; !ok {
			return contractx.Plan{}, invalid(contractx.CheckTemplate,
				fmt.Sprintf("final_response_instructions references unknown step %q", ref), ref)
		}
	}

	p := contractx.Plan{
		Steps:            steps,
		FinalTemplate:    template,
		FalsePremiseNote: strings.TrimSpace(wire.NotesOnFalsePremises),
	}
	if err := checkWireSchema(ToWire(p)); err != nil {
		return contractx.Plan{}, err
	}
	return p, nil
}

func checkWireSchema(w WirePlan) error {
	doc, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	var generic any
	if err := json.Unmarshal(doc, &generic); err != nil {
		return fmt.Errorf("decode plan: %w", err)
	}
	return checkSchema(generic)
}

func checkSchema(doc any) error {
	schema, err := Schema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return invalid(contractx.CheckStructure, schemaMessage(err))
	}
	return nil
}

func invalid(check, msg string, ids ...string) *contractx.ValidationError {
	return &contractx.ValidationError{Check: check, Message: msg, StepIDs: ids}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func duplicateIDs(steps []contractx.Step) []string {
	counts := make(map[string]int, len(steps))
	for _, s := range steps {
		counts[s.ID]++
	}
	dups := make([]string, 0)
	for id, n := range counts {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	return dups
}

// schemaMessage reduces a jsonschema error to its innermost causes, each as
// "<instance pointer>: <reason>". Schema file locations are dropped since the
// text is fed back to the planner model.
func schemaMessage(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return "plan does not match schema: " + strings.Join(strings.Fields(err.Error()), " ")
	}

	var reasons []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			reasons = append(reasons, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return "plan does not match schema: " + strings.Join(reasons, "; ")
}
