package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	contractx "github.com/tanpawarit/query-router/agent/contract"
	planx "github.com/tanpawarit/query-router/agent/plan"
	toolx "github.com/tanpawarit/query-router/agent/tool"
)

var (
	connectorPunctPattern = regexp.MustCompile(`(?i)\b(also|then|and)\b\s*[,;]\s*`)
	questionMarkPattern   = regexp.MustCompile(`\?\s*`)
	wordProblemPattern    = regexp.MustCompile(`(?i)(how\s+(?:many|much|long)|left|remain|time|speed|distance|rate|each|per|total|altogether|spent|earn|cost|bought|sold|gave|times|twice|thrice|more than|less than)`)
	docPrefaceComma       = regexp.MustCompile(`(?i)(\b(?:according to|per|from)\s+(?:our|the|this)\s+(?:local\s+)?(?:docs?|document|knowledge\s*base|kb|notes|pdf))\s*,\s*`)
	docPreface            = regexp.MustCompile(`(?i)^(?:according to|per|from)\s+(?:our|the|this)\s+(?:local\s+)?(?:docs?|document|knowledge\s*base|kb|notes|pdf)\s*,?\s*`)
	leadingVerbPattern    = regexp.MustCompile(`(?i)^\s*(?:compute|calculate|evaluate|what\s+is|what's)?\s*`)
	leadingExprPattern    = regexp.MustCompile(`^([0-9.\s+\-*/^()!]+)\s*(?:,|\s+(?:and|&)\s+|;\s+|$)`)
	mathOperatorPattern   = regexp.MustCompile(`[+\-*/^!]`)
	arithmeticOpPattern   = regexp.MustCompile(`[+\-*/^]`)
	clauseSplitPattern    = regexp.MustCompile(`\s+(?:and|&)\s+|;\s+`)
	leadingConnector      = regexp.MustCompile(`(?i)^(?:also|and|then)\b[:,]?\s*`)
	bareConnector         = regexp.MustCompile(`(?i)^(?:also|and|then)$`)
	factorialOnlyPattern  = regexp.MustCompile(`^\d+\s*!\s*$`)
	sqrtPhrasePattern     = regexp.MustCompile(`(?i)\bsquare\s*root\s*of\s*(\d+)\b`)
	digitPattern          = regexp.MustCompile(`\d`)
)

// Router plans without a model: it splits the query into sub-questions and
// routes each one to a tool by keyword rules. Every sub-question becomes an
// independent step and the template joins their answers with " | ".
// Sub-questions past plan.MaxSteps are folded into the last step.
type Router struct{}

var _ contractx.Planner = Router{}

func (Router) Plan(_ context.Context, q contractx.Query) (contractx.Plan, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return contractx.Plan{}, &contractx.ValidationError{Check: contractx.CheckStructure, Message: "query text is empty"}
	}

	parts := SplitQuery(text)
	if len(parts) == 0 {
		parts = []string{text}
	}
	if len(parts) > planx.MaxSteps {
		last := strings.Join(parts[planx.MaxSteps-1:], "; ")
		parts = append(parts[:planx.MaxSteps-1:planx.MaxSteps-1], last)
	}

	wire := planx.WirePlan{Plan: make([]planx.WireStep, 0, len(parts))}
	refs := make([]string, 0, len(parts))
	for i, part := range parts {
		tool, input := RoutePart(part)
		id := fmt.Sprintf("step-%d", i+1)
		wire.Plan = append(wire.Plan, planx.WireStep{
			ID:        id,
			Tool:      string(tool),
			Input:     input,
			DependsOn: []string{},
		})
		refs = append(refs, "{{"+id+"}}")
	}
	wire.FinalResponseInstructions = strings.Join(refs, " | ")
	return planx.ValidateWire(wire)
}

// SplitQuery breaks a compound query into sub-questions. Questions are cut
// at "?", a leading arithmetic expression is peeled off, word problems are
// kept whole, and anything else is split on clause connectors.
func SplitQuery(q string) []string {
	q = connectorPunctPattern.ReplaceAllString(strings.TrimSpace(q), "$1 ")

	var parts []string
	for _, seg := range questionMarkPattern.Split(q, -1) {
		seg = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(seg), "?"))
		if seg == "" {
			continue
		}

		expr, rest, ok := leadingExpression(seg)
		if ok {
			parts = append(parts, expr)
			seg = rest
		}
		if seg == "" {
			continue
		}

		if wordProblemPattern.MatchString(seg) && digitPattern.MatchString(seg) {
			parts = append(parts, seg)
			continue
		}

		seg = docPrefaceComma.ReplaceAllString(seg, "$1 ")
		for _, clause := range splitClauses(seg) {
			clause = strings.TrimSpace(clause)
			if clause == "" || bareConnector.MatchString(clause) {
				continue
			}
			clause = strings.TrimSpace(leadingConnector.ReplaceAllString(clause, ""))
			if clause != "" {
				parts = append(parts, clause)
			}
		}
	}
	return parts
}

func leadingExpression(seg string) (expr, rest string, ok bool) {
	stripped := leadingVerbPattern.ReplaceAllString(seg, "")
	m := leadingExprPattern.FindStringSubmatchIndex(stripped)
	if m == nil {
		return "", seg, false
	}
	expr = strings.TrimSpace(stripped[m[2]:m[3]])
	if expr == "" || !mathOperatorPattern.MatchString(expr) || !digitPattern.MatchString(expr) {
		return "", seg, false
	}
	rest = strings.TrimLeft(stripped[m[1]:], " ,;")
	return expr, strings.TrimSpace(rest), true
}

// splitClauses splits on "and", "&", ";" and on a comma that follows a
// non-digit and precedes a letter, so "1,000" and "Paris, France" style
// numbers stay intact.
func splitClauses(s string) []string {
	var out []string
	for _, piece := range clauseSplitPattern.Split(s, -1) {
		out = append(out, splitOnClauseCommas(piece)...)
	}
	return out
}

func splitOnClauseCommas(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != ',' || i == 0 || unicode.IsDigit(runes[i-1]) {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) || !isASCIILetter(runes[j]) {
			continue
		}
		out = append(out, string(runes[start:i]))
		start = j
		i = j - 1
	}
	return append(out, string(runes[start:]))
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// RoutePart picks the tool for one sub-question and normalises its input.
func RoutePart(part string) (contractx.ToolName, string) {
	c := strings.TrimSpace(part)

	if factorialOnlyPattern.MatchString(c) {
		return contractx.ToolCalculator, c
	}
	if m := sqrtPhrasePattern.FindStringSubmatch(c); m != nil {
		return contractx.ToolCalculator, "sqrt(" + m[1] + ")"
	}
	if arithmeticOpPattern.MatchString(c) && toolx.IsPureMath(c) {
		return contractx.ToolCalculator, c
	}
	if wordProblemPattern.MatchString(c) && digitPattern.MatchString(c) {
		return contractx.ToolGSM8K, c
	}
	if docPreface.MatchString(c) {
		cleaned := strings.TrimSpace(docPreface.ReplaceAllString(c, ""))
		if cleaned == "" {
			cleaned = c
		}
		return contractx.ToolRAG, cleaned
	}
	return contractx.ToolWebSearch, c
}
