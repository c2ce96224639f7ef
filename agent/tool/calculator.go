package tool

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/query-router/agent/contract"
)

// Accepts digits, whitespace, decimal points, operators, and parentheses.
var mathExpressionPattern = regexp.MustCompile(`^[\d\s\+\-\*/%\^\(\)\.]+$`)

var (
	squareRootPattern = regexp.MustCompile(`(?i)\bsquare\s*root\s*of\s*(\d+(?:\.\d+)?)`)
	squareOfPattern   = regexp.MustCompile(`(?i)\bsquare\s+of\s+(\d+(?:\.\d+)?)`)
	squaredPattern    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s+squared\b`)
	cubedPattern      = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s+cubed\b`)
	addAndPattern     = regexp.MustCompile(`(?i)\badd\s+(\d+(?:\.\d+)?)\s+and\s+(\d+(?:\.\d+)?)`)
	factorialPattern  = regexp.MustCompile(`(\d+)\s*!`)
	leadingAskPattern = regexp.MustCompile(`(?i)^\s*(what\s+is|what's|calculate|compute|evaluate)\s+`)
	wordOperators     = strings.NewReplacer(
		" multiplied by ", " * ",
		" to the power of ", " ^ ",
		" divided by ", " / ",
		" times ", " * ",
		" plus ", " + ",
		" minus ", " - ",
		"×", "*",
		"÷", "/",
		"√", "sqrt",
		"**", "^",
	)
)

const maxFactorial = 20

// Calculator evaluates arithmetic expressions.
type Calculator struct{}

var _ contractx.Tool = Calculator{}

func NewCalculator() Calculator {
	return Calculator{}
}

func (Calculator) Name() contractx.ToolName {
	return contractx.ToolCalculator
}

func (Calculator) Invoke(ctx context.Context, input string, _ contractx.ToolContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	expression, err := normalizeExpression(input)
	if err != nil {
		return "", contractx.Permanent(err)
	}
	if err := validateMathExpression(expression); err != nil {
		return "", contractx.Permanent(err)
	}
	result, err := evaluateMathExpression(expression)
	if err != nil {
		return "", contractx.Permanent(err)
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return "", contractx.Permanent(fmt.Errorf("result is not a finite number"))
	}
	return FormatNumber(result), nil
}

// IsPureMath reports whether text is an arithmetic expression once natural
// phrasing such as "square root of" has been normalised.
func IsPureMath(text string) bool {
	expression, err := normalizeExpression(text)
	if err != nil {
		return false
	}
	if !strings.ContainsAny(expression, "0123456789") {
		return false
	}
	return validateMathExpression(expression) == nil
}

func normalizeExpression(input string) (string, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimRight(s, "?= ")
	s = leadingAskPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.Join(strings.Fields(s), " ")
	s = " " + s + " "
	s = wordOperators.Replace(s)
	s = squareRootPattern.ReplaceAllString(s, "sqrt($1)")
	s = squareOfPattern.ReplaceAllString(s, "($1)^2")
	s = squaredPattern.ReplaceAllString(s, "($1)^2")
	s = cubedPattern.ReplaceAllString(s, "($1)^3")
	s = addAndPattern.ReplaceAllString(s, "$1 + $2")

	expanded, err := expandFactorials(s)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(expanded), nil
}

func expandFactorials(s string) (string, error) {
	var expandErr error
	for factorialPattern.MatchString(s) {
		s = factorialPattern.ReplaceAllStringFunc(s, func(m string) string {
			digits := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m), "!"))
			n, err := strconv.Atoi(digits)
			if err != nil || n > maxFactorial {
				expandErr = fmt.Errorf("factorial of %s is not supported", digits)
				return "0"
			}
			return new(big.Int).MulRange(1, int64(max(n, 1))).String()
		})
		if expandErr != nil {
			return "", expandErr
		}
	}
	return s, nil
}

// FormatNumber prints integral values without a fractional part.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
