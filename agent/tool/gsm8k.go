package tool

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/query-router/agent/contract"
	promptx "github.com/tanpawarit/query-router/agent/prompt"
)

// Completer sends one system/user exchange to a language model and returns
// the raw reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

var (
	timesMorePattern  = regexp.MustCompile(`(?i)\b(\d+)\s+times\s+more\s+than\b`)
	twiceMorePattern  = regexp.MustCompile(`(?i)\btwice\s+more\s+than\b`)
	thriceMorePattern = regexp.MustCompile(`(?i)\bthrice\s+more\s+than\b`)

	numberPattern     = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	fullNumberPattern = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)

	seatsPattern    = regexp.MustCompile(`(?i)\b(\d+)\s+seats?\b`)
	occupiedPattern = regexp.MustCompile(`(?i)\b(\d+)\s+(?:are\s+)?occupied(?:\s+at\s+the\s+start)?\b`)
	getOnPattern    = regexp.MustCompile(`(?i)\b(\d+)\s+(?:people\s+)?get\s+on\b`)
	getOffPattern   = regexp.MustCompile(`(?i)\b(\d+)\s+(?:people\s+)?get\s+off\b`)

	travelRatePattern = regexp.MustCompile(`(?i)travels?\s+(\d+(?:\.\d+)?)\s*(km|kilometers?|miles?)\s+in\s+(\d+(?:\.\d+)?)\s*(hours?|hr|h|minutes?|min|m)\b`)
	travelAskPattern  = regexp.MustCompile(`(?i)how\s+long.*?\b(\d+(?:\.\d+)?)\s*(km|kilometers?|miles?)\b`)
)

// ErrNoNumericAnswer is returned when neither the solvers nor the model
// produce a number.
var ErrNoNumericAnswer = errors.New("no numeric answer parsed")

// GSM8K solves grade-school word problems. Recognised problem shapes are
// answered deterministically; everything else goes to the completer.
type GSM8K struct {
	completer Completer
	prompts   promptx.PromptSet
	logger    zerolog.Logger
}

var _ contractx.Tool = (*GSM8K)(nil)

func NewGSM8K(completer Completer, prompts promptx.PromptSet) *GSM8K {
	return &GSM8K{completer: completer, prompts: prompts, logger: log.Logger}
}

func (g *GSM8K) WithLogger(logger zerolog.Logger) *GSM8K {
	g.logger = logger
	return g
}

func (g *GSM8K) Name() contractx.ToolName {
	return contractx.ToolGSM8K
}

func (g *GSM8K) Invoke(ctx context.Context, input string, _ contractx.ToolContext) (string, error) {
	question := strings.TrimSpace(input)
	if question == "" {
		return "", contractx.Permanent(errors.New("problem text is empty"))
	}

	if answer, ok := solveBusSeats(question); ok {
		g.logger.Debug().Str("solver", "bus_seats").Str("answer", answer).Msg("gsm8k solved deterministically")
		return answer, nil
	}
	if answer, ok := solveUniformRate(question); ok {
		g.logger.Debug().Str("solver", "uniform_rate").Str("answer", answer).Msg("gsm8k solved deterministically")
		return answer, nil
	}

	if g.completer == nil {
		return "", contractx.Permanent(errors.New("gsm8k completer is not configured"))
	}

	normalized := normalizePhrasing(question)
	vars := map[string]string{"question": normalized}

	reply, err := g.completer.Complete(ctx,
		g.prompts.GSM8K.System,
		promptx.Render(g.prompts.GSM8K.User, vars),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", contractx.ErrModelInvoke, err)
	}

	if answer, ok := extractAnswerLine(reply); ok && fullNumberPattern.MatchString(answer) {
		return answer, nil
	}

	strict, err := g.completer.Complete(ctx,
		g.prompts.GSM8KStrict.System,
		promptx.Render(g.prompts.GSM8KStrict.User, vars),
	)
	if err == nil {
		if answer, ok := extractAnswerLine(strict); ok && fullNumberPattern.MatchString(answer) {
			return answer, nil
		}
	} else {
		g.logger.Warn().Err(err).Msg("gsm8k strict retry failed")
	}

	if answer, ok := extractAnswerLine(reply); ok && answer != "" {
		if n := lastNumber(answer); n != "" {
			return n, nil
		}
	}
	if n := lastNumber(reply); n != "" {
		return n, nil
	}
	return "", ErrNoNumericAnswer
}

func normalizePhrasing(q string) string {
	s := timesMorePattern.ReplaceAllString(q, "$1 times as many as")
	s = twiceMorePattern.ReplaceAllString(s, "2 times as many as")
	s = thriceMorePattern.ReplaceAllString(s, "3 times as many as")
	return s
}

func extractAnswerLine(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToUpper(trimmed), "ANSWER:") {
			answer := strings.TrimSpace(trimmed[len("ANSWER:"):])
			return strings.TrimSuffix(strings.ReplaceAll(answer, ",", ""), "."), true
		}
	}
	return "", false
}

func lastNumber(text string) string {
	nums := numberPattern.FindAllString(strings.ReplaceAll(text, ",", ""), -1)
	if len(nums) == 0 {
		return ""
	}
	return nums[len(nums)-1]
}

func grabInt(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// solveBusSeats handles "S seats, O occupied, A get on, B get off" problems.
func solveBusSeats(q string) (string, bool) {
	seats, ok1 := grabInt(seatsPattern, q)
	occupied, ok2 := grabInt(occupiedPattern, q)
	on, ok3 := grabInt(getOnPattern, q)
	off, ok4 := grabInt(getOffPattern, q)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return "", false
	}
	empty := seats - (occupied + on - off)
	empty = min(max(empty, 0), seats)
	return strconv.Itoa(empty), true
}

// solveUniformRate handles "travels U km in V hours, how long for D km"
// problems. Distance units are assumed to match; the answer is in hours.
func solveUniformRate(q string) (string, bool) {
	rate := travelRatePattern.FindStringSubmatch(q)
	ask := travelAskPattern.FindStringSubmatch(q)
	if rate == nil || ask == nil {
		return "", false
	}
	distance, err1 := strconv.ParseFloat(rate[1], 64)
	duration, err2 := strconv.ParseFloat(rate[3], 64)
	target, err3 := strconv.ParseFloat(ask[1], 64)
	if err1 != nil || err2 != nil || err3 != nil || distance == 0 || duration == 0 {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(rate[4]), "m") {
		duration /= 60
	}
	speed := distance / duration
	return FormatNumber(target / speed), true
}
