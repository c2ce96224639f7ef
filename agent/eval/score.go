package eval

import (
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// GoldAnswer returns the number after the final "####" marker of a GSM8K
// reference solution, or the last number when the marker is missing.
func GoldAnswer(answer string) string {
	if i := strings.LastIndex(answer, "####"); i >= 0 {
		answer = answer[i+4:]
	}
	return LastNumber(answer)
}

// LastNumber returns the last number in s with thousands separators removed.
func LastNumber(s string) string {
	matches := numberPattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.ReplaceAll(matches[len(matches)-1], ",", "")
}

// NumbersEqual compares two numeric strings by value, so "72" matches "72.0".
func NumbersEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	x, errA := strconv.ParseFloat(a, 64)
	y, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return a == b
	}
	return x == y
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Score reports whether predicted satisfies c under kind's rule.
func Score(kind Kind, c Case, predicted string) bool {
	switch kind {
	case KindGSM8K:
		return NumbersEqual(LastNumber(predicted), c.Gold)
	case KindLAMA:
		gold := normalize(c.Gold)
		return gold != "" && strings.Contains(normalize(predicted), gold)
	case KindMixed:
		pred := normalize(predicted)
		for _, needle := range c.MustContain {
			if !strings.Contains(pred, normalize(needle)) {
				return false
			}
		}
		if len(c.AnyOf) == 0 {
			return true
		}
		for _, alt := range c.AnyOf {
			if strings.Contains(pred, normalize(alt)) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
