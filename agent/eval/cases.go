package eval

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

type Kind string

const (
	KindGSM8K Kind = "gsm8k"
	KindMixed Kind = "mixed"
	KindLAMA  Kind = "lama"
)

var ErrUnknownKind = errors.New("unknown benchmark kind")

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindGSM8K, KindMixed, KindLAMA:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Case is one benchmark row. Gold is set for gsm8k and lama rows,
// MustContain and AnyOf for mixed rows.
type Case struct {
	Question    string
	Gold        string
	MustContain []string
	AnyOf       []string
}

type gsm8kRow struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type mixedRow struct {
	Question string `json:"question"`
	Query    string `json:"query"`
	Expect   struct {
		MustContain []string `json:"must_contain"`
		WebAny      []string `json:"web_any"`
	} `json:"expect"`
	MustContain []string `json:"must_contain"`
	WebAny      []string `json:"web_any"`
}

func LoadFile(kind Kind, path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(kind, f)
}

// Load reads jsonl rows for gsm8k and mixed, and a prompt,answer CSV for
// lama. Blank lines are ignored.
func Load(kind Kind, r io.Reader) ([]Case, error) {
	switch kind {
	case KindGSM8K:
		return loadJSONL(r, func(line []byte) (Case, error) {
			var row gsm8kRow
			if err := json.Unmarshal(line, &row); err != nil {
				return Case{}, err
			}
			if strings.TrimSpace(row.Question) == "" {
				return Case{}, errors.New("question is empty")
			}
			return Case{Question: row.Question, Gold: GoldAnswer(row.Answer)}, nil
		})
	case KindMixed:
		return loadJSONL(r, func(line []byte) (Case, error) {
			var row mixedRow
			if err := json.Unmarshal(line, &row); err != nil {
				return Case{}, err
			}
			q := row.Question
			if q == "" {
				q = row.Query
			}
			if strings.TrimSpace(q) == "" {
				return Case{}, errors.New("question is empty")
			}
			return Case{
				Question:    q,
				MustContain: append(row.Expect.MustContain, row.MustContain...),
				AnyOf:       append(row.Expect.WebAny, row.WebAny...),
			}, nil
		})
	case KindLAMA:
		return loadCSV(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func loadJSONL(r io.Reader, decode func([]byte) (Case, error)) ([]Case, error) {
	var cases []Case
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c, err := decode([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cases, nil
}

func loadCSV(r io.Reader) ([]Case, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	prompt, answer := -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "prompt", "question":
			prompt = i
		case "answer":
			answer = i
		}
	}
	if prompt < 0 || answer < 0 {
		return nil, errors.New("csv header must name prompt and answer columns")
	}

	cases := make([]Case, 0, len(records)-1)
	for n, rec := range records[1:] {
		if prompt >= len(rec) || answer >= len(rec) {
			return nil, fmt.Errorf("row %d: missing columns", n+2)
		}
		if strings.TrimSpace(rec[prompt]) == "" {
			continue
		}
		cases = append(cases, Case{Question: rec[prompt], Gold: rec[answer]})
	}
	return cases, nil
}
