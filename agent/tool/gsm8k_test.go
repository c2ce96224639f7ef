package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/query-router/agent/contract"
	promptx "github.com/tanpawarit/query-router/agent/prompt"
)

type fakeCompleter struct {
	replies []string
	err     error
	users   []string
	systems []string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	if f.err != nil {
		return "", f.err
	}
	if len(f.users) > len(f.replies) {
		return "", errors.New("no fake reply left")
	}
	return f.replies[len(f.users)-1], nil
}

func TestGSM8KDeterministicSolvers(t *testing.T) {
	t.Parallel()

	g := NewGSM8K(nil, promptx.LoadPromptSet())

	bus := "A bus has 40 seats. 25 are occupied at the start. At the first stop 8 people get on and 5 people get off. How many empty seats are there now?"
	got, err := g.Invoke(context.Background(), bus, nil)
	if err != nil || got != "12" {
		t.Fatalf("bus problem = %q, %v; want 12", got, err)
	}

	train := "A train travels 120 km in 2 hours. At the same speed, how long will it take to travel 300 km?"
	got, err = g.Invoke(context.Background(), train, nil)
	if err != nil || got != "5" {
		t.Fatalf("train problem = %q, %v; want 5", got, err)
	}

	walk := "Nina travels 3 km in 30 minutes. How long does she need for 9 km?"
	got, err = g.Invoke(context.Background(), walk, nil)
	if err != nil || got != "1.5" {
		t.Fatalf("walk problem = %q, %v; want 1.5", got, err)
	}
}

func TestGSM8KUsesAnswerLine(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{replies: []string{"Ann has 4.\nTom has 3 * 4 = 12.\nANSWER: 12"}}
	g := NewGSM8K(c, promptx.LoadPromptSet())

	got, err := g.Invoke(context.Background(), "Ann has 4 apples. Tom has 3 times more than Ann. How many apples does Tom have?", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "12" {
		t.Fatalf("Invoke() = %q, want 12", got)
	}
	if len(c.users) != 1 {
		t.Fatalf("completer calls = %d, want 1", len(c.users))
	}
	if !strings.Contains(c.users[0], "3 times as many as Ann") {
		t.Fatalf("prompt was not normalised: %q", c.users[0])
	}
	if !strings.Contains(c.systems[0], "ANSWER: ") {
		t.Fatalf("system prompt missing answer contract: %q", c.systems[0])
	}
}

func TestGSM8KStrictRetry(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{replies: []string{"The answer is seven.", "ANSWER: 7"}}
	g := NewGSM8K(c, promptx.LoadPromptSet())

	got, err := g.Invoke(context.Background(), "Sam had 10 marbles and gave away 3. How many are left?", nil)
	if err != nil || got != "7" {
		t.Fatalf("Invoke() = %q, %v; want 7", got, err)
	}
	if len(c.users) != 2 {
		t.Fatalf("completer calls = %d, want 2", len(c.users))
	}
	if !strings.Contains(c.systems[1], "EXACTLY one line") {
		t.Fatalf("second call should use the strict prompt: %q", c.systems[1])
	}
}

func TestGSM8KLastNumberFallback(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{replies: []string{"First 12, then 1,500 in total", "not sure"}}
	g := NewGSM8K(c, promptx.LoadPromptSet())

	got, err := g.Invoke(context.Background(), "A shop sold 12 boxes of 125 pens each. How many pens in total?", nil)
	if err != nil || got != "1500" {
		t.Fatalf("Invoke() = %q, %v; want 1500", got, err)
	}
}

func TestGSM8KFailures(t *testing.T) {
	t.Parallel()

	question := "Mia has some stickers and buys more. How many does she have?"

	c := &fakeCompleter{replies: []string{"I cannot tell.", "no idea"}}
	_, err := NewGSM8K(c, promptx.LoadPromptSet()).Invoke(context.Background(), question, nil)
	if !errors.Is(err, ErrNoNumericAnswer) {
		t.Fatalf("Invoke() error = %v, want ErrNoNumericAnswer", err)
	}

	c = &fakeCompleter{err: errors.New("rate limited")}
	_, err = NewGSM8K(c, promptx.LoadPromptSet()).Invoke(context.Background(), question, nil)
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("Invoke() error = %v, want ErrModelInvoke", err)
	}

	_, err = NewGSM8K(nil, promptx.LoadPromptSet()).Invoke(context.Background(), question, nil)
	if err == nil || !contractx.IsPermanent(err) {
		t.Fatalf("Invoke() without completer error = %v, want permanent", err)
	}
}
