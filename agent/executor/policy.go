package executor

import (
	"time"

	contractx "github.com/tanpawarit/query-router/agent/contract"
)

// Policy bounds a single tool: each attempt runs under Timeout and transient
// failures are retried up to MaxRetries times with exponential backoff.
type Policy struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

func (p Policy) backoff(attempt int) time.Duration {
	if p.RetryDelay <= 0 || attempt <= 0 {
		return 0
	}
	return p.RetryDelay << (attempt - 1)
}

type Policies struct {
	Default Policy
	Tools   map[contractx.ToolName]Policy
}

func (p Policies) For(tool contractx.ToolName) Policy {
	policy, ok := p.Tools[tool]
	if !ok {
		policy = p.Default
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return policy
}

func DefaultPolicies() Policies {
	return Policies{
		Default: Policy{Timeout: 20 * time.Second, MaxRetries: 1, RetryDelay: 200 * time.Millisecond},
		Tools: map[contractx.ToolName]Policy{
			contractx.ToolCalculator: {Timeout: 2 * time.Second},
			contractx.ToolGSM8K:      {Timeout: 30 * time.Second, MaxRetries: 1, RetryDelay: 200 * time.Millisecond},
			contractx.ToolWebSearch:  {Timeout: 20 * time.Second, MaxRetries: 2, RetryDelay: 200 * time.Millisecond},
			contractx.ToolRAG:        {Timeout: 20 * time.Second, MaxRetries: 1, RetryDelay: 200 * time.Millisecond},
		},
	}
}

// Config is the env-driven form of the executor settings.
type Config struct {
	Deadline    time.Duration `split_words:"true" default:"60s"`
	MaxParallel int           `split_words:"true" default:"4"`
	RetryDelay  time.Duration `split_words:"true" default:"200ms"`

	CalculatorTimeout time.Duration `split_words:"true" default:"2s"`
	CalculatorRetries int           `split_words:"true" default:"0"`
	GSM8KTimeout      time.Duration `envconfig:"GSM8K_TIMEOUT" default:"30s"`
	GSM8KRetries      int           `envconfig:"GSM8K_RETRIES" default:"1"`
	WebSearchTimeout  time.Duration `split_words:"true" default:"20s"`
	WebSearchRetries  int           `split_words:"true" default:"2"`
	RAGTimeout        time.Duration `envconfig:"RAG_TIMEOUT" default:"20s"`
	RAGRetries        int           `envconfig:"RAG_RETRIES" default:"1"`
}

func (c Config) Policies() Policies {
	return Policies{
		Default: Policy{Timeout: 20 * time.Second, MaxRetries: 1, RetryDelay: c.RetryDelay},
		Tools: map[contractx.ToolName]Policy{
			contractx.ToolCalculator: {Timeout: c.CalculatorTimeout, MaxRetries: c.CalculatorRetries, RetryDelay: c.RetryDelay},
			contractx.ToolGSM8K:      {Timeout: c.GSM8KTimeout, MaxRetries: c.GSM8KRetries, RetryDelay: c.RetryDelay},
			contractx.ToolWebSearch:  {Timeout: c.WebSearchTimeout, MaxRetries: c.WebSearchRetries, RetryDelay: c.RetryDelay},
			contractx.ToolRAG:        {Timeout: c.RAGTimeout, MaxRetries: c.RAGRetries, RetryDelay: c.RetryDelay},
		},
	}
}

// Options converts the config into executor options.
func (c Config) Options() []Option {
	return []Option{
		WithPolicies(c.Policies()),
		WithDeadline(c.Deadline),
		WithMaxParallel(c.MaxParallel),
	}
}
