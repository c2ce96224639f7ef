package executor

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type Option func(*Executor)

func WithPolicies(p Policies) Option {
	return func(e *Executor) {
		e.policies = p
	}
}

// WithDeadline bounds a whole plan run. Zero disables the bound.
func WithDeadline(d time.Duration) Option {
	return func(e *Executor) {
		e.deadline = d
	}
}

// WithMaxParallel caps concurrently running steps. Zero means unlimited.
func WithMaxParallel(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.maxParallel = n
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(e *Executor) {
		e.hooks = h
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}
