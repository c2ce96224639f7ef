package cmd

import (
	"fmt"
	"time"

	plannerx "github.com/tanpawarit/query-router/agent/agents/planner"
	executorx "github.com/tanpawarit/query-router/agent/executor"
	llmx "github.com/tanpawarit/query-router/agent/llm"
	ragx "github.com/tanpawarit/query-router/agent/rag"
	toolx "github.com/tanpawarit/query-router/agent/tool"
	tracex "github.com/tanpawarit/query-router/agent/trace"
	configx "github.com/tanpawarit/query-router/pkg/config"
	qstashx "github.com/tanpawarit/query-router/pkg/qstash"
	telemetryx "github.com/tanpawarit/query-router/pkg/telemetry"
)

type ServerConfig struct {
	Addr            string        `split_words:"true" default:":8080"`
	ReadTimeout     time.Duration `split_words:"true" default:"10s"`
	WriteTimeout    time.Duration `split_words:"true" default:"120s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

type AppConfig struct {
	LLM       llmx.Config
	Planner   plannerx.Config
	Executor  executorx.Config
	Trace     tracex.Config
	QStash    qstashx.Config
	Web       toolx.WebConfig
	RAG       ragx.Config
	Server    ServerConfig
	Telemetry telemetryx.Config
}

// LoadConfig reads every section from the environment, each under its own
// prefix.
func LoadConfig() (AppConfig, error) {
	var cfg AppConfig
	loaders := []func() error{
		load(&cfg.LLM, "LLM"),
		load(&cfg.Planner, "PLANNER"),
		load(&cfg.Executor, "EXECUTOR"),
		load(&cfg.Trace, "TRACE"),
		load(&cfg.QStash, "QSTASH"),
		load(&cfg.Web, "WEB"),
		load(&cfg.RAG, "RAG"),
		load(&cfg.Server, "SERVER"),
		load(&cfg.Telemetry, "OTEL"),
	}
	for _, fn := range loaders {
		if err := fn(); err != nil {
			return AppConfig{}, err
		}
	}
	return cfg, nil
}

func load[T any](dst *T, prefix string) func() error {
	return func() error {
		v, err := configx.New[T](prefix)
		if err != nil {
			return fmt.Errorf("load %s config: %w", prefix, err)
		}
		*dst = *v
		return nil
	}
}
