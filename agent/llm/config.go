package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/query-router/agent/contract"
	openrouterx "github.com/tanpawarit/query-router/pkg/openrouter"
)

// Role names a component that talks to a model.
type Role string

const (
	RolePlanner Role = "planner"
	RoleGSM8K   Role = "gsm8k"
	RoleWeb     Role = "web"
	RoleRAG     Role = "rag"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" default:"https://api.groq.com/openai/v1"`
	APIKey             string        `envconfig:"API_KEY"`
	Model              string        `envconfig:"MODEL" default:"llama-3.1-8b-instant"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" default:"1024"`
	Temperature        float32       `envconfig:"TEMPERATURE" default:"0"`
	Timeout            time.Duration `envconfig:"TIMEOUT" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL"`
	SiteName           string        `envconfig:"SITE_NAME"`

	PlannerModel       string  `envconfig:"PLANNER_MODEL"`
	GSM8KModel         string  `envconfig:"GSM8K_MODEL"`
	WebModel           string  `envconfig:"WEB_MODEL"`
	RAGModel           string  `envconfig:"RAG_MODEL"`
	PlannerTemperature float32 `envconfig:"PLANNER_TEMPERATURE" default:"-1"`
	WebTemperature     float32 `envconfig:"WEB_TEMPERATURE" default:"-1"`
	RAGTemperature     float32 `envconfig:"RAG_TEMPERATURE" default:"-1"`
}

// Enabled reports whether a model endpoint is configured at all.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the client config for role, applying per-role
// model and temperature overrides. The gsm8k solver always runs at
// temperature 0.
func (c Config) OpenRouterFor(role Role) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(m string, t float32) {
		if v := strings.TrimSpace(m); v != "" {
			modelName = v
		}
		if t >= 0 {
			temp = t
		}
	}

	switch role {
	case RolePlanner:
		override(c.PlannerModel, c.PlannerTemperature)
	case RoleGSM8K:
		override(c.GSM8KModel, 0)
	case RoleWeb:
		override(c.WebModel, c.WebTemperature)
	case RoleRAG:
		override(c.RAGModel, c.RAGTemperature)
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
