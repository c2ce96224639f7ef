package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/query-router/agent/contract"
	promptx "github.com/tanpawarit/query-router/agent/prompt"
)

// generate formats pair with vars and returns the model's trimmed reply.
func generate(ctx context.Context, m model.BaseChatModel, pair promptx.Pair, vars map[string]any) (string, error) {
	tpl := einoprompt.FromMessages(schema.FString,
		schema.SystemMessage(pair.System),
		schema.UserMessage(pair.User),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%w: format prompt: %w", contractx.ErrPromptMissing, err)
	}
	out, err := m.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", contractx.ErrModelInvoke, err)
	}
	if out == nil {
		return "", fmt.Errorf("%w: empty response", contractx.ErrModelInvoke)
	}
	return strings.TrimSpace(out.Content), nil
}
