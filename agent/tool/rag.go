package tool

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/query-router/agent/contract"
	promptx "github.com/tanpawarit/query-router/agent/prompt"
	ragx "github.com/tanpawarit/query-router/agent/rag"
)

var ErrNoContext = errors.New("no relevant context found in local documents")

// Retriever returns the chunks most relevant to a question.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]ragx.Hit, error)
}

// RAG answers questions from the local document index. When the index has
// nothing relevant, or the model cannot answer from it, the question is
// handed to fallback (usually web_search).
type RAG struct {
	retriever Retriever
	model     model.BaseChatModel
	prompts   promptx.PromptSet
	topK      int
	fallback  contractx.Tool
	logger    zerolog.Logger
}

var _ contractx.Tool = (*RAG)(nil)

func NewRAG(retriever Retriever, m model.BaseChatModel, prompts promptx.PromptSet, topK int) *RAG {
	if topK <= 0 {
		topK = 4
	}
	return &RAG{
		retriever: retriever,
		model:     m,
		prompts:   prompts,
		topK:      topK,
		logger:    log.Logger,
	}
}

func (r *RAG) WithFallback(fallback contractx.Tool) *RAG {
	r.fallback = fallback
	return r
}

func (r *RAG) WithLogger(logger zerolog.Logger) *RAG {
	r.logger = logger
	return r
}

func (r *RAG) Name() contractx.ToolName {
	return contractx.ToolRAG
}

func (r *RAG) Invoke(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
	question := strings.TrimSpace(input)
	if question == "" {
		return "", contractx.Permanent(errors.New("question is empty"))
	}

	var hits []ragx.Hit
	if r.retriever != nil {
		var err error
		hits, err = r.retriever.Search(ctx, question, r.topK)
		if err != nil {
			return "", err
		}
	}
	if len(hits) == 0 {
		return r.fallbackOr(ctx, question, deps, "", ErrNoContext)
	}

	contexts := make([]string, 0, len(hits))
	for _, h := range hits {
		contexts = append(contexts, strings.TrimSpace(h.Text))
	}
	block := strings.Join(contexts, "\n---\n")
	if r.model == nil {
		return block, nil
	}

	answer, err := generate(ctx, r.model, r.prompts.RAG, map[string]any{
		"context":  block,
		"question": question,
	})
	if err != nil {
		return "", err
	}
	if answer == "" || isUnknownAnswer(answer) {
		return r.fallbackOr(ctx, question, deps, answer, ErrNoContext)
	}
	return answer, nil
}

func (r *RAG) fallbackOr(ctx context.Context, question string, deps contractx.ToolContext, answer string, cause error) (string, error) {
	if r.fallback == nil {
		if answer != "" {
			return answer, nil
		}
		return "", contractx.Permanent(cause)
	}
	r.logger.Debug().Str("question", question).Str("fallback", string(r.fallback.Name())).Msg("rag falling back")
	return r.fallback.Invoke(ctx, question, deps)
}

func isUnknownAnswer(answer string) bool {
	a := strings.ToLower(strings.ReplaceAll(answer, "’", "'"))
	return strings.Contains(a, "i don't know") || strings.Contains(a, "i do not know")
}
