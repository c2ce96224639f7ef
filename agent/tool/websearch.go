package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/query-router/agent/contract"
	promptx "github.com/tanpawarit/query-router/agent/prompt"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// NoWebResults is the value returned when a search yields nothing usable.
const NoWebResults = "No relevant web results found."

var ErrSearchNotConfigured = errors.New("web search provider is not configured")

const (
	ProviderDuckDuckGo = "duckduckgo"
	ProviderTavily     = "tavily"
)

// WebConfig selects and configures the search provider.
type WebConfig struct {
	Provider     string        `envconfig:"PROVIDER" default:"duckduckgo"`
	TavilyAPIKey string        `envconfig:"TAVILY_API_KEY"`
	TavilyURL    string        `envconfig:"TAVILY_URL" default:"https://api.tavily.com"`
	MaxResults   int           `envconfig:"MAX_RESULTS" default:"5"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"15s"`
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Searcher queries a web search backend.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)
}

// NewSearcher builds the provider named in cfg.
func NewSearcher(cfg WebConfig) (Searcher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderDuckDuckGo:
		return NewDuckDuckGo(cfg.MaxResults)
	case ProviderTavily:
		if strings.TrimSpace(cfg.TavilyAPIKey) == "" {
			return nil, fmt.Errorf("%w: tavily api key is required", ErrSearchNotConfigured)
		}
		return NewTavily(cfg.TavilyURL, cfg.TavilyAPIKey, &http.Client{Timeout: cfg.Timeout}), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrSearchNotConfigured, cfg.Provider)
	}
}

type DuckDuckGo struct {
	client *duckduckgo.Tool
}

func NewDuckDuckGo(maxResults int) (*DuckDuckGo, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	return &DuckDuckGo{client: ddg}, nil
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	raw, err := d.client.Call(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}
	results := parseDuckDuckGo(raw)
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// parseDuckDuckGo reads the "Title:/Description:/URL:" blocks the
// langchaingo tool renders.
func parseDuckDuckGo(raw string) []SearchResult {
	var results []SearchResult
	for _, block := range strings.Split(raw, "\n\n") {
		var r SearchResult
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Title:"):
				r.Title = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
			case strings.HasPrefix(line, "Description:"):
				r.Content = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
			case strings.HasPrefix(line, "URL:"):
				r.URL = strings.TrimSpace(strings.TrimPrefix(line, "URL:"))
			}
		}
		if r.Title != "" || r.Content != "" {
			results = append(results, r)
		}
	}
	return results
}

type Tavily struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewTavily(baseURL, apiKey string, httpClient *http.Client) *Tavily {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.tavily.com"
	}
	return &Tavily{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

func (t *Tavily) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	body, err := json.Marshal(map[string]any{
		"api_key":     t.apiKey,
		"query":       query,
		"max_results": k,
	})
	if err != nil {
		return nil, fmt.Errorf("tavily encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tavily create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("tavily search error (%d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			return nil, contractx.Permanent(err)
		}
		return nil, err
	}

	var decoded struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("tavily decode response: %w", err)
	}
	return decoded.Results, nil
}

// WebSearch answers world-fact questions from search snippets, optionally
// synthesising a short cited answer with a chat model.
type WebSearch struct {
	searcher   Searcher
	model      model.BaseChatModel
	prompts    promptx.PromptSet
	maxResults int
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
}

var _ contractx.Tool = (*WebSearch)(nil)

// NewWebSearch returns the web_search tool. m may be nil, in which case the
// numbered snippets are returned as-is.
func NewWebSearch(searcher Searcher, m model.BaseChatModel, prompts promptx.PromptSet, maxResults int) *WebSearch {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearch{
		searcher:   searcher,
		model:      m,
		prompts:    prompts,
		maxResults: maxResults,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     log.Logger,
	}
}

func (w *WebSearch) WithLogger(logger zerolog.Logger) *WebSearch {
	w.logger = logger
	return w
}

func (w *WebSearch) Name() contractx.ToolName {
	return contractx.ToolWebSearch
}

func (w *WebSearch) Invoke(ctx context.Context, input string, _ contractx.ToolContext) (string, error) {
	if w.searcher == nil {
		return "", contractx.Permanent(ErrSearchNotConfigured)
	}
	query := strings.TrimSpace(input)
	if query == "" {
		return "", contractx.Permanent(errors.New("search query is empty"))
	}

	results, err := w.searcher.Search(ctx, query, w.maxResults)
	if err != nil {
		return "", err
	}
	snippets := w.snippets(results)
	if len(snippets) == 0 {
		return NoWebResults, nil
	}
	block := strings.Join(snippets, "\n")
	if w.model == nil {
		return block, nil
	}

	answer, err := generate(ctx, w.model, w.prompts.WebSynthesis, map[string]any{
		"results":  block,
		"question": query,
	})
	if err != nil {
		w.logger.Warn().Err(err).Str("query", query).Msg("web synthesis failed, returning snippets")
		return block, nil
	}
	if answer == "" {
		return block, nil
	}
	return answer, nil
}

func (w *WebSearch) snippets(results []SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		if len(out) == w.maxResults {
			break
		}
		title := cleanText(w.sanitizer, r.Title)
		content := cleanText(w.sanitizer, r.Content)
		if title == "" && content == "" {
			continue
		}
		out = append(out, fmt.Sprintf("[%d] %s: %s", len(out)+1, title, content))
	}
	return out
}

// cleanText strips markup and collapses whitespace.
func cleanText(p *bluemonday.Policy, s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(p.Sanitize(s))), " ")
}
