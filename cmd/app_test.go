package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/query-router/agent/contract"
	executorx "github.com/tanpawarit/query-router/agent/executor"
	ragx "github.com/tanpawarit/query-router/agent/rag"
	toolx "github.com/tanpawarit/query-router/agent/tool"
	tracex "github.com/tanpawarit/query-router/agent/trace"
)

func offlineConfig(t *testing.T) AppConfig {
	t.Helper()
	return AppConfig{
		Executor: executorx.Config{
			Deadline:          5 * time.Second,
			MaxParallel:       2,
			CalculatorTimeout: time.Second,
			GSM8KTimeout:      time.Second,
			WebSearchTimeout:  time.Second,
			RAGTimeout:        time.Second,
		},
		Trace: tracex.Config{Backend: tracex.BackendMemory},
		Web:   toolx.WebConfig{Provider: toolx.ProviderDuckDuckGo, MaxResults: 5},
		RAG:   ragx.Config{IndexDir: filepath.Join(t.TempDir(), "index"), TopK: 4, ChunkSize: 500, ChunkOverlap: 100},
	}
}

func TestNewAppOfflineAnswersArithmetic(t *testing.T) {
	t.Parallel()

	app, err := NewApp(context.Background(), offlineConfig(t), AppOptions{Offline: true})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close(context.Background())

	res, err := app.AnswerWithID(context.Background(), "offline-1", "12*7")
	if err != nil {
		t.Fatalf("AnswerWithID() error = %v", err)
	}
	if res.Answer.Text != "84" {
		t.Fatalf("answer = %q, want 84", res.Answer.Text)
	}

	rec, err := app.Store.FindByQueryID(context.Background(), "offline-1")
	if err != nil {
		t.Fatalf("FindByQueryID() error = %v", err)
	}
	if rec.FinalAnswer != "84" {
		t.Fatalf("recorded answer = %q", rec.FinalAnswer)
	}

	rr := httptest.NewRecorder()
	app.Metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	if !strings.Contains(body, `query_router_queries_total{outcome="answered"} 1`) {
		t.Fatalf("query counter missing:\n%s", body)
	}
	if !strings.Contains(body, `query_router_steps_total{status="succeeded",tool="calculator"} 1`) {
		t.Fatalf("step counter missing:\n%s", body)
	}
}

func TestNewAppRejectsUnknownTraceBackend(t *testing.T) {
	t.Parallel()

	cfg := offlineConfig(t)
	cfg.Trace.Backend = "cassandra"
	if _, err := NewApp(context.Background(), cfg, AppOptions{Offline: true}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("NewApp() error = %v, want ErrValidation", err)
	}
}

func TestAppCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	app, err := NewApp(context.Background(), offlineConfig(t), AppOptions{Offline: true})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	if err := app.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := app.Close(context.Background()); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
