package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"raicompanion/internal/content"
	"raicompanion/internal/domain"
	"raicompanion/internal/integrations/llm"
	"raicompanion/internal/storage/sqlite"
)

type scriptedProvider struct {
	mu         sync.Mutex
	configured bool
	err        error
	reply      string
	prompts    []string
}

func (p *scriptedProvider) Name() string     { return llm.ProviderAnthropic }
func (p *scriptedProvider) Configured() bool { return p.configured }

func (p *scriptedProvider) Complete(ctx context.Context, model, prompt string) (llm.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return llm.Completion{}, p.err
	}
	return llm.Completion{Text: p.reply, Usage: llm.Usage{InputTokens: 1200, OutputTokens: 300}}, nil
}

type countingRecorder struct {
	mu        sync.Mutex
	analyses  map[string]int
	fallbacks int
}

func (r *countingRecorder) ObserveSelection(modules int, fallback bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fallback {
		r.fallbacks++
	}
}

func (r *countingRecorder) ObserveAnalysis(mode, status string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses[mode+"/"+status]++
}

const mariupol = "On March 15, 2024, reports confirmed that 50 civilians were killed in Mariupol bombing."

func newTestAnalyzer(t *testing.T, p *scriptedProvider) (*Analyzer, *countingRecorder) {
	t.Helper()
	lib, err := content.Default()
	if err != nil {
		t.Fatalf("content.Default: %v", err)
	}
	reg, err := llm.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	client := llm.NewClient(reg, llm.RetryConfig{MaxAttempts: 2, AttemptTimeout: time.Second}, p)

	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "analysis-test.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	rec := &countingRecorder{analyses: make(map[string]int)}
	a := New(lib, client, db, rec, Options{
		DefaultModel:   "claude",
		DefaultMode:    domain.ModeGuided,
		MaxInputLength: 200,
		MaxModules:     14,
	})
	return a, rec
}

func TestAnalyzeSuccess(t *testing.T) {
	p := &scriptedProvider{
		configured: true,
		reply:      "# Report\nThis analysis examines the claim about the theater.\n\n- point one\n- point two",
	}
	a, rec := newTestAnalyzer(t, p)

	res, err := a.Analyze(context.Background(), Request{Text: "  " + mariupol + "  ", Source: "cli"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if res.RequestID == "" {
		t.Fatal("missing request id")
	}
	if res.Model != "claude" || res.Provider != llm.ProviderAnthropic || res.Mode != domain.ModeGuided {
		t.Fatalf("unexpected model metadata: %s %s %s", res.Model, res.Provider, res.Mode)
	}
	wantOrder := []string{"CL-0", "FL-1", "FL-3", "FL-7", "FL-8", "NL-1", "SL-1", "SL-4"}
	if diff := cmp.Diff(wantOrder, res.ExecutionOrder); diff != "" {
		t.Fatalf("execution order mismatch (-want +got):\n%s", diff)
	}
	if res.ModuleCount != len(wantOrder) || res.PremiseCount == 0 {
		t.Fatalf("unexpected counts: modules=%d premises=%d", res.ModuleCount, res.PremiseCount)
	}
	if res.EntryLevel != domain.LevelFact || res.Classification.Category != domain.CategoryFactualClaim {
		t.Fatalf("unexpected classification: %+v entry=%s", res.Classification, res.EntryLevel)
	}
	if !strings.Contains(res.HTML, `<div class="rai-analysis-container">`) || !strings.Contains(res.HTML, "<li>point one</li>") {
		t.Fatalf("unexpected html: %s", res.HTML)
	}
	if res.Summary != "This analysis examines the claim about the theater." {
		t.Fatalf("unexpected summary: %q", res.Summary)
	}
	if res.TokensUsed != 1500 || res.Attempts != 1 {
		t.Fatalf("unexpected usage: tokens=%d attempts=%d", res.TokensUsed, res.Attempts)
	}

	if len(p.prompts) != 1 || !strings.Contains(p.prompts[0], mariupol) {
		t.Fatal("prompt did not carry the trimmed input")
	}

	rows, err := sqlite.RecentAnalyses(a.db, 5)
	if err != nil {
		t.Fatalf("RecentAnalyses: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one history row, got %d", len(rows))
	}
	row := rows[0]
	if row.RequestID != res.RequestID || row.Status != "ok" || row.Source != "cli" || row.TokensUsed != 1500 {
		t.Fatalf("unexpected history row: %+v", row)
	}
	if row.ModuleIDs != strings.Join(wantOrder, ",") {
		t.Fatalf("unexpected module ids: %q", row.ModuleIDs)
	}
	if rec.analyses["guided/ok"] != 1 {
		t.Fatalf("metrics not recorded: %v", rec.analyses)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"empty text", Request{Text: "   \n\t"}, "text"},
		{"too long", Request{Text: strings.Repeat("a", 201)}, "text"},
		{"bad mode", Request{Text: mariupol, Mode: "turbo"}, "mode"},
		{"unknown model", Request{Text: mariupol, Model: "gpt-9"}, "model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{configured: true, reply: "ok"}
			a, rec := newTestAnalyzer(t, p)

			_, err := a.Analyze(context.Background(), tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("field = %q, want %q", verr.Field, tt.field)
			}
			if len(p.prompts) != 0 {
				t.Fatal("provider must not be called for invalid requests")
			}
			if rows, _ := sqlite.RecentAnalyses(a.db, 5); len(rows) != 0 {
				t.Fatalf("invalid requests must not be stored, got %d rows", len(rows))
			}
			if len(rec.analyses) != 1 {
				t.Fatalf("expected one invalid observation, got %v", rec.analyses)
			}
		})
	}
}

func TestAnalyzeExactLengthLimitAccepted(t *testing.T) {
	p := &scriptedProvider{configured: true, reply: "fine"}
	a, _ := newTestAnalyzer(t, p)
	if _, err := a.Analyze(context.Background(), Request{Text: strings.Repeat("é", 200)}); err != nil {
		t.Fatalf("input at the limit should pass: %v", err)
	}
}

func TestAnalyzeRateLimitedIsTerminal(t *testing.T) {
	p := &scriptedProvider{
		configured: true,
		err:        llm.NewError(llm.KindRateLimited, llm.ProviderAnthropic, errors.New("429 slow down")),
	}
	a, rec := newTestAnalyzer(t, p)

	_, err := a.Analyze(context.Background(), Request{Text: mariupol, Mode: "quick"})
	if llm.KindOf(err) != llm.KindRateLimited {
		t.Fatalf("expected rate limited error, got %v", err)
	}
	if !strings.Contains(err.Error(), llm.ProviderAnthropic) {
		t.Fatalf("error should name the provider: %v", err)
	}
	if len(p.prompts) != 1 {
		t.Fatalf("rate limited must not be retried, got %d calls", len(p.prompts))
	}
	rows, _ := sqlite.RecentAnalyses(a.db, 5)
	if len(rows) != 1 || rows[0].Status != "rate_limited" || rows[0].Provider != llm.ProviderAnthropic {
		t.Fatalf("unexpected history rows: %+v", rows)
	}
	if rec.analyses["quick/rate_limited"] != 1 {
		t.Fatalf("metrics not recorded: %v", rec.analyses)
	}
}

func TestAnalyzeUnconfiguredProvider(t *testing.T) {
	p := &scriptedProvider{configured: false}
	a, _ := newTestAnalyzer(t, p)

	_, err := a.Analyze(context.Background(), Request{Text: mariupol})
	if llm.KindOf(err) != llm.KindUnconfigured {
		t.Fatalf("expected unconfigured error, got %v", err)
	}
	if len(p.prompts) != 0 {
		t.Fatal("unconfigured provider must not be called")
	}
}

func TestAnalyzeWithoutDatabase(t *testing.T) {
	lib, _ := content.Default()
	reg, _ := llm.NewRegistry(nil)
	p := &scriptedProvider{configured: true, reply: "plain text answer"}
	a := New(lib, llm.NewClient(reg, llm.RetryConfig{MaxAttempts: 1}, p), nil, nil, Options{DefaultModel: "claude", MaxModules: 14})

	res, err := a.Analyze(context.Background(), Request{Text: "Why did the ministry publish these figures?"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Mode != domain.ModeGuided {
		t.Fatalf("default mode = %s", res.Mode)
	}
	stats, err := a.Stats(7 * 24 * time.Hour)
	if err != nil || stats.TotalAnalyses != 0 {
		t.Fatalf("expected empty stats without db, got %+v err=%v", stats, err)
	}
}

func TestSetLibrarySwapsCatalog(t *testing.T) {
	p := &scriptedProvider{configured: true, reply: "ok"}
	a, _ := newTestAnalyzer(t, p)

	data, err := os.ReadFile(filepath.Join("..", "content", "library.yaml"))
	if err != nil {
		t.Fatalf("read library: %v", err)
	}
	lib, err := content.Load([]byte(strings.Replace(string(data), "version: 3", "version: 7", 1)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := a.SetLibrary(lib); err != nil {
		t.Fatalf("SetLibrary: %v", err)
	}

	if a.Library().Version() != 7 {
		t.Fatalf("library version = %d, want 7", a.Library().Version())
	}
	res, err := a.Analyze(context.Background(), Request{Text: mariupol})
	if err != nil {
		t.Fatalf("Analyze after swap: %v", err)
	}
	if res.ExecutionOrder[0] != "CL-0" {
		t.Fatalf("unexpected order after swap: %v", res.ExecutionOrder)
	}
}

func TestSetLibraryRejectsIncompleteLibrary(t *testing.T) {
	p := &scriptedProvider{configured: true, reply: "ok"}
	a, _ := newTestAnalyzer(t, p)

	sparse, err := content.Load([]byte(`
version: 9
dimensions:
  - id: D1
    name: One
    premises:
      - id: D1.1
        title: First
        content: body
levels:
  - level: cross-cutting
    modules:
      - id: CL-0
        name: Normalize
        anchors: [D1.1]
  - level: fact
    modules:
      - id: FL-2
        name: Fact
  - level: narrative
    modules:
      - id: NL-2
        name: Story
  - level: system
    modules:
      - id: SL-2
        name: System
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := a.SetLibrary(sparse); err == nil {
		t.Fatal("expected an incomplete library to be rejected")
	}
	if a.Library().Version() != 3 {
		t.Fatalf("library replaced despite rejection: v%d", a.Library().Version())
	}

	res, err := a.Analyze(context.Background(), Request{Text: "The deep state controls government policy through unelected bureaucrats."})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.SelectionFallback || len(res.ExecutionOrder) < 4 {
		t.Fatalf("selection degraded after rejected swap: %v", res.ExecutionOrder)
	}
}
