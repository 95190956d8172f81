package analysis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"raicompanion/internal/classify"
	"raicompanion/internal/content"
	"raicompanion/internal/domain"
	"raicompanion/internal/format"
	"raicompanion/internal/integrations/llm"
	"raicompanion/internal/prompt"
	"raicompanion/internal/selection"
	"raicompanion/internal/storage/sqlite"
)

// ValidationError rejects a request before any model is contacted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

type Request struct {
	Text   string
	Model  string
	Mode   string
	Source string
}

type Classification struct {
	Category        domain.Category    `json:"category"`
	StyleFlags      []domain.StyleFlag `json:"style_flags"`
	EmotionalCharge int                `json:"emotional_charge"`
	Complexity      int                `json:"complexity"`
	Topics          []domain.Topic     `json:"topics"`
}

type Result struct {
	RequestID         string         `json:"request_id"`
	HTML              string         `json:"html"`
	Summary           string         `json:"summary"`
	Raw               string         `json:"raw"`
	Sections          int            `json:"sections"`
	ModuleCount       int            `json:"module_count"`
	PremiseCount      int            `json:"premise_count"`
	Model             string         `json:"model"`
	Provider          string         `json:"provider"`
	ProviderModel     string         `json:"provider_model"`
	Mode              domain.Mode    `json:"mode"`
	EntryLevel        domain.Level   `json:"entry_level"`
	ExecutionOrder    []string       `json:"execution_order"`
	Rationale         string         `json:"rationale"`
	Classification    Classification `json:"classification"`
	TokensUsed        int64          `json:"tokens_used"`
	Attempts          int            `json:"attempts"`
	LatencyMillis     int64          `json:"latency_ms"`
	SelectionFallback bool           `json:"selection_fallback,omitempty"`
	FormatFallback    bool           `json:"format_fallback,omitempty"`
}

// Completer is the slice of the LLM client the analyzer needs.
type Completer interface {
	Call(ctx context.Context, prompt, alias string) (llm.Completion, error)
	Registry() *llm.Registry
	AvailableModels() []string
}

type Recorder interface {
	ObserveSelection(modules int, fallback bool)
	ObserveAnalysis(mode, status string, elapsed time.Duration)
}

type Options struct {
	DefaultModel   string
	DefaultMode    domain.Mode
	MaxInputLength int
	MaxModules     int
}

// catalog pairs a library with the selection engine built over it so a
// reload swaps both at once.
type catalog struct {
	library *content.Library
	engine  *selection.Engine
}

type Analyzer struct {
	catalog atomic.Pointer[catalog]
	llm     Completer
	db      *sql.DB
	metrics Recorder
	opts    Options
	now     func() time.Time
}

// New wires the pipeline. db and metrics may be nil. library is expected to
// have passed selection.Validate.
func New(library *content.Library, client Completer, db *sql.DB, metrics Recorder, opts Options) *Analyzer {
	if opts.DefaultMode == "" {
		opts.DefaultMode = domain.ModeGuided
	}
	a := &Analyzer{
		llm:     client,
		db:      db,
		metrics: metrics,
		opts:    opts,
		now:     time.Now,
	}
	a.store(library)
	return a
}

// SetLibrary replaces the content library for subsequent requests after
// checking it against the selection tables. On error the current library
// stays. Requests already in flight finish against the library they started
// with.
func (a *Analyzer) SetLibrary(library *content.Library) error {
	if err := selection.Validate(library); err != nil {
		return err
	}
	a.store(library)
	return nil
}

func (a *Analyzer) store(library *content.Library) {
	a.catalog.Store(&catalog{library: library, engine: selection.New(library, a.opts.MaxModules)})
}

func (a *Analyzer) Library() *content.Library { return a.catalog.Load().library }
func (a *Analyzer) Options() Options          { return a.opts }
func (a *Analyzer) AvailableModels() []string { return a.llm.AvailableModels() }

// Analyze runs classify, select, compose, call and format for one request.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (Result, error) {
	start := a.now()
	mode, alias, text, err := a.validate(req)
	if err != nil {
		a.observeAnalysis(string(mode), "invalid", start)
		return Result{}, err
	}

	res := Result{RequestID: uuid.NewString(), Model: alias, Mode: mode}
	in, err := classify.Classify(text)
	if err != nil {
		a.observeAnalysis(string(mode), "invalid", start)
		return Result{}, &ValidationError{Field: "text", Message: err.Error()}
	}

	sel := a.catalog.Load().engine.Select(in, mode)
	if a.metrics != nil {
		a.metrics.ObserveSelection(len(sel.SelectedModules), sel.Fallback)
	}
	log.Printf("analysis select request_id=%s category=%s entry=%s modules=%d premises=%d fallback=%t",
		res.RequestID, in.Category, sel.EntryLevel, len(sel.ExecutionOrder), len(sel.ResolvedPremises), sel.Fallback)

	rec := domain.AnalysisRecord{
		RequestID:      res.RequestID,
		Source:         req.Source,
		InputText:      text,
		Category:       in.Category,
		EntryLevel:     sel.EntryLevel,
		Mode:           mode,
		ModelAlias:     alias,
		ModuleIDs:      strings.Join(sel.ExecutionOrder, ","),
		ModuleCount:    len(sel.ExecutionOrder),
		PremiseCount:   len(sel.ResolvedPremises),
		SelectionState: "scored",
		CreatedAt:      start,
	}
	if sel.Fallback {
		rec.SelectionState = "fallback"
	}

	comp, err := a.llm.Call(ctx, prompt.Compose(in, sel, mode), alias)
	if err != nil {
		kind := llm.KindOf(err)
		rec.Status = string(kind)
		rec.ErrorMessage = err.Error()
		var llmErr *llm.Error
		if errors.As(err, &llmErr) {
			rec.Provider = llmErr.Provider
		}
		rec.LatencyMillis = a.now().Sub(start).Milliseconds()
		a.record(rec)
		a.observeAnalysis(string(mode), string(kind), start)
		log.Printf("analysis failed request_id=%s model=%s kind=%s err=%v", res.RequestID, alias, kind, err)
		return Result{}, err
	}

	formatted := format.Format(comp.Text)
	res.HTML = formatted.HTML
	res.Summary = formatted.Summary
	res.Sections = formatted.Sections
	res.FormatFallback = formatted.Fallback
	res.Raw = comp.Text
	res.ModuleCount = len(sel.ExecutionOrder)
	res.PremiseCount = len(sel.ResolvedPremises)
	res.Provider = comp.Provider
	res.ProviderModel = comp.Model
	res.EntryLevel = sel.EntryLevel
	res.ExecutionOrder = sel.ExecutionOrder
	res.Rationale = sel.Rationale
	res.SelectionFallback = sel.Fallback
	res.Classification = Classification{
		Category:        in.Category,
		StyleFlags:      in.StyleFlags,
		EmotionalCharge: in.EmotionalCharge,
		Complexity:      in.Complexity,
		Topics:          in.TopicHints,
	}
	res.TokensUsed = comp.Usage.TotalTokens()
	res.Attempts = comp.Attempts
	res.LatencyMillis = a.now().Sub(start).Milliseconds()

	rec.Status = "ok"
	rec.Provider = comp.Provider
	rec.Model = comp.Model
	rec.TokensUsed = res.TokensUsed
	rec.LatencyMillis = res.LatencyMillis
	a.record(rec)
	a.observeAnalysis(string(mode), "ok", start)

	log.Printf("analysis done request_id=%s model=%s provider=%s sections=%d tokens=%d latency_ms=%d",
		res.RequestID, alias, comp.Provider, res.Sections, res.TokensUsed, res.LatencyMillis)
	return res, nil
}

func (a *Analyzer) validate(req Request) (domain.Mode, string, string, error) {
	mode := a.opts.DefaultMode
	if m := strings.ToLower(strings.TrimSpace(req.Mode)); m != "" {
		parsed, err := domain.ParseMode(m)
		if err != nil {
			return "", "", "", &ValidationError{Field: "mode", Message: err.Error()}
		}
		mode = parsed
	}

	alias := strings.ToLower(strings.TrimSpace(req.Model))
	if alias == "" {
		alias = a.opts.DefaultModel
	}
	if _, err := a.llm.Registry().Resolve(alias); err != nil {
		return mode, "", "", &ValidationError{
			Field:   "model",
			Message: fmt.Sprintf("unknown model %q; known models: %s", alias, strings.Join(a.llm.Registry().Aliases(), ", ")),
		}
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return mode, alias, "", &ValidationError{Field: "text", Message: "input text is empty"}
	}
	if a.opts.MaxInputLength > 0 {
		if n := utf8.RuneCountInString(text); n > a.opts.MaxInputLength {
			return mode, alias, "", &ValidationError{
				Field:   "text",
				Message: fmt.Sprintf("input is %d characters; the limit is %d", n, a.opts.MaxInputLength),
			}
		}
	}
	return mode, alias, text, nil
}

func (a *Analyzer) record(rec domain.AnalysisRecord) {
	if a.db == nil {
		return
	}
	if rec.Source == "" {
		rec.Source = "http"
	}
	if _, err := sqlite.InsertAnalysis(a.db, rec); err != nil {
		log.Printf("analysis history insert failed request_id=%s: %v", rec.RequestID, err)
	}
}

func (a *Analyzer) observeAnalysis(mode, status string, start time.Time) {
	if a.metrics != nil {
		a.metrics.ObserveAnalysis(mode, status, a.now().Sub(start))
	}
}

// Stats reads history for the trailing window. It returns zero stats when no
// database is attached.
func (a *Analyzer) Stats(window time.Duration) (domain.AnalysisStats, error) {
	if a.db == nil {
		return domain.AnalysisStats{}, nil
	}
	return sqlite.GetStats(a.db, a.now().Add(-window))
}
