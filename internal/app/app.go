package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"raicompanion/internal/analysis"
	"raicompanion/internal/config"
	"raicompanion/internal/content"
	"raicompanion/internal/domain"
	"raicompanion/internal/httpx"
	"raicompanion/internal/integrations/llm"
	"raicompanion/internal/metrics"
	"raicompanion/internal/selection"
	"raicompanion/internal/storage/sqlite"
)

const maxBackoff = 30 * time.Second

func Main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runtime holds everything a command needs once config is loaded.
type runtime struct {
	cfg      config.Config
	library  *content.Library
	client   *llm.Client
	metrics  *metrics.Recorder
	db       *sql.DB
	analyzer *analysis.Analyzer
}

func (rt *runtime) Close() {
	if rt.db != nil {
		rt.db.Close()
	}
}

type historyMode int

const (
	historyRequired historyMode = iota
	historyOptional
)

// setup loads config, the content library, the model providers and the
// history database. With historyOptional a database failure only disables
// history for the run.
func setup(ctx context.Context, history historyMode) (*runtime, error) {
	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. DefaultModel=%s DefaultMode=%s MaxInputLength=%d MaxModules=%d LLMTimeout=%s LLMMaxRetries=%d LLMBackoffBase=%s ExternalHTTPTimeout=%s",
		cfg.DefaultModel,
		cfg.DefaultMode,
		cfg.MaxInputLength,
		cfg.MaxModules,
		cfg.LLMTimeout(),
		cfg.LLMMaxRetries,
		cfg.LLMBackoffBase(),
		appliedHTTPTimeout,
	)

	library, err := loadLibrary(cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Content library v%d loaded: modules=%d premises=%d", library.Version(), library.ModuleCount(), library.PremiseCount())

	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := client.Registry().Resolve(cfg.DefaultModel); err != nil {
		return nil, fmt.Errorf("default_model: %w", err)
	}

	rt := &runtime{cfg: cfg, library: library, client: client, metrics: metrics.New()}
	client.SetObserver(rt.metrics)

	db, err := sqlite.InitDB(cfg.DBPath)
	switch {
	case err == nil:
		log.Printf("Database initialized at %s", cfg.DBPath)
		rt.db = db
	case history == historyRequired:
		return nil, fmt.Errorf("init database %s: %w", cfg.DBPath, err)
	default:
		log.Printf("History disabled for this run: %v", err)
	}

	rt.analyzer = analysis.New(library, client, rt.db, rt.metrics, analysis.Options{
		DefaultModel:   cfg.DefaultModel,
		DefaultMode:    domain.Mode(cfg.DefaultMode),
		MaxInputLength: cfg.MaxInputLength,
		MaxModules:     cfg.MaxModules,
	})
	return rt, nil
}

func loadLibrary(cfg config.Config) (*content.Library, error) {
	var (
		lib *content.Library
		err error
	)
	if cfg.LibraryPath != "" {
		lib, err = content.LoadFile(cfg.LibraryPath)
	} else {
		lib, err = content.Default()
	}
	if err != nil {
		return nil, err
	}
	if err := selection.Validate(lib); err != nil {
		return nil, fmt.Errorf("content library: %w", err)
	}
	return lib, nil
}

func newLLMClient(ctx context.Context, cfg config.Config) (*llm.Client, error) {
	overrides := make(map[string]llm.Target, len(cfg.Models))
	for alias, m := range cfg.Models {
		overrides[alias] = llm.Target{Provider: m.Provider, Model: m.Model}
	}
	registry, err := llm.NewRegistry(overrides)
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}

	opts := llm.ProviderOptions{
		HTTPClient:  httpx.NewLLMHTTPClient(cfg.LLMTimeout()),
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	}
	deepseekOpts := opts
	deepseekOpts.BaseURL = cfg.DeepSeekBaseURL

	gemini, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, opts)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	retry := llm.RetryConfig{
		MaxAttempts:    cfg.LLMMaxRetries,
		BackoffBase:    cfg.LLMBackoffBase(),
		MaxBackoff:     maxBackoff,
		AttemptTimeout: cfg.LLMTimeout(),
	}
	client := llm.NewClient(registry, retry,
		llm.NewAnthropic(cfg.AnthropicAPIKey, opts),
		llm.NewOpenAI(cfg.OpenAIAPIKey, opts),
		llm.NewDeepSeek(cfg.DeepSeekAPIKey, deepseekOpts),
		gemini,
	)
	log.Printf("LLM providers anthropic=%t openai=%t deepseek=%t gemini=%t",
		client.ProviderConfigured(llm.ProviderAnthropic),
		client.ProviderConfigured(llm.ProviderOpenAI),
		client.ProviderConfigured(llm.ProviderDeepSeek),
		client.ProviderConfigured(llm.ProviderGemini),
	)
	return client, nil
}
