package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

type Completion struct {
	Text     string
	Provider string
	Model    string
	Usage    Usage
	Attempts int
	Latency  time.Duration
}

// Provider is one remote model vendor. Complete makes exactly one request and
// must return an *Error on failure.
type Provider interface {
	Name() string
	Configured() bool
	Complete(ctx context.Context, model, prompt string) (Completion, error)
}

// ProviderOptions are shared by every provider constructor.
type ProviderOptions struct {
	HTTPClient  *http.Client
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// Observer receives one call per attempt. outcome is "ok" or an error kind.
type Observer interface {
	ObserveLLMAttempt(provider, outcome string, elapsed time.Duration)
}

type RetryConfig struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		BackoffBase:    time.Second,
		MaxBackoff:     30 * time.Second,
		AttemptTimeout: 120 * time.Second,
	}
}

// Backoff returns the wait before retry n (n starts at 1): base doubled n-1
// times, capped at MaxBackoff when set.
func (rc RetryConfig) Backoff(n int) time.Duration {
	d := rc.BackoffBase
	for i := 1; i < n; i++ {
		d *= 2
		if rc.MaxBackoff > 0 && d >= rc.MaxBackoff {
			return rc.MaxBackoff
		}
	}
	if rc.MaxBackoff > 0 && d > rc.MaxBackoff {
		return rc.MaxBackoff
	}
	return d
}

type Stats struct {
	TotalRequests int64            `json:"total_requests"`
	Successful    int64            `json:"successful_requests"`
	Failed        int64            `json:"failed_requests"`
	TotalTokens   int64            `json:"total_tokens"`
	ByProvider    map[string]int64 `json:"by_provider"`
}

type Client struct {
	registry  *Registry
	providers map[string]Provider
	retry     RetryConfig
	observer  Observer
	sleep     func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	stats Stats
}

func NewClient(registry *Registry, retry RetryConfig, providers ...Provider) *Client {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	c := &Client{
		registry:  registry,
		providers: make(map[string]Provider, len(providers)),
		retry:     retry,
		sleep:     sleepContext,
		stats:     Stats{ByProvider: make(map[string]int64)},
	}
	for _, p := range providers {
		c.providers[p.Name()] = p
	}
	return c
}

func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

func (c *Client) Registry() *Registry {
	return c.registry
}

// ProviderConfigured reports whether the named provider has credentials.
func (c *Client) ProviderConfigured(name string) bool {
	p, ok := c.providers[name]
	return ok && p.Configured()
}

// AvailableModels lists aliases that can actually be called.
func (c *Client) AvailableModels() []string {
	return c.registry.Available(c.ProviderConfigured)
}

// Call resolves alias and sends prompt, retrying transient failures and
// per-attempt timeouts with exponential backoff. Cancelling ctx stops the
// call without further attempts.
func (c *Client) Call(ctx context.Context, prompt, alias string) (Completion, error) {
	target, err := c.registry.Resolve(alias)
	if err != nil {
		return Completion{}, err
	}
	p, ok := c.providers[target.Provider]
	if !ok || !p.Configured() {
		return c.fail(NewError(KindUnconfigured, target.Provider, fmt.Errorf("no credentials for model %s", alias)))
	}

	start := time.Now()
	var lastErr *Error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.retry.Backoff(attempt - 1)
			log.Printf("llm retry provider=%s model=%s attempt=%d delay=%s err=%v", target.Provider, target.Model, attempt, delay, lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return c.fail(contextError(target.Provider, err))
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if c.retry.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.retry.AttemptTimeout)
		}
		log.Printf("llm call provider=%s model=%s attempt=%d prompt_chars=%d", target.Provider, target.Model, attempt, len(prompt))
		attemptStart := time.Now()
		comp, err := p.Complete(attemptCtx, target.Model, prompt)
		cancel()
		elapsed := time.Since(attemptStart)

		if err == nil {
			c.observe(target.Provider, "ok", elapsed)
			comp.Provider = target.Provider
			comp.Model = target.Model
			comp.Attempts = attempt
			comp.Latency = time.Since(start)
			log.Printf("llm response provider=%s model=%s size=%d tokens_in=%d tokens_out=%d latency=%s", target.Provider, target.Model, len(comp.Text), comp.Usage.InputTokens, comp.Usage.OutputTokens, comp.Latency)
			c.succeed(target.Provider, comp.Usage)
			return comp, nil
		}

		lastErr = classifyTransportError(target.Provider, err)
		c.observe(target.Provider, string(lastErr.Kind), elapsed)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return c.fail(contextError(target.Provider, ctxErr))
		}
		if !IsRetryable(lastErr) {
			log.Printf("llm error provider=%s model=%s kind=%s err=%v", target.Provider, target.Model, lastErr.Kind, lastErr.Err)
			return c.fail(lastErr)
		}
	}

	log.Printf("llm retries exhausted provider=%s model=%s attempts=%d err=%v", target.Provider, target.Model, c.retry.MaxAttempts, lastErr)
	return c.fail(lastErr)
}

func (c *Client) observe(provider, outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveLLMAttempt(provider, outcome, elapsed)
	}
}

func (c *Client) succeed(provider string, usage Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.TotalRequests++
	c.stats.Successful++
	c.stats.TotalTokens += usage.TotalTokens()
	c.stats.ByProvider[provider]++
}

func (c *Client) fail(err *Error) (Completion, error) {
	c.mu.Lock()
	c.stats.TotalRequests++
	c.stats.Failed++
	c.stats.ByProvider[err.Provider]++
	c.mu.Unlock()
	return Completion{}, err
}

// Stats returns a snapshot of the request counters since start.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.ByProvider = make(map[string]int64, len(c.stats.ByProvider))
	for k, v := range c.stats.ByProvider {
		out.ByProvider[k] = v
	}
	return out
}

// contextError reports a cancelled or expired caller context. It is never
// retried.
func contextError(provider string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, provider, err)
	}
	return NewError(KindCanceled, provider, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
