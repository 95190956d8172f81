package llm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnknownModel = errors.New("unknown model")

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderGemini    = "gemini"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

type Target struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
}

func (t Target) String() string {
	return t.Provider + "/" + t.Model
}

var builtinAliases = map[string]Target{
	"gpt-4":         {ProviderOpenAI, "gpt-4"},
	"gpt-4-turbo":   {ProviderOpenAI, "gpt-4-turbo-preview"},
	"gpt-4o":        {ProviderOpenAI, "gpt-4o"},
	"gpt-4o-mini":   {ProviderOpenAI, "gpt-4o-mini"},
	"gpt-3.5":       {ProviderOpenAI, "gpt-3.5-turbo"},
	"gpt-3.5-turbo": {ProviderOpenAI, "gpt-3.5-turbo"},
	"deepseek":      {ProviderDeepSeek, "deepseek-chat"},
	"deepseek-chat": {ProviderDeepSeek, "deepseek-chat"},
	"claude":        {ProviderAnthropic, defaultAnthropicModel},
	"claude-sonnet": {ProviderAnthropic, defaultAnthropicModel},
	"claude-3":      {ProviderAnthropic, "claude-3-sonnet-20240229"},
	"gemini":        {ProviderGemini, "gemini-2.5-pro"},
	"gemini-pro":    {ProviderGemini, "gemini-2.5-pro"},
	"gemini-flash":  {ProviderGemini, "gemini-2.5-flash"},
	"gemini-1.5":    {ProviderGemini, "gemini-1.5-pro-latest"},
}

// Registry maps user-facing model aliases to provider targets.
type Registry struct {
	aliases map[string]Target
}

// NewRegistry starts from the built-in aliases and applies overrides on top.
func NewRegistry(overrides map[string]Target) (*Registry, error) {
	r := &Registry{aliases: make(map[string]Target, len(builtinAliases)+len(overrides))}
	for alias, t := range builtinAliases {
		r.aliases[alias] = t
	}
	for alias, t := range overrides {
		alias = normalizeAlias(alias)
		if alias == "" {
			return nil, fmt.Errorf("model alias is empty")
		}
		switch t.Provider {
		case ProviderAnthropic, ProviderOpenAI, ProviderDeepSeek, ProviderGemini:
		default:
			return nil, fmt.Errorf("model %s: unknown provider %q", alias, t.Provider)
		}
		if strings.TrimSpace(t.Model) == "" {
			return nil, fmt.Errorf("model %s: model name is empty", alias)
		}
		r.aliases[alias] = t
	}
	return r, nil
}

func (r *Registry) Resolve(alias string) (Target, error) {
	t, ok := r.aliases[normalizeAlias(alias)]
	if !ok {
		return Target{}, fmt.Errorf("%w %q", ErrUnknownModel, alias)
	}
	return t, nil
}

func (r *Registry) Aliases() []string {
	out := make([]string, 0, len(r.aliases))
	for alias := range r.aliases {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// Available lists the aliases whose provider passes the configured check.
func (r *Registry) Available(configured func(provider string) bool) []string {
	var out []string
	for _, alias := range r.Aliases() {
		if configured(r.aliases[alias].Provider) {
			out = append(out, alias)
		}
	}
	return out
}

func normalizeAlias(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}
