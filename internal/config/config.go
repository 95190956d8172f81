package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	defaultLLMTemperature       = 0.3
	defaultHistoryPruneSchedule = "0 3 * * *"
	// PruneDisabled turns the retention job off.
	PruneDisabled = "off"
)

type ModelTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type Config struct {
	HTTPAddr         string   `yaml:"http_addr"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`

	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`

	DefaultModel   string `yaml:"default_model"`
	DefaultMode    string `yaml:"default_mode"`
	MaxInputLength int    `yaml:"max_input_length"`
	MaxModules     int    `yaml:"max_modules"`
	LibraryPath    string `yaml:"library_path"`

	AnthropicAPIKey string                 `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string                 `yaml:"openai_api_key"`
	DeepSeekAPIKey  string                 `yaml:"deepseek_api_key"`
	DeepSeekBaseURL string                 `yaml:"deepseek_base_url"`
	GeminiAPIKey    string                 `yaml:"gemini_api_key"`
	Models          map[string]ModelTarget `yaml:"models"`

	LLMTimeoutSeconds int      `yaml:"llm_timeout_seconds"`
	LLMMaxRetries     int      `yaml:"llm_max_retries"`
	LLMBackoffBaseMS  int      `yaml:"llm_backoff_base_ms"`
	LLMMaxTokens      int      `yaml:"llm_max_tokens"`
	LLMTemperatureRaw *float64 `yaml:"llm_temperature"`
	LLMTemperature    float64  `yaml:"-"` // resolved from LLMTemperatureRaw or env

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	DBPath               string `yaml:"db_path"`
	HistoryRetentionDays int    `yaml:"history_retention_days"`
	HistoryPruneSchedule string `yaml:"history_prune_schedule"`
}

func LoadConfig() Config {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.HTTPAddr, "HTTP_ADDR")
	if origins := os.Getenv("CORS_ALLOW_ORIGINS"); origins != "" {
		cfg.CORSAllowOrigins = splitList(origins)
	}
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.DefaultModel, "DEFAULT_MODEL")
	envOverride(&cfg.DefaultMode, "DEFAULT_MODE")
	envOverrideInt(&cfg.MaxInputLength, "MAX_INPUT_LENGTH")
	envOverrideInt(&cfg.MaxModules, "MAX_MODULES")
	envOverride(&cfg.LibraryPath, "LIBRARY_PATH")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.DeepSeekAPIKey, "DEEPSEEK_API_KEY")
	envOverride(&cfg.DeepSeekBaseURL, "DEEPSEEK_BASE_URL")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envOverrideInt(&cfg.LLMTimeoutSeconds, "LLM_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.LLMMaxRetries, "LLM_MAX_RETRIES")
	envOverrideInt(&cfg.LLMBackoffBaseMS, "LLM_BACKOFF_BASE_MS")
	envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideInt(&cfg.HistoryRetentionDays, "HISTORY_RETENTION_DAYS")
	envOverride(&cfg.HistoryPruneSchedule, "HISTORY_PRUNE_SCHEDULE")

	cfg.LLMTemperature = defaultLLMTemperature
	if cfg.LLMTemperatureRaw != nil {
		cfg.LLMTemperature = *cfg.LLMTemperatureRaw
	}
	envOverrideFloat(&cfg.LLMTemperature, "LLM_TEMPERATURE")

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if len(cfg.CORSAllowOrigins) == 0 {
		cfg.CORSAllowOrigins = []string{"http://localhost:3000"}
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude"
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = "guided"
	}
	if cfg.MaxInputLength == 0 {
		cfg.MaxInputLength = 10000
	}
	if cfg.MaxModules == 0 {
		cfg.MaxModules = 14
	}
	if cfg.DeepSeekBaseURL == "" {
		cfg.DeepSeekBaseURL = "https://api.deepseek.com/v1"
	}
	if cfg.LLMTimeoutSeconds == 0 {
		cfg.LLMTimeoutSeconds = 120
	}
	if cfg.LLMMaxRetries == 0 {
		cfg.LLMMaxRetries = 3
	}
	if cfg.LLMBackoffBaseMS == 0 {
		cfg.LLMBackoffBaseMS = 1000
	}
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = 4000
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./raicompanion.db"
	}
	if cfg.HistoryRetentionDays == 0 {
		cfg.HistoryRetentionDays = 30
	}
	if cfg.HistoryPruneSchedule == "" {
		cfg.HistoryPruneSchedule = defaultHistoryPruneSchedule
	}

	if (cfg.SlackBotToken == "") != (cfg.SlackAppToken == "") {
		log.Fatalf("Partial Slack config: slack_bot_token and slack_app_token are required together")
	}
	if !cfg.AnyProviderConfigured() {
		log.Printf("WARNING: No LLM provider key is configured. Every analysis will fail with an unconfigured error.")
	}

	switch cfg.DefaultMode {
	case "quick", "guided", "expert":
	default:
		log.Fatalf("invalid default_mode '%s': must be quick, guided or expert", cfg.DefaultMode)
	}
	if cfg.MaxInputLength < 100 {
		log.Fatalf("invalid max_input_length '%d': must be >= 100", cfg.MaxInputLength)
	}
	if cfg.MaxModules < 4 {
		log.Fatalf("invalid max_modules '%d': must be >= 4", cfg.MaxModules)
	}
	if cfg.LLMTimeoutSeconds < 5 {
		log.Fatalf("invalid llm_timeout_seconds '%d': must be >= 5", cfg.LLMTimeoutSeconds)
	}
	if cfg.LLMMaxRetries < 1 || cfg.LLMMaxRetries > 10 {
		log.Fatalf("invalid llm_max_retries '%d': must be between 1 and 10", cfg.LLMMaxRetries)
	}
	if cfg.LLMBackoffBaseMS < 0 {
		log.Fatalf("invalid llm_backoff_base_ms '%d': must be >= 0", cfg.LLMBackoffBaseMS)
	}
	if cfg.LLMMaxTokens < 1 {
		log.Fatalf("invalid llm_max_tokens '%d': must be >= 1", cfg.LLMMaxTokens)
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		log.Fatalf("invalid llm_temperature '%f': must be between 0 and 2", cfg.LLMTemperature)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.HistoryRetentionDays < 1 {
		log.Fatalf("invalid history_retention_days '%d': must be >= 1", cfg.HistoryRetentionDays)
	}
	if cfg.PruneEnabled() {
		if _, err := ParseSchedule(cfg.HistoryPruneSchedule); err != nil {
			log.Fatalf("invalid history_prune_schedule '%s': %v", cfg.HistoryPruneSchedule, err)
		}
	}
	if cfg.LibraryPath != "" {
		if _, err := os.Stat(cfg.LibraryPath); err != nil {
			log.Fatalf("invalid library_path '%s': %v", cfg.LibraryPath, err)
		}
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseSchedule parses a standard five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

func (c Config) AnyProviderConfigured() bool {
	return c.AnthropicAPIKey != "" || c.OpenAIAPIKey != "" || c.DeepSeekAPIKey != "" || c.GeminiAPIKey != ""
}

func (c Config) PruneEnabled() bool {
	return !strings.EqualFold(strings.TrimSpace(c.HistoryPruneSchedule), PruneDisabled)
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c Config) LLMBackoffBase() time.Duration {
	return time.Duration(c.LLMBackoffBaseMS) * time.Millisecond
}

func (c Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}
