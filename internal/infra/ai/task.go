package ai

import (
	"fmt"
	"net/url"
	"time"

	"newsfromai/internal/domain/entity"
)

// Provider selects the completion backend for a task.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Task names used by the ingestion pipeline.
const (
	TaskQueryGenerator = "query_generator"
	TaskNewsAnalyzer   = "news_analyzer"
	TaskRSSSummarizer  = "rss_summarizer"
	TaskCommenter      = "commenter"
)

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 180 * time.Second

// TaskConfig is the closed per-task AI configuration. APIKey is never read
// from the configuration file; it is injected from the environment.
type TaskConfig struct {
	Name        string        `yaml:"-"`
	Provider    Provider      `yaml:"provider"`
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"-"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	JSONMode    bool          `yaml:"json_mode"`
	Timeout     time.Duration `yaml:"timeout"`
	Disabled    bool          `yaml:"disabled"`
}

// DefaultTaskConfig returns the provider-independent defaults.
func DefaultTaskConfig() TaskConfig {
	return TaskConfig{
		Provider:    ProviderOpenAI,
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   2048,
		Timeout:     DefaultTimeout,
	}
}

// Validate checks the structural fields. Missing credentials are reported
// separately by HasCredentials so a task can be loaded but disabled.
func (c TaskConfig) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("task %q: unknown provider %q: %w", c.Name, c.Provider, entity.ErrConfiguration)
	}
	if c.Model == "" {
		return fmt.Errorf("task %q: model is required: %w", c.Name, entity.ErrConfiguration)
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("task %q: invalid endpoint: %w", c.Name, entity.ErrConfiguration)
		}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("task %q: temperature %.2f out of range [0, 2]: %w", c.Name, c.Temperature, entity.ErrConfiguration)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("task %q: max_tokens must be positive: %w", c.Name, entity.ErrConfiguration)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("task %q: timeout must be positive: %w", c.Name, entity.ErrConfiguration)
	}
	return nil
}

// HasCredentials reports whether an API key is present.
func (c TaskConfig) HasCredentials() bool {
	return c.APIKey != ""
}

// Ready reports whether the task can be called at all.
func (c TaskConfig) Ready() bool {
	return !c.Disabled && c.HasCredentials() && c.Validate() == nil
}

// DefaultKeyEnv is the environment variable holding the provider's key.
func DefaultKeyEnv(p Provider) string {
	switch p {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// KeyEnv returns APIKeyEnv, or the provider default.
func (c TaskConfig) KeyEnv() string {
	if c.APIKeyEnv != "" {
		return c.APIKeyEnv
	}
	return DefaultKeyEnv(c.Provider)
}
