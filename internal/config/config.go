// Package config loads the pipeline configuration: a YAML file holding the
// interest statement, AI task settings, prompts, search settings and feeds,
// overlaid with secrets from the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/infra/ai"
)

// DefaultPath is used when NEWSFROMAI_CONFIG is unset.
const DefaultPath = "config.yaml"

// Environment variables for secrets. They are never read from the file.
const (
	EnvConfigPath     = "NEWSFROMAI_CONFIG"
	EnvSearchAPIKey   = "SEARCH_API_KEY"
	EnvSearchEngineID = "SEARCH_ENGINE_ID"
)

// Config is the resolved pipeline configuration.
type Config struct {
	Interest string
	Keywords KeywordConfig
	Tasks    map[string]ai.TaskConfig
	Prompts  map[string]ai.Prompt
	Search   SearchConfig
	Feeds    []FeedConfig
	Pipeline PipelineConfig
}

// KeywordConfig bounds the keyword generation step.
type KeywordConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// SearchConfig configures the search API reader.
type SearchConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	EngineID          string        `yaml:"engine_id"`
	APIKey            string        `yaml:"-"`
	ResultsPerKeyword int           `yaml:"results_per_keyword"`
	DateRestrict      string        `yaml:"date_restrict"`
	Timeout           time.Duration `yaml:"timeout"`
	Disabled          bool          `yaml:"disabled"`
}

// Ready reports whether search can run.
func (s SearchConfig) Ready() bool {
	return !s.Disabled && s.APIKey != "" && s.Endpoint != ""
}

// FeedConfig is one configured RSS/Atom feed.
type FeedConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
	MaxItems int    `yaml:"max_items"`
	Disabled bool   `yaml:"disabled"`
}

// Entity converts the configured feed to its stored form.
func (f FeedConfig) Entity() *entity.Feed {
	return &entity.Feed{
		Name:     f.Name,
		URL:      f.URL,
		Category: f.Category,
		MaxItems: f.MaxItems,
		Active:   !f.Disabled,
	}
}

// PipelineConfig holds delays, limits and breaker settings for a run.
type PipelineConfig struct {
	SearchDelay      time.Duration `yaml:"search_delay"`
	ItemDelay        time.Duration `yaml:"item_delay"`
	FeedDelay        time.Duration `yaml:"feed_delay"`
	MaxContentRunes  int           `yaml:"max_content_runes"`
	EnrichBelowRunes int           `yaml:"enrich_below_runes"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	Comment          bool          `yaml:"comment"`
}

// fileConfig mirrors the YAML document. Task entries are kept as nodes so
// each one can be decoded on top of the shared defaults.
type fileConfig struct {
	Interest string               `yaml:"interest"`
	Keywords KeywordConfig        `yaml:"keywords"`
	AI       fileAI               `yaml:"ai"`
	Prompts  map[string]ai.Prompt `yaml:"prompts"`
	Search   SearchConfig         `yaml:"search"`
	Feeds    []FeedConfig         `yaml:"feeds"`
	Pipeline PipelineConfig       `yaml:"pipeline"`
}

type fileAI struct {
	Defaults ai.TaskConfig        `yaml:"defaults"`
	Tasks    map[string]yaml.Node `yaml:"tasks"`
}

// pipelineTasks are always configured; commenter only when listed.
var pipelineTasks = []string{ai.TaskQueryGenerator, ai.TaskNewsAnalyzer, ai.TaskRSSSummarizer}

func defaultFile() fileConfig {
	return fileConfig{
		Keywords: KeywordConfig{Min: 1, Max: 5},
		AI:       fileAI{Defaults: ai.DefaultTaskConfig()},
		Search: SearchConfig{
			Endpoint:          "https://www.googleapis.com/customsearch/v1",
			ResultsPerKeyword: 10,
			DateRestrict:      "d7",
			Timeout:           20 * time.Second,
		},
		Pipeline: PipelineConfig{
			SearchDelay:      time.Second,
			ItemDelay:        time.Second,
			FeedDelay:        2 * time.Second,
			MaxContentRunes:  12000,
			EnrichBelowRunes: 400,
			BreakerThreshold: 3,
			BreakerCooldown:  10 * time.Minute,
		},
	}
}

// PathFromEnv returns NEWSFROMAI_CONFIG or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML file at path and overlays environment secrets.
// The path is expected to come from a trusted source (flag or env).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, os.Getenv)
}

// Parse decodes a YAML document. getenv supplies secrets.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	fc := defaultFile()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		Interest: strings.TrimSpace(fc.Interest),
		Keywords: fc.Keywords,
		Tasks:    make(map[string]ai.TaskConfig),
		Prompts:  ai.DefaultPrompts(),
		Search:   fc.Search,
		Feeds:    fc.Feeds,
		Pipeline: fc.Pipeline,
	}

	names := append([]string(nil), pipelineTasks...)
	if _, ok := fc.AI.Tasks[ai.TaskCommenter]; ok {
		names = append(names, ai.TaskCommenter)
	}
	for name := range fc.AI.Tasks {
		if !knownTask(name) {
			return nil, fmt.Errorf("ai.tasks: unknown task %q: %w", name, entity.ErrConfiguration)
		}
	}
	for _, name := range names {
		task := fc.AI.Defaults
		if node, ok := fc.AI.Tasks[name]; ok {
			if err := node.Decode(&task); err != nil {
				return nil, fmt.Errorf("ai.tasks.%s: %w", name, err)
			}
		}
		task.Name = name
		task.APIKey = strings.TrimSpace(getenv(task.KeyEnv()))
		cfg.Tasks[name] = task
	}

	for name, p := range fc.Prompts {
		if !knownTask(name) {
			return nil, fmt.Errorf("prompts: unknown task %q: %w", name, entity.ErrConfiguration)
		}
		def := cfg.Prompts[name]
		if p.System != "" {
			def.System = p.System
		}
		if p.User != "" {
			def.User = p.User
		}
		cfg.Prompts[name] = def
	}

	cfg.Search.APIKey = strings.TrimSpace(getenv(EnvSearchAPIKey))
	if id := strings.TrimSpace(getenv(EnvSearchEngineID)); id != "" {
		cfg.Search.EngineID = id
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func knownTask(name string) bool {
	switch name {
	case ai.TaskQueryGenerator, ai.TaskNewsAnalyzer, ai.TaskRSSSummarizer, ai.TaskCommenter:
		return true
	}
	return false
}

// Validate checks structural settings. Missing credentials are not an error
// here: the phase that needs them is disabled at run time.
func (c *Config) Validate() error {
	var errs []error
	if c.Keywords.Min < 1 || c.Keywords.Max < c.Keywords.Min || c.Keywords.Max > 10 {
		errs = append(errs, fmt.Errorf("keywords: need 1 <= min <= max <= 10, got min=%d max=%d", c.Keywords.Min, c.Keywords.Max))
	}
	for _, name := range sortedTaskNames(c.Tasks) {
		if err := c.Tasks[name].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Search.ResultsPerKeyword < 1 || c.Search.ResultsPerKeyword > 10 {
		errs = append(errs, fmt.Errorf("search.results_per_keyword must be 1..10, got %d", c.Search.ResultsPerKeyword))
	}
	if c.Search.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("search.timeout must be positive"))
	}
	seen := make(map[string]bool, len(c.Feeds))
	for i, f := range c.Feeds {
		fe := f.Entity()
		if err := fe.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("feeds[%d]: %w", i, err))
			continue
		}
		key := entity.NormalizeURL(f.URL)
		if seen[key] {
			errs = append(errs, fmt.Errorf("feeds[%d]: duplicate url %s", i, f.URL))
		}
		seen[key] = true
	}
	p := c.Pipeline
	if p.SearchDelay < 0 || p.ItemDelay < 0 || p.FeedDelay < 0 {
		errs = append(errs, fmt.Errorf("pipeline: delays must be non-negative"))
	}
	if p.MaxContentRunes < 1000 {
		errs = append(errs, fmt.Errorf("pipeline.max_content_runes must be >= 1000, got %d", p.MaxContentRunes))
	}
	if p.BreakerThreshold < 1 || p.BreakerCooldown <= 0 {
		errs = append(errs, fmt.Errorf("pipeline: breaker threshold and cooldown must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w: %w", errors.Join(errs...), entity.ErrConfiguration)
	}
	return nil
}

func sortedTaskNames(m map[string]ai.TaskConfig) []string {
	return slices.Sorted(maps.Keys(m))
}

// Task returns the named task configuration.
func (c *Config) Task(name string) (ai.TaskConfig, bool) {
	t, ok := c.Tasks[name]
	return t, ok
}

// ActiveFeeds returns the configured feeds that are not disabled.
func (c *Config) ActiveFeeds() []*entity.Feed {
	out := make([]*entity.Feed, 0, len(c.Feeds))
	for _, f := range c.Feeds {
		if !f.Disabled {
			out = append(out, f.Entity())
		}
	}
	return out
}
