// Package config holds the configuration for the Titan research engine.
// Configuration is loaded from an optional titan.yaml file, with TITAN_*
// environment variables overriding the secrets and paths that should not
// live in a checked-in file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Safety-limit defaults. These bound every research run; they are
// deliberately conservative and can all be raised in titan.yaml.
const (
	// DefaultPoolSize is the number of headless browser contexts kept in
	// the pool. Browser contexts are the most expensive resource in the
	// engine, so the pool stays small.
	DefaultPoolSize = 5

	// DefaultMaxPages is the hard cap on pages fetched by one traversal
	// run, regardless of depth or link quality.
	DefaultMaxPages = 10

	// DefaultMaxDepth limits link-following from a traversal root.
	DefaultMaxDepth = 2

	// DefaultMinContentLen is the minimum extracted-text length for the
	// HTTP tier to count as a successful scrape. Below this the engine
	// escalates to the stealth tier.
	DefaultMinContentLen = 500

	// DefaultCacheTTL is how long successful scrape results are reused.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultTopK is how many ranked hits RESEARCH mode scrapes.
	DefaultTopK = 5

	// DefaultDeepRoots is how many ranked hits DEEP mode uses as
	// traversal roots.
	DefaultDeepRoots = 2

	// DefaultLinkCap limits how many candidate links are offered to the
	// link signal scorer per page.
	DefaultLinkCap = 30

	// DefaultHeuristicCap limits how many links the keyword fallback
	// returns when the reasoning service is unavailable.
	DefaultHeuristicCap = 5
)

// Config is the root configuration, one section per engine component.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Scrape   ScrapeConfig   `yaml:"scrape"`
	Browser  BrowserConfig  `yaml:"browser"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Research ResearchConfig `yaml:"research"`
	Store    StoreConfig    `yaml:"store"`
}

// LLMConfig configures the reasoning-service client.
type LLMConfig struct {
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// Timeout returns the per-call reasoning-service timeout.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// SearchConfig configures the search multiplexer.
type SearchConfig struct {
	PerBackend int `yaml:"per_backend"`
	TimeoutMs  int `yaml:"timeout_ms"`
}

// Timeout returns the per-backend search timeout.
func (c SearchConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ScrapeConfig configures the scrape escalation engine.
type ScrapeConfig struct {
	MinContentLen int    `yaml:"min_content_len"`
	TimeoutMs     int    `yaml:"timeout_ms"`
	CacheTTLMin   int    `yaml:"cache_ttl_min"`
	CacheSize     int    `yaml:"cache_size"`
	UserAgent     string `yaml:"user_agent"`
	MaxBodyBytes  int64  `yaml:"max_body_bytes"`
}

// Timeout returns the HTTP-tier fetch timeout.
func (c ScrapeConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// CacheTTL returns how long successful results stay cached.
func (c ScrapeConfig) CacheTTL() time.Duration {
	if c.CacheTTLMin <= 0 {
		return DefaultCacheTTL
	}
	return time.Duration(c.CacheTTLMin) * time.Minute
}

// BrowserConfig configures the headless browser pool.
type BrowserConfig struct {
	PoolSize       int    `yaml:"pool_size"`
	NavTimeoutMs   int    `yaml:"nav_timeout_ms"`
	Headless       bool   `yaml:"headless"`
	UserAgent      string `yaml:"user_agent"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
}

// NavTimeout returns the per-page navigation timeout.
func (c BrowserConfig) NavTimeout() time.Duration {
	if c.NavTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavTimeoutMs) * time.Millisecond
}

// CrawlConfig configures the recursive traversal engine.
type CrawlConfig struct {
	MaxDepth     int `yaml:"max_depth"`
	MaxPages     int `yaml:"max_pages"`
	LinkCap      int `yaml:"link_cap"`
	HeuristicCap int `yaml:"heuristic_cap"`
}

// ResearchConfig configures the mode dispatcher.
type ResearchConfig struct {
	TopK       int `yaml:"top_k"`
	DeepRoots  int `yaml:"deep_roots"`
	MaxResults int `yaml:"max_results"`
}

// StoreConfig configures the report persistence sink.
type StoreConfig struct {
	Path      string `yaml:"path"`
	EmbedDims int    `yaml:"embed_dims"`
}

// Default returns the configuration used when no titan.yaml exists.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Model:      "gemini-2.5-flash",
			EmbedModel: "gemini-embedding-001",
			TimeoutMs:  60000,
		},
		Search: SearchConfig{
			PerBackend: 10,
			TimeoutMs:  30000,
		},
		Scrape: ScrapeConfig{
			MinContentLen: DefaultMinContentLen,
			TimeoutMs:     20000,
			CacheTTLMin:   int(DefaultCacheTTL / time.Minute),
			CacheSize:     1000,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			MaxBodyBytes:  2 << 20,
		},
		Browser: BrowserConfig{
			PoolSize:       DefaultPoolSize,
			NavTimeoutMs:   30000,
			Headless:       true,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
		},
		Crawl: CrawlConfig{
			MaxDepth:     DefaultMaxDepth,
			MaxPages:     DefaultMaxPages,
			LinkCap:      DefaultLinkCap,
			HeuristicCap: DefaultHeuristicCap,
		},
		Research: ResearchConfig{
			TopK:       DefaultTopK,
			DeepRoots:  DefaultDeepRoots,
			MaxResults: 10,
		},
		Store: StoreConfig{
			Path:      "titan.db",
			EmbedDims: 768,
		},
	}
}

// Load reads the configuration file at path, layered over defaults.
// A missing file is not an error; the defaults are returned. Environment
// overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err != nil && os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides secrets and paths from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("TITAN_GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("TITAN_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("TITAN_MODEL"); v != "" {
		c.LLM.Model = v
	}
}
