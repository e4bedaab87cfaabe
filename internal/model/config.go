package model

import "time"

// Config holds all runtime configuration. It is built once at start and
// passed to components explicitly.
type Config struct {
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Search       SearchConfig       `yaml:"search" mapstructure:"search"`
	AI           AIConfig           `yaml:"ai" mapstructure:"ai"`
	Credits      CreditsConfig      `yaml:"credits" mapstructure:"credits"`
	History      HistoryConfig      `yaml:"history" mapstructure:"history"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Database     DatabaseConfig     `yaml:"database" mapstructure:"database"`
	Redis        RedisConfig        `yaml:"redis" mapstructure:"redis"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Sentry       SentryConfig       `yaml:"sentry" mapstructure:"sentry"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string   `yaml:"addr" mapstructure:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"` // empty disables the origin check
	MaxUploadBytes int64    `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`

	// Per-client request rate on verification routes; zero disables it
	ClientRPS   float64 `yaml:"client_rps" mapstructure:"client_rps"`
	ClientBurst int     `yaml:"client_burst" mapstructure:"client_burst"`
}

// HTTPConfig configures outbound fetching of pages and images
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxImageBytes int64         `yaml:"max_image_bytes" mapstructure:"max_image_bytes"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// EvidenceFailurePolicy decides what a search failure does to a verification
type EvidenceFailurePolicy string

const (
	// EvidenceFail turns a search failure into an Error result
	EvidenceFail EvidenceFailurePolicy = "fail"
	// EvidenceDegrade continues with no evidence
	EvidenceDegrade EvidenceFailurePolicy = "degrade"
)

// SearchConfig configures the evidence search API
type SearchConfig struct {
	APIKey     string                `yaml:"api_key,omitempty" mapstructure:"api_key"`
	CX         string                `yaml:"cx,omitempty" mapstructure:"cx"`
	Endpoint   string                `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	MaxResults int                   `yaml:"max_results" mapstructure:"max_results"`
	Timeout    time.Duration         `yaml:"timeout" mapstructure:"timeout"`
	OnFailure  EvidenceFailurePolicy `yaml:"on_failure" mapstructure:"on_failure"`
	CacheTTL   time.Duration         `yaml:"cache_ttl" mapstructure:"cache_ttl"` // 0 disables caching
}

// AIConfig configures the generative model
type AIConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"` // gemini, openai, anthropic, ollama
	Model     string        `yaml:"model" mapstructure:"model"`
	APIKey    string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens int           `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// CreditsConfig configures metering of verifications
type CreditsConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	Backend        string `yaml:"backend" mapstructure:"backend"` // memory, postgres, redis
	Cost           int    `yaml:"cost" mapstructure:"cost"`
	RefundOnError  bool   `yaml:"refund_on_error" mapstructure:"refund_on_error"`
	InitialBalance int    `yaml:"initial_balance" mapstructure:"initial_balance"`
}

// HistoryConfig configures verification history persistence
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Backend string `yaml:"backend" mapstructure:"backend"` // memory, postgres
	Limit   int    `yaml:"limit" mapstructure:"limit"`
}

// CacheConfig configures the evidence cache backend
type CacheConfig struct {
	Backend   string        `yaml:"backend" mapstructure:"backend"` // memory, layered, disk, redis, none
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
}

// DatabaseConfig configures Postgres
type DatabaseConfig struct {
	URL string `yaml:"url,omitempty" mapstructure:"url"`
}

// RedisConfig configures Redis
type RedisConfig struct {
	URL string `yaml:"url,omitempty" mapstructure:"url"`
}

// RateLimitingConfig limits outbound requests per host
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ConcurrencyConfig sizes the batch worker pool
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// LogConfig configures zerolog output
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // auto, json, console
}

// SentryConfig enables error reporting when DSN is set
type SentryConfig struct {
	DSN         string `yaml:"dsn,omitempty" mapstructure:"dsn"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8000",
			MaxUploadBytes: 10 << 20,
			ClientRPS:      1,
			ClientBurst:    10,
		},
		HTTP: HTTPConfig{
			Timeout:       10 * time.Second,
			UserAgent:     "TruthGuard/0.1 (+https://github.com/ppiankov/truthguard)",
			MaxBodyBytes:  2_000_000,
			MaxImageBytes: 5 << 20,
		},
		Search: SearchConfig{
			MaxResults: 20,
			Timeout:    10 * time.Second,
			OnFailure:  EvidenceFail,
			CacheTTL:   15 * time.Minute,
		},
		AI: AIConfig{
			Provider:  "gemini",
			Model:     "gemini-2.5-flash",
			Timeout:   60 * time.Second,
			MaxTokens: 2048,
		},
		Credits: CreditsConfig{
			Enabled:        false,
			Backend:        "memory",
			Cost:           1,
			RefundOnError:  true,
			InitialBalance: 15,
		},
		History: HistoryConfig{
			Enabled: true,
			Backend: "memory",
			Limit:   10,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			Dir:       ".truthguard-cache",
			MemoryTTL: 15 * time.Minute,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         5,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Sentry: SentryConfig{
			Environment: "production",
		},
	}
}
