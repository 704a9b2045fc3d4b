package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the prompt optimizer service.
// It has no LLM credential; every caller brings their own key.
type Config struct {
	Server    ServerConfig
	RateLimit RateLimitConfig
	LLM       LLMConfig
	Limits    LimitsConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr                 string
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	ShutdownTimeout      time.Duration
	MaxBodyBytes         int64
	TrustProxy           bool     // take the client identity from X-Forwarded-For
	AllowedOriginSchemes []string // browser-extension schemes admitted by the origin filter
}

// RateLimitConfig controls per-client admission.
type RateLimitConfig struct {
	Window        time.Duration
	MaxRequests   int
	SweepInterval time.Duration
}

// LLMConfig selects the provider and its call policy.
type LLMConfig struct {
	Provider        string // "anthropic" or "openai"
	BaseURL         string // empty uses the provider default
	Model           string
	Timeout         time.Duration // per attempt
	RetryDelay      time.Duration
	MaxUpstreamWait time.Duration // longest provider Retry-After honoured before the retry
	MaxTokens       MaxTokensConfig
}

// MaxTokensConfig caps the reply length per task.
type MaxTokensConfig struct {
	Score         int64 `yaml:"score"`
	SuggestNext   int64 `yaml:"suggest_next"`
	InferMetadata int64 `yaml:"infer_metadata"`
}

// LimitsConfig bounds inbound field lengths (in runes) and parsed list sizes.
type LimitsConfig struct {
	MaxTextLen     int `yaml:"max_text_len"`
	MaxResponseLen int `yaml:"max_response_len"`
	MaxAPIKeyLen   int `yaml:"max_api_key_len"`
	MaxSuggestions int `yaml:"max_suggestions"`
}

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Server    rawServerConfig    `yaml:"server"`
	RateLimit rawRateLimitConfig `yaml:"rate_limit"`
	LLM       rawLLMConfig       `yaml:"llm"`
	Limits    LimitsConfig       `yaml:"limits"`
}

type rawServerConfig struct {
	Addr                 string   `yaml:"addr"`
	ReadTimeout          string   `yaml:"read_timeout"`
	WriteTimeout         string   `yaml:"write_timeout"`
	ShutdownTimeout      string   `yaml:"shutdown_timeout"`
	MaxBodyBytes         int64    `yaml:"max_body_bytes"`
	TrustProxy           bool     `yaml:"trust_proxy"`
	AllowedOriginSchemes []string `yaml:"allowed_origin_schemes"`
}

type rawRateLimitConfig struct {
	Window        string `yaml:"window"`
	MaxRequests   int    `yaml:"max_requests"`
	SweepInterval string `yaml:"sweep_interval"`
}

type rawLLMConfig struct {
	Provider        string          `yaml:"provider"`
	BaseURL         string          `yaml:"base_url"`
	Model           string          `yaml:"model"`
	Timeout         string          `yaml:"timeout"`
	RetryDelay      string          `yaml:"retry_delay"`
	MaxUpstreamWait string          `yaml:"max_upstream_wait"`
	MaxTokens       MaxTokensConfig `yaml:"max_tokens"`
}

func defaultRaw() rawConfig {
	return rawConfig{
		Server: rawServerConfig{
			Addr:                 ":8001",
			ReadTimeout:          "10s",
			WriteTimeout:         "60s",
			ShutdownTimeout:      "15s",
			MaxBodyBytes:         512 << 10,
			AllowedOriginSchemes: []string{"chrome-extension", "moz-extension", "safari-web-extension"},
		},
		RateLimit: rawRateLimitConfig{
			Window:        "60s",
			MaxRequests:   10,
			SweepInterval: "1m",
		},
		LLM: rawLLMConfig{
			Provider:        "anthropic",
			Timeout:         "20s",
			RetryDelay:      "250ms",
			MaxUpstreamWait: "2s",
			MaxTokens:       MaxTokensConfig{Score: 500, SuggestNext: 400, InferMetadata: 150},
		},
		Limits: LimitsConfig{
			MaxTextLen:     8000,
			MaxResponseLen: 20000,
			MaxAPIKeyLen:   512,
			MaxSuggestions: 5,
		},
	}
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg, err := build(defaultRaw())
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// Load reads and parses the YAML config file at path, fills unset keys with
// defaults, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(data)
}

// LoadOptional behaves like Load but returns Default when path does not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// ResolvePath picks the config file: the flag value, then PROMPTOPT_CONFIG,
// then ./config.yaml. explicit reports whether the file must exist.
func ResolvePath(flagValue string) (path string, explicit bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if env := os.Getenv("PROMPTOPT_CONFIG"); env != "" {
		return env, true
	}
	return "config.yaml", false
}

// LoadEnvFiles loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

func parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := mergo.Merge(&raw, defaultRaw()); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}

	return build(raw)
}

// durationParser parses durations, keeping the first error.
type durationParser struct {
	err error
}

func (p *durationParser) parse(key, value string) time.Duration {
	if p.err != nil {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.err = fmt.Errorf("parse %s %q: %w", key, value, err)
	}
	return d
}

func build(raw rawConfig) (*Config, error) {
	addr := raw.Server.Addr
	if port := os.Getenv("PORT"); port != "" {
		host, _, splitErr := net.SplitHostPort(addr)
		if splitErr != nil {
			host = ""
		}
		addr = net.JoinHostPort(host, port)
	}

	var p durationParser
	cfg := &Config{
		Server: ServerConfig{
			Addr:                 addr,
			ReadTimeout:          p.parse("server.read_timeout", raw.Server.ReadTimeout),
			WriteTimeout:         p.parse("server.write_timeout", raw.Server.WriteTimeout),
			ShutdownTimeout:      p.parse("server.shutdown_timeout", raw.Server.ShutdownTimeout),
			MaxBodyBytes:         raw.Server.MaxBodyBytes,
			TrustProxy:           raw.Server.TrustProxy,
			AllowedOriginSchemes: raw.Server.AllowedOriginSchemes,
		},
		RateLimit: RateLimitConfig{
			Window:        p.parse("rate_limit.window", raw.RateLimit.Window),
			MaxRequests:   raw.RateLimit.MaxRequests,
			SweepInterval: p.parse("rate_limit.sweep_interval", raw.RateLimit.SweepInterval),
		},
		LLM: LLMConfig{
			Provider:        raw.LLM.Provider,
			BaseURL:         raw.LLM.BaseURL,
			Model:           raw.LLM.Model,
			Timeout:         p.parse("llm.timeout", raw.LLM.Timeout),
			RetryDelay:      p.parse("llm.retry_delay", raw.LLM.RetryDelay),
			MaxUpstreamWait: p.parse("llm.max_upstream_wait", raw.LLM.MaxUpstreamWait),
			MaxTokens:       raw.LLM.MaxTokens,
		},
		Limits: raw.Limits,
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive, got %v", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.max_requests must be positive, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.SweepInterval <= 0 {
		return fmt.Errorf("rate_limit.sweep_interval must be positive, got %v", cfg.RateLimit.SweepInterval)
	}

	switch cfg.LLM.Provider {
	case "anthropic":
	case "openai":
		if cfg.LLM.Model == "" {
			return fmt.Errorf("llm.model is required when llm.provider is \"openai\"")
		}
	default:
		return fmt.Errorf("llm.provider must be \"anthropic\" or \"openai\", got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive, got %v", cfg.LLM.Timeout)
	}

	// Two attempts plus the retry delay must fit in one response.
	if budget := 2*cfg.LLM.Timeout + cfg.LLM.RetryDelay + cfg.LLM.MaxUpstreamWait; cfg.Server.WriteTimeout <= budget {
		return fmt.Errorf("server.write_timeout (%v) must exceed %v for two llm attempts", cfg.Server.WriteTimeout, budget)
	}

	if minBody := minBodyBytes(cfg.Limits); cfg.Server.MaxBodyBytes < minBody {
		return fmt.Errorf("server.max_body_bytes (%d) must be at least %d to fit in-limit fields", cfg.Server.MaxBodyBytes, minBody)
	}
	if cfg.Limits.MaxSuggestions < 2 {
		return fmt.Errorf("limits.max_suggestions must be at least 2, got %d", cfg.Limits.MaxSuggestions)
	}
	return nil
}

// Worst-case encoded bytes per rune: a rune outside the BMP written as an
// escaped surrogate pair (\uXXXX\uXXXX).
const (
	bytesPerRune = 12
	bodyEnvelope = 4 << 10
)

// minBodyBytes is the smallest body cap that admits the largest request
// (suggest-next) with every field at its rune limit.
func minBodyBytes(l LimitsConfig) int64 {
	runes := int64(l.MaxTextLen) + int64(l.MaxResponseLen) + int64(l.MaxAPIKeyLen)
	return runes*bytesPerRune + bodyEnvelope
}
