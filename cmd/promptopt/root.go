package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/promptopt/internal/config"
	"github.com/amishk599/promptopt/internal/llm"
	"github.com/amishk599/promptopt/internal/metrics"
	"github.com/amishk599/promptopt/internal/orchestrator"
	"github.com/amishk599/promptopt/internal/prompt"
	"github.com/amishk599/promptopt/internal/ratelimit"
	"github.com/amishk599/promptopt/internal/retry"
	"github.com/amishk599/promptopt/internal/validate"
)

var (
	cfgPath   string
	debug     bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "promptopt",
	Short: "Prompt optimizer API",
	Long:  "promptopt scores prompts, rewrites them and suggests follow-ups using the caller's own LLM key.",
	// Default to `serve` so that `promptopt` with no args runs the service.
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: PROMPTOPT_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}

func setupLogger(dbg bool, format string) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// loadConfig loads .env files and then the config file.
// A missing ./config.yaml falls back to defaults; an explicit path must exist.
func loadConfig(flagValue string) (*config.Config, error) {
	if err := config.LoadEnvFiles(".env"); err != nil {
		return nil, err
	}
	path, explicit := config.ResolvePath(flagValue)
	if explicit {
		return config.Load(path)
	}
	return config.LoadOptional(path)
}

// dropAmbientCredentials unsets provider credentials the SDK would otherwise
// pick up from the environment. Only caller-supplied keys may reach the provider.
func dropAmbientCredentials(logger *slog.Logger) {
	for _, name := range []string{"ANTHROPIC_API_KEY", "ANTHROPIC_AUTH_TOKEN", "OPENAI_API_KEY"} {
		if _, ok := os.LookupEnv(name); ok {
			logger.Warn("ignoring provider credential from environment", "var", name)
			os.Unsetenv(name)
		}
	}
}

// pipeline holds the wired request pipeline and the limiter behind it.
type pipeline struct {
	orch    *orchestrator.Orchestrator
	limiter *ratelimit.WindowLimiter
	metrics *metrics.Metrics
}

// buildPipeline wires validator, limiter, builder, provider and gateway into
// an orchestrator. withMetrics registers Prometheus collectors.
func buildPipeline(cfg *config.Config, withMetrics bool, logger *slog.Logger) (*pipeline, error) {
	httpClient := &http.Client{}

	provider, err := llm.NewProvider(llm.Settings{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
	}, httpClient)
	if err != nil {
		return nil, fmt.Errorf("create llm provider: %w", err)
	}

	limiter := ratelimit.NewWindowLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)

	var m *metrics.Metrics
	var recorder retry.Recorder
	var denials orchestrator.DenialRecorder
	if withMetrics {
		m = metrics.New(limiter.Len)
		recorder = m
		denials = m
	}

	gateway := retry.NewGateway(provider, retry.Policy{
		Timeout:         cfg.LLM.Timeout,
		Delay:           cfg.LLM.RetryDelay,
		MaxUpstreamWait: cfg.LLM.MaxUpstreamWait,
	}, logger, recorder)

	validator := validate.New(validate.Limits{
		MaxTextLen:     cfg.Limits.MaxTextLen,
		MaxResponseLen: cfg.Limits.MaxResponseLen,
		MaxAPIKeyLen:   cfg.Limits.MaxAPIKeyLen,
	})
	builder := prompt.NewBuilder(prompt.MaxTokens{
		Score:         cfg.LLM.MaxTokens.Score,
		SuggestNext:   cfg.LLM.MaxTokens.SuggestNext,
		InferMetadata: cfg.LLM.MaxTokens.InferMetadata,
	})

	orch := orchestrator.New(validator, limiter, builder, gateway, cfg.Limits.MaxSuggestions, denials, logger)

	logger.Debug("pipeline wired",
		"provider", provider.Name(),
		"window", cfg.RateLimit.Window.String(),
		"max_requests", cfg.RateLimit.MaxRequests,
		"llm_timeout", cfg.LLM.Timeout.String(),
	)
	return &pipeline{orch: orch, limiter: limiter, metrics: m}, nil
}
