package main

import (
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/AgentsPilot/neuronforge-sub017/internal/handlers"
	"github.com/AgentsPilot/neuronforge-sub017/internal/logging"
	"github.com/AgentsPilot/neuronforge-sub017/internal/provider"
)

// app is the wired engine shared by the subcommands.
type app struct {
	cfg      Config
	logger   *slog.Logger
	mux      *provider.Mux
	deps     *handlers.Deps
	registry *handlers.Registry
}

// newApp builds the logger, provider stack and handler registry. When
// responses is non-empty every model call is answered from it in order and
// no backend is contacted.
func newApp(cfg Config, stderr io.Writer, responses []string) (*app, error) {
	logger := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)

	mux, err := buildProvider(cfg, logger, responses)
	if err != nil {
		return nil, err
	}

	policies, err := cfg.policies()
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	deps := &handlers.Deps{
		Provider: mux,
		Logger:   logger,
		Policies: policies,
	}
	registry, err := handlers.NewDefaultRegistry(deps)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		mux:      mux,
		deps:     deps,
		registry: registry,
	}, nil
}

const instrumentationName = "github.com/AgentsPilot/neuronforge-sub017/internal/provider"

func buildProvider(cfg Config, logger *slog.Logger, responses []string) (*provider.Mux, error) {
	mux := provider.NewMux()
	if len(responses) > 0 {
		mux.SetFallback(provider.NewStatic(responses...))
		logger.Debug("using canned responses", "count", len(responses))
		return mux, nil
	}

	metrics, err := provider.NewMetrics(otel.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	tracer := otel.Tracer(instrumentationName)

	// Each backend gets its own limiter and breaker. The breaker sees one
	// outcome per call; every retry waits on the limiter.
	guard := func(backend provider.Provider) provider.Provider {
		return provider.Chain(backend,
			provider.Trace(tracer),
			metrics.Middleware(),
			provider.NewBreaker(cfg.Breaker).Middleware(),
			provider.Retry(cfg.Retry),
			provider.NewRateLimiter(cfg.RateLimit.TokensPerMinute, cfg.RateLimit.MaxTokensPerMinute).Middleware(),
		)
	}

	if cfg.Anthropic.APIKey != "" {
		backend, err := provider.NewAnthropicFromAPIKey(cfg.Anthropic.APIKey, provider.AnthropicOptions{
			DefaultModel: cfg.DefaultModel,
			MaxTokens:    cfg.Anthropic.MaxTokens,
			Prices:       cfg.Prices,
		})
		if err != nil {
			return nil, err
		}
		mux.Handle(provider.AnthropicID, guard(backend))
	}
	if cfg.OpenAI.APIKey != "" {
		backend, err := provider.NewOpenAIFromAPIKey(cfg.OpenAI.APIKey, provider.OpenAIOptions{
			DefaultModel: cfg.OpenAI.DefaultModel,
			MaxTokens:    cfg.OpenAI.MaxTokens,
			Prices:       cfg.Prices,
		})
		if err != nil {
			return nil, err
		}
		mux.Handle(provider.OpenAIID, guard(backend))
	}

	if ids := mux.Providers(); len(ids) > 0 {
		logger.Debug("providers registered", "providers", ids)
	} else {
		logger.Warn("no provider API key is set (ANTHROPIC_API_KEY, OPENAI_API_KEY); steps that call a model will fail")
	}
	return mux, nil
}
