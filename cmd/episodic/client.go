package episodic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/soundprediction/episodic"
	"github.com/soundprediction/episodic/pkg/alert"
	"github.com/soundprediction/episodic/pkg/config"
	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/embedder"
	"github.com/soundprediction/episodic/pkg/logger"
	"github.com/soundprediction/episodic/pkg/nlp"
	"github.com/soundprediction/episodic/pkg/telemetry"
)

// runtime bundles what a command needs and what it must release.
type runtime struct {
	cfg     *config.Config
	client  *episodic.Client
	logger  *slog.Logger
	closers []func() error
}

// Close closes the client, then flushes telemetry.
func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	if r.client != nil {
		errs = append(errs, r.client.Close(ctx))
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// loadConfig reads the configuration and validates it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup wires the graph store, LLM, embedder and logger into a client.
func setup(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg}
	rt.logger, err = rt.buildLogger(ctx, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(rt.logger)

	store, err := openStore(ctx, cfg)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	llmClient, err := rt.buildLLM()
	if err != nil {
		_ = store.Close(ctx)
		_ = rt.Close(ctx)
		return nil, err
	}

	embedderClient, err := rt.buildEmbedder()
	if err != nil {
		_ = llmClient.Close()
		_ = store.Close(ctx)
		_ = rt.Close(ctx)
		return nil, err
	}

	client, err := episodic.NewClient(store, llmClient, embedderClient, episodic.ConfigFrom(cfg), rt.logger)
	if err != nil {
		if embedderClient != nil {
			_ = embedderClient.Close()
		}
		_ = llmClient.Close()
		_ = store.Close(ctx)
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	rt.client = client

	rt.logger.Info("Episodic initialized",
		"driver", cfg.Database.Driver,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"embedding_provider", cfg.Embedding.Provider,
		"group_id", cfg.GroupID)
	return rt, nil
}

// buildLogger picks the console handler from log.format and stacks the
// telemetry sinks on top of it.
func (r *runtime) buildLogger(ctx context.Context, w io.Writer) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: logger.ParseLevel(r.cfg.Log.Level)}

	var handler slog.Handler
	switch r.cfg.Log.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = logger.NewColorHandler(w, opts)
	}

	tel := r.cfg.Telemetry
	if tel.Enabled && tel.ParquetPath != "" {
		parquetHandler, err := telemetry.NewParquetHandler(handler, tel.ParquetPath)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, parquetHandler.Close)
		handler = parquetHandler
	}
	if tel.Enabled && tel.SQLDSN != "" {
		db, err := telemetry.OpenSQL(ctx, tel.SQLDSN)
		if err != nil {
			return nil, err
		}
		sqlHandler, err := telemetry.NewSQLHandler(handler, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		r.closers = append(r.closers, db.Close)
		handler = sqlHandler
	}
	return slog.New(handler), nil
}

func openStore(ctx context.Context, cfg *config.Config) (driver.GraphStore, error) {
	switch cfg.Database.Driver {
	case "memory":
		return driver.NewMemoryDriver(), nil
	case "neo4j":
		store, err := driver.NewNeo4jDriver(cfg.Database.URI, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

// buildLLM wraps the chat client with token tracking, retries and a
// circuit breaker, innermost first.
func (r *runtime) buildLLM() (nlp.Client, error) {
	c := r.cfg.LLM
	llmCfg := nlp.NewLLMConfig().WithAPIKey(c.APIKey).WithModel(c.Model).WithBaseURL(c.BaseURL)
	if c.Provider == string(nlp.ProviderAzure) {
		llmCfg.WithAzure(c.BaseURL, c.Model, c.APIVersion)
	}
	llmCfg.Temperature = c.Temperature
	if c.MaxTokens > 0 {
		llmCfg.MaxTokens = c.MaxTokens
	}

	base, err := nlp.NewOpenAIClient(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	var client nlp.Client = base
	if r.cfg.Telemetry.Enabled && r.cfg.Telemetry.TokenUsage {
		tracker, err := nlp.NewTokenTracker(r.cfg.Telemetry.ParquetPath)
		if err != nil {
			r.logger.Warn("Token tracking disabled", "error", err)
		} else {
			client = nlp.NewTokenTrackingClient(client, tracker, r.logger)
		}
	}

	retryCfg := nlp.DefaultRetryConfig()
	if c.MaxRetries > 0 {
		retryCfg.MaxRetries = c.MaxRetries
	}
	client = nlp.NewRetryClient(client, retryCfg, r.logger)

	if r.cfg.CircuitBreaker.Enabled {
		alerter := alert.New(r.cfg.Alert, r.logger)
		client = nlp.NewCircuitBreakerClient(client, r.cfg.CircuitBreaker, alerter, r.logger, "llm-"+c.Provider)
	}
	return client, nil
}

// buildEmbedder returns nil for provider "none". A cache directory puts
// the Badger cache in front of the provider.
func (r *runtime) buildEmbedder() (embedder.Client, error) {
	c := r.cfg.Embedding
	base := embedder.Config{
		Model:      c.Model,
		BatchSize:  c.BatchSize,
		Dimensions: c.Dimensions,
		BaseURL:    c.BaseURL,
		APIVersion: c.APIVersion,
	}

	var client embedder.Client
	switch c.Provider {
	case "none", "":
		return nil, nil
	case "openai":
		client = embedder.NewOpenAIEmbedder(c.APIKey, base)
	case "azure":
		base.APIType = embedder.APITypeAzure
		client = embedder.NewOpenAIEmbedder(c.APIKey, base)
	case "embedeverything":
		local, err := embedder.NewEmbedEverythingClient(&embedder.EmbedEverythingConfig{Config: &base})
		if err != nil {
			return nil, err
		}
		client = local
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", c.Provider)
	}

	if c.CacheDir == "" {
		return client, nil
	}
	cached, err := embedder.NewCachedClient(client, embedder.CacheOptions{
		Dir:    c.CacheDir,
		Model:  c.Model,
		Logger: r.logger,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return cached, nil
}
