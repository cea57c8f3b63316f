package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"shopbot/internal/config"
	"shopbot/internal/metrics"
	"shopbot/internal/moltin"
	"shopbot/internal/store"
	"shopbot/internal/token"
	"shopbot/internal/transport"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	kv      *store.Redis
	client  *moltin.Client
	tokens  *token.Manager
	shop    *moltin.Adapter
}

// newApp loads configuration and wires the backend client, token manager and store.
// Nothing here touches the network; Redis and Moltin are contacted lazily.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(os.Stdout, cfg.Environment, cfg.LogLevel)
	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("moltin_base_url", cfg.Moltin.BaseURL),
		slog.String("moltin_api_version", cfg.Moltin.APIVersion),
		slog.String("redis_host", cfg.Redis.Host),
		slog.Bool("tls_fingerprint", cfg.TLSFingerprint),
	)

	mt := metrics.New()
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: mt.InstrumentRoundTripper(transport.New(transport.Options{
			ChromeFingerprint: cfg.TLSFingerprint,
		})),
	}

	client, err := moltin.NewClient(moltin.Config{
		BaseURL:    cfg.Moltin.BaseURL,
		APIVersion: cfg.Moltin.APIVersion,
		ClientID:   cfg.Moltin.ClientID,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("creating moltin client: %w", err)
	}

	kv := store.NewRedis(store.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	})
	tokens := token.NewManager(kv, client, logger, token.WithMetrics(mt))

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: mt,
		kv:      kv,
		client:  client,
		tokens:  tokens,
		shop:    moltin.NewAdapter(client, tokens, moltin.NewImageCache(cfg.ImageDir, client)),
	}, nil
}

func (a *app) close() {
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("closing redis", slog.Any("error", err))
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(w io.Writer, environment, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
		// Add source location in debug mode
		AddSource: lvl == slog.LevelDebug,
	}

	if environment == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
