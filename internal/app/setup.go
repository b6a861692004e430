package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/docentdev/docent/internal/chat"
	"github.com/docentdev/docent/internal/config"
	"github.com/docentdev/docent/internal/segment"
	"github.com/docentdev/docent/internal/store"
)

// Setup creates and initializes the application. The returned cleanup
// releases everything Setup acquired and is safe to call exactly once;
// further calls are no-ops.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, _ func(), retErr error) {
	if cfg == nil {
		return nil, nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			a.close()
		}
	}()

	a.otelCleanup = provideTracing(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	a.DBPool = pool
	a.dbCleanup = dbCleanup

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	st, err := provideStore(cfg, pool, embedder, logger)
	if err != nil {
		return nil, nil, err
	}
	a.Store = st

	conv, err := provideConversation(cfg, g, st, logger)
	if err != nil {
		return nil, nil, err
	}
	a.Conversation = conv

	logger.Info("application ready",
		"model", cfg.FullModelName(),
		"embedder", cfg.EmbedderModel,
		"table", cfg.TableName,
	)

	return a, sync.OnceFunc(a.close), nil
}

// provideTracing registers an OTLP trace exporter on Genkit's tracer
// provider when an endpoint is configured. Runs before provideGenkit so
// the processor is in place when Genkit starts emitting spans.
func provideTracing(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	// Resource attributes for Genkit's TracerProvider. os.Setenv is not
	// concurrent-safe, but Setup runs once before goroutines exist.
	if os.Getenv("OTEL_SERVICE_NAME") == "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", "docent")
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("creating otlp exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("otlp tracing enabled", "endpoint", cfg.OTLPEndpoint)

	shutdown := tracing.TracerProvider().Shutdown

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool creates the PostgreSQL connection pool and verifies
// connectivity with a bounded ping. Schema management belongs to
// store.Init, so nothing else touches the database here.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = cfg.PoolMaxConns
	poolCfg.MinConns = cfg.PoolMinConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	cleanup := func() {
		pool.Close()
	}

	return pool, cleanup, nil
}

// provideGenkit initializes Genkit with the Google AI plugin. Call
// ordering in Setup ensures tracing is registered first.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	return g, nil
}

// provideEmbedder looks up the embedder registered by the Google AI
// plugin. Returns nil when the model name is unknown to the plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
}

// provideStore builds the splitter and the document store from
// configuration. DB is an interface so tests can substitute the pool.
func provideStore(cfg *config.Config, db store.DB, embedder ai.Embedder, logger *slog.Logger) (*store.Store, error) {
	splitter, err := segment.New(segment.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, fmt.Errorf("creating splitter: %w", err)
	}

	columns := make([]store.Column, 0, len(cfg.SchemaColumns))
	for _, col := range cfg.SchemaColumns {
		columns = append(columns, store.Column{Name: col.Name, Type: col.Type})
	}

	st, err := store.New(store.Config{
		DB:             db,
		Splitter:       splitter,
		Embedder:       embedder,
		Logger:         logger,
		Schema:         store.Schema{Table: cfg.TableName, Columns: columns},
		Dimension:      int32(cfg.EmbeddingDimension),
		TopK:           cfg.RetrieveTopK,
		RecreateOnInit: cfg.RecreateOnInit,
	})
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	return st, nil
}

// provideConversation builds the conversation service over the store.
func provideConversation(cfg *config.Config, g *genkit.Genkit, st *store.Store, logger *slog.Logger) (*chat.Conversation, error) {
	conv, err := chat.New(chat.Config{
		Genkit:    g,
		Retriever: st,
		Logger:    logger,
		Model:     cfg.FullModelName(),
		Sampling:  cfg.Sampling,
	})
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, nil
}
