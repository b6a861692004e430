// Package app assembles the application: configuration, tracing, the
// database pool, Genkit, and the conversation service built on top of
// the document store.
//
// Setup wires the full graph in dependency order and returns a cleanup
// that releases it in reverse. Components receive their dependencies
// explicitly through their own Config structs.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docentdev/docent/internal/chat"
	"github.com/docentdev/docent/internal/config"
	"github.com/docentdev/docent/internal/store"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit       *genkit.Genkit
	Embedder     ai.Embedder
	DBPool       *pgxpool.Pool
	Store        *store.Store
	Conversation *chat.Conversation

	// Teardown hooks, recorded in acquisition order.
	otelCleanup func()
	dbCleanup   func()
}

// close releases resources in reverse acquisition order. The pool
// closes before the tracer shuts down so span export sees the final
// database state settle first.
func (a *App) close() {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("shutting down")

	if a.dbCleanup != nil {
		a.dbCleanup()
		logger.Debug("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
}
