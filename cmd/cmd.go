// Package cmd provides the docent command line interface.
//
// Commands:
//   - chat: interactive question answering over the ingested corpus (default)
//   - ingest: segment, embed and store a document
//   - init: prepare the chunk table per the configured schema policy
//
// Each command builds the application via app.Setup under a
// signal-aware context, so SIGINT and SIGTERM interrupt in-flight
// model and database calls.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/docentdev/docent/internal/config"
	"github.com/docentdev/docent/internal/log"
)

// Execute is the main entry point for the docent CLI.
func Execute() error {
	// Bootstrap logger so config loading failures are reported; replaced
	// below once the configured level is known.
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	// version and help work even when config is invalid.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			runVersion()
			return nil
		case "help", "--help", "-h":
			runHelp()
			return nil
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// One UUID per run correlates every log line of this session.
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON}).
		With("session_id", uuid.NewString())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	name, args := "chat", []string{}
	if len(os.Args) > 1 {
		name, args = os.Args[1], os.Args[2:]
	}

	switch name {
	case "chat":
		return runChat(ctx, cfg, logger)
	case "ingest":
		return runIngest(ctx, cfg, logger, args)
	case "init":
		return runInit(ctx, cfg, logger)
	default:
		return fmt.Errorf("unknown command: %s", name)
	}
}

const helpText = `docent - Ask questions about your own documents

Usage:
  docent                 Start an interactive session (same as docent chat)
  docent chat            Start an interactive session
  docent ingest <file>   Ingest a document into the corpus ("-" reads stdin)
  docent init            Prepare the chunk table
  docent version         Show version information
  docent help            Show this help

Interactive session:
  Type a question and press Enter; the answer is grounded in the
  ingested documents. Type quit to end the session.

Configuration:
  Read from ~/.docent/config.yaml, overridable with DOCENT_* environment
  variables. DATABASE_URL overrides the postgres_* options.

Environment Variables:
  GEMINI_API_KEY         Required: Gemini API key
  DATABASE_URL           Optional: PostgreSQL connection URL
  DEBUG                  Optional: verbose logging before config loads`

// runHelp displays the help message.
func runHelp() {
	fmt.Println(helpText)
}
