package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/docentdev/docent/internal/app"
	"github.com/docentdev/docent/internal/chat"
	"github.com/docentdev/docent/internal/config"
	"github.com/docentdev/docent/internal/ui"
)

// runChat starts the interactive question answering session.
func runChat(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, cleanup, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer cleanup()

	// Apply the configured schema policy up front so the first question
	// works on a fresh database.
	if err := a.Store.Init(ctx); err != nil {
		return err
	}

	console := ui.NewConsole(os.Stdin, os.Stdout)
	console.Banner()
	console.System(fmt.Sprintf("Model %s over table %q.", cfg.FullModelName(), cfg.TableName))
	console.Println()

	return chatLoop(ctx, console, a.Conversation)
}

// turnRunner runs one conversation turn.
type turnRunner interface {
	Turn(ctx context.Context, query string) (string, error)
}

// chatLoop reads one query per line and prints the answer, until the
// quit sentinel, end of input, or context cancellation. A failed turn
// is reported and the session continues.
func chatLoop(ctx context.Context, console *ui.Console, conv turnRunner) error {
	for {
		console.Prompt()

		line, ok := console.ReadLine()
		if !ok {
			if err := console.Err(); err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			// EOF (Ctrl+D)
			console.Println()
			console.System("Session ended.")
			return nil
		}
		if ctx.Err() != nil {
			console.Println()
			console.System("Session ended.")
			return nil
		}
		if line == "" {
			continue
		}

		answer, err := conv.Turn(ctx, line)
		if err != nil {
			switch {
			case errors.Is(err, chat.ErrSessionEnded):
				console.System("Session ended.")
				return nil
			case ctx.Err() != nil:
				console.Println()
				console.System("Session ended.")
				return nil
			default:
				console.Errorf("Turn failed: %v", err)
				continue
			}
		}

		console.Answer(answer)
	}
}
