package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/docentdev/docent/internal/app"
	"github.com/docentdev/docent/internal/config"
	"github.com/docentdev/docent/internal/ui"
)

// runInit applies the configured schema policy: create the chunk table
// if it is absent, or drop and recreate it when recreate_on_init is
// set. The destructive path asks for confirmation.
func runInit(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, cleanup, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer cleanup()

	if cfg.RecreateOnInit {
		console := ui.NewConsole(os.Stdin, os.Stdout)
		prompt := fmt.Sprintf("Recreate table %q? All ingested documents will be lost.", cfg.TableName)

		ok, err := console.Confirm(prompt)
		if err != nil {
			return fmt.Errorf("reading confirmation: %w", err)
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := a.Store.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("Table %q is ready.\n", cfg.TableName)
	return nil
}
