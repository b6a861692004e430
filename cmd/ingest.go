package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/docentdev/docent/internal/app"
	"github.com/docentdev/docent/internal/config"
)

// runIngest segments, embeds and stores one document. Any failure
// aborts the whole ingest; nothing is written on error.
func runIngest(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: docent ingest <file|->")
	}

	text, err := readInput(args[0], os.Stdin)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("document is empty")
	}

	a, cleanup, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer cleanup()

	if err := a.Store.Init(ctx); err != nil {
		return err
	}

	n, err := a.Store.Ingest(ctx, text)
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %d chunks into %q.\n", n, cfg.TableName)
	return nil
}

// readInput loads the document text from path, or from stdin when path
// is "-".
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	return string(data), nil
}
