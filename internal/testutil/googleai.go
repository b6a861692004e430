package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// GoogleAISetup contains all resources needed for Google AI-based tests.
type GoogleAISetup struct {
	Embedder ai.Embedder
	Genkit   *genkit.Genkit
	Logger   *slog.Logger
}

// SetupGoogleAI creates a Google AI embedder with logger for testing.
//
// This is the setup function for integration tests that exercise the real
// Google AI API instead of mocks.
//
// Requirements:
//   - GEMINI_API_KEY environment variable must be set
//   - Skips test if API key is not available
//
// Example:
//
//	func TestIngestLive(t *testing.T) {
//	    setup := testutil.SetupGoogleAI(t)
//	    // Use setup.Embedder, setup.Genkit, setup.Logger
//	}
func SetupGoogleAI(t *testing.T) *GoogleAISetup {
	t.Helper()

	// Check for required API key
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set - skipping test requiring embedder")
	}

	ctx := context.Background()

	// Initialize Genkit with Google AI plugin
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))

	// Create embedder
	embedder := googlegenai.GoogleAIEmbedder(g, "text-embedding-004")

	// Create quiet logger for tests (discard all logs)
	logger := slog.New(slog.DiscardHandler)

	return &GoogleAISetup{
		Embedder: embedder,
		Genkit:   g,
		Logger:   logger,
	}
}
