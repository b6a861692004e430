// Package chat orchestrates retrieval-augmented conversation turns.
//
// Each turn runs a fixed two-call protocol against the model: the first call
// condenses the conversation history into a base context for the current
// query, retrieval appends the nearest stored chunks onto it, and the second
// call answers the query against the combined context. The history records
// raw queries only; answers never feed back into later turns.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/docentdev/docent/internal/config"
)

const (
	// quitSentinel ends the session when submitted as the whole query,
	// compared case-insensitively.
	quitSentinel = "quit"

	// generateTimeout bounds each individual model call.
	generateTimeout = 60 * time.Second

	// fallbackResponseMessage is the message returned when the model produces an empty response.
	fallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."
)

// Prompt templates for the two model calls of a turn.
const (
	// refreshPrompt condenses the query history into the base context. The
	// first slot takes the newline-joined history, oldest first; the second
	// slot stays empty, the model infers intent from the history alone.
	refreshPrompt = "Based on this conversation history %s and the current query %s, find out what the user is trying to ask"

	// answerPrompt produces the user-visible answer from the current query
	// and the assembled context.
	answerPrompt = "Refer to the following context to answer this query: %s\n\nContext: %s"
)

// Sentinel errors for conversation operations.
var (
	// ErrSessionEnded signals the quit sentinel; the caller should stop the loop.
	ErrSessionEnded = errors.New("session ended")

	// ErrService indicates a model call failed and the turn was abandoned.
	ErrService = errors.New("chat service failed")
)

// Retriever supplies the stored chunks nearest to a query, best match first.
// *store.Store satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

// Config contains all required parameters for a Conversation.
type Config struct {
	Genkit    *genkit.Genkit
	Retriever Retriever
	Logger    *slog.Logger

	// Model is the provider-qualified model name, e.g. "googleai/gemini-2.5-flash".
	Model string

	// Sampling is passed through to the model on every generate call.
	Sampling config.Sampling

	// Limiter paces model calls. Nil uses a default limiter.
	Limiter *rate.Limiter
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Model == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Conversation is one interactive session over one corpus.
//
// Not safe for concurrent use: turns mutate the history and the protocol
// orders its calls strictly, so callers run turns one at a time.
type Conversation struct {
	g         *genkit.Genkit
	retriever Retriever
	limiter   *rate.Limiter
	logger    *slog.Logger

	model    string
	sampling config.Sampling

	history []string // raw accepted queries, oldest first
}

// New creates a Conversation with required configuration.
func New(cfg Config) (*Conversation, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// 10 requests/sec sustained, burst of 30
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	return &Conversation{
		g:         cfg.Genkit,
		retriever: cfg.Retriever,
		limiter:   limiter,
		logger:    logger,
		model:     cfg.Model,
		sampling:  cfg.Sampling,
	}, nil
}

// Turn runs one full conversation turn and returns the answer.
//
// The quit sentinel returns ErrSessionEnded before any service call. On any
// failure the turn is abandoned and the history stays untouched; the raw
// query joins the history only after every step has succeeded.
func (c *Conversation) Turn(ctx context.Context, query string) (string, error) {
	if strings.EqualFold(query, quitSentinel) {
		return "", ErrSessionEnded
	}

	base, err := c.refreshContext(ctx)
	if err != nil {
		return "", err
	}

	// Retrieval uses the raw query, not the refreshed context.
	chunks, err := c.retriever.Retrieve(ctx, query)
	if err != nil {
		return "", fmt.Errorf("retrieving context: %w", err)
	}

	merged := base
	if len(chunks) > 0 {
		merged = base + "\n" + strings.Join(chunks, "\n")
	}

	answer, err := c.generate(ctx, answerPrompt, query, merged)
	if err != nil {
		return "", err
	}

	c.history = append(c.history, query)
	c.logger.Debug("turn completed",
		"history_len", len(c.history),
		"chunks", len(chunks),
		"answer_chars", len(answer))

	return answer, nil
}

// History returns a copy of the raw queries accepted so far, oldest first.
func (c *Conversation) History() []string {
	cp := make([]string, len(c.history))
	copy(cp, c.history)
	return cp
}

// refreshContext asks the model what the user is trying to ask given the
// query history. It runs on every turn, including the first with an empty
// history.
func (c *Conversation) refreshContext(ctx context.Context) (string, error) {
	return c.generate(ctx, refreshPrompt, strings.Join(c.history, "\n"), "")
}

// generate runs one rate-limited, bounded model call and returns the trimmed
// response text.
func (c *Conversation) generate(ctx context.Context, template string, args ...any) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: waiting for rate limiter: %w", ErrService, err)
	}

	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	response, err := genkit.Generate(genCtx, c.g,
		ai.WithPrompt(template, args...),
		ai.WithModelName(c.model),
		ai.WithConfig(&genai.GenerateContentConfig{
			CandidateCount:  c.sampling.CandidateCount,
			MaxOutputTokens: c.sampling.MaxOutputTokens,
			Temperature:     genai.Ptr(c.sampling.Temperature),
			TopP:            genai.Ptr(c.sampling.TopP),
		}),
	)
	if err != nil {
		c.logger.Error("model call failed", "model", c.model, "error", err)
		return "", fmt.Errorf("%w: %w", ErrService, err)
	}

	text := strings.TrimSpace(response.Text())
	if text == "" {
		c.logger.Warn("model returned empty response")
		text = fallbackResponseMessage
	}
	return text, nil
}
