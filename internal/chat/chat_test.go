package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/docentdev/docent/internal/config"
	"github.com/docentdev/docent/internal/testutil"
)

// fakeRetriever implements Retriever with canned chunks.
type fakeRetriever struct {
	chunks  []string
	err     error
	queries []string // records every query passed in
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string) ([]string, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

func testSampling() config.Sampling {
	return config.Sampling{CandidateCount: 1, MaxOutputTokens: 1024, Temperature: 0.9, TopP: 1.0}
}

func testConversation(t *testing.T, g *genkit.Genkit, r Retriever, model string) *Conversation {
	t.Helper()
	c, err := New(Config{
		Genkit:    g,
		Retriever: r,
		Logger:    slog.New(slog.DiscardHandler),
		Model:     model,
		Sampling:  testSampling(),
		Limiter:   rate.NewLimiter(rate.Inf, 1),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewValidation(t *testing.T) {
	g := genkit.Init(context.Background())

	valid := func() Config {
		return Config{
			Genkit:    g,
			Retriever: &fakeRetriever{},
			Model:     "googleai/gemini-2.5-flash",
			Sampling:  testSampling(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"nil genkit", func(c *Config) { c.Genkit = nil }, true},
		{"nil retriever", func(c *Config) { c.Retriever = nil }, true},
		{"empty model", func(c *Config) { c.Model = "" }, true},
		{"nil logger ok", func(c *Config) { c.Logger = nil }, false},
		{"nil limiter ok", func(c *Config) { c.Limiter = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			_, err := New(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTurnQuit(t *testing.T) {
	g := genkit.Init(context.Background())
	m := testutil.NewMockLLM("unused")
	m.RegisterModel(g)
	r := &fakeRetriever{}
	c := testConversation(t, g, r, "mock/test-model")

	_, err := c.Turn(context.Background(), "quit")
	if !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("Turn(quit) error = %v, want ErrSessionEnded", err)
	}

	if got := len(m.Calls()); got != 0 {
		t.Errorf("model calls = %d, want 0", got)
	}
	if got := len(r.queries); got != 0 {
		t.Errorf("retriever calls = %d, want 0", got)
	}
	if got := len(c.History()); got != 0 {
		t.Errorf("history length = %d, want 0", got)
	}
}

func TestTurnQuitCaseInsensitive(t *testing.T) {
	// The sentinel ends the session in any casing, without service calls.
	g := genkit.Init(context.Background())
	m := testutil.NewMockLLM("answer")
	m.RegisterModel(g)

	for _, query := range []string{"Quit", "QUIT", "qUiT"} {
		t.Run(query, func(t *testing.T) {
			r := &fakeRetriever{}
			c := testConversation(t, g, r, "mock/test-model")

			_, err := c.Turn(context.Background(), query)
			if !errors.Is(err, ErrSessionEnded) {
				t.Fatalf("Turn(%s) error = %v, want ErrSessionEnded", query, err)
			}
			if got := len(m.Calls()); got != 0 {
				t.Errorf("model calls = %d, want 0", got)
			}
			if got := len(r.queries); got != 0 {
				t.Errorf("retriever calls = %d, want 0", got)
			}
		})
	}
}

func TestTurnProtocol(t *testing.T) {
	g := genkit.Init(context.Background())
	m := testutil.NewMockLLM("fallback")
	m.AddResponse("find out what the user", "condensed intent")
	m.AddResponse("refer to the following context", "final answer")
	m.RegisterModel(g)

	r := &fakeRetriever{chunks: []string{"chunk a", "chunk b"}}
	c := testConversation(t, g, r, "mock/test-model")

	got, err := c.Turn(context.Background(), "What is raft?")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if got != "final answer" {
		t.Errorf("Turn() = %q, want %q", got, "final answer")
	}

	calls := m.Calls()
	if len(calls) != 2 {
		t.Fatalf("model calls = %d, want 2", len(calls))
	}

	// First call: history refresh with empty history and empty query slot.
	wantRefresh := fmt.Sprintf(refreshPrompt, "", "")
	if calls[0].UserMessage != wantRefresh {
		t.Errorf("refresh prompt = %q, want %q", calls[0].UserMessage, wantRefresh)
	}

	// Second call: answer against refreshed context plus retrieved chunks.
	wantAnswer := fmt.Sprintf(answerPrompt, "What is raft?", "condensed intent\nchunk a\nchunk b")
	if calls[1].UserMessage != wantAnswer {
		t.Errorf("answer prompt = %q, want %q", calls[1].UserMessage, wantAnswer)
	}

	// Retrieval sees the raw query.
	if len(r.queries) != 1 || r.queries[0] != "What is raft?" {
		t.Errorf("retriever queries = %v, want [What is raft?]", r.queries)
	}

	// The raw query, not the answer, joins the history.
	history := c.History()
	if len(history) != 1 || history[0] != "What is raft?" {
		t.Errorf("History() = %v, want [What is raft?]", history)
	}

	// Second turn: the refresh call now carries the first query.
	if _, err := c.Turn(context.Background(), "And leader election?"); err != nil {
		t.Fatalf("Turn 2: %v", err)
	}

	calls = m.Calls()
	if len(calls) != 4 {
		t.Fatalf("model calls after second turn = %d, want 4", len(calls))
	}
	wantRefresh2 := fmt.Sprintf(refreshPrompt, "What is raft?", "")
	if calls[2].UserMessage != wantRefresh2 {
		t.Errorf("second refresh prompt = %q, want %q", calls[2].UserMessage, wantRefresh2)
	}

	history = c.History()
	if len(history) != 2 || history[1] != "And leader election?" {
		t.Errorf("History() after second turn = %v", history)
	}
}

func TestTurnNoChunks(t *testing.T) {
	g := genkit.Init(context.Background())
	m := testutil.NewMockLLM("fallback")
	m.AddResponse("find out what the user", "base context")
	m.AddResponse("refer to the following context", "answer")
	m.RegisterModel(g)

	// Empty corpus: the answer context is the refreshed base alone, with no
	// trailing separator.
	r := &fakeRetriever{chunks: nil}
	c := testConversation(t, g, r, "mock/test-model")

	if _, err := c.Turn(context.Background(), "anything"); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	calls := m.Calls()
	wantAnswer := fmt.Sprintf(answerPrompt, "anything", "base context")
	if calls[1].UserMessage != wantAnswer {
		t.Errorf("answer prompt = %q, want %q", calls[1].UserMessage, wantAnswer)
	}
}

func TestTurnRetrieveError(t *testing.T) {
	g := genkit.Init(context.Background())
	m := testutil.NewMockLLM("unused")
	m.AddResponse("find out what the user", "base context")
	m.RegisterModel(g)

	retrieveErr := errors.New("database gone")
	r := &fakeRetriever{err: retrieveErr}
	c := testConversation(t, g, r, "mock/test-model")

	_, err := c.Turn(context.Background(), "doomed query")
	if !errors.Is(err, retrieveErr) {
		t.Fatalf("Turn error = %v, want wrapped %v", err, retrieveErr)
	}

	// Only the refresh call happened; the answer call was never made and the
	// failed query is not in the history.
	if got := len(m.Calls()); got != 1 {
		t.Errorf("model calls = %d, want 1", got)
	}
	if got := len(c.History()); got != 0 {
		t.Errorf("history length = %d, want 0", got)
	}
}

func TestTurnModelError(t *testing.T) {
	g := genkit.Init(context.Background())
	// No model registered under this name: the first generate call fails.
	r := &fakeRetriever{}
	c := testConversation(t, g, r, "mock/missing-model")

	_, err := c.Turn(context.Background(), "any question")
	if !errors.Is(err, ErrService) {
		t.Fatalf("Turn error = %v, want ErrService", err)
	}

	if got := len(r.queries); got != 0 {
		t.Errorf("retriever calls = %d, want 0", got)
	}
	if got := len(c.History()); got != 0 {
		t.Errorf("history length = %d, want 0", got)
	}
}

func TestTurnEmptyResponseFallback(t *testing.T) {
	g := genkit.Init(context.Background())
	// The mock answers every call with empty text.
	m := testutil.NewMockLLM("")
	m.RegisterModel(g)
	c := testConversation(t, g, &fakeRetriever{}, "mock/test-model")

	got, err := c.Turn(context.Background(), "silent treatment")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if got != fallbackResponseMessage {
		t.Errorf("Turn() = %q, want fallback message", got)
	}

	// An empty model response is still a successful turn.
	if got := len(c.History()); got != 1 {
		t.Errorf("history length = %d, want 1", got)
	}
}

func TestTurnContextCanceled(t *testing.T) {
	g := genkit.Init(context.Background())
	m := testutil.NewMockLLM("unused")
	m.RegisterModel(g)
	c := testConversation(t, g, &fakeRetriever{}, "mock/test-model")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Turn(ctx, "too late")
	if !errors.Is(err, ErrService) {
		t.Fatalf("Turn error = %v, want ErrService", err)
	}
	if got := len(c.History()); got != 0 {
		t.Errorf("history length = %d, want 0", got)
	}
}

func TestTurnSamplingConfig(t *testing.T) {
	g := genkit.Init(context.Background())

	var gotConfigs []*genai.GenerateContentConfig
	genkit.DefineModel(g, "mock/config-capture", &ai.ModelOptions{
		Label: "Config Capture",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
		},
	}, func(_ context.Context, req *ai.ModelRequest, _ ai.ModelStreamCallback) (*ai.ModelResponse, error) {
		if cfg, ok := req.Config.(*genai.GenerateContentConfig); ok {
			gotConfigs = append(gotConfigs, cfg)
		}
		return &ai.ModelResponse{
			Request: req,
			Message: ai.NewModelMessage(ai.NewTextPart("ok")),
		}, nil
	})

	c := testConversation(t, g, &fakeRetriever{}, "mock/config-capture")

	if _, err := c.Turn(context.Background(), "sampled"); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	if len(gotConfigs) != 2 {
		t.Fatalf("captured configs = %d, want 2 (both model calls)", len(gotConfigs))
	}
	for i, cfg := range gotConfigs {
		if cfg.CandidateCount != 1 {
			t.Errorf("config[%d].CandidateCount = %d, want 1", i, cfg.CandidateCount)
		}
		if cfg.MaxOutputTokens != 1024 {
			t.Errorf("config[%d].MaxOutputTokens = %d, want 1024", i, cfg.MaxOutputTokens)
		}
		if cfg.Temperature == nil || *cfg.Temperature != 0.9 {
			t.Errorf("config[%d].Temperature = %v, want 0.9", i, cfg.Temperature)
		}
		if cfg.TopP == nil || *cfg.TopP != 1.0 {
			t.Errorf("config[%d].TopP = %v, want 1.0", i, cfg.TopP)
		}
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	g := genkit.Init(context.Background())
	m := testutil.NewMockLLM("answer")
	m.RegisterModel(g)
	c := testConversation(t, g, &fakeRetriever{}, "mock/test-model")

	if _, err := c.Turn(context.Background(), "original"); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	h := c.History()
	h[0] = "mutated"

	if got := c.History()[0]; got != "original" {
		t.Errorf("History()[0] = %q after external mutation, want %q", got, "original")
	}
}
