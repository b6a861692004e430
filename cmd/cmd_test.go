package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docentdev/docent/internal/chat"
	"github.com/docentdev/docent/internal/ui"
)

// fakeConversation mirrors the conversation contract: "quit" ends the
// session, anything else produces an answer or one queued error.
type fakeConversation struct {
	answers map[string]string
	err     error
	queries []string
}

func (f *fakeConversation) Turn(_ context.Context, query string) (string, error) {
	if query == "quit" {
		return "", chat.ErrSessionEnded
	}
	f.queries = append(f.queries, query)

	if f.err != nil {
		err := f.err
		f.err = nil // fail once, then recover
		return "", err
	}
	if a, ok := f.answers[query]; ok {
		return a, nil
	}
	return "answer to " + query, nil
}

func runLoopOnInput(t *testing.T, ctx context.Context, input string, conv turnRunner) (string, error) {
	t.Helper()
	var out bytes.Buffer
	console := ui.NewConsole(strings.NewReader(input), &out)
	err := chatLoop(ctx, console, conv)
	return out.String(), err
}

func TestChatLoopAnswerAndQuit(t *testing.T) {
	conv := &fakeConversation{answers: map[string]string{
		"what is raft?": "Raft is a consensus algorithm.",
	}}

	out, err := runLoopOnInput(t, context.Background(), "what is raft?\nquit\n", conv)
	if err != nil {
		t.Fatalf("chatLoop() error = %v", err)
	}

	if len(conv.queries) != 1 || conv.queries[0] != "what is raft?" {
		t.Errorf("Turn queries = %v, want just the question", conv.queries)
	}
	if !strings.Contains(out, "Raft is a consensus algorithm.") {
		t.Error("Output should contain the answer")
	}
	if !strings.Contains(out, "Session ended.") {
		t.Error("Output should note the session end")
	}
}

func TestChatLoopSkipsEmptyLines(t *testing.T) {
	conv := &fakeConversation{}

	_, err := runLoopOnInput(t, context.Background(), "\n   \n\t\nquit\n", conv)
	if err != nil {
		t.Fatalf("chatLoop() error = %v", err)
	}
	if len(conv.queries) != 0 {
		t.Errorf("Expected no turns for blank input, got %v", conv.queries)
	}
}

func TestChatLoopContinuesAfterTurnError(t *testing.T) {
	conv := &fakeConversation{err: errors.New("model unavailable")}

	out, err := runLoopOnInput(t, context.Background(), "first\nsecond\n", conv)
	if err != nil {
		t.Fatalf("chatLoop() error = %v", err)
	}

	if len(conv.queries) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(conv.queries))
	}
	if !strings.Contains(out, "Turn failed: model unavailable") {
		t.Error("Output should report the failed turn")
	}
	if !strings.Contains(out, "answer to second") {
		t.Error("Session should continue after a failed turn")
	}
}

func TestChatLoopEndsAtEOF(t *testing.T) {
	conv := &fakeConversation{}

	out, err := runLoopOnInput(t, context.Background(), "hello\n", conv)
	if err != nil {
		t.Fatalf("chatLoop() error = %v", err)
	}
	if !strings.Contains(out, "Session ended.") {
		t.Error("EOF should end the session cleanly")
	}
}

func TestChatLoopContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conv := &fakeConversation{}
	out, err := runLoopOnInput(t, ctx, "hello\n", conv)
	if err != nil {
		t.Fatalf("chatLoop() error = %v", err)
	}

	if len(conv.queries) != 0 {
		t.Errorf("No turn should run on a canceled context, got %v", conv.queries)
	}
	if !strings.Contains(out, "Session ended.") {
		t.Error("Cancellation should end the session cleanly")
	}
}

func TestReadInput(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.txt")
		if err := os.WriteFile(path, []byte("file content"), 0o644); err != nil {
			t.Fatal(err)
		}

		got, err := readInput(path, strings.NewReader("unused"))
		if err != nil {
			t.Fatalf("readInput() error = %v", err)
		}
		if got != "file content" {
			t.Errorf("readInput() = %q, want %q", got, "file content")
		}
	})

	t.Run("from stdin", func(t *testing.T) {
		got, err := readInput("-", strings.NewReader("piped content"))
		if err != nil {
			t.Fatalf("readInput() error = %v", err)
		}
		if got != "piped content" {
			t.Errorf("readInput() = %q, want %q", got, "piped content")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readInput(filepath.Join(t.TempDir(), "absent.txt"), strings.NewReader(""))
		if err == nil {
			t.Fatal("Expected error for missing file")
		}
	})
}

func TestPrintVersion(t *testing.T) {
	originalVersion, originalBuild, originalCommit := AppVersion, BuildTime, GitCommit
	defer func() {
		AppVersion, BuildTime, GitCommit = originalVersion, originalBuild, originalCommit
	}()

	AppVersion, BuildTime, GitCommit = "1.2.3", "2026-01-02T15:04:05Z", "abc1234"

	var out bytes.Buffer
	printVersion(&out)

	got := out.String()
	for _, want := range []string{"docent 1.2.3", "Build Time: 2026-01-02T15:04:05Z", "Git Commit: abc1234"} {
		if !strings.Contains(got, want) {
			t.Errorf("Version output missing %q:\n%s", want, got)
		}
	}
}

func TestHelpTextListsCommands(t *testing.T) {
	for _, want := range []string{"docent chat", "docent ingest", "docent init", "docent version", "quit"} {
		if !strings.Contains(helpText, want) {
			t.Errorf("Help text missing %q", want)
		}
	}
}
