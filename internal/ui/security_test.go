package ui

import (
	"strings"
	"testing"

	"go.uber.org/goleak"
)

// TestConsole_TerminalEscapeSequences checks that dangerous terminal
// escape sequences in model output are handled without crashing. This
// is the CLI analog of XSS: a crafted answer could try to clear the
// screen, retitle the terminal for phishing, or overwrite visible text.
//
// Reference: https://owasp.org/www-community/attacks/Terminal_Escape_Injection
func TestConsole_TerminalEscapeSequences(t *testing.T) {
	defer goleak.VerifyNone(t)

	maliciousOutputs := []struct {
		name    string
		content string
	}{
		{"clear_screen", "\x1b[2J\x1b[H"},
		{"clear_line", "\x1b[2K"},
		{"cursor_hide", "\x1b[?25l"},
		{"cursor_move", "\x1b[100;100H"},
		{"set_title", "\x1b]0;HACKED - Enter Password:\x07"},
		{"bell_flood", strings.Repeat("\x07", 100)},
		{"backspace_overwrite", "Safe message\x08\x08\x08\x08\x08\x08Hacked!"},
		{"carriage_return", "Password: ******\rHacked: visible"},
		{"osc_hyperlink", "\x1b]8;;http://evil.com\x1b\\Click here\x1b]8;;\x1b\\"},
		{"paste_escape", "\x1b[200~malicious\x1b[201~"},
		{"null_injection", "Safe\x00Hidden malicious content"},
		{"combined_attack", "\x1b[2J\x1b[H\x1b]0;Enter sudo password:\x07Password: "},
	}

	for _, tc := range maliciousOutputs {
		t.Run(tc.name, func(t *testing.T) {
			c, out := newTestConsole("")

			// Rendering must not panic on hostile content, whether it
			// goes through markdown or straight to the writer.
			c.Answer(tc.content)
			c.Println(tc.content)

			t.Logf("Raw output length: %d bytes", out.Len())
			if out.Len() == 0 {
				t.Error("Expected some output to be written")
			}
		})
	}
}

// TestConsole_InputSanitization checks that hostile query input is read
// without crashing.
func TestConsole_InputSanitization(t *testing.T) {
	defer goleak.VerifyNone(t)

	maliciousInputs := []struct {
		name  string
		input string
	}{
		{"escape_sequence", "\x1b[2J"},
		{"null_byte", "test\x00malicious"},
		{"unicode_bom", "\uFEFFtest"},
		{"rtl_override", "‮evil‬"},
		{"zero_width", "test​malicious"},
		{"invalid_utf8", "\xff\xfe"},
	}

	for _, tc := range maliciousInputs {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestConsole(tc.input + "\n")

			if line, ok := c.ReadLine(); ok {
				t.Logf("Read %d bytes", len(line))
			} else {
				// EOF or error is acceptable for malformed input.
				t.Logf("ReadLine returned false (acceptable)")
			}
		})
	}
}

// TestConsole_ConfirmInjection checks that Confirm handles injection
// attempts in the answer line deterministically.
func TestConsole_ConfirmInjection(t *testing.T) {
	defer goleak.VerifyNone(t)

	injectionAttempts := []struct {
		name  string
		input string
		want  bool
	}{
		{"escape_after_answer", "y\x1b[2Jmalicious\ny\n", true},
		{"bracketed_paste", "\x1b[200~y\x1b[201~\nn\n", false},
		{"null_between_answers", "y\x00n\nn\n", false},
	}

	for _, tc := range injectionAttempts {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestConsole(tc.input)

			// The polluted first line is not a valid answer, so Confirm
			// must fall through to the clean second line.
			got, err := c.Confirm("Test?")
			if err != nil {
				t.Fatalf("Confirm() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("Confirm() = %v, want %v", got, tc.want)
			}
		})
	}
}
