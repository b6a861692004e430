// Package ui renders the interactive console surface: the startup
// banner, the input prompt, and markdown formatting for answers.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Console wraps the terminal's input and output streams with styled
// rendering. It is line oriented: one query in, one answer out.
type Console struct {
	in     *bufio.Scanner
	out    io.Writer
	styles Styles
	md     *markdownRenderer
}

// NewConsole creates a console reading queries from in and writing
// styled output to out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	sc := bufio.NewScanner(in)
	// Allow pasted queries well beyond the default 64KB token limit.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &Console{
		in:     sc,
		out:    out,
		styles: DefaultStyles(),
		md:     newMarkdownRenderer(defaultWidth),
	}
}

// Banner writes the startup banner and welcome tips.
func (c *Console) Banner() {
	fmt.Fprintln(c.out, c.styles.RenderBanner())
	fmt.Fprintln(c.out, c.styles.RenderWelcomeTips())
}

// Prompt writes the input prompt without a trailing newline.
func (c *Console) Prompt() {
	fmt.Fprint(c.out, c.styles.Prompt.Render(">")+" ")
}

// ReadLine reads the next input line with surrounding whitespace
// trimmed. ok is false once input is exhausted or fails.
func (c *Console) ReadLine() (line string, ok bool) {
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

// Err reports the first non-EOF error encountered while reading input.
func (c *Console) Err() error {
	return c.in.Err()
}

// Confirm prompts for a yes or no answer, retrying until one is given.
// Returns io.EOF if input ends before an answer arrives.
func (c *Console) Confirm(prompt string) (bool, error) {
	for {
		c.Print(prompt + " [y/n]: ")

		line, ok := c.ReadLine()
		if !ok {
			if err := c.Err(); err != nil {
				return false, err
			}
			return false, io.EOF
		}

		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// Answer renders a model answer as markdown under the assistant marker.
func (c *Console) Answer(text string) {
	fmt.Fprintln(c.out, c.styles.Assistant.Render("docent:"))
	fmt.Fprintln(c.out, c.md.Render(text))
	fmt.Fprintln(c.out)
}

// System writes a dim status line, such as session start and end notes.
func (c *Console) System(msg string) {
	fmt.Fprintln(c.out, c.styles.System.Render(msg))
}

// Errorf writes a formatted error line in the error style.
func (c *Console) Errorf(format string, args ...any) {
	fmt.Fprintln(c.out, c.styles.Error.Render(fmt.Sprintf(format, args...)))
}

// Print writes its arguments without a newline, unstyled.
func (c *Console) Print(args ...any) {
	fmt.Fprint(c.out, args...)
}

// Println writes its arguments followed by a newline, unstyled.
func (c *Console) Println(args ...any) {
	fmt.Fprintln(c.out, args...)
}

// Printf writes a formatted string, unstyled.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
