// Package segment splits raw document text into bounded, overlapping chunks
// sized for embedding.
//
// Splitting prefers natural boundaries: paragraph separators first, then
// sentence-ending punctuation, and falls back to a hard token window only when
// a single sentence exceeds the whole chunk budget. Identical input and
// configuration always produce the identical chunk sequence.
package segment

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Default splitting parameters.
const (
	DefaultChunkSize          = 300
	DefaultChunkOverlap       = 20
	DefaultParagraphSeparator = "\n\n"
)

// ErrMalformedText indicates the input text cannot be segmented.
var ErrMalformedText = errors.New("malformed input text")

// sentencePattern matches one sentence-like run: text up to and including the
// next boundary punctuation (period, comma, semicolon, or the East-Asian full
// stop), delimiter attached.
var sentencePattern = regexp.MustCompile(`[^,.;。]+[,.;。]?`)

// Config defines splitting parameters.
//
// Token counts are approximated by whitespace-delimited words. The chunking
// contract requires stable, reproducible boundaries rather than any
// particular tokenizer, and a word count keeps the output independent of
// model-specific vocabularies.
type Config struct {
	// ChunkSize is the target chunk length in tokens.
	ChunkSize int

	// ChunkOverlap is the number of trailing tokens of a chunk repeated at
	// the start of the next one.
	ChunkOverlap int

	// ParagraphSeparator delimits paragraphs. Default: "\n\n".
	ParagraphSeparator string
}

// Splitter produces deterministic overlapping chunks from raw text.
type Splitter struct {
	cfg Config
}

// New creates a Splitter. ChunkSize must be positive and ChunkOverlap must be
// non-negative and strictly smaller than ChunkSize, otherwise no forward
// progress is possible.
func New(cfg Config) (*Splitter, error) {
	if cfg.ChunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.ParagraphSeparator == "" {
		cfg.ParagraphSeparator = DefaultParagraphSeparator
	}
	return &Splitter{cfg: cfg}, nil
}

// sentence is one boundary-delimited run plus whether it opens a new
// paragraph relative to the previous sentence.
type sentence struct {
	text      string
	paraStart bool
}

// Split segments text into chunks of at most ChunkSize tokens, where
// consecutive chunks share a ChunkOverlap-token tail. Empty or blank input
// yields an empty sequence; invalid UTF-8 yields ErrMalformedText.
func (s *Splitter) Split(text string) ([]string, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrMalformedText)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sentences := s.sentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	var (
		chunks    []string
		pieces    []string // pending sentence texts, possibly led by a carry
		seps      []string // separator before each piece; seps[0] is unused
		curTokens int
		fresh     bool // pending content beyond the carried overlap
	)

	// seed clears the pending chunk and starts the next one with at most
	// n trailing tokens of prev.
	seed := func(prev string, n int) {
		pieces = pieces[:0]
		seps = seps[:0]
		curTokens = 0
		fresh = false
		if carry := tailTokens(prev, n); carry != "" {
			pieces = append(pieces, carry)
			seps = append(seps, "")
			curTokens = tokenCount(carry)
		}
	}

	emit := func() {
		chunk := joinPieces(pieces, seps)
		chunks = append(chunks, chunk)
		seed(chunk, s.cfg.ChunkOverlap)
	}

	for _, sn := range sentences {
		t := tokenCount(sn.text)

		// A single sentence larger than the whole budget has no eligible
		// boundary inside it: cut it into hard token windows.
		if t > s.cfg.ChunkSize {
			if fresh {
				emit()
			}
			words := strings.Fields(sn.text)
			chunks = append(chunks, tokenWindows(words, s.cfg.ChunkSize, s.cfg.ChunkOverlap)...)
			seed(chunks[len(chunks)-1], s.cfg.ChunkOverlap)
			continue
		}

		if curTokens+t > s.cfg.ChunkSize {
			if fresh {
				emit()
			}
			// The carried overlap alone may still not leave room; shrink
			// it so the chunk bound holds (chunks share at most
			// ChunkOverlap tokens, fewer is fine).
			if curTokens+t > s.cfg.ChunkSize && len(pieces) > 0 {
				seed(pieces[0], s.cfg.ChunkSize-t)
			}
		}

		sep := " "
		if sn.paraStart {
			sep = s.cfg.ParagraphSeparator
		}
		if len(pieces) == 0 {
			sep = ""
		}
		pieces = append(pieces, sn.text)
		seps = append(seps, sep)
		curTokens += t
		fresh = true
	}

	if fresh {
		chunks = append(chunks, joinPieces(pieces, seps))
	}

	return chunks, nil
}

// sentences splits text into paragraph-aware sentence runs, dropping blanks.
func (s *Splitter) sentences(text string) []sentence {
	var out []sentence
	for _, para := range strings.Split(text, s.cfg.ParagraphSeparator) {
		first := true
		for _, m := range sentencePattern.FindAllString(para, -1) {
			m = strings.TrimSpace(m)
			if m == "" {
				continue
			}
			out = append(out, sentence{
				text:      m,
				paraStart: first && len(out) > 0,
			})
			first = false
		}
	}
	return out
}

// tokenCount counts whitespace-delimited tokens.
func tokenCount(s string) int {
	return len(strings.Fields(s))
}

// tailTokens returns the last n tokens of s joined by single spaces, or the
// whole token sequence when s has fewer than n.
func tailTokens(s string, n int) string {
	if n <= 0 {
		return ""
	}
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[len(fields)-n:]
	}
	return strings.Join(fields, " ")
}

// tokenWindows cuts words into windows of at most size tokens advancing by
// size-overlap, so consecutive windows share an overlap-token tail.
func tokenWindows(words []string, size, overlap int) []string {
	step := size - overlap
	var out []string
	for i := 0; i < len(words); i += step {
		end := min(i+size, len(words))
		out = append(out, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}

// joinPieces rebuilds chunk text from sentence pieces and their leading
// separators.
func joinPieces(pieces, seps []string) string {
	var b strings.Builder
	for i, p := range pieces {
		if i > 0 {
			b.WriteString(seps[i])
		}
		b.WriteString(p)
	}
	return b.String()
}
