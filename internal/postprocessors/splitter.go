package postprocessors

import (
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// SplitterConfig configures the recursive splitter.
type SplitterConfig struct {
	// ChunkSize is the target maximum characters per chunk
	ChunkSize int

	// ChunkOverlap is the character overlap between consecutive chunks
	ChunkOverlap int

	// Separators are tried in order; the first one present in the text wins.
	// An empty separator splits into single characters.
	Separators []string
}

// DefaultSeparators prefer paragraph, then line, sentence and word boundaries.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// DefaultSplitterConfig returns the 512/50 configuration.
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkSize:    512,
		ChunkOverlap: 50,
		Separators:   DefaultSeparators,
	}
}

// Splitter splits content into overlapping chunks along the coarsest
// separator that keeps pieces under ChunkSize.
// This is the first processor in the pipeline (Order = 0).
type Splitter struct {
	config SplitterConfig
}

// Verify interface compliance
var (
	_ driven.PostProcessor = (*Splitter)(nil)
	_ driven.TextSplitter  = (*Splitter)(nil)
)

// NewSplitter creates a new splitter with the given config.
func NewSplitter(config SplitterConfig) *Splitter {
	if len(config.Separators) == 0 {
		config.Separators = DefaultSeparators
	}
	return &Splitter{config: config}
}

// Process splits each chunk, keeping its page number.
func (s *Splitter) Process(chunks []driven.Chunk) []driven.Chunk {
	var result []driven.Chunk
	for _, chunk := range chunks {
		for _, piece := range s.SplitText(chunk.Content) {
			result = append(result, driven.Chunk{
				Content:    piece,
				Position:   len(result),
				PageNumber: chunk.PageNumber,
			})
		}
	}
	return result
}

// Name returns the processor name.
func (s *Splitter) Name() string {
	return "splitter"
}

// Order returns 0 - splitter should be first.
func (s *Splitter) Order() int {
	return 0
}

// SplitText splits text into trimmed, non-empty pieces.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.config.Separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := ""
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.config.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}

	out := final[:0]
	for _, f := range final {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// merge packs pieces into chunks of at most ChunkSize, carrying up to
// ChunkOverlap trailing characters into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var docs, current []string
	total := 0

	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.config.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.config.ChunkOverlap || (total+n > s.config.ChunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}

	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepingSeparator splits text after each separator occurrence so the
// separator stays at the end of the preceding piece. An empty separator
// splits into characters.
func splitKeepingSeparator(text, separator string) []string {
	if separator == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	var pieces []string
	for _, p := range strings.SplitAfter(text, separator) {
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
