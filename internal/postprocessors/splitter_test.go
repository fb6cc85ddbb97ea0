package postprocessors

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

func TestDefaultSplitterConfig(t *testing.T) {
	cfg := DefaultSplitterConfig()
	if cfg.ChunkSize != 512 {
		t.Errorf("expected ChunkSize 512, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 50 {
		t.Errorf("expected ChunkOverlap 50, got %d", cfg.ChunkOverlap)
	}
	if len(cfg.Separators) != 5 {
		t.Errorf("expected 5 separators, got %d", len(cfg.Separators))
	}
}

func TestSplitter_NameOrder(t *testing.T) {
	s := NewSplitter(DefaultSplitterConfig())
	if s.Name() != "splitter" {
		t.Errorf("expected name 'splitter', got %s", s.Name())
	}
	if s.Order() != 0 {
		t.Errorf("expected order 0, got %d", s.Order())
	}
}

func TestSplitter_SplitText(t *testing.T) {
	tests := []struct {
		name   string
		config SplitterConfig
		input  string
		want   []string
	}{
		{
			name:   "empty",
			config: SplitterConfig{ChunkSize: 10, ChunkOverlap: 2},
			input:  "",
			want:   nil,
		},
		{
			name:   "fits in one chunk",
			config: SplitterConfig{ChunkSize: 100, ChunkOverlap: 10},
			input:  "  Hello, world!  ",
			want:   []string{"Hello, world!"},
		},
		{
			name:   "word boundaries with overlap",
			config: SplitterConfig{ChunkSize: 20, ChunkOverlap: 5},
			input:  "aaaa bbbb cccc dddd eeee ffff",
			want:   []string{"aaaa bbbb cccc dddd", "dddd eeee ffff"},
		},
		{
			name:   "paragraph boundaries preferred",
			config: SplitterConfig{ChunkSize: 30, ChunkOverlap: 0},
			input:  "First para here.\n\nSecond para here.\n\nThird.",
			want:   []string{"First para here.", "Second para here.\n\nThird."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewSplitter(tt.config).SplitText(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d pieces %q, got %d %q", len(tt.want), tt.want, len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("piece %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestSplitter_NoSeparators(t *testing.T) {
	s := NewSplitter(SplitterConfig{ChunkSize: 10, ChunkOverlap: 2})

	pieces := s.SplitText(strings.Repeat("x", 25))
	if len(pieces) != 3 {
		t.Fatalf("expected 3 pieces, got %d: %q", len(pieces), pieces)
	}
	for _, p := range pieces {
		if utf8.RuneCountInString(p) > 10 {
			t.Errorf("piece exceeds chunk size: %q", p)
		}
	}
}

func TestSplitter_RespectsSize(t *testing.T) {
	s := NewSplitter(SplitterConfig{ChunkSize: 80, ChunkOverlap: 15})
	text := strings.Repeat("Every chunk stays below the configured size limit. ", 30) +
		"\n\n" + strings.Repeat("Paragraph two continues with more words here. ", 20)

	pieces := s.SplitText(text)
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}
	for i, p := range pieces {
		if n := utf8.RuneCountInString(p); n > 80 {
			t.Errorf("piece %d has %d chars: %q", i, n, p)
		}
		if strings.TrimSpace(p) != p || p == "" {
			t.Errorf("piece %d is not trimmed: %q", i, p)
		}
	}
}

func TestSplitter_MultibyteText(t *testing.T) {
	s := NewSplitter(SplitterConfig{ChunkSize: 5, ChunkOverlap: 1})
	pieces := s.SplitText("ñandú€ñandú€")
	for _, p := range pieces {
		if !utf8.ValidString(p) {
			t.Errorf("piece is not valid UTF-8: %q", p)
		}
		if utf8.RuneCountInString(p) > 5 {
			t.Errorf("piece exceeds size: %q", p)
		}
	}
}

func TestSplitter_ProcessKeepsPages(t *testing.T) {
	s := NewSplitter(SplitterConfig{ChunkSize: 20, ChunkOverlap: 5})
	chunks := s.Process([]driven.Chunk{
		{Content: "aaaa bbbb cccc dddd eeee ffff", PageNumber: 7},
		{Content: "short", PageNumber: 8},
	})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].PageNumber != 7 || chunks[1].PageNumber != 7 || chunks[2].PageNumber != 8 {
		t.Errorf("unexpected pages: %d %d %d", chunks[0].PageNumber, chunks[1].PageNumber, chunks[2].PageNumber)
	}
}
