package loaders

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

var _ driven.DocumentLoader = (*TextLoader)(nil)

// TextLoader loads plain text and Markdown files.
// Form feeds separate pages.
type TextLoader struct{}

// NewTextLoader creates a text loader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load reads the file at path.
func (l *TextLoader) Load(ctx context.Context, path string) ([]domain.TextBlock, error) {
	if !exists(path) {
		return nil, fmt.Errorf("failed to open %s: %w", path, domain.ErrNotFound)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")

	var blocks []domain.TextBlock
	for i, page := range strings.Split(content, "\f") {
		if strings.TrimSpace(page) == "" {
			continue
		}
		blocks = append(blocks, domain.TextBlock{Text: page, PageNumber: i + 1})
	}
	return blocks, nil
}

// Supports returns true for .txt and .md files.
func (l *TextLoader) Supports(path string) bool {
	return hasExtension(path, ".txt", ".md", ".markdown")
}

// Name returns the loader name.
func (l *TextLoader) Name() string {
	return "text"
}
