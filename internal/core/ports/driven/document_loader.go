package driven

import (
	"context"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// DocumentLoader extracts page-tagged text from a stored file
type DocumentLoader interface {
	// Load returns the document's text blocks in page order.
	// A readable file with no text returns an empty slice and no error.
	Load(ctx context.Context, path string) ([]domain.TextBlock, error)

	// Supports reports whether the loader handles the file at path
	Supports(path string) bool

	// Name returns the loader name for logging
	Name() string
}
