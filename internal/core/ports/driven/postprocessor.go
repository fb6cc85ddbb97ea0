package driven

import (
	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// PostProcessor applies post-processing to document chunks.
// Processors form a pipeline: Splitter -> WhitespaceNormalizer -> etc.
type PostProcessor interface {
	// Process applies post-processing to content chunks.
	// The first processor (Splitter) receives one chunk per page.
	Process(chunks []Chunk) []Chunk

	// Name returns the processor name for logging/debugging.
	Name() string

	// Order returns the processor order in the pipeline (lower = earlier).
	Order() int
}

// Chunk represents a piece of document content for processing.
type Chunk struct {
	// Content is the text content of the chunk
	Content string

	// Position is the chunk index within the document (0-based)
	Position int

	// PageNumber is the 1-based page the chunk came from
	PageNumber int
}

// PostProcessorPipeline chains multiple post-processors in order.
type PostProcessorPipeline interface {
	// Process applies all processors in order to the page blocks of one document.
	// Output positions run 0..n-1 across the whole document.
	Process(blocks []domain.TextBlock) []Chunk

	// Add adds a processor to the pipeline.
	// Processors are sorted by Order() before processing.
	Add(processor PostProcessor)

	// List returns processor names in order.
	List() []string
}

// TextSplitter splits one span of text into bounded, overlapping pieces.
type TextSplitter interface {
	SplitText(text string) []string
}
