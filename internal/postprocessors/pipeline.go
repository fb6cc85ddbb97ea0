package postprocessors

import (
	"sort"
	"sync"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline implements PostProcessorPipeline.
// It chains multiple post-processors in order, starting with a Splitter.
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.PostProcessor
	sorted     bool
}

// NewPipeline creates a new post-processor pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]driven.PostProcessor, 0),
	}
}

// Add adds a processor to the pipeline.
// Processors are sorted by Order() before processing.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	p.sorted = false
}

// Process applies all processors in order.
// Input is the page blocks of one document; each block seeds one chunk.
// Output positions are renumbered 0..n-1 across the whole document.
func (p *Pipeline) Process(blocks []domain.TextBlock) []driven.Chunk {
	processors := p.ordered()

	chunks := make([]driven.Chunk, 0, len(blocks))
	for i, b := range blocks {
		chunks = append(chunks, driven.Chunk{
			Content:    b.Text,
			Position:   i,
			PageNumber: b.PageNumber,
		})
	}

	for _, proc := range processors {
		chunks = proc.Process(chunks)
	}

	for i := range chunks {
		chunks[i].Position = i
	}
	return chunks
}

// List returns processor names in order.
func (p *Pipeline) List() []string {
	processors := p.ordered()

	names := make([]string, len(processors))
	for i, proc := range processors {
		names[i] = proc.Name()
	}
	return names
}

func (p *Pipeline) ordered() []driven.PostProcessor {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.sorted {
		sort.SliceStable(p.processors, func(i, j int) bool {
			return p.processors[i].Order() < p.processors[j].Order()
		})
		p.sorted = true
	}

	processors := make([]driven.PostProcessor, len(p.processors))
	copy(processors, p.processors)
	return processors
}

// DefaultPipeline creates a pipeline with the splitter and whitespace normalizer.
func DefaultPipeline(cfg SplitterConfig) *Pipeline {
	p := NewPipeline()
	p.Add(NewSplitter(cfg))
	p.Add(NewWhitespaceNormalizer())
	return p
}
