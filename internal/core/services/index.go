package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driving"
)

// Ensure IndexService implements driving.IndexService
var _ driving.IndexService = (*IndexService)(nil)

// IndexService ingests one document end-to-end:
//  1. Load page-tagged text
//  2. Split into chunks (positions become chunk ids)
//  3. Tag each chunk with its provenance metadata
//  4. Embed and upsert batch by batch into the shared collection
//
// Writes are not transactional across batches; a failure after some batches
// leaves those chunks indexed.
type IndexService struct {
	loader   driven.DocumentLoader
	pipeline driven.PostProcessorPipeline
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	config   domain.RAGConfig
	logger   *slog.Logger
}

// IndexServiceConfig holds dependencies for IndexService.
type IndexServiceConfig struct {
	Loader   driven.DocumentLoader
	Pipeline driven.PostProcessorPipeline
	Embedder driven.EmbeddingService
	Index    driven.VectorIndex
	RAG      domain.RAGConfig
	Logger   *slog.Logger
}

// NewIndexService creates a new index service.
func NewIndexService(cfg IndexServiceConfig) *IndexService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexService{
		loader:   cfg.Loader,
		pipeline: cfg.Pipeline,
		embedder: cfg.Embedder,
		index:    cfg.Index,
		config:   cfg.RAG,
		logger:   logger,
	}
}

// IndexDocument indexes the document stored at path for sessionID.
func (s *IndexService) IndexDocument(ctx context.Context, sessionID, path string) (*domain.IndexResult, error) {
	start := time.Now()

	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(path) == "" {
		return nil, domain.NewIngestionError("validate",
			fmt.Errorf("%w: session_id and path are required", domain.ErrInvalidInput))
	}

	doc := domain.NewDocument(domain.GenerateID(), sessionID, path)
	logger := s.logger.With("session_id", sessionID, "filename", doc.Filename, "document_id", doc.ID)
	logger.Info("indexing document", "path", path)

	blocks, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, domain.NewIngestionError("load", err)
	}

	result := &domain.IndexResult{
		Document: doc,
		Pages:    countPages(blocks),
	}

	pieces := s.pipeline.Process(blocks)
	if len(pieces) == 0 {
		result.Empty = true
		result.Duration = time.Since(start)
		logger.Warn("document has no extractable text", "pages", result.Pages)
		return result, nil
	}

	chunks := make([]*domain.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &domain.Chunk{
			ID:         domain.GenerateID(),
			Collection: s.config.Collection,
			Content:    p.Content,
			Metadata: domain.ChunkMetadata{
				Filename:   doc.Filename,
				SessionID:  sessionID,
				Source:     path,
				PageNumber: p.PageNumber,
				ChunkID:    p.Position,
			},
			CreatedAt: doc.UploadedAt,
		}
	}

	batchSize := s.config.EmbeddingBatchSize
	if batchSize <= 0 {
		batchSize = len(chunks)
	}

	for offset := 0; offset < len(chunks); offset += batchSize {
		end := min(offset+batchSize, len(chunks))
		if err := s.indexBatch(ctx, chunks[offset:end]); err != nil {
			result.Duration = time.Since(start)
			logger.Error("indexing failed",
				"chunks_indexed", result.ChunksIndexed,
				"error", err,
			)
			return result, err
		}
		result.ChunksIndexed += end - offset
	}

	result.Duration = time.Since(start)
	logger.Info("document indexed",
		"chunks", result.ChunksIndexed,
		"pages", result.Pages,
		"duration", result.Duration,
	)
	return result, nil
}

func (s *IndexService) indexBatch(ctx context.Context, batch []*domain.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vectors, _, err := callWithRetry(ctx, s.config.Retry, s.logger, "embed", func(ctx context.Context) ([][]float32, error) {
		return s.embedder.Embed(ctx, texts)
	})
	if err != nil {
		return domain.NewIngestionError("embed", err)
	}
	if len(vectors) != len(batch) {
		return domain.NewIngestionError("embed",
			fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors)))
	}
	for i, c := range batch {
		c.Embedding = vectors[i]
	}

	_, _, err = callWithRetry(ctx, s.config.Retry, s.logger, "upsert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.index.Upsert(ctx, s.config.Collection, batch)
	})
	if err != nil {
		return domain.NewIngestionError("upsert", err)
	}
	return nil
}

// PurgeSession removes every chunk indexed under sessionID.
func (s *IndexService) PurgeSession(ctx context.Context, sessionID string) (int, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, fmt.Errorf("%w: session_id is required", domain.ErrInvalidInput)
	}
	n, err := s.index.DeleteBySession(ctx, s.config.Collection, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge session: %w", err)
	}
	s.logger.Info("purged session chunks", "session_id", sessionID, "chunks", n)
	return n, nil
}

func countPages(blocks []domain.TextBlock) int {
	pages := make(map[int]struct{}, len(blocks))
	for _, b := range blocks {
		pages[b.PageNumber] = struct{}{}
	}
	return len(pages)
}
