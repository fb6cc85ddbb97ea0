package driven

import (
	"context"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// VectorIndex persists chunk vectors with metadata, grouped by collection
type VectorIndex interface {
	// Upsert appends chunks to a collection.
	// Content is never deduplicated; indexing the same document twice duplicates its chunks.
	Upsert(ctx context.Context, collection string, chunks []*domain.Chunk) error

	// Search returns at most req.K matches scoped by req.Filter, ordered by
	// descending similarity, each scoring at least req.ScoreThreshold.
	// A missing collection yields an empty result, not an error.
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.Match, error)

	// DeleteCollection removes every chunk in a collection
	DeleteCollection(ctx context.Context, collection string) error

	// DeleteBySession removes every chunk of one session and returns the count
	DeleteBySession(ctx context.Context, collection, sessionID string) (int, error)

	// HealthCheck verifies the index is reachable
	HealthCheck(ctx context.Context) error
}
