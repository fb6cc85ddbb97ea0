package driving

import (
	"context"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// IndexService ingests documents into the vector index
type IndexService interface {
	// IndexDocument loads, chunks, embeds and stores the document at path
	// under sessionID. A document without text yields an empty result, not an error.
	IndexDocument(ctx context.Context, sessionID, path string) (*domain.IndexResult, error)

	// PurgeSession removes every chunk indexed under sessionID
	PurgeSession(ctx context.Context, sessionID string) (int, error)
}
