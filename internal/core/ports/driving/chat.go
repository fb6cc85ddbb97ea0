package driving

import (
	"context"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// ChatService answers questions against a session's documents
type ChatService interface {
	// Ask starts answering question. The returned channel yields answer deltas
	// followed by exactly one terminal event, then closes.
	Ask(ctx context.Context, sessionID, question string) (<-chan domain.AskEvent, error)

	// AskSync drains Ask and returns its terminal result.
	// The result may be non-nil alongside an error (e.g. persistence failures).
	AskSync(ctx context.Context, sessionID, question string) (*domain.AskResult, error)

	// History returns a session's turns, oldest first
	History(ctx context.Context, sessionID string) ([]domain.Turn, error)

	// ClearHistory removes a session's turns
	ClearHistory(ctx context.Context, sessionID string) error
}
