package driven

import (
	"context"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// HistoryStore is the durable, session-keyed log of conversation turns
type HistoryStore interface {
	// GetHistory returns a session's turns oldest first.
	// An unknown session has an empty history.
	GetHistory(ctx context.Context, sessionID string) ([]domain.Turn, error)

	// Append adds a turn to the end of a session's history
	Append(ctx context.Context, sessionID string, turn *domain.Turn) error

	// Clear removes a session's history
	Clear(ctx context.Context, sessionID string) error
}
