package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.HistoryStore = (*HistoryStore)(nil)

const (
	roleHuman = "human"
	roleAI    = "ai"
)

// HistoryStore implements driven.HistoryStore as alternating human and ai
// rows in chat_messages.
type HistoryStore struct {
	db *DB
}

// NewHistoryStore creates a new HistoryStore
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// GetHistory returns a session's turns, oldest first
func (s *HistoryStore) GetHistory(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_id, role, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var (
		turns   []domain.Turn
		current *domain.Turn
	)
	for rows.Next() {
		var (
			turnID, role, content string
			createdAt             time.Time
		)
		if err := rows.Scan(&turnID, &role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		switch role {
		case roleHuman:
			if current != nil {
				turns = append(turns, *current)
			}
			current = &domain.Turn{ID: turnID, SessionID: sessionID, Question: content, CreatedAt: createdAt}
		case roleAI:
			if current == nil || current.ID != turnID {
				// An answer without its question still belongs to the transcript
				turns = append(turns, domain.Turn{ID: turnID, SessionID: sessionID, Answer: content, CreatedAt: createdAt})
				continue
			}
			current.Answer = content
			turns = append(turns, *current)
			current = nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if current != nil {
		turns = append(turns, *current)
	}
	return turns, nil
}

// Append writes the question and answer of turn atomically
func (s *HistoryStore) Append(ctx context.Context, sessionID string, turn *domain.Turn) error {
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if turn.ID == "" {
		turn.ID = domain.GenerateID()
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO chat_messages (session_id, turn_id, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.ExecContext(ctx, query, sessionID, turn.ID, roleHuman, turn.Question, createdAt); err != nil {
			return fmt.Errorf("failed to save question: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, sessionID, turn.ID, roleAI, turn.Answer, createdAt); err != nil {
			return fmt.Errorf("failed to save answer: %w", err)
		}
		return nil
	})
}

// Clear removes a session's messages
func (s *HistoryStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID)
	return err
}
