package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.HistoryStore = (*HistoryStore)(nil)

const historyPrefix = "docchat:history:"

// HistoryStore implements driven.HistoryStore with one Redis list per session.
// Each element is a JSON turn; RPUSH keeps insertion order.
type HistoryStore struct {
	client   redis.UniversalClient
	ttl      time.Duration
	maxTurns int
}

// HistoryStoreConfig holds optional retention settings.
type HistoryStoreConfig struct {
	// TTL expires an idle session's history. Zero keeps it forever.
	TTL time.Duration

	// MaxTurns keeps only the newest turns. Zero keeps all.
	MaxTurns int
}

// NewHistoryStore creates a new Redis-backed HistoryStore
func NewHistoryStore(client redis.UniversalClient, cfg HistoryStoreConfig) *HistoryStore {
	return &HistoryStore{
		client:   client,
		ttl:      cfg.TTL,
		maxTurns: cfg.MaxTurns,
	}
}

// GetHistory returns a session's turns, oldest first
func (s *HistoryStore) GetHistory(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	items, err := s.client.LRange(ctx, historyPrefix+sessionID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	turns := make([]domain.Turn, 0, len(items))
	for _, item := range items {
		var t domain.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("failed to decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append adds turn to the end of the session's list
func (s *HistoryStore) Append(ctx context.Context, sessionID string, turn *domain.Turn) error {
	if turn.ID == "" {
		turn.ID = domain.GenerateID()
	}
	if turn.SessionID == "" {
		turn.SessionID = sessionID
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	key := historyPrefix + sessionID
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.maxTurns > 0 {
		pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// Clear removes a session's history
func (s *HistoryStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, historyPrefix+sessionID).Err()
}
