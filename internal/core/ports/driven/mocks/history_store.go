package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

var _ driven.HistoryStore = (*MockHistoryStore)(nil)

// MockHistoryStore is an in-memory HistoryStore for testing
type MockHistoryStore struct {
	mu    sync.Mutex
	turns map[string][]domain.Turn

	// Custom behavior hooks (optional)
	GetFn    func(sessionID string) ([]domain.Turn, error)
	AppendFn func(sessionID string, turn *domain.Turn) error
}

// NewMockHistoryStore creates an empty store
func NewMockHistoryStore() *MockHistoryStore {
	return &MockHistoryStore{
		turns: make(map[string][]domain.Turn),
	}
}

func (m *MockHistoryStore) GetHistory(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	if m.GetFn != nil {
		return m.GetFn(sessionID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Turn, len(m.turns[sessionID]))
	copy(out, m.turns[sessionID])
	return out, nil
}

func (m *MockHistoryStore) Append(ctx context.Context, sessionID string, turn *domain.Turn) error {
	if m.AppendFn != nil {
		if err := m.AppendFn(sessionID, turn); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[sessionID] = append(m.turns[sessionID], *turn)
	return nil
}

func (m *MockHistoryStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.turns, sessionID)
	return nil
}

// Seed preloads turns for a session (for test setup)
func (m *MockHistoryStore) Seed(sessionID string, turns ...domain.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[sessionID] = append(m.turns[sessionID], turns...)
}
