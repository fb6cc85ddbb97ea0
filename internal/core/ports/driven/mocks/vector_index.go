package mocks

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

var _ driven.VectorIndex = (*MockVectorIndex)(nil)

// MockVectorIndex is an in-memory vector index with cosine scoring
type MockVectorIndex struct {
	mu          sync.Mutex
	collections map[string][]*domain.Chunk
	searches    []domain.SearchRequest

	// Custom behavior hooks (optional)
	UpsertFn func(collection string, chunks []*domain.Chunk) error
	SearchFn func(req domain.SearchRequest) ([]domain.Match, error)
}

// NewMockVectorIndex creates an empty index
func NewMockVectorIndex() *MockVectorIndex {
	return &MockVectorIndex{
		collections: make(map[string][]*domain.Chunk),
	}
}

func (m *MockVectorIndex) Upsert(ctx context.Context, collection string, chunks []*domain.Chunk) error {
	if m.UpsertFn != nil {
		if err := m.UpsertFn(collection, chunks); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		cp := *c
		if cp.ID == "" {
			cp.ID = domain.GenerateID()
		}
		m.collections[collection] = append(m.collections[collection], &cp)
	}
	return nil
}

func (m *MockVectorIndex) Search(ctx context.Context, req domain.SearchRequest) ([]domain.Match, error) {
	m.mu.Lock()
	m.searches = append(m.searches, req)
	m.mu.Unlock()

	if m.SearchFn != nil {
		return m.SearchFn(req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []domain.Match
	for _, c := range m.collections[req.Collection] {
		if !req.Filter.Matches(c.Metadata) {
			continue
		}
		score := Cosine(req.Vector, c.Embedding)
		if score < req.ScoreThreshold {
			continue
		}
		matches = append(matches, domain.Match{
			ChunkID:  c.ID,
			Content:  c.Content,
			Metadata: c.Metadata,
			Score:    score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if req.K > 0 && len(matches) > req.K {
		matches = matches[:req.K]
	}
	return matches, nil
}

func (m *MockVectorIndex) DeleteCollection(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, collection)
	return nil
}

func (m *MockVectorIndex) DeleteBySession(ctx context.Context, collection, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.collections[collection][:0]
	removed := 0
	for _, c := range m.collections[collection] {
		if c.Metadata.SessionID == sessionID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	m.collections[collection] = kept
	return removed, nil
}

func (m *MockVectorIndex) HealthCheck(ctx context.Context) error {
	return nil
}

// Chunks returns a snapshot of a collection (for test assertions)
func (m *MockVectorIndex) Chunks(collection string) []*domain.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Chunk, len(m.collections[collection]))
	copy(out, m.collections[collection])
	return out
}

// Searches returns every search request received
func (m *MockVectorIndex) Searches() []domain.SearchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SearchRequest, len(m.searches))
	copy(out, m.searches)
	return out
}

// Cosine returns the cosine similarity of two vectors
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
