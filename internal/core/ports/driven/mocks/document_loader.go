package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

var _ driven.DocumentLoader = (*MockDocumentLoader)(nil)

// MockDocumentLoader serves fixed blocks per path
type MockDocumentLoader struct {
	mu     sync.Mutex
	docs   map[string][]domain.TextBlock
	errors map[string]error
}

// NewMockDocumentLoader creates an empty loader
func NewMockDocumentLoader() *MockDocumentLoader {
	return &MockDocumentLoader{
		docs:   make(map[string][]domain.TextBlock),
		errors: make(map[string]error),
	}
}

// AddDocument registers page texts for path, numbered from 1
func (m *MockDocumentLoader) AddDocument(path string, pages ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blocks := make([]domain.TextBlock, len(pages))
	for i, p := range pages {
		blocks[i] = domain.TextBlock{Text: p, PageNumber: i + 1}
	}
	m.docs[path] = blocks
}

// SetError makes Load fail for path
func (m *MockDocumentLoader) SetError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[path] = err
}

func (m *MockDocumentLoader) Load(ctx context.Context, path string) ([]domain.TextBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errors[path]; ok {
		return nil, err
	}
	blocks, ok := m.docs[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, domain.ErrNotFound)
	}
	return blocks, nil
}

func (m *MockDocumentLoader) Supports(path string) bool {
	return true
}

func (m *MockDocumentLoader) Name() string {
	return "mock"
}
