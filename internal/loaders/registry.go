package loaders

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentLoader = (*Registry)(nil)

// Registry implements DocumentLoader by delegating to the first registered
// loader that supports the file.
type Registry struct {
	mu      sync.RWMutex
	loaders []driven.DocumentLoader
}

// NewRegistry creates a new loader registry.
func NewRegistry() *Registry {
	return &Registry{
		loaders: make([]driven.DocumentLoader, 0),
	}
}

// Register registers a loader. Earlier registrations win.
func (r *Registry) Register(loader driven.DocumentLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loaders = append(r.loaders, loader)
}

// Get returns the loader for path, or nil if none supports it.
func (r *Registry) Get(path string) driven.DocumentLoader {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, l := range r.loaders {
		if l.Supports(path) {
			return l
		}
	}
	return nil
}

// Load loads path with the matching loader.
func (r *Registry) Load(ctx context.Context, path string) ([]domain.TextBlock, error) {
	l := r.Get(path)
	if l == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filepath.Ext(path))
	}
	return l.Load(ctx, path)
}

// Supports reports whether any registered loader handles path.
func (r *Registry) Supports(path string) bool {
	return r.Get(path) != nil
}

// Name returns the registry name.
func (r *Registry) Name() string {
	return "registry"
}

// List returns registered loader names in order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.loaders))
	for i, l := range r.loaders {
		names[i] = l.Name()
	}
	return names
}

// DefaultRegistry creates a registry with the PDF and text loaders.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewPDFLoader())
	r.Register(NewTextLoader())
	return r
}

func hasExtension(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
