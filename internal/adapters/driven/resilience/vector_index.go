package resilience

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex guards Upsert and Search with a circuit breaker.
// Deletes and health checks pass straight through.
type VectorIndex struct {
	inner   driven.VectorIndex
	breaker *gobreaker.CircuitBreaker
}

// NewVectorIndex wraps inner with a breaker named "vector_index" by default
func NewVectorIndex(inner driven.VectorIndex, cfg BreakerConfig) *VectorIndex {
	return &VectorIndex{
		inner:   inner,
		breaker: newBreaker(cfg.withDefaults("vector_index")),
	}
}

func (v *VectorIndex) Upsert(ctx context.Context, collection string, chunks []*domain.Chunk) error {
	_, err := execute(v.breaker, func() (struct{}, error) {
		return struct{}{}, v.inner.Upsert(ctx, collection, chunks)
	})
	return err
}

func (v *VectorIndex) Search(ctx context.Context, req domain.SearchRequest) ([]domain.Match, error) {
	return execute(v.breaker, func() ([]domain.Match, error) {
		return v.inner.Search(ctx, req)
	})
}

func (v *VectorIndex) DeleteCollection(ctx context.Context, collection string) error {
	return v.inner.DeleteCollection(ctx, collection)
}

func (v *VectorIndex) DeleteBySession(ctx context.Context, collection, sessionID string) (int, error) {
	return v.inner.DeleteBySession(ctx, collection, sessionID)
}

func (v *VectorIndex) HealthCheck(ctx context.Context) error {
	return v.inner.HealthCheck(ctx)
}

// State reports the breaker state
func (v *VectorIndex) State() gobreaker.State {
	return v.breaker.State()
}
