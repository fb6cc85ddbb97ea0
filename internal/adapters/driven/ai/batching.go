package ai

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Ensure BatchingEmbedder implements EmbeddingService
var _ driven.EmbeddingService = (*BatchingEmbedder)(nil)

// DefaultEmbeddingBatchSize is the number of texts sent per request
const DefaultEmbeddingBatchSize = 16

// BatchingEmbedder splits large inputs into fixed-size requests, spaces them
// with an optional rate limit and returns unit-length vectors in input order.
type BatchingEmbedder struct {
	inner     driven.EmbeddingService
	batchSize int
	limiter   *rate.Limiter
}

// BatchingEmbedderConfig holds settings for BatchingEmbedder.
type BatchingEmbedderConfig struct {
	BatchSize int

	// RequestsPerSecond <= 0 disables throttling
	RequestsPerSecond float64
	Burst             int
}

// NewBatchingEmbedder wraps inner.
func NewBatchingEmbedder(inner driven.EmbeddingService, cfg BatchingEmbedderConfig) *BatchingEmbedder {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultEmbeddingBatchSize
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &BatchingEmbedder{
		inner:     inner,
		batchSize: batchSize,
		limiter:   limiter,
	}
}

func (b *BatchingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += b.batchSize {
		end := min(offset+b.batchSize, len(texts))
		if err := b.wait(ctx); err != nil {
			return nil, err
		}

		vectors, err := b.inner.Embed(ctx, texts[offset:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", offset, end, err)
		}
		if len(vectors) != end-offset {
			return nil, fmt.Errorf("embedding batch %d-%d: expected %d vectors, got %d",
				offset, end, end-offset, len(vectors))
		}
		for _, v := range vectors {
			out = append(out, Normalize(v))
		}
	}
	return out, nil
}

func (b *BatchingEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	v, err := b.inner.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

func (b *BatchingEmbedder) Dimensions() int {
	return b.inner.Dimensions()
}

func (b *BatchingEmbedder) Model() string {
	return b.inner.Model()
}

func (b *BatchingEmbedder) HealthCheck(ctx context.Context) error {
	return b.inner.HealthCheck(ctx)
}

func (b *BatchingEmbedder) Close() error {
	return b.inner.Close()
}

func (b *BatchingEmbedder) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// Normalize scales v to unit length in place. Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
