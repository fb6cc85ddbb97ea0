package ai

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/ports/driven/mocks"
)

func TestBatchingEmbedder_SplitsBatches(t *testing.T) {
	inner := mocks.NewMockEmbeddingService()
	b := NewBatchingEmbedder(inner, BatchingEmbedderConfig{BatchSize: 2})

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := b.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}

	batches := inner.Batches()
	if len(batches) != 3 || batches[0] != 2 || batches[1] != 2 || batches[2] != 1 {
		t.Errorf("expected batches [2 2 1], got %v", batches)
	}

	// Order is preserved: same text gives the same vector as a single query
	want, _ := inner.EmbedQuery(context.Background(), "c")
	if mocks.Cosine(vectors[2], want) < 0.999 {
		t.Error("vector 2 does not belong to text c")
	}
}

func TestBatchingEmbedder_DefaultBatchSize(t *testing.T) {
	b := NewBatchingEmbedder(mocks.NewMockEmbeddingService(), BatchingEmbedderConfig{})
	if b.batchSize != DefaultEmbeddingBatchSize {
		t.Errorf("expected default batch size %d, got %d", DefaultEmbeddingBatchSize, b.batchSize)
	}
}

func TestBatchingEmbedder_Failure(t *testing.T) {
	inner := mocks.NewMockEmbeddingService()
	inner.SetFailures(1, errors.New("boom"))
	b := NewBatchingEmbedder(inner, BatchingEmbedderConfig{BatchSize: 2})

	if _, err := b.Embed(context.Background(), []string{"a", "b", "c"}); err == nil {
		t.Error("expected batch error")
	}
}

func TestBatchingEmbedder_RateLimit(t *testing.T) {
	inner := mocks.NewMockEmbeddingService()
	b := NewBatchingEmbedder(inner, BatchingEmbedderConfig{BatchSize: 1, RequestsPerSecond: 20, Burst: 1})

	start := time.Now()
	if _, err := b.Embed(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Three requests at 20/s with burst 1 need at least two 50ms gaps
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected throttling, finished in %v", elapsed)
	}
}

func TestBatchingEmbedder_RateLimitHonoursContext(t *testing.T) {
	b := NewBatchingEmbedder(mocks.NewMockEmbeddingService(), BatchingEmbedderConfig{RequestsPerSecond: 0.001, Burst: 1})

	// Spend the only token
	if _, err := b.EmbedQuery(context.Background(), "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := b.EmbedQuery(ctx, "b"); err == nil {
		t.Error("expected the limiter to give up when ctx expires")
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("unexpected unit vector %v", v)
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector must stay zero, got %v", zero)
	}
}
