package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

func TestIndexService_IndexDocument_OneChunkPerPage(t *testing.T) {
	env := newTestEnv()
	env.loader.AddDocument("/uploads/s1/report.pdf",
		"Revenue grew in the first quarter.",
		"Costs were flat in the second quarter.",
		"Margins improved in the third quarter.",
	)

	result, err := env.indexService().IndexDocument(context.Background(), "s1", "/uploads/s1/report.pdf")
	require.NoError(t, err)

	assert.Equal(t, 3, result.ChunksIndexed)
	assert.Equal(t, 3, result.Pages)
	assert.False(t, result.Empty)
	assert.Equal(t, "report.pdf", result.Document.Filename)

	chunks := env.index.Chunks(env.config.Collection)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, "s1", c.Metadata.SessionID)
		assert.Equal(t, "report.pdf", c.Metadata.Filename)
		assert.Equal(t, "/uploads/s1/report.pdf", c.Metadata.Source)
		assert.Equal(t, i+1, c.Metadata.PageNumber)
		assert.Equal(t, i, c.Metadata.ChunkID)
		assert.Len(t, c.Embedding, env.embedder.Dimensions())
	}
}

func TestIndexService_IndexDocument_LongPageSplits(t *testing.T) {
	env := newTestEnv()
	env.config.ChunkSize = 40
	env.config.ChunkOverlap = 0
	env.loader.AddDocument("/a.pdf", strings.Repeat("word ", 30))

	result, err := env.indexService().IndexDocument(context.Background(), "s1", "/a.pdf")
	require.NoError(t, err)
	assert.Greater(t, result.ChunksIndexed, 1)

	for i, c := range env.index.Chunks(env.config.Collection) {
		assert.LessOrEqual(t, len([]rune(c.Content)), 40)
		assert.Equal(t, 1, c.Metadata.PageNumber)
		assert.Equal(t, i, c.Metadata.ChunkID)
	}
}

func TestIndexService_IndexDocument_Empty(t *testing.T) {
	env := newTestEnv()
	env.loader.AddDocument("/scan.pdf", "   ", "\n\n")

	result, err := env.indexService().IndexDocument(context.Background(), "s1", "/scan.pdf")
	require.NoError(t, err)

	assert.True(t, result.Empty)
	assert.Zero(t, result.ChunksIndexed)
	assert.Empty(t, env.index.Chunks(env.config.Collection))
	assert.Zero(t, env.embedder.Calls())
}

func TestIndexService_IndexDocument_Batches(t *testing.T) {
	env := newTestEnv()
	env.config.EmbeddingBatchSize = 2
	env.loader.AddDocument("/a.pdf", "one", "two", "three", "four", "five")

	result, err := env.indexService().IndexDocument(context.Background(), "s1", "/a.pdf")
	require.NoError(t, err)

	assert.Equal(t, 5, result.ChunksIndexed)
	assert.Equal(t, []int{2, 2, 1}, env.embedder.Batches())
}

func TestIndexService_IndexDocument_RetriesEmbedding(t *testing.T) {
	env := newTestEnv()
	env.embedder.SetFailures(2, nil)
	env.loader.AddDocument("/a.pdf", "page one")

	result, err := env.indexService().IndexDocument(context.Background(), "s1", "/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksIndexed)
	assert.Equal(t, 3, env.embedder.Calls())
}

func TestIndexService_IndexDocument_EmbeddingExhausted(t *testing.T) {
	env := newTestEnv()
	env.config.EmbeddingBatchSize = 1
	env.loader.AddDocument("/a.pdf", "page one", "page two")

	// First batch succeeds, second exhausts its attempts
	calls := 0
	env.index.UpsertFn = func(collection string, chunks []*domain.Chunk) error {
		calls++
		if calls > 1 {
			return context.DeadlineExceeded
		}
		return nil
	}

	result, err := env.indexService().IndexDocument(context.Background(), "s1", "/a.pdf")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrorKindIngestion))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var perr *domain.PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "upsert", perr.Stage)

	require.NotNil(t, result)
	assert.Equal(t, 1, result.ChunksIndexed)
	assert.Len(t, env.index.Chunks(env.config.Collection), 1)
}

func TestIndexService_IndexDocument_LoadError(t *testing.T) {
	env := newTestEnv()
	env.loader.SetError("/bad.pdf", domain.ErrUnsupportedFormat)

	_, err := env.indexService().IndexDocument(context.Background(), "s1", "/bad.pdf")
	assert.True(t, domain.IsKind(err, domain.ErrorKindIngestion))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestIndexService_IndexDocument_Validation(t *testing.T) {
	svc := newTestEnv().indexService()

	_, err := svc.IndexDocument(context.Background(), "", "/a.pdf")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.IndexDocument(context.Background(), "s1", " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIndexService_IndexDocument_SameFileTwice(t *testing.T) {
	env := newTestEnv()
	env.loader.AddDocument("/a.pdf", "page one")
	svc := env.indexService()

	_, err := svc.IndexDocument(context.Background(), "s1", "/a.pdf")
	require.NoError(t, err)
	_, err = svc.IndexDocument(context.Background(), "s1", "/a.pdf")
	require.NoError(t, err)

	// Re-indexing appends rather than replaces
	assert.Len(t, env.index.Chunks(env.config.Collection), 2)
}

func TestIndexService_PurgeSession(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.seed("s1", "/a.pdf", "alpha", "beta"))
	require.NoError(t, env.seed("s2", "/b.pdf", "gamma"))

	n, err := env.indexService().PurgeSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining := env.index.Chunks(env.config.Collection)
	require.Len(t, remaining, 1)
	assert.Equal(t, "s2", remaining[0].Metadata.SessionID)

	_, err = env.indexService().PurgeSession(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
