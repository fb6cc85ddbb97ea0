package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

func TestRetriever_SessionIsolation(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.seed("s1", "/s1/a.pdf", "Paris is the capital of France."))
	require.NoError(t, env.seed("s2", "/s2/b.pdf", "Paris is the capital of France."))

	result, err := env.retriever().Retrieve(context.Background(), "s1", "What is the capital of France?")
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "s1", result.Matches[0].Metadata.SessionID)
	assert.Equal(t, "a.pdf", result.Matches[0].Metadata.Filename)
}

func TestRetriever_ScoreThreshold(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.seed("s1", "/a.pdf",
		"Paris is the capital of France.",
		"Bananas ripen quickly in warm kitchens.",
	))

	result, err := env.retriever().Retrieve(context.Background(), "s1", "What is the capital of France?")
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, 1, result.Matches[0].Metadata.PageNumber)
	assert.GreaterOrEqual(t, result.Matches[0].Score, env.config.ScoreThreshold)
}

func TestRetriever_NoMatches(t *testing.T) {
	env := newTestEnv()

	result, err := env.retriever().Retrieve(context.Background(), "s1", "anything")
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
}

func TestRetriever_SearchRequest(t *testing.T) {
	env := newTestEnv()

	_, err := env.retriever().Retrieve(context.Background(), "s1", "q")
	require.NoError(t, err)

	searches := env.index.Searches()
	require.Len(t, searches, 1)
	assert.Equal(t, env.config.Collection, searches[0].Collection)
	assert.Equal(t, env.config.K, searches[0].K)
	assert.Equal(t, env.config.ScoreThreshold, searches[0].ScoreThreshold)
	assert.Equal(t, domain.MetadataFilter{SessionID: "s1"}, searches[0].Filter)
}

func TestRetriever_QueryVariants(t *testing.T) {
	env := newTestEnv()
	env.config.QueryVariants = 3
	env.llm.CompleteFn = func(req driven.CompletionRequest) (string, error) {
		return "1. Which city is the French capital?\n2. what is the capital of france?\n\n3. Name the capital of France.", nil
	}
	require.NoError(t, env.seed("s1", "/a.pdf", "Paris is the capital of France."))

	result, err := env.retriever().Retrieve(context.Background(), "s1", "What is the capital of France?")
	require.NoError(t, err)

	// The duplicate of the original is dropped
	assert.Equal(t, []string{
		"What is the capital of France?",
		"Which city is the French capital?",
		"Name the capital of France.",
	}, result.Queries)
	assert.Len(t, env.index.Searches(), 3)

	// The same chunk found by several queries appears once
	require.Len(t, result.Matches, 1)
	assert.Contains(t, result.Matches[0].Content, "Paris")
}

func TestRetriever_ExpansionFailureFallsBack(t *testing.T) {
	env := newTestEnv()
	env.config.QueryVariants = 3
	env.llm.SetCompleteFailures(10, errors.New("model down"))

	result, err := env.retriever().Retrieve(context.Background(), "s1", "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"q"}, result.Queries)
	assert.Len(t, env.index.Searches(), 1)
}

func TestRetriever_SearchFailure(t *testing.T) {
	env := newTestEnv()
	env.index.SearchFn = func(req domain.SearchRequest) ([]domain.Match, error) {
		return nil, context.DeadlineExceeded
	}

	result, err := env.retriever().Retrieve(context.Background(), "s1", "q")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrorKindRetrieval))

	var perr *domain.PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "search", perr.Stage)

	require.NotNil(t, result)
	// One embed plus three search attempts
	assert.Equal(t, 4, result.Attempts)
}

func TestRetriever_SearchRecovers(t *testing.T) {
	env := newTestEnv()
	calls := 0
	env.index.SearchFn = func(req domain.SearchRequest) ([]domain.Match, error) {
		calls++
		if calls <= 2 {
			return nil, context.DeadlineExceeded
		}
		return []domain.Match{{ChunkID: "c1", Score: 0.9}}, nil
	}

	result, err := env.retriever().Retrieve(context.Background(), "s1", "q")
	require.NoError(t, err)
	assert.Len(t, result.Matches, 1)
	assert.Equal(t, 3, calls)
}

func TestRetriever_RequiresSession(t *testing.T) {
	env := newTestEnv()

	_, err := env.retriever().Retrieve(context.Background(), "", "q")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.True(t, domain.IsKind(err, domain.ErrorKindRetrieval))
	assert.Empty(t, env.index.Searches())
}

func TestMergeMatches(t *testing.T) {
	merged := mergeMatches([][]domain.Match{
		{{ChunkID: "a", Score: 0.90}, {ChunkID: "b", Score: 0.86}},
		{{ChunkID: "b", Score: 0.95}, {ChunkID: "c", Score: 0.87}},
	})

	require.Len(t, merged, 3)
	assert.Equal(t, "b", merged[0].ChunkID)
	assert.Equal(t, 0.95, merged[0].Score)
	assert.Equal(t, "a", merged[1].ChunkID)
	assert.Equal(t, "c", merged[2].ChunkID)
}

func TestParseVariants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want []string
	}{
		{"numbered", "1. first\n2. second", 3, []string{"first", "second"}},
		{"bullets", "- first\n* second\n• third", 3, []string{"first", "second", "third"}},
		{"blank lines", "\n\nfirst\n\n", 3, []string{"first"}},
		{"capped", "a\nb\nc\nd", 2, []string{"a", "b"}},
		{"empty", "   ", 3, nil},
		{"bare marker", "-\n1.\nfirst", 3, []string{"first"}},
		{"paren marker", "1) first\n2) second", 3, []string{"first", "second"}},
		{"leading digits kept", "1. 2024 revenue by region?\n2. 3D printing costs in the report?\n- .NET support mentioned?", 3,
			[]string{"2024 revenue by region?", "3D printing costs in the report?", ".NET support mentioned?"}},
		{"unnumbered digits kept", "2024 revenue by region?", 3, []string{"2024 revenue by region?"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVariants(tt.in, tt.max))
		})
	}
}

func TestVariantsPrompt(t *testing.T) {
	env := newTestEnv()
	env.config.QueryVariants = 2
	var prompt string
	env.llm.CompleteFn = func(req driven.CompletionRequest) (string, error) {
		prompt = req.Messages[0].Content
		return "", nil
	}

	_, err := env.retriever().Retrieve(context.Background(), "s1", "how do refunds work?")
	require.NoError(t, err)
	assert.True(t, strings.Contains(prompt, "generate 2 different versions"))
	assert.True(t, strings.HasSuffix(prompt, "Original question: how do refunds work?"))
}
