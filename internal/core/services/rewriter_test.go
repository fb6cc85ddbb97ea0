package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven/mocks"
)

func TestQueryRewriter_Rewrite(t *testing.T) {
	llm := mocks.NewMockLLMService()
	llm.CompleteFn = func(req driven.CompletionRequest) (string, error) {
		return "  What is the population of Paris?\n", nil
	}
	r := NewQueryRewriter(QueryRewriterConfig{LLM: llm, Temperature: 0.2, Retry: fastPolicy(2)})

	history := []domain.Turn{
		{Question: "What is the capital of France?", Answer: "Paris."},
	}
	got, attempts, err := r.Rewrite(context.Background(), "What is its population?", history)
	require.NoError(t, err)

	assert.Equal(t, "What is the population of Paris?", got)
	assert.Equal(t, 1, attempts)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, float32(0.2), reqs[0].Temperature)
	prompt := mocks.LastUserMessage(reqs[0])
	assert.Contains(t, prompt, "Human: What is the capital of France?\nAI: Paris.")
	assert.Contains(t, prompt, "Follow-up question: What is its population?")
}

func TestQueryRewriter_EmptyHistoryStillCallsModel(t *testing.T) {
	llm := mocks.NewMockLLMService()
	llm.CompleteFn = func(req driven.CompletionRequest) (string, error) {
		return "What is Go?", nil
	}
	r := NewQueryRewriter(QueryRewriterConfig{LLM: llm, Retry: fastPolicy(2)})

	got, _, err := r.Rewrite(context.Background(), "What is Go?", nil)
	require.NoError(t, err)
	assert.Equal(t, "What is Go?", got)
	assert.Len(t, llm.Requests(), 1)
}

func TestQueryRewriter_EmptyOutputFallsBack(t *testing.T) {
	llm := mocks.NewMockLLMService()
	llm.CompleteFn = func(req driven.CompletionRequest) (string, error) {
		return "   ", nil
	}
	r := NewQueryRewriter(QueryRewriterConfig{LLM: llm, Retry: fastPolicy(2)})

	got, _, err := r.Rewrite(context.Background(), "original?", nil)
	require.NoError(t, err)
	assert.Equal(t, "original?", got)
}

func TestQueryRewriter_RetriesThenFails(t *testing.T) {
	llm := mocks.NewMockLLMService()
	llm.SetCompleteFailures(5, nil)
	r := NewQueryRewriter(QueryRewriterConfig{LLM: llm, Retry: fastPolicy(2)})

	_, attempts, err := r.Rewrite(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, domain.IsKind(err, domain.ErrorKindGeneration))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFormatTranscript(t *testing.T) {
	assert.Equal(t, "", FormatTranscript(nil))

	turns := []domain.Turn{
		{Question: "q1", Answer: "a1"},
		{Question: "q2", Answer: "a2"},
	}
	assert.Equal(t, "Human: q1\nAI: a1\nHuman: q2\nAI: a2", FormatTranscript(turns))
}
