package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven/mocks"
)

func match(filename string, page, chunk int, content string) domain.Match {
	return domain.Match{
		Content: content,
		Score:   0.9,
		Metadata: domain.ChunkMetadata{
			Filename:   filename,
			SessionID:  "s1",
			Source:     "/uploads/" + filename,
			PageNumber: page,
			ChunkID:    chunk,
		},
	}
}

func TestAnswerer_StreamsDeltas(t *testing.T) {
	llm := mocks.NewMockLLMService()
	llm.StreamReply = "Paris is the capital."
	a := NewAnswerer(AnswererConfig{LLM: llm, Retry: fastPolicy(2)})

	var deltas []string
	answer, attempts, err := a.Answer(context.Background(), "capital?", nil, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)

	assert.Equal(t, "Paris is the capital.", answer)
	assert.Equal(t, answer, strings.Join(deltas, ""))
	assert.Len(t, deltas, 4)
	assert.Equal(t, 1, attempts)
}

func TestAnswerer_PromptCarriesContext(t *testing.T) {
	llm := mocks.NewMockLLMService()
	a := NewAnswerer(AnswererConfig{LLM: llm, Temperature: 0.1, Retry: fastPolicy(2)})

	matches := []domain.Match{
		match("a.pdf", 1, 0, "first context"),
		match("a.pdf", 2, 1, "second context"),
	}
	_, _, err := a.Answer(context.Background(), "what?", matches, func(string) {})
	require.NoError(t, err)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 1)
	assert.Equal(t, "user", reqs[0].Messages[0].Role)
	assert.Equal(t, float32(0.1), reqs[0].Temperature)

	prompt := reqs[0].Messages[0].Content
	assert.Contains(t, prompt, "first context\n\nsecond context")
	assert.Contains(t, prompt, "Question: what?")
	assert.Contains(t, prompt, "Do not invent facts.")
}

func TestAnswerer_RetriesStreamOpen(t *testing.T) {
	llm := mocks.NewMockLLMService()
	llm.SetStreamFailures(2, nil)
	a := NewAnswerer(AnswererConfig{LLM: llm, Retry: fastPolicy(2)})

	answer, attempts, err := a.Answer(context.Background(), "q", nil, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, llm.StreamReply, answer)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, llm.StreamCalls())
}

// brokenStream fails before producing any token
type brokenStream struct {
	closed bool
}

func (s *brokenStream) Recv() (string, error) { return "", errors.New("connection reset") }
func (s *brokenStream) Close() error          { s.closed = true; return nil }

func TestAnswerer_RetriesFailedFirstDelta(t *testing.T) {
	llm := mocks.NewMockLLMService()
	broken := &brokenStream{}
	llm.StreamFn = func(ctx context.Context, req driven.CompletionRequest) (driven.TokenStream, error) {
		if llm.StreamCalls() == 1 {
			return broken, nil
		}
		return mocks.NewMockTokenStream(ctx, "ok"), nil
	}
	a := NewAnswerer(AnswererConfig{LLM: llm, Retry: fastPolicy(2)})

	answer, attempts, err := a.Answer(context.Background(), "q", nil, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Equal(t, 2, attempts)
	assert.True(t, broken.closed)
}

func TestAnswerer_FailureAfterFirstDeltaIsFinal(t *testing.T) {
	llm := mocks.NewMockLLMService()
	llm.StreamFn = func(ctx context.Context, req driven.CompletionRequest) (driven.TokenStream, error) {
		s := mocks.NewMockTokenStream(ctx, "one ", "two ", "three")
		s.FailAfter = 2
		s.FailErr = errors.New("connection reset")
		return s, nil
	}
	a := NewAnswerer(AnswererConfig{LLM: llm, Retry: fastPolicy(2)})

	answer, _, err := a.Answer(context.Background(), "q", nil, func(string) {})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrorKindGeneration))
	assert.Equal(t, "one two ", answer)
	assert.Equal(t, 1, llm.StreamCalls())
}

func TestAnswerer_CancelTruncates(t *testing.T) {
	llm := mocks.NewMockLLMService()
	var stream *mocks.MockTokenStream
	llm.StreamFn = func(ctx context.Context, req driven.CompletionRequest) (driven.TokenStream, error) {
		stream = mocks.NewMockTokenStream(ctx, "one ", "two ", "three")
		stream.BlockAfter = 2
		return stream, nil
	}
	a := NewAnswerer(AnswererConfig{LLM: llm, Retry: fastPolicy(2)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := 0
	answer, _, err := a.Answer(ctx, "q", nil, func(string) {
		received++
		if received == 2 {
			cancel()
		}
	})

	assert.ErrorIs(t, err, domain.ErrAnswerTruncated)
	assert.Equal(t, "one two ", answer)
	require.NotNil(t, stream)
	assert.True(t, stream.Closed())
}

func TestAnswerer_EmptyStream(t *testing.T) {
	llm := mocks.NewMockLLMService()
	llm.StreamReply = ""
	a := NewAnswerer(AnswererConfig{LLM: llm, Retry: fastPolicy(2)})

	emitted := false
	answer, _, err := a.Answer(context.Background(), "q", nil, func(string) { emitted = true })
	require.NoError(t, err)
	assert.Empty(t, answer)
	assert.False(t, emitted)
}

func TestAnswerer_BuildReferences(t *testing.T) {
	a := NewAnswerer(AnswererConfig{LLM: mocks.NewMockLLMService()})

	matches := []domain.Match{
		match("b.pdf", 4, 9, "x"),
		match("a.pdf", 1, 0, "y"),
		match("a.pdf", 2, 3, "z"),
	}
	refs, dominant := a.BuildReferences(matches)

	assert.Equal(t, "a.pdf", dominant)
	require.Len(t, refs, 2)
	assert.Equal(t, domain.Reference{Filename: "a.pdf", PageNumber: 1, ChunkID: 0, Source: "/uploads/a.pdf"}, refs[0])
	assert.Equal(t, 2, refs[1].PageNumber)
}

func TestAnswerer_BuildReferences_Tie(t *testing.T) {
	a := NewAnswerer(AnswererConfig{LLM: mocks.NewMockLLMService()})

	refs, dominant := a.BuildReferences([]domain.Match{
		match("first.pdf", 1, 0, "x"),
		match("second.pdf", 1, 0, "y"),
	})
	assert.Equal(t, "first.pdf", dominant)
	assert.Len(t, refs, 1)
}

func TestAnswerer_BuildReferences_Empty(t *testing.T) {
	a := NewAnswerer(AnswererConfig{LLM: mocks.NewMockLLMService()})

	refs, dominant := a.BuildReferences(nil)
	assert.NotNil(t, refs)
	assert.Empty(t, refs)
	assert.Empty(t, dominant)
}

func TestAnswerer_BuildReferences_NoneMode(t *testing.T) {
	a := NewAnswerer(AnswererConfig{LLM: mocks.NewMockLLMService(), References: domain.ReferenceModeNone})

	refs, dominant := a.BuildReferences([]domain.Match{match("a.pdf", 1, 0, "x")})
	assert.NotNil(t, refs)
	assert.Empty(t, refs)
	assert.Equal(t, "a.pdf", dominant)
}

func TestDominantSource_UnknownFilename(t *testing.T) {
	dominant, refs := DominantSource([]domain.Match{{Content: "x"}})
	assert.Equal(t, "unknown.pdf", dominant)
	assert.Len(t, refs, 1)
}

// pacedStream emits tokens after a per-token delay, honouring ctx.
type pacedStream struct {
	ctx    context.Context
	tokens []string
	delays []time.Duration
	pos    int
}

func (s *pacedStream) Recv() (string, error) {
	if s.pos >= len(s.tokens) {
		return "", io.EOF
	}
	select {
	case <-time.After(s.delays[s.pos]):
	case <-s.ctx.Done():
		return "", s.ctx.Err()
	}
	tok := s.tokens[s.pos]
	s.pos++
	return tok, nil
}

func (s *pacedStream) Close() error { return nil }

func TestAnswerer_LongStreamWithinIdleTimeout(t *testing.T) {
	llm := mocks.NewMockLLMService()
	llm.StreamFn = func(ctx context.Context, req driven.CompletionRequest) (driven.TokenStream, error) {
		d := 30 * time.Millisecond
		return &pacedStream{
			ctx:    ctx,
			tokens: []string{"a ", "b ", "c ", "d ", "e"},
			delays: []time.Duration{d, d, d, d, d},
		}, nil
	}
	policy := fastPolicy(0)
	policy.Timeout = 100 * time.Millisecond
	a := NewAnswerer(AnswererConfig{LLM: llm, Retry: policy})

	answer, _, err := a.Answer(context.Background(), "q", nil, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, "a b c d e", answer)
}

func TestAnswerer_StalledStreamTimesOut(t *testing.T) {
	llm := mocks.NewMockLLMService()
	llm.StreamFn = func(ctx context.Context, req driven.CompletionRequest) (driven.TokenStream, error) {
		return &pacedStream{
			ctx:    ctx,
			tokens: []string{"partial ", "late"},
			delays: []time.Duration{time.Millisecond, time.Second},
		}, nil
	}
	policy := fastPolicy(0)
	policy.Timeout = 50 * time.Millisecond
	a := NewAnswerer(AnswererConfig{LLM: llm, Retry: policy})

	answer, _, err := a.Answer(context.Background(), "q", nil, func(string) {})
	require.Error(t, err)
	assert.Equal(t, "partial ", answer)
	assert.True(t, domain.IsKind(err, domain.ErrorKindGeneration))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAnswerer_SlowFirstDeltaRetried(t *testing.T) {
	llm := mocks.NewMockLLMService()
	calls := 0
	llm.StreamFn = func(ctx context.Context, req driven.CompletionRequest) (driven.TokenStream, error) {
		calls++
		first := time.Millisecond
		if calls == 1 {
			first = time.Second
		}
		return &pacedStream{ctx: ctx, tokens: []string{"ok"}, delays: []time.Duration{first}}, nil
	}
	policy := fastPolicy(1)
	policy.Timeout = 50 * time.Millisecond
	a := NewAnswerer(AnswererConfig{LLM: llm, Retry: policy})

	answer, attempts, err := a.Answer(context.Background(), "q", nil, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Equal(t, 2, attempts)
}
