package mocks

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

var _ driven.LLMService = (*MockLLMService)(nil)

// MockLLMService is a scripted LLMService for testing.
// Without hooks, Complete echoes the last user message and Stream emits
// StreamReply word by word.
type MockLLMService struct {
	mu               sync.Mutex
	model            string
	requests         []driven.CompletionRequest
	completeFailures int
	streamFailures   int
	failErr          error
	streamCalls      int

	StreamReply string
	PingErr     error

	// Custom behavior hooks (optional)
	CompleteFn func(req driven.CompletionRequest) (string, error)
	StreamFn   func(ctx context.Context, req driven.CompletionRequest) (driven.TokenStream, error)
}

// NewMockLLMService creates a new MockLLMService
func NewMockLLMService() *MockLLMService {
	return &MockLLMService{
		model:       "mock-llm",
		StreamReply: "I cannot answer that from the provided documents.",
	}
}

func (m *MockLLMService) Complete(ctx context.Context, req driven.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if m.completeFailures > 0 {
		m.completeFailures--
		m.mu.Unlock()
		return "", m.failure()
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.CompleteFn != nil {
		return m.CompleteFn(req)
	}
	return LastUserMessage(req), nil
}

func (m *MockLLMService) Stream(ctx context.Context, req driven.CompletionRequest) (driven.TokenStream, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.streamCalls++
	if m.streamFailures > 0 {
		m.streamFailures--
		m.mu.Unlock()
		return nil, m.failure()
	}
	m.mu.Unlock()

	if m.StreamFn != nil {
		return m.StreamFn(ctx, req)
	}
	return NewMockTokenStream(ctx, SplitTokens(m.StreamReply)...), nil
}

func (m *MockLLMService) Model() string {
	return m.model
}

func (m *MockLLMService) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockLLMService) Close() error {
	return nil
}

func (m *MockLLMService) failure() error {
	if m.failErr != nil {
		return m.failErr
	}
	return context.DeadlineExceeded
}

// Helper methods for testing

// SetCompleteFailures makes the next n Complete calls fail with err (DeadlineExceeded when nil)
func (m *MockLLMService) SetCompleteFailures(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeFailures = n
	m.failErr = err
}

// SetStreamFailures makes the next n Stream calls fail with err (DeadlineExceeded when nil)
func (m *MockLLMService) SetStreamFailures(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamFailures = n
	m.failErr = err
}

// StreamCalls returns how many times Stream was called
func (m *MockLLMService) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

// Requests returns every request received, in order
func (m *MockLLMService) Requests() []driven.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]driven.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastUserMessage returns the content of the final user message in req
func LastUserMessage(req driven.CompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

// SplitTokens splits text into word tokens that concatenate back to text
func SplitTokens(text string) []string {
	var tokens []string
	for len(text) > 0 {
		i := strings.IndexByte(text, ' ')
		if i < 0 {
			tokens = append(tokens, text)
			break
		}
		tokens = append(tokens, text[:i+1])
		text = text[i+1:]
	}
	return tokens
}

// MockTokenStream replays fixed tokens, honouring context cancellation
type MockTokenStream struct {
	ctx    context.Context
	tokens []string
	pos    int
	closed bool

	// BlockAfter > 0 makes Recv block after that many tokens until ctx is done
	BlockAfter int

	// FailAfter > 0 makes Recv return FailErr after that many tokens
	FailAfter int
	FailErr   error
}

// NewMockTokenStream creates a stream over tokens
func NewMockTokenStream(ctx context.Context, tokens ...string) *MockTokenStream {
	return &MockTokenStream{ctx: ctx, tokens: tokens}
}

func (s *MockTokenStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.FailAfter > 0 && s.pos >= s.FailAfter {
		return "", s.FailErr
	}
	if s.BlockAfter > 0 && s.pos >= s.BlockAfter {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	if s.pos >= len(s.tokens) {
		return "", io.EOF
	}
	tok := s.tokens[s.pos]
	s.pos++
	return tok, nil
}

func (s *MockTokenStream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called
func (s *MockTokenStream) Closed() bool {
	return s.closed
}
