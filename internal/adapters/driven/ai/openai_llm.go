package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Ensure OpenAILLM implements LLMService
var _ driven.LLMService = (*OpenAILLM)(nil)

const defaultOpenAIChatModel = openai.GPT3Dot5Turbo

// OpenAILLM implements LLMService using the chat completions API
type OpenAILLM struct {
	client  *openai.Client
	model   string
	baseURL string
}

// NewOpenAILLM creates a new OpenAI chat service
func NewOpenAILLM(apiKey, model, baseURL string) (*OpenAILLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = defaultOpenAIChatModel
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return newLLM(apiKey, model, baseURL), nil
}

func newLLM(apiKey, model, baseURL string) *OpenAILLM {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAILLM{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		baseURL: baseURL,
	}
}

// Complete returns the full completion text
func (l *OpenAILLM) Complete(ctx context.Context, req driven.CompletionRequest) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, l.request(req, false))
	if err != nil {
		return "", classify("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream opens a streamed completion. The stream is bound to ctx.
func (l *OpenAILLM) Stream(ctx context.Context, req driven.CompletionRequest) (driven.TokenStream, error) {
	stream, err := l.client.CreateChatCompletionStream(ctx, l.request(req, true))
	if err != nil {
		return nil, classify("chat stream failed", err)
	}
	return &openAIStream{stream: stream}, nil
}

// Model returns the model name being used
func (l *OpenAILLM) Model() string {
	return l.model
}

// Ping verifies the endpoint answers the models listing
func (l *OpenAILLM) Ping(ctx context.Context) error {
	if _, err := l.client.ListModels(ctx); err != nil {
		return classify("list models failed", err)
	}
	return nil
}

// Close releases resources held by the service
func (l *OpenAILLM) Close() error {
	return nil
}

func (l *OpenAILLM) request(req driven.CompletionRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	// A zero temperature is dropped by omitempty and the server would use its default
	temperature := req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	return openai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}

// openAIStream adapts a go-openai stream to TokenStream
type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", classify("chat stream receive failed", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}
