package ai

import (
	"fmt"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Ensure Factory implements AIServiceFactory
var _ driven.AIServiceFactory = (*Factory)(nil)

const (
	defaultOllamaBaseURL = "http://localhost:11434/v1"
	// Ollama ignores the key but the client requires one
	ollamaAPIKey = "ollama"
)

// Factory creates AI services based on configuration
type Factory struct{}

// NewFactory creates a new AI service factory
func NewFactory() *Factory {
	return &Factory{}
}

// CreateEmbeddingService creates an embedding service from settings
func (f *Factory) CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	var (
		svc *OpenAIEmbedding
		err error
	)
	switch settings.Provider {
	case domain.AIProviderOpenAI:
		svc, err = NewOpenAIEmbedding(settings.APIKey, settings.Model, settings.BaseURL, settings.Dimensions)
	case domain.AIProviderOllama:
		svc, err = NewOllamaEmbedding(settings.BaseURL, settings.Model, settings.Dimensions)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// CreateLLMService creates an LLM service from settings
func (f *Factory) CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	var (
		svc *OpenAILLM
		err error
	)
	switch settings.Provider {
	case domain.AIProviderOpenAI:
		svc, err = NewOpenAILLM(settings.APIKey, settings.Model, settings.BaseURL)
	case domain.AIProviderOllama:
		svc, err = NewOllamaLLM(settings.BaseURL, settings.Model)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// NewOllamaEmbedding creates an embedding service on Ollama's OpenAI-compatible endpoint
func NewOllamaEmbedding(baseURL, model string, dimensions int) (*OpenAIEmbedding, error) {
	if model == "" {
		return nil, fmt.Errorf("Ollama embedding model is required")
	}
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("Ollama embedding dimensions are required")
	}
	e := newEmbedding(ollamaAPIKey, model, baseURL, dimensions)
	// Ollama does not accept a size override
	e.requestDimensions = 0
	return e, nil
}

// NewOllamaLLM creates a chat service on Ollama's OpenAI-compatible endpoint
func NewOllamaLLM(baseURL, model string) (*OpenAILLM, error) {
	if model == "" {
		return nil, fmt.Errorf("Ollama model is required")
	}
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return newLLM(ollamaAPIKey, model, baseURL), nil
}
