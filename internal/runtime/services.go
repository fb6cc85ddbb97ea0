package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/custodia-labs/docchat-core/internal/config"
	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
	"github.com/custodia-labs/docchat-core/internal/core/services"
	"github.com/custodia-labs/docchat-core/internal/postprocessors"
)

// Ports are the driven adapters the pipeline runs on.
// Lock and Queue are optional.
type Ports struct {
	Loader   driven.DocumentLoader
	Embedder driven.EmbeddingService
	LLM      driven.LLMService
	Index    driven.VectorIndex
	History  driven.HistoryStore
	Lock     driven.DistributedLock
	Queue    driven.TaskQueue
}

func (p Ports) validate() error {
	switch {
	case p.Loader == nil:
		return errors.New("document loader is required")
	case p.Embedder == nil:
		return errors.New("embedding service is required")
	case p.LLM == nil:
		return errors.New("llm service is required")
	case p.Index == nil:
		return errors.New("vector index is required")
	case p.History == nil:
		return errors.New("history store is required")
	}
	return nil
}

// Services is the assembled component graph, built once at process start.
type Services struct {
	ports Ports

	Indexer *services.IndexService
	Chat    *services.ChatOrchestrator

	mu      sync.Mutex
	closers []func() error
}

// NewServices wires the core services over ports according to cfg
func NewServices(ports Ports, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	if err := ports.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	rag := cfg.RAG
	indexer := services.NewIndexService(services.IndexServiceConfig{
		Loader: ports.Loader,
		Pipeline: postprocessors.DefaultPipeline(postprocessors.SplitterConfig{
			ChunkSize:    rag.ChunkSize,
			ChunkOverlap: rag.ChunkOverlap,
		}),
		Embedder: ports.Embedder,
		Index:    ports.Index,
		RAG:      rag,
		Logger:   logger,
	})

	var expansion driven.LLMService
	if rag.QueryVariants > 0 {
		expansion = ports.LLM
	}

	var lock driven.DistributedLock
	if cfg.Storage.SessionLock {
		lock = ports.Lock
	}

	chat := services.NewChatOrchestrator(services.ChatOrchestratorConfig{
		History: ports.History,
		Rewriter: services.NewQueryRewriter(services.QueryRewriterConfig{
			LLM:         ports.LLM,
			Temperature: cfg.LLM.Temperature,
			Retry:       rag.Retry,
			Logger:      logger,
		}),
		Retriever: services.NewRetriever(services.RetrieverConfig{
			Embedder: ports.Embedder,
			Index:    ports.Index,
			LLM:      expansion,
			RAG:      rag,
			Logger:   logger,
		}),
		Answerer: services.NewAnswerer(services.AnswererConfig{
			LLM:         ports.LLM,
			Temperature: cfg.LLM.Temperature,
			Retry:       rag.Retry,
			References:  rag.References,
			Logger:      logger,
		}),
		Lock:   lock,
		RAG:    rag,
		Logger: logger,
	})

	return &Services{
		ports:   ports,
		Indexer: indexer,
		Chat:    chat,
	}, nil
}

// Queue returns the task queue, or nil when async indexing is unavailable
func (s *Services) Queue() driven.TaskQueue {
	return s.ports.Queue
}

// OnClose registers fn to run when the services are closed, in reverse order
func (s *Services) OnClose(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

// CheckHealth verifies every backend is reachable
func (s *Services) CheckHealth(ctx context.Context) error {
	var errs []error
	if err := s.ports.Embedder.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("embedding: %w", err))
	}
	if err := s.ports.LLM.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("llm: %w", err))
	}
	if err := s.ports.Index.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("vector index: %w", err))
	}
	if s.ports.Queue != nil {
		if err := s.ports.Queue.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("task queue: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close shuts down the AI clients and every registered closer
func (s *Services) Close() error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	if err := s.ports.Embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.ports.LLM.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.ports.Queue != nil {
		if err := s.ports.Queue.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
