package services

import (
	"context"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/docchat-core/internal/postprocessors"
)

// testRAGConfig returns defaults with millisecond backoff and a threshold
// loose enough for bag-of-words mock embeddings.
func testRAGConfig() domain.RAGConfig {
	cfg := domain.DefaultRAGConfig()
	cfg.K = 4
	cfg.ScoreThreshold = 0.5
	cfg.QueryVariants = 0
	cfg.Retry = domain.RetryPolicy{
		Timeout:        time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
	}
	return cfg
}

type testEnv struct {
	config   domain.RAGConfig
	loader   *mocks.MockDocumentLoader
	embedder *mocks.MockEmbeddingService
	index    *mocks.MockVectorIndex
	llm      *mocks.MockLLMService
	history  *mocks.MockHistoryStore
	lock     *mocks.MockDistributedLock
}

func newTestEnv() *testEnv {
	return &testEnv{
		config:   testRAGConfig(),
		loader:   mocks.NewMockDocumentLoader(),
		embedder: mocks.NewMockEmbeddingService(),
		index:    mocks.NewMockVectorIndex(),
		llm:      mocks.NewMockLLMService(),
		history:  mocks.NewMockHistoryStore(),
		lock:     mocks.NewMockDistributedLock(),
	}
}

func (e *testEnv) indexService() *IndexService {
	return NewIndexService(IndexServiceConfig{
		Loader: e.loader,
		Pipeline: postprocessors.DefaultPipeline(postprocessors.SplitterConfig{
			ChunkSize:    e.config.ChunkSize,
			ChunkOverlap: e.config.ChunkOverlap,
		}),
		Embedder: e.embedder,
		Index:    e.index,
		RAG:      e.config,
	})
}

// retriever builds a Retriever; expansion uses the shared LLM only when
// QueryVariants is positive.
func (e *testEnv) retriever() *Retriever {
	cfg := RetrieverConfig{
		Embedder: e.embedder,
		Index:    e.index,
		RAG:      e.config,
	}
	if e.config.QueryVariants > 0 {
		cfg.LLM = e.llm
	}
	return NewRetriever(cfg)
}

func (e *testEnv) orchestrator(onTransition func(string, domain.ChatState, domain.ChatState)) *ChatOrchestrator {
	return NewChatOrchestrator(ChatOrchestratorConfig{
		History: e.history,
		Rewriter: NewQueryRewriter(QueryRewriterConfig{
			LLM:   e.llm,
			Retry: e.config.Retry,
		}),
		Retriever: e.retriever(),
		Answerer: NewAnswerer(AnswererConfig{
			LLM:        e.llm,
			Retry:      e.config.Retry,
			References: e.config.References,
		}),
		Lock:         e.lock,
		RAG:          e.config,
		OnTransition: onTransition,
	})
}

// seed indexes one document of pages for sessionID.
func (e *testEnv) seed(sessionID, path string, pages ...string) error {
	e.loader.AddDocument(path, pages...)
	_, err := e.indexService().IndexDocument(context.Background(), sessionID, path)
	return err
}
