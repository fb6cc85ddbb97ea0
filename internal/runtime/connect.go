package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docchat-core/internal/adapters/driven/ai"
	"github.com/custodia-labs/docchat-core/internal/adapters/driven/postgres"
	queueredis "github.com/custodia-labs/docchat-core/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/docchat-core/internal/adapters/driven/redis"
	"github.com/custodia-labs/docchat-core/internal/adapters/driven/resilience"
	"github.com/custodia-labs/docchat-core/internal/config"
	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
	"github.com/custodia-labs/docchat-core/internal/loaders"
)

// Connect builds every adapter named by cfg and wires the services over them.
// Redis is optional; without it the session lock falls back to Postgres
// advisory locks and async indexing is unavailable.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ports, closers, err := buildPorts(ctx, cfg, logger)
	if err != nil {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	svc, err := NewServices(ports, cfg, logger)
	if err != nil {
		_ = ports.Embedder.Close()
		_ = ports.LLM.Close()
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}
	for _, c := range closers {
		svc.OnClose(c)
	}
	return svc, nil
}

// buildPorts returns the closers of everything it opened besides the AI
// clients, which Services.Close owns.
func buildPorts(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports Ports, closers []func() error, err error) {
	embedder, llm, err := buildAI(cfg)
	if err != nil {
		return ports, nil, err
	}
	defer func() {
		if err != nil {
			_ = embedder.Close()
			_ = llm.Close()
		}
	}()

	dbCfg := postgres.DefaultConfig(cfg.Storage.DatabaseURL)
	dbCfg.Logger = logger
	db, err := postgres.Connect(ctx, dbCfg)
	if err != nil {
		return ports, closers, fmt.Errorf("failed to connect to database: %w", err)
	}
	closers = append(closers, db.Close)
	logger.Info("postgres connected")

	var redisClient redis.UniversalClient
	if cfg.Storage.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			return ports, closers, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		closers = append(closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return ports, closers, fmt.Errorf("failed to connect to redis: %w", err)
		}
		redisClient = client
		logger.Info("redis connected")
	}

	var index driven.VectorIndex = postgres.NewVectorIndex(db)
	if cfg.Breaker.Enabled {
		breaker := resilience.BreakerConfig{
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Breaker.OpenTimeout,
			Logger:              logger,
		}
		index = resilience.NewVectorIndex(index, breaker)
		llm = resilience.NewLLM(llm, breaker)
	}

	ports = Ports{
		Loader:   loaders.DefaultRegistry(),
		Embedder: embedder,
		LLM:      llm,
		Index:    index,
	}

	switch cfg.Storage.History {
	case config.HistoryBackendRedis:
		ports.History = redisadapter.NewHistoryStore(redisClient, redisadapter.HistoryStoreConfig{
			TTL:      cfg.Storage.HistoryTTL,
			MaxTurns: cfg.Storage.HistoryMaxTurns,
		})
	default:
		ports.History = postgres.NewHistoryStore(db)
	}

	if redisClient != nil {
		ports.Lock = redisadapter.NewLock(redisClient)
		queue, err := queueredis.NewQueue(ctx, redisClient, queueredis.QueueConfig{Logger: logger})
		if err != nil {
			return ports, closers, fmt.Errorf("failed to create task queue: %w", err)
		}
		ports.Queue = queue
	} else {
		ports.Lock = postgres.NewAdvisoryLock(db)
	}

	logger.Info("adapters ready",
		"history_backend", cfg.Storage.History,
		"redis", redisClient != nil,
		"breaker", cfg.Breaker.Enabled,
		"embedding_model", embedder.Model(),
		"llm_model", llm.Model(),
	)
	return ports, closers, nil
}

// buildAI creates the embedding and LLM clients. Embeddings are always
// batched at the configured size and L2-normalized.
func buildAI(cfg *config.Config) (driven.EmbeddingService, driven.LLMService, error) {
	factory := ai.NewFactory()

	embedding := cfg.Embedding
	inner, err := factory.CreateEmbeddingService(&embedding)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding service: %w", err)
	}
	if inner == nil {
		return nil, nil, fmt.Errorf("%w: embedding provider %q is not configured", domain.ErrInvalidInput, embedding.Provider)
	}
	embedder := ai.NewBatchingEmbedder(inner, ai.BatchingEmbedderConfig{
		BatchSize:         cfg.RAG.EmbeddingBatchSize,
		RequestsPerSecond: cfg.EmbeddingRequestsPerSecond,
	})

	settings := cfg.LLM
	llm, err := factory.CreateLLMService(&settings)
	if err != nil {
		_ = embedder.Close()
		return nil, nil, fmt.Errorf("failed to create llm service: %w", err)
	}
	if llm == nil {
		_ = embedder.Close()
		return nil, nil, fmt.Errorf("%w: llm provider %q is not configured", domain.ErrInvalidInput, settings.Provider)
	}
	return embedder, llm, nil
}
