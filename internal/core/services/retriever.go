package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

const variantsPrompt = `You are an AI language model assistant. Your task is to generate %d different versions of the given user question to retrieve relevant documents from a vector database. By generating multiple perspectives on the user question, your goal is to help the user overcome some of the limitations of distance-based similarity search. Provide these alternative questions separated by newlines.
Original question: %s`

// Retriever expands a standalone question into several queries and returns
// the union of their session-scoped matches.
type Retriever struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	llm      driven.LLMService
	config   domain.RAGConfig
	logger   *slog.Logger
}

// RetrieverConfig holds dependencies for Retriever.
type RetrieverConfig struct {
	Embedder driven.EmbeddingService
	Index    driven.VectorIndex
	LLM      driven.LLMService // nil disables query expansion
	RAG      domain.RAGConfig
	Logger   *slog.Logger
}

// NewRetriever creates a new retriever.
func NewRetriever(cfg RetrieverConfig) *Retriever {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: cfg.Embedder,
		index:    cfg.Index,
		llm:      cfg.LLM,
		config:   cfg.RAG,
		logger:   logger,
	}
}

// RetrievalResult is the merged outcome of all variant searches.
type RetrievalResult struct {
	Queries  []string
	Matches  []domain.Match
	Attempts int
}

// Retrieve searches the index once per query variant, concurrently, and
// merges the results. Matches are unique by chunk and ordered by score.
func (r *Retriever) Retrieve(ctx context.Context, sessionID, question string) (*RetrievalResult, error) {
	filter := domain.MetadataFilter{SessionID: sessionID}
	if err := filter.Validate(); err != nil {
		return nil, domain.NewRetrievalError("filter", err)
	}

	queries, attempts := r.expand(ctx, question)
	results := make([][]domain.Match, len(queries))
	searchAttempts := make([]int, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			matches, n, err := r.search(gctx, q, filter)
			searchAttempts[i] = n
			if err != nil {
				return err
			}
			results[i] = matches
			return nil
		})
	}
	err := g.Wait()
	for _, n := range searchAttempts {
		attempts += n
	}
	if err != nil {
		return &RetrievalResult{Queries: queries, Attempts: attempts}, err
	}

	merged := mergeMatches(results)
	r.logger.Info("retrieved chunks",
		"session_id", sessionID,
		"queries", len(queries),
		"matches", len(merged),
	)
	return &RetrievalResult{Queries: queries, Matches: merged, Attempts: attempts}, nil
}

// search embeds one query and runs one bounded, retried index search.
func (r *Retriever) search(ctx context.Context, query string, filter domain.MetadataFilter) ([]domain.Match, int, error) {
	vector, attempts, err := callWithRetry(ctx, r.config.Retry, r.logger, "embed_query", func(ctx context.Context) ([]float32, error) {
		return r.embedder.EmbedQuery(ctx, query)
	})
	if err != nil {
		return nil, attempts, domain.NewRetrievalError("embed_query", err)
	}

	req := domain.SearchRequest{
		Collection:     r.config.Collection,
		Vector:         vector,
		K:              r.config.K,
		ScoreThreshold: r.config.ScoreThreshold,
		Filter:         filter,
	}
	matches, n, err := callWithRetry(ctx, r.config.Retry, r.logger, "search", func(ctx context.Context) ([]domain.Match, error) {
		return r.index.Search(ctx, req)
	})
	attempts += n
	if err != nil {
		return nil, attempts, domain.NewRetrievalError("search", err)
	}
	return matches, attempts, nil
}

// expand returns the original question followed by up to QueryVariants
// model-generated paraphrases. Expansion failures fall back to the question alone.
func (r *Retriever) expand(ctx context.Context, question string) ([]string, int) {
	queries := []string{question}
	if r.llm == nil || r.config.QueryVariants <= 0 {
		return queries, 0
	}

	req := driven.CompletionRequest{
		Messages: []driven.Message{
			{Role: "user", Content: fmt.Sprintf(variantsPrompt, r.config.QueryVariants, question)},
		},
	}
	out, attempts, err := callWithRetry(ctx, r.config.Retry, r.logger, "expand_query", func(ctx context.Context) (string, error) {
		return r.llm.Complete(ctx, req)
	})
	if err != nil {
		r.logger.Warn("query expansion failed, using original question", "error", err)
		return queries, attempts
	}

	variants := ParseVariants(out, r.config.QueryVariants)
	seen := map[string]bool{strings.ToLower(question): true}
	for _, v := range variants {
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		queries = append(queries, v)
	}
	return queries, attempts
}

var listMarker = regexp.MustCompile(`^(?:[-*•]|\d+[.)])(?:\s+|$)`)

// ParseVariants splits a model response into at most max non-empty lines,
// stripping one leading list marker such as "1." or "-".
func ParseVariants(out string, max int) []string {
	var variants []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		variants = append(variants, line)
		if len(variants) == max {
			break
		}
	}
	return variants
}

// mergeMatches unions per-query results, keeping the best score per chunk.
func mergeMatches(results [][]domain.Match) []domain.Match {
	best := make(map[string]int)
	var merged []domain.Match
	for _, matches := range results {
		for _, m := range matches {
			key := m.Key()
			if i, ok := best[key]; ok {
				if m.Score > merged[i].Score {
					merged[i] = m
				}
				continue
			}
			best[key] = len(merged)
			merged = append(merged, m)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}
