package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

const rewritePrompt = `
Given the following conversation history and a follow-up question,
rewrite the question so that it can stand alone, without requiring prior context,
while preserving its original language
History of the conversation:
%s
Follow-up question: %s
Independent question:
`

// QueryRewriter turns a follow-up question into a standalone question.
type QueryRewriter struct {
	llm         driven.LLMService
	temperature float32
	retry       domain.RetryPolicy
	logger      *slog.Logger
}

// QueryRewriterConfig holds dependencies for QueryRewriter.
type QueryRewriterConfig struct {
	LLM         driven.LLMService
	Temperature float32
	Retry       domain.RetryPolicy
	Logger      *slog.Logger
}

// NewQueryRewriter creates a new query rewriter.
func NewQueryRewriter(cfg QueryRewriterConfig) *QueryRewriter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryRewriter{
		llm:         cfg.LLM,
		temperature: cfg.Temperature,
		retry:       cfg.Retry,
		logger:      logger,
	}
}

// Rewrite returns the standalone form of question.
// Empty history goes through the model like any other.
func (r *QueryRewriter) Rewrite(ctx context.Context, question string, history []domain.Turn) (string, int, error) {
	req := driven.CompletionRequest{
		Messages: []driven.Message{
			{Role: "user", Content: fmt.Sprintf(rewritePrompt, FormatTranscript(history), question)},
		},
		Temperature: r.temperature,
	}

	out, attempts, err := callWithRetry(ctx, r.retry, r.logger, "rewrite", func(ctx context.Context) (string, error) {
		return r.llm.Complete(ctx, req)
	})
	if err != nil {
		return "", attempts, domain.NewGenerationError("rewrite", err)
	}

	standalone := strings.TrimSpace(out)
	if standalone == "" {
		standalone = question
	}

	r.logger.Debug("rewrote question",
		"question", question,
		"standalone_question", standalone,
		"history_turns", len(history),
	)
	return standalone, attempts, nil
}

// FormatTranscript renders turns as alternating "Human:" and "AI:" lines.
func FormatTranscript(turns []domain.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Human: ")
		b.WriteString(t.Question)
		b.WriteString("\nAI: ")
		b.WriteString(t.Answer)
	}
	return b.String()
}
