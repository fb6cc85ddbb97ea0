package resilience

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

var _ driven.LLMService = (*LLM)(nil)

// LLM guards Complete and stream opening with a circuit breaker.
// Errors surfaced while reading an open stream are not counted.
type LLM struct {
	inner   driven.LLMService
	breaker *gobreaker.CircuitBreaker
}

// NewLLM wraps inner with a breaker named "llm" by default
func NewLLM(inner driven.LLMService, cfg BreakerConfig) *LLM {
	return &LLM{
		inner:   inner,
		breaker: newBreaker(cfg.withDefaults("llm")),
	}
}

func (l *LLM) Complete(ctx context.Context, req driven.CompletionRequest) (string, error) {
	return execute(l.breaker, func() (string, error) {
		return l.inner.Complete(ctx, req)
	})
}

func (l *LLM) Stream(ctx context.Context, req driven.CompletionRequest) (driven.TokenStream, error) {
	return execute(l.breaker, func() (driven.TokenStream, error) {
		return l.inner.Stream(ctx, req)
	})
}

func (l *LLM) Model() string {
	return l.inner.Model()
}

func (l *LLM) Ping(ctx context.Context) error {
	return l.inner.Ping(ctx)
}

func (l *LLM) Close() error {
	return l.inner.Close()
}

// State reports the breaker state
func (l *LLM) State() gobreaker.State {
	return l.breaker.State()
}
