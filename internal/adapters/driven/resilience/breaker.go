// Package resilience wraps driven ports with circuit breakers so a failing
// backend is cut off quickly instead of burning every retry on timeouts.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// BreakerConfig configures one circuit breaker
type BreakerConfig struct {
	// Name identifies the breaker in logs
	Name string

	// ConsecutiveFailures trips the breaker open (default 5)
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open before probing (default 30s)
	OpenTimeout time.Duration

	// HalfOpenRequests is how many probes are allowed while half-open (default 1)
	HalfOpenRequests uint32

	Logger *slog.Logger
}

func (c BreakerConfig) withDefaults(name string) BreakerConfig {
	if c.Name == "" {
		c.Name = name
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	logger := cfg.Logger
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			level := slog.LevelInfo
			if to == gobreaker.StateOpen {
				level = slog.LevelWarn
			}
			logger.Log(context.Background(), level, "circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: countsAsSuccess,
	})
}

// countsAsSuccess keeps caller mistakes and cancellations from tripping the breaker.
func countsAsSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, context.Canceled)
}

// execute runs fn through cb, translating a rejected call into ErrServiceUnavailable.
func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s: %w: %v", cb.Name(), domain.ErrServiceUnavailable, err)
		}
		if out == nil {
			return zero, err
		}
		return out.(T), err
	}
	return out.(T), nil
}
