package llm

import (
	"context"
	"fmt"

	"github.com/queryloom/queryloom/pkg/retry"
	"go.uber.org/zap"
)

// GuardedClient wraps a Client with a circuit breaker and retry policy.
// Transient failures are retried with backoff; sustained failures trip the
// breaker so callers fail fast instead of queueing on a dead provider.
type GuardedClient struct {
	inner    Client
	breaker  *CircuitBreaker
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewGuardedClient wraps inner with the default breaker and retry policy.
func NewGuardedClient(inner Client, logger *zap.Logger) *GuardedClient {
	return &GuardedClient{
		inner:    inner,
		breaker:  NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		retryCfg: retry.DefaultConfig(),
		logger:   logger.Named("llm.guard"),
	}
}

// Complete implements Client.
func (g *GuardedClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if allowed, err := g.breaker.Allow(); !allowed {
		return nil, fmt.Errorf("llm unavailable: %w", err)
	}

	result, err := retry.DoWithResultIfRetryable(ctx, g.retryCfg, func() (*CompletionResult, error) {
		return g.inner.Complete(ctx, req)
	})
	if err != nil {
		g.breaker.RecordFailure()
		g.logger.Warn("completion failed",
			zap.String("model", g.inner.Model()),
			zap.String("breaker_state", g.breaker.State().String()),
			zap.Error(err))
		return nil, err
	}

	g.breaker.RecordSuccess()
	return result, nil
}

// Model implements Client.
func (g *GuardedClient) Model() string { return g.inner.Model() }

// Breaker exposes the underlying circuit breaker for health reporting.
func (g *GuardedClient) Breaker() *CircuitBreaker { return g.breaker }

var _ Client = (*GuardedClient)(nil)
