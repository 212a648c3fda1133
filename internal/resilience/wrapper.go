package resilience

import (
	"context"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seva/axon/internal/domain"
)

// WrapperConfig configures the reliability wrapper around one dependency.
type WrapperConfig struct {
	Breaker     BreakerConfig
	Attempts    uint          // retry attempts per call
	CallTimeout time.Duration // per-attempt timeout
	RateLimit   rate.Limit    // calls per second
	RateBurst   int
}

// DefaultWrapperConfig returns defaults suitable for an AI provider endpoint.
func DefaultWrapperConfig() WrapperConfig {
	return WrapperConfig{
		Breaker:     DefaultBreakerConfig(),
		Attempts:    3,
		CallTimeout: 60 * time.Second,
		RateLimit:   rate.Limit(10),
		RateBurst:   5,
	}
}

// Wrapper guards a single external dependency with rate limiting, bounded
// retry with exponential backoff, a per-attempt timeout, and a circuit
// breaker. One wrapper per protected dependency.
type Wrapper struct {
	name    string
	cfg     WrapperConfig
	breaker *Breaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewWrapper creates a reliability wrapper for the named dependency.
func NewWrapper(name string, cfg WrapperConfig, logger *zap.Logger) *Wrapper {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Inf
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	return &Wrapper{
		name:    name,
		cfg:     cfg,
		breaker: NewBreaker(cfg.Breaker),
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:  logger.Named("resilience").With(zap.String("dependency", name)),
	}
}

// Breaker exposes the underlying breaker for observability.
func (w *Wrapper) Breaker() *Breaker {
	return w.breaker
}

// Do executes op under the wrapper's protections. When the breaker is open
// the call fails fast with ErrCircuitOpen without invoking the dependency;
// the caller recovers locally by returning a degraded result instead of
// retrying immediately. Timeouts count as failures.
func (w *Wrapper) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	if w.breaker.IsOpen() {
		w.logger.Warn("call rejected, circuit open")
		return domain.ErrCircuitOpen
	}

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(w.cfg.Attempts),
		retry.DelayType(retry.BackOffDelay),
	)

	err := r.Do(func() error {
		callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
		defer cancel()
		return op(callCtx)
	})

	if err != nil {
		w.breaker.RecordFailure()
		w.logger.Warn("call failed", zap.Error(err))
		return err
	}

	w.breaker.RecordSuccess()
	return nil
}
