package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/abhisek/coursepilot/internal/logger"
	"github.com/abhisek/coursepilot/internal/metrics"
)

// RetryProvider retries transient upstream failures of single-shot
// generation. Malformed model output is never retried here: the structured
// layer reports it to the caller, who decides whether to ask again.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
	log    *logger.Logger
}

// RetryOption configures a RetryProvider.
type RetryOption func(*RetryProvider)

// RetryLogger reports each retry decision to log.
func RetryLogger(log *logger.Logger) RetryOption {
	return func(r *RetryProvider) {
		if log != nil {
			r.log = log
		}
	}
}

// WithRetry wraps p so transient failures are retried with capped
// exponential backoff.
func WithRetry(p Provider, cfg RetryConfig, opts ...RetryOption) Provider {
	r := &RetryProvider{inner: p, config: cfg, log: logger.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	attempts := max(r.config.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry, basis := r.classify(err)
		if !retry || attempt == attempts-1 {
			break
		}

		wait := r.wait(attempt, err)
		purpose := PurposeFrom(ctx)
		metrics.LLMRetriesTotal.WithLabelValues("generate", basis).Inc()
		r.log.Warn("retrying model call",
			"purpose", purpose,
			"attempt", attempt+1,
			"basis", basis,
			"wait", wait,
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// classify reports whether err deserves another attempt. Output truncation
// and unsupported inputs fail the same way every time.
func (r *RetryProvider) classify(err error) (bool, string) {
	var maxTok *ErrMaxTokensExceeded
	if errors.As(err, &maxTok) || errors.Is(err, ErrUnsupported) {
		return false, BasisStructured
	}
	return ClassifyTransient(err)
}

// wait honours a provider Retry-After hint, otherwise jitters the
// configured backoff by up to 20% either way.
func (r *RetryProvider) wait(attempt int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	base := float64(r.config.Backoff(attempt))
	return time.Duration(max(base+base*0.2*(2*rand.Float64()-1), 0))
}

// Backoff is the un-jittered wait before retry number attempt+1.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	wait := float64(c.InitialWait) * math.Pow(mult, float64(attempt))
	if c.MaxWait > 0 && wait > float64(c.MaxWait) {
		wait = float64(c.MaxWait)
	}
	return time.Duration(wait)
}
