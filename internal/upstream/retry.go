package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/gridwatch/energy-data-cache/internal/core/observability"
)

// RetryPolicy bounds the exponential backoff applied to retryable
// upstream failures. Success, empty and fatal outcomes short-circuit.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		MaxBackoff:  10 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = time.Second
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff
	}
	return p
}

// Execute runs fn up to MaxAttempts times, sleeping a jittered,
// doubling backoff between retryable failures. The last outcome is
// returned as-is; translating repeated transient failures into a
// response-level decision is the caller's job.
func (p RetryPolicy) Execute(ctx context.Context, logger *slog.Logger, dataset string, fn func(context.Context) Outcome) Outcome {
	p = p.normalized()
	if logger == nil {
		logger = slog.Default()
	}

	backoff := p.BaseBackoff
	var out Outcome
	for attempt := 1; ; attempt++ {
		out = fn(ctx)
		if out.Kind != OutcomeRetryable {
			if attempt > 1 && out.Kind == OutcomeSuccess {
				logger.Info("upstream recovered after retry", "dataset", dataset, "attempt", attempt)
			}
			return out
		}
		if attempt >= p.MaxAttempts {
			logger.Warn("upstream retries exhausted",
				"dataset", dataset, "attempts", attempt, "status", out.StatusCode)
			return out
		}

		observability.IncUpstreamRetry(dataset)

		// ±20% jitter so coordinated retries fan out
		sleep := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		logger.Debug("retrying upstream after backoff",
			"dataset", dataset, "attempt", attempt, "status", out.StatusCode, "backoff", sleep)

		select {
		case <-ctx.Done():
			return Outcome{Kind: OutcomeFatal, Err: fmt.Errorf("retry wait: %w", ctx.Err())}
		case <-time.After(sleep):
		}

		backoff *= 2
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
}
