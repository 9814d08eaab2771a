package llm

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/contractclarity/engine/internal/domain"
)

// maxBackoff caps a single retry delay regardless of attempt count.
const maxBackoff = 30 * time.Second

// Retrier wraps a Completer with bounded retries of transient upstream
// failures. Rejections and client errors pass through untouched.
type Retrier struct {
	next       Completer
	maxRetries int
	initial    time.Duration
	logger     *slog.Logger
}

var _ Completer = (*Retrier)(nil)

// NewRetrier creates a retrying Completer. maxRetries counts the extra
// attempts after the first; initial is the base backoff, doubled per
// attempt with full jitter applied.
func NewRetrier(next Completer, maxRetries int, initial time.Duration, logger *slog.Logger) *Retrier {
	if initial <= 0 {
		initial = time.Millisecond
	}
	return &Retrier{next: next, maxRetries: maxRetries, initial: initial, logger: logger}
}

// Complete invokes the wrapped Completer, retrying upstream_unavailable
// errors with exponential backoff and full jitter.
func (r *Retrier) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt)
			r.logger.Warn("retrying model invocation",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.String("error", lastErr.Error()))
			select {
			case <-ctx.Done():
				return "", domain.ErrUpstreamUnavailable("gave up waiting to retry", ctx.Err())
			case <-time.After(delay):
			}
		}

		out, err := r.next.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var apiErr *domain.APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return "", err
		}
	}
	return "", lastErr
}

// backoff doubles the base delay per attempt, caps it, and applies full
// jitter so concurrent tasks do not retry in lockstep.
func (r *Retrier) backoff(attempt int) time.Duration {
	base := r.initial
	for i := 1; i < attempt; i++ {
		base *= 2
		if base > maxBackoff {
			base = maxBackoff
			break
		}
	}
	jitterMs := rand.Int64N(base.Milliseconds() + 1)
	return time.Duration(jitterMs) * time.Millisecond
}
