package httpclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gelarm/gims-automation-mcp-server/internal/rate"
)

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// Executor runs idempotent calls with rate limiting and bounded retries.
// Only errors accepted by the retryable predicate are retried; everything
// else is returned on the first attempt.
type Executor struct {
	logger    *zap.Logger
	rateMgr   *rate.Manager
	retryMax  int
	tag       string
	retryable func(error) bool
	backoff   func(attempt int) time.Duration
}

// New creates an Executor. rateMgr may be nil to disable rate limiting.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	retryMax int,
	tag string,
	retryable func(error) bool,
) *Executor {
	if retryable == nil {
		retryable = func(error) bool { return false }
	}
	return &Executor{
		logger:    logger,
		rateMgr:   rateMgr,
		retryMax:  retryMax,
		tag:       tag,
		retryable: retryable,
		backoff:   Backoff,
	}
}

// Do invokes call until it succeeds, returns a non-retryable error, or the
// retry budget is spent. rateLimitKey scopes the rate limiter.
func (e *Executor) Do(ctx context.Context, rateLimitKey string, call func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if e.rateMgr != nil {
			if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		err := call(ctx)
		if err == nil {
			if attempt > 0 {
				e.logger.Debug(e.tag+".retry_success",
					zap.String("key", rateLimitKey),
					zap.Int("attempt", attempt))
			}
			return nil
		}
		if !e.retryable(err) {
			return err
		}
		lastErr = err

		if attempt == e.retryMax {
			break
		}
		e.logger.Warn(e.tag+".retrying",
			zap.String("key", rateLimitKey),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-time.After(e.backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if e.retryMax == 0 {
		return lastErr
	}
	return fmt.Errorf("%s request failed after %d attempts: %w", e.tag, e.retryMax+1, lastErr)
}
