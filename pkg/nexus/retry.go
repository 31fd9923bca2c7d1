package nexus

import (
	"context"
	stderrors "errors"
	"time"

	mserrors "github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/logging"
)

// RetryPolicy bounds the automatic retries around rate-limited API calls.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// WithRetry runs fn, retrying on rate-limit errors with exponential
// backoff. When the server supplied a Retry-After hint it overrides the
// computed delay. Non-transient errors return immediately; retries are
// reserved for link acquisition and metadata calls, never for the bulk
// payload transfer itself.
func WithRetry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	logger := logging.GetLogger("nexus")

	delay := policy.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !mserrors.IsTransient(err) || attempt >= policy.MaxRetries {
			return err
		}

		wait := delay
		var msErr *mserrors.ModstageError
		if stderrors.As(err, &msErr) {
			if secs, ok := msErr.Details["retry_after"].(int); ok && secs > 0 {
				wait = time.Duration(secs) * time.Second
			}
		}

		logger.Warn().
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("Rate limited, backing off")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
}
