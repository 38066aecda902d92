package provider

import (
	"context"
	"errors"
	"net"
	"time"
)

// Backoff strategies for RetryPolicy.
const (
	BackoffConstant    = "constant"
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// RetryPolicy controls how often a failed call is repeated.
type RetryPolicy struct {
	// MaxAttempts counts the first call; 1 disables retries.
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
	Backoff     string        `yaml:"backoff"`
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration `yaml:"max_delay"`
}

// DefaultRetryPolicy returns three attempts with exponential backoff from
// 500ms, capped at 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       500 * time.Millisecond,
		Backoff:     BackoffExponential,
		MaxDelay:    8 * time.Second,
	}
}

// Retry returns a Middleware repeating calls that fail with a retryable
// error. The last error is returned once attempts run out.
func Retry(policy RetryPolicy) Middleware {
	return func(next Provider) Provider {
		return Func(func(ctx context.Context, req *Request) (*Response, error) {
			attempts := policy.MaxAttempts
			if attempts < 1 {
				attempts = 1
			}
			var lastErr error
			for attempt := 0; attempt < attempts; attempt++ {
				if attempt > 0 {
					if err := waitForBackoff(ctx, policy.backoff(attempt-1)); err != nil {
						return nil, lastErr
					}
				}
				resp, err := next.Invoke(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err
				if ctx.Err() != nil || !IsRetryable(err) {
					break
				}
			}
			return nil, lastErr
		})
	}
}

// IsRetryable reports whether repeating the call that produced err may
// succeed. Cancellation and errors without a provider classification are
// not retried, except network errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pe, ok := AsProviderError(err); ok {
		return pe.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// backoff is the wait before retry number attempt+1.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}

	var delay time.Duration
	switch p.Backoff {
	case BackoffExponential:
		delay = p.Delay
		for i := 0; i < attempt; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				break
			}
		}
	case BackoffLinear:
		delay = p.Delay * time.Duration(attempt+1)
	default:
		delay = p.Delay
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func waitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
