package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is an adaptive tokens-per-minute limiter. Requests wait for
// their estimated token count; a rate-limited response halves the budget and
// each success recovers 5% of the initial rate, up to the maximum.
type RateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64
}

// NewRateLimiter builds a limiter starting at initialTPM tokens per minute.
// maxTPM below initialTPM is raised to it.
func NewRateLimiter(initialTPM, maxTPM float64) *RateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recovery := initialTPM * 0.05
	if recovery < 1 {
		recovery = 1
	}
	return &RateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recovery,
	}
}

// TPM returns the current tokens-per-minute budget.
func (l *RateLimiter) TPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// Middleware returns a Middleware applying the limiter.
func (l *RateLimiter) Middleware() Middleware {
	return func(next Provider) Provider {
		return Func(func(ctx context.Context, req *Request) (*Response, error) {
			if err := l.wait(ctx, req); err != nil {
				return nil, err
			}
			resp, err := next.Invoke(ctx, req)
			l.observe(err)
			return resp, err
		})
	}
}

func (l *RateLimiter) wait(ctx context.Context, req *Request) error {
	l.mu.Lock()
	n := req.EstimatedTokens()
	if burst := l.limiter.Burst(); n > burst {
		n = burst
	}
	l.mu.Unlock()

	if err := l.limiter.WaitN(ctx, n); err != nil {
		return NewProviderError(req.Provider, "rate_limit", 0, KindRateLimited, err.Error(), err)
	}
	return nil
}

func (l *RateLimiter) observe(err error) {
	if err == nil {
		l.adjust(l.recoveryRate)
		return
	}
	if pe, ok := AsProviderError(err); ok && pe.Kind() == KindRateLimited {
		l.mu.Lock()
		half := l.currentTPM * 0.5
		l.mu.Unlock()
		l.adjust(-half)
	}
}

func (l *RateLimiter) adjust(delta float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tpm := l.currentTPM + delta
	if tpm < l.minTPM {
		tpm = l.minTPM
	}
	if tpm > l.maxTPM {
		tpm = l.maxTPM
	}
	if tpm == l.currentTPM {
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
}
