package provider

import (
	"context"
	"sync"
	"time"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing, rejecting calls
	CircuitHalfOpen                     // Testing recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int `yaml:"failure_threshold"`
	// Cooldown is how long the circuit stays open before admitting a probe.
	Cooldown time.Duration `yaml:"cooldown"`
	// HalfOpenMax is the number of probe requests admitted while half-open.
	HalfOpenMax int `yaml:"half_open_max"`
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
	}
}

type circuit struct {
	mu               sync.Mutex
	state            CircuitState
	failures         int
	lastFailure      time.Time
	halfOpenAttempts int
}

// Breaker keeps one circuit per provider/model pair. Only retryable
// provider failures (rate limiting, unavailability) count against a circuit;
// a malformed request says nothing about backend health.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	config   BreakerConfig
	now      func() time.Time
}

// NewBreaker creates a Breaker. Zero config fields take defaults.
func NewBreaker(config BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = def.HalfOpenMax
	}
	return &Breaker{
		circuits: make(map[string]*circuit),
		config:   config,
		now:      time.Now,
	}
}

// Middleware returns a Middleware guarding next with the breaker.
func (b *Breaker) Middleware() Middleware {
	return func(next Provider) Provider {
		return Func(func(ctx context.Context, req *Request) (*Response, error) {
			key := circuitKey(req)
			if err := b.Allow(key); err != nil {
				return nil, err
			}
			resp, err := next.Invoke(ctx, req)
			switch {
			case err == nil:
				b.RecordSuccess(key)
			case countsAsFailure(err):
				b.RecordFailure(key)
			}
			return resp, err
		})
	}
}

// Allow reports whether a call for key may proceed. It returns a
// CIRCUIT_OPEN EngineError when it may not.
func (b *Breaker) Allow(key string) error {
	c := b.get(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitOpen:
		elapsed := b.now().Sub(c.lastFailure)
		if elapsed >= b.config.Cooldown {
			c.state = CircuitHalfOpen
			c.halfOpenAttempts = 1
			return nil
		}
		return schema.NewErrorf(schema.ErrCodeCircuitOpen,
			"circuit breaker open for %s: %d consecutive failures", key, c.failures).
			WithDetails(map[string]any{
				"circuit":              key,
				"consecutive_failures": c.failures,
				"state":                c.state.String(),
				"cooldown_remaining":   (b.config.Cooldown - elapsed).String(),
			})
	case CircuitHalfOpen:
		if c.halfOpenAttempts >= b.config.HalfOpenMax {
			return schema.NewErrorf(schema.ErrCodeCircuitOpen,
				"circuit breaker half-open for %s: probe in flight", key)
		}
		c.halfOpenAttempts++
	}
	return nil
}

// RecordSuccess closes the circuit for key.
func (b *Breaker) RecordSuccess(key string) {
	c := b.get(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.halfOpenAttempts = 0
	c.state = CircuitClosed
}

// RecordFailure counts a failure for key and returns the resulting state.
func (b *Breaker) RecordFailure(key string) CircuitState {
	c := b.get(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	c.lastFailure = b.now()
	if c.state == CircuitHalfOpen || c.failures >= b.config.FailureThreshold {
		c.state = CircuitOpen
	}
	return c.state
}

// State returns the state of the circuit for key.
func (b *Breaker) State(key string) CircuitState {
	c := b.get(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CircuitOpen && b.now().Sub(c.lastFailure) >= b.config.Cooldown {
		return CircuitHalfOpen
	}
	return c.state
}

func (b *Breaker) get(key string) *circuit {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}
	return c
}

func circuitKey(req *Request) string {
	return req.Provider + "/" + req.Model
}

func countsAsFailure(err error) bool {
	pe, ok := AsProviderError(err)
	if !ok {
		return true
	}
	return pe.Retryable()
}
