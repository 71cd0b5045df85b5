// Package resilience wraps durable storage backends (Postgres, Redis) in a
// sony/gobreaker circuit breaker, one breaker per named backend, so a
// struggling storage dependency fails fast instead of stalling every
// ComputeReport call behind it.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/columbia/pdslib-firefox/internal/pdserrors"
)

// Config parameterizes the breaker placed around a single named backend.
type Config struct {
	// ConsecutiveFailureThreshold trips the breaker once this many
	// consecutive calls have failed.
	ConsecutiveFailureThreshold uint32
	// OpenStateTimeout is how long the breaker stays open before allowing
	// probe requests through (half-open).
	OpenStateTimeout time.Duration
	// MaxHalfOpenRequests bounds how many probe requests are allowed
	// through while half-open.
	MaxHalfOpenRequests uint32
}

// Manager hands out one gobreaker.CircuitBreaker per backend name, creating
// it lazily on first use, mirroring the reference call-site convention of a
// single manager shared across a storage adapter's call sites.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewManager constructs a Manager. A zero-valued Config still works: a zero
// ConsecutiveFailureThreshold falls back to 5 consecutive failures, and a
// zero MaxHalfOpenRequests falls back to 1.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (m *Manager) breaker(name string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[name]; ok {
		return b
	}

	threshold := m.cfg.ConsecutiveFailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	logger := m.logger
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: maxUint32(m.cfg.MaxHalfOpenRequests, 1),
		Timeout:     m.cfg.OpenStateTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change",
					zap.String("backend", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			}
		},
	})
	m.breakers[name] = b
	return b
}

func maxUint32(v, floor uint32) uint32 {
	if v == 0 {
		return floor
	}
	return v
}

// Do runs fn through the named backend's breaker. A trip surfaces as a
// pdserrors.StorageFailure naming component and operation, never the raw
// gobreaker error text (which would otherwise leak "circuit breaker is
// open" past the storage boundary).
func Do(ctx context.Context, m *Manager, component, operation string, fn func(ctx context.Context) error) error {
	_, err := m.breaker(component).Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		return pdserrors.StorageFailure(component, operation, err)
	}
	return nil
}
