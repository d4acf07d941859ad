// Package breaker wraps sony/gobreaker for outbound service calls. Only
// transport failures count against a breaker; business rejections such as an
// insufficient balance are successful round trips.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/walletflow/walletflow/internal/failure"
)

// Config holds circuit breaker configuration.
type Config struct {
	ConsecutiveFailures uint32        // Consecutive transport failures that open the breaker
	OpenFor             time.Duration // Time spent open before half-open trial calls
	HalfOpenRequests    uint32        // Trial calls allowed while half-open
}

// DefaultConfig is used for zero fields.
var DefaultConfig = Config{ConsecutiveFailures: 5, OpenFor: 30 * time.Second, HalfOpenRequests: 1}

// Breaker guards calls to one downstream service.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// New creates a breaker for the named service.
func New(name string, cfg Config, logger *slog.Logger) *Breaker {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultConfig.ConsecutiveFailures
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = DefaultConfig.OpenFor
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = DefaultConfig.HalfOpenRequests
	}

	settings := gobreaker.Settings{
		Name:        "service-" + name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !failure.IsTransport(err)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state changed",
					slog.String("service", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			}
		},
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(settings)}
}

type bypassKey struct{}

// Bypass marks ctx so DoContext runs fn directly, without consulting or
// updating the breaker. Compensating calls use it.
func Bypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

// Bypassed reports whether ctx was marked by Bypass.
func Bypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}

// DoContext is Do unless ctx is marked by Bypass.
func (b *Breaker) DoContext(ctx context.Context, fn func() error) error {
	if Bypassed(ctx) {
		return fn()
	}
	return b.Do(fn)
}

// Do runs fn through the breaker. A rejected call surfaces as ErrServiceUnavailable.
func (b *Breaker) Do(fn func() error) error {
	if b == nil {
		return fn()
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return failure.Wrap(failure.ErrServiceUnavailable, err, fmt.Sprintf("%s circuit open", b.name))
	}
	return err
}

// State reports the breaker state for health output.
func (b *Breaker) State() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

// Name returns the downstream service the breaker guards.
func (b *Breaker) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}
