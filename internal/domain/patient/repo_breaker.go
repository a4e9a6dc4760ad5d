package patient

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerGateway sheds calls to a remote store after repeated failures.
// Context cancellation by the caller does not count as a store failure.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[*Collection]
}

func NewBreakerGateway(next Gateway, name string, maxFailures uint32, timeout time.Duration, logger zerolog.Logger) *BreakerGateway {
	if maxFailures == 0 {
		maxFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker[*Collection](gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("store circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerGateway{next: next, cb: cb}
}

func (b *BreakerGateway) Load(ctx context.Context) (*Collection, error) {
	return b.cb.Execute(func() (*Collection, error) {
		return b.next.Load(ctx)
	})
}

func (b *BreakerGateway) Save(ctx context.Context, c *Collection) error {
	_, err := b.cb.Execute(func() (*Collection, error) {
		return nil, b.next.Save(ctx, c)
	})
	return err
}

// Ping bypasses the breaker so health checks report the store itself.
func (b *BreakerGateway) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

func (b *BreakerGateway) Close() error {
	return b.next.Close()
}

func (b *BreakerGateway) State() string {
	return b.cb.State().String()
}
