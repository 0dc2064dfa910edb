package httpx

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

type CircuitBreaker interface {
	Execute(fn func() error) error
}

// BreakerSettings configures a consecutive-failure circuit breaker for
// an external scoring or completion API.
type BreakerSettings struct {
	Name string
	// OpenFor is how long the breaker stays open before letting
	// probe requests through again.
	OpenFor time.Duration
	// TripAfter is the consecutive-failure count that opens the
	// breaker.
	TripAfter uint32
	// MaxProbes caps concurrent requests while half-open. Zero means
	// a single probe.
	MaxProbes uint32
}

type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(settings BreakerSettings) CircuitBreaker {
	trip := settings.TripAfter
	if trip == 0 {
		trip = 1
	}
	return &breaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        settings.Name,
			MaxRequests: settings.MaxProbes,
			Timeout:     settings.OpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= trip
			},
		}),
	}
}

func (b *breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		return fmt.Errorf("%s breaker: %w", b.cb.Name(), err)
	}
	return nil
}
