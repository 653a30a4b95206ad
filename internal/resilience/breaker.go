package resilience

import (
	"errors"
	"time"

	"kixikila/internal/logging"
	"kixikila/internal/metrics"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrUnavailable is returned while the breaker refuses calls.
var ErrUnavailable = errors.New("upstream temporarily unavailable")

type Settings struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
	MaxRequests      uint32
}

type Breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

func NewBreaker(s Settings) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if s.MaxRequests == 0 {
		s.MaxRequests = 1
	}
	gauge := metrics.CircuitBreakerState.WithLabelValues(s.Name)
	gauge.Set(0)
	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			gauge.Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})}
}

func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Call runs fn through the breaker. Open-state rejections map to ErrUnavailable.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	out, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, ErrUnavailable
	}
	if err != nil {
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}
