package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/stockfusion/pkg/logger"
)

// ErrOpen is returned while the breaker rejects calls without running them
var ErrOpen = errors.New("circuit breaker open")

// Settings configures a provider breaker
type Settings struct {
	Name string

	// ConsecutiveFailures trips the breaker immediately
	ConsecutiveFailures uint32

	// After MinRequests in one interval, a failure ratio above FailureRatio trips it too
	MinRequests  uint32
	FailureRatio float64

	Interval time.Duration // counts reset period while closed
	Timeout  time.Duration // open → half-open
}

// DefaultSettings returns the provider defaults (3 in a row, or >5% of 20+ calls)
func DefaultSettings(name string) Settings {
	return Settings{
		Name:                name,
		ConsecutiveFailures: 3,
		MinRequests:         20,
		FailureRatio:        0.05,
		Interval:            60 * time.Second,
		Timeout:             60 * time.Second,
	}
}

// Breaker guards calls to one external provider
// ⭐ SSOT: 외부 provider 차단 상태는 여기서만 관리
type Breaker struct {
	cb  *gobreaker.CircuitBreaker
	log *logger.Logger
}

// New creates a breaker. State changes are logged at Warn.
func New(s Settings, log *logger.Logger) *Breaker {
	l := log.Module("breaker").WithField("provider", s.Name)

	st := gobreaker.Settings{
		Name:     s.Name,
		Interval: s.Interval,
		Timeout:  s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if s.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= s.ConsecutiveFailures {
				return true
			}
			if counts.Requests < s.MinRequests || counts.Requests == 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.WithFields(map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(st), log: l}
}

// Execute runs fn through the breaker.
// gobreaker's open/half-open rejections are reported as ErrOpen.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrOpen
	}
	return res, err
}

// Name returns the provider name
func (b *Breaker) Name() string {
	return b.cb.Name()
}

// State returns "closed", "half-open" or "open"
func (b *Breaker) State() string {
	return b.cb.State().String()
}
