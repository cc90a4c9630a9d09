package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

const (
	DefaultBreakerThreshold = 5
	DefaultBreakerWindow    = 60 * time.Second
	DefaultBreakerCooldown  = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit open")

type BreakerSettings struct {
	// Threshold is the number of consecutive failures that trips the breaker.
	Threshold uint32
	// Window is how often failure counts reset while the breaker is closed.
	Window time.Duration
	// Cooldown is how long a tripped breaker rejects calls before admitting a trial call.
	Cooldown time.Duration
}

type BreakerSnapshot struct {
	Provider             models.ProviderID `json:"provider"`
	State                string            `json:"state"`
	Requests             uint32            `json:"requests"`
	ConsecutiveFailures  uint32            `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32            `json:"consecutive_successes"`
}

// breakerSet owns one circuit breaker per provider, created on first use.
type breakerSet struct {
	mu       sync.Mutex
	settings BreakerSettings
	breakers map[models.ProviderID]*gobreaker.CircuitBreaker
}

func newBreakerSet(settings BreakerSettings) *breakerSet {
	if settings.Threshold == 0 {
		settings.Threshold = DefaultBreakerThreshold
	}
	if settings.Window <= 0 {
		settings.Window = DefaultBreakerWindow
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = DefaultBreakerCooldown
	}
	return &breakerSet{
		settings: settings,
		breakers: make(map[models.ProviderID]*gobreaker.CircuitBreaker),
	}
}

func (s *breakerSet) get(id models.ProviderID) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[id]; ok {
		return cb
	}

	threshold := s.settings.Threshold
	var cb *gobreaker.CircuitBreaker
	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(id),
		MaxRequests: 1,
		Interval:    s.settings.Window,
		Timeout:     s.settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("[Coordinator] Circuit breaker changed state",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return canceledIsNeutral(cb, err)
		},
	})
	s.breakers[id] = cb
	return cb
}

// canceledIsNeutral treats a caller going away as a success while closed, so
// abandoned requests do not trip the breaker. A canceled half-open trial call never
// showed the provider recovered and counts as a failure.
func canceledIsNeutral(cb *gobreaker.CircuitBreaker, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return cb.State() != gobreaker.StateHalfOpen
	}
	return false
}

// open reports whether calls to id are currently being rejected.
func (s *breakerSet) open(id models.ProviderID) bool {
	return s.get(id).State() == gobreaker.StateOpen
}

func (s *breakerSet) snapshot() []BreakerSnapshot {
	s.mu.Lock()
	ids := make([]models.ProviderID, 0, len(s.breakers))
	for id := range s.breakers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]BreakerSnapshot, 0, len(ids))
	for _, id := range ids {
		cb := s.get(id)
		counts := cb.Counts()
		out = append(out, BreakerSnapshot{
			Provider:             id,
			State:                cb.State().String(),
			Requests:             counts.Requests,
			ConsecutiveFailures:  counts.ConsecutiveFailures,
			ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		})
	}
	return out
}
