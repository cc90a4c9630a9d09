package monitoring

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/providers"
)

const (
	HEALTHCHECK_TIMER   = 15 * time.Second
	HEALTHCHECK_TIMEOUT = 5 * time.Second
)

type ProviderHealth struct {
	Provider  models.ProviderID `json:"provider"`
	Healthy   bool              `json:"healthy"`
	CheckedAt time.Time         `json:"checked_at"`
}

// HealthStatus holds the last health check result per provider. Providers that were
// never checked are not listed.
type HealthStatus struct {
	mu      sync.RWMutex
	healthy map[models.ProviderID]*atomic.Bool
	checked map[models.ProviderID]time.Time
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		healthy: make(map[models.ProviderID]*atomic.Bool),
		checked: make(map[models.ProviderID]time.Time),
	}
}

func (h *HealthStatus) Store(id models.ProviderID, healthy bool, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	flag, ok := h.healthy[id]
	if !ok {
		flag = &atomic.Bool{}
		h.healthy[id] = flag
	}
	flag.Store(healthy)
	h.checked[id] = at
}

// Healthy reports the last health check result; unknown providers are assumed healthy.
func (h *HealthStatus) Healthy(id models.ProviderID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	flag, ok := h.healthy[id]
	if !ok {
		return true
	}
	return flag.Load()
}

func (h *HealthStatus) Snapshot() []ProviderHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ProviderHealth, 0, len(h.healthy))
	for id, flag := range h.healthy {
		out = append(out, ProviderHealth{Provider: id, Healthy: flag.Load(), CheckedAt: h.checked[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// CheckProviders checks every provider that supports health checks once.
func CheckProviders(ctx context.Context, ps []providers.Provider, status *HealthStatus) {
	for _, p := range ps {
		checker, ok := p.(providers.HealthChecker)
		if !ok {
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, HEALTHCHECK_TIMEOUT)
		err := checker.HealthCheck(checkCtx)
		cancel()

		status.Store(p.ID(), err == nil, time.Now())
		if err != nil {
			slog.Warn("[HealthCheck] Provider is unhealthy",
				slog.String("provider", string(p.ID())),
				slog.String("error", err.Error()))
		}
	}
}

func MonitorProviderHealth(ctx context.Context, ps []providers.Provider, interval time.Duration, status *HealthStatus) {
	if interval <= 0 {
		interval = HEALTHCHECK_TIMER
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	CheckProviders(ctx, ps, status)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			CheckProviders(ctx, ps, status)
		}
	}
}
