package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

const (
	valkeyKeyPrefix = "sentiment-aura:analysis:"

	// DefaultRemoteTimeout bounds each remote Get or Put.
	DefaultRemoteTimeout = 200 * time.Millisecond
)

// RemoteStore is the byte-level store behind Valkey; clients.ValkeyClient and
// clients.RedisClient satisfy it.
type RemoteStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type ValkeyOptions struct {
	Timeout time.Duration
	Now     func() time.Time
}

// remoteEntry carries its own expiry so a replica promoting it into its local
// tier never keeps it longer than the writer intended.
type remoteEntry struct {
	Result    models.AnalysisResult `json:"result"`
	ExpiresAt int64                 `json:"expires_at"` // unix ms
}

// Valkey keeps results in a shared store so several replicas reuse each other's work.
type Valkey struct {
	store   RemoteStore
	timeout time.Duration
	now     func() time.Time
}

func NewValkey(store RemoteStore, opts ValkeyOptions) *Valkey {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRemoteTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Valkey{store: store, timeout: opts.Timeout, now: opts.Now}
}

func (v *Valkey) Get(ctx context.Context, key string) (models.AnalysisResult, bool) {
	res, _, ok := v.GetWithTTL(ctx, key)
	return res, ok
}

// GetWithTTL also reports how long the entry has left to live.
func (v *Valkey) GetWithTTL(ctx context.Context, key string) (models.AnalysisResult, time.Duration, bool) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	raw, err := v.store.GetBytes(ctx, valkeyKeyPrefix+key)
	if err != nil {
		slog.Warn("[ValkeyCache] Get failed",
			slog.String("fingerprint", key),
			slog.String("error", err.Error()))
		return models.AnalysisResult{}, 0, false
	}
	if raw == nil {
		return models.AnalysisResult{}, 0, false
	}

	var entry remoteEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.ExpiresAt == 0 {
		slog.Warn("[ValkeyCache] Dropping undecodable entry",
			slog.String("fingerprint", key))
		return models.AnalysisResult{}, 0, false
	}

	remaining := time.UnixMilli(entry.ExpiresAt).Sub(v.now())
	if remaining <= 0 {
		return models.AnalysisResult{}, 0, false
	}

	result := entry.Result
	if result.Keywords == nil {
		result.Keywords = []string{}
	}
	return result, remaining, true
}

// Put is bounded by the remote timeout and survives the caller's cancellation,
// so a client hanging up after dispatch still leaves the result behind.
func (v *Valkey) Put(ctx context.Context, key string, result models.AnalysisResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	result.Cached = false

	raw, err := json.Marshal(remoteEntry{
		Result:    result,
		ExpiresAt: v.now().Add(ttl).UnixMilli(),
	})
	if err != nil {
		slog.Error("[ValkeyCache] Failed to marshal result",
			slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
	defer cancel()

	if err := v.store.SetBytes(ctx, valkeyKeyPrefix+key, raw, ttl); err != nil {
		slog.Warn("[ValkeyCache] Set failed",
			slog.String("fingerprint", key),
			slog.String("error", err.Error()))
	}
}

type ttlGetter interface {
	GetWithTTL(ctx context.Context, key string) (models.AnalysisResult, time.Duration, bool)
}

// Tiered reads the local tier first and promotes remote hits into it.
type Tiered struct {
	local  Cache
	remote Cache
	ttl    time.Duration
}

func NewTiered(local, remote Cache, promoteTTL time.Duration) *Tiered {
	return &Tiered{local: local, remote: remote, ttl: promoteTTL}
}

func (t *Tiered) Get(ctx context.Context, key string) (models.AnalysisResult, bool) {
	if res, ok := t.local.Get(ctx, key); ok {
		return res, true
	}

	promote := t.ttl
	var (
		res models.AnalysisResult
		ok  bool
	)
	if r, withTTL := t.remote.(ttlGetter); withTTL {
		var remaining time.Duration
		res, remaining, ok = r.GetWithTTL(ctx, key)
		promote = min(promote, remaining)
	} else {
		res, ok = t.remote.Get(ctx, key)
	}
	if !ok {
		return models.AnalysisResult{}, false
	}

	t.local.Put(ctx, key, res, promote)
	return res, true
}

func (t *Tiered) Put(ctx context.Context, key string, result models.AnalysisResult, ttl time.Duration) {
	t.local.Put(ctx, key, result, ttl)
	t.remote.Put(ctx, key, result, ttl)
}
