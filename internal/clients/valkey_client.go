package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	valkeyRetryDelay     = 250 * time.Millisecond
	valkeyConnectTimeout = 3 * time.Second
)

type ValkeyOptions struct {
	Address  string
	Password string
	TLS      bool
}

type ValkeyClient struct {
	opts         ValkeyOptions
	mu           sync.RWMutex
	client       valkey.Client
	reconnecting atomic.Bool
	// connect is swapped out in tests.
	connect func(ctx context.Context, opts ValkeyOptions) (valkey.Client, error)
}

func NewValkeyClient(ctx context.Context, opts ValkeyOptions) (*ValkeyClient, error) {
	client, err := connectValkey(ctx, opts)
	if err != nil {
		return nil, err
	}

	slog.Info("[ValkeyClient] Successfully connected to valkey",
		slog.String("address", opts.Address))

	return &ValkeyClient{opts: opts, client: client, connect: connectValkey}, nil
}

func connectValkey(ctx context.Context, opts ValkeyOptions) (valkey.Client, error) {
	clientOpts := valkey.ClientOption{
		InitAddress:      []string{opts.Address},
		Password:         opts.Password,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}
	if opts.TLS {
		clientOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("[ValkeyClient] failed to create Valkey: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, valkeyConnectTimeout)
	defer cancel()

	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", err)
	}

	return client, nil
}

// recreateClient dials a replacement in the background. Only one reconnect
// runs at a time and the lock is held just for the swap, so requests keep
// using the old client, and failing fast, while the dial is in flight.
func (vc *ValkeyClient) recreateClient() {
	if !vc.reconnecting.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer vc.reconnecting.Store(false)

		slog.Warn("[ValkeyClient] Attempting to recreate Valkey client...")
		ctx, cancel := context.WithTimeout(context.Background(), valkeyConnectTimeout)
		defer cancel()

		client, err := vc.connect(ctx, vc.opts)
		if err != nil {
			slog.Error("[ValkeyClient] Recreate failed",
				slog.String("error", err.Error()))
			return
		}

		vc.mu.Lock()
		old := vc.client
		vc.client = client
		vc.mu.Unlock()

		old.Close()
		slog.Info("[ValkeyClient] Successfully reconnected to valkey")
	}()
}

func (vc *ValkeyClient) current() valkey.Client {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.client
}

func (vc *ValkeyClient) Close() {
	vc.current().Close()
}

// GetBytes returns (nil, nil) when the key does not exist.
func (vc *ValkeyClient) GetBytes(ctx context.Context, key string) ([]byte, error) {
	res := vc.DoWithRetry(ctx, func(c valkey.Client) valkey.Completed {
		return c.B().Get().Key(key).Build()
	}, MAX_RETRIES)

	b, err := res.AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (vc *ValkeyClient) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	seconds := int64(ttl / time.Second)
	if seconds <= 0 {
		seconds = 1
	}

	res := vc.DoWithRetry(ctx, func(c valkey.Client) valkey.Completed {
		return c.B().Set().Key(key).Value(string(value)).ExSeconds(seconds).Build()
	}, MAX_RETRIES)

	return res.Error()
}

func (vc *ValkeyClient) Ping(ctx context.Context) error {
	c := vc.current()
	return c.Do(ctx, c.B().Ping().Build()).Error()
}

// DoWithRetry rebuilds the command on every attempt since a recreated client
// cannot execute commands built by the old one.
func (vc *ValkeyClient) DoWithRetry(ctx context.Context, build func(valkey.Client) valkey.Completed, retries int) valkey.ValkeyResult {
	var result valkey.ValkeyResult
	for i := 0; i < retries; i++ {
		c := vc.current()
		result = c.Do(ctx, build(c))
		err := result.Error()
		if err == nil || valkey.IsValkeyNil(err) {
			break
		}

		slog.Warn("[ValkeyClient] Do failed",
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()))

		if isConnectionError(err) {
			vc.recreateClient()
		}
		if i == retries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return result
		case <-time.After(valkeyRetryDelay):
		}
	}

	return result
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "i/o timeout")
}
