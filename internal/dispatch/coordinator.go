// Package dispatch calls providers under timeout, retry and circuit breaking,
// and merges ensemble results.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/providers"
)

const (
	DefaultProviderTimeout = 5 * time.Second
	DefaultOverallDeadline = 8 * time.Second
)

type ErrorKind string

const (
	KindAllProvidersFailed ErrorKind = "AllProvidersFailed"
	KindTimeout            ErrorKind = "Timeout"
)

// DispatchError means no provider produced a usable result.
type DispatchError struct {
	Kind     ErrorKind
	Failures map[models.ProviderID]providers.ErrorKind
}

func (e *DispatchError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id, kind := range e.Failures {
		ids = append(ids, fmt.Sprintf("%s=%s", id, kind))
	}
	sort.Strings(ids)
	return fmt.Sprintf("dispatch failed: %s [%s]", e.Kind, strings.Join(ids, " "))
}

func AsDispatchError(err error) (*DispatchError, bool) {
	var derr *DispatchError
	if errors.As(err, &derr) {
		return derr, true
	}
	return nil, false
}

type Options struct {
	ProviderTimeout time.Duration
	OverallDeadline time.Duration
	RetryCount      int
	RetryBase       time.Duration
	Breaker         BreakerSettings
	// Fallback is tried in order when every requested provider has an open circuit.
	Fallback []models.ProviderID
}

type Coordinator struct {
	registry *providers.Registry
	opts     Options
	breakers *breakerSet
}

func NewCoordinator(registry *providers.Registry, opts Options) *Coordinator {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if opts.OverallDeadline <= 0 {
		opts.OverallDeadline = DefaultOverallDeadline
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = DefaultRetryBase
	}

	return &Coordinator{
		registry: registry,
		opts:     opts,
		breakers: newBreakerSet(opts.Breaker),
	}
}

// Breakers returns the state of every breaker that has seen traffic, ordered by provider.
func (c *Coordinator) Breakers() []BreakerSnapshot {
	return c.breakers.snapshot()
}

// Dispatch runs text through the providers named by ids. One id is a single
// call; more than one is an ensemble whose successful results are merged.
func (c *Coordinator) Dispatch(ctx context.Context, text string, ids []models.ProviderID) (models.Merged, error) {
	start := time.Now()

	selected, err := c.registry.Resolve(ids)
	if err != nil {
		return models.Merged{}, err
	}
	if len(selected) == 0 {
		return models.Merged{}, errors.New("no providers selected")
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.OverallDeadline)
	defer cancel()

	failures := make(map[models.ProviderID]providers.ErrorKind)

	active := make([]providers.Provider, 0, len(selected))
	for _, p := range selected {
		if c.breakers.open(p.ID()) {
			slog.Warn("[Coordinator] Skipping provider with open circuit",
				slog.String("provider", string(p.ID())))
			failures[p.ID()] = providers.KindUnavailable
			continue
		}
		active = append(active, p)
	}

	if len(active) == 0 {
		fb, ok := c.fallback(selected)
		if !ok {
			return models.Merged{}, &DispatchError{Kind: KindAllProvidersFailed, Failures: failures}
		}
		slog.Warn("[Coordinator] All requested providers open, using fallback",
			slog.String("fallback", string(fb.ID())))
		active = append(active, fb)
	}

	results := make([]models.ProviderResult, len(active))
	errs := make([]error, len(active))

	if len(active) == 1 {
		results[0], errs[0] = c.call(ctx, active[0], text)
	} else {
		var g errgroup.Group
		for i, p := range active {
			g.Go(func() error {
				results[i], errs[i] = c.call(ctx, p, text)
				return nil
			})
		}
		g.Wait()
	}

	var succeeded []models.ProviderResult
	for i, p := range active {
		if errs[i] != nil {
			failures[p.ID()] = providers.Classify(p.ID(), errs[i]).Kind
			continue
		}
		succeeded = append(succeeded, results[i])
	}

	if len(succeeded) == 0 {
		if errors.Is(ctx.Err(), context.Canceled) {
			return models.Merged{}, fmt.Errorf("dispatch canceled: %w", ctx.Err())
		}
		kind := KindAllProvidersFailed
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return models.Merged{}, &DispatchError{Kind: kind, Failures: failures}
	}

	merged := models.Merged{
		Complete:  len(failures) == 0,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if len(failures) > 0 {
		merged.Failures = make(map[models.ProviderID]string, len(failures))
		for id, kind := range failures {
			merged.Failures[id] = string(kind)
		}
	}

	merged.Sentiment, merged.Keywords = merge(succeeded)
	if len(succeeded) == 1 {
		merged.ProviderUsed = succeeded[0].ProviderID
		return merged, nil
	}
	merged.ProviderUsed = models.EnsembleProvider

	if !merged.Complete {
		slog.Warn("[Coordinator] Returning degraded ensemble result",
			slog.Int("succeeded", len(succeeded)),
			slog.Int("failed", len(failures)))
	}
	return merged, nil
}

// fallback picks the first registered fallback provider whose circuit is not open.
func (c *Coordinator) fallback(requested []providers.Provider) (providers.Provider, bool) {
	tried := make(map[models.ProviderID]struct{}, len(requested))
	for _, p := range requested {
		tried[p.ID()] = struct{}{}
	}

	for _, id := range c.opts.Fallback {
		if _, ok := tried[id]; ok {
			continue
		}
		p, ok := c.registry.Get(id)
		if !ok || c.breakers.open(id) {
			continue
		}
		return p, true
	}
	return nil, false
}

// call runs one provider with retries. Every attempt goes through the breaker,
// so failures that a retry later recovers from still count against the provider.
func (c *Coordinator) call(ctx context.Context, p providers.Provider, text string) (models.ProviderResult, error) {
	id := p.ID()

	for attempt := 0; ; attempt++ {
		res, err := c.attempt(ctx, p, text)
		if err == nil {
			return res, nil
		}

		perr := providers.Classify(id, err)
		if errors.Is(err, ErrCircuitOpen) || !perr.Retryable() || attempt >= c.opts.RetryCount {
			slog.Warn("[Coordinator] Provider call failed",
				slog.String("provider", string(id)),
				slog.String("kind", string(perr.Kind)),
				slog.Int("attempts", attempt+1),
				slog.String("error", err.Error()))
			return models.ProviderResult{}, perr
		}

		wait := backoff(c.opts.RetryBase, attempt)
		slog.Debug("[Coordinator] Retrying provider",
			slog.String("provider", string(id)),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait))

		if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
			return models.ProviderResult{}, perr
		}
	}
}

func (c *Coordinator) attempt(ctx context.Context, p providers.Provider, text string) (models.ProviderResult, error) {
	// A call that cannot run must not consume the half-open trial slot.
	if err := ctx.Err(); err != nil {
		return models.ProviderResult{}, providers.Classify(p.ID(), err)
	}

	out, err := c.breakers.get(p.ID()).Execute(func() (interface{}, error) {
		return c.callOnce(ctx, p, text)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return models.ProviderResult{}, providers.NewProviderError(p.ID(), providers.KindUnavailable, ErrCircuitOpen)
	}
	if err != nil {
		return models.ProviderResult{}, err
	}
	return out.(models.ProviderResult), nil
}

type callOutcome struct {
	result models.ProviderResult
	err    error
}

// callOnce bounds a single provider call by the per-call timeout, even when
// the provider ignores its context.
func (c *Coordinator) callOnce(ctx context.Context, p providers.Provider, text string) (models.ProviderResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.ProviderTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan callOutcome, 1)
	go func() {
		res, err := p.Analyze(callCtx, text)
		done <- callOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return models.ProviderResult{}, providers.Classify(p.ID(), out.err)
		}
		out.result.ProviderID = p.ID()
		out.result.LatencyMs = time.Since(start).Milliseconds()
		return out.result, nil
	case <-callCtx.Done():
		return models.ProviderResult{}, providers.Classify(p.ID(), callCtx.Err())
	}
}
