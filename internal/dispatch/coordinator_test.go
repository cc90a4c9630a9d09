package dispatch

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/providers"
	"github.com/spacesedan/sentiment-aura/internal/validation"
)

type fakeProvider struct {
	id    models.ProviderID
	calls atomic.Int32
	fn    func(ctx context.Context, call int) (models.ProviderResult, error)
}

func (f *fakeProvider) ID() models.ProviderID { return f.id }

func (f *fakeProvider) Analyze(ctx context.Context, text string) (models.ProviderResult, error) {
	n := int(f.calls.Add(1))
	return f.fn(ctx, n)
}

func succeeding(id models.ProviderID, sentiment float64, keywords ...string) *fakeProvider {
	return &fakeProvider{id: id, fn: func(context.Context, int) (models.ProviderResult, error) {
		return models.ProviderResult{
			Sentiment:    sentiment,
			Keywords:     keywords,
			HasSentiment: true,
			HasKeywords:  true,
		}, nil
	}}
}

func failing(id models.ProviderID, kind providers.ErrorKind) *fakeProvider {
	return &fakeProvider{id: id, fn: func(context.Context, int) (models.ProviderResult, error) {
		return models.ProviderResult{}, providers.NewProviderError(id, kind, errors.New("boom"))
	}}
}

func hanging(id models.ProviderID) *fakeProvider {
	return &fakeProvider{id: id, fn: func(ctx context.Context, _ int) (models.ProviderResult, error) {
		<-ctx.Done()
		return models.ProviderResult{}, ctx.Err()
	}}
}

func newCoordinator(t *testing.T, opts Options, ps ...providers.Provider) *Coordinator {
	t.Helper()
	reg, err := providers.NewRegistry(ps...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if opts.RetryBase == 0 {
		opts.RetryBase = time.Millisecond
	}
	return NewCoordinator(reg, opts)
}

func ids(list ...models.ProviderID) []models.ProviderID { return list }

func TestDispatchSingleProvider(t *testing.T) {
	c := newCoordinator(t, Options{}, succeeding("mock", 0.9, "love"))

	merged, err := c.Dispatch(context.Background(), "I love this!", ids("mock"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.ProviderUsed != "mock" || merged.Sentiment != 0.9 || !merged.Complete {
		t.Fatalf("unexpected merged result: %+v", merged)
	}
	if !reflect.DeepEqual(merged.Keywords, []string{"love"}) {
		t.Fatalf("unexpected keywords: %v", merged.Keywords)
	}
}

func TestDispatchUnknownProvider(t *testing.T) {
	c := newCoordinator(t, Options{}, succeeding("mock", 0.9))

	_, err := c.Dispatch(context.Background(), "text", ids("nope"))
	if invalid, ok := validation.AsInvalidInput(err); !ok || invalid.Reason != validation.ReasonUnknownProvider {
		t.Fatalf("expected UnknownProvider, got %v", err)
	}
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{id: "flaky", fn: func(_ context.Context, call int) (models.ProviderResult, error) {
		if call == 1 {
			return models.ProviderResult{}, providers.NewProviderError("flaky", providers.KindTimeout, context.DeadlineExceeded)
		}
		return models.ProviderResult{Sentiment: 0.3, HasSentiment: true}, nil
	}}
	c := newCoordinator(t, Options{RetryCount: 2}, p)

	merged, err := c.Dispatch(context.Background(), "text", ids("flaky"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.Sentiment != 0.3 {
		t.Fatalf("unexpected sentiment %v", merged.Sentiment)
	}
	if got := p.calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}

	// the recovered failure is still on the breaker's books
	snap := c.Breakers()
	if len(snap) != 1 || snap[0].Requests != 2 || snap[0].ConsecutiveSuccesses != 1 {
		t.Fatalf("unexpected breaker snapshot: %+v", snap)
	}
}

func TestDispatchDoesNotRetryRateLimitedOrMalformed(t *testing.T) {
	for _, kind := range []providers.ErrorKind{providers.KindRateLimited, providers.KindMalformed} {
		t.Run(string(kind), func(t *testing.T) {
			p := failing("p", kind)
			c := newCoordinator(t, Options{RetryCount: 2}, p)

			_, err := c.Dispatch(context.Background(), "text", ids("p"))
			derr, ok := AsDispatchError(err)
			if !ok || derr.Kind != KindAllProvidersFailed || derr.Failures["p"] != kind {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := p.calls.Load(); got != 1 {
				t.Fatalf("expected a single attempt, got %d", got)
			}
		})
	}
}

func TestDispatchRetryBudget(t *testing.T) {
	p := failing("down", providers.KindUnavailable)
	c := newCoordinator(t, Options{RetryCount: 2}, p)

	if _, err := c.Dispatch(context.Background(), "text", ids("down")); err == nil {
		t.Fatalf("expected failure")
	}
	if got := p.calls.Load(); got != 3 {
		t.Fatalf("expected 1 call plus 2 retries, got %d", got)
	}
}

func TestDispatchPerCallTimeout(t *testing.T) {
	c := newCoordinator(t, Options{ProviderTimeout: 20 * time.Millisecond}, hanging("slow"))

	start := time.Now()
	_, err := c.Dispatch(context.Background(), "text", ids("slow"))
	derr, ok := AsDispatchError(err)
	if !ok || derr.Failures["slow"] != providers.KindTimeout {
		t.Fatalf("expected timeout failure, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("call was not bounded by the timeout: %v", elapsed)
	}
}

func TestDispatchProviderIgnoringContextStillTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stubborn := &fakeProvider{id: "stubborn", fn: func(context.Context, int) (models.ProviderResult, error) {
		<-release
		return models.ProviderResult{}, nil
	}}
	c := newCoordinator(t, Options{ProviderTimeout: 20 * time.Millisecond}, stubborn)

	_, err := c.Dispatch(context.Background(), "text", ids("stubborn"))
	derr, ok := AsDispatchError(err)
	if !ok || derr.Failures["stubborn"] != providers.KindTimeout {
		t.Fatalf("expected timeout failure, got %v", err)
	}
}

func TestDispatchOverallDeadline(t *testing.T) {
	c := newCoordinator(t, Options{
		ProviderTimeout: time.Second,
		OverallDeadline: 30 * time.Millisecond,
	}, hanging("a"), hanging("b"))

	start := time.Now()
	_, err := c.Dispatch(context.Background(), "text", ids("a", "b"))
	derr, ok := AsDispatchError(err)
	if !ok || derr.Kind != KindTimeout {
		t.Fatalf("expected Timeout dispatch error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("overall deadline not enforced: %v", elapsed)
	}
}

func TestDispatchEnsembleMerges(t *testing.T) {
	c := newCoordinator(t, Options{},
		succeeding("a", 0.8, "Coffee", "morning"),
		succeeding("b", 0.4, "coffee", "rain"),
	)

	merged, err := c.Dispatch(context.Background(), "text", ids("a", "b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.ProviderUsed != models.EnsembleProvider || !merged.Complete {
		t.Fatalf("unexpected merged result: %+v", merged)
	}
	if diff := merged.Sentiment - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected mean 0.6, got %v", merged.Sentiment)
	}
	want := []string{"Coffee", "morning", "rain"}
	if !reflect.DeepEqual(merged.Keywords, want) {
		t.Fatalf("keywords = %v, want %v", merged.Keywords, want)
	}
}

func TestDispatchDegradedEnsemble(t *testing.T) {
	c := newCoordinator(t, Options{},
		succeeding("a", 0.5, "ok"),
		failing("b", providers.KindMalformed),
	)

	merged, err := c.Dispatch(context.Background(), "text", ids("a", "b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.Complete {
		t.Fatalf("expected degraded result to be marked incomplete")
	}
	if merged.ProviderUsed != "a" || merged.Sentiment != 0.5 {
		t.Fatalf("unexpected merged result: %+v", merged)
	}
	if merged.Failures["b"] != string(providers.KindMalformed) {
		t.Fatalf("expected failure for b, got %v", merged.Failures)
	}
}

func TestDispatchAllProvidersFailed(t *testing.T) {
	c := newCoordinator(t, Options{},
		failing("a", providers.KindRateLimited),
		failing("b", providers.KindMalformed),
	)

	_, err := c.Dispatch(context.Background(), "text", ids("a", "b"))
	derr, ok := AsDispatchError(err)
	if !ok || derr.Kind != KindAllProvidersFailed {
		t.Fatalf("expected AllProvidersFailed, got %v", err)
	}
	want := map[models.ProviderID]providers.ErrorKind{"a": providers.KindRateLimited, "b": providers.KindMalformed}
	if !reflect.DeepEqual(derr.Failures, want) {
		t.Fatalf("failures = %v, want %v", derr.Failures, want)
	}
}

func TestCircuitBreakerSkipsAfterThreshold(t *testing.T) {
	p := failing("down", providers.KindUnavailable)
	c := newCoordinator(t, Options{
		Breaker: BreakerSettings{Threshold: 5, Window: time.Minute, Cooldown: time.Minute},
	}, p)

	for i := 0; i < 5; i++ {
		c.Dispatch(context.Background(), "text", ids("down"))
	}
	if got := p.calls.Load(); got != 5 {
		t.Fatalf("expected 5 calls, got %d", got)
	}

	_, err := c.Dispatch(context.Background(), "text", ids("down"))
	derr, ok := AsDispatchError(err)
	if !ok || derr.Failures["down"] != providers.KindUnavailable {
		t.Fatalf("expected Unavailable failure, got %v", err)
	}
	if got := p.calls.Load(); got != 5 {
		t.Fatalf("expected the sixth call to be skipped, got %d calls", got)
	}

	snap := c.Breakers()
	if len(snap) != 1 || snap[0].State != "open" {
		t.Fatalf("expected open breaker, got %+v", snap)
	}
}

func TestCircuitBreakerHalfOpenTrialCall(t *testing.T) {
	var healthy atomic.Bool
	p := &fakeProvider{id: "p", fn: func(context.Context, int) (models.ProviderResult, error) {
		if healthy.Load() {
			return models.ProviderResult{Sentiment: 0.1, HasSentiment: true}, nil
		}
		return models.ProviderResult{}, providers.NewProviderError("p", providers.KindUnavailable, errors.New("down"))
	}}
	c := newCoordinator(t, Options{
		Breaker: BreakerSettings{Threshold: 2, Window: time.Minute, Cooldown: 30 * time.Millisecond},
	}, p)

	for i := 0; i < 2; i++ {
		c.Dispatch(context.Background(), "text", ids("p"))
	}
	if c.Breakers()[0].State != "open" {
		t.Fatalf("expected breaker to trip")
	}

	time.Sleep(50 * time.Millisecond)
	healthy.Store(true)

	if _, err := c.Dispatch(context.Background(), "text", ids("p")); err != nil {
		t.Fatalf("expected trial call to succeed, got %v", err)
	}
	if state := c.Breakers()[0].State; state != "closed" {
		t.Fatalf("expected breaker to close after successful trial call, got %s", state)
	}
}

func TestCircuitBreakerCanceledHalfOpenCallDoesNotClose(t *testing.T) {
	p := &fakeProvider{id: "p", fn: func(ctx context.Context, call int) (models.ProviderResult, error) {
		if call <= 2 {
			return models.ProviderResult{}, providers.NewProviderError("p", providers.KindUnavailable, errors.New("down"))
		}
		<-ctx.Done()
		return models.ProviderResult{}, ctx.Err()
	}}
	c := newCoordinator(t, Options{
		Breaker: BreakerSettings{Threshold: 2, Window: time.Minute, Cooldown: 30 * time.Millisecond},
	}, p)

	for i := 0; i < 2; i++ {
		c.Dispatch(context.Background(), "text", ids("p"))
	}
	time.Sleep(50 * time.Millisecond)
	if state := c.Breakers()[0].State; state != "half-open" {
		t.Fatalf("expected half-open after cool-down, got %s", state)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := c.Dispatch(ctx, "text", ids("p")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	if p.calls.Load() != 3 {
		t.Fatalf("expected the trial call to reach the provider, got %d calls", p.calls.Load())
	}
	if state := c.Breakers()[0].State; state == "closed" {
		t.Fatalf("a canceled trial call must not close the breaker")
	}
}

func TestCircuitBreakerIgnoresCallerCancelWhileClosed(t *testing.T) {
	p := hanging("a")
	c := newCoordinator(t, Options{
		Breaker: BreakerSettings{Threshold: 1, Window: time.Minute, Cooldown: time.Minute},
	}, p)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	c.Dispatch(ctx, "text", ids("a"))

	if state := c.Breakers()[0].State; state != "closed" {
		t.Fatalf("expected breaker to stay closed after caller cancel, got %s", state)
	}
}

func TestDispatchSkipsProviderWhenAlreadyCanceled(t *testing.T) {
	p := succeeding("a", 0.5)
	c := newCoordinator(t, Options{}, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Dispatch(ctx, "text", ids("a")); err == nil {
		t.Fatalf("expected an error for a canceled context")
	}
	if got := p.calls.Load(); got != 0 {
		t.Fatalf("expected no provider call, got %d", got)
	}
}

func TestDispatchFallsBackWhenAllOpen(t *testing.T) {
	primary := failing("primary", providers.KindUnavailable)
	backup := succeeding("backup", -0.2, "meh")
	c := newCoordinator(t, Options{
		Fallback: ids("backup"),
		Breaker:  BreakerSettings{Threshold: 1, Window: time.Minute, Cooldown: time.Minute},
	}, primary, backup)

	c.Dispatch(context.Background(), "text", ids("primary"))

	merged, err := c.Dispatch(context.Background(), "text", ids("primary"))
	if err != nil {
		t.Fatalf("expected fallback to answer, got %v", err)
	}
	if merged.ProviderUsed != "backup" || merged.Complete {
		t.Fatalf("unexpected merged result: %+v", merged)
	}
	if merged.Failures["primary"] != string(providers.KindUnavailable) {
		t.Fatalf("expected primary to be reported as unavailable, got %v", merged.Failures)
	}
}

func TestDispatchCanceledByCaller(t *testing.T) {
	c := newCoordinator(t, Options{}, hanging("a"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Dispatch(ctx, "text", ids("a"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if _, ok := AsDispatchError(err); ok {
		t.Fatalf("caller cancellation should not be a dispatch error")
	}
}
