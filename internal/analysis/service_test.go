package analysis

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spacesedan/sentiment-aura/internal/cache"
	"github.com/spacesedan/sentiment-aura/internal/dispatch"
	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/providers"
	"github.com/spacesedan/sentiment-aura/internal/validation"
)

type stubProvider struct{ id models.ProviderID }

func (s stubProvider) ID() models.ProviderID { return s.id }

func (s stubProvider) Analyze(context.Context, string) (models.ProviderResult, error) {
	return models.ProviderResult{}, nil
}

type fakeDispatcher struct {
	calls   atomic.Int32
	gate    chan struct{}
	lastIDs []models.ProviderID
	mu      sync.Mutex
	merged  models.Merged
	err     error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, text string, ids []models.ProviderID) (models.Merged, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastIDs = ids
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	return f.merged, f.err
}

type recorded struct {
	mu      sync.Mutex
	records []models.AnalysisRecord
}

func (r *recorded) Record(rec models.AnalysisRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func newService(t *testing.T, d Dispatcher, rec Recorder) *Service {
	t.Helper()
	reg, err := providers.NewRegistry(stubProvider{"mock"}, stubProvider{"other"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return NewService(reg, d, cache.NewMemory(100), rec, Options{
		MaxTextLength:    50,
		DefaultProviders: []models.ProviderID{"mock"},
	})
}

func loveResult() models.Merged {
	return models.Merged{
		ProviderUsed: "mock",
		Sentiment:    0.9,
		Keywords:     []string{"love", "Love", " "},
		Complete:     true,
	}
}

func TestAnalyzeReturnsNormalizedResult(t *testing.T) {
	d := &fakeDispatcher{merged: loveResult()}
	rec := &recorded{}
	s := newService(t, d, rec)

	res, err := s.Analyze(context.Background(), models.NewAnalysisRequest("I love this!"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Sentiment != 0.9 || !reflect.DeepEqual(res.Keywords, []string{"love"}) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Cached || res.ProviderUsed != "mock" {
		t.Fatalf("unexpected metadata: %+v", res)
	}
	if !reflect.DeepEqual(d.lastIDs, []models.ProviderID{"mock"}) {
		t.Fatalf("expected default providers, got %v", d.lastIDs)
	}
	if len(rec.records) != 1 || rec.records[0].TextLength != len("I love this!") || rec.records[0].ID == "" {
		t.Fatalf("unexpected records: %+v", rec.records)
	}
}

func TestAnalyzeIsIdempotentAndCached(t *testing.T) {
	d := &fakeDispatcher{merged: loveResult()}
	s := newService(t, d, nil)
	ctx := context.Background()

	first, err := s.Analyze(ctx, models.NewAnalysisRequest("I love this!"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// whitespace differences normalize to the same fingerprint
	second, err := s.Analyze(ctx, models.NewAnalysisRequest("  I love   this! "))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !second.Cached {
		t.Fatalf("expected second call to be served from cache")
	}
	if first.Sentiment != second.Sentiment || !reflect.DeepEqual(first.Keywords, second.Keywords) {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}
	if got := d.calls.Load(); got != 1 {
		t.Fatalf("expected one dispatch, got %d", got)
	}
}

func TestAnalyzeDoesNotCacheDegradedResults(t *testing.T) {
	merged := loveResult()
	merged.Complete = false
	merged.Failures = map[models.ProviderID]string{"other": "Timeout"}
	d := &fakeDispatcher{merged: merged}
	s := newService(t, d, nil)

	for i := 0; i < 2; i++ {
		res, err := s.Analyze(context.Background(), models.NewAnalysisRequest("I love this!"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Cached {
			t.Fatalf("degraded result should not be cached")
		}
	}
	if got := d.calls.Load(); got != 2 {
		t.Fatalf("expected every call to dispatch, got %d", got)
	}
}

func TestAnalyzeRejectsInvalidInput(t *testing.T) {
	d := &fakeDispatcher{merged: loveResult()}
	s := newService(t, d, nil)

	tests := []struct {
		name string
		req  models.AnalysisRequest
		want validation.Reason
	}{
		{"empty", models.NewAnalysisRequest("   "), validation.ReasonEmpty},
		{"control characters only", models.NewAnalysisRequest("\x00\x01\x02"), validation.ReasonEmpty},
		{"unknown provider", models.NewAnalysisRequest("hi", "nope"), validation.ReasonUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Analyze(context.Background(), tt.req)
			invalid, ok := validation.AsInvalidInput(err)
			if !ok || invalid.Reason != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
		})
	}

	long := make([]rune, 51)
	for i := range long {
		long[i] = 'a'
	}
	_, err := s.Analyze(context.Background(), models.NewAnalysisRequest(string(long)))
	if !errors.Is(err, validation.ErrTooLong) {
		t.Fatalf("expected TooLong, got %v", err)
	}

	if got := d.calls.Load(); got != 0 {
		t.Fatalf("invalid input must not reach the dispatcher, got %d calls", got)
	}
}

func TestAnalyzePropagatesDispatchErrors(t *testing.T) {
	derr := &dispatch.DispatchError{
		Kind:     dispatch.KindAllProvidersFailed,
		Failures: map[models.ProviderID]providers.ErrorKind{"mock": providers.KindUnavailable},
	}
	s := newService(t, &fakeDispatcher{err: derr}, nil)

	_, err := s.Analyze(context.Background(), models.NewAnalysisRequest("hello there"))
	if got, ok := dispatch.AsDispatchError(err); !ok || got.Kind != dispatch.KindAllProvidersFailed {
		t.Fatalf("expected dispatch error, got %v", err)
	}
}

func TestAnalyzeCollapsesConcurrentMisses(t *testing.T) {
	d := &fakeDispatcher{merged: loveResult(), gate: make(chan struct{})}
	s := newService(t, d, nil)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]models.AnalysisResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.Analyze(context.Background(), models.NewAnalysisRequest("I love this!"))
		}()
	}

	// let every caller queue up behind the first dispatch
	deadline := time.Now().Add(time.Second)
	for d.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(d.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Sentiment != 0.9 {
			t.Fatalf("caller %d: unexpected result %+v", i, results[i])
		}
	}
	if got := d.calls.Load(); got != 1 {
		t.Fatalf("expected a single dispatch, got %d", got)
	}
}

func TestAnalyzeCallerCancellation(t *testing.T) {
	d := &fakeDispatcher{merged: loveResult(), gate: make(chan struct{})}
	defer close(d.gate)
	s := newService(t, d, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Analyze(ctx, models.NewAnalysisRequest("I love this!"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline, got %v", err)
	}
}
