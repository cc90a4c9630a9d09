// Package analysis wires validation, caching, dispatch and normalization into
// the single entry point used by the HTTP layer.
package analysis

import (
	"context"
	"log/slog"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/spacesedan/sentiment-aura/internal/cache"
	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/normalize"
	"github.com/spacesedan/sentiment-aura/internal/providers"
	"github.com/spacesedan/sentiment-aura/internal/validation"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, text string, ids []models.ProviderID) (models.Merged, error)
}

// Recorder receives a record of every fresh analysis. It must not block.
type Recorder interface {
	Record(rec models.AnalysisRecord)
}

type Options struct {
	MaxTextLength    int
	MaxKeywords      int
	CacheTTL         time.Duration
	DefaultProviders []models.ProviderID
}

type Service struct {
	registry   *providers.Registry
	dispatcher Dispatcher
	cache      cache.Cache
	recorder   Recorder
	opts       Options
	inflight   singleflight.Group
	now        func() time.Time
}

func NewService(registry *providers.Registry, dispatcher Dispatcher, c cache.Cache, recorder Recorder, opts Options) *Service {
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = validation.DefaultMaxTextLength
	}
	if opts.MaxKeywords <= 0 {
		opts.MaxKeywords = normalize.DefaultMaxKeywords
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultTTL
	}
	if c == nil {
		c = cache.Noop{}
	}

	return &Service{
		registry:   registry,
		dispatcher: dispatcher,
		cache:      c,
		recorder:   recorder,
		opts:       opts,
		now:        time.Now,
	}
}

// Analyze validates the request, serves it from cache when possible and
// otherwise dispatches it. Identical concurrent misses share one dispatch.
func (s *Service) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	text, err := validation.Validate(req.Text, s.opts.MaxTextLength)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	ids, err := s.resolve(req.RequestedProviders)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	fp := cache.Fingerprint(text, ids)
	if hit, ok := s.cache.Get(ctx, fp); ok {
		hit.Cached = true
		return hit, nil
	}

	// the shared call outlives any single caller; the coordinator bounds it
	ch := s.inflight.DoChan(fp, func() (interface{}, error) {
		return s.analyzeFresh(context.WithoutCancel(ctx), fp, text, ids)
	})

	select {
	case <-ctx.Done():
		return models.AnalysisResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.AnalysisResult{}, res.Err
		}
		out := res.Val.(models.AnalysisResult)
		out.Keywords = slices.Clone(out.Keywords)
		return out, nil
	}
}

func (s *Service) resolve(requested []models.ProviderID) ([]models.ProviderID, error) {
	if len(requested) == 0 {
		requested = s.opts.DefaultProviders
	}

	resolved, err := s.registry.Resolve(requested)
	if err != nil {
		return nil, err
	}

	ids := make([]models.ProviderID, 0, len(resolved))
	for _, p := range resolved {
		ids = append(ids, p.ID())
	}
	return ids, nil
}

func (s *Service) analyzeFresh(ctx context.Context, fp, text string, ids []models.ProviderID) (models.AnalysisResult, error) {
	merged, err := s.dispatcher.Dispatch(ctx, text, ids)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	result := normalize.Normalize(merged, s.opts.MaxKeywords)

	if merged.Complete {
		s.cache.Put(ctx, fp, result, s.opts.CacheTTL)
	} else {
		slog.Info("[AnalysisService] Not caching degraded result",
			slog.String("provider_used", string(result.ProviderUsed)),
			slog.Int("failures", len(merged.Failures)))
	}

	if s.recorder != nil {
		s.recorder.Record(models.AnalysisRecord{
			ID:          uuid.NewString(),
			Fingerprint: fp,
			Providers:   slices.Clone(ids),
			Result:      result,
			Failures:    merged.Failures,
			LatencyMs:   merged.LatencyMs,
			TextLength:  utf8.RuneCountInString(text),
			CreatedAt:   s.now().UTC(),
		})
	}

	return result, nil
}
