package main

import (
	"context"
	"log/slog"

	"github.com/spacesedan/sentiment-aura/config"
	"github.com/spacesedan/sentiment-aura/internal/cache"
	"github.com/spacesedan/sentiment-aura/internal/clients"
	"github.com/spacesedan/sentiment-aura/internal/clients/kafka_client"
	"github.com/spacesedan/sentiment-aura/internal/db"
	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/providers"
	"github.com/spacesedan/sentiment-aura/internal/recorder"
)

func providerIDs(names []string) []models.ProviderID {
	ids := make([]models.ProviderID, 0, len(names))
	for _, n := range names {
		ids = append(ids, models.ProviderID(n))
	}
	return ids
}

// buildRegistry registers every provider named in ENABLED_PROVIDERS, in order.
func buildRegistry(cfg config.Config) (*providers.Registry, error) {
	registry, err := providers.NewRegistry()
	if err != nil {
		return nil, err
	}

	for _, id := range providerIDs(cfg.EnabledProviders) {
		var p providers.Provider
		switch id {
		case providers.OpenAI:
			p = providers.NewLLMPromptProvider(providers.OpenAIOptions{
				APIKey:  cfg.OpenAIAPIKey,
				Model:   cfg.OpenAIModel,
				BaseURL: cfg.OpenAIBaseURL,
			})
		case providers.Anthropic:
			p = providers.NewAnthropicPromptProvider(providers.AnthropicOptions{
				APIKey:  cfg.AnthropicAPIKey,
				Model:   cfg.AnthropicModel,
				BaseURL: cfg.AnthropicBaseURL,
			})
		case providers.Vader:
			p = providers.NewClassicalSentimentProvider()
		case providers.Keywords:
			p = providers.NewKeywordExtractionProvider(cfg.MaxKeywords)
		case providers.HuggingFace:
			p = providers.NewHuggingFaceProvider(clients.NewHuggingFaceClient(clients.HuggingFaceOptions{
				SentimentEndpoint: cfg.HFSentimentEndpoint,
				HealthEndpoint:    cfg.HFHealthEndpoint,
				Timeout:           cfg.ProviderTimeout(),
			}))
		default:
			slog.Warn("[Main] Skipping unknown provider", slog.String("provider", string(id)))
			continue
		}

		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// buildCache returns the in-process cache, fronting Valkey or Redis when one
// is configured. A remote store that cannot be reached is skipped.
func buildCache(ctx context.Context, cfg config.Config) (cache.Cache, func()) {
	local := cache.NewMemory(cfg.CacheCapacity)
	remoteOpts := cache.ValkeyOptions{Timeout: cfg.CacheRemoteTimeout()}

	switch {
	case cfg.ValkeyInitAddress != "":
		vc, err := clients.NewValkeyClient(ctx, clients.ValkeyOptions{
			Address:  cfg.ValkeyInitAddress,
			Password: cfg.ValkeyPassword,
			TLS:      cfg.ValkeyTLS,
		})
		if err != nil {
			slog.Warn("[Main] Valkey unavailable, using in-process cache only",
				slog.String("error", err.Error()))
			return local, func() {}
		}
		slog.Info("[Main] Result cache backed by Valkey", slog.String("address", cfg.ValkeyInitAddress))
		return cache.NewTiered(local, cache.NewValkey(vc, remoteOpts), cfg.CacheTTL()), vc.Close

	case cfg.RedisURL != "":
		rc, err := clients.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("[Main] Redis unavailable, using in-process cache only",
				slog.String("error", err.Error()))
			return local, func() {}
		}
		slog.Info("[Main] Result cache backed by Redis")
		return cache.NewTiered(local, cache.NewValkey(rc, remoteOpts), cfg.CacheTTL()), rc.Close
	}

	return local, func() {}
}

// buildRecorder wires the result sinks that have configuration. With none the
// recorder still runs and simply drops batches.
func buildRecorder(ctx context.Context, cfg config.Config) (*recorder.Recorder, func()) {
	var sinks []recorder.Sink
	var closers []func()

	if cfg.KafkaBroker != "" {
		producer, err := kafka_client.NewResultsProducer(ctx, kafka_client.KafkaConfig{
			Broker: cfg.KafkaBroker,
			Topic:  cfg.KafkaResultsTopic,
		})
		if err != nil {
			slog.Warn("[Main] Kafka sink disabled", slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, producer)
			closers = append(closers, producer.Close)
		}
	}

	if cfg.DynamoDBTable != "" {
		awsOpts := clients.AWSOptions{Region: cfg.AWSRegion, Endpoint: cfg.AWSEndpoint}
		awsCfg, err := clients.LoadAWSConfig(ctx, awsOpts)
		if err != nil {
			slog.Warn("[Main] DynamoDB sink disabled", slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, db.NewAnalysisStore(clients.NewDynamoDBClient(awsCfg, awsOpts), cfg.DynamoDBTable))
		}
	}

	rec := recorder.New(recorder.Options{
		BatchSize:     cfg.RecorderBatchSize,
		FlushInterval: cfg.RecorderFlushInterval(),
	}, sinks...)

	return rec, func() {
		for _, c := range closers {
			c()
		}
	}
}
