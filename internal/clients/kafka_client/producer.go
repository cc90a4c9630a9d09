package kafka_client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

// transactionalProducer is the subset of *kafka.Producer the results producer needs.
type transactionalProducer interface {
	BeginTransaction() error
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	CommitTransaction(ctx context.Context) error
	AbortTransaction(ctx context.Context) error
	Flush(timeoutMs int) int
	Events() chan kafka.Event
	Close()
}

// ResultsProducer publishes analysis records, one transaction per batch.
type ResultsProducer struct {
	producer         transactionalProducer
	topic            string
	deliveryFailures atomic.Int64
	drained          chan struct{}
}

func NewResultsProducer(ctx context.Context, cfg KafkaConfig) (*ResultsProducer, error) {
	cfg = cfg.withDefaults()
	slog.Info("[KafkaClient] Initializing Kafka Producer...",
		slog.String("broker", cfg.Broker),
		slog.String("topic", cfg.Topic))

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":                     cfg.Broker,
		"security.protocol":                     "PLAINTEXT",
		"api.version.request":                   "true",
		"enable.idempotence":                    true,
		"acks":                                  "all",
		"max.in.flight.requests.per.connection": 1,
		"transactional.id":                      cfg.TransactionalID,
	})
	if err != nil {
		return nil, fmt.Errorf("[KafkaClient] Failed to create producer: %w", err)
	}

	if err := p.InitTransactions(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("[KafkaClient] Failed to init transactions: %w", err)
	}

	slog.Info("[KafkaClient] Kafka Producer initialized successfully")
	return newResultsProducer(p, cfg.Topic), nil
}

func newResultsProducer(p transactionalProducer, topic string) *ResultsProducer {
	rp := &ResultsProducer{producer: p, topic: topic, drained: make(chan struct{})}
	go rp.drainEvents()
	return rp
}

// drainEvents consumes delivery reports until the producer is closed. Messages
// are produced without a delivery channel, so every report lands here.
func (rp *ResultsProducer) drainEvents() {
	defer close(rp.drained)

	for ev := range rp.producer.Events() {
		switch e := ev.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				rp.deliveryFailures.Add(1)
				slog.Error("[KafkaClient] Delivery failed",
					slog.String("key", string(e.Key)),
					slog.String("error", e.TopicPartition.Error.Error()))
			}
		case kafka.Error:
			slog.Error("[KafkaClient] Producer error",
				slog.String("code", e.Code().String()),
				slog.String("error", e.Error()))
		}
	}
}

// DeliveryFailures counts records the broker reported as undeliverable.
func (rp *ResultsProducer) DeliveryFailures() int64 {
	return rp.deliveryFailures.Load()
}

func (rp *ResultsProducer) Name() string { return "kafka" }

// Write publishes every record keyed by its fingerprint. Either the whole
// batch is committed or the transaction is aborted.
func (rp *ResultsProducer) Write(ctx context.Context, records []models.AnalysisRecord) error {
	if len(records) == 0 {
		return nil
	}

	if err := rp.producer.BeginTransaction(); err != nil {
		return fmt.Errorf("[KafkaClient] failed to begin transaction: %w", err)
	}

	for _, rec := range records {
		jsonData, err := json.Marshal(rec)
		if err != nil {
			return rp.abort(ctx, fmt.Errorf("[KafkaClient] failed to marshal record: %w", err))
		}

		msg := &kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &rp.topic, Partition: kafka.PartitionAny},
			Key:            []byte(rec.Fingerprint),
			Value:          jsonData,
		}

		for i := 0; i < MAX_RETRIES; i++ {
			err = rp.producer.Produce(msg, nil)
			if err == nil {
				break
			}
			slog.Warn("[KafkaClient] Failed to produce message, retrying...",
				slog.Int("attempt", i+1),
				slog.String("error", err.Error()))
			time.Sleep(RETRY_DELAY)
		}
		if err != nil {
			return rp.abort(ctx, fmt.Errorf("[KafkaClient] failed to produce record %s: %w", rec.ID, err))
		}
	}

	var commitErr error
	for i := 0; i < MAX_RETRIES; i++ {
		commitErr = rp.producer.CommitTransaction(ctx)
		if commitErr == nil {
			break
		}
		slog.Warn("[KafkaClient] Failed to commit transaction, retrying...",
			slog.Int("attempt", i+1),
			slog.String("error", commitErr.Error()))
	}
	if commitErr != nil {
		return rp.abort(ctx, fmt.Errorf("[KafkaClient] failed to commit transaction after %d retries: %w", MAX_RETRIES, commitErr))
	}

	slog.Debug("[KafkaClient] Published analysis records",
		slog.String("topic", rp.topic),
		slog.Int("count", len(records)))
	return nil
}

func (rp *ResultsProducer) abort(ctx context.Context, cause error) error {
	if abortErr := rp.producer.AbortTransaction(ctx); abortErr != nil {
		return fmt.Errorf("%w (abort failed: %v)", cause, abortErr)
	}
	return cause
}

func (rp *ResultsProducer) Close() {
	slog.Info("[KafkaClient] Shutting down Kafka producer...")
	if remaining := rp.producer.Flush(FLUSH_TIMEOUT); remaining > 0 {
		slog.Warn("[KafkaClient] Not all messages were delivered before shutdown",
			slog.Int("remaining", remaining))
	}
	rp.producer.Close()
	<-rp.drained
	slog.Info("[KafkaClient] Kafka producer shut down")
}
