// Package recorder ships analysis records to durable sinks in the background.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/utils"
)

const (
	DefaultBatchSize     = 25
	DefaultFlushInterval = 5 * time.Second
	sinkWriteTimeout     = 10 * time.Second
)

// Sink is a destination for batches of records (Kafka, DynamoDB).
type Sink interface {
	Name() string
	Write(ctx context.Context, records []models.AnalysisRecord) error
}

type Options struct {
	BatchSize     int
	FlushInterval time.Duration
}

// Recorder buffers records and writes them to every sink on size or interval.
// Sink failures are logged and the batch is dropped.
type Recorder struct {
	sinks   []Sink
	buffer  *utils.BatchBuffer[models.AnalysisRecord]
	opts    Options
	flushCh chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
}

func New(opts Options, sinks ...Sink) *Recorder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}

	return &Recorder{
		sinks:   sinks,
		buffer:  utils.NewBatchBuffer[models.AnalysisRecord](opts.BatchSize),
		opts:    opts,
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Record never blocks the caller.
func (r *Recorder) Record(rec models.AnalysisRecord) {
	if len(r.sinks) == 0 {
		return
	}
	if r.buffer.Add(rec) >= r.opts.BatchSize {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
}

// Run flushes until ctx is cancelled or Close is called, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	slog.Info("[Recorder] Started",
		slog.Int("batch_size", r.opts.BatchSize),
		slog.Duration("flush_interval", r.opts.FlushInterval),
		slog.Int("sinks", len(r.sinks)))

	for {
		select {
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx))
			return
		case <-r.stopCh:
			r.flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			r.flush(ctx)
		case <-r.flushCh:
			r.flush(ctx)
		}
	}
}

// Close stops a running Run after a final flush and waits for it.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.stopCh) })
	<-r.done
}

func (r *Recorder) flush(ctx context.Context) {
	if !r.buffer.HasData() {
		return
	}
	r.buffer.LogBatchProcessing("analysis-records")
	batch := r.buffer.GetAndClear()
	if len(batch) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sink := range r.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			writeCtx, cancel := context.WithTimeout(ctx, sinkWriteTimeout)
			defer cancel()

			start := time.Now()
			if err := sink.Write(writeCtx, batch); err != nil {
				slog.Error("[Recorder] Sink write failed",
					slog.String("sink", sink.Name()),
					slog.Int("records", len(batch)),
					slog.String("error", err.Error()))
				return
			}
			slog.Debug("[Recorder] Batch written",
				slog.String("sink", sink.Name()),
				slog.Int("records", len(batch)),
				slog.Duration("elapsed", time.Since(start)))
		}()
	}
	wg.Wait()
}
