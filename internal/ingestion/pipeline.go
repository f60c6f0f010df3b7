// Package ingestion orchestrates the real-time encode path: fetch a batch
// from the log, decode payloads into rows, dictionary-encode them, fold them
// into the active in-memory segment, then checkpoint the batch's end
// position. One goroutine owns the whole loop, which keeps every dictionary
// and forward-index write single-writer as the codec layer requires.
package ingestion

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stratumdb/stratum/pkg/decoder"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/metrics"
	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/observability"
	"github.com/stratumdb/stratum/pkg/performance"
	"github.com/stratumdb/stratum/pkg/rowcodec"
	"github.com/stratumdb/stratum/pkg/schema"
	"github.com/stratumdb/stratum/pkg/segment"
	"github.com/stratumdb/stratum/pkg/stream"
	stringpool "github.com/stratumdb/stratum/pkg/strings"
)

// ErrorStrategy decides what happens to a payload the pipeline cannot turn
// into an indexed row.
type ErrorStrategy string

const (
	// StrategyFail stops the pipeline on the first bad payload.
	StrategyFail ErrorStrategy = "fail"
	// StrategySkip counts and logs bad payloads, then moves on.
	StrategySkip ErrorStrategy = "skip"
	// StrategyDeadLetter parks bad payloads in the bounded in-memory queue.
	StrategyDeadLetter ErrorStrategy = "dead_letter"
)

// BatchSource is the slice of the log transport the pipeline drains.
// *stream.Consumer implements it.
type BatchSource interface {
	Fetch(ctx context.Context) (*stream.Batch, error)
	HighWaterMark() int64
}

// Options configures one pipeline run.
type Options struct {
	Table     string
	Topic     string
	Partition int32

	ErrorStrategy      ErrorStrategy
	DeadLetterCapacity int
	StatsInterval      time.Duration

	SealPolicy segment.Policy

	// OnSeal, when set, receives each sealed segment before the pipeline
	// drops its reference and rotates to a fresh one.
	OnSeal func(*segment.Segment)
}

// Pipeline is the single-writer ingestion loop for one partition.
type Pipeline struct {
	source      BatchSource
	decoder     decoder.RowDecoder
	schema      *schema.Schema
	checkpoints Checkpointer
	monitor     *performance.Monitor
	dlq         *DeadLetterQueue
	opts        Options
	logger      *zap.Logger

	seg    *segment.Segment
	segSeq int

	stats        *Stats
	lastStatsLog time.Time

	partitionLabel string
}

// New wires a pipeline. A nil checkpointer gets the in-memory store and a
// nil monitor gets a fresh process monitor.
func New(source BatchSource, dec decoder.RowDecoder, sch *schema.Schema, checkpoints Checkpointer, monitor *performance.Monitor, opts Options, logger *zap.Logger) *Pipeline {
	if checkpoints == nil {
		checkpoints = NewMemoryCheckpointer()
	}
	if monitor == nil {
		monitor = performance.NewMonitor()
	}
	if opts.ErrorStrategy == "" {
		opts.ErrorStrategy = StrategySkip
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = 30 * time.Second
	}
	if opts.Table == "" {
		opts.Table = sch.Name()
	}

	p := &Pipeline{
		source:         source,
		decoder:        dec,
		schema:         sch,
		checkpoints:    checkpoints,
		monitor:        monitor,
		opts:           opts,
		logger:         logger.With(zap.String("component", "ingestion_pipeline"), zap.String("table", opts.Table)),
		stats:          newStats(),
		lastStatsLog:   time.Now(),
		partitionLabel: metrics.PartitionLabel(opts.Partition),
	}
	if opts.ErrorStrategy == StrategyDeadLetter {
		p.dlq = NewDeadLetterQueue(opts.DeadLetterCapacity)
	}
	return p
}

// Stats returns the pipeline's live counters.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}

// DeadLetters returns the dead-letter queue, or nil unless the dead_letter
// strategy is active.
func (p *Pipeline) DeadLetters() *DeadLetterQueue {
	return p.dlq
}

// Segment returns the active segment. The loop goroutine swaps it on
// rotation, so call this before Run starts, after it returns, or from the
// OnSeal callback.
func (p *Pipeline) Segment() *segment.Segment {
	return p.seg
}

func (p *Pipeline) newSegment() *segment.Segment {
	name := stringpool.Sprintf("%s__%d__%d", p.opts.Table, p.opts.Partition, p.segSeq)
	return segment.New(name, p.schema)
}

// Run drives the loop until ctx is cancelled or a fatal error occurs.
// Cancellation is a clean stop: the current batch finishes and its
// checkpoint is saved before returning.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("starting ingestion pipeline",
		zap.String("topic", p.opts.Topic),
		zap.Int32("partition", p.opts.Partition),
		zap.String("error_strategy", string(p.opts.ErrorStrategy)),
		zap.Int("columns", p.schema.NumColumns()))

	if p.seg == nil {
		p.seg = p.newSegment()
	}

	for {
		if ctx.Err() != nil {
			return p.shutdown(nil)
		}

		batch, err := p.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return p.shutdown(nil)
			}
			if errors.IsRetryable(err) {
				p.logger.Warn("fetch failed, retrying", zap.Error(err))
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
				}
				continue
			}
			return p.shutdown(err)
		}

		p.stats.BatchesFetched.Add(1)
		metrics.BatchSize.Observe(float64(batch.Count()))

		if batch.Count() == 0 {
			p.maybeSeal()
			p.maybeLogStats()
			continue
		}

		p.stats.MessagesConsumed.Add(int64(batch.Count()))
		p.stats.BytesConsumed.Add(int64(batch.Size()))
		metrics.MessagesConsumed.WithLabelValues(p.opts.Topic, p.partitionLabel).Add(float64(batch.Count()))
		metrics.BytesConsumed.WithLabelValues(p.opts.Topic, p.partitionLabel).Add(float64(batch.Size()))

		if err := p.processBatch(ctx, batch); err != nil {
			return p.shutdown(err)
		}
		if err := p.checkpoint(ctx, batch); err != nil {
			return p.shutdown(err)
		}

		p.updateSegmentGauges()
		p.maybeSeal()
		p.maybeLogStats()
	}
}

func (p *Pipeline) shutdown(err error) error {
	if err != nil {
		p.logger.Error("pipeline failed", zap.Error(err))
	}
	p.logger.Info("pipeline stopped", zap.Any("stats", p.stats.Snapshot()))
	return err
}

// processBatch folds every message of the batch into the active segment.
// Only the fail strategy makes a bad payload escape as an error.
func (p *Pipeline) processBatch(ctx context.Context, batch *stream.Batch) error {
	return observability.TraceBatch(ctx, "pipeline.process_batch", batch.Count(), func(context.Context) error {
		for i := 0; i < batch.Count(); i++ {
			payload, err := batch.PayloadAt(i)
			if err != nil {
				return err
			}
			if err := p.processMessage(batch, i, payload); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Pipeline) processMessage(batch *stream.Batch, i int, payload []byte) error {
	timer := time.Now()

	row, err := p.decoder.Decode(payload)
	if err != nil {
		return p.handleBadPayload(batch, i, payload, err)
	}

	position, _ := batch.PositionAt(i)
	next, _ := batch.NextPositionAt(i)
	ts, _ := batch.TimestampAt(i)
	row.Metadata = models.RowMetadata{
		Topic:        p.opts.Topic,
		Partition:    p.opts.Partition,
		Position:     position,
		NextPosition: next,
		Timestamp:    ts,
	}

	buf, err := rowcodec.Encode(row, p.schema, p.seg.Dictionaries())
	if err != nil {
		row.Release()
		return p.handleBadPayload(batch, i, payload, err)
	}

	if err := p.seg.IndexRow(buf); err != nil {
		row.Release()
		return p.handleBadPayload(batch, i, payload, err)
	}
	row.Release()

	metrics.EncodeLatency.WithLabelValues(p.opts.Table).Observe(float64(time.Since(timer).Nanoseconds()))
	metrics.RowsProcessed.WithLabelValues(p.opts.Table, "indexed").Inc()
	p.stats.RowsIndexed.Add(1)

	return nil
}

func (p *Pipeline) handleBadPayload(batch *stream.Batch, i int, payload []byte, cause error) error {
	position, _ := batch.PositionAt(i)

	switch p.opts.ErrorStrategy {
	case StrategyFail:
		metrics.RowsProcessed.WithLabelValues(p.opts.Table, "failed").Inc()
		return errors.Wrapf(cause, errors.GetType(cause),
			"failed to ingest message at position %d", position)

	case StrategyDeadLetter:
		p.dlq.Add(DeadLetter{
			Payload:   payload,
			Partition: p.opts.Partition,
			Position:  position,
			Reason:    cause.Error(),
			Time:      time.Now(),
		})
		p.stats.RowsDeadLetter.Add(1)
		metrics.DeadLetters.WithLabelValues(p.opts.Table).Inc()
		metrics.RowsProcessed.WithLabelValues(p.opts.Table, "dead_lettered").Inc()
		p.logger.Warn("dead-lettered message",
			zap.Int64("position", position),
			zap.Error(cause))
		return nil

	default:
		p.stats.RowsSkipped.Add(1)
		metrics.RowsProcessed.WithLabelValues(p.opts.Table, "skipped").Inc()
		p.logger.Warn("skipping message",
			zap.Int64("position", position),
			zap.Error(cause))
		return nil
	}
}

// checkpoint saves the position after the batch's last message. Runs only
// once the whole batch is folded in, so a crash before it replays the batch
// rather than losing it.
func (p *Pipeline) checkpoint(ctx context.Context, batch *stream.Batch) error {
	next, err := batch.NextPositionAt(batch.Count() - 1)
	if err != nil {
		return err
	}

	if err := p.checkpoints.Save(ctx, p.opts.Topic, p.opts.Partition, next); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to save checkpoint")
	}

	p.stats.LastCheckpoint.Store(next)
	metrics.CheckpointPosition.WithLabelValues(p.opts.Topic, p.partitionLabel).Set(float64(next))

	if hwm := p.source.HighWaterMark(); hwm > 0 {
		lag := hwm - next
		if lag < 0 {
			lag = 0
		}
		p.stats.ConsumerLag.Store(lag)
		metrics.ConsumerLag.WithLabelValues(p.opts.Topic, p.partitionLabel).Set(float64(lag))
	}

	return nil
}

func (p *Pipeline) updateSegmentGauges() {
	stats := p.seg.Stats()
	metrics.SegmentRows.WithLabelValues(p.opts.Table).Set(float64(stats.Rows))
	metrics.SegmentMemoryBytes.WithLabelValues(p.opts.Table).Set(float64(stats.MemoryBytes))
	for column, entries := range stats.DictionaryEntries {
		metrics.DictionaryEntries.WithLabelValues(p.opts.Table, column).Set(float64(entries))
	}
	p.stats.DictionaryBytes.Store(stats.DictionaryBytes)
}

// maybeSeal rotates the active segment when a seal threshold is crossed.
// Empty segments are never sealed; the age trigger would otherwise churn an
// idle partition.
func (p *Pipeline) maybeSeal() {
	if p.seg.RowCount() == 0 {
		return
	}

	due, reason := p.opts.SealPolicy.Due(p.seg, p.monitor.RSS())
	if !due {
		return
	}

	sealed := p.seg
	stats := sealed.Seal()

	p.stats.SegmentsSealed.Add(1)
	metrics.SegmentsSealed.WithLabelValues(p.opts.Table, reason).Inc()
	p.logger.Info("sealed segment",
		zap.String("segment", stats.Name),
		zap.String("reason", reason),
		zap.Int("rows", stats.Rows),
		zap.Int64("memory_bytes", stats.MemoryBytes),
		zap.Duration("age", stats.SealedAt.Sub(stats.CreatedAt)))

	if p.opts.OnSeal != nil {
		p.opts.OnSeal(sealed)
	}

	p.segSeq++
	p.seg = p.newSegment()
	p.updateSegmentGauges()
}

func (p *Pipeline) maybeLogStats() {
	if time.Since(p.lastStatsLog) < p.opts.StatsInterval {
		return
	}
	p.lastStatsLog = time.Now()
	p.logger.Info("pipeline stats", zap.Any("stats", p.stats.Snapshot()))
}
