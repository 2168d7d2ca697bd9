package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flowviz/flowviz/internal/pipeline"
	"github.com/flowviz/flowviz/internal/telemetry"
)

const (
	samplesTable        = "pipeline_samples"
	maxConsecutiveFails = 5
	requeueFactor       = 10
	finalFlushTimeout   = 5 * time.Second
)

var sampleColumns = []string{"run_id", "sampled_at", "series", "worker_id", "value"}

// Copier is the subset of *pgxpool.Pool used for bulk inserts.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Sample is one row of pipeline_samples.
type Sample struct {
	RunID     uuid.UUID
	SampledAt time.Time
	Series    string
	WorkerID  int
	Value     float64
}

// SamplesFromSnapshot flattens a snapshot into one row per worker rate plus
// one row per channel occupancy.
func SamplesFromSnapshot(runID uuid.UUID, s pipeline.Snapshot) []Sample {
	var out []Sample
	for _, stage := range pipeline.Stages {
		for id, rate := range s.Rates(stage) {
			out = append(out, Sample{RunID: runID, SampledAt: s.Timestamp, Series: stage.String(), WorkerID: id, Value: rate})
		}
	}
	out = append(out,
		Sample{RunID: runID, SampledAt: s.Timestamp, Series: telemetry.SeriesIntake, Value: float64(s.IntakeOccupancy)},
		Sample{RunID: runID, SampledAt: s.Timestamp, Series: telemetry.SeriesBatches, Value: float64(s.BatchOccupancy)},
	)
	return out
}

// SampleWriter periodically copies pipeline snapshots into PostgreSQL.
// Failed writes are retried with the next sample until too many fail in a row.
type SampleWriter struct {
	db       Copier
	source   telemetry.Source
	runID    uuid.UUID
	interval time.Duration
	logger   *slog.Logger

	requeueBuffer       []Sample
	consecutiveFailures int
}

func NewSampleWriter(db Copier, source telemetry.Source, interval time.Duration, logger *slog.Logger) *SampleWriter {
	runID := uuid.New()
	return &SampleWriter{
		db:       db,
		source:   source,
		runID:    runID,
		interval: interval,
		logger:   logger.With("component", "sample_writer", "run_id", runID.String()),
	}
}

// RunID identifies every row written by this writer.
func (w *SampleWriter) RunID() uuid.UUID {
	return w.runID
}

// Run writes one snapshot per interval until ctx is cancelled, then performs
// a final flush.
func (w *SampleWriter) Run(ctx context.Context) error {
	w.logger.Info("Sample writer starting", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Sample writer shutting down, flushing final sample")
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			if err := w.Flush(flushCtx); err != nil {
				w.logger.Error("Final flush failed", "error", err)
			}
			cancel()
			return ctx.Err()

		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				w.logger.Error("Periodic flush failed", "error", err)
			}
		}
	}
}

// Flush samples the source and writes it together with any requeued rows.
func (w *SampleWriter) Flush(ctx context.Context) error {
	current := SamplesFromSnapshot(w.runID, w.source.Snapshot())
	maxBuffer := len(current) * requeueFactor

	batch := current
	if len(w.requeueBuffer) > 0 {
		w.logger.Info("Including requeued samples in flush", "requeued_count", len(w.requeueBuffer))
		batch = append(w.requeueBuffer, current...)
		w.requeueBuffer = nil
	}

	start := time.Now()
	err := w.write(ctx, batch)
	duration := time.Since(start)

	if err != nil {
		w.consecutiveFailures++
		w.logger.Error("Sample write failed",
			"error", err,
			"batch_size", len(batch),
			"consecutive_failures", w.consecutiveFailures,
			"duration_ms", duration.Milliseconds(),
		)

		if w.consecutiveFailures < maxConsecutiveFails {
			w.requeue(batch, maxBuffer)
		} else {
			w.logger.Error("Max consecutive failures reached, dropping samples",
				"dropped_count", len(batch),
			)
		}
		return err
	}

	w.consecutiveFailures = 0
	w.logger.Debug("Samples written", "batch_size", len(batch), "duration_ms", duration.Milliseconds())
	return nil
}

func (w *SampleWriter) write(ctx context.Context, batch []Sample) error {
	if len(batch) == 0 {
		return nil
	}

	n, err := w.db.CopyFrom(ctx,
		pgx.Identifier{samplesTable},
		sampleColumns,
		pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			s := batch[i]
			return []any{s.RunID, s.SampledAt, s.Series, int32(s.WorkerID), s.Value}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("COPY operation failed: %w", err)
	}
	if n != int64(len(batch)) {
		return fmt.Errorf("COPY count mismatch: expected %d, got %d", len(batch), n)
	}
	return nil
}

// requeue keeps the newest rows of batch that fit in maxBuffer.
func (w *SampleWriter) requeue(batch []Sample, maxBuffer int) {
	keep := batch
	if len(keep) > maxBuffer {
		w.logger.Warn("Requeue buffer full, dropping oldest samples",
			"requested", len(batch),
			"dropped", len(batch)-maxBuffer,
		)
		keep = keep[len(keep)-maxBuffer:]
	}
	w.requeueBuffer = append([]Sample(nil), keep...)
	w.logger.Info("Samples requeued for retry", "buffer_size", len(w.requeueBuffer))
}
