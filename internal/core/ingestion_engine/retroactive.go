package ingestion_engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/doctext/internal/models"
)

type BatchConfig struct {
	ScanLimit  int
	BatchSize  int
	DocDelay   time.Duration
	BatchPause time.Duration
	StaleAfter time.Duration
}

// BatchReport summarizes one retroactive sweep.
type BatchReport struct {
	Found     int
	Batches   int
	Processed int
	Failed    int
	Skipped   int
}

// BatchRunner catches up on documents that are still pending, for example
// because they were uploaded while the consumer was down. It feeds them
// through the same pipeline as live events.
type BatchRunner struct {
	pipeline *DocumentPipeline
	backlog  BacklogSource
	cfg      BatchConfig
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	mu sync.Mutex
}

func NewBatchRunner(pipeline *DocumentPipeline, backlog BacklogSource, cfg BatchConfig, logger *zap.Logger) *BatchRunner {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &BatchRunner{
		pipeline: pipeline,
		backlog:  backlog,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run sweeps the pending backlog once. Concurrent calls queue up behind
// each other. Only documents still pending when their turn comes are
// touched.
func (r *BatchRunner) Run(ctx context.Context) (BatchReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report BatchReport
	docs, err := r.backlog.GetPendingDocuments(ctx, r.cfg.ScanLimit)
	if err != nil {
		return report, fmt.Errorf("fetch pending documents: %w", err)
	}
	report.Found = len(docs)
	if len(docs) == 0 {
		r.logger.Info("retroactive sweep: nothing pending")
		return report, nil
	}

	total := (len(docs) + r.cfg.BatchSize - 1) / r.cfg.BatchSize
	r.logger.Info("retroactive sweep starting",
		zap.Int("pending", len(docs)), zap.Int("batches", total), zap.Int("batch_size", r.cfg.BatchSize))

	expect := models.StatusPending
	for start := 0; start < len(docs); start += r.cfg.BatchSize {
		if start > 0 {
			if err := r.sleep(ctx, r.cfg.BatchPause); err != nil {
				return report, err
			}
		}
		end := min(start+r.cfg.BatchSize, len(docs))
		report.Batches++

		for i := start; i < end; i++ {
			if i > start {
				if err := r.sleep(ctx, r.cfg.DocDelay); err != nil {
					return report, err
				}
			}

			doc := docs[i]
			out, err := r.pipeline.process(ctx, models.EventFromDocument(&doc), &expect)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				report.Failed++
				r.logger.Error("retroactive sweep: document errored", zap.String("document_id", doc.ID), zap.Error(err))
			case out == outcomeProcessed:
				report.Processed++
			case out == outcomeFailed:
				report.Failed++
			default:
				report.Skipped++
			}
		}
		r.logger.Info("retroactive sweep: batch done", zap.Int("batch", report.Batches), zap.Int("of", total))
	}

	r.logger.Info("retroactive sweep finished",
		zap.Int("processed", report.Processed), zap.Int("failed", report.Failed), zap.Int("skipped", report.Skipped))
	return report, nil
}

// ReconcileStale fails documents whose processing attempt started longer
// than StaleAfter ago and never recorded a result. They are not retried.
func (r *BatchRunner) ReconcileStale(ctx context.Context) (int, error) {
	if r.cfg.StaleAfter <= 0 {
		return 0, nil
	}

	cutoff := r.pipeline.now().Add(-r.cfg.StaleAfter)
	docs, err := r.backlog.GetStaleProcessing(ctx, cutoff, r.cfg.ScanLimit)
	if err != nil {
		return 0, fmt.Errorf("fetch stale documents: %w", err)
	}

	reason := fmt.Sprintf("processing abandoned: no result recorded within %s", r.cfg.StaleAfter)
	failed := 0
	for _, doc := range docs {
		updated, err := r.pipeline.recorder.FailStale(ctx, doc.ID, reason)
		if err != nil {
			r.logger.Warn("reconcile stale document", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		failed++

		started := updated.UpdatedAt
		if updated.ProcessingStartedAt != nil {
			started = *updated.ProcessingStartedAt
		}
		evt := models.EventFromDocument(updated)
		r.pipeline.publish(ctx, r.logger.With(zap.String("document_id", doc.ID)),
			models.NewProcessedEvent(evt, models.StatusFailed, 0, started, updated.UpdatedAt, reason))
	}

	if failed > 0 {
		r.logger.Warn("reconciled stale processing documents", zap.Int("count", failed), zap.Duration("older_than", r.cfg.StaleAfter))
	}
	return failed, nil
}
