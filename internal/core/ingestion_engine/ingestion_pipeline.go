package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/markdave123-py/doctext/internal/core"
	"github.com/markdave123-py/doctext/internal/models"
)

type PipelineConfig struct {
	DownloadTimeout   time.Duration
	ExtractionTimeout time.Duration
}

// outcome is what one pipeline invocation did to its document.
type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeFailed
	outcomeSkipped
)

type DocumentPipeline struct {
	recorder  StateRecorder
	obj       core.ObjectClient
	extractor core.TextExtractor
	publisher core.EventPublisher
	guard     core.InFlightGuard
	cfg       PipelineConfig
	logger    *zap.Logger
	now       func() time.Time
}

var _ Ingestor = (*DocumentPipeline)(nil)

// NewDocumentPipeline wires the per-document handler. guard may be nil.
func NewDocumentPipeline(recorder StateRecorder, obj core.ObjectClient, extractor core.TextExtractor,
	publisher core.EventPublisher, guard core.InFlightGuard, cfg PipelineConfig, logger *zap.Logger) *DocumentPipeline {
	return &DocumentPipeline{
		recorder:  recorder,
		obj:       obj,
		extractor: extractor,
		publisher: publisher,
		guard:     guard,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleUpload processes a live upload event. Processing failures are
// recorded on the document and do not surface here; only malformed events
// and store write failures do.
func (p *DocumentPipeline) HandleUpload(ctx context.Context, evt models.UploadEvent) error {
	_, err := p.process(ctx, evt, nil)
	return err
}

func (p *DocumentPipeline) process(ctx context.Context, evt models.UploadEvent, expect *models.ProcessingStatus) (outcome, error) {
	if err := evt.Validate(); err != nil {
		return outcomeSkipped, err
	}
	log := p.logger.With(zap.String("document_id", evt.DocumentID))

	if p.guard != nil {
		acquired, err := p.guard.Acquire(ctx, evt.DocumentID)
		switch {
		case err != nil:
			log.Warn("in-flight guard unavailable, continuing", zap.Error(err))
		case !acquired:
			log.Info("document already in flight, skipping")
			return outcomeSkipped, nil
		default:
			defer func() {
				if err := p.guard.Release(context.WithoutCancel(ctx), evt.DocumentID); err != nil {
					log.Warn("release in-flight guard", zap.Error(err))
				}
			}()
		}
	}

	started := p.now()
	doc, err := p.recorder.BeginProcessing(ctx, evt.DocumentID, expect)
	if err != nil {
		if errors.Is(err, models.ErrStatusConflict) {
			log.Info("document left the expected state, skipping", zap.NamedError("reason", err))
			return outcomeSkipped, nil
		}
		return outcomeSkipped, fmt.Errorf("mark %s processing: %w", evt.DocumentID, err)
	}
	evt = evt.FillFrom(doc)
	log.Info("processing document", zap.String("filename", evt.Filename), zap.String("mime_type", evt.MimeType))

	res, reason, err := p.extract(ctx, evt)
	if err != nil {
		return outcomeSkipped, err
	}

	if reason == "" {
		if _, err := p.recorder.CompleteProcessing(ctx, evt.DocumentID, res); err != nil {
			return outcomeSkipped, fmt.Errorf("record result for %s: %w", evt.DocumentID, err)
		}
		finished := p.now()
		textLength := utf8.RuneCountInString(res.Text)
		log.Info("document processed",
			zap.String("method", res.Method), zap.Int("text_length", textLength),
			zap.Float64("confidence", res.Confidence), zap.Duration("elapsed", finished.Sub(started)))
		p.publish(ctx, log, models.NewProcessedEvent(evt, models.StatusProcessed, textLength, started, finished, ""))
		return outcomeProcessed, nil
	}

	if _, err := p.recorder.FailProcessing(ctx, evt.DocumentID, reason); err != nil {
		return outcomeSkipped, fmt.Errorf("record failure for %s: %w", evt.DocumentID, err)
	}
	finished := p.now()
	log.Warn("document failed", zap.String("reason", reason))
	p.publish(ctx, log, models.NewProcessedEvent(evt, models.StatusFailed, 0, started, finished, reason))
	return outcomeFailed, nil
}

// extract runs download, extraction and the quality gate. A non-empty
// reason means the attempt failed and should be recorded as such; err is
// reserved for cancellation of ctx itself.
func (p *DocumentPipeline) extract(ctx context.Context, evt models.UploadEvent) (*core.ExtractionResult, string, error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DownloadTimeout)
	data, err := p.obj.GetFile(dctx, evt.BucketName, evt.FilePath)
	timedOut := errors.Is(dctx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		if timedOut {
			return nil, fmt.Sprintf("download timed out after %s", p.cfg.DownloadTimeout), nil
		}
		return nil, err.Error(), nil
	}

	type result struct {
		res *core.ExtractionResult
		err error
	}
	ectx, cancel := context.WithTimeout(ctx, p.cfg.ExtractionTimeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		res, err := p.extractor.Extract(ectx, data, evt.MimeType, evt.Filename)
		done <- result{res, err}
	}()

	var out result
	select {
	case out = <-done:
	case <-ectx.Done():
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, fmt.Sprintf("text extraction timed out after %s", p.cfg.ExtractionTimeout), nil
	}

	if out.err != nil {
		return nil, out.err.Error(), nil
	}
	if !p.extractor.IsAcceptable(out.res) {
		conf, words := 0.0, 0
		if out.res != nil {
			conf, words = out.res.Confidence, out.res.WordCount
		}
		return nil, fmt.Sprintf("Poor extraction quality: confidence %.0f%%, %d words", conf, words), nil
	}
	if n := utf8.RuneCountInString(out.res.Text); n > models.MaxExtractedTextLength {
		return nil, fmt.Sprintf("extracted text too large: %d characters (max %d)", n, models.MaxExtractedTextLength), nil
	}
	return out.res, "", nil
}

func (p *DocumentPipeline) publish(ctx context.Context, log *zap.Logger, evt models.ProcessedEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishProcessed(context.WithoutCancel(ctx), evt); err != nil {
		log.Error("publish outcome event", zap.String("status", string(evt.ProcessingStatus)), zap.Error(err))
	}
}
