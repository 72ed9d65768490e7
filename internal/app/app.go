// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/doctext/internal/api/handlers"
	"github.com/markdave123-py/doctext/internal/config"
	"github.com/markdave123-py/doctext/internal/core"
	"github.com/markdave123-py/doctext/internal/core/cache"
	db "github.com/markdave123-py/doctext/internal/core/database"
	"github.com/markdave123-py/doctext/internal/core/ingestion_engine"
	"github.com/markdave123-py/doctext/internal/core/messaging"
	objectclient "github.com/markdave123-py/doctext/internal/core/object-client"
	"github.com/markdave123-py/doctext/internal/services"
)

type App struct {
	cfg    *config.Config
	logger *zap.Logger

	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Broker       *messaging.Broker
	Consumer     *messaging.Consumer
	Publisher    *messaging.Publisher
	Guard        *cache.RedisGuard
	Pipeline     *ingestion_engine.DocumentPipeline
	Runner       *ingestion_engine.BatchRunner
	Server       *Server

	rescans chan struct{}
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{cfg: cfg, logger: logger, rescans: make(chan struct{}, 1)}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	logger.Info("database initialized and ready")

	if a.ObjectClient, err = objectclient.NewObjectClient(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, fmt.Errorf("object client: %w", err)
	}

	var guard core.InFlightGuard
	if cfg.RedisURL != "" {
		if a.Guard, err = cache.NewRedisGuard(appCtx, cfg.RedisURL, cfg.InFlightTTL); err != nil {
			a.Close()
			return nil, err
		}
		guard = a.Guard
		logger.Info("in-flight guard enabled", zap.Duration("ttl", cfg.InFlightTTL))
	}

	topo := messaging.Topology{
		Exchange:     cfg.ExchangeName,
		Queue:        cfg.QueueName,
		UploadedKey:  cfg.UploadedRoutingKey,
		ProcessedKey: cfg.ProcessedRoutingKey,
		Prefetch:     cfg.ConsumerPrefetch,
	}
	if a.Broker, err = messaging.Dial(appCtx, cfg.RabbitURL, logger); err != nil {
		a.Close()
		return nil, err
	}
	if a.Publisher, err = messaging.NewPublisher(a.Broker, topo); err != nil {
		a.Close()
		return nil, err
	}

	repo := services.NewDocumentRepository(dbClient)
	processing := services.NewProcessingService(repo, repo)
	extractor := ingestion_engine.NewDocconvExtractor(cfg.MinConfidence, cfg.MinWordCount, logger)

	a.Pipeline = ingestion_engine.NewDocumentPipeline(processing, a.ObjectClient, extractor, a.Publisher, guard,
		ingestion_engine.PipelineConfig{
			DownloadTimeout:   cfg.DownloadTimeout,
			ExtractionTimeout: cfg.ExtractionTimeout,
		}, logger)

	a.Runner = ingestion_engine.NewBatchRunner(a.Pipeline, repo, ingestion_engine.BatchConfig{
		ScanLimit:  cfg.BatchScanLimit,
		BatchSize:  cfg.BatchSize,
		DocDelay:   cfg.BatchDocDelay,
		BatchPause: cfg.BatchPause,
		StaleAfter: cfg.StaleProcessingAfter,
	}, logger)

	if a.Consumer, err = messaging.NewConsumer(a.Broker, topo, a.Pipeline, logger); err != nil {
		a.Close()
		return nil, err
	}

	docHandler := handlers.NewDocumentHandler(repo, processing, a, logger)
	a.Server = NewServer(cfg, docHandler, logger)

	return a, nil
}

// TriggerRescan queues a catch-up sweep. Requests arriving while one is
// already queued are folded into it.
func (a *App) TriggerRescan() {
	select {
	case a.rescans <- struct{}{}:
	default:
	}
}

// Run serves HTTP, consumes upload events and runs catch-up sweeps until
// ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.Server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.Consumer.Run(gctx)
	})

	if a.cfg.RetroactiveOnStartup {
		a.TriggerRescan()
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-a.rescans:
				a.sweep(gctx)
			}
		}
	})

	return g.Wait()
}

func (a *App) sweep(ctx context.Context) {
	if _, err := a.Runner.ReconcileStale(ctx); err != nil {
		a.logger.Error("stale reconciliation failed", zap.Error(err))
	}
	report, err := a.Runner.Run(ctx)
	if err != nil {
		a.logger.Error("retroactive sweep failed", zap.Error(err))
		return
	}
	a.logger.Info("retroactive sweep complete",
		zap.Int("found", report.Found), zap.Int("batches", report.Batches),
		zap.Int("processed", report.Processed), zap.Int("failed", report.Failed), zap.Int("skipped", report.Skipped))
}

func (a *App) Close() {
	if a.Consumer != nil {
		_ = a.Consumer.Close()
	}
	if a.Publisher != nil {
		_ = a.Publisher.Close()
	}
	if a.Broker != nil {
		_ = a.Broker.Close()
	}
	if a.Guard != nil {
		_ = a.Guard.Close()
	}
	if c, ok := a.ObjectClient.(io.Closer); ok {
		_ = c.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
