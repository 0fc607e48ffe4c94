// Package bootstrap assembles the connector: configuration, logging, storage,
// the pipeline stages, the scheduler, and the HTTP server. Everything is
// constructed here and passed down explicitly.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/darc-connector/internal/api"
	"github.com/jonesrussell/darc-connector/internal/classifier"
	"github.com/jonesrussell/darc-connector/internal/config"
	"github.com/jonesrussell/darc-connector/internal/database"
	"github.com/jonesrussell/darc-connector/internal/dedup"
	"github.com/jonesrussell/darc-connector/internal/enrichment"
	"github.com/jonesrussell/darc-connector/internal/gate"
	"github.com/jonesrussell/darc-connector/internal/locks"
	"github.com/jonesrussell/darc-connector/internal/logger"
	"github.com/jonesrussell/darc-connector/internal/metrics"
	"github.com/jonesrussell/darc-connector/internal/opencti"
	"github.com/jonesrussell/darc-connector/internal/pipeline"
	"github.com/jonesrussell/darc-connector/internal/publication"
	"github.com/jonesrussell/darc-connector/internal/worker"
)

const startupCheckTimeout = 10 * time.Second

// App is the assembled connector.
type App struct {
	Config       *config.Config
	Logger       logger.Logger
	DB           *sqlx.DB
	Orchestrator *pipeline.Orchestrator
	Scheduler    *worker.Scheduler
	Server       *api.Server

	tracker *dedup.Tracker
}

// New builds the application. Startup is fail-fast: an unreachable database,
// knowledge base, or classifier aborts with an error.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	db, dbErr := database.Connect(&cfg.Database)
	if dbErr != nil {
		return nil, fmt.Errorf("connect database: %w", dbErr)
	}

	records := database.NewRecordRepository(db)
	verdicts := database.NewVerdictRepository(db)

	classifiers, classifierErr := buildClassifiers(ctx, cfg, log)
	if classifierErr != nil {
		closeDB(db, log)
		return nil, classifierErr
	}

	kb := opencti.NewClient(&cfg.OpenCTI, log)
	checkCtx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()
	if kbErr := kb.Health(checkCtx); kbErr != nil {
		closeDB(db, log)
		return nil, fmt.Errorf("knowledge base unreachable: %w", kbErr)
	}

	var tracker *dedup.Tracker
	var cache publication.PublishedCache
	if cfg.Redis.Enabled {
		tracker = dedup.NewTracker(&cfg.Redis, log)
		if pingErr := tracker.Ping(checkCtx); pingErr != nil {
			log.Warn("dedup cache unreachable, continuing without it", logger.Error(pingErr))
		}
		cache = tracker
	}

	extractor := classifier.NewExtractor(cfg.Gate.Keywords)
	admissionGate := gate.NewGate(
		classifiers, verdicts, extractor, cfg.Gate.ConfidenceThreshold, log)

	converter := enrichment.NewTxt2StixConverter(&cfg.Enrichment, log)
	enrichStage := enrichment.NewStage(records, converter, &cfg.Enrichment, log)
	publishStage := publication.NewStage(records, kb, cache, log)

	m := metrics.New()
	orchestrator := pipeline.NewOrchestrator(
		records, admissionGate, enrichStage, publishStage,
		locks.NewManager(), m, log)

	interval, intervalErr := cfg.Scheduler.IntervalDuration()
	if intervalErr != nil {
		closeDB(db, log)
		return nil, fmt.Errorf("scheduler interval: %w", intervalErr)
	}
	scheduler := worker.NewScheduler(orchestrator, interval, log)

	handler := api.NewHandler(
		cfg.Service.Name, cfg.Service.Version, records, classifiers, scheduler, log)
	server := api.NewServer(cfg.Service.Port, cfg.Service.Debug, handler, m, log)

	return &App{
		Config:       cfg,
		Logger:       log,
		DB:           db,
		Orchestrator: orchestrator,
		Scheduler:    scheduler,
		Server:       server,
		tracker:      tracker,
	}, nil
}

// buildClassifiers creates one scoring client per configured model version
// and verifies each is healthy.
func buildClassifiers(ctx context.Context, cfg *config.Config, log logger.Logger) ([]classifier.Classifier, error) {
	checkCtx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	classifiers := make([]classifier.Classifier, 0, len(cfg.Gate.Classifiers))
	for _, cc := range cfg.Gate.Classifiers {
		client := classifier.NewMLClient(cc.Version, cc.Endpoint)
		if healthErr := client.Health(checkCtx); healthErr != nil {
			return nil, fmt.Errorf("classifier %s unhealthy: %w", cc.Version, healthErr)
		}
		log.Info("classifier ready", logger.String("model_version", cc.Version))
		classifiers = append(classifiers, client)
	}
	return classifiers, nil
}

// Start launches the scheduler and HTTP server.
func (a *App) Start(ctx context.Context) {
	a.Server.Start()
	a.Scheduler.Start(ctx)
}

// Shutdown stops the scheduler, drains the HTTP server, and closes
// connections.
func (a *App) Shutdown(ctx context.Context) {
	a.Scheduler.Stop()

	if shutdownErr := a.Server.Shutdown(ctx); shutdownErr != nil {
		a.Logger.Error("http server shutdown failed", logger.Error(shutdownErr))
	}

	if a.tracker != nil {
		if closeErr := a.tracker.Close(); closeErr != nil {
			a.Logger.Warn("dedup cache close failed", logger.Error(closeErr))
		}
	}

	closeDB(a.DB, a.Logger)
	a.Logger.Info("connector stopped")
}

func closeDB(db *sqlx.DB, log logger.Logger) {
	if closeErr := db.Close(); closeErr != nil {
		log.Error("database close failed", logger.Error(closeErr))
	}
}
