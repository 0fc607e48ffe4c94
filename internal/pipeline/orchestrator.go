// Package pipeline orchestrates one full traversal: snapshot the unprocessed
// records, then take each through gate, enrichment, and publication under its
// record lock. Every stage is idempotent, so a record that failed part-way is
// simply picked up again on the next run and resumes where it left off.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/darc-connector/internal/domain"
	"github.com/jonesrussell/darc-connector/internal/locks"
	"github.com/jonesrussell/darc-connector/internal/logger"
	"github.com/jonesrussell/darc-connector/internal/metrics"
)

// RecordSource is the store surface the orchestrator needs.
type RecordSource interface {
	FetchUnprocessed(ctx context.Context) ([]domain.Record, error)
	MarkProcessed(ctx context.Context, recordID int64) error
}

// AdmissionGate decides which records continue past classification.
type AdmissionGate interface {
	EnsureClassified(ctx context.Context, rec *domain.Record) error
	MeetsCriteria(ctx context.Context, recordID int64) (bool, error)
}

// RecordStage is one idempotent pipeline step over a record.
type RecordStage interface {
	Process(ctx context.Context, rec *domain.Record) error
}

// Orchestrator runs the record pipeline.
type Orchestrator struct {
	records     RecordSource
	gate        AdmissionGate
	enrichment  RecordStage
	publication RecordStage
	locks       *locks.Manager
	metrics     *metrics.Metrics
	logger      logger.Logger
	tracer      trace.Tracer
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(
	records RecordSource,
	gate AdmissionGate,
	enrichment RecordStage,
	publication RecordStage,
	lockManager *locks.Manager,
	m *metrics.Metrics,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		records:     records,
		gate:        gate,
		enrichment:  enrichment,
		publication: publication,
		locks:       lockManager,
		metrics:     m,
		logger:      log,
		tracer:      otel.Tracer("pipeline"),
	}
}

// Run executes one full traversal and returns its stats. Only a snapshot
// failure aborts the run; per-record errors are counted and the traversal
// continues with the next record.
func (o *Orchestrator) Run(ctx context.Context) (*domain.RunStats, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	stats := &domain.RunStats{StartedAt: time.Now()}

	records, fetchErr := o.snapshot(ctx)
	if fetchErr != nil {
		return nil, fetchErr
	}
	stats.Total = len(records)
	span.SetAttributes(attribute.Int("records.total", len(records)))

	o.logger.Info("pipeline run started", logger.Int("records", len(records)))

	for i := range records {
		if ctxErr := ctx.Err(); ctxErr != nil {
			stats.FinishedAt = time.Now()
			return stats, ctxErr
		}

		rec := &records[i]
		if runErr := o.processRecord(ctx, rec); runErr != nil {
			stats.Errors++
			o.metrics.RecordsFailed.Inc()
			o.logger.Error("record processing failed",
				logger.Int64("record_id", rec.ID), logger.Error(runErr))
			continue
		}
		stats.Success++
	}

	stats.FinishedAt = time.Now()
	o.metrics.RunsTotal.Inc()
	o.metrics.RunDuration.Observe(stats.FinishedAt.Sub(stats.StartedAt).Seconds())

	o.logger.Info("pipeline run finished",
		logger.Int("success", stats.Success),
		logger.Int("errors", stats.Errors),
		logger.Int("total", stats.Total))
	return stats, nil
}

// snapshot reads the unprocessed-record list under the global lock. The lock
// covers only the read, so concurrent runs agree on a stable starting set
// without serializing the per-record work.
func (o *Orchestrator) snapshot(ctx context.Context) ([]domain.Record, error) {
	globalLock := o.locks.Global()
	globalLock.Lock()
	defer globalLock.Unlock()

	records, err := o.records.FetchUnprocessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot unprocessed records: %w", err)
	}
	return records, nil
}

// processRecord takes one record through every stage under its record lock.
// A rejected record is marked processed; a stage error leaves the record
// unprocessed for the next run. A panic in a stage is converted to an error
// so it cannot abort the traversal.
func (o *Orchestrator) processRecord(ctx context.Context, rec *domain.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("record %d panicked: %v", rec.ID, r)
		}
	}()

	lock := o.locks.Record(rec.ID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := o.tracer.Start(ctx, "pipeline.record",
		trace.WithAttributes(attribute.Int64("record.id", rec.ID)))
	defer span.End()

	if gateErr := o.gate.EnsureClassified(ctx, rec); gateErr != nil {
		o.metrics.StageFailures.WithLabelValues(metrics.StageGate).Inc()
		return gateErr
	}

	admitted, criteriaErr := o.gate.MeetsCriteria(ctx, rec.ID)
	if criteriaErr != nil {
		o.metrics.StageFailures.WithLabelValues(metrics.StageGate).Inc()
		return criteriaErr
	}

	if !admitted {
		o.logger.Info("record rejected by gate", logger.Int64("record_id", rec.ID))
		if markErr := o.records.MarkProcessed(ctx, rec.ID); markErr != nil {
			return markErr
		}
		o.metrics.RecordsRejected.Inc()
		return nil
	}

	if enrichErr := o.enrichment.Process(ctx, rec); enrichErr != nil {
		o.metrics.StageFailures.WithLabelValues(metrics.StageEnrichment).Inc()
		return enrichErr
	}

	if publishErr := o.publication.Process(ctx, rec); publishErr != nil {
		o.metrics.StageFailures.WithLabelValues(metrics.StagePublication).Inc()
		return publishErr
	}

	if markErr := o.records.MarkProcessed(ctx, rec.ID); markErr != nil {
		return markErr
	}
	o.metrics.RecordsProcessed.Inc()
	return nil
}
