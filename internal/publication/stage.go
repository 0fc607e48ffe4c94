// Package publication submits enriched bundles to the knowledge base. The
// stage is idempotent: records whose publication flag is set are skipped, and
// records whose report already exists in the knowledge base are marked
// published without resubmission.
package publication

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonesrussell/darc-connector/internal/domain"
	"github.com/jonesrussell/darc-connector/internal/logger"
)

// ReportEntityType is the knowledge-base type enrichment reports are filed
// under.
const ReportEntityType = "Report"

// RecordStore is the persistence surface the publication stage needs.
type RecordStore interface {
	GetBundle(ctx context.Context, recordID int64) (json.RawMessage, error)
	MarkPublished(ctx context.Context, recordID int64) error
}

// KnowledgeBase is the client surface for entity lookup and bundle submission.
type KnowledgeBase interface {
	EntityExists(ctx context.Context, name, entityType string) (bool, error)
	InitiateWork(ctx context.Context, friendlyName string) (string, error)
	SendBundle(ctx context.Context, workID string, bundle json.RawMessage) error
	FinalizeWork(ctx context.Context, workID, message string) error
}

// PublishedCache is the advisory dedup cache. Implementations must degrade
// failures to a miss.
type PublishedCache interface {
	HasPublished(ctx context.Context, reportName string) bool
	MarkPublished(ctx context.Context, reportName string)
}

// Stage publishes enriched records.
type Stage struct {
	records RecordStore
	kb      KnowledgeBase
	cache   PublishedCache
	logger  logger.Logger

	now func() time.Time
}

// NewStage creates the publication stage. cache may be nil when the dedup
// cache is disabled.
func NewStage(records RecordStore, kb KnowledgeBase, cache PublishedCache, log logger.Logger) *Stage {
	return &Stage{
		records: records,
		kb:      kb,
		cache:   cache,
		logger:  log,
		now:     time.Now,
	}
}

// Process publishes one record's bundle. Returns nil without side effects
// when the record was already published. A malformed stored bundle is a hard
// failure and leaves the publication flag unset.
func (s *Stage) Process(ctx context.Context, rec *domain.Record) error {
	if rec.SentToOpenCTI {
		s.logger.Debug("record already published, skipping",
			logger.Int64("record_id", rec.ID))
		return nil
	}

	reportName := rec.ReportName()

	if exists, checkErr := s.alreadyKnown(ctx, reportName); checkErr != nil {
		return checkErr
	} else if exists {
		s.logger.Info("report already in knowledge base, marking published",
			logger.Int64("record_id", rec.ID))
		return s.finish(ctx, rec, reportName)
	}

	raw, getErr := s.records.GetBundle(ctx, rec.ID)
	if getErr != nil {
		return fmt.Errorf("load bundle for record %d: %w", rec.ID, getErr)
	}

	if validateErr := validateBundle(raw); validateErr != nil {
		return fmt.Errorf("record %d: %w", rec.ID, validateErr)
	}

	if submitErr := s.submit(ctx, rec.ID, raw); submitErr != nil {
		return submitErr
	}

	return s.finish(ctx, rec, reportName)
}

// alreadyKnown consults the dedup cache first, then the knowledge base.
func (s *Stage) alreadyKnown(ctx context.Context, reportName string) (bool, error) {
	if s.cache != nil && s.cache.HasPublished(ctx, reportName) {
		return true, nil
	}

	exists, err := s.kb.EntityExists(ctx, reportName, ReportEntityType)
	if err != nil {
		return false, fmt.Errorf("entity lookup %q: %w", reportName, err)
	}
	return exists, nil
}

// submit runs the work protocol: initiate, push, finalize.
func (s *Stage) submit(ctx context.Context, recordID int64, bundle json.RawMessage) error {
	stamp := s.now().UTC().Format("2006-01-02 15:04:05")

	workID, initErr := s.kb.InitiateWork(ctx, "DarcConnector run @ "+stamp)
	if initErr != nil {
		return fmt.Errorf("initiate work for record %d: %w", recordID, initErr)
	}

	if sendErr := s.kb.SendBundle(ctx, workID, bundle); sendErr != nil {
		return fmt.Errorf("send bundle for record %d: %w", recordID, sendErr)
	}

	message := fmt.Sprintf("Processed record %d at %s", recordID, stamp)
	if finErr := s.kb.FinalizeWork(ctx, workID, message); finErr != nil {
		return fmt.Errorf("finalize work for record %d: %w", recordID, finErr)
	}
	return nil
}

// finish raises the publication flag and seeds the dedup cache.
func (s *Stage) finish(ctx context.Context, rec *domain.Record, reportName string) error {
	if markErr := s.records.MarkPublished(ctx, rec.ID); markErr != nil {
		return markErr
	}
	rec.SentToOpenCTI = true

	if s.cache != nil {
		s.cache.MarkPublished(ctx, reportName)
	}

	s.logger.Info("record published", logger.Int64("record_id", rec.ID))
	return nil
}

// validateBundle checks the stored payload is a well-formed container.
func validateBundle(raw json.RawMessage) error {
	var bundle domain.Bundle
	if unmarshalErr := json.Unmarshal(raw, &bundle); unmarshalErr != nil {
		return fmt.Errorf("%w: %w", domain.ErrMalformedBundle, unmarshalErr)
	}
	if !bundle.IsWellFormed() {
		return domain.ErrMalformedBundle
	}
	return nil
}
