// Package enrichment runs admitted records through the external converter and
// attaches the resulting bundle to the record. The stage is idempotent: a
// record whose enrichment flag is already set is skipped untouched.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/darc-connector/internal/config"
	"github.com/jonesrussell/darc-connector/internal/domain"
	"github.com/jonesrussell/darc-connector/internal/logger"
)

// RecordStore is the persistence surface the enrichment stage needs.
type RecordStore interface {
	AttachEnrichment(ctx context.Context, recordID int64, bundle, metadata json.RawMessage) error
}

// Stage converts admitted records and stores their artifacts.
type Stage struct {
	records   RecordStore
	converter Converter
	cfg       *config.EnrichmentConfig
	logger    logger.Logger

	// Injection points for tests.
	sleep       func(time.Duration)
	newReportID func() string
}

// NewStage creates the enrichment stage.
func NewStage(
	records RecordStore,
	converter Converter,
	cfg *config.EnrichmentConfig,
	log logger.Logger,
) *Stage {
	return &Stage{
		records:     records,
		converter:   converter,
		cfg:         cfg,
		logger:      log,
		sleep:       time.Sleep,
		newReportID: uuid.NewString,
	}
}

// Process enriches one record. On success the bundle and metadata are stored
// and the record's enrichment flag is set in the same update. Returns nil
// without side effects when the record was already enriched.
func (s *Stage) Process(ctx context.Context, rec *domain.Record) error {
	if rec.SentToEnrichment {
		s.logger.Debug("record already enriched, skipping",
			logger.Int64("record_id", rec.ID))
		return nil
	}

	reportID := s.newReportID()

	inputPath, writeErr := s.writeInput(rec.Content)
	if writeErr != nil {
		return fmt.Errorf("write converter input: %w", writeErr)
	}
	defer func() {
		if rmErr := os.Remove(inputPath); rmErr != nil {
			s.logger.Warn("input cleanup failed", logger.Error(rmErr))
		}
	}()

	if convErr := s.converter.Convert(ctx, inputPath, rec.ReportName(), reportID); convErr != nil {
		return convErr
	}

	bundlePath := filepath.Join(s.cfg.OutputDir, "bundle--"+reportID+".json")
	dataPath := filepath.Join(s.cfg.OutputDir, "data--"+reportID+".json")

	if !s.awaitArtifacts(bundlePath, dataPath) {
		return fmt.Errorf("%w: record %d: %s (exists=%t), %s (exists=%t)",
			domain.ErrArtifactsMissing, rec.ID,
			bundlePath, fileExists(bundlePath),
			dataPath, fileExists(dataPath))
	}
	defer s.removeArtifacts(bundlePath, dataPath)

	bundleJSON, metadataJSON, readErr := s.readArtifacts(bundlePath, dataPath)
	if readErr != nil {
		return readErr
	}

	if attachErr := s.records.AttachEnrichment(ctx, rec.ID, bundleJSON, metadataJSON); attachErr != nil {
		return attachErr
	}
	rec.SentToEnrichment = true

	s.logger.Info("record enriched",
		logger.Int64("record_id", rec.ID),
		logger.String("report_id", reportID))
	return nil
}

func (s *Stage) writeInput(content string) (string, error) {
	f, createErr := os.CreateTemp("", "record-*.txt")
	if createErr != nil {
		return "", createErr
	}

	if _, writeErr := f.WriteString(content); writeErr != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", writeErr
	}
	if closeErr := f.Close(); closeErr != nil {
		_ = os.Remove(f.Name())
		return "", closeErr
	}
	return f.Name(), nil
}

// awaitArtifacts polls for both output files with exponential backoff. The
// converter process can exit before its artifacts are flushed, so absence
// right after Convert returns is not yet a failure.
func (s *Stage) awaitArtifacts(paths ...string) bool {
	for attempt := 0; attempt < s.cfg.PollAttempts; attempt++ {
		if allExist(paths) {
			return true
		}
		s.sleep(s.cfg.PollBaseDelay << attempt)
	}
	return allExist(paths)
}

func allExist(paths []string) bool {
	for _, p := range paths {
		if !fileExists(p) {
			return false
		}
	}
	return true
}

func fileExists(path string) bool {
	_, statErr := os.Stat(path)
	return statErr == nil
}

// readArtifacts loads both artifacts and normalizes the bundle's
// relationships before storage.
func (s *Stage) readArtifacts(bundlePath, dataPath string) (bundle, metadata json.RawMessage, err error) {
	rawBundle, bundleErr := os.ReadFile(bundlePath)
	if bundleErr != nil {
		return nil, nil, fmt.Errorf("read bundle artifact: %w", bundleErr)
	}
	rawData, dataErr := os.ReadFile(dataPath)
	if dataErr != nil {
		return nil, nil, fmt.Errorf("read data artifact: %w", dataErr)
	}

	normalized, normErr := normalizeRelationships(rawBundle)
	if normErr != nil {
		return nil, nil, fmt.Errorf("normalize bundle: %w", normErr)
	}

	if !json.Valid(rawData) {
		return nil, nil, fmt.Errorf("data artifact %s is not valid JSON", dataPath)
	}
	return normalized, rawData, nil
}

// normalizeRelationships rewrites every relationship_type in the bundle's
// objects to "related-to". The knowledge base only accepts relationship types
// from its own vocabulary; the converter's free-form types are collapsed to
// the generic one.
func normalizeRelationships(rawBundle []byte) (json.RawMessage, error) {
	var doc map[string]any
	if unmarshalErr := json.Unmarshal(rawBundle, &doc); unmarshalErr != nil {
		return nil, unmarshalErr
	}

	objects, _ := doc["objects"].([]any)
	for _, o := range objects {
		obj, ok := o.(map[string]any)
		if !ok {
			continue
		}
		if _, has := obj["relationship_type"]; has {
			obj["relationship_type"] = "related-to"
		}
	}

	return json.Marshal(doc)
}

func (s *Stage) removeArtifacts(paths ...string) {
	for _, p := range paths {
		if rmErr := os.Remove(p); rmErr != nil {
			s.logger.Warn("artifact cleanup failed",
				logger.String("path", p), logger.Error(rmErr))
		}
	}
}
