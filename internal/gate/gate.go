// Package gate implements the classification gate: it ensures every
// configured model version has scored a record and decides admission to
// enrichment. Admission is fail-closed: a missing or low-confidence verdict
// rejects the record.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/darc-connector/internal/classifier"
	"github.com/jonesrussell/darc-connector/internal/domain"
	"github.com/jonesrussell/darc-connector/internal/logger"
)

// VerdictStore is the persistence surface the gate needs.
type VerdictStore interface {
	SaveVerdict(ctx context.Context, v *domain.Verdict) error
	GetVerdict(ctx context.Context, recordID int64, modelVersion string) (*domain.Verdict, error)
}

// Gate scores records against every configured classifier and applies the
// admission rule.
type Gate struct {
	classifiers []classifier.Classifier
	verdicts    VerdictStore
	extractor   *classifier.Extractor
	threshold   float64
	logger      logger.Logger
}

// NewGate creates a gate over the given classifiers.
func NewGate(
	classifiers []classifier.Classifier,
	verdicts VerdictStore,
	extractor *classifier.Extractor,
	threshold float64,
	log logger.Logger,
) *Gate {
	return &Gate{
		classifiers: classifiers,
		verdicts:    verdicts,
		extractor:   extractor,
		threshold:   threshold,
		logger:      log,
	}
}

// EnsureClassified scores the record with every model version that has no
// stored verdict yet. Versions that already scored the record are skipped, so
// a re-run after a partial failure only fills in the gaps.
//
// A failing version does not stop the others; the combined error is returned
// so the caller can retry the record on a later run instead of rejecting it
// permanently.
func (g *Gate) EnsureClassified(ctx context.Context, rec *domain.Record) error {
	var features classifier.Features
	extracted := false

	var errs []error
	for _, c := range g.classifiers {
		version := c.Version()

		_, getErr := g.verdicts.GetVerdict(ctx, rec.ID, version)
		if getErr == nil {
			g.logger.Debug("verdict already stored, skipping",
				logger.Int64("record_id", rec.ID),
				logger.String("model_version", version))
			continue
		}
		if !errors.Is(getErr, domain.ErrNotFound) {
			errs = append(errs, fmt.Errorf("lookup verdict %s: %w", version, getErr))
			continue
		}

		if !extracted {
			features = g.extractor.Extract(rec.Content)
			extracted = true
		}

		verdict, classifyErr := c.Classify(ctx, rec.Content, classifier.EncodeFeatures(version, features))
		if classifyErr != nil {
			g.logger.Warn("classification failed",
				logger.Int64("record_id", rec.ID),
				logger.String("model_version", version),
				logger.Error(classifyErr))
			errs = append(errs, fmt.Errorf("classify %s: %w", version, classifyErr))
			continue
		}
		verdict.RecordID = rec.ID

		if saveErr := g.verdicts.SaveVerdict(ctx, verdict); saveErr != nil {
			errs = append(errs, fmt.Errorf("save verdict %s: %w", version, saveErr))
			continue
		}

		g.logger.Info("record classified",
			logger.Int64("record_id", rec.ID),
			logger.String("model_version", version),
			logger.String("category", string(verdict.Category)),
			logger.Float64("confidence", verdict.Confidence))
	}

	return errors.Join(errs...)
}

// MeetsCriteria reports whether the record is admitted to enrichment: every
// configured model version must have a positive verdict with confidence
// strictly above the threshold. Any missing verdict rejects.
func (g *Gate) MeetsCriteria(ctx context.Context, recordID int64) (bool, error) {
	for _, c := range g.classifiers {
		version := c.Version()

		verdict, getErr := g.verdicts.GetVerdict(ctx, recordID, version)
		if errors.Is(getErr, domain.ErrNotFound) {
			g.logger.Debug("no verdict for model version, rejecting",
				logger.Int64("record_id", recordID),
				logger.String("model_version", version))
			return false, nil
		}
		if getErr != nil {
			return false, fmt.Errorf("lookup verdict %s/%d: %w", version, recordID, getErr)
		}

		if !verdict.Category.IsPositive() {
			return false, nil
		}
		if verdict.Confidence <= g.threshold {
			g.logger.Debug("verdict below confidence threshold",
				logger.Int64("record_id", recordID),
				logger.String("model_version", version),
				logger.Float64("confidence", verdict.Confidence))
			return false, nil
		}
	}

	return true, nil
}
