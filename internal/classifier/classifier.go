// Package classifier provides the scoring interface for classification model
// versions and the feature encoding each version expects.
package classifier

import (
	"context"

	"github.com/jonesrussell/darc-connector/internal/domain"
)

// Classifier scores record content for one model version. Implementations
// are opaque to the pipeline; only the verdict contract matters.
type Classifier interface {
	// Version identifies the model; verdicts are keyed by it.
	Version() string
	// Classify scores content with the given feature bag and returns a
	// verdict. The record id is filled in by the caller.
	Classify(ctx context.Context, content string, features map[string]float64) (*domain.Verdict, error)
	// Health reports whether the model backend is usable. Checked at
	// startup; an unhealthy configured classifier is fatal.
	Health(ctx context.Context) error
}
