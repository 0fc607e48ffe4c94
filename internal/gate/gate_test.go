package gate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/darc-connector/internal/classifier"
	"github.com/jonesrussell/darc-connector/internal/domain"
	"github.com/jonesrussell/darc-connector/internal/logger"
)

type mockVerdictStore struct {
	saveFunc func(ctx context.Context, v *domain.Verdict) error
	getFunc  func(ctx context.Context, recordID int64, modelVersion string) (*domain.Verdict, error)
}

func (m *mockVerdictStore) SaveVerdict(ctx context.Context, v *domain.Verdict) error {
	return m.saveFunc(ctx, v)
}

func (m *mockVerdictStore) GetVerdict(
	ctx context.Context,
	recordID int64,
	modelVersion string,
) (*domain.Verdict, error) {
	return m.getFunc(ctx, recordID, modelVersion)
}

type fakeClassifier struct {
	version      string
	classifyFunc func(ctx context.Context, content string, features map[string]float64) (*domain.Verdict, error)
}

func (f *fakeClassifier) Version() string { return f.version }

func (f *fakeClassifier) Classify(
	ctx context.Context,
	content string,
	features map[string]float64,
) (*domain.Verdict, error) {
	return f.classifyFunc(ctx, content, features)
}

func (f *fakeClassifier) Health(_ context.Context) error { return nil }

// verdictMap backs a store with in-memory verdicts keyed by model version.
func storeWith(verdicts map[string]*domain.Verdict) *mockVerdictStore {
	return &mockVerdictStore{
		saveFunc: func(_ context.Context, v *domain.Verdict) error {
			verdicts[v.ModelVersion] = v
			return nil
		},
		getFunc: func(_ context.Context, _ int64, version string) (*domain.Verdict, error) {
			v, ok := verdicts[version]
			if !ok {
				return nil, domain.ErrNotFound
			}
			return v, nil
		},
	}
}

func positiveVerdict(version string, confidence float64) *domain.Verdict {
	return &domain.Verdict{
		RecordID:     1,
		ModelVersion: version,
		Category:     domain.CategoryExploit,
		Confidence:   confidence,
	}
}

func TestGate_EnsureClassified_ScoresMissingVersionsOnly(t *testing.T) {
	verdicts := map[string]*domain.Verdict{
		"v2": positiveVerdict("v2", 0.95),
	}
	store := storeWith(verdicts)

	v2Called := false
	classifiers := []classifier.Classifier{
		&fakeClassifier{version: "v2", classifyFunc: func(
			_ context.Context, _ string, _ map[string]float64,
		) (*domain.Verdict, error) {
			v2Called = true
			return positiveVerdict("v2", 0.99), nil
		}},
		&fakeClassifier{version: "v3_2", classifyFunc: func(
			_ context.Context, _ string, _ map[string]float64,
		) (*domain.Verdict, error) {
			return &domain.Verdict{ModelVersion: "v3_2", Category: domain.CategoryExploit, Confidence: 0.92}, nil
		}},
	}

	g := NewGate(classifiers, store, classifier.NewExtractor(nil), 0.9, logger.NewNop())

	rec := &domain.Record{ID: 1, Content: "some content"}
	require.NoError(t, g.EnsureClassified(context.Background(), rec))

	assert.False(t, v2Called, "v2 already has a verdict and must not be re-scored")
	require.Contains(t, verdicts, "v3_2")
	assert.Equal(t, int64(1), verdicts["v3_2"].RecordID, "record id filled in before save")
}

func TestGate_EnsureClassified_FailureIsolation(t *testing.T) {
	verdicts := map[string]*domain.Verdict{}
	store := storeWith(verdicts)

	classifiers := []classifier.Classifier{
		&fakeClassifier{version: "v2", classifyFunc: func(
			_ context.Context, _ string, _ map[string]float64,
		) (*domain.Verdict, error) {
			return nil, fmt.Errorf("model backend down")
		}},
		&fakeClassifier{version: "v3_2", classifyFunc: func(
			_ context.Context, _ string, _ map[string]float64,
		) (*domain.Verdict, error) {
			return positiveVerdict("v3_2", 0.93), nil
		}},
	}

	g := NewGate(classifiers, store, classifier.NewExtractor(nil), 0.9, logger.NewNop())

	err := g.EnsureClassified(context.Background(), &domain.Record{ID: 1, Content: "x"})
	require.Error(t, err, "the failed version surfaces so the record is retried, not rejected")

	assert.Contains(t, verdicts, "v3_2", "healthy versions still score despite a peer failure")
	assert.NotContains(t, verdicts, "v2")
}

func TestGate_MeetsCriteria(t *testing.T) {
	tests := []struct {
		name     string
		verdicts map[string]*domain.Verdict
		admitted bool
	}{
		{
			name: "all positive above threshold",
			verdicts: map[string]*domain.Verdict{
				"v2":   positiveVerdict("v2", 0.95),
				"v3_2": positiveVerdict("v3_2", 0.92),
			},
			admitted: true,
		},
		{
			name: "missing verdict rejects",
			verdicts: map[string]*domain.Verdict{
				"v2": positiveVerdict("v2", 0.95),
			},
			admitted: false,
		},
		{
			name: "negative category rejects",
			verdicts: map[string]*domain.Verdict{
				"v2": positiveVerdict("v2", 0.95),
				"v3_2": {
					ModelVersion: "v3_2",
					Category:     domain.CategoryNonExploit,
					Confidence:   0.99,
				},
			},
			admitted: false,
		},
		{
			name: "confidence equal to threshold rejects",
			verdicts: map[string]*domain.Verdict{
				"v2":   positiveVerdict("v2", 0.9),
				"v3_2": positiveVerdict("v3_2", 0.95),
			},
			admitted: false,
		},
	}

	classifiers := []classifier.Classifier{
		&fakeClassifier{version: "v2"},
		&fakeClassifier{version: "v3_2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(classifiers, storeWith(tt.verdicts), classifier.NewExtractor(nil), 0.9, logger.NewNop())

			admitted, err := g.MeetsCriteria(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.admitted, admitted)
		})
	}
}

func TestGate_MeetsCriteria_StoreErrorPropagates(t *testing.T) {
	storeErr := errors.New("connection refused")
	store := &mockVerdictStore{
		getFunc: func(_ context.Context, _ int64, _ string) (*domain.Verdict, error) {
			return nil, storeErr
		},
	}

	g := NewGate(
		[]classifier.Classifier{&fakeClassifier{version: "v2"}},
		store, classifier.NewExtractor(nil), 0.9, logger.NewNop())

	admitted, err := g.MeetsCriteria(context.Background(), 1)
	require.ErrorIs(t, err, storeErr)
	assert.False(t, admitted)
}
