package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/darc-connector/internal/domain"
)

// VerdictRepository handles the append-only classification verdict table.
type VerdictRepository struct {
	db *sqlx.DB
}

// NewVerdictRepository creates a verdict repository on the given connection.
func NewVerdictRepository(db *sqlx.DB) *VerdictRepository {
	return &VerdictRepository{db: db}
}

// SaveVerdict appends a verdict. Verdicts are never updated in place; a
// re-scored record gets a new row and the latest one wins.
func (r *VerdictRepository) SaveVerdict(ctx context.Context, v *domain.Verdict) error {
	query := `
		INSERT INTO classification_verdicts
			(record_id, model_version, category, confidence, raw_result, timestamp)
		VALUES ($1, $2, $3, $4, $5::jsonb, NOW())
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		v.RecordID,
		v.ModelVersion,
		string(v.Category),
		v.Confidence,
		[]byte(v.RawResult),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("save verdict %s/%d: %w", v.ModelVersion, v.RecordID, err)
	}

	v.ID = id
	return nil
}

// GetVerdict returns the most recent verdict for (record, model version),
// ties broken by insertion order, or domain.ErrNotFound.
func (r *VerdictRepository) GetVerdict(
	ctx context.Context,
	recordID int64,
	modelVersion string,
) (*domain.Verdict, error) {
	query := `
		SELECT id, record_id, model_version, category, confidence, raw_result, timestamp
		FROM classification_verdicts
		WHERE record_id = $1 AND model_version = $2
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	var v domain.Verdict
	err := r.db.GetContext(ctx, &v, query, recordID, modelVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verdict %s/%d: %w", modelVersion, recordID, err)
	}

	return &v, nil
}
