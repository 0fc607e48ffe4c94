package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/darc-connector/internal/domain"
)

// recordColumns is the column list for record selects (single source for
// schema changes).
const recordColumns = `id, url, matched_keywords, content, timestamp,
		processed, sent_to_enrichment, sent_to_opencti`

// RecordRepository handles database operations for harvested records.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository creates a record repository on the given connection.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Ping checks database connectivity.
func (r *RecordRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// FetchUnprocessed returns all records with processed = false, ordered by id
// so a single snapshot is deterministic.
func (r *RecordRepository) FetchUnprocessed(ctx context.Context) ([]domain.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM matched_content
		WHERE processed = FALSE
		ORDER BY id
	`

	var records []domain.Record
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("fetch unprocessed: %w", err)
	}

	return records, nil
}

// MarkProcessed sets the terminal processed flag for a record.
func (r *RecordRepository) MarkProcessed(ctx context.Context, recordID int64) error {
	query := `UPDATE matched_content SET processed = TRUE WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, recordID); err != nil {
		return fmt.Errorf("mark processed %d: %w", recordID, err)
	}
	return nil
}

// AttachEnrichment stores the enrichment bundle and its extraction metadata
// and raises sent_to_enrichment in one statement, so a crash can never leave
// the flag set without a stored bundle or the reverse. Calling it again
// overwrites to the latest payloads.
func (r *RecordRepository) AttachEnrichment(
	ctx context.Context,
	recordID int64,
	bundle json.RawMessage,
	metadata json.RawMessage,
) error {
	query := `
		UPDATE matched_content
		SET sent_to_enrichment = TRUE,
		    stix_bundle = $2::jsonb,
		    stix_data = $3::jsonb
		WHERE id = $1
	`
	if err := r.execExpectOneRow(ctx, query, recordID, []byte(bundle), []byte(metadata)); err != nil {
		return fmt.Errorf("attach enrichment %d: %w", recordID, err)
	}
	return nil
}

// GetBundle returns the stored enrichment bundle for a record, or
// domain.ErrNotFound when no bundle has been attached.
func (r *RecordRepository) GetBundle(ctx context.Context, recordID int64) (json.RawMessage, error) {
	query := `SELECT stix_bundle FROM matched_content WHERE id = $1`

	var raw []byte
	err := r.db.QueryRowxContext(ctx, query, recordID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle %d: %w", recordID, err)
	}
	if len(raw) == 0 {
		return nil, domain.ErrNotFound
	}

	return json.RawMessage(raw), nil
}

// MarkPublished sets the sent_to_opencti flag for a record.
func (r *RecordRepository) MarkPublished(ctx context.Context, recordID int64) error {
	query := `UPDATE matched_content SET sent_to_opencti = TRUE WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, recordID); err != nil {
		return fmt.Errorf("mark published %d: %w", recordID, err)
	}
	return nil
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row
// was affected.
func (r *RecordRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
