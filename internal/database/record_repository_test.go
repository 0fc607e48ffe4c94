package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/darc-connector/internal/database"
	"github.com/jonesrussell/darc-connector/internal/domain"
)

func newMockRepo(t *testing.T) (*database.RecordRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	t.Cleanup(func() { _ = db.Close() })

	return database.NewRecordRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestRecordRepository_FetchUnprocessed(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "url", "matched_keywords", "content", "timestamp",
		"processed", "sent_to_enrichment", "sent_to_opencti",
	}).
		AddRow(int64(1), "http://a.onion/x", "exploit", "<html>a</html>", now, false, false, false).
		AddRow(int64(2), "http://b.onion/y", "zero-day", "<html>b</html>", now, false, true, false)

	mock.ExpectQuery("SELECT (.+) FROM matched_content").WillReturnRows(rows)

	records, err := repo.FetchUnprocessed(ctx)
	if err != nil {
		t.Fatalf("FetchUnprocessed() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != 1 || records[1].ID != 2 {
		t.Errorf("records out of order: %d, %d", records[0].ID, records[1].ID)
	}
	if !records[1].SentToEnrichment {
		t.Error("records[1].SentToEnrichment = false, want true")
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestRecordRepository_MarkProcessed(t *testing.T) {
	testCases := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   bool
	}{
		{
			name: "marks record processed",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE matched_content SET processed").
					WithArgs(int64(7)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantErr: false,
		},
		{
			name: "unknown record returns error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE matched_content SET processed").
					WithArgs(int64(7)).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: true,
		},
		{
			name: "database error returns error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE matched_content SET processed").
					WithArgs(int64(7)).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			tc.setupMock(mock)

			callErr := repo.MarkProcessed(context.Background(), 7)
			if (callErr != nil) != tc.wantErr {
				t.Errorf("MarkProcessed() error = %v, wantErr %v", callErr, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestRecordRepository_AttachEnrichment(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	bundle := []byte(`{"type":"bundle","objects":[]}`)
	metadata := []byte(`{"extractions":{}}`)

	mock.ExpectExec("UPDATE matched_content").
		WithArgs(int64(3), bundle, metadata).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AttachEnrichment(ctx, 3, bundle, metadata); err != nil {
		t.Fatalf("AttachEnrichment() error: %v", err)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestRecordRepository_GetBundle(t *testing.T) {
	testCases := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "returns stored bundle",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"stix_bundle"}).
					AddRow([]byte(`{"type":"bundle","objects":[{}]}`))
				mock.ExpectQuery("SELECT stix_bundle FROM matched_content").
					WithArgs(int64(3)).
					WillReturnRows(rows)
			},
			wantErr: nil,
		},
		{
			name: "missing record returns not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT stix_bundle FROM matched_content").
					WithArgs(int64(3)).
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name: "null bundle returns not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"stix_bundle"}).AddRow(nil)
				mock.ExpectQuery("SELECT stix_bundle FROM matched_content").
					WithArgs(int64(3)).
					WillReturnRows(rows)
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			tc.setupMock(mock)

			bundle, err := repo.GetBundle(context.Background(), 3)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("GetBundle() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetBundle() error: %v", err)
			}
			if len(bundle) == 0 {
				t.Error("GetBundle() returned empty bundle")
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestRecordRepository_MarkPublished(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE matched_content SET sent_to_opencti").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkPublished(context.Background(), 9); err != nil {
		t.Fatalf("MarkPublished() error: %v", err)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}
