package consents

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"fellis.eu/internal/models"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestAppend_AssignsID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRepository(db)

	mock.ExpectExec(`INSERT INTO consent_records`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &models.ConsentRecord{
		UserID:    "u1",
		Purpose:   "external_import",
		Granted:   true,
		GrantedAt: time.Now(),
	}
	if err := repo.Append(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated id")
	}
}

func TestMarkWithdrawn_ReportsAffectedRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRepository(db)

	at := time.Now()
	mock.ExpectExec(`UPDATE consent_records SET withdrawn_at = \$3`).
		WithArgs("u1", "external_import", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.MarkWithdrawn(context.Background(), "u1", "external_import", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 affected row, got %d", n)
	}
}

func TestMarkWithdrawn_NoActiveGrant(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRepository(db)

	at := time.Now()
	mock.ExpectExec(`UPDATE consent_records SET withdrawn_at = \$3`).
		WithArgs("u1", "external_import", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.MarkWithdrawn(context.Background(), "u1", "external_import", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 affected rows, got %d", n)
	}
}

func TestLatestPerPurpose(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "purpose", "granted", "granted_at", "withdrawn_at",
		"request_ip", "request_agent",
	}).
		AddRow("c2", "u1", "external_import", true, now, nil, "10.0.0.1", "ua").
		AddRow("c3", "u1", "general_processing", true, now, now, "10.0.0.1", "ua")

	mock.ExpectQuery(`SELECT DISTINCT ON \(purpose\)`).
		WithArgs("u1").
		WillReturnRows(rows)

	recs, err := repo.LatestPerPurpose(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if !recs[0].Active() {
		t.Fatal("expected first record to be an active grant")
	}
	if recs[1].Active() {
		t.Fatal("expected withdrawn record to be inactive")
	}
}
