package consents

import (
	"context"
	"fmt"
	"time"

	"fellis.eu/internal/dbx"
	"fellis.eu/internal/ids"
	"fellis.eu/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const consentColumns = `id, user_id, purpose, granted, granted_at, withdrawn_at,
	request_ip, request_agent`

func (r *PostgresRepository) Append(ctx context.Context, record *models.ConsentRecord) error {
	if record.ID == "" {
		record.ID = ids.New()
	}

	query := `INSERT INTO consent_records
	          (id, user_id, purpose, granted, granted_at, withdrawn_at, request_ip, request_agent)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.UserID, record.Purpose, record.Granted,
		record.GrantedAt, record.WithdrawnAt, record.RequestIP, record.RequestAgent,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkWithdrawn(ctx context.Context, userID, purpose string, at time.Time) (int64, error) {
	query := `UPDATE consent_records SET withdrawn_at = $3
	          WHERE id = (
	              SELECT id FROM consent_records
	              WHERE user_id = $1 AND purpose = $2 AND granted AND withdrawn_at IS NULL
	              ORDER BY granted_at DESC
	              LIMIT 1
	          )`

	res, err := r.db.ExecContext(ctx, query, userID, purpose, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}

func (r *PostgresRepository) LatestPerPurpose(ctx context.Context, userID string) ([]*models.ConsentRecord, error) {
	// Monotonic ids break ties between a grant and a withdrawal recorded in
	// the same instant.
	query := fmt.Sprintf(`SELECT DISTINCT ON (purpose) %s
	          FROM consent_records
	          WHERE user_id = $1
	          ORDER BY purpose, granted_at DESC, id DESC`, consentColumns)

	return r.queryRecords(ctx, query, userID)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.ConsentRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM consent_records
	          WHERE user_id = $1
	          ORDER BY granted_at ASC`, consentColumns)

	return r.queryRecords(ctx, query, userID)
}

func (r *PostgresRepository) queryRecords(ctx context.Context, query string, args ...any) ([]*models.ConsentRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.ConsentRecord
	for rows.Next() {
		rec := &models.ConsentRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.Purpose, &rec.Granted,
			&rec.GrantedAt, &rec.WithdrawnAt, &rec.RequestIP, &rec.RequestAgent,
		); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
