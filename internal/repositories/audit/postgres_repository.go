package audit

import (
	"context"
	"encoding/json"
	"fmt"

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

func (r *PostgresRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}

	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
	}

	query := `INSERT INTO audit_log (id, user_id, action, details, ip, occurred_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Action, details, entry.IP, entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.AuditEntry, error) {
	query := `SELECT id, user_id, action, details, ip, occurred_at
	          FROM audit_log
	          WHERE user_id = $1
	          ORDER BY occurred_at ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditEntry
	for rows.Next() {
		entry := &models.AuditEntry{}
		var details []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &details, &entry.IP, &entry.OccurredAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &entry.Details)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
