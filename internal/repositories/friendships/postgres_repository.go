package friendships

import (
	"context"
	"fmt"

	"fellis.eu/internal/dbx"
	"fellis.eu/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Befriend(ctx context.Context, userID, friendID, source string) error {
	// Both directions in one statement so the pair stays atomic.
	query := `INSERT INTO friendships (user_id, friend_id, source)
	          VALUES ($1, $2, $3), ($2, $1, $3)
	          ON CONFLICT DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, userID, friendID, source); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Unfriend(ctx context.Context, userID, friendID string) error {
	query := `DELETE FROM friendships
	          WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)`

	if _, err := r.db.ExecContext(ctx, query, userID, friendID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteBySource(ctx context.Context, userID, source string) (int64, error) {
	query := `DELETE FROM friendships
	          WHERE (user_id = $1 OR friend_id = $1) AND source = $2`

	res, err := r.db.ExecContext(ctx, query, userID, source)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Friendship, error) {
	query := `SELECT user_id, friend_id, source, created_at
	          FROM friendships
	          WHERE user_id = $1
	          ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Friendship
	for rows.Next() {
		f := &models.Friendship{}
		if err := rows.Scan(&f.UserID, &f.FriendID, &f.Source, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}
