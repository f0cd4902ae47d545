package posts

import (
	"context"
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

func (r *PostgresRepository) Create(ctx context.Context, post *models.Post) (*models.Post, error) {
	if post.ID == "" {
		post.ID = ids.New()
	}
	if post.Source == "" {
		post.Source = models.SourceNative
	}

	query := `INSERT INTO posts (id, user_id, body, media_path, source)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		post.ID, post.UserID, post.Body, post.MediaPath, post.Source,
	).Scan(&post.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return post, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Post, error) {
	query := `SELECT id, user_id, body, media_path, source, created_at
	          FROM posts
	          WHERE user_id = $1
	          ORDER BY created_at DESC`

	return r.queryPosts(ctx, query, userID)
}

func (r *PostgresRepository) ListBySource(ctx context.Context, userID string, sources []string) ([]*models.Post, error) {
	query := `SELECT id, user_id, body, media_path, source, created_at
	          FROM posts
	          WHERE user_id = $1 AND source = ANY($2)
	          ORDER BY created_at DESC`

	return r.queryPosts(ctx, query, userID, sources)
}

func (r *PostgresRepository) DeleteBySource(ctx context.Context, userID string, sources []string) (int64, error) {
	query := `DELETE FROM posts WHERE user_id = $1 AND source = ANY($2)`

	res, err := r.db.ExecContext(ctx, query, userID, sources)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}

func (r *PostgresRepository) queryPosts(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Post
	for rows.Next() {
		post := &models.Post{}
		if err := rows.Scan(&post.ID, &post.UserID, &post.Body, &post.MediaPath, &post.Source, &post.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, post)
	}
	return result, rows.Err()
}
