package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fellis.eu/internal/common"
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

const userColumns = `id, email, name, password_hash, avatar_path,
	coalesce(external_account_id, ''), coalesce(external_token, ''),
	token_expires_at, last_import_at, friend_count, photo_count, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = ids.New()
	}

	query := `INSERT INTO users (id, email, name, password_hash, avatar_path)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash, user.AvatarPath,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findBy(ctx, "id", id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findBy(ctx, "email", email)
}

func (r *PostgresRepository) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.findBy(ctx, "external_account_id", externalID)
}

func (r *PostgresRepository) findBy(ctx context.Context, column, value string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, column)

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.AvatarPath,
		&user.ExternalAccountID, &user.ExternalToken,
		&user.TokenExpiresAt, &user.LastImportAt,
		&user.FriendCount, &user.PhotoCount, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) SetExternalAccount(ctx context.Context, userID, externalID, encryptedToken string, expiresAt time.Time) error {
	query := `UPDATE users
	          SET external_account_id = $2, external_token = $3, token_expires_at = $4, updated_at = now()
	          WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, externalID, encryptedToken, expiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ClearExternalToken(ctx context.Context, userID string) error {
	query := `UPDATE users
	          SET external_token = NULL, token_expires_at = NULL, updated_at = now()
	          WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ClearExternalAccount(ctx context.Context, userID string) error {
	query := `UPDATE users
	          SET external_account_id = NULL, external_token = NULL,
	              token_expires_at = NULL, last_import_at = NULL, updated_at = now()
	          WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetFriendCount(ctx context.Context, userID string, count int) error {
	query := `UPDATE users SET friend_count = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, count); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IncrementPhotoCount(ctx context.Context, userID string, delta int) error {
	query := `UPDATE users SET photo_count = photo_count + $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, delta); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetLastImport(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE users SET last_import_at = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListExpiredTokens(ctx context.Context, now time.Time) ([]*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users
	          WHERE external_token IS NOT NULL AND token_expires_at < $1`, userColumns)

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(
			&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.AvatarPath,
			&user.ExternalAccountID, &user.ExternalToken,
			&user.TokenExpiresAt, &user.LastImportAt,
			&user.FriendCount, &user.PhotoCount, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

// Delete removes the user row; dependent rows (posts, friendships, sessions,
// consent records) go with it via ON DELETE CASCADE, audit rows keep a nulled
// reference via ON DELETE SET NULL.
func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
