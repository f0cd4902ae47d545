package users

import (
	"context"
	"time"

	"fellis.eu/internal/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)

	// SetExternalAccount records a linked third-party account: the external
	// identifier, the encrypted token, and its plaintext expiry.
	SetExternalAccount(ctx context.Context, userID, externalID, encryptedToken string, expiresAt time.Time) error

	// ClearExternalToken nulls the token and its expiry, keeping the account link.
	ClearExternalToken(ctx context.Context, userID string) error

	// ClearExternalAccount nulls the token, expiry, account id, and last-import marker.
	ClearExternalAccount(ctx context.Context, userID string) error

	SetFriendCount(ctx context.Context, userID string, count int) error
	IncrementPhotoCount(ctx context.Context, userID string, delta int) error
	SetLastImport(ctx context.Context, userID string, at time.Time) error

	// ListExpiredTokens returns users whose stored token expiry has passed.
	ListExpiredTokens(ctx context.Context, now time.Time) ([]*models.User, error)

	Delete(ctx context.Context, userID string) error
}
