package sessions

import (
	"context"
	"time"

	"fellis.eu/internal/models"
)

type Repository interface {
	Create(ctx context.Context, session *models.Session) error
	Find(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes all sessions past their expiry and returns the
	// number of rows deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
