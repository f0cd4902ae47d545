package posts

import (
	"context"

	"fellis.eu/internal/models"
)

type Repository interface {
	Create(ctx context.Context, post *models.Post) (*models.Post, error)

	// ListByUser returns all of the user's posts, newest first.
	ListByUser(ctx context.Context, userID string) ([]*models.Post, error)

	// ListBySource returns the user's posts whose provenance tag is in sources.
	ListBySource(ctx context.Context, userID string, sources []string) ([]*models.Post, error)

	// DeleteBySource removes the user's posts whose provenance tag is in
	// sources and returns the number of rows deleted. Dependent rows go via
	// relational cascade.
	DeleteBySource(ctx context.Context, userID string, sources []string) (int64, error)
}
