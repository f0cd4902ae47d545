package audit

import (
	"context"

	"fellis.eu/internal/models"
)

// Repository appends immutable audit entries. There is deliberately no
// update or delete operation.
type Repository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListByUser(ctx context.Context, userID string) ([]*models.AuditEntry, error)
}
