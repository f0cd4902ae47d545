package consents

import (
	"context"
	"time"

	"fellis.eu/internal/models"
)

// Repository persists the append-only consent ledger. Records are never
// updated in place except for stamping WithdrawnAt on the active grant.
type Repository interface {
	Append(ctx context.Context, record *models.ConsentRecord) error

	// MarkWithdrawn stamps the most recent active grant of the purpose and
	// returns the number of rows affected (0 when nothing was active).
	MarkWithdrawn(ctx context.Context, userID, purpose string, at time.Time) (int64, error)

	// LatestPerPurpose returns the newest record for each purpose the user
	// has ever touched.
	LatestPerPurpose(ctx context.Context, userID string) ([]*models.ConsentRecord, error)

	ListByUser(ctx context.Context, userID string) ([]*models.ConsentRecord, error)
}
