package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fellis.eu/internal/models"
	"fellis.eu/internal/repositories/repomanager"
)

// ExportProfile is the user's own data minus secrets: no password hash, no
// encrypted token.
type ExportProfile struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Name              string     `json:"name"`
	ExternalAccountID string     `json:"external_account_id,omitempty"`
	LastImportAt      *time.Time `json:"last_import_at,omitempty"`
	FriendCount       int        `json:"friend_count"`
	PhotoCount        int        `json:"photo_count"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ExportBundle is everything the system holds about one user, in a shape
// suitable for a data-portability download.
type ExportBundle struct {
	Profile     ExportProfile           `json:"profile"`
	Consents    []*models.ConsentRecord `json:"consents"`
	Posts       []*models.Post          `json:"posts"`
	Friendships []*models.Friendship    `json:"friendships"`
	AuditTrail  []*models.AuditEntry    `json:"audit_trail"`
	ExportedAt  time.Time               `json:"exported_at"`
}

// ExportService assembles data-portability bundles.
type ExportService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(db *sql.DB, m repomanager.RepositoryManager) *ExportService {
	return &ExportService{db: db, repomanager: m, now: time.Now}
}

// Export gathers the user's profile, consent ledger, posts, friendships and
// audit trail.
func (s *ExportService) Export(ctx context.Context, userID string) (*ExportBundle, error) {
	user, err := s.repomanager.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user for export: %w", err)
	}

	consents, err := s.repomanager.Consents(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading consents for export: %w", err)
	}
	posts, err := s.repomanager.Posts(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading posts for export: %w", err)
	}
	friendships, err := s.repomanager.Friendships(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading friendships for export: %w", err)
	}
	trail, err := s.repomanager.Audit(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading audit trail for export: %w", err)
	}

	return &ExportBundle{
		Profile: ExportProfile{
			ID:                user.ID,
			Email:             user.Email,
			Name:              user.Name,
			ExternalAccountID: user.ExternalAccountID,
			LastImportAt:      user.LastImportAt,
			FriendCount:       user.FriendCount,
			PhotoCount:        user.PhotoCount,
			CreatedAt:         user.CreatedAt,
		},
		Consents:    consents,
		Posts:       posts,
		Friendships: friendships,
		AuditTrail:  trail,
		ExportedAt:  s.now(),
	}, nil
}
