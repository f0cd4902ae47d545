// Package services contains the server-side business logic: the consent
// ledger, the import pipeline, the erasure engine, the retention sweeper,
// and account management.
package services

import (
	"context"
	"database/sql"
	"time"

	"fellis.eu/internal/ids"
	"fellis.eu/internal/logging"
	"fellis.eu/internal/models"
	"fellis.eu/internal/repositories/repomanager"
)

// AuditService writes append-only audit entries. Audit failures are logged
// and swallowed: a broken audit sink must never veto the action it records.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	now         func() time.Time
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *AuditService {
	return &AuditService{db: db, repomanager: m, log: log, now: time.Now}
}

// Record appends an audit entry. userID is nil for entries written after the
// user row is gone, such as the post-deletion marker of a full erasure.
func (s *AuditService) Record(ctx context.Context, userID *string, action string, details map[string]any, ip string) {
	entry := &models.AuditEntry{
		ID:         ids.New(),
		UserID:     userID,
		Action:     action,
		Details:    details,
		IP:         ip,
		OccurredAt: s.now(),
	}
	if err := s.repomanager.Audit(s.db).Append(ctx, entry); err != nil {
		s.log.Error(ctx, "audit append failed", "action", action, "error", err)
	}
}

// ListByUser returns the user's audit trail, oldest first.
func (s *AuditService) ListByUser(ctx context.Context, userID string) ([]*models.AuditEntry, error) {
	return s.repomanager.Audit(s.db).ListByUser(ctx, userID)
}

// userRef adapts a user id to the nullable reference Record expects.
func userRef(id string) *string {
	return &id
}
