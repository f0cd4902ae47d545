package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fellis.eu/internal/common"
	"fellis.eu/internal/ids"
	"fellis.eu/internal/logging"
	"fellis.eu/internal/models"
	"fellis.eu/internal/repositories/repomanager"
)

// Consent purposes form a closed set; anything else is rejected before any
// row is written.
const (
	PurposeExternalImport    = "external_import"
	PurposeGeneralProcessing = "general_processing"
)

var validPurposes = map[string]bool{
	PurposeExternalImport:    true,
	PurposeGeneralProcessing: true,
}

const (
	actionConsentGranted   = "consent_granted"
	actionConsentWithdrawn = "consent_withdrawn"
)

// ConsentService maintains the append-only consent ledger. The current state
// of a purpose is always derived from the latest record, never from a flag.
type ConsentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	audit       *AuditService
	log         logging.Logger
	now         func() time.Time
}

// NewConsentService constructs a ConsentService.
func NewConsentService(db *sql.DB, m repomanager.RepositoryManager, audit *AuditService, log logging.Logger) *ConsentService {
	return &ConsentService{db: db, repomanager: m, audit: audit, log: log, now: time.Now}
}

// Grant appends a consent grant. Every call leaves a row in the ledger; the
// returned flag reports whether the purpose was newly activated by this
// call, so one-shot side effects like the import trigger fire exactly once
// without suppressing the record.
func (s *ConsentService) Grant(ctx context.Context, userID, purpose, ip, agent string) (bool, error) {
	if !validPurposes[purpose] {
		return false, fmt.Errorf("%w: %s", common.ErrUnknownPurpose, purpose)
	}

	wasActive, err := s.HasConsent(ctx, userID, purpose)
	if err != nil {
		return false, err
	}

	record := &models.ConsentRecord{
		ID:           ids.New(),
		UserID:       userID,
		Purpose:      purpose,
		Granted:      true,
		GrantedAt:    s.now(),
		RequestIP:    ip,
		RequestAgent: agent,
	}
	if err := s.repomanager.Consents(s.db).Append(ctx, record); err != nil {
		return false, fmt.Errorf("appending consent grant: %w", err)
	}

	s.audit.Record(ctx, userRef(userID), actionConsentGranted, map[string]any{"purpose": purpose}, ip)
	return !wasActive, nil
}

// Withdraw stamps the active grant of the purpose, if one exists, and
// appends a terminal record. Every call leaves a row, so the ledger counts
// withdrawals the same way it counts grants; repeated withdrawals change
// nothing observable in the current status.
func (s *ConsentService) Withdraw(ctx context.Context, userID, purpose, ip, agent string) error {
	if !validPurposes[purpose] {
		return fmt.Errorf("%w: %s", common.ErrUnknownPurpose, purpose)
	}

	now := s.now()
	if _, err := s.repomanager.Consents(s.db).MarkWithdrawn(ctx, userID, purpose, now); err != nil {
		return fmt.Errorf("withdrawing consent: %w", err)
	}

	terminal := &models.ConsentRecord{
		ID:           ids.New(),
		UserID:       userID,
		Purpose:      purpose,
		Granted:      false,
		GrantedAt:    now,
		WithdrawnAt:  &now,
		RequestIP:    ip,
		RequestAgent: agent,
	}
	if err := s.repomanager.Consents(s.db).Append(ctx, terminal); err != nil {
		return fmt.Errorf("appending consent withdrawal: %w", err)
	}

	s.audit.Record(ctx, userRef(userID), actionConsentWithdrawn, map[string]any{"purpose": purpose}, ip)
	return nil
}

// PurposeStatus is the current state of one purpose, taken from its latest
// ledger record.
type PurposeStatus struct {
	Granted     bool       `json:"granted"`
	GrantedAt   *time.Time `json:"granted_at,omitempty"`
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty"`
}

// Status returns the current state of each known purpose, derived from the
// latest ledger record per purpose. Purposes the user never touched report
// not granted with no timestamps.
func (s *ConsentService) Status(ctx context.Context, userID string) (map[string]PurposeStatus, error) {
	latest, err := s.repomanager.Consents(s.db).LatestPerPurpose(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading consent status: %w", err)
	}

	status := make(map[string]PurposeStatus, len(validPurposes))
	for purpose := range validPurposes {
		status[purpose] = PurposeStatus{}
	}
	for _, record := range latest {
		grantedAt := record.GrantedAt
		status[record.Purpose] = PurposeStatus{
			Granted:     record.Active(),
			GrantedAt:   &grantedAt,
			WithdrawnAt: record.WithdrawnAt,
		}
	}
	return status, nil
}

// HasConsent reports whether the purpose is currently granted.
func (s *ConsentService) HasConsent(ctx context.Context, userID, purpose string) (bool, error) {
	status, err := s.Status(ctx, userID)
	if err != nil {
		return false, err
	}
	return status[purpose].Granted, nil
}

// History returns the user's full consent ledger, newest first.
func (s *ConsentService) History(ctx context.Context, userID string) ([]*models.ConsentRecord, error) {
	return s.repomanager.Consents(s.db).ListByUser(ctx, userID)
}
