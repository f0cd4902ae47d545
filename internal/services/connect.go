package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fellis.eu/internal/facebook"
	"fellis.eu/internal/logging"
	"fellis.eu/internal/repositories/repomanager"
)

const actionExternalAccountLinked = "external_account_linked"

// ConnectService finishes the OAuth dance: it exchanges the callback code
// for an access token, encrypts the token into the vault format, and links
// the external account to the local user. The plaintext token never touches
// the database; only its expiry is stored in clear for the retention
// sweeper.
type ConnectService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	api         facebook.API
	vault       TokenVault
	audit       *AuditService
	log         logging.Logger
	now         func() time.Time
}

// NewConnectService constructs a ConnectService.
func NewConnectService(db *sql.DB, m repomanager.RepositoryManager, api facebook.API, vault TokenVault, audit *AuditService, log logging.Logger) *ConnectService {
	return &ConnectService{
		db:          db,
		repomanager: m,
		api:         api,
		vault:       vault,
		audit:       audit,
		log:         log,
		now:         time.Now,
	}
}

// Connect exchanges the OAuth code and stores the encrypted token together
// with the external account id and the token's plaintext expiry.
func (s *ConnectService) Connect(ctx context.Context, userID, code, ip string) error {
	token, err := s.api.ExchangeCode(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging oauth code: %w", err)
	}

	profile, err := s.api.Profile(ctx, token.AccessToken)
	if err != nil {
		return fmt.Errorf("fetching external profile: %w", err)
	}

	encrypted, err := s.vault.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypting external token: %w", err)
	}

	expiresAt := s.now().Add(time.Duration(token.ExpiresIn) * time.Second)
	if err := s.repomanager.Users(s.db).SetExternalAccount(ctx, userID, profile.ID, encrypted, expiresAt); err != nil {
		return fmt.Errorf("linking external account: %w", err)
	}

	s.audit.Record(ctx, userRef(userID), actionExternalAccountLinked, map[string]any{
		"external_account_id": profile.ID,
	}, ip)
	return nil
}
