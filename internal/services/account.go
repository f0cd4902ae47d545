package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fellis.eu/internal/common"
	"fellis.eu/internal/config"
	"fellis.eu/internal/cryptox"
	"fellis.eu/internal/dbx"
	"fellis.eu/internal/ids"
	"fellis.eu/internal/logging"
	"fellis.eu/internal/models"
	"fellis.eu/internal/repositories/repomanager"
)

const sessionIDSize = 32

const (
	actionAccountRegistered = "account_registered"
	actionLogin             = "login"
)

// AuthResult bundles a short-lived access token with the server-side session
// that refreshes it.
type AuthResult struct {
	AccessToken string
	SessionID   string
	User        *models.User
}

// AccountService handles registration, login, and session rotation.
type AccountService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	audit                       *AuditService
	log                         logging.Logger
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	sessionValidityDuration     time.Duration
	now                         func() time.Time
}

// NewAccountService constructs an AccountService from server config.
func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, audit *AuditService, log logging.Logger) *AccountService {
	return &AccountService{
		db:                          db,
		repomanager:                 m,
		audit:                       audit,
		log:                         log,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		sessionValidityDuration:     cfg.SessionValidityDuration,
		now:                         time.Now,
	}
}

// Register creates an account with an Argon2id password hash. An already
// registered email yields ErrorInvalidArgument.
func (s *AccountService) Register(ctx context.Context, email, name, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrorInvalidArgument)
	}

	if _, err := s.repomanager.Users(s.db).FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", common.ErrorInvalidArgument)
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		ID:           ids.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.audit.Record(ctx, userRef(user.ID), actionAccountRegistered, nil, "")
	return user, nil
}

// Login verifies credentials and returns a fresh access token plus a
// server-side session. Wrong email and wrong password are indistinguishable
// to the caller.
func (s *AccountService) Login(ctx context.Context, email, password, ip string) (*AuthResult, error) {
	user, err := s.repomanager.Users(s.db).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}

	ok, err := cryptox.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	result, err := s.issueCredentials(ctx, s.db, user)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, userRef(user.ID), actionLogin, nil, ip)
	return result, nil
}

// Refresh rotates the session and mints a new access token. The old session
// is deleted and a new one created in a single transaction; expired sessions
// yield ErrSessionExpired.
func (s *AccountService) Refresh(ctx context.Context, sessionID string) (*AuthResult, error) {
	session, err := s.repomanager.Sessions(s.db).Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("finding session: %w", err)
	}
	if session.ExpiresAt.Before(s.now()) {
		_ = s.repomanager.Sessions(s.db).Delete(ctx, sessionID)
		return nil, common.ErrSessionExpired
	}

	user, err := s.repomanager.Users(s.db).FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("finding session user: %w", err)
	}

	var result *AuthResult
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Sessions(tx).Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("deleting rotated session: %w", err)
		}
		var issueErr error
		result, issueErr = s.issueCredentials(ctx, tx, user)
		return issueErr
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// Logout deletes the session.
func (s *AccountService) Logout(ctx context.Context, sessionID string) error {
	return s.repomanager.Sessions(s.db).Delete(ctx, sessionID)
}

func (s *AccountService) issueCredentials(ctx context.Context, db dbx.DBTX, user *models.User) (*AuthResult, error) {
	accessToken, err := cryptox.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	sessionID, err := common.MakeRandHexString(sessionIDSize)
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	session := &models.Session{
		ID:        sessionID,
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.sessionValidityDuration),
		CreatedAt: s.now(),
	}
	if err := s.repomanager.Sessions(db).Create(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return &AuthResult{AccessToken: accessToken, SessionID: sessionID, User: user}, nil
}
