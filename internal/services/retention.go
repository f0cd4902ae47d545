package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fellis.eu/internal/logging"
	"fellis.eu/internal/obs"
	"fellis.eu/internal/repositories/repomanager"
)

const actionTokenExpired = "external_token_expired"

// SweepStats reports what one retention sweep removed.
type SweepStats struct {
	TokensCleared   int
	SessionsDeleted int64
}

// RetentionService periodically clears expired external tokens and deletes
// expired sessions. Token expiry is stored in plaintext next to the
// encrypted token precisely so this sweep never has to decrypt anything.
type RetentionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	audit       *AuditService
	log         logging.Logger
	interval    time.Duration
	now         func() time.Time
}

// NewRetentionService constructs a RetentionService sweeping at the given
// interval.
func NewRetentionService(db *sql.DB, m repomanager.RepositoryManager, audit *AuditService, log logging.Logger, interval time.Duration) *RetentionService {
	return &RetentionService{
		db:          db,
		repomanager: m,
		audit:       audit,
		log:         log,
		interval:    interval,
		now:         time.Now,
	}
}

// Sweep runs one pass: every user whose token expiry has passed gets the
// token nulled and one audit entry; expired sessions are removed in bulk.
func (s *RetentionService) Sweep(ctx context.Context) (*SweepStats, error) {
	now := s.now()
	stats := &SweepStats{}

	expired, err := s.repomanager.Users(s.db).ListExpiredTokens(ctx, now)
	if err != nil {
		obs.RetentionSweeps.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("listing expired tokens: %w", err)
	}
	for _, user := range expired {
		if err := s.repomanager.Users(s.db).ClearExternalToken(ctx, user.ID); err != nil {
			s.log.Error(ctx, "clearing expired token failed", "user", user.ID, "error", err)
			continue
		}
		s.audit.Record(ctx, userRef(user.ID), actionTokenExpired, nil, "")
		stats.TokensCleared++
	}

	deleted, err := s.repomanager.Sessions(s.db).DeleteExpired(ctx, now)
	if err != nil {
		obs.RetentionSweeps.WithLabelValues("error").Inc()
		return stats, fmt.Errorf("deleting expired sessions: %w", err)
	}
	stats.SessionsDeleted = deleted

	obs.RetentionSweeps.WithLabelValues("ok").Inc()
	return stats, nil
}

// Run sweeps immediately and then on every interval tick until ctx is
// cancelled. Sweep failures are logged and the loop keeps going.
func (s *RetentionService) Run(ctx context.Context) {
	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *RetentionService) sweepAndLog(ctx context.Context) {
	stats, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error(ctx, "retention sweep failed", "error", err)
		return
	}
	s.log.Info(ctx, "retention sweep finished",
		"tokens_cleared", stats.TokensCleared,
		"sessions_deleted", stats.SessionsDeleted,
	)
}
