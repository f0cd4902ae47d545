package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fellis.eu/internal/common"
	"fellis.eu/internal/logging"
	"fellis.eu/internal/media"
	"fellis.eu/internal/models"
	"fellis.eu/internal/obs"
	"fellis.eu/internal/repositories/repomanager"
)

const (
	actionSourceDataErased      = "source_data_erased"
	actionAccountErasureStarted = "account_erasure_started"
	actionAccountErased         = "account_erased"
)

// EraseResult reports what a source-scoped erasure removed.
type EraseResult struct {
	PostsDeleted       int64 `json:"posts_deleted"`
	FriendshipsDeleted int64 `json:"friendships_deleted"`
}

// ErasureService removes imported data or whole accounts. Both operations
// are ordered so that a failure partway through leaves less work for a
// re-run, never an inconsistent state: media files go first, then rows, then
// token-nulling, then consent withdrawal.
type ErasureService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       media.Store
	consent     *ConsentService
	audit       *AuditService
	log         logging.Logger
	now         func() time.Time
}

// NewErasureService constructs an ErasureService.
func NewErasureService(db *sql.DB, m repomanager.RepositoryManager, store media.Store, consent *ConsentService, audit *AuditService, log logging.Logger) *ErasureService {
	return &ErasureService{
		db:          db,
		repomanager: m,
		store:       store,
		consent:     consent,
		audit:       audit,
		log:         log,
		now:         time.Now,
	}
}

// EraseSourceData deletes the user's entities whose provenance tag is in
// sources, their media files, the tagged friendship edges, the stored
// external token, and withdraws the import consent. Running it when no
// external data exists yields zero counts, not an error.
func (s *ErasureService) EraseSourceData(ctx context.Context, userID string, sources []string, ip string) (*EraseResult, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no source tags given", common.ErrorInvalidArgument)
	}
	for _, source := range sources {
		if source == "" {
			return nil, fmt.Errorf("%w: empty source tag", common.ErrorInvalidArgument)
		}
		if source == models.SourceNative {
			return nil, fmt.Errorf("%w: native entities cannot be source-erased", common.ErrorInvalidArgument)
		}
	}

	tagged, err := s.repomanager.Posts(s.db).ListBySource(ctx, userID, sources)
	if err != nil {
		return nil, fmt.Errorf("listing tagged posts: %w", err)
	}
	for _, post := range tagged {
		s.deleteMedia(ctx, post.MediaPath)
	}

	postsDeleted, err := s.repomanager.Posts(s.db).DeleteBySource(ctx, userID, sources)
	if err != nil {
		return nil, fmt.Errorf("deleting tagged posts: %w", err)
	}

	friendsDeleted, err := s.repomanager.Friendships(s.db).DeleteBySource(ctx, userID, models.SourceExternal)
	if err != nil {
		return nil, fmt.Errorf("deleting tagged friendships: %w", err)
	}

	if err := s.repomanager.Users(s.db).ClearExternalAccount(ctx, userID); err != nil {
		return nil, fmt.Errorf("clearing external account: %w", err)
	}

	if err := s.consent.Withdraw(ctx, userID, PurposeExternalImport, ip, ""); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, userRef(userID), actionSourceDataErased, map[string]any{
		"sources":             sources,
		"posts_deleted":       postsDeleted,
		"friendships_deleted": friendsDeleted,
	}, ip)
	obs.Erasures.WithLabelValues("source").Inc()

	return &EraseResult{PostsDeleted: postsDeleted, FriendshipsDeleted: friendsDeleted}, nil
}

// EraseAccount removes the user entirely: every media file referenced by
// their posts, the avatar if locally hosted, and the user row itself.
// Dependent rows disappear via relational cascade from the single delete.
// A second invocation on an already-erased account is a no-op.
func (s *ErasureService) EraseAccount(ctx context.Context, userID, ip string) error {
	user, err := s.repomanager.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("loading user for erasure: %w", err)
	}

	s.audit.Record(ctx, userRef(userID), actionAccountErasureStarted, nil, ip)

	posts, err := s.repomanager.Posts(s.db).ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing posts for erasure: %w", err)
	}
	for _, post := range posts {
		s.deleteMedia(ctx, post.MediaPath)
	}
	if user.AvatarPath != "" {
		s.deleteMedia(ctx, &user.AvatarPath)
	}

	if err := s.repomanager.Users(s.db).Delete(ctx, userID); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	// The user row is gone, so this entry carries no user reference; the
	// former identifier lives in the detail payload instead.
	s.audit.Record(ctx, nil, actionAccountErased, map[string]any{"former_user_id": userID}, ip)
	obs.Erasures.WithLabelValues("account").Inc()

	return nil
}

// deleteMedia removes a media object best-effort: a missing file or a
// storage hiccup is logged, never fatal to the erasure.
func (s *ErasureService) deleteMedia(ctx context.Context, path *string) {
	if path == nil || *path == "" {
		return
	}
	if err := s.store.Delete(ctx, *path); err != nil {
		s.log.Warn(ctx, "deleting media file failed", "path", *path, "error", err)
	}
}
