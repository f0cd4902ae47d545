package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"fellis.eu/internal/common"
	"fellis.eu/internal/facebook"
	"fellis.eu/internal/ids"
	"fellis.eu/internal/logging"
	"fellis.eu/internal/media"
	"fellis.eu/internal/models"
	"fellis.eu/internal/obs"
	"fellis.eu/internal/repositories/repomanager"
)

const actionImportCompleted = "import_completed"

// ImportSummary reports how many entities one import run materialized.
type ImportSummary struct {
	Friends int `json:"friends_imported"`
	Posts   int `json:"posts_imported"`
	Photos  int `json:"photos_imported"`
}

// ImportService materializes external social data as local entities. Every
// created row carries a provenance tag so source-scoped erasure can find it
// later. Consent is checked by the caller before an import is started, not
// here.
type ImportService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	api         facebook.API
	store       media.Store
	vault       TokenVault
	audit       *AuditService
	log         logging.Logger
	now         func() time.Time
}

// TokenVault decrypts stored external tokens. Satisfied by cryptox.Vault.
type TokenVault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
}

// NewImportService constructs an ImportService.
func NewImportService(db *sql.DB, m repomanager.RepositoryManager, api facebook.API, store media.Store, vault TokenVault, audit *AuditService, log logging.Logger) *ImportService {
	return &ImportService{
		db:          db,
		repomanager: m,
		api:         api,
		store:       store,
		vault:       vault,
		audit:       audit,
		log:         log,
		now:         time.Now,
	}
}

// ImportAll runs the friends, posts and photos steps in order. Each step
// tolerates per-item failures independently, so a partial run leaves valid
// imported data behind rather than rolling anything back. The summary is
// written to the audit log because the triggering request has long since
// returned.
func (s *ImportService) ImportAll(ctx context.Context, userID string) (*ImportSummary, error) {
	user, err := s.repomanager.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user for import: %w", err)
	}
	if user.ExternalToken == "" {
		return nil, fmt.Errorf("user %s has no linked external account", userID)
	}

	token, err := s.vault.Decrypt(user.ExternalToken)
	if err != nil {
		return nil, fmt.Errorf("decrypting external token: %w", err)
	}

	summary := &ImportSummary{}
	summary.Friends = s.importFriends(ctx, userID, token)
	summary.Posts = s.importPosts(ctx, userID, token)
	summary.Photos = s.importPhotos(ctx, userID, token)

	if err := s.repomanager.Users(s.db).SetLastImport(ctx, userID, s.now()); err != nil {
		s.log.Error(ctx, "recording last import time failed", "user", userID, "error", err)
	}

	s.audit.Record(ctx, userRef(userID), actionImportCompleted, map[string]any{
		"friends_imported": summary.Friends,
		"posts_imported":   summary.Posts,
		"photos_imported":  summary.Photos,
	}, "")

	return summary, nil
}

// importFriends links external friends who already have a local account.
// Third parties without one are skipped entirely: no placeholder accounts.
// The cached friend counter is set to the imported count afterwards.
func (s *ImportService) importFriends(ctx context.Context, userID, token string) int {
	friends, err := s.api.Friends(ctx, token)
	if err != nil {
		s.log.Error(ctx, "fetching friends failed", "user", userID, "error", err)
		obs.ImportFailures.WithLabelValues("friends").Inc()
		return 0
	}

	imported := 0
	for _, friend := range friends {
		local, err := s.repomanager.Users(s.db).FindByExternalID(ctx, friend.ID)
		if err != nil {
			// No local account is the expected case and stays silent; a real
			// lookup failure is logged and skipped like any other item.
			if !errors.Is(err, common.ErrorNotFound) {
				s.log.Error(ctx, "looking up local account for friend failed", "user", userID, "external_id", friend.ID, "error", err)
				obs.ImportFailures.WithLabelValues("friends").Inc()
			}
			continue
		}
		if err := s.repomanager.Friendships(s.db).Befriend(ctx, userID, local.ID, models.SourceExternal); err != nil {
			s.log.Warn(ctx, "importing friendship failed", "user", userID, "friend", local.ID, "error", err)
			obs.ImportFailures.WithLabelValues("friends").Inc()
			continue
		}
		imported++
		obs.ImportedItems.WithLabelValues("friends").Inc()
	}

	if err := s.repomanager.Users(s.db).SetFriendCount(ctx, userID, imported); err != nil {
		s.log.Error(ctx, "updating friend count failed", "user", userID, "error", err)
	}
	return imported
}

// importPosts materializes external posts that have text. An image fetch
// failure only drops the attachment, not the post.
func (s *ImportService) importPosts(ctx context.Context, userID, token string) int {
	items, err := s.api.Posts(ctx, token)
	if err != nil {
		s.log.Error(ctx, "fetching posts failed", "user", userID, "error", err)
		obs.ImportFailures.WithLabelValues("posts").Inc()
		return 0
	}

	imported := 0
	for _, item := range items {
		if strings.TrimSpace(item.Message) == "" {
			continue
		}

		post := &models.Post{
			ID:        ids.New(),
			UserID:    userID,
			Body:      item.Message,
			Source:    models.SourceExternalPost,
			CreatedAt: s.now(),
		}

		if item.FullPicture != "" {
			if path, err := s.fetchMedia(ctx, item.FullPicture); err != nil {
				s.log.Warn(ctx, "fetching post image failed", "user", userID, "url", item.FullPicture, "error", err)
				obs.ImportFailures.WithLabelValues("posts").Inc()
			} else {
				post.MediaPath = &path
			}
		}

		if _, err := s.repomanager.Posts(s.db).Create(ctx, post); err != nil {
			s.log.Warn(ctx, "importing post failed", "user", userID, "error", err)
			obs.ImportFailures.WithLabelValues("posts").Inc()
			continue
		}
		imported++
		obs.ImportedItems.WithLabelValues("posts").Inc()
	}
	return imported
}

// importPhotos materializes uploaded photos as post-like entities and bumps
// the photo counter by the number imported.
func (s *ImportService) importPhotos(ctx context.Context, userID, token string) int {
	items, err := s.api.Photos(ctx, token)
	if err != nil {
		s.log.Error(ctx, "fetching photos failed", "user", userID, "error", err)
		obs.ImportFailures.WithLabelValues("photos").Inc()
		return 0
	}

	imported := 0
	for _, item := range items {
		if item.Source == "" {
			continue
		}

		path, err := s.fetchMedia(ctx, item.Source)
		if err != nil {
			s.log.Warn(ctx, "fetching photo failed", "user", userID, "url", item.Source, "error", err)
			obs.ImportFailures.WithLabelValues("photos").Inc()
			continue
		}

		post := &models.Post{
			ID:        ids.New(),
			UserID:    userID,
			Body:      item.Caption,
			MediaPath: &path,
			Source:    models.SourceExternalPhoto,
			CreatedAt: s.now(),
		}
		if _, err := s.repomanager.Posts(s.db).Create(ctx, post); err != nil {
			s.log.Warn(ctx, "importing photo failed", "user", userID, "error", err)
			obs.ImportFailures.WithLabelValues("photos").Inc()
			continue
		}
		imported++
		obs.ImportedItems.WithLabelValues("photos").Inc()
	}

	if imported > 0 {
		if err := s.repomanager.Users(s.db).IncrementPhotoCount(ctx, userID, imported); err != nil {
			s.log.Error(ctx, "updating photo count failed", "user", userID, "error", err)
		}
	}
	return imported
}

// fetchMedia downloads an image with a couple of retries and persists it
// under a random filename, returning the storage path.
func (s *ImportService) fetchMedia(ctx context.Context, rawURL string) (string, error) {
	var data []byte
	var contentType string

	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		data, contentType, err = s.api.Download(ctx, rawURL)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	filename := uuid.NewString() + extensionFor(contentType)
	return s.store.Save(ctx, data, filename)
}

// extensionFor maps a response content type to a file extension, defaulting
// to jpg.
func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	default:
		return ".jpg"
	}
}
