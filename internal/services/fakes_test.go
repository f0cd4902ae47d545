package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"fellis.eu/internal/common"
	"fellis.eu/internal/dbx"
	"fellis.eu/internal/facebook"
	"fellis.eu/internal/logging"
	"fellis.eu/internal/models"
	"fellis.eu/internal/repositories/audit"
	"fellis.eu/internal/repositories/consents"
	"fellis.eu/internal/repositories/friendships"
	"fellis.eu/internal/repositories/posts"
	"fellis.eu/internal/repositories/sessions"
	"fellis.eu/internal/repositories/users"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeRepoManager vends in-memory repositories and ignores the DBTX handle.
type fakeRepoManager struct {
	users       *fakeUsers
	sessions    *fakeSessions
	consents    *fakeConsents
	audit       *fakeAudit
	posts       *fakePosts
	friendships *fakeFriendships
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:       &fakeUsers{byID: make(map[string]*models.User)},
		sessions:    &fakeSessions{byID: make(map[string]*models.Session)},
		consents:    &fakeConsents{},
		audit:       &fakeAudit{},
		posts:       &fakePosts{byID: make(map[string]*models.Post)},
		friendships: &fakeFriendships{},
	}
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                  { return m.users }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository            { return m.sessions }
func (m *fakeRepoManager) Consents(db dbx.DBTX) consents.Repository            { return m.consents }
func (m *fakeRepoManager) Audit(db dbx.DBTX) audit.Repository                  { return m.audit }
func (m *fakeRepoManager) Posts(db dbx.DBTX) posts.Repository                  { return m.posts }
func (m *fakeRepoManager) Friendships(db dbx.DBTX) friendships.Repository      { return m.friendships }

type fakeUsers struct {
	mu                sync.Mutex
	byID              map[string]*models.User
	externalLookupErr error
}

func (f *fakeUsers) Create(ctx context.Context, user *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.byID[user.ID] = user
	return user, nil
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.byID {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsers) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.externalLookupErr != nil {
		return nil, f.externalLookupErr
	}
	for _, user := range f.byID {
		if user.ExternalAccountID == externalID && externalID != "" {
			copied := *user
			return &copied, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsers) SetExternalAccount(ctx context.Context, userID, externalID, encryptedToken string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[userID]
	if !ok {
		return common.ErrorNotFound
	}
	user.ExternalAccountID = externalID
	user.ExternalToken = encryptedToken
	user.TokenExpiresAt = &expiresAt
	return nil
}

func (f *fakeUsers) ClearExternalToken(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.byID[userID]; ok {
		user.ExternalToken = ""
		user.TokenExpiresAt = nil
	}
	return nil
}

func (f *fakeUsers) ClearExternalAccount(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.byID[userID]; ok {
		user.ExternalToken = ""
		user.TokenExpiresAt = nil
		user.ExternalAccountID = ""
		user.LastImportAt = nil
	}
	return nil
}

func (f *fakeUsers) SetFriendCount(ctx context.Context, userID string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.byID[userID]; ok {
		user.FriendCount = count
	}
	return nil
}

func (f *fakeUsers) IncrementPhotoCount(ctx context.Context, userID string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.byID[userID]; ok {
		user.PhotoCount += delta
	}
	return nil
}

func (f *fakeUsers) SetLastImport(ctx context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.byID[userID]; ok {
		user.LastImportAt = &at
	}
	return nil
}

func (f *fakeUsers) ListExpiredTokens(ctx context.Context, now time.Time) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.User
	for _, user := range f.byID {
		if user.ExternalToken != "" && user.TokenExpiresAt != nil && user.TokenExpiresAt.Before(now) {
			copied := *user
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeUsers) Delete(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, userID)
	return nil
}

type fakeSessions struct {
	mu   sync.Mutex
	byID map[string]*models.Session
}

func (f *fakeSessions) Create(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[session.ID] = session
	return nil
}

func (f *fakeSessions) Find(ctx context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessions) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *fakeSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, session := range f.byID {
		if session.ExpiresAt.Before(now) {
			delete(f.byID, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeConsents struct {
	mu      sync.Mutex
	records []*models.ConsentRecord
}

func (f *fakeConsents) Append(ctx context.Context, record *models.ConsentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *record
	f.records = append(f.records, &copied)
	return nil
}

func (f *fakeConsents) MarkWithdrawn(ctx context.Context, userID, purpose string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var target *models.ConsentRecord
	for _, record := range f.records {
		if record.UserID == userID && record.Purpose == purpose && record.Active() {
			if target == nil || record.GrantedAt.After(target.GrantedAt) {
				target = record
			}
		}
	}
	if target == nil {
		return 0, nil
	}
	withdrawn := at
	target.WithdrawnAt = &withdrawn
	return 1, nil
}

func (f *fakeConsents) LatestPerPurpose(ctx context.Context, userID string) ([]*models.ConsentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	latest := make(map[string]*models.ConsentRecord)
	for _, record := range f.records {
		if record.UserID != userID {
			continue
		}
		cur, ok := latest[record.Purpose]
		if !ok || record.GrantedAt.After(cur.GrantedAt) ||
			(record.GrantedAt.Equal(cur.GrantedAt) && record.ID > cur.ID) {
			latest[record.Purpose] = record
		}
	}
	var out []*models.ConsentRecord
	for _, record := range latest {
		copied := *record
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeConsents) ListByUser(ctx context.Context, userID string) ([]*models.ConsentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ConsentRecord
	for _, record := range f.records {
		if record.UserID == userID {
			copied := *record
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.After(out[j].GrantedAt) })
	return out, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func (f *fakeAudit) Append(ctx context.Context, entry *models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *entry
	f.entries = append(f.entries, &copied)
	return nil
}

func (f *fakeAudit) ListByUser(ctx context.Context, userID string) ([]*models.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AuditEntry
	for _, entry := range f.entries {
		if entry.UserID != nil && *entry.UserID == userID {
			copied := *entry
			out = append(out, &copied)
		}
	}
	return out, nil
}

// byAction returns the recorded entries with the given action.
func (f *fakeAudit) byAction(action string) []*models.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AuditEntry
	for _, entry := range f.entries {
		if entry.Action == action {
			out = append(out, entry)
		}
	}
	return out
}

type fakePosts struct {
	mu   sync.Mutex
	byID map[string]*models.Post
}

func (f *fakePosts) Create(ctx context.Context, post *models.Post) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if post.Source == "" {
		post.Source = models.SourceNative
	}
	copied := *post
	f.byID[post.ID] = &copied
	return post, nil
}

func (f *fakePosts) ListByUser(ctx context.Context, userID string) ([]*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Post
	for _, post := range f.byID {
		if post.UserID == userID {
			copied := *post
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakePosts) ListBySource(ctx context.Context, userID string, sources []string) ([]*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Post
	for _, post := range f.byID {
		if post.UserID == userID && contains(sources, post.Source) {
			copied := *post
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakePosts) DeleteBySource(ctx context.Context, userID string, sources []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, post := range f.byID {
		if post.UserID == userID && contains(sources, post.Source) {
			delete(f.byID, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeFriendships struct {
	mu    sync.Mutex
	edges []*models.Friendship
}

func (f *fakeFriendships) Befriend(ctx context.Context, userID, friendID, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addLocked(userID, friendID, source)
	f.addLocked(friendID, userID, source)
	return nil
}

func (f *fakeFriendships) addLocked(userID, friendID, source string) {
	for _, edge := range f.edges {
		if edge.UserID == userID && edge.FriendID == friendID {
			return
		}
	}
	f.edges = append(f.edges, &models.Friendship{
		UserID:    userID,
		FriendID:  friendID,
		Source:    source,
		CreatedAt: time.Now(),
	})
}

func (f *fakeFriendships) Unfriend(ctx context.Context, userID, friendID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.edges[:0]
	for _, edge := range f.edges {
		pair := (edge.UserID == userID && edge.FriendID == friendID) ||
			(edge.UserID == friendID && edge.FriendID == userID)
		if !pair {
			kept = append(kept, edge)
		}
	}
	f.edges = kept
	return nil
}

func (f *fakeFriendships) DeleteBySource(ctx context.Context, userID, source string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	kept := f.edges[:0]
	for _, edge := range f.edges {
		touches := edge.UserID == userID || edge.FriendID == userID
		if touches && edge.Source == source {
			deleted++
			continue
		}
		kept = append(kept, edge)
	}
	f.edges = kept
	return deleted, nil
}

func (f *fakeFriendships) ListByUser(ctx context.Context, userID string) ([]*models.Friendship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Friendship
	for _, edge := range f.edges {
		if edge.UserID == userID {
			copied := *edge
			out = append(out, &copied)
		}
	}
	return out, nil
}

// hasEdge reports whether the directed edge exists.
func (f *fakeFriendships) hasEdge(userID, friendID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, edge := range f.edges {
		if edge.UserID == userID && edge.FriendID == friendID {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

// fakeAPI is a canned facebook.API with per-call error injection.
type fakeAPI struct {
	token   *facebook.Token
	profile *facebook.Profile
	friends []facebook.Friend
	posts   []facebook.PostItem
	photos  []facebook.PhotoItem

	friendsErr error
	postsErr   error
	photosErr  error

	// downloadFails maps URLs to a permanent download failure.
	downloadFails map[string]bool
}

func (f *fakeAPI) AuthURL(state string) string { return "http://auth?state=" + state }

func (f *fakeAPI) ExchangeCode(ctx context.Context, code string) (*facebook.Token, error) {
	if f.token == nil {
		return nil, common.ErrorUnauthorized
	}
	return f.token, nil
}

func (f *fakeAPI) Profile(ctx context.Context, accessToken string) (*facebook.Profile, error) {
	if f.profile == nil {
		return nil, common.ErrorNotFound
	}
	return f.profile, nil
}

func (f *fakeAPI) Friends(ctx context.Context, accessToken string) ([]facebook.Friend, error) {
	return f.friends, f.friendsErr
}

func (f *fakeAPI) Posts(ctx context.Context, accessToken string) ([]facebook.PostItem, error) {
	return f.posts, f.postsErr
}

func (f *fakeAPI) Photos(ctx context.Context, accessToken string) ([]facebook.PhotoItem, error) {
	return f.photos, f.photosErr
}

func (f *fakeAPI) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if f.downloadFails[rawURL] {
		return nil, "", common.ErrorInternal
	}
	return []byte("image-bytes"), "image/jpeg", nil
}

// fakeStore is an in-memory media.Store recording deletions.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	delErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Save(ctx context.Context, data []byte, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[filename] = data
	return filename, nil
}

func (f *fakeStore) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.objects, path)
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeStore) Exists(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok, nil
}
