package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fellis.eu/internal/cryptox"
	"fellis.eu/internal/facebook"
	"fellis.eu/internal/ids"
	"fellis.eu/internal/models"
	"fellis.eu/internal/obs"
)

type importFixture struct {
	svc   *ImportService
	rm    *fakeRepoManager
	api   *fakeAPI
	store *fakeStore
}

func newImportFixture(t *testing.T) *importFixture {
	t.Helper()
	rm := newFakeRepoManager()
	api := &fakeAPI{downloadFails: make(map[string]bool)}
	store := newFakeStore()
	log := testLogger()
	auditSvc := NewAuditService(nil, rm, log)
	vault := cryptox.NewVault("")

	return &importFixture{
		svc:   NewImportService(nil, rm, api, store, vault, auditSvc, log),
		rm:    rm,
		api:   api,
		store: store,
	}
}

func (f *importFixture) addUser(t *testing.T, externalID string) *models.User {
	t.Helper()
	user := &models.User{ID: ids.New(), Email: externalID + "@example.com", ExternalAccountID: externalID}
	if externalID != "" {
		user.ExternalToken = "plain-token"
	}
	_, err := f.rm.users.Create(context.Background(), user)
	require.NoError(t, err)
	return user
}

func TestImportAll_NoLinkedAccount(t *testing.T) {
	f := newImportFixture(t)
	user := &models.User{ID: ids.New()}
	_, err := f.rm.users.Create(context.Background(), user)
	require.NoError(t, err)

	_, err = f.svc.ImportAll(context.Background(), user.ID)
	assert.Error(t, err)
}

func TestImportAll_FriendsOnlyExistingLocalUsers(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	importer := f.addUser(t, "fb-importer")
	local := f.addUser(t, "fb-local")

	f.api.friends = []facebook.Friend{
		{ID: "fb-local", Name: "Has Account"},
		{ID: "fb-stranger-1", Name: "No Account"},
		{ID: "fb-stranger-2", Name: "No Account Either"},
	}

	summary, err := f.svc.ImportAll(ctx, importer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Friends)

	// Both directions exist; strangers got nothing, not even a placeholder.
	assert.True(t, f.rm.friendships.hasEdge(importer.ID, local.ID))
	assert.True(t, f.rm.friendships.hasEdge(local.ID, importer.ID))
	assert.Len(t, f.rm.users.byID, 2)

	updated, err := f.rm.users.FindByID(ctx, importer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.FriendCount)
	assert.NotNil(t, updated.LastImportAt)
}

func TestImportAll_NoPlaceholderUsers(t *testing.T) {
	f := newImportFixture(t)
	importer := f.addUser(t, "fb-importer")

	f.api.friends = []facebook.Friend{
		{ID: "fb-a"}, {ID: "fb-b"}, {ID: "fb-c"},
	}

	summary, err := f.svc.ImportAll(context.Background(), importer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Friends)
	assert.Empty(t, f.rm.friendships.edges)

	updated, err := f.rm.users.FindByID(context.Background(), importer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.FriendCount)
}

func TestImportAll_FriendLookupFailureIsCounted(t *testing.T) {
	f := newImportFixture(t)
	importer := f.addUser(t, "fb-importer")

	f.api.friends = []facebook.Friend{{ID: "fb-anyone"}}
	f.rm.users.externalLookupErr = assert.AnError

	before := testutil.ToFloat64(obs.ImportFailures.WithLabelValues("friends"))

	summary, err := f.svc.ImportAll(context.Background(), importer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Friends)
	assert.Empty(t, f.rm.friendships.edges)

	// A database failure during the lookup is not a missing account; it is
	// counted as a failed item instead of vanishing.
	after := testutil.ToFloat64(obs.ImportFailures.WithLabelValues("friends"))
	assert.Equal(t, before+1, after)
}

func TestImportAll_FriendCountOverwrites(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	importer := f.addUser(t, "fb-importer")
	require.NoError(t, f.rm.users.SetFriendCount(ctx, importer.ID, 7))

	local := f.addUser(t, "fb-local")
	f.api.friends = []facebook.Friend{{ID: local.ExternalAccountID}}

	_, err := f.svc.ImportAll(ctx, importer.ID)
	require.NoError(t, err)

	updated, err := f.rm.users.FindByID(ctx, importer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.FriendCount, "import sets the counter to the imported count")
}

func TestImportAll_PostsSkipEmptyAndTagSource(t *testing.T) {
	f := newImportFixture(t)
	importer := f.addUser(t, "fb-importer")

	f.api.posts = []facebook.PostItem{
		{ID: "p1", Message: "first"},
		{ID: "p2", Message: "   "},
		{ID: "p3", Message: "third", FullPicture: "http://img/p3.jpg"},
	}

	summary, err := f.svc.ImportAll(context.Background(), importer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Posts)

	posts, err := f.rm.posts.ListByUser(context.Background(), importer.ID)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	for _, post := range posts {
		assert.Equal(t, models.SourceExternalPost, post.Source)
	}
}

func TestImportAll_PostImageFailureKeepsPost(t *testing.T) {
	f := newImportFixture(t)
	importer := f.addUser(t, "fb-importer")

	f.api.posts = []facebook.PostItem{
		{ID: "p1", Message: "one", FullPicture: "http://img/1.jpg"},
		{ID: "p2", Message: "two", FullPicture: "http://img/2.jpg"},
		{ID: "p3", Message: "three", FullPicture: "http://img/3.jpg"},
		{ID: "p4", Message: "four", FullPicture: "http://img/4.jpg"},
		{ID: "p5", Message: "five", FullPicture: "http://img/5.jpg"},
	}
	f.api.downloadFails["http://img/3.jpg"] = true

	summary, err := f.svc.ImportAll(context.Background(), importer.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Posts, "image failure drops the attachment, not the post")

	posts, err := f.rm.posts.ListByUser(context.Background(), importer.ID)
	require.NoError(t, err)
	withMedia := 0
	for _, post := range posts {
		if post.MediaPath != nil {
			withMedia++
		}
	}
	assert.Equal(t, 4, withMedia)
}

func TestImportAll_PhotosIncrementCounter(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	importer := f.addUser(t, "fb-importer")
	require.NoError(t, f.rm.users.IncrementPhotoCount(ctx, importer.ID, 3))

	f.api.photos = []facebook.PhotoItem{
		{ID: "ph1", Caption: "sunset", Source: "http://img/ph1.jpg"},
		{ID: "ph2", Caption: "no url"},
		{ID: "ph3", Caption: "broken", Source: "http://img/ph3.jpg"},
	}
	f.api.downloadFails["http://img/ph3.jpg"] = true

	summary, err := f.svc.ImportAll(ctx, importer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Photos)

	updated, err := f.rm.users.FindByID(ctx, importer.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.PhotoCount, "photo counter increments, it does not overwrite")

	posts, err := f.rm.posts.ListBySource(ctx, importer.ID, []string{models.SourceExternalPhoto})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "sunset", posts[0].Body)
	require.NotNil(t, posts[0].MediaPath)

	saved, err := f.store.Exists(ctx, *posts[0].MediaPath)
	require.NoError(t, err)
	assert.True(t, saved)
}

func TestImportAll_StepFailureIsIndependent(t *testing.T) {
	f := newImportFixture(t)
	importer := f.addUser(t, "fb-importer")

	f.api.friendsErr = assert.AnError
	f.api.posts = []facebook.PostItem{{ID: "p1", Message: "still works"}}

	summary, err := f.svc.ImportAll(context.Background(), importer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Friends)
	assert.Equal(t, 1, summary.Posts)
}

func TestImportAll_WritesAuditSummary(t *testing.T) {
	f := newImportFixture(t)
	importer := f.addUser(t, "fb-importer")

	f.api.posts = []facebook.PostItem{{ID: "p1", Message: "hello"}}

	_, err := f.svc.ImportAll(context.Background(), importer.ID)
	require.NoError(t, err)

	entries := f.rm.audit.byAction(actionImportCompleted)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Details["posts_imported"])
}

func TestImportAll_DecryptsStoredToken(t *testing.T) {
	rm := newFakeRepoManager()
	api := &fakeAPI{downloadFails: make(map[string]bool)}
	store := newFakeStore()
	log := testLogger()
	vault := cryptox.NewVault("vault-secret")
	svc := NewImportService(nil, rm, api, store, vault, NewAuditService(nil, rm, log), log)

	encrypted, err := vault.Encrypt("the-real-token")
	require.NoError(t, err)

	user := &models.User{ID: ids.New(), ExternalAccountID: "fb-1", ExternalToken: encrypted}
	_, err = rm.users.Create(context.Background(), user)
	require.NoError(t, err)

	start := time.Now()
	_, err = svc.ImportAll(context.Background(), user.ID)
	require.NoError(t, err)

	updated, err := rm.users.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastImportAt)
	assert.False(t, updated.LastImportAt.Before(start))
}
