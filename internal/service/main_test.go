package service

import (
	"context"
	"sync"
	"testing"

	"pawfeed/internal/database"
	"pawfeed/internal/docstore"
	"pawfeed/internal/docstore/sqlstore"
	"pawfeed/internal/featureflags"
	"pawfeed/internal/models"
	"pawfeed/internal/repository"
	"pawfeed/internal/state"

	"github.com/stretchr/testify/require"
)

// fixture wires the services over an in-memory SQLite store.
type fixture struct {
	store        docstore.Store
	app          *state.AppState
	posts        repository.PostRepository
	interactions *InteractionService
	postSvc      *PostService
	comments     *CommentService
	follows      *FollowService
	discovery    *DiscoveryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	store := sqlstore.New(db, nil)
	require.NoError(t, store.AutoMigrate())
	t.Cleanup(func() { _ = store.Close() })
	return newFixtureWith(t, store)
}

func newFixtureWith(t *testing.T, store docstore.Store) *fixture {
	t.Helper()
	app := state.New("")
	posts := repository.NewPostRepository(store)
	interactions := NewInteractionService(store, posts, app)
	moderators := map[string]bool{"mod": true}
	return &fixture{
		store:        store,
		app:          app,
		posts:        posts,
		interactions: interactions,
		postSvc:      NewPostService(posts, interactions, app, func(id string) bool { return moderators[id] }),
		comments:     NewCommentService(repository.NewCommentRepository(store)),
		follows:      NewFollowService(repository.NewFollowRepository(store), app),
		discovery:    NewDiscoveryService(store, nil, featureflags.NewManager("personalized_discovery=on"), app),
	}
}

func (f *fixture) createPost(t *testing.T, in CreatePostInput) *models.Post {
	t.Helper()
	if in.MediaURL == "" {
		in.MediaURL = "https://cdn.example/" + in.OwnerID + ".jpg"
	}
	p, err := f.postSvc.CreatePost(context.Background(), in)
	require.NoError(t, err)
	return p
}

func (f *fixture) get(t *testing.T, id string) *models.Post {
	t.Helper()
	p, err := f.posts.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

// failingTxStore fails every transaction with err.
type failingTxStore struct {
	docstore.Store
	err error
}

func (s *failingTxStore) RunTransaction(context.Context, func(context.Context, docstore.Tx) error) error {
	return s.err
}

// heldTxStore parks the first transaction until release is closed and then
// fails it with err. Later transactions run normally.
type heldTxStore struct {
	docstore.Store
	err     error
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newHeldTxStore(store docstore.Store, err error) *heldTxStore {
	return &heldTxStore{Store: store, err: err, entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *heldTxStore) RunTransaction(ctx context.Context, fn func(context.Context, docstore.Tx) error) error {
	held := false
	s.once.Do(func() { held = true })
	if !held {
		return s.Store.RunTransaction(ctx, fn)
	}
	close(s.entered)
	<-s.release
	return s.err
}

// blindPostRepo hides existing posts from the reposter pre-check scan.
type blindPostRepo struct {
	repository.PostRepository
}

func (blindPostRepo) ListAllByOwner(context.Context, string) ([]*models.Post, error) {
	return []*models.Post{}, nil
}
