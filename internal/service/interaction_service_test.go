package service

import (
	"context"
	"sync"
	"testing"

	"pawfeed/internal/docstore"
	"pawfeed/internal/models"
	"pawfeed/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleLike_TwiceIsANoOp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, CreatePostInput{OwnerID: "alice"})

	res := f.interactions.ToggleLike(ctx, p.ID, "bob")
	require.True(t, res.Success, "%v", res.Err())
	assert.True(t, res.State.Liked)
	assert.Equal(t, 1, res.State.LikeCount)

	stored := f.get(t, p.ID)
	assert.Equal(t, []string{"bob"}, stored.LikedBy)
	assert.Equal(t, 1, stored.LikeCount)

	res = f.interactions.ToggleLike(ctx, p.ID, "bob")
	require.True(t, res.Success, "%v", res.Err())
	assert.False(t, res.State.Liked)
	assert.Equal(t, 0, res.State.LikeCount)

	stored = f.get(t, p.ID)
	assert.Empty(t, stored.LikedBy)
	assert.Equal(t, 0, stored.LikeCount)
}

func TestToggleLike_CountMatchesLikedBy(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, CreatePostInput{OwnerID: "alice"})

	sequence := []string{"bob", "carol", "dave", "bob", "erin", "carol", "bob", "alice"}
	for _, viewer := range sequence {
		res := f.interactions.ToggleLike(ctx, p.ID, viewer)
		require.True(t, res.Success, "%v", res.Err())

		stored := f.get(t, p.ID)
		assert.Equal(t, len(stored.LikedBy), stored.LikeCount)
	}

	stored := f.get(t, p.ID)
	assert.ElementsMatch(t, []string{"bob", "dave", "erin", "alice"}, stored.LikedBy)
}

func TestToggleLike_ConcurrentViewersKeepCountConsistent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, CreatePostInput{OwnerID: "alice"})

	var wg sync.WaitGroup
	for _, viewer := range []string{"v1", "v2", "v3", "v4", "v5", "v6"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.interactions.ToggleLike(ctx, p.ID, viewer)
		}()
	}
	wg.Wait()

	stored := f.get(t, p.ID)
	assert.Equal(t, len(stored.LikedBy), stored.LikeCount)
}

func TestToggleLike_RollsBackOnFailure(t *testing.T) {
	t.Parallel()
	base := newFixture(t)
	p := base.createPost(t, CreatePostInput{OwnerID: "alice"})

	f := newFixtureWith(t, &failingTxStore{Store: base.store, err: docstore.ErrUnavailable})
	ctx := context.Background()

	res := f.interactions.ToggleLike(ctx, p.ID, "bob")
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, models.KindTransient, res.Error.Kind)
	assert.True(t, res.Error.Retryable())
	require.NotNil(t, res.State)
	assert.False(t, res.State.Liked, "state reflects the pre-toggle snapshot")
	assert.Equal(t, 0, res.State.LikeCount)

	snap, ok := f.app.Posts.Get(p.ID)
	require.True(t, ok)
	assert.False(t, snap.Liked("bob"))
	assert.Equal(t, 0, snap.LikeCount)

	assert.Equal(t, 0, base.get(t, p.ID).LikeCount)
}

func TestToggleLike_DecidesFromStoredLikes(t *testing.T) {
	t.Parallel()
	// Two processes share the store but each keeps its own mirror.
	first := newFixture(t)
	second := newFixtureWith(t, first.store)
	ctx := context.Background()
	p := first.createPost(t, CreatePostInput{OwnerID: "alice"})

	require.True(t, second.interactions.ToggleLike(ctx, p.ID, "carol").Success)
	require.True(t, first.interactions.ToggleLike(ctx, p.ID, "bob").Success)

	snap, ok := second.app.Posts.Get(p.ID)
	require.True(t, ok)
	require.False(t, snap.Liked("bob"), "the second mirror has not seen bob's like")

	res := second.interactions.ToggleLike(ctx, p.ID, "bob")
	require.True(t, res.Success, "%v", res.Err())
	assert.False(t, res.State.Liked, "the toggle unlikes what the store holds")
	assert.Equal(t, 1, res.State.LikeCount)

	stored := first.get(t, p.ID)
	assert.Equal(t, []string{"carol"}, stored.LikedBy)
	assert.Equal(t, 1, stored.LikeCount)
}

func TestToggleLike_RollbackKeepsOtherViewersChanges(t *testing.T) {
	t.Parallel()
	base := newFixture(t)
	p := base.createPost(t, CreatePostInput{OwnerID: "alice"})

	held := newHeldTxStore(base.store, docstore.ErrUnavailable)
	f := newFixtureWith(t, held)
	ctx := context.Background()

	bob := make(chan models.Result, 1)
	go func() { bob <- f.interactions.ToggleLike(ctx, p.ID, "bob") }()
	<-held.entered

	res := f.interactions.ToggleLike(ctx, p.ID, "carol")
	require.True(t, res.Success, "%v", res.Err())
	assert.True(t, res.State.Liked)

	close(held.release)
	failed := <-bob
	assert.False(t, failed.Success)
	require.NotNil(t, failed.State)
	assert.False(t, failed.State.Liked)
	assert.Equal(t, 1, failed.State.LikeCount, "carol's like survives bob's rollback")

	snap, ok := f.app.Posts.Get(p.ID)
	require.True(t, ok)
	assert.True(t, snap.Liked("carol"))
	assert.False(t, snap.Liked("bob"))

	res = f.interactions.ToggleLike(ctx, p.ID, "carol")
	require.True(t, res.Success, "%v", res.Err())
	assert.False(t, res.State.Liked, "carol can unlike")
	assert.Empty(t, base.get(t, p.ID).LikedBy)
}

func TestRepost_RollbackKeepsOtherReposters(t *testing.T) {
	t.Parallel()
	base := newFixture(t)
	orig := base.createPost(t, CreatePostInput{OwnerID: "alice"})

	held := newHeldTxStore(base.store, docstore.ErrConflict)
	f := newFixtureWith(t, held)
	ctx := context.Background()

	carol := make(chan models.Result, 1)
	go func() { carol <- f.interactions.Repost(ctx, orig.ID, models.Reposter{ID: "carol"}) }()
	<-held.entered

	res := f.interactions.Repost(ctx, orig.ID, models.Reposter{ID: "dave"})
	require.True(t, res.Success, "%v", res.Err())

	close(held.release)
	failed := <-carol
	assert.False(t, failed.Success)
	assert.False(t, failed.State.Reposted)
	assert.Equal(t, 1, failed.State.RepostCount)

	snap, ok := f.app.Posts.Get(orig.ID)
	require.True(t, ok)
	assert.True(t, snap.Reposted("dave"))
	assert.False(t, snap.Reposted("carol"))
	assert.Equal(t, 1, base.get(t, orig.ID).RepostCount)
}

func TestToggleLike_Failures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, CreatePostInput{OwnerID: "alice"})
	gone := f.createPost(t, CreatePostInput{OwnerID: "alice"})
	_, err := f.posts.SoftDelete(ctx, gone.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		postID string
		viewer string
		kind   models.ErrorKind
	}{
		{"anonymous", p.ID, "", models.KindUnauthorized},
		{"missing post", "missing", "bob", models.KindNotFound},
		{"deleted post", gone.ID, "bob", models.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.interactions.ToggleLike(ctx, tt.postID, tt.viewer)
			assert.False(t, res.Success)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.kind, res.Error.Kind)
		})
	}
}

func TestToggleLike_DeletedAfterMirrorSeededRollsBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, CreatePostInput{OwnerID: "alice"})

	require.True(t, f.interactions.ToggleLike(ctx, p.ID, "bob").Success)
	_, err := f.posts.SoftDelete(ctx, p.ID)
	require.NoError(t, err)

	res := f.interactions.ToggleLike(ctx, p.ID, "carol")
	assert.Equal(t, models.KindNotFound, res.Error.Kind)

	snap, _ := f.app.Posts.Get(p.ID)
	assert.Equal(t, 1, snap.LikeCount)
	assert.False(t, snap.Liked("carol"))
}

func TestRepost_CreatesDocumentAndCounterTogether(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	orig := f.createPost(t, CreatePostInput{
		OwnerID:     "alice",
		Caption:     "when the treats hit",
		PetName:     "Biscuit",
		TextOverlay: &models.TextOverlay{Top: "me", Bottom: "also me"},
	})

	res := f.interactions.Repost(ctx, orig.ID, models.Reposter{ID: "carol", DisplayName: "Carol"})
	require.True(t, res.Success, "%v", res.Err())
	assert.True(t, res.State.Reposted)
	assert.Equal(t, 1, res.State.RepostCount)

	repost := f.get(t, RepostID("carol", orig.ID))
	assert.Equal(t, models.PostTypeRepost, repost.Type)
	assert.Equal(t, orig.ID, repost.OriginalPostID)
	assert.Equal(t, "carol", repost.OwnerID)
	require.NotNil(t, repost.Original)
	assert.Equal(t, "alice", repost.Original.OwnerID)
	assert.Equal(t, "when the treats hit", repost.Original.Caption)
	require.NotNil(t, repost.Original.TextOverlay)
	assert.Equal(t, "also me", repost.Original.TextOverlay.Bottom)
	assert.Equal(t, "Carol", repost.Reposter.DisplayName)
	assert.Zero(t, repost.LikeCount)
	assert.Zero(t, repost.RepostCount)

	assert.Equal(t, 1, f.get(t, orig.ID).RepostCount)
	assert.True(t, f.interactions.Reposted(ctx, orig.ID, "carol"))
	assert.False(t, f.interactions.Reposted(ctx, orig.ID, "dave"))
}

func TestRepost_OwnPostHasNoSideEffects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	orig := f.createPost(t, CreatePostInput{OwnerID: "alice"})

	res := f.interactions.Repost(ctx, orig.ID, models.Reposter{ID: "alice"})
	assert.False(t, res.Success)
	assert.Equal(t, models.CodeCannotRepostOwn, res.Error.Code)
	assert.Equal(t, models.KindUnauthorized, res.Error.Kind)

	assert.Equal(t, 0, f.get(t, orig.ID).RepostCount)
	reposts, err := f.posts.RepostsOf(ctx, orig.ID)
	require.NoError(t, err)
	assert.Empty(t, reposts)
	_, mirrored := f.app.Posts.Get(orig.ID)
	assert.False(t, mirrored, "the mirror is not touched")
}

func TestRepost_Twice(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	orig := f.createPost(t, CreatePostInput{OwnerID: "alice"})

	require.True(t, f.interactions.Repost(ctx, orig.ID, models.Reposter{ID: "carol"}).Success)
	res := f.interactions.Repost(ctx, orig.ID, models.Reposter{ID: "carol"})
	assert.False(t, res.Success)
	assert.Equal(t, models.CodeAlreadyReposted, res.Error.Code)
	assert.Equal(t, 1, f.get(t, orig.ID).RepostCount)
}

func TestRepost_DuplicateCaughtInsideTransaction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	orig := f.createPost(t, CreatePostInput{OwnerID: "alice"})

	// Both calls pass the pre-check scan, as two racing requests would.
	blind := NewInteractionService(f.store, blindPostRepo{f.posts}, state.New(""))
	require.True(t, blind.Repost(ctx, orig.ID, models.Reposter{ID: "carol"}).Success)

	res := blind.Repost(ctx, orig.ID, models.Reposter{ID: "carol"})
	assert.False(t, res.Success)
	assert.Equal(t, models.CodeAlreadyReposted, res.Error.Code)

	reposts, err := f.posts.RepostsOf(ctx, orig.ID)
	require.NoError(t, err)
	assert.Len(t, reposts, 1)
	assert.Equal(t, 1, f.get(t, orig.ID).RepostCount)
}

func TestRepost_ConcurrentDuplicates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	orig := f.createPost(t, CreatePostInput{OwnerID: "alice"})

	results := make([]models.Result, 6)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.interactions.Repost(ctx, orig.ID, models.Reposter{ID: "carol"})
		}()
	}
	wg.Wait()

	successes := 0
	for _, r := range results {
		if r.Success {
			successes++
			continue
		}
		assert.Contains(t, []models.ErrorKind{models.KindAlreadyExists, models.KindTransient}, r.Error.Kind)
	}
	assert.Equal(t, 1, successes)

	reposts, err := f.posts.RepostsOf(ctx, orig.ID)
	require.NoError(t, err)
	assert.Len(t, reposts, 1)
	assert.Equal(t, 1, f.get(t, orig.ID).RepostCount)
}

func TestRepost_OfARepostTargetsTheOriginal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	orig := f.createPost(t, CreatePostInput{OwnerID: "alice"})
	require.True(t, f.interactions.Repost(ctx, orig.ID, models.Reposter{ID: "carol"}).Success)

	res := f.interactions.Repost(ctx, RepostID("carol", orig.ID), models.Reposter{ID: "dave"})
	require.True(t, res.Success, "%v", res.Err())
	assert.Equal(t, orig.ID, res.State.PostID)
	assert.Equal(t, orig.ID, f.get(t, RepostID("dave", orig.ID)).OriginalPostID)
	assert.Equal(t, 2, f.get(t, orig.ID).RepostCount)

	// Reposting someone's repost of your own post is still a self-repost.
	res = f.interactions.Repost(ctx, RepostID("carol", orig.ID), models.Reposter{ID: "alice"})
	assert.Equal(t, models.CodeCannotRepostOwn, res.Error.Code)
}

func TestRepost_Failures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	gone := f.createPost(t, CreatePostInput{OwnerID: "alice"})
	_, err := f.posts.SoftDelete(ctx, gone.ID)
	require.NoError(t, err)

	res := f.interactions.Repost(ctx, "missing", models.Reposter{ID: "carol"})
	assert.Equal(t, models.KindNotFound, res.Error.Kind)
	res = f.interactions.Repost(ctx, gone.ID, models.Reposter{ID: "carol"})
	assert.Equal(t, models.KindNotFound, res.Error.Kind)
	res = f.interactions.Repost(ctx, gone.ID, models.Reposter{})
	assert.Equal(t, models.KindUnauthorized, res.Error.Kind)
}

func TestRepost_RollsBackOnFailure(t *testing.T) {
	t.Parallel()
	base := newFixture(t)
	orig := base.createPost(t, CreatePostInput{OwnerID: "alice"})

	f := newFixtureWith(t, &failingTxStore{Store: base.store, err: docstore.ErrConflict})
	res := f.interactions.Repost(context.Background(), orig.ID, models.Reposter{ID: "carol"})
	assert.False(t, res.Success)
	assert.Equal(t, models.KindTransient, res.Error.Kind)
	assert.False(t, res.State.Reposted)
	assert.Equal(t, 0, res.State.RepostCount)

	snap, ok := f.app.Posts.Get(orig.ID)
	require.True(t, ok)
	assert.False(t, snap.Reposted("carol"))
	assert.Equal(t, 0, snap.RepostCount)
}

func TestUndoRepost(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	orig := f.createPost(t, CreatePostInput{OwnerID: "alice"})
	require.True(t, f.interactions.Repost(ctx, orig.ID, models.Reposter{ID: "carol"}).Success)

	res := f.interactions.UndoRepost(ctx, orig.ID, "carol")
	require.True(t, res.Success, "%v", res.Err())
	assert.False(t, res.State.Reposted)
	assert.Equal(t, 0, res.State.RepostCount)

	_, err := f.posts.Get(ctx, RepostID("carol", orig.ID))
	assert.True(t, models.IsKind(err, models.KindNotFound))
	assert.Equal(t, 0, f.get(t, orig.ID).RepostCount)

	res = f.interactions.UndoRepost(ctx, orig.ID, "carol")
	assert.Equal(t, models.KindNotFound, res.Error.Kind)

	// Reposting again after an undo works.
	require.True(t, f.interactions.Repost(ctx, orig.ID, models.Reposter{ID: "carol"}).Success)
	assert.Equal(t, 1, f.get(t, orig.ID).RepostCount)
}

func TestUndoRepost_FindsRepostsUnderOtherIDs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	orig := f.createPost(t, CreatePostInput{OwnerID: "alice"})

	legacy := &models.Post{
		OwnerID:        "carol",
		Type:           models.PostTypeRepost,
		OriginalPostID: orig.ID,
		Original:       orig.Snapshot(),
	}
	err := f.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		o, err := tx.GetPost(orig.ID)
		if err != nil {
			return err
		}
		if err := tx.CreatePost(legacy); err != nil {
			return err
		}
		return tx.UpdatePost(o.ID, docstore.Fields{docstore.FieldRepostCount: o.RepostCount + 1})
	})
	require.NoError(t, err)

	res := f.interactions.UndoRepost(ctx, orig.ID, "carol")
	require.True(t, res.Success, "%v", res.Err())
	_, err = f.posts.Get(ctx, legacy.ID)
	assert.True(t, models.IsKind(err, models.KindNotFound))
	assert.Equal(t, 0, f.get(t, orig.ID).RepostCount)
}

func TestRepostCountMatchesRepostDocuments(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	orig := f.createPost(t, CreatePostInput{OwnerID: "alice"})

	steps := []struct {
		who  string
		undo bool
	}{
		{"bob", false}, {"carol", false}, {"dave", false}, {"carol", true},
		{"erin", false}, {"bob", true}, {"carol", false}, {"bob", true},
	}
	for _, step := range steps {
		if step.undo {
			f.interactions.UndoRepost(ctx, orig.ID, step.who)
		} else {
			f.interactions.Repost(ctx, orig.ID, models.Reposter{ID: step.who})
		}
		reposts, err := f.posts.RepostsOf(ctx, orig.ID)
		require.NoError(t, err)
		assert.Equal(t, len(reposts), f.get(t, orig.ID).RepostCount)
	}
}

func TestSetMembership(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      []string
		id      string
		present bool
		want    []string
		changed bool
	}{
		{"add", []string{"a"}, "b", true, []string{"a", "b"}, true},
		{"add existing", []string{"a", "b"}, "b", true, []string{"a", "b"}, false},
		{"remove", []string{"a", "b"}, "a", false, []string{"b"}, true},
		{"remove missing", []string{"a"}, "z", false, []string{"a"}, false},
		{"collapses duplicates", []string{"a", "a"}, "a", true, []string{"a"}, true},
		{"nil input", nil, "a", true, []string{"a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, changed := setMembership(tt.in, tt.id, tt.present)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}
