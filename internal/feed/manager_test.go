package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pawfeed/internal/database"
	"pawfeed/internal/docstore"
	"pawfeed/internal/docstore/sqlstore"
	"pawfeed/internal/featureflags"
	"pawfeed/internal/models"
	"pawfeed/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) publish(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}, false
	}
	return r.snaps[len(r.snaps)-1], true
}

func (r *recorder) waitFor(t *testing.T, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var got Snapshot
	require.Eventually(t, func() bool {
		s, ok := r.last()
		if ok && cond(s) {
			got = s
			return true
		}
		return false
	}, wait, 5*time.Millisecond)
	return got
}

type staticFollows struct {
	mu  sync.Mutex
	ids map[string][]string
}

func (f *staticFollows) Following(_ context.Context, followerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids[followerID]...), nil
}

func (f *staticFollows) set(followerID string, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[followerID] = ids
}

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	var tick atomic.Int64
	clock := func() time.Time { return t0.Add(time.Duration(tick.Add(1)) * time.Minute) }
	s := sqlstore.New(db, notifications.NewBus(nil), sqlstore.WithClock(clock))
	require.NoError(t, s.AutoMigrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newManager(t *testing.T, s *sqlstore.Store, follows FollowingSource, cfg Config) *Manager {
	t.Helper()
	if follows == nil {
		follows = &staticFollows{ids: map[string][]string{}}
	}
	m := NewManager(s, follows, cfg)
	t.Cleanup(m.Close)
	return m
}

func create(t *testing.T, s *sqlstore.Store, p *models.Post) *models.Post {
	t.Helper()
	require.NoError(t, s.CreatePost(context.Background(), p))
	return p
}

func seedPosts(n int) []*models.Post {
	out := make([]*models.Post, 0, n)
	for i := 0; i < n && i < 2; i++ {
		out = append(out, original("seed-"+string(rune('a'+i)), "seed-user", time.Duration(i)*time.Minute))
	}
	return out
}

func TestManager_PublishesConsolidatedFeed(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	m := newManager(t, s, nil, Config{})
	ctx := context.Background()

	o := create(t, s, &models.Post{OwnerID: "owner", Type: models.PostTypeImage, MediaURL: "u"})
	create(t, s, &models.Post{OwnerID: "a", Type: models.PostTypeRepost, OriginalPostID: o.ID, Reposter: &models.Reposter{ID: "a"}})
	r2 := create(t, s, &models.Post{OwnerID: "b", Type: models.PostTypeRepost, OriginalPostID: o.ID, Reposter: &models.Reposter{ID: "b"}})

	rec := &recorder{}
	sub, err := m.Subscribe(ctx, Request{ViewerID: "a", Tab: TabForYou}, rec.publish)
	require.NoError(t, err)

	snap := rec.waitFor(t, func(s Snapshot) bool { return len(s.Entries) == 1 })
	e := snap.Entries[0]
	assert.Equal(t, o.ID, e.Post.ID)
	assert.Equal(t, []models.Reposter{{ID: "a"}, {ID: "b"}}, e.RepostedBy)
	require.NotNil(t, e.BoostTime)
	assert.True(t, e.BoostTime.Equal(r2.CreatedAt))
	assert.True(t, e.IsReposted)
	assert.False(t, snap.Seed)
	assert.Equal(t, StatePublished, sub.State())

	n := create(t, s, &models.Post{OwnerID: "owner", Type: models.PostTypeImage, MediaURL: "u2"})
	snap = rec.waitFor(t, func(s Snapshot) bool { return len(s.Entries) == 2 })
	assert.Equal(t, []string{n.ID, o.ID}, entryIDs(snap.Entries))

	require.NoError(t, s.UpdatePost(ctx, n.ID, docstore.Fields{docstore.FieldDeleted: true}))
	snap = rec.waitFor(t, func(s Snapshot) bool { return len(s.Entries) == 1 })
	assert.Equal(t, []string{o.ID}, entryIDs(snap.Entries))

	var prev uint64
	rec.mu.Lock()
	for _, s := range rec.snaps {
		assert.Greater(t, s.Seq, prev)
		prev = s.Seq
	}
	rec.mu.Unlock()
}

func TestManager_FetchesOriginalsOutsideWindow(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	m := newManager(t, s, nil, Config{Window: 2})

	old := create(t, s, &models.Post{OwnerID: "owner", Type: models.PostTypeImage, MediaURL: "u"})
	create(t, s, &models.Post{OwnerID: "owner", Type: models.PostTypeImage, MediaURL: "u2"})
	create(t, s, &models.Post{OwnerID: "owner", Type: models.PostTypeImage, MediaURL: "u3"})
	create(t, s, &models.Post{OwnerID: "a", Type: models.PostTypeRepost, OriginalPostID: old.ID, Reposter: &models.Reposter{ID: "a"}})

	rec := &recorder{}
	_, err := m.Subscribe(context.Background(), Request{ViewerID: "v"}, rec.publish)
	require.NoError(t, err)

	snap := rec.waitFor(t, func(s Snapshot) bool { return len(s.Entries) == 2 })
	assert.Equal(t, old.ID, snap.Entries[0].Post.ID, "the repost pulls its original in")
	assert.Equal(t, TabForYou, snap.Tab)
}

func TestManager_FollowingTabWithNobodyFollowedIsEmpty(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	follows := &staticFollows{ids: map[string][]string{}}
	m := newManager(t, s, follows, Config{Seed: seedPosts, LoadTimeout: 10 * time.Millisecond})

	create(t, s, &models.Post{OwnerID: "friend", Type: models.PostTypeImage, MediaURL: "u"})
	create(t, s, &models.Post{OwnerID: "stranger", Type: models.PostTypeImage, MediaURL: "u"})

	rec := &recorder{}
	_, err := m.Subscribe(context.Background(), Request{ViewerID: "v", Tab: TabFollowing}, rec.publish)
	require.NoError(t, err)

	snap := rec.waitFor(t, func(Snapshot) bool { return true })
	assert.Empty(t, snap.Entries)
	assert.NotNil(t, snap.Entries)
	assert.Never(t, func() bool {
		s, _ := rec.last()
		return s.Seed
	}, 100*time.Millisecond, 10*time.Millisecond, "the following tab never falls back to seed content")

	follows.set("v", "friend")
	m.FollowingChanged("v")
	snap = rec.waitFor(t, func(s Snapshot) bool { return len(s.Entries) == 1 })
	assert.Equal(t, "friend", snap.Entries[0].Post.OwnerID)
	require.NotNil(t, m.Active("v"))
	assert.Equal(t, TabFollowing, m.Active("v").Tab())
}

func TestManager_SeedFallbackAfterTimeout(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	m := newManager(t, s, nil, Config{Seed: seedPosts, LoadTimeout: 20 * time.Millisecond})

	rec := &recorder{}
	_, err := m.Subscribe(context.Background(), Request{ViewerID: "v", Tab: TabForYou}, rec.publish)
	require.NoError(t, err)

	snap := rec.waitFor(t, func(s Snapshot) bool { return s.Seed })
	require.Len(t, snap.Entries, 2)
	for _, e := range snap.Entries {
		assert.True(t, e.Seed)
	}

	p := create(t, s, &models.Post{OwnerID: "owner", Type: models.PostTypeImage, MediaURL: "u"})
	snap = rec.waitFor(t, func(s Snapshot) bool { return !s.Seed && len(s.Entries) == 1 })
	assert.Equal(t, p.ID, snap.Entries[0].Post.ID)
	assert.False(t, snap.Entries[0].Seed)
}

func TestManager_SeedFallbackRespectsFlag(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	flags := featureflags.NewManager("feed_seed_fallback=off")
	m := newManager(t, s, nil, Config{Seed: seedPosts, LoadTimeout: 10 * time.Millisecond, Flags: flags})

	rec := &recorder{}
	_, err := m.Subscribe(context.Background(), Request{ViewerID: "v"}, rec.publish)
	require.NoError(t, err)

	rec.waitFor(t, func(Snapshot) bool { return true })
	assert.Never(t, func() bool {
		s, _ := rec.last()
		return s.Seed
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestManager_ResubscribeTearsDownPrevious(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	m := newManager(t, s, nil, Config{})
	ctx := context.Background()
	create(t, s, &models.Post{OwnerID: "owner", Type: models.PostTypeImage, MediaURL: "u"})

	first := &recorder{}
	old, err := m.Subscribe(ctx, Request{ViewerID: "v", Tab: TabForYou}, first.publish)
	require.NoError(t, err)
	first.waitFor(t, func(s Snapshot) bool { return len(s.Entries) == 1 })

	second := &recorder{}
	sub, err := m.Subscribe(ctx, Request{ViewerID: "v", Tab: TabFollowing}, second.publish)
	require.NoError(t, err)
	assert.Equal(t, StateUnsubscribed, old.State())
	assert.Same(t, sub, m.Active("v"))
	frozen := first.count()

	create(t, s, &models.Post{OwnerID: "owner", Type: models.PostTypeImage, MediaURL: "u2"})
	create(t, s, &models.Post{OwnerID: "owner", Type: models.PostTypeImage, MediaURL: "u3"})
	second.waitFor(t, func(Snapshot) bool { return true })
	assert.Never(t, func() bool { return first.count() != frozen }, 100*time.Millisecond, 10*time.Millisecond)

	sub.Stop()
	assert.Nil(t, m.Active("v"))
	assert.Equal(t, StateUnsubscribed, sub.State())
	sub.Stop()
}

func TestManager_AnonymousKeysAndClose(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	m := NewManager(s, &staticFollows{ids: map[string][]string{}}, Config{})
	ctx := context.Background()

	_, err := m.Subscribe(ctx, Request{}, func(Snapshot) {})
	assert.True(t, models.IsKind(err, models.KindValidation))

	a, b := &recorder{}, &recorder{}
	subA, err := m.Subscribe(ctx, Request{Key: "anon-1"}, a.publish)
	require.NoError(t, err)
	subB, err := m.Subscribe(ctx, Request{Key: "anon-2"}, b.publish)
	require.NoError(t, err)
	a.waitFor(t, func(Snapshot) bool { return true })
	b.waitFor(t, func(Snapshot) bool { return true })

	m.Close()
	assert.Equal(t, StateUnsubscribed, subA.State())
	assert.Equal(t, StateUnsubscribed, subB.State())
	_, err = m.Subscribe(ctx, Request{Key: "anon-3"}, func(Snapshot) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_StopReachesFollowingReplacement(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	follows := &staticFollows{ids: map[string][]string{}}
	m := newManager(t, s, follows, Config{})

	rec := &recorder{}
	handle, err := m.Subscribe(context.Background(), Request{ViewerID: "v", Tab: TabFollowing}, rec.publish)
	require.NoError(t, err)
	rec.waitFor(t, func(Snapshot) bool { return true })

	follows.set("v", "friend")
	m.FollowingChanged("v")
	replacement := m.Active("v")
	require.NotNil(t, replacement)
	assert.NotSame(t, handle, replacement)

	handle.Stop()
	assert.Nil(t, m.Active("v"))
	assert.Equal(t, StateUnsubscribed, replacement.State())
}
