package seed

import (
	"context"
	"testing"
	"time"

	"pawfeed/internal/database"
	"pawfeed/internal/docstore/sqlstore"
	"pawfeed/internal/models"
	"pawfeed/internal/repository"
	"pawfeed/internal/service"
	"pawfeed/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_IsDeterministic(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewGenerator(1, now).Post("alice")
	b := NewGenerator(1, now).Post("alice")
	assert.Equal(t, a, b)

	c := NewGenerator(2, now).Post("alice")
	assert.NotEqual(t, a.MediaURL, c.MediaURL)
}

func TestGenerator_PostShape(t *testing.T) {
	t.Parallel()
	now := time.Now()
	g := NewGenerator(3, now)
	for i := 0; i < 20; i++ {
		p := g.Post("alice")
		assert.True(t, models.IsOriginalContent(p))
		assert.NotEmpty(t, p.Hashtags)
		assert.NotEmpty(t, p.Behaviors)
		assert.Contains(t, []string{"dog", "cat"}, p.DetectedPetType)
		assert.NotEmpty(t, p.DetectedBreed)
		assert.False(t, p.CreatedAt.After(now))
		assert.True(t, p.CreatedAt.After(now.Add(-73*time.Hour)))
	}
}

func TestFallbackPosts(t *testing.T) {
	t.Parallel()
	posts := FallbackPosts(6)
	require.Len(t, posts, 6)
	assert.Equal(t, "seed-1", posts[0].ID)
	assert.Equal(t, "seed-6", posts[5].ID)
	for _, p := range posts {
		assert.True(t, models.IsOriginalContent(p))
	}
	assert.Equal(t, posts, FallbackPosts(6), "fallback content is stable")
}

func TestPopulate(t *testing.T) {
	t.Parallel()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	store := sqlstore.New(db, nil)
	require.NoError(t, store.AutoMigrate())
	t.Cleanup(func() { _ = store.Close() })

	posts := repository.NewPostRepository(store)
	deps := Deps{
		Posts:        posts,
		Interactions: service.NewInteractionService(store, posts, state.New("")),
		Follows:      repository.NewFollowRepository(store),
	}
	ctx := context.Background()

	sum, err := Populate(ctx, deps, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, sum.Users, 8)
	assert.Equal(t, 40, sum.Posts)
	assert.Positive(t, sum.Likes)
	assert.Positive(t, sum.Reposts)

	for _, user := range sum.Users {
		all, err := posts.ListAllByOwner(ctx, user)
		require.NoError(t, err)
		for _, p := range all {
			assert.Equal(t, len(p.LikedBy), p.LikeCount)
			if p.IsRepost() {
				continue
			}
			reposts, err := posts.RepostsOf(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, len(reposts), p.RepostCount)
		}
	}

	_, err = Populate(ctx, deps, Options{NumUsers: 1})
	assert.Error(t, err)
}
