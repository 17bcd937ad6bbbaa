package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pawfeed/internal/models"
	"pawfeed/internal/observability"
	"pawfeed/internal/repository"
	"pawfeed/internal/service"
)

// Options configuration for the seeder
type Options struct {
	NumUsers   int
	NumPosts   int
	NumLikes   int
	NumReposts int
	NumFollows int
	Seed       int64
}

// DefaultOptions seeds a small but lively development store.
func DefaultOptions() Options {
	return Options{NumUsers: 8, NumPosts: 40, NumLikes: 120, NumReposts: 20, NumFollows: 16, Seed: 7}
}

// Summary counts what Populate wrote.
type Summary struct {
	Users   []string `json:"users"`
	Posts   int      `json:"posts"`
	Likes   int      `json:"likes"`
	Reposts int      `json:"reposts"`
	Follows int      `json:"follows"`
}

// Deps are the write paths Populate goes through, so seeded counters obey the
// same transactions as user traffic.
type Deps struct {
	Posts        repository.PostRepository
	Interactions *service.InteractionService
	Follows      repository.FollowRepository
}

// Populate writes demo users' posts, likes, reposts and follows.
func Populate(ctx context.Context, deps Deps, opts Options) (*Summary, error) {
	if opts.NumUsers < 2 {
		return nil, fmt.Errorf("seed: need at least 2 users, got %d", opts.NumUsers)
	}
	g := NewGenerator(opts.Seed, time.Now())
	f := g.faker
	sum := &Summary{}

	seen := make(map[string]bool)
	for len(sum.Users) < opts.NumUsers {
		id := g.UserID()
		if seen[id] {
			continue
		}
		seen[id] = true
		sum.Users = append(sum.Users, id)
	}
	randomUser := func() string { return sum.Users[f.Number(0, len(sum.Users)-1)] }

	posts := make([]*models.Post, 0, opts.NumPosts)
	for i := 0; i < opts.NumPosts; i++ {
		p := g.Post(randomUser())
		if err := deps.Posts.Create(ctx, p); err != nil {
			return sum, fmt.Errorf("seed post %d: %w", i, err)
		}
		posts = append(posts, p)
		sum.Posts++
	}
	if len(posts) == 0 {
		return sum, nil
	}
	randomPost := func() *models.Post { return posts[f.Number(0, len(posts)-1)] }

	for i := 0; i < opts.NumLikes; i++ {
		if res := deps.Interactions.ToggleLike(ctx, randomPost().ID, randomUser()); res.Success && res.State.Liked {
			sum.Likes++
		}
	}

	for i := 0; i < opts.NumReposts; i++ {
		p, who := randomPost(), randomUser()
		if p.OwnerID == who {
			continue
		}
		res := deps.Interactions.Repost(ctx, p.ID, models.Reposter{ID: who, DisplayName: who})
		if res.Success {
			sum.Reposts++
		} else if res.Error.Kind != models.KindAlreadyExists {
			return sum, fmt.Errorf("seed repost: %w", res.Error)
		}
	}

	for i := 0; i < opts.NumFollows; i++ {
		a, b := randomUser(), randomUser()
		if a == b {
			continue
		}
		if err := deps.Follows.Follow(ctx, a, b); err != nil {
			return sum, fmt.Errorf("seed follow: %w", err)
		}
		sum.Follows++
	}

	observability.Logger.InfoContext(ctx, "seed complete",
		slog.Int("users", len(sum.Users)),
		slog.Int("posts", sum.Posts),
		slog.Int("likes", sum.Likes),
		slog.Int("reposts", sum.Reposts),
		slog.Int("follows", sum.Follows),
	)
	return sum, nil
}
