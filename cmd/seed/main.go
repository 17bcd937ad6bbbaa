// Command main seeds the configured document store with demo pets.
package main

import (
	"context"
	"flag"
	"log"

	"pawfeed/internal/bootstrap"
	"pawfeed/internal/config"
	"pawfeed/internal/seed"
	"pawfeed/internal/state"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.NumUsers, "Number of users to create")
	numPosts := flag.Int("posts", defaults.NumPosts, "Number of posts to create")
	numLikes := flag.Int("likes", defaults.NumLikes, "Number of likes to toggle")
	numReposts := flag.Int("reposts", defaults.NumReposts, "Number of reposts to create")
	numFollows := flag.Int("follows", defaults.NumFollows, "Number of follow edges to create")
	rngSeed := flag.Int64("seed", defaults.Seed, "Random seed for generated content")
	flag.Parse()

	log.Println("🐾 Pawfeed Seeder")
	log.Println("=================")
	log.Printf("Target: %d users, %d posts, %d likes, %d reposts, %d follows\n",
		*numUsers, *numPosts, *numLikes, *numReposts, *numFollows)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() { _ = rt.Close() }()

	svc := bootstrap.NewServices(rt, state.New(""))
	defer svc.Feeds.Close()

	sum, err := seed.Populate(ctx, seed.Deps{
		Posts:        svc.Posts,
		Interactions: svc.Interactions,
		Follows:      svc.FollowRepo,
	}, seed.Options{
		NumUsers:   *numUsers,
		NumPosts:   *numPosts,
		NumLikes:   *numLikes,
		NumReposts: *numReposts,
		NumFollows: *numFollows,
		Seed:       *rngSeed,
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ All done! %d posts, %d likes, %d reposts, %d follows\n", sum.Posts, sum.Likes, sum.Reposts, sum.Follows)
	log.Printf("👤 Seeded users: %v\n", sum.Users)
}
