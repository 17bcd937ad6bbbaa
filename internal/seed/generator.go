// Package seed provides demo content for development stores and the for-you
// fallback shown while a feed has nothing to display.
package seed

import (
	"fmt"
	"time"

	"pawfeed/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	hashtags = []string{
		"Zoomies", "sploot", "blep", "mlem", "derp", "boop", "caturday",
		"GoodBoy", "floof", "bork", "PetsOfPawfeed", "snoot",
	}
	behaviors = []string{
		"zoomies", "sploot", "blep", "head tilt", "loaf", "belly up",
		"tippy taps", "side eye", "keyboard nap", "box sitting",
	}
	overlays = [][2]string{
		{"when the treats hit", "different"},
		{"me at 3am", "zoomies time"},
		{"nobody:", "absolutely nobody:"},
		{"bath time?", "never heard of her"},
		{"sit", "no"},
	}
)

// Generator builds deterministic demo posts from a fixed seed.
type Generator struct {
	faker *gofakeit.Faker
	now   time.Time
	n     int
}

// NewGenerator returns a generator whose output depends only on seed and now.
func NewGenerator(seed int64, now time.Time) *Generator {
	return &Generator{faker: gofakeit.New(seed), now: now}
}

// Post builds an original post owned by ownerID. It is not persisted.
func (g *Generator) Post(ownerID string) *models.Post {
	f := g.faker
	g.n++

	petType, breed := "dog", f.Dog()
	if f.Bool() {
		petType, breed = "cat", f.Cat()
	}
	overlay := overlays[f.Number(0, len(overlays)-1)]

	p := &models.Post{
		OwnerID:         ownerID,
		Type:            models.PostTypeImage,
		MediaURL:        fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.UUID()),
		Caption:         f.Sentence(f.Number(4, 10)),
		TextOverlay:     &models.TextOverlay{Top: overlay[0], Bottom: overlay[1]},
		PetName:         f.PetName(),
		Hashtags:        pick(f, hashtags, f.Number(1, 3)),
		Behaviors:       pick(f, behaviors, f.Number(1, 3)),
		LikedBy:         []string{},
		DetectedBreed:   breed,
		DetectedPetType: petType,
		// Spread over the last three days, one step per generated post so
		// ordering stays stable.
		CreatedAt: g.now.Add(-time.Duration(f.Number(0, 72*60)) * time.Minute).Add(-time.Duration(g.n) * time.Second),
	}
	if f.Number(0, 4) == 0 {
		p.Type = models.PostTypeVideo
	}
	return p
}

// UserID returns a generated handle.
func (g *Generator) UserID() string {
	return g.faker.Username()
}

func pick(f *gofakeit.Faker, from []string, n int) []string {
	idx := make([]int, len(from))
	for i := range idx {
		idx[i] = i
	}
	f.ShuffleInts(idx)
	out := make([]string, 0, n)
	for _, i := range idx[:n] {
		out = append(out, from[i])
	}
	return out
}

// fallbackEpoch anchors fallback content so it is identical across restarts.
var fallbackEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// FallbackPosts returns n fixed demo originals with ids seed-1..seed-n. They
// never touch the store.
func FallbackPosts(n int) []*models.Post {
	g := NewGenerator(42, fallbackEpoch)
	out := make([]*models.Post, 0, n)
	for i := 1; i <= n; i++ {
		p := g.Post(fmt.Sprintf("seed-user-%d", (i-1)%5+1))
		p.ID = fmt.Sprintf("seed-%d", i)
		p.LikeCount = g.faker.Number(0, 250)
		p.CommentCount = g.faker.Number(0, 40)
		out = append(out, p)
	}
	return out
}
