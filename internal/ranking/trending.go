// Package ranking computes the recency-decayed trending score used by
// discovery.
package ranking

import (
	"math"
	"sort"
	"time"

	"pawfeed/internal/models"
)

// Floor is the minimum age used in the decay term, so brand-new posts do not
// divide by zero or dominate on a single like.
const Floor = 30 * time.Minute

// Engagement weights.
const (
	LikeWeight    = 1.0
	RepostWeight  = 2.0
	CommentWeight = 1.5
)

// Engagement returns likeCount + 2*repostCount + 1.5*commentCount.
func Engagement(p *models.Post) float64 {
	return LikeWeight*float64(p.LikeCount) +
		RepostWeight*float64(p.RepostCount) +
		CommentWeight*float64(p.CommentCount)
}

// AgeHours returns the post age in hours at now, clamped to Floor.
func AgeHours(p *models.Post, now time.Time) float64 {
	age := now.Sub(p.CreatedAt)
	if age < Floor {
		age = Floor
	}
	return age.Hours()
}

// Score returns engagement / sqrt(age in hours). It is recomputed on every
// read and never stored.
func Score(p *models.Post, now time.Time) float64 {
	return Engagement(p) / math.Sqrt(AgeHours(p, now))
}

// Rank scores posts and sorts them by score descending; ties go to the newer
// post, then to the smaller id.
func Rank(posts []*models.Post, now time.Time) []models.RankedPost {
	out := make([]models.RankedPost, 0, len(posts))
	for _, p := range posts {
		out = append(out, models.RankedPost{Post: p, Score: Score(p, now)})
	}
	SortRanked(out)
	return out
}

// SortRanked orders ranked posts by score descending with the Rank tie-breaks.
func SortRanked(ranked []models.RankedPost) {
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Post.CreatedAt.Equal(b.Post.CreatedAt) {
			return a.Post.CreatedAt.After(b.Post.CreatedAt)
		}
		return a.Post.ID < b.Post.ID
	})
}

// Top truncates ranked to at most n entries. n <= 0 keeps everything.
func Top(ranked []models.RankedPost, n int) []models.RankedPost {
	if n > 0 && len(ranked) > n {
		return ranked[:n]
	}
	return ranked
}
