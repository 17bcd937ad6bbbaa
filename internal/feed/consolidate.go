// Package feed builds the consolidated home feed and keeps it live for each
// subscribed viewer.
package feed

import (
	"context"
	"sort"
	"time"

	"pawfeed/internal/models"
)

// Tab selects which posts a feed shows.
type Tab string

const (
	TabForYou    Tab = "for_you"
	TabFollowing Tab = "following"
)

// ParseTab maps a query value to a Tab, defaulting to for-you.
func ParseTab(s string) Tab {
	switch Tab(s) {
	case TabFollowing, "following_tab":
		return TabFollowing
	default:
		return TabForYou
	}
}

// Fetcher loads a single post by id.
type Fetcher func(ctx context.Context, id string) (*models.Post, error)

// View is the viewer context of one consolidation.
type View struct {
	ViewerID string
	Tab      Tab
	// Following is the viewer's following set; only used on the following tab.
	Following map[string]bool
}

type repostGroup struct {
	reposters []models.Reposter
	seen      map[string]bool
	latest    time.Time
}

// Consolidate turns a window of raw posts into feed entries. Reposts never
// appear on their own: they bump their original to the latest repost time and
// list their reposters on it. Originals missing from the window are loaded
// through fetch; ones that no longer exist or are deleted are skipped.
func Consolidate(ctx context.Context, window []*models.Post, view View, fetch Fetcher) []models.FeedEntry {
	visible := make([]*models.Post, 0, len(window))
	for _, p := range window {
		if !models.IsVisible(p) {
			continue
		}
		if view.Tab == TabFollowing && !view.Following[p.OwnerID] {
			continue
		}
		visible = append(visible, p)
	}
	if view.Tab == TabFollowing && len(view.Following) == 0 {
		return []models.FeedEntry{}
	}

	var originals []*models.Post
	var reposts []*models.Post
	for _, p := range visible {
		if p.IsRepost() {
			if p.OriginalPostID != "" {
				reposts = append(reposts, p)
			}
			continue
		}
		originals = append(originals, p)
	}

	groups := groupReposts(reposts)

	entries := make([]models.FeedEntry, 0, len(originals)+len(groups))
	present := make(map[string]bool, len(originals))
	for _, p := range originals {
		if present[p.ID] {
			continue
		}
		present[p.ID] = true
		entries = append(entries, entry(p, groups[p.ID], view.ViewerID))
	}

	missing := make([]string, 0, len(groups))
	for id := range groups {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	for _, id := range missing {
		if fetch == nil || ctx.Err() != nil {
			break
		}
		p, err := fetch(ctx, id)
		if err != nil || !models.IsVisible(p) || p.IsRepost() {
			continue
		}
		entries = append(entries, entry(p, groups[id], view.ViewerID))
	}

	SortEntries(entries)
	return entries
}

// groupReposts collects distinct reposters per original in repost-time order
// and the latest repost time.
func groupReposts(reposts []*models.Post) map[string]*repostGroup {
	sorted := append([]*models.Post(nil), reposts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	groups := make(map[string]*repostGroup)
	for _, r := range sorted {
		g, ok := groups[r.OriginalPostID]
		if !ok {
			g = &repostGroup{seen: make(map[string]bool)}
			groups[r.OriginalPostID] = g
		}
		who := reposterOf(r)
		if !g.seen[who.ID] {
			g.seen[who.ID] = true
			g.reposters = append(g.reposters, who)
		}
		if r.CreatedAt.After(g.latest) {
			g.latest = r.CreatedAt
		}
	}
	return groups
}

func reposterOf(r *models.Post) models.Reposter {
	if r.Reposter != nil && r.Reposter.ID != "" {
		return *r.Reposter
	}
	return models.Reposter{ID: r.OwnerID}
}

func entry(p *models.Post, g *repostGroup, viewerID string) models.FeedEntry {
	e := models.FeedEntry{
		Post:    p,
		IsLiked: models.HasLiked(p, viewerID),
	}
	if g == nil {
		return e
	}
	boost := g.latest
	e.RepostedBy = g.reposters
	e.WasReposted = true
	e.BoostTime = &boost
	e.IsReposted = viewerID != "" && g.seen[viewerID]
	return e
}

// SortEntries orders entries by boostTime, else createdAt, newest first.
func SortEntries(entries []models.FeedEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].SortTime(), entries[j].SortTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].Post.ID < entries[j].Post.ID
	})
}

// SeedEntries marks fallback posts as seed entries.
func SeedEntries(posts []*models.Post, viewerID string) []models.FeedEntry {
	entries := make([]models.FeedEntry, 0, len(posts))
	for _, p := range posts {
		e := entry(p, nil, viewerID)
		e.Seed = true
		entries = append(entries, e)
	}
	SortEntries(entries)
	return entries
}
