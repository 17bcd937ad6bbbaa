package service

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"pawfeed/internal/cache"
	"pawfeed/internal/docstore"
	"pawfeed/internal/featureflags"
	"pawfeed/internal/models"
	"pawfeed/internal/observability"
	"pawfeed/internal/ranking"
	"pawfeed/internal/repository"
	"pawfeed/internal/state"

	"golang.org/x/sync/errgroup"
)

const (
	// maxVariants bounds the casing/prefix variants queried per term.
	maxVariants = 5
	// maxPersonalizedTags bounds the per-tag query fan-out.
	maxPersonalizedTags = 5
	// matchWeight is added to the trending score per matched behavior tag.
	matchWeight = 10.0
	// trendingWindow is how many recent posts trending ranks over.
	trendingWindow = 200
)

const (
	defaultDiscoveryLimit = 20
	maxDiscoveryLimit     = 100
)

// Discovery entry points.
const (
	EntryTrending     = "trending"
	EntryHashtag      = "hashtag"
	EntryBreed        = "breed"
	EntryBehavior     = "behavior"
	EntryPersonalized = "personalized"
)

// DiscoveryService answers top-N discovery queries. Every entry point is built
// from single-field queries whose results are unioned by id, filtered to
// visible original content and ranked.
type DiscoveryService struct {
	store    docstore.Store
	cache    *cache.Cache
	flags    *featureflags.Manager
	app      *state.AppState
	cacheTTL time.Duration
	fanout   int
	now      func() time.Time
}

type DiscoveryOption func(*DiscoveryService)

// WithCacheTTL sets how long trending results are cached.
func WithCacheTTL(ttl time.Duration) DiscoveryOption {
	return func(s *DiscoveryService) { s.cacheTTL = ttl }
}

// WithFanout bounds the number of concurrent store queries per call.
func WithFanout(n int) DiscoveryOption {
	return func(s *DiscoveryService) {
		if n > 0 {
			s.fanout = n
		}
	}
}

// WithDiscoveryClock overrides the ranking clock.
func WithDiscoveryClock(now func() time.Time) DiscoveryOption {
	return func(s *DiscoveryService) { s.now = now }
}

func NewDiscoveryService(store docstore.Store, c *cache.Cache, flags *featureflags.Manager, app *state.AppState, opts ...DiscoveryOption) *DiscoveryService {
	s := &DiscoveryService{
		store:    store,
		cache:    c,
		flags:    flags,
		app:      app,
		cacheTTL: cache.TrendingTTL,
		fanout:   4,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trending ranks recent visible originals by trending score.
func (s *DiscoveryService) Trending(ctx context.Context, limit int) ([]models.RankedPost, error) {
	observability.DiscoveryQueries.WithLabelValues(EntryTrending).Inc()
	limit = clampLimit(limit)

	var out []models.RankedPost
	err := s.cache.Aside(ctx, cache.TrendingKey(limit), &out, s.cacheTTL, func() error {
		posts, err := s.store.FindPosts(ctx, docstore.Query{NewestFirst: true, Limit: trendingWindow})
		if err != nil {
			return repository.MapStoreError(err, "Post", EntryTrending)
		}
		out = ranking.Top(ranking.Rank(originalContent(posts), s.now()), limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.RankedPost{}
	}
	return out, nil
}

// InvalidateTrending drops every cached trending list so removed or restored
// posts show up correctly on the next read.
func (s *DiscoveryService) InvalidateTrending(ctx context.Context) {
	keys := make([]string, 0, maxDiscoveryLimit)
	for limit := 1; limit <= maxDiscoveryLimit; limit++ {
		keys = append(keys, cache.TrendingKey(limit))
	}
	s.cache.Invalidate(ctx, keys...)
}

// ByHashtag unions the casing and '#'-prefix variants of tag.
func (s *DiscoveryService) ByHashtag(ctx context.Context, tag string, limit int) ([]models.RankedPost, error) {
	observability.DiscoveryQueries.WithLabelValues(EntryHashtag).Inc()
	return s.byTerm(ctx, docstore.FieldHashtags, docstore.OpArrayContains, TermVariants(tag, true), tag, limit)
}

// ByBreed unions the casing variants of breed over detectedBreed.
func (s *DiscoveryService) ByBreed(ctx context.Context, breed string, limit int) ([]models.RankedPost, error) {
	observability.DiscoveryQueries.WithLabelValues(EntryBreed).Inc()
	return s.byTerm(ctx, docstore.FieldDetectedBreed, docstore.OpEqual, TermVariants(breed, false), breed, limit)
}

// ByBehavior unions the casing variants of behavior over the behaviors tags.
func (s *DiscoveryService) ByBehavior(ctx context.Context, behavior string, limit int) ([]models.RankedPost, error) {
	observability.DiscoveryQueries.WithLabelValues(EntryBehavior).Inc()
	return s.byTerm(ctx, docstore.FieldBehaviors, docstore.OpArrayContains, TermVariants(behavior, false), behavior, limit)
}

type PersonalizedInput struct {
	ViewerID string
	// Behaviors overrides the behavior tags from the viewer's pet profile.
	Behaviors []string
	Limit     int
}

// Personalized ranks posts matching the viewer's behavior tags by
// matchCount*10 + trending score. Viewers without tags, or without the
// personalized_discovery flag, get trending.
func (s *DiscoveryService) Personalized(ctx context.Context, in PersonalizedInput) ([]models.RankedPost, error) {
	if !s.flags.Enabled(featureflags.PersonalizedDiscovery, in.ViewerID) {
		return s.Trending(ctx, in.Limit)
	}
	tags := in.Behaviors
	if tags == nil && in.ViewerID != "" {
		tags = s.app.Preferences(in.ViewerID).PetProfile.Behaviors
	}
	tags = repository.NormalizeTags(tags)
	if len(tags) == 0 {
		return s.Trending(ctx, in.Limit)
	}
	if len(tags) > maxPersonalizedTags {
		tags = tags[:maxPersonalizedTags]
	}

	observability.DiscoveryQueries.WithLabelValues(EntryPersonalized).Inc()
	filters := make([]docstore.Filter, 0, len(tags))
	for _, t := range tags {
		filters = append(filters, docstore.Filter{Field: docstore.FieldBehaviors, Op: docstore.OpArrayContains, Value: t})
	}
	posts, err := s.union(ctx, filters)
	if err != nil {
		return nil, repository.MapStoreError(err, "Post", EntryPersonalized)
	}

	now := s.now()
	ranked := make([]models.RankedPost, 0, len(posts))
	for _, p := range originalContent(posts) {
		matches := 0
		for _, t := range tags {
			if models.HasTag(p.Behaviors, t) {
				matches++
			}
		}
		ranked = append(ranked, models.RankedPost{
			Post:       p,
			Score:      float64(matches)*matchWeight + ranking.Score(p, now),
			MatchCount: matches,
		})
	}
	ranking.SortRanked(ranked)
	return ranking.Top(ranked, clampLimit(in.Limit)), nil
}

func (s *DiscoveryService) byTerm(ctx context.Context, field string, op docstore.Op, variants []string, term string, limit int) ([]models.RankedPost, error) {
	if len(variants) == 0 {
		return nil, models.NewValidationError("search term is required")
	}
	filters := make([]docstore.Filter, 0, len(variants))
	for _, v := range variants {
		filters = append(filters, docstore.Filter{Field: field, Op: op, Value: v})
	}
	posts, err := s.union(ctx, filters)
	if err != nil {
		return nil, repository.MapStoreError(err, "Post", term)
	}
	return ranking.Top(ranking.Rank(originalContent(posts), s.now()), clampLimit(limit)), nil
}

// union runs one single-filter query per filter concurrently and merges the
// results by id.
func (s *DiscoveryService) union(ctx context.Context, filters []docstore.Filter) ([]*models.Post, error) {
	results := make([][]*models.Post, len(filters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)
	for i, f := range filters {
		g.Go(func() error {
			posts, err := s.store.FindPosts(gctx, docstore.Query{Filters: []docstore.Filter{f}})
			if err != nil {
				return err
			}
			results[i] = posts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []*models.Post
	for _, posts := range results {
		for _, p := range posts {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// TermVariants returns up to five spellings of term to query a
// case-sensitive store with: as given, lower, capitalized, title-cased words
// and upper. withHash adds a '#'-prefixed form for tags stored with it.
func TermVariants(term string, withHash bool) []string {
	t := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(term), "#"))
	if t == "" {
		return nil
	}
	lower := strings.ToLower(t)
	candidates := []string{t, lower, capitalize(lower)}
	if withHash {
		candidates = append(candidates, "#"+lower)
	}
	candidates = append(candidates, titleWords(lower), strings.ToUpper(t))

	out := make([]string, 0, maxVariants)
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) == maxVariants {
			break
		}
	}
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func originalContent(posts []*models.Post) []*models.Post {
	out := make([]*models.Post, 0, len(posts))
	for _, p := range posts {
		if models.IsOriginalContent(p) {
			out = append(out, p)
		}
	}
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultDiscoveryLimit
	}
	if limit > maxDiscoveryLimit {
		return maxDiscoveryLimit
	}
	return limit
}
