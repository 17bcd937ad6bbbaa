// Package state holds the application state owned by the composition root:
// the optimistic post mirror and the persisted per-viewer preferences.
package state

import (
	"sort"
	"sync"

	"pawfeed/internal/models"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMirrorSize bounds the number of mirrored posts.
const DefaultMirrorSize = 10000

// PostSnapshot is the locally mirrored interaction state of one post.
type PostSnapshot struct {
	PostID      string
	LikeCount   int
	RepostCount int
	LikedBy     map[string]bool
	RepostedBy  map[string]bool
	// Version changes on every Seed. Counters of a snapshot with a newer
	// version already reflect the store, including other callers' commits.
	Version uint64
}

func (s PostSnapshot) clone() PostSnapshot {
	out := s
	out.LikedBy = make(map[string]bool, len(s.LikedBy))
	for k, v := range s.LikedBy {
		out.LikedBy[k] = v
	}
	out.RepostedBy = make(map[string]bool, len(s.RepostedBy))
	for k, v := range s.RepostedBy {
		out.RepostedBy[k] = v
	}
	return out
}

// Liked reports whether viewerID likes the post in the mirror.
func (s PostSnapshot) Liked(viewerID string) bool {
	return s.LikedBy[viewerID]
}

// Reposted reports whether viewerID reposted the post in the mirror.
func (s PostSnapshot) Reposted(viewerID string) bool {
	return s.RepostedBy[viewerID]
}

// SetLiked moves viewerID's like to liked, adjusting the count only when the
// membership changes.
func (s *PostSnapshot) SetLiked(viewerID string, liked bool) {
	if s.LikedBy[viewerID] == liked {
		return
	}
	if liked {
		s.LikedBy[viewerID] = true
		s.LikeCount++
		return
	}
	delete(s.LikedBy, viewerID)
	if s.LikeCount > 0 {
		s.LikeCount--
	}
}

// SetReposted is SetLiked for reposts.
func (s *PostSnapshot) SetReposted(viewerID string, reposted bool) {
	if s.RepostedBy[viewerID] == reposted {
		return
	}
	if reposted {
		s.RepostedBy[viewerID] = true
		s.RepostCount++
		return
	}
	delete(s.RepostedBy, viewerID)
	if s.RepostCount > 0 {
		s.RepostCount--
	}
}

// Interaction renders the snapshot for one viewer.
func (s PostSnapshot) Interaction(viewerID string) *models.Interaction {
	return &models.Interaction{
		PostID:      s.PostID,
		LikeCount:   s.LikeCount,
		RepostCount: s.RepostCount,
		Liked:       s.Liked(viewerID),
		Reposted:    s.Reposted(viewerID),
	}
}

// LikedByList returns the mirrored likers sorted.
func (s PostSnapshot) LikedByList() []string {
	out := make([]string, 0, len(s.LikedBy))
	for id, ok := range s.LikedBy {
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Mirror is the optimistic local copy of post counters and memberships. It
// keeps the most recently used posts only; callers re-seed on a miss.
type Mirror struct {
	// mu makes read-modify-write sequences atomic; the cache is only
	// touched under it.
	mu    sync.Mutex
	posts *lru.Cache[string, PostSnapshot]
	seeds uint64
}

// NewMirror creates an empty mirror holding DefaultMirrorSize posts.
func NewMirror() *Mirror {
	return NewMirrorSize(DefaultMirrorSize)
}

// NewMirrorSize creates an empty mirror holding at most size posts.
func NewMirrorSize(size int) *Mirror {
	if size <= 0 {
		size = DefaultMirrorSize
	}
	cache, err := lru.New[string, PostSnapshot](size)
	if err != nil {
		panic(err)
	}
	return &Mirror{posts: cache}
}

// Len returns the number of mirrored posts.
func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posts.Len()
}

// Get returns a copy of the mirrored post.
func (m *Mirror) Get(postID string) (PostSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.posts.Get(postID)
	if !ok {
		return PostSnapshot{}, false
	}
	return s.clone(), true
}

// Seed records authoritative state for p. Known reposters are kept unless
// reposters is non-nil.
func (m *Mirror) Seed(p *models.Post, reposters []string) PostSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeds++

	s := PostSnapshot{
		Version:     m.seeds,
		PostID:      p.ID,
		LikeCount:   p.LikeCount,
		RepostCount: p.RepostCount,
		LikedBy:     make(map[string]bool, len(p.LikedBy)),
		RepostedBy:  make(map[string]bool),
	}
	for _, id := range p.LikedBy {
		s.LikedBy[id] = true
	}
	if reposters != nil {
		for _, id := range reposters {
			s.RepostedBy[id] = true
		}
	} else if prev, ok := m.posts.Peek(p.ID); ok {
		s.RepostedBy = prev.clone().RepostedBy
	}
	m.posts.Add(p.ID, s)
	return s.clone()
}

// Update applies fn to the mirrored post and returns the state after the
// change. The version is kept. It reports false when the post is not mirrored.
func (m *Mirror) Update(postID string, fn func(s *PostSnapshot)) (PostSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.posts.Get(postID)
	if !ok {
		return PostSnapshot{}, false
	}
	next := cur.clone()
	fn(&next)
	m.posts.Add(postID, next)
	return next.clone(), true
}

// Forget drops a post from the mirror.
func (m *Mirror) Forget(postID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts.Remove(postID)
}
