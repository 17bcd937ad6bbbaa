package models

import "time"

// Comment belongs to exactly one post (posts/{id}/comments).
type Comment struct {
	ID         string    `json:"id" firestore:"-"`
	PostID     string    `json:"postId" firestore:"postId"`
	AuthorID   string    `json:"authorId" firestore:"authorId"`
	AuthorName string    `json:"authorName,omitempty" firestore:"authorName,omitempty"`
	Text       string    `json:"text" firestore:"text"`
	LikeCount  int       `json:"likeCount" firestore:"likeCount"`
	CreatedAt  time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
}

// Follow is a directed edge follower -> followed.
type Follow struct {
	FollowerID string    `json:"followerId" firestore:"followerId"`
	FollowedID string    `json:"followedId" firestore:"followedId"`
	CreatedAt  time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
}

// FeedEntry is one consolidated item of the home feed. Reposts never appear as
// entries of their own; they bump and annotate their original instead.
type FeedEntry struct {
	Post        *Post      `json:"post"`
	RepostedBy  []Reposter `json:"repostedBy,omitempty"`
	WasReposted bool       `json:"wasReposted"`
	BoostTime   *time.Time `json:"boostTime,omitempty"`
	IsLiked     bool       `json:"isLiked"`
	IsReposted  bool       `json:"isReposted"`
	Seed        bool       `json:"seed,omitempty"`
}

// SortTime is boostTime when the entry was reposted, createdAt otherwise.
func (e FeedEntry) SortTime() time.Time {
	if e.BoostTime != nil {
		return *e.BoostTime
	}
	return e.Post.CreatedAt
}

// RankedPost wraps a discovery result with its ranking inputs instead of
// mixing score fields into Post.
type RankedPost struct {
	Post       *Post   `json:"post"`
	Score      float64 `json:"score"`
	MatchCount int     `json:"matchCount,omitempty"`
}

// CascadeResult reports the best-effort child step of a delete or restore.
type CascadeResult struct {
	PostID   string   `json:"postId"`
	Cascaded int      `json:"cascaded"`
	Failed   []string `json:"failed,omitempty"`
	// Error is set when the dependents could not even be listed.
	Error string `json:"error,omitempty"`
}

// Complete reports whether every dependent document was processed.
func (r *CascadeResult) Complete() bool {
	return r == nil || (len(r.Failed) == 0 && r.Error == "")
}

// Interaction is the viewer-facing state of a post after a like or repost call.
type Interaction struct {
	PostID      string `json:"postId"`
	LikeCount   int    `json:"likeCount"`
	RepostCount int    `json:"repostCount"`
	Liked       bool   `json:"liked"`
	Reposted    bool   `json:"reposted"`
}

// Result is returned by interaction operations instead of a bare error so
// callers can update UI state without unwrapping.
type Result struct {
	Success bool         `json:"success"`
	Error   *AppError    `json:"error,omitempty"`
	State   *Interaction `json:"state,omitempty"`
}

// Ok builds a successful Result.
func Ok(state *Interaction) Result {
	return Result{Success: true, State: state}
}

// Fail builds a failed Result carrying the rolled-back state, if any.
func Fail(err *AppError, state *Interaction) Result {
	return Result{Success: false, Error: err, State: state}
}

// Err returns the failure as an error value, or nil on success.
func (r Result) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}
