// Package docstore defines the document store contract the core is written
// against: single-field queries, read-then-write transactions and query
// subscriptions that push the full result set on every change.
package docstore

import (
	"context"
	"errors"

	"pawfeed/internal/models"
)

// Collection names.
const (
	CollectionPosts    = "posts"
	CollectionComments = "comments"
	CollectionFollows  = "follows"
)

// Queryable and updatable post fields, named as they are stored.
const (
	FieldOwnerID        = "ownerId"
	FieldType           = "type"
	FieldOriginalPostID = "originalPostId"
	FieldDetectedBreed  = "detectedBreed"
	FieldHashtags       = "hashtags"
	FieldBehaviors      = "behaviors"
	FieldLikeCount      = "likeCount"
	FieldLikedBy        = "likedBy"
	FieldRepostCount    = "repostCount"
	FieldCommentCount   = "commentCount"
	FieldDeleted        = "deleted"
	FieldDeletedAt      = "deletedAt"
	FieldDeletedReason  = "deletedReason"
	FieldCreatedAt      = "createdAt"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrAlreadyExists is returned when creating a document whose id is taken.
	ErrAlreadyExists = errors.New("docstore: document already exists")
	// ErrConflict is returned when a transaction lost a race and was not committed.
	ErrConflict = errors.New("docstore: transaction conflict")
	// ErrUnavailable is returned for network or backend outages.
	ErrUnavailable = errors.New("docstore: store unavailable")
	// ErrUnsupportedQuery is returned for filters the store cannot serve without composite indexes.
	ErrUnsupportedQuery = errors.New("docstore: unsupported query")
)

// Op is a filter operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Filter is a single-field constraint.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects posts. Filters are ANDed; there are no range filters and at
// most one array-contains filter.
type Query struct {
	Filters     []Filter
	NewestFirst bool
	Limit       int
}

// Where returns a copy of q with an equality filter appended.
func (q Query) Where(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: OpEqual, Value: value})
	return q
}

// WhereContains returns a copy of q with an array-contains filter appended.
func (q Query) WhereContains(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: OpArrayContains, Value: value})
	return q
}

// Validate rejects queries outside the supported shape.
func (q Query) Validate() error {
	contains := 0
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual:
		case OpArrayContains:
			contains++
			if f.Field != FieldHashtags && f.Field != FieldBehaviors {
				return ErrUnsupportedQuery
			}
		default:
			return ErrUnsupportedQuery
		}
	}
	if contains > 1 || q.Limit < 0 {
		return ErrUnsupportedQuery
	}
	return nil
}

// Fields is a partial update keyed by stored field name.
type Fields map[string]any

// Tx is the read-then-write view of a transaction. All reads must happen
// before the first write.
type Tx interface {
	GetPost(id string) (*models.Post, error)
	CreatePost(post *models.Post) error
	SetPost(post *models.Post) error
	UpdatePost(id string, fields Fields) error
	DeletePost(id string) error

	GetComment(postID, commentID string) (*models.Comment, error)
	CreateComment(comment *models.Comment) error
	DeleteComment(postID, commentID string) error
}

// Subscription is a live query watch.
type Subscription interface {
	// Stop detaches the listener. No snapshot is delivered after Stop returns.
	Stop()
}

// SnapshotFunc receives the full result set of a watched query.
type SnapshotFunc func(posts []*models.Post)

// Store is the document store contract.
type Store interface {
	GetPost(ctx context.Context, id string) (*models.Post, error)
	CreatePost(ctx context.Context, post *models.Post) error
	SetPost(ctx context.Context, post *models.Post) error
	UpdatePost(ctx context.Context, id string, fields Fields) error
	DeletePost(ctx context.Context, id string) error
	FindPosts(ctx context.Context, q Query) ([]*models.Post, error)

	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	WatchPosts(ctx context.Context, q Query, fn SnapshotFunc) (Subscription, error)

	ListComments(ctx context.Context, postID string, limit int) ([]*models.Comment, error)
	DeleteComments(ctx context.Context, postID string) (int, error)

	Follow(ctx context.Context, followerID, followedID string) error
	Unfollow(ctx context.Context, followerID, followedID string) error
	ListFollowing(ctx context.Context, followerID string) ([]string, error)

	Close() error
}

// IsTransient reports whether err is worth a user-initiated retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
