package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	"pawfeed/internal/docstore"
	"pawfeed/internal/models"
	"pawfeed/internal/observability"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	Get(ctx context.Context, id string) (*models.Post, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*models.Post, error)
	ListAllByOwner(ctx context.Context, ownerID string) ([]*models.Post, error)
	RepostsOf(ctx context.Context, originalID string) ([]*models.Post, error)
	SoftDelete(ctx context.Context, id string) (*models.CascadeResult, error)
	HardDelete(ctx context.Context, id string) (*models.CascadeResult, error)
	Restore(ctx context.Context, id string) (*models.CascadeResult, error)
}

// postRepository implements PostRepository
type postRepository struct {
	store docstore.Store
	now   func() time.Time
	log   *observability.RepoLogger
}

// NewPostRepository creates a new post repository
func NewPostRepository(store docstore.Store) PostRepository {
	return &postRepository{
		store: store,
		now:   time.Now,
		log:   observability.NewRepoLogger(docstore.CollectionPosts),
	}
}

// Create stores a new original post. Reposts are created only by the
// interaction service.
func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if strings.TrimSpace(post.OwnerID) == "" {
		return models.NewValidationError("ownerId is required")
	}
	switch post.Type {
	case "":
		post.Type = models.PostTypeImage
	case models.PostTypeImage, models.PostTypeVideo:
	default:
		return models.NewValidationError("type must be image or video")
	}
	if !post.HasMedia() {
		return models.NewValidationError("a media url is required")
	}

	post.Hashtags = NormalizeTags(post.Hashtags)
	post.Behaviors = NormalizeTags(post.Behaviors)
	post.LikeCount, post.CommentCount, post.RepostCount = 0, 0, 0
	post.LikedBy = []string{}
	post.OriginalPostID, post.Original, post.Reposter = "", nil, nil
	post.Deleted, post.DeletedAt, post.DeletedReason = false, nil, ""

	if err := r.store.CreatePost(ctx, post); err != nil {
		return MapStoreError(err, "Post", post.ID)
	}
	r.log.LogWrite(ctx, "create", map[string]any{"post_id": post.ID, "owner_id": post.OwnerID})
	return nil
}

// Get returns the post including soft-deleted ones; visibility is the caller's call.
func (r *postRepository) Get(ctx context.Context, id string) (*models.Post, error) {
	post, err := r.store.GetPost(ctx, id)
	if err != nil {
		return nil, MapStoreError(err, "Post", id)
	}
	return post, nil
}

// ListAllByOwner returns every post of ownerID, reposts and deleted ones
// included, newest first.
func (r *postRepository) ListAllByOwner(ctx context.Context, ownerID string) ([]*models.Post, error) {
	// No ordering in the query: equality plus ordering on another field
	// would need a composite index.
	posts, err := r.store.FindPosts(ctx, docstore.Query{}.Where(docstore.FieldOwnerID, ownerID))
	if err != nil {
		return nil, MapStoreError(err, "Post", ownerID)
	}
	sortNewestFirst(posts)
	return posts, nil
}

// ListByOwner returns ownerID's visible original content, newest first.
func (r *postRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*models.Post, error) {
	all, err := r.ListAllByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Post, 0, len(all))
	for _, p := range all {
		if models.IsOriginalContent(p) {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RepostsOf returns every repost document referencing originalID, deleted ones included.
func (r *postRepository) RepostsOf(ctx context.Context, originalID string) ([]*models.Post, error) {
	q := docstore.Query{}.
		Where(docstore.FieldOriginalPostID, originalID).
		Where(docstore.FieldType, models.PostTypeRepost)
	posts, err := r.store.FindPosts(ctx, q)
	if err != nil {
		return nil, MapStoreError(err, "Post", originalID)
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].CreatedAt.Before(posts[j].CreatedAt) })
	return posts, nil
}

// SoftDelete hides the post and then cascades to its reposts with
// deletedReason=original_deleted. The cascade is best-effort: its failures
// are reported in the result and never returned as the error. Re-running
// completes an interrupted cascade.
func (r *postRepository) SoftDelete(ctx context.Context, id string) (*models.CascadeResult, error) {
	now := r.now().UTC()
	err := r.store.UpdatePost(ctx, id, docstore.Fields{
		docstore.FieldDeleted:   true,
		docstore.FieldDeletedAt: now,
	})
	if err != nil {
		return nil, MapStoreError(err, "Post", id)
	}
	r.log.LogWrite(ctx, "soft_delete", map[string]any{"post_id": id})

	return r.cascade(ctx, "soft_delete", id, func(p *models.Post) (bool, error) {
		if p.Deleted {
			return false, nil
		}
		return true, r.store.UpdatePost(ctx, p.ID, docstore.Fields{
			docstore.FieldDeleted:       true,
			docstore.FieldDeletedAt:     now,
			docstore.FieldDeletedReason: models.DeletedReasonOriginalDeleted,
		})
	}), nil
}

// Restore clears the deleted flag and restores the reposts that were hidden
// only because this post was deleted.
func (r *postRepository) Restore(ctx context.Context, id string) (*models.CascadeResult, error) {
	err := r.store.UpdatePost(ctx, id, docstore.Fields{
		docstore.FieldDeleted:       false,
		docstore.FieldDeletedAt:     nil,
		docstore.FieldDeletedReason: "",
	})
	if err != nil {
		return nil, MapStoreError(err, "Post", id)
	}
	r.log.LogWrite(ctx, "restore", map[string]any{"post_id": id})

	return r.cascade(ctx, "restore", id, func(p *models.Post) (bool, error) {
		if !p.Deleted || p.DeletedReason != models.DeletedReasonOriginalDeleted {
			return false, nil
		}
		return true, r.store.UpdatePost(ctx, p.ID, docstore.Fields{
			docstore.FieldDeleted:       false,
			docstore.FieldDeletedAt:     nil,
			docstore.FieldDeletedReason: "",
		})
	}), nil
}

// HardDelete permanently removes the post, its reposts and their comments.
// Deleting a repost document also decrements its original's repostCount in
// the same transaction.
func (r *postRepository) HardDelete(ctx context.Context, id string) (*models.CascadeResult, error) {
	post, err := r.store.GetPost(ctx, id)
	if err != nil {
		return nil, MapStoreError(err, "Post", id)
	}

	if post.IsRepost() {
		if err := DeleteRepostTx(ctx, r.store, post.OriginalPostID, post.ID); err != nil {
			return nil, MapStoreError(err, "Post", id)
		}
		r.purgeComments(ctx, id)
		r.log.LogWrite(ctx, "hard_delete", map[string]any{"post_id": id, "type": string(post.Type)})
		return &models.CascadeResult{PostID: id}, nil
	}

	if err := r.store.DeletePost(ctx, id); err != nil {
		return nil, MapStoreError(err, "Post", id)
	}
	r.purgeComments(ctx, id)
	r.log.LogWrite(ctx, "hard_delete", map[string]any{"post_id": id})

	return r.cascade(ctx, "hard_delete", id, func(p *models.Post) (bool, error) {
		if err := r.store.DeletePost(ctx, p.ID); err != nil {
			return true, err
		}
		r.purgeComments(ctx, p.ID)
		return true, nil
	}), nil
}

func (r *postRepository) purgeComments(ctx context.Context, postID string) {
	n, err := r.store.DeleteComments(ctx, postID)
	if err != nil {
		observability.CascadeFailures.WithLabelValues("purge_comments").Inc()
		r.log.LogError(ctx, err, "purge_comments", map[string]any{"post_id": postID})
		return
	}
	if n > 0 {
		r.log.LogCascade(ctx, "purge_comments", map[string]any{"post_id": postID, "deleted": n})
	}
}

// cascade applies step to every repost of originalID. step reports whether it
// acted on the repost.
func (r *postRepository) cascade(ctx context.Context, operation, originalID string, step func(p *models.Post) (bool, error)) *models.CascadeResult {
	result := &models.CascadeResult{PostID: originalID}

	reposts, err := r.RepostsOf(ctx, originalID)
	if err != nil {
		observability.CascadeFailures.WithLabelValues(operation).Inc()
		r.log.LogError(ctx, models.NewCascadeError(originalID, 0, err), operation, map[string]any{"post_id": originalID})
		result.Error = err.Error()
		return result
	}

	var lastErr error
	for _, p := range reposts {
		acted, err := step(p)
		if err != nil {
			lastErr = err
			result.Failed = append(result.Failed, p.ID)
			continue
		}
		if acted {
			result.Cascaded++
		}
	}

	if len(result.Failed) > 0 {
		observability.CascadeFailures.WithLabelValues(operation).Add(float64(len(result.Failed)))
		r.log.LogError(ctx, models.NewCascadeError(originalID, len(result.Failed), lastErr), operation, map[string]any{
			"post_id": originalID,
			"failed":  result.Failed,
		})
	}
	if result.Cascaded > 0 {
		r.log.LogCascade(ctx, operation, map[string]any{"post_id": originalID, "cascaded": result.Cascaded})
	}
	return result
}

// DeleteRepostTx deletes a repost document and decrements its original's
// repostCount (floor zero) in one transaction. A missing original only
// deletes the repost.
func DeleteRepostTx(ctx context.Context, store docstore.Store, originalID, repostID string) error {
	return store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.GetPost(repostID); err != nil {
			return err
		}
		original, err := tx.GetPost(originalID)
		if err != nil && !isNotFound(err) {
			return err
		}

		if err := tx.DeletePost(repostID); err != nil {
			return err
		}
		if original == nil {
			return nil
		}
		count := original.RepostCount - 1
		if count < 0 {
			count = 0
		}
		return tx.UpdatePost(originalID, docstore.Fields{docstore.FieldRepostCount: count})
	})
}

func sortNewestFirst(posts []*models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
}
