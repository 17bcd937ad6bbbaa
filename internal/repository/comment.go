package repository

import (
	"context"
	"strings"
	"unicode/utf8"

	"pawfeed/internal/docstore"
	"pawfeed/internal/models"
	"pawfeed/internal/observability"
)

// MaxCommentLength bounds comment text.
const MaxCommentLength = 2000

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	Add(ctx context.Context, comment *models.Comment) error
	Delete(ctx context.Context, postID, commentID, requesterID string) error
	List(ctx context.Context, postID string, limit int) ([]*models.Comment, error)
}

type commentRepository struct {
	store docstore.Store
	log   *observability.RepoLogger
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(store docstore.Store) CommentRepository {
	return &commentRepository{store: store, log: observability.NewRepoLogger(docstore.CollectionComments)}
}

// Add creates the comment and increments the post's commentCount in one
// transaction. Deleted posts cannot be commented on.
func (r *commentRepository) Add(ctx context.Context, comment *models.Comment) error {
	comment.Text = strings.TrimSpace(comment.Text)
	switch {
	case comment.AuthorID == "":
		return models.NewValidationError("authorId is required")
	case comment.Text == "":
		return models.NewValidationError("comment text is required")
	case utf8.RuneCountInString(comment.Text) > MaxCommentLength:
		return models.NewValidationError("comment text is too long")
	}

	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		post, err := tx.GetPost(comment.PostID)
		if err != nil {
			return err
		}
		if post.Deleted {
			return models.NewNotFoundError("Post", comment.PostID)
		}
		if err := tx.CreateComment(comment); err != nil {
			return err
		}
		return tx.UpdatePost(post.ID, docstore.Fields{docstore.FieldCommentCount: post.CommentCount + 1})
	})
	if err != nil {
		return MapStoreError(err, "Post", comment.PostID)
	}
	r.log.LogWrite(ctx, "create", map[string]any{"post_id": comment.PostID, "comment_id": comment.ID})
	return nil
}

// Delete removes a comment owned by requesterID and decrements the post's
// commentCount (floor zero) in the same transaction.
func (r *commentRepository) Delete(ctx context.Context, postID, commentID, requesterID string) error {
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		post, err := tx.GetPost(postID)
		if err != nil {
			return err
		}
		comment, err := tx.GetComment(postID, commentID)
		if err != nil {
			if isNotFound(err) {
				return models.NewNotFoundError("Comment", commentID)
			}
			return err
		}
		if comment.AuthorID != requesterID {
			return models.NewUnauthorizedError("You can only delete your own comments")
		}

		if err := tx.DeleteComment(postID, commentID); err != nil {
			return err
		}
		count := post.CommentCount - 1
		if count < 0 {
			count = 0
		}
		return tx.UpdatePost(postID, docstore.Fields{docstore.FieldCommentCount: count})
	})
	if err != nil {
		return MapStoreError(err, "Post", postID)
	}
	r.log.LogWrite(ctx, "delete", map[string]any{"post_id": postID, "comment_id": commentID})
	return nil
}

// List returns the newest comments of a post.
func (r *commentRepository) List(ctx context.Context, postID string, limit int) ([]*models.Comment, error) {
	comments, err := r.store.ListComments(ctx, postID, limit)
	if err != nil {
		return nil, MapStoreError(err, "Post", postID)
	}
	return comments, nil
}
