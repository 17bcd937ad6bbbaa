// Package service holds the business logic between the HTTP layer and the repositories.
package service

import (
	"context"
	"strings"

	"pawfeed/internal/models"
	"pawfeed/internal/repository"
	"pawfeed/internal/state"
	"pawfeed/internal/validation"
)

type PostService struct {
	postRepo     repository.PostRepository
	interactions *InteractionService
	mirror       *state.Mirror
	isModerator  func(viewerID string) bool
	onVisibility func(ctx context.Context)
}

type CreatePostInput struct {
	OwnerID         string
	Type            models.PostType
	MediaURL        string
	MediaURLs       []string
	Caption         string
	TextOverlay     *models.TextOverlay
	PetName         string
	Hashtags        []string
	Behaviors       []string
	DetectedBreed   string
	DetectedPetType string
}

type DeletePostInput struct {
	RequesterID string
	PostID      string
}

func NewPostService(
	postRepo repository.PostRepository,
	interactions *InteractionService,
	app *state.AppState,
	isModerator func(viewerID string) bool,
) *PostService {
	if isModerator == nil {
		isModerator = func(string) bool { return false }
	}
	return &PostService{
		postRepo:     postRepo,
		interactions: interactions,
		mirror:       app.Posts,
		isModerator:  isModerator,
	}
}

// OnVisibilityChange registers fn to run after a post is deleted or restored.
func (s *PostService) OnVisibilityChange(fn func(ctx context.Context)) {
	s.onVisibility = fn
}

func (s *PostService) visibilityChanged(ctx context.Context) {
	if s.onVisibility != nil {
		s.onVisibility(ctx)
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if in.OwnerID == "" {
		return nil, models.NewUnauthorizedError("Sign in to post")
	}
	if err := validation.ValidateCaption(in.Caption); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateHashtags(in.Hashtags); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateBehaviors(in.Behaviors); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.Type == models.PostTypeRepost {
		return nil, models.NewValidationError("Use the repost endpoint to repost")
	}
	if err := validation.ValidateMediaURL(in.MediaURL); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateMediaURLs(in.MediaURLs); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	post := &models.Post{
		OwnerID:         in.OwnerID,
		Type:            in.Type,
		MediaURL:        strings.TrimSpace(in.MediaURL),
		MediaURLs:       in.MediaURLs,
		Caption:         strings.TrimSpace(in.Caption),
		TextOverlay:     in.TextOverlay,
		PetName:         strings.TrimSpace(in.PetName),
		Hashtags:        in.Hashtags,
		Behaviors:       in.Behaviors,
		DetectedBreed:   strings.TrimSpace(in.DetectedBreed),
		DetectedPetType: strings.TrimSpace(in.DetectedPetType),
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// GetPost returns a visible post; deleted posts read as not found.
func (s *PostService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.postRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Deleted {
		return nil, models.NewNotFoundError("Post", id)
	}
	return post, nil
}

// ListUserPosts returns ownerID's original content, newest first.
func (s *PostService) ListUserPosts(ctx context.Context, ownerID string, limit int) ([]*models.Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.postRepo.ListByOwner(ctx, ownerID, limit)
}

// DeletePost soft-deletes an original owned by the requester. Deleting one's
// own repost undoes it so the original's repostCount stays in step.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) (*models.CascadeResult, error) {
	post, err := s.GetPost(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if post.OwnerID != in.RequesterID {
		return nil, models.NewUnauthorizedError("You can only delete your own posts")
	}

	if post.IsRepost() {
		if res := s.interactions.UndoRepost(ctx, post.OriginalPostID, in.RequesterID); !res.Success {
			return nil, res.Err()
		}
		return &models.CascadeResult{PostID: post.ID}, nil
	}

	result, err := s.postRepo.SoftDelete(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	s.mirror.Forget(post.ID)
	s.visibilityChanged(ctx)
	return result, nil
}

// RestorePost undoes a soft delete. Reposts hidden by a cascade come back
// with their original and cannot be restored on their own.
func (s *PostService) RestorePost(ctx context.Context, in DeletePostInput) (*models.CascadeResult, error) {
	post, err := s.postRepo.Get(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if post.OwnerID != in.RequesterID && !s.isModerator(in.RequesterID) {
		return nil, models.NewUnauthorizedError("You can only restore your own posts")
	}
	if !post.Deleted {
		return nil, models.NewValidationError("Post is not deleted")
	}
	if post.IsRepost() {
		return nil, models.NewValidationError("Restore the original post instead")
	}
	result, err := s.postRepo.Restore(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	s.visibilityChanged(ctx)
	return result, nil
}

// HardDeletePost permanently removes a post and its dependents. Moderators only.
func (s *PostService) HardDeletePost(ctx context.Context, in DeletePostInput) (*models.CascadeResult, error) {
	if !s.isModerator(in.RequesterID) {
		return nil, models.NewUnauthorizedError("Only moderators can permanently delete posts")
	}
	post, err := s.postRepo.Get(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	result, err := s.postRepo.HardDelete(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	s.mirror.Forget(post.ID)
	if post.IsRepost() {
		s.mirror.Forget(post.OriginalPostID)
	}
	s.visibilityChanged(ctx)
	return result, nil
}
